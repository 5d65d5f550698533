package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDeliveryLedger keeps delivery claims in process. Suitable for
// single-instance deployments and tests; multi-instance setups use the SQL
// ledger so dedupe survives restarts.
type MemoryDeliveryLedger struct {
	mu      sync.Mutex
	records map[string]DeliveryRecord
	byClaim map[string]string
	nowFn   func() time.Time
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		records: make(map[string]DeliveryRecord),
		byClaim: make(map[string]string),
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryDeliveryLedger) Claim(_ context.Context, source, deliveryID string, _ []byte, lease time.Duration) (DeliveryRecord, bool, error) {
	if l == nil {
		return DeliveryRecord{}, false, fmt.Errorf("oracle: delivery ledger is not configured")
	}
	source = strings.TrimSpace(source)
	deliveryID = strings.TrimSpace(deliveryID)
	if source == "" || deliveryID == "" {
		return DeliveryRecord{}, false, fmt.Errorf("oracle: source and delivery id are required")
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}

	now := l.nowFn()
	key := source + ":" + deliveryID

	l.mu.Lock()
	defer l.mu.Unlock()

	record, exists := l.records[key]
	if exists {
		switch record.Status {
		case DeliveryStatusProcessed, DeliveryStatusDead:
			return record, false, nil
		case DeliveryStatusProcessing:
			if record.NextAttemptAt != nil && now.Before(*record.NextAttemptAt) {
				return record, false, nil
			}
		case DeliveryStatusRetryReady:
			if record.NextAttemptAt != nil && now.Before(*record.NextAttemptAt) {
				return record, false, nil
			}
		}
		delete(l.byClaim, record.ClaimID)
		record.ClaimID = uuid.NewString()
		record.Status = DeliveryStatusProcessing
		record.Attempts++
		leaseUntil := now.Add(lease)
		record.NextAttemptAt = &leaseUntil
		record.UpdatedAt = now
		l.records[key] = record
		l.byClaim[record.ClaimID] = key
		return record, true, nil
	}

	leaseUntil := now.Add(lease)
	record = DeliveryRecord{
		ID:            uuid.NewString(),
		ClaimID:       uuid.NewString(),
		Source:        source,
		DeliveryID:    deliveryID,
		Status:        DeliveryStatusProcessing,
		Attempts:      1,
		NextAttemptAt: &leaseUntil,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	l.records[key] = record
	l.byClaim[record.ClaimID] = key
	return record, true, nil
}

func (l *MemoryDeliveryLedger) Get(_ context.Context, source, deliveryID string) (DeliveryRecord, error) {
	if l == nil {
		return DeliveryRecord{}, fmt.Errorf("oracle: delivery ledger is not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[strings.TrimSpace(source)+":"+strings.TrimSpace(deliveryID)]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("oracle: delivery not found for source %q id %q", source, deliveryID)
	}
	return record, nil
}

func (l *MemoryDeliveryLedger) Complete(_ context.Context, claimID string) error {
	if l == nil {
		return fmt.Errorf("oracle: delivery ledger is not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key, ok := l.byClaim[claimID]
	if !ok {
		return fmt.Errorf("oracle: unknown claim %q", claimID)
	}
	record := l.records[key]
	record.Status = DeliveryStatusProcessed
	record.NextAttemptAt = nil
	record.UpdatedAt = l.nowFn()
	l.records[key] = record
	delete(l.byClaim, claimID)
	return nil
}

func (l *MemoryDeliveryLedger) Fail(_ context.Context, claimID string, _ error, nextAttemptAt time.Time, maxAttempts int) error {
	if l == nil {
		return fmt.Errorf("oracle: delivery ledger is not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key, ok := l.byClaim[claimID]
	if !ok {
		return fmt.Errorf("oracle: unknown claim %q", claimID)
	}
	record := l.records[key]
	if maxAttempts > 0 && record.Attempts >= maxAttempts {
		record.Status = DeliveryStatusDead
		record.NextAttemptAt = nil
	} else {
		record.Status = DeliveryStatusRetryReady
		at := nextAttemptAt.UTC()
		record.NextAttemptAt = &at
	}
	record.UpdatedAt = l.nowFn()
	l.records[key] = record
	delete(l.byClaim, claimID)
	return nil
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
