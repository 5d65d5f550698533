package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bagelhq/rwa-engine/oracle"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CallbackDeliveryStore backs the oracle delivery ledger with a unique
// (source, delivery_id) constraint so concurrent redeliveries dedupe at the
// database instead of in memory.
type CallbackDeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*callbackDeliveryRecord]
}

func NewCallbackDeliveryStore(db *bun.DB) (*CallbackDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*callbackDeliveryRecord](db, callbackDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid callback delivery repository wiring: %w", err)
		}
	}
	return &CallbackDeliveryStore{db: db, repo: repo}, nil
}

func (s *CallbackDeliveryStore) Claim(
	ctx context.Context,
	source string,
	deliveryID string,
	payload []byte,
	lease time.Duration,
) (oracle.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return oracle.DeliveryRecord{}, false, fmt.Errorf("sqlstore: callback delivery store is not configured")
	}
	source = strings.TrimSpace(source)
	deliveryID = strings.TrimSpace(deliveryID)
	if source == "" || deliveryID == "" {
		return oracle.DeliveryRecord{}, false, fmt.Errorf("sqlstore: source and delivery id are required")
	}

	now := time.Now().UTC()
	leaseUntil := now.Add(lease)
	record := &callbackDeliveryRecord{
		ID:            uuid.NewString(),
		ClaimID:       uuid.NewString(),
		Source:        source,
		DeliveryID:    deliveryID,
		Status:        oracle.DeliveryStatusProcessing,
		Attempts:      1,
		Payload:       append([]byte(nil), payload...),
		NextAttemptAt: &leaseUntil,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return s.reclaim(ctx, source, deliveryID, leaseUntil)
		}
		return oracle.DeliveryRecord{}, false, err
	}
	return callbackDeliveryToDomain(record), true, nil
}

// reclaim re-leases a delivery whose previous claim expired or failed. A
// second worker racing on the same row loses on the claim_id guard and sees
// the delivery as already claimed.
func (s *CallbackDeliveryStore) reclaim(
	ctx context.Context,
	source string,
	deliveryID string,
	leaseUntil time.Time,
) (oracle.DeliveryRecord, bool, error) {
	existing, err := s.Get(ctx, source, deliveryID)
	if err != nil {
		return oracle.DeliveryRecord{}, false, err
	}
	now := time.Now().UTC()
	switch existing.Status {
	case oracle.DeliveryStatusProcessed, oracle.DeliveryStatusDead:
		return existing, false, nil
	case oracle.DeliveryStatusProcessing:
		if existing.NextAttemptAt != nil && now.Before(*existing.NextAttemptAt) {
			return existing, false, nil
		}
	case oracle.DeliveryStatusRetryReady:
		if existing.NextAttemptAt != nil && now.Before(*existing.NextAttemptAt) {
			return existing, false, nil
		}
	}

	claimID := uuid.NewString()
	result, err := s.db.NewUpdate().
		Model((*callbackDeliveryRecord)(nil)).
		Set("claim_id = ?", claimID).
		Set("status = ?", oracle.DeliveryStatusProcessing).
		Set("attempts = attempts + 1").
		Set("next_attempt_at = ?", leaseUntil).
		Set("updated_at = ?", now).
		Where("id = ?", existing.ID).
		Where("claim_id = ?", existing.ClaimID).
		Exec(ctx)
	if err != nil {
		return oracle.DeliveryRecord{}, false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return oracle.DeliveryRecord{}, false, err
	}
	if affected == 0 {
		return existing, false, nil
	}

	existing.ClaimID = claimID
	existing.Status = oracle.DeliveryStatusProcessing
	existing.Attempts++
	existing.NextAttemptAt = &leaseUntil
	existing.UpdatedAt = now
	return existing, true, nil
}

func (s *CallbackDeliveryStore) Get(ctx context.Context, source, deliveryID string) (oracle.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return oracle.DeliveryRecord{}, fmt.Errorf("sqlstore: callback delivery store is not configured")
	}
	record := &callbackDeliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.source = ?", strings.TrimSpace(source)).
		Where("?TableAlias.delivery_id = ?", strings.TrimSpace(deliveryID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return oracle.DeliveryRecord{}, fmt.Errorf(
				"sqlstore: callback delivery not found for source %q delivery %q",
				source,
				deliveryID,
			)
		}
		return oracle.DeliveryRecord{}, err
	}
	return callbackDeliveryToDomain(record), nil
}

func (s *CallbackDeliveryStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: callback delivery store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*callbackDeliveryRecord)(nil)).
		Set("status = ?", oracle.DeliveryStatusProcessed).
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("claim_id = ?", claimID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: no delivery held by claim %q", claimID)
	}
	return nil
}

func (s *CallbackDeliveryStore) Fail(ctx context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: callback delivery store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	record := &callbackDeliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.claim_id = ?", claimID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("sqlstore: no delivery held by claim %q", claimID)
		}
		return err
	}

	status := oracle.DeliveryStatusRetryReady
	if maxAttempts > 0 && record.Attempts >= maxAttempts {
		status = oracle.DeliveryStatusDead
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	_, err = s.db.NewUpdate().
		Model((*callbackDeliveryRecord)(nil)).
		Set("status = ?", status).
		Set("last_error = ?", lastError).
		Set("next_attempt_at = ?", nextAttemptAt.UTC()).
		Set("updated_at = ?", time.Now().UTC()).
		Where("claim_id = ?", claimID).
		Exec(ctx)
	return err
}

func callbackDeliveryToDomain(record *callbackDeliveryRecord) oracle.DeliveryRecord {
	if record == nil {
		return oracle.DeliveryRecord{}
	}
	result := oracle.DeliveryRecord{
		ID:         record.ID,
		ClaimID:    record.ClaimID,
		Source:     record.Source,
		DeliveryID: record.DeliveryID,
		Status:     record.Status,
		Attempts:   record.Attempts,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
	if record.NextAttemptAt != nil {
		value := *record.NextAttemptAt
		result.NextAttemptAt = &value
	}
	return result
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ oracle.DeliveryLedger = (*CallbackDeliveryStore)(nil)
