package oracle

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bagelhq/rwa-engine/core"
)

const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

// CallbackRequest is a raw inbound custodian delivery before verification
// and decoding.
type CallbackRequest struct {
	Source   string
	Body     []byte
	Headers  map[string]string
	Metadata map[string]any
}

type CallbackResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type DeliveryRecord struct {
	ID            string
	ClaimID       string
	Source        string
	DeliveryID    string
	Status        string
	Attempts      int
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeliveryLedger provides exactly-once claims over custodian deliveries.
// Claim returns claimed=false when the delivery was already claimed or
// processed, which is how redelivered callbacks dedupe.
type DeliveryLedger interface {
	Claim(ctx context.Context, source, deliveryID string, payload []byte, lease time.Duration) (DeliveryRecord, bool, error)
	Get(ctx context.Context, source, deliveryID string) (DeliveryRecord, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
}

type Verifier interface {
	Verify(ctx context.Context, req CallbackRequest) error
}

type DeliveryIDExtractor func(req CallbackRequest) (string, error)

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// Handler consumes a decoded verification callback.
type Handler interface {
	Handle(ctx context.Context, callback core.VerificationCallback) (core.FulfillResult, error)
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// Processor validates, dedupes, and dispatches custodian callbacks. A
// delivery is completed in the ledger only after the handler succeeds;
// failures schedule a retry until MaxAttempts is exhausted.
type Processor struct {
	Verifier    Verifier
	Ledger      DeliveryLedger
	Handler     Handler
	ExtractID   DeliveryIDExtractor
	RetryPolicy RetryPolicy
	ClaimLease  time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func NewProcessor(verifier Verifier, ledger DeliveryLedger, handler Handler) *Processor {
	return &Processor{
		Verifier:    verifier,
		Ledger:      ledger,
		Handler:     handler,
		ExtractID:   DefaultDeliveryIDExtractor,
		RetryPolicy: ExponentialRetryPolicy{},
		ClaimLease:  30 * time.Second,
		MaxAttempts: 8,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Processor) Process(ctx context.Context, req CallbackRequest) (CallbackResult, error) {
	if p == nil || p.Handler == nil || p.Ledger == nil {
		return CallbackResult{}, fmt.Errorf("oracle: processor requires handler and ledger")
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		return CallbackResult{}, fmt.Errorf("oracle: callback source is required")
	}
	req.Source = source

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			return CallbackResult{
				Accepted:   false,
				StatusCode: http.StatusUnauthorized,
				Metadata: map[string]any{
					"source":   source,
					"rejected": true,
				},
			}, err
		}
	}

	extractor := p.ExtractID
	if extractor == nil {
		extractor = DefaultDeliveryIDExtractor
	}
	deliveryID, err := extractor(req)
	if err != nil {
		return CallbackResult{}, err
	}

	delivery, claimed, err := p.Ledger.Claim(ctx, source, deliveryID, req.Body, p.claimLease())
	if err != nil {
		return CallbackResult{}, err
	}
	if !claimed {
		return CallbackResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"source":      source,
				"delivery_id": delivery.DeliveryID,
				"status":      delivery.Status,
				"deduped":     true,
			},
		}, nil
	}

	callback, err := DecodeCallback(req.Body)
	if err != nil {
		// A malformed payload will never decode on retry; complete it so
		// redelivery stops.
		if markErr := p.Ledger.Complete(ctx, delivery.ClaimID); markErr != nil {
			return CallbackResult{}, markErr
		}
		return CallbackResult{
			Accepted:   false,
			StatusCode: http.StatusBadRequest,
			Metadata: map[string]any{
				"source":      source,
				"delivery_id": deliveryID,
				"error":       err.Error(),
			},
		}, err
	}

	outcome, err := p.Handler.Handle(ctx, callback)
	if err != nil {
		nextAttemptAt := p.now().Add(p.retryPolicy().NextDelay(delivery.Attempts))
		_ = p.Ledger.Fail(ctx, delivery.ClaimID, err, nextAttemptAt, p.maxAttempts())
		return CallbackResult{}, err
	}

	if err := p.Ledger.Complete(ctx, delivery.ClaimID); err != nil {
		return CallbackResult{}, err
	}
	return CallbackResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"source":       source,
			"delivery_id":  deliveryID,
			"request_id":   callback.RequestID,
			"matched":      outcome.Matched,
			"already_done": outcome.AlreadyDone,
		},
	}, nil
}

func DefaultDeliveryIDExtractor(req CallbackRequest) (string, error) {
	if req.Metadata != nil {
		if value := strings.TrimSpace(fmt.Sprint(req.Metadata["delivery_id"])); value != "" && value != "<nil>" {
			return value, nil
		}
	}
	if req.Headers != nil {
		if value := headerValue(req.Headers, "x-delivery-id"); value != "" {
			return value, nil
		}
		if value := headerValue(req.Headers, "x-oracle-delivery"); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("oracle: delivery id is required for dedupe")
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p != nil && p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return 30 * time.Second
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 8
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// ServiceHandler routes decoded callbacks into the orchestration service.
type ServiceHandler struct {
	Service *core.Service
}

func (h ServiceHandler) Handle(ctx context.Context, callback core.VerificationCallback) (core.FulfillResult, error) {
	if h.Service == nil {
		return core.FulfillResult{}, fmt.Errorf("oracle: service is not configured")
	}
	return h.Service.HandleVerificationCallback(ctx, callback)
}
