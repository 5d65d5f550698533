package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Correlator matches async custodian verification outcomes back to the
// requests that initiated them. At most one pending request may exist per
// (asset, request type) pair; callers reuse the pending request instead of
// issuing a second one.
type Correlator struct {
	requests VerificationRequestStore
	logger   Logger
	nowFn    Clock
}

func NewCorrelator(requests VerificationRequestStore, logger Logger, nowFn Clock) *Correlator {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Correlator{
		requests: requests,
		logger:   glog.Ensure(logger),
		nowFn:    nowFn,
	}
}

// Register records a new pending request for the asset. When a pending
// request of the same type already exists it is returned unchanged and
// created reports false.
func (c *Correlator) Register(
	ctx context.Context,
	assetID string,
	requestType RequestType,
	requestID string,
	timeout time.Duration,
) (ReserveVerificationRequest, bool, error) {
	if c == nil || c.requests == nil {
		return ReserveVerificationRequest{}, false, fmt.Errorf("core: correlator is not configured")
	}
	assetID = strings.TrimSpace(assetID)
	requestID = strings.TrimSpace(requestID)
	if assetID == "" {
		return ReserveVerificationRequest{}, false, fmt.Errorf("core: asset id is required")
	}
	if requestID == "" {
		return ReserveVerificationRequest{}, false, fmt.Errorf("core: request id is required")
	}
	if err := requestType.Validate(); err != nil {
		return ReserveVerificationRequest{}, false, err
	}
	if timeout <= 0 {
		return ReserveVerificationRequest{}, false, fmt.Errorf("core: request timeout must be positive")
	}

	if existing, found, err := c.requests.FindPending(ctx, assetID, requestType); err != nil {
		return ReserveVerificationRequest{}, false, fmt.Errorf("core: find pending request: %w", err)
	} else if found {
		return existing, false, nil
	}

	now := c.nowFn()
	req := ReserveVerificationRequest{
		RequestID: requestID,
		AssetID:   assetID,
		Type:      requestType,
		IssuedAt:  now,
		ExpiresAt: now.Add(timeout),
		Status:    RequestStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored, err := c.requests.Append(ctx, req)
	if err != nil {
		return ReserveVerificationRequest{}, false, fmt.Errorf("core: record verification request: %w", err)
	}
	return stored, true, nil
}

// Resolve applies a custodian callback to its pending request. Callbacks
// for unknown request ids are dropped and reported as unmatched; callbacks
// that arrive after the request was already resolved are idempotent no-ops.
func (c *Correlator) Resolve(ctx context.Context, callback VerificationCallback) (FulfillResult, error) {
	if c == nil || c.requests == nil {
		return FulfillResult{}, fmt.Errorf("core: correlator is not configured")
	}
	requestID := strings.TrimSpace(callback.RequestID)
	if requestID == "" {
		return FulfillResult{}, fmt.Errorf("core: callback request id is required")
	}

	req, err := c.requests.Get(ctx, requestID)
	if err != nil {
		c.logger.Warn("dropping callback for unknown request",
			"request_id", requestID,
			"asset_id", callback.AssetID,
		)
		return FulfillResult{Matched: false}, nil
	}
	if req.Resolved() {
		return FulfillResult{Matched: true, AlreadyDone: true, Request: req}, nil
	}

	status := RequestStatusFulfilled
	if callback.Outcome == OutcomeFailed {
		status = RequestStatusFailed
	}
	transitioned, err := c.requests.MarkResolved(ctx, requestID, status, callback.Reason)
	if err != nil {
		return FulfillResult{}, fmt.Errorf("core: resolve verification request: %w", err)
	}
	if !transitioned {
		// A concurrent callback won the transition between our read and the
		// update. Report the request as already handled.
		if current, getErr := c.requests.Get(ctx, requestID); getErr == nil {
			req = current
		}
		return FulfillResult{Matched: true, AlreadyDone: true, Request: req}, nil
	}
	req.Status = status
	req.Reason = callback.Reason
	req.UpdatedAt = c.nowFn()
	return FulfillResult{Matched: true, Request: req}, nil
}

// SweepExpired marks pending requests whose deadline has passed as expired
// and returns them so callers can apply failure semantics per asset.
func (c *Correlator) SweepExpired(ctx context.Context, now time.Time) ([]ReserveVerificationRequest, error) {
	if c == nil || c.requests == nil {
		return nil, fmt.Errorf("core: correlator is not configured")
	}
	expired, err := c.requests.ListPendingExpiredBefore(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("core: list expired requests: %w", err)
	}
	var swept []ReserveVerificationRequest
	for _, req := range expired {
		transitioned, err := c.requests.MarkResolved(ctx, req.RequestID, RequestStatusExpired, "verification deadline exceeded")
		if err != nil {
			c.logger.Error("failed to expire verification request",
				"request_id", req.RequestID,
				"asset_id", req.AssetID,
				"error", err,
			)
			continue
		}
		if !transitioned {
			continue
		}
		req.Status = RequestStatusExpired
		req.Reason = "verification deadline exceeded"
		req.UpdatedAt = now
		swept = append(swept, req)
	}
	return swept, nil
}
