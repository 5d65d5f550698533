package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bagelhq/rwa-engine/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// VerificationRequestStore is append-only: rows transition status but are
// never deleted, preserving the per-asset audit trail.
type VerificationRequestStore struct {
	db   *bun.DB
	repo repository.Repository[*verificationRequestRecord]
}

func NewVerificationRequestStore(db *bun.DB) (*VerificationRequestStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*verificationRequestRecord](db, verificationRequestHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid verification request repository wiring: %w", err)
		}
	}
	return &VerificationRequestStore{db: db, repo: repo}, nil
}

func (s *VerificationRequestStore) Append(ctx context.Context, req core.ReserveVerificationRequest) (core.ReserveVerificationRequest, error) {
	if s == nil || s.repo == nil {
		return core.ReserveVerificationRequest{}, fmt.Errorf("sqlstore: verification request store is not configured")
	}
	if strings.TrimSpace(req.RequestID) == "" {
		return core.ReserveVerificationRequest{}, fmt.Errorf("sqlstore: request id is required")
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = now
	}
	created, err := s.repo.Create(ctx, newVerificationRequestRecord(req))
	if err != nil {
		return core.ReserveVerificationRequest{}, err
	}
	return created.toDomain(), nil
}

func (s *VerificationRequestStore) Get(ctx context.Context, requestID string) (core.ReserveVerificationRequest, error) {
	if s == nil || s.repo == nil {
		return core.ReserveVerificationRequest{}, fmt.Errorf("sqlstore: verification request store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(requestID))
	if err != nil {
		if isNoRows(err) {
			return core.ReserveVerificationRequest{}, fmt.Errorf("sqlstore: verification request %q not found", requestID)
		}
		return core.ReserveVerificationRequest{}, err
	}
	return record.toDomain(), nil
}

func (s *VerificationRequestStore) FindPending(ctx context.Context, assetID string, requestType core.RequestType) (core.ReserveVerificationRequest, bool, error) {
	if s == nil || s.repo == nil {
		return core.ReserveVerificationRequest{}, false, fmt.Errorf("sqlstore: verification request store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("asset_id", "=", strings.TrimSpace(assetID)),
		repository.SelectBy("request_type", "=", string(requestType)),
		repository.SelectBy("status", "=", string(core.RequestStatusPending)),
		repository.OrderBy("issued_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.ReserveVerificationRequest{}, false, err
	}
	if len(records) == 0 {
		return core.ReserveVerificationRequest{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *VerificationRequestStore) ListByAsset(ctx context.Context, assetID string) ([]core.ReserveVerificationRequest, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: verification request store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("asset_id", "=", strings.TrimSpace(assetID)),
		repository.OrderBy("issued_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ReserveVerificationRequest, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *VerificationRequestStore) ListPendingExpiredBefore(ctx context.Context, cutoff time.Time) ([]core.ReserveVerificationRequest, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: verification request store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", string(core.RequestStatusPending)),
		repository.SelectByTimetz("expires_at", "<=", cutoff.UTC()),
		repository.OrderBy("expires_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ReserveVerificationRequest, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// MarkResolved only touches rows still pending so a racing duplicate
// callback loses the update instead of re-resolving the request.
func (s *VerificationRequestStore) MarkResolved(ctx context.Context, requestID string, status core.RequestStatus, reason string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: verification request store is not configured")
	}
	now := time.Now().UTC()
	query := s.db.NewUpdate().
		Model((*verificationRequestRecord)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = ?", now).
		Where("id = ?", strings.TrimSpace(requestID)).
		Where("status = ?", string(core.RequestStatusPending))
	if strings.TrimSpace(reason) != "" {
		query = query.Set("reason = ?", strings.TrimSpace(reason))
	}
	result, err := query.Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}
	exists, err := s.db.NewSelect().
		Model((*verificationRequestRecord)(nil)).
		Where("id = ?", strings.TrimSpace(requestID)).
		Exists(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("sqlstore: verification request %q not found", requestID)
	}
	return false, nil
}

var _ core.VerificationRequestStore = (*VerificationRequestStore)(nil)
