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

type ReserveDataStore struct {
	db   *bun.DB
	repo repository.Repository[*reserveDataRecord]
}

func NewReserveDataStore(db *bun.DB) (*ReserveDataStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*reserveDataRecord](db, reserveDataHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid reserve data repository wiring: %w", err)
		}
	}
	return &ReserveDataStore{db: db, repo: repo}, nil
}

// Get returns a zero-valued snapshot for unknown assets so callers can treat
// reserve state as always readable.
func (s *ReserveDataStore) Get(ctx context.Context, assetID string) (core.ReserveData, error) {
	if s == nil || s.repo == nil {
		return core.ReserveData{}, fmt.Errorf("sqlstore: reserve data store is not configured")
	}
	trimmed := strings.TrimSpace(assetID)
	record := &reserveDataRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.asset_id = ?", trimmed).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.ReserveData{AssetID: trimmed}, nil
		}
		return core.ReserveData{}, err
	}
	return record.toDomain(), nil
}

func (s *ReserveDataStore) Upsert(ctx context.Context, data core.ReserveData) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: reserve data store is not configured")
	}
	if strings.TrimSpace(data.AssetID) == "" {
		return fmt.Errorf("sqlstore: asset id is required")
	}
	if data.UpdatedAt.IsZero() {
		data.UpdatedAt = time.Now().UTC()
	}
	record := newReserveDataRecord(data)
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (asset_id) DO UPDATE").
		Set("is_verified = EXCLUDED.is_verified").
		Set("consecutive_failures = EXCLUDED.consecutive_failures").
		Set("last_verification = EXCLUDED.last_verification").
		Set("last_request_id = EXCLUDED.last_request_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

var _ core.ReserveDataStore = (*ReserveDataStore)(nil)
