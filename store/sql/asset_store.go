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

type AssetStore struct {
	db   *bun.DB
	repo repository.Repository[*fractionalAssetRecord]
}

func NewAssetStore(db *bun.DB) (*AssetStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*fractionalAssetRecord](db, fractionalAssetHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid fractional asset repository wiring: %w", err)
		}
	}
	return &AssetStore{db: db, repo: repo}, nil
}

func (s *AssetStore) Create(ctx context.Context, asset core.FractionalizedAsset) (core.FractionalizedAsset, error) {
	if s == nil || s.repo == nil {
		return core.FractionalizedAsset{}, fmt.Errorf("sqlstore: asset store is not configured")
	}
	if strings.TrimSpace(asset.ID) == "" {
		return core.FractionalizedAsset{}, fmt.Errorf("sqlstore: asset id is required")
	}
	asset.Version = 1
	now := time.Now().UTC()
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = now
	}
	if asset.UpdatedAt.IsZero() {
		asset.UpdatedAt = now
	}
	created, err := s.repo.Create(ctx, newFractionalAssetRecord(asset))
	if err != nil {
		return core.FractionalizedAsset{}, err
	}
	return created.toDomain()
}

func (s *AssetStore) Get(ctx context.Context, id string) (core.FractionalizedAsset, error) {
	if s == nil || s.repo == nil {
		return core.FractionalizedAsset{}, fmt.Errorf("sqlstore: asset store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if isNoRows(err) {
			return core.FractionalizedAsset{}, fmt.Errorf("%w: %q", core.ErrAssetNotFound, id)
		}
		return core.FractionalizedAsset{}, err
	}
	return record.toDomain()
}

func (s *AssetStore) GetByFractionalContract(ctx context.Context, contract string) (core.FractionalizedAsset, error) {
	if s == nil || s.repo == nil {
		return core.FractionalizedAsset{}, fmt.Errorf("sqlstore: asset store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("fractional_contract", "=", strings.ToLower(strings.TrimSpace(contract))),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.FractionalizedAsset{}, err
	}
	if len(records) == 0 {
		return core.FractionalizedAsset{}, fmt.Errorf("%w: fractional contract %q", core.ErrAssetNotFound, contract)
	}
	return records[0].toDomain()
}

func (s *AssetStore) ListByOwner(ctx context.Context, owner string) ([]core.FractionalizedAsset, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: asset store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("original_owner", "=", strings.ToLower(strings.TrimSpace(owner))),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.FractionalizedAsset, 0, len(records))
	for _, record := range records {
		asset, err := record.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, asset)
	}
	return out, nil
}

func (s *AssetStore) Update(ctx context.Context, asset core.FractionalizedAsset, expectedVersion int64) (core.FractionalizedAsset, error) {
	if s == nil || s.db == nil {
		return core.FractionalizedAsset{}, fmt.Errorf("sqlstore: asset store is not configured")
	}
	asset.Version = expectedVersion + 1
	asset.UpdatedAt = time.Now().UTC()
	record := newFractionalAssetRecord(asset)
	result, err := s.db.NewUpdate().
		Model(record).
		WherePK().
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return core.FractionalizedAsset{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.FractionalizedAsset{}, err
	}
	if affected == 0 {
		return core.FractionalizedAsset{}, fmt.Errorf("%w: asset %s expected version %d",
			core.ErrVersionConflict, asset.ID, expectedVersion)
	}
	return record.toDomain()
}

var _ core.AssetStore = (*AssetStore)(nil)
