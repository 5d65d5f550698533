package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bagelhq/rwa-engine/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const reserveDataCacheKeyPrefix = "rwa-engine::reserve_data::v1"

// CachedReserveDataStore fronts reserve snapshots with a cache. Health and
// fractionalization reads hit reserve data far more often than callbacks
// mutate it, so writes invalidate and reads repopulate on demand.
type CachedReserveDataStore struct {
	base  core.ReserveDataStore
	cache repositorycache.CacheService
}

func NewCachedReserveDataStore(
	base core.ReserveDataStore,
	cacheService repositorycache.CacheService,
) (*CachedReserveDataStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base reserve data store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: reserve data cache service is required")
	}
	return &CachedReserveDataStore{base: base, cache: cacheService}, nil
}

// ReserveDataCacheKey returns the deterministic cache key contract for
// reserve snapshot reads: rwa-engine::reserve_data::v1::<asset_id> with the
// asset id URL-path escaped.
func ReserveDataCacheKey(assetID string) (string, error) {
	trimmed := strings.TrimSpace(assetID)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: asset id is required")
	}
	return reserveDataCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedReserveDataStore) Get(ctx context.Context, assetID string) (core.ReserveData, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ReserveData{}, fmt.Errorf("sqlstore: cached reserve data store is not configured")
	}
	cacheKey, err := ReserveDataCacheKey(assetID)
	if err != nil {
		return core.ReserveData{}, err
	}
	data, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.ReserveData, error) {
		return s.base.Get(ctx, strings.TrimSpace(assetID))
	})
	if err != nil {
		return core.ReserveData{}, err
	}
	return data, nil
}

func (s *CachedReserveDataStore) Upsert(ctx context.Context, data core.ReserveData) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached reserve data store is not configured")
	}
	if err := s.base.Upsert(ctx, data); err != nil {
		return err
	}
	cacheKey, err := ReserveDataCacheKey(data.AssetID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.ReserveDataStore = (*CachedReserveDataStore)(nil)
