package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bagelhq/rwa-engine/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubReserveDataStore struct {
	mu          sync.Mutex
	data        core.ReserveData
	getCalls    int
	upsertCalls int
	getErr      error
	upsertErr   error
}

func (s *stubReserveDataStore) Get(_ context.Context, _ string) (core.ReserveData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return core.ReserveData{}, s.getErr
	}
	return s.data, nil
}

func (s *stubReserveDataStore) Upsert(_ context.Context, data core.ReserveData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.data = data
	return nil
}

func TestCachedReserveDataStore_Get_MissFetchThenHit(t *testing.T) {
	cacheService := newTestReserveDataCacheService(t)
	base := &stubReserveDataStore{
		data: core.ReserveData{
			AssetID:          "asset-cache-1",
			IsVerified:       true,
			LastVerification: time.Now().UTC(),
			LastRequestID:    "req-1",
		},
	}

	store, err := NewCachedReserveDataStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached reserve data store: %v", err)
	}

	first, err := store.Get(context.Background(), "asset-cache-1")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if !first.IsVerified || first.LastRequestID != "req-1" {
		t.Fatalf("expected base snapshot, got %+v", first)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}

	if _, err := store.Get(context.Background(), "asset-cache-1"); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be a cache hit, base get calls=%d", base.getCalls)
	}
}

func TestCachedReserveDataStore_Upsert_InvalidatesCachedKey(t *testing.T) {
	cacheService := newTestReserveDataCacheService(t)
	base := &stubReserveDataStore{
		data: core.ReserveData{
			AssetID:    "asset-cache-2",
			IsVerified: true,
		},
	}

	store, err := NewCachedReserveDataStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached reserve data store: %v", err)
	}

	if _, err := store.Get(context.Background(), "asset-cache-2"); err != nil {
		t.Fatalf("prime cache with get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected one base read after cache prime, got %d", base.getCalls)
	}

	if err := store.Upsert(context.Background(), core.ReserveData{
		AssetID:             "asset-cache-2",
		IsVerified:          false,
		ConsecutiveFailures: 1,
	}); err != nil {
		t.Fatalf("upsert through cached store: %v", err)
	}
	if base.upsertCalls != 1 {
		t.Fatalf("expected upsert to reach base store, got %d calls", base.upsertCalls)
	}

	after, err := store.Get(context.Background(), "asset-cache-2")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected get after upsert to refetch base store, got %d calls", base.getCalls)
	}
	if after.IsVerified || after.ConsecutiveFailures != 1 {
		t.Fatalf("expected updated snapshot after invalidation, got %+v", after)
	}
}

func TestCachedReserveDataStore_Get_PropagatesBaseError(t *testing.T) {
	cacheService := newTestReserveDataCacheService(t)
	base := &stubReserveDataStore{getErr: errors.New("connection reset")}

	store, err := NewCachedReserveDataStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached reserve data store: %v", err)
	}

	if _, err := store.Get(context.Background(), "asset-cache-3"); err == nil {
		t.Fatalf("expected base store error to propagate")
	}
}

func TestReserveDataCacheKey(t *testing.T) {
	key, err := ReserveDataCacheKey("asset/with spaces")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "rwa-engine::reserve_data::v1::asset%2Fwith%20spaces" {
		t.Fatalf("unexpected cache key %q", key)
	}

	if _, err := ReserveDataCacheKey("   "); err == nil {
		t.Fatalf("expected error for blank asset id")
	}
}

func newTestReserveDataCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
