package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultEntityLockTTL = 30 * time.Second

// MemoryEntityLocker is the in-process EntityLocker. Locks carry a TTL so a
// crashed holder cannot wedge an entity forever.
type MemoryEntityLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	nowFn func() time.Time
}

func NewMemoryEntityLocker() *MemoryEntityLocker {
	return &MemoryEntityLocker{
		locks: make(map[string]time.Time),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryEntityLocker) Acquire(_ context.Context, entityID string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: entity locker is not configured")
	}
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, fmt.Errorf("core: entity id is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = defaultEntityLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.locks[entityID]; ok && now.Before(until) {
		return nil, fmt.Errorf("core: lock already held for entity %q", entityID)
	}
	l.locks[entityID] = now.Add(ttl)
	return &memoryLockHandle{locker: l, entityID: entityID}, nil
}

type memoryLockHandle struct {
	locker   *MemoryEntityLocker
	entityID string
	once     sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		delete(h.locker.locks, h.entityID)
		h.locker.mu.Unlock()
	})
	return nil
}

// acquireEntityLock blocks until the per-entity lock is free or the context
// is done. Commands use this rather than failing fast: under a lock race the
// loser re-reads committed state and then detects version drift, which is
// what surfaces ConcurrentModification deterministically.
func acquireEntityLock(ctx context.Context, locker EntityLocker, entityID string, ttl time.Duration) (LockHandle, error) {
	if locker == nil {
		return nil, fmt.Errorf("core: entity locker is required")
	}
	for {
		handle, err := locker.Acquire(ctx, entityID, ttl)
		if err == nil {
			return handle, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}
