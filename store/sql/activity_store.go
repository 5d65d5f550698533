package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bagelhq/rwa-engine/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ActivityStore struct {
	db   *bun.DB
	repo repository.Repository[*engineActivityRecord]
}

func NewActivityStore(db *bun.DB) (*ActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*engineActivityRecord](db, engineActivityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid activity repository wiring: %w", err)
		}
	}
	return &ActivityStore{db: db, repo: repo}, nil
}

func (s *ActivityStore) Record(ctx context.Context, entry core.EngineActivityEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	actor := strings.TrimSpace(entry.Actor)
	if actor == "" {
		actor = "system"
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	record := &engineActivityRecord{
		ID:        id,
		Actor:     actor,
		Action:    strings.TrimSpace(entry.Action),
		EntityID:  strings.TrimSpace(entry.EntityID),
		Status:    string(entry.Status),
		Metadata:  metadata,
		CreatedAt: createdAt,
	}
	if record.Status == "" {
		record.Status = string(core.EngineActivityStatusOK)
	}

	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *ActivityStore) List(ctx context.Context, filter core.ActivityFilter) ([]core.EngineActivityEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: activity store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, 0),
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		selectors = append(selectors, repository.SelectBy("action", "=", action))
	}
	if entityID := strings.TrimSpace(filter.EntityID); entityID != "" {
		selectors = append(selectors, repository.SelectBy("entity_id", "=", entityID))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}

	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.EngineActivityEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.ActivitySink = (*ActivityStore)(nil)
