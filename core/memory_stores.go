package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory stores back the service when no persistence client is configured.
// They honor the same version-conflict contract as the SQL stores so the
// optimistic-commit path behaves identically in tests.

type MemoryLoanStore struct {
	mu    sync.RWMutex
	loans map[string]Loan
}

func NewMemoryLoanStore() *MemoryLoanStore {
	return &MemoryLoanStore{loans: make(map[string]Loan)}
}

func (s *MemoryLoanStore) Create(_ context.Context, loan Loan) (Loan, error) {
	if s == nil {
		return Loan{}, fmt.Errorf("core: loan store is not configured")
	}
	if strings.TrimSpace(loan.ID) == "" {
		return Loan{}, fmt.Errorf("core: loan id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.loans[loan.ID]; exists {
		return Loan{}, fmt.Errorf("core: loan %q already exists", loan.ID)
	}
	loan.Version = 1
	s.loans[loan.ID] = loan
	return loan, nil
}

func (s *MemoryLoanStore) Get(_ context.Context, id string) (Loan, error) {
	if s == nil {
		return Loan{}, fmt.Errorf("core: loan store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans[strings.TrimSpace(id)]
	if !ok {
		return Loan{}, fmt.Errorf("%w: %q", ErrLoanNotFound, id)
	}
	return loan, nil
}

func (s *MemoryLoanStore) FindActiveByCollateral(_ context.Context, collateral TokenRef) ([]Loan, error) {
	if s == nil {
		return nil, fmt.Errorf("core: loan store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Loan
	for _, loan := range s.loans {
		if loan.Status == LoanStatusActive && loan.Collateral.String() == collateral.String() {
			out = append(out, loan)
		}
	}
	sortLoans(out)
	return out, nil
}

func (s *MemoryLoanStore) ListByBorrower(_ context.Context, borrower string) ([]Loan, error) {
	if s == nil {
		return nil, fmt.Errorf("core: loan store is not configured")
	}
	borrower = strings.ToLower(strings.TrimSpace(borrower))
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Loan
	for _, loan := range s.loans {
		if strings.ToLower(loan.Borrower) == borrower {
			out = append(out, loan)
		}
	}
	sortLoans(out)
	return out, nil
}

func (s *MemoryLoanStore) ListActive(_ context.Context) ([]Loan, error) {
	if s == nil {
		return nil, fmt.Errorf("core: loan store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Loan
	for _, loan := range s.loans {
		if loan.Status == LoanStatusActive {
			out = append(out, loan)
		}
	}
	sortLoans(out)
	return out, nil
}

func (s *MemoryLoanStore) Update(_ context.Context, loan Loan, expectedVersion int64) (Loan, error) {
	if s == nil {
		return Loan{}, fmt.Errorf("core: loan store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.loans[loan.ID]
	if !ok {
		return Loan{}, fmt.Errorf("%w: %q", ErrLoanNotFound, loan.ID)
	}
	if current.Version != expectedVersion {
		return Loan{}, fmt.Errorf("%w: loan %q expected version %d, found %d",
			ErrVersionConflict, loan.ID, expectedVersion, current.Version)
	}
	loan.Version = expectedVersion + 1
	s.loans[loan.ID] = loan
	return loan, nil
}

func sortLoans(loans []Loan) {
	sort.Slice(loans, func(i, j int) bool { return loans[i].ID < loans[j].ID })
}

type MemoryAssetStore struct {
	mu     sync.RWMutex
	assets map[string]FractionalizedAsset
}

func NewMemoryAssetStore() *MemoryAssetStore {
	return &MemoryAssetStore{assets: make(map[string]FractionalizedAsset)}
}

func (s *MemoryAssetStore) Create(_ context.Context, asset FractionalizedAsset) (FractionalizedAsset, error) {
	if s == nil {
		return FractionalizedAsset{}, fmt.Errorf("core: asset store is not configured")
	}
	if strings.TrimSpace(asset.ID) == "" {
		return FractionalizedAsset{}, fmt.Errorf("core: asset id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.assets[asset.ID]; exists {
		return FractionalizedAsset{}, fmt.Errorf("core: asset %q already exists", asset.ID)
	}
	asset.Version = 1
	s.assets[asset.ID] = asset
	return asset, nil
}

func (s *MemoryAssetStore) Get(_ context.Context, id string) (FractionalizedAsset, error) {
	if s == nil {
		return FractionalizedAsset{}, fmt.Errorf("core: asset store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[strings.TrimSpace(id)]
	if !ok {
		return FractionalizedAsset{}, fmt.Errorf("%w: %q", ErrAssetNotFound, id)
	}
	return asset, nil
}

func (s *MemoryAssetStore) GetByFractionalContract(_ context.Context, contract string) (FractionalizedAsset, error) {
	if s == nil {
		return FractionalizedAsset{}, fmt.Errorf("core: asset store is not configured")
	}
	contract = strings.ToLower(strings.TrimSpace(contract))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, asset := range s.assets {
		if strings.ToLower(asset.FractionalContract) == contract {
			return asset, nil
		}
	}
	return FractionalizedAsset{}, fmt.Errorf("%w: fractional contract %q", ErrAssetNotFound, contract)
}

func (s *MemoryAssetStore) ListByOwner(_ context.Context, owner string) ([]FractionalizedAsset, error) {
	if s == nil {
		return nil, fmt.Errorf("core: asset store is not configured")
	}
	owner = strings.ToLower(strings.TrimSpace(owner))
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []FractionalizedAsset
	for _, asset := range s.assets {
		if strings.ToLower(asset.OriginalOwner) == owner {
			out = append(out, asset)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryAssetStore) Update(_ context.Context, asset FractionalizedAsset, expectedVersion int64) (FractionalizedAsset, error) {
	if s == nil {
		return FractionalizedAsset{}, fmt.Errorf("core: asset store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.assets[asset.ID]
	if !ok {
		return FractionalizedAsset{}, fmt.Errorf("%w: %q", ErrAssetNotFound, asset.ID)
	}
	if current.Version != expectedVersion {
		return FractionalizedAsset{}, fmt.Errorf("%w: asset %q expected version %d, found %d",
			ErrVersionConflict, asset.ID, expectedVersion, current.Version)
	}
	asset.Version = expectedVersion + 1
	s.assets[asset.ID] = asset
	return asset, nil
}

type MemoryVerificationRequestStore struct {
	mu       sync.RWMutex
	requests map[string]ReserveVerificationRequest
	order    []string
}

func NewMemoryVerificationRequestStore() *MemoryVerificationRequestStore {
	return &MemoryVerificationRequestStore{requests: make(map[string]ReserveVerificationRequest)}
}

func (s *MemoryVerificationRequestStore) Append(_ context.Context, req ReserveVerificationRequest) (ReserveVerificationRequest, error) {
	if s == nil {
		return ReserveVerificationRequest{}, fmt.Errorf("core: verification request store is not configured")
	}
	if strings.TrimSpace(req.RequestID) == "" {
		return ReserveVerificationRequest{}, fmt.Errorf("core: request id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.RequestID]; exists {
		return ReserveVerificationRequest{}, fmt.Errorf("core: request %q already recorded", req.RequestID)
	}
	s.requests[req.RequestID] = req
	s.order = append(s.order, req.RequestID)
	return req, nil
}

func (s *MemoryVerificationRequestStore) Get(_ context.Context, requestID string) (ReserveVerificationRequest, error) {
	if s == nil {
		return ReserveVerificationRequest{}, fmt.Errorf("core: verification request store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[strings.TrimSpace(requestID)]
	if !ok {
		return ReserveVerificationRequest{}, fmt.Errorf("core: verification request %q not found", requestID)
	}
	return req, nil
}

func (s *MemoryVerificationRequestStore) FindPending(_ context.Context, assetID string, requestType RequestType) (ReserveVerificationRequest, bool, error) {
	if s == nil {
		return ReserveVerificationRequest{}, false, fmt.Errorf("core: verification request store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		req := s.requests[id]
		if req.AssetID == assetID && req.Type == requestType && req.Status == RequestStatusPending {
			return req, true, nil
		}
	}
	return ReserveVerificationRequest{}, false, nil
}

func (s *MemoryVerificationRequestStore) ListByAsset(_ context.Context, assetID string) ([]ReserveVerificationRequest, error) {
	if s == nil {
		return nil, fmt.Errorf("core: verification request store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ReserveVerificationRequest
	for _, id := range s.order {
		if req := s.requests[id]; req.AssetID == assetID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *MemoryVerificationRequestStore) ListPendingExpiredBefore(_ context.Context, cutoff time.Time) ([]ReserveVerificationRequest, error) {
	if s == nil {
		return nil, fmt.Errorf("core: verification request store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ReserveVerificationRequest
	for _, id := range s.order {
		req := s.requests[id]
		if req.Status == RequestStatusPending && !req.ExpiresAt.After(cutoff) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *MemoryVerificationRequestStore) MarkResolved(_ context.Context, requestID string, status RequestStatus, reason string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("core: verification request store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[strings.TrimSpace(requestID)]
	if !ok {
		return false, fmt.Errorf("core: verification request %q not found", requestID)
	}
	if req.Status != RequestStatusPending {
		return false, nil
	}
	if err := req.TransitionTo(status, reason, time.Now().UTC()); err != nil {
		return false, err
	}
	s.requests[req.RequestID] = req
	return true, nil
}

type MemoryReserveDataStore struct {
	mu   sync.RWMutex
	data map[string]ReserveData
}

func NewMemoryReserveDataStore() *MemoryReserveDataStore {
	return &MemoryReserveDataStore{data: make(map[string]ReserveData)}
}

func (s *MemoryReserveDataStore) Get(_ context.Context, assetID string) (ReserveData, error) {
	if s == nil {
		return ReserveData{}, fmt.Errorf("core: reserve data store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[strings.TrimSpace(assetID)]
	if !ok {
		return ReserveData{AssetID: strings.TrimSpace(assetID)}, nil
	}
	return data, nil
}

func (s *MemoryReserveDataStore) Upsert(_ context.Context, data ReserveData) error {
	if s == nil {
		return fmt.Errorf("core: reserve data store is not configured")
	}
	if strings.TrimSpace(data.AssetID) == "" {
		return fmt.Errorf("core: asset id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[data.AssetID] = data
	return nil
}

type MemoryActivitySink struct {
	mu      sync.RWMutex
	entries []EngineActivityEntry
}

func NewMemoryActivitySink() *MemoryActivitySink {
	return &MemoryActivitySink{}
}

func (s *MemoryActivitySink) Record(_ context.Context, entry EngineActivityEntry) error {
	if s == nil {
		return fmt.Errorf("core: activity sink is not configured")
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryActivitySink) List(_ context.Context, filter ActivityFilter) ([]EngineActivityEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("core: activity sink is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []EngineActivityEntry
	for _, entry := range s.entries {
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.EntityID != "" && entry.EntityID != filter.EntityID {
			continue
		}
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		if filter.From != nil && entry.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && entry.CreatedAt.After(*filter.To) {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

var (
	_ LoanStore                = (*MemoryLoanStore)(nil)
	_ AssetStore               = (*MemoryAssetStore)(nil)
	_ VerificationRequestStore = (*MemoryVerificationRequestStore)(nil)
	_ ReserveDataStore         = (*MemoryReserveDataStore)(nil)
	_ ActivitySink             = (*MemoryActivitySink)(nil)
	_ EntityLocker             = (*MemoryEntityLocker)(nil)
)
