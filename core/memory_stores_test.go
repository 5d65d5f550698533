package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryLoanStoreOptimisticUpdate(t *testing.T) {
	store := NewMemoryLoanStore()
	loan, err := store.Create(context.Background(), Loan{
		ID:           "loan-1",
		Borrower:     "0xborrower",
		Collateral:   TokenRef{Contract: "0xdeed", TokenID: 1},
		Principal:    MustAmount(100),
		Status:       LoanStatusActive,
		AmountRepaid: AmountZero(),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if loan.Version != 1 {
		t.Fatalf("created version = %d, want 1", loan.Version)
	}

	updated, err := store.Update(context.Background(), loan, loan.Version)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("updated version = %d, want 2", updated.Version)
	}

	if _, err := store.Update(context.Background(), loan, loan.Version); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale update must fail with ErrVersionConflict, got %v", err)
	}
}

func TestMemoryLoanStoreGetMissing(t *testing.T) {
	store := NewMemoryLoanStore()
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected ErrLoanNotFound, got %v", err)
	}
}

func TestMemoryLoanStoreRejectsDuplicateID(t *testing.T) {
	store := NewMemoryLoanStore()
	loan := Loan{ID: "loan-1", Borrower: "0xa", Status: LoanStatusActive}
	if _, err := store.Create(context.Background(), loan); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.Create(context.Background(), loan); err == nil {
		t.Fatalf("duplicate id must be rejected")
	}
}

func TestMemoryAssetStoreLookupByFractionalContract(t *testing.T) {
	store := NewMemoryAssetStore()
	asset := FractionalizedAsset{
		ID:                 "asset-1",
		OriginalOwner:      "0xowner",
		FractionalContract: "0xfractoken",
		Status:             AssetStatusActive,
	}
	if _, err := store.Create(context.Background(), asset); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := store.GetByFractionalContract(context.Background(), "0xFracToken")
	if err != nil {
		t.Fatalf("GetByFractionalContract() error = %v", err)
	}
	if found.ID != "asset-1" {
		t.Fatalf("found asset %q, want asset-1", found.ID)
	}

	if _, err := store.GetByFractionalContract(context.Background(), "0xmissing"); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestMemoryVerificationRequestStoreFindPending(t *testing.T) {
	store := NewMemoryVerificationRequestStore()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	if _, err := store.Append(context.Background(), ReserveVerificationRequest{
		RequestID: "req-1",
		AssetID:   "asset-1",
		Type:      RequestTypeReserveVerification,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
		Status:    RequestStatusPending,
	}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	pending, found, err := store.FindPending(context.Background(), "asset-1", RequestTypeReserveVerification)
	if err != nil {
		t.Fatalf("FindPending() error = %v", err)
	}
	if !found || pending.RequestID != "req-1" {
		t.Fatalf("FindPending() = %+v found %v", pending, found)
	}

	if _, found, err := store.FindPending(context.Background(), "asset-1", RequestTypeAuthenticityCheck); err != nil || found {
		t.Fatalf("different type must not match, found %v err %v", found, err)
	}

	if transitioned, err := store.MarkResolved(context.Background(), "req-1", RequestStatusFulfilled, ""); err != nil || !transitioned {
		t.Fatalf("MarkResolved() = %v, %v", transitioned, err)
	}
	if _, found, err := store.FindPending(context.Background(), "asset-1", RequestTypeReserveVerification); err != nil || found {
		t.Fatalf("resolved request must not report pending, found %v err %v", found, err)
	}
	if transitioned, err := store.MarkResolved(context.Background(), "req-1", RequestStatusFailed, "late duplicate"); err != nil || transitioned {
		t.Fatalf("MarkResolved() on a resolved request = %v, %v, want no-op", transitioned, err)
	}
	if again, err := store.Get(context.Background(), "req-1"); err != nil || again.Status != RequestStatusFulfilled {
		t.Fatalf("resolved request changed status: %+v err %v", again, err)
	}
}

func TestMemoryVerificationRequestStoreListPendingExpiredBefore(t *testing.T) {
	store := NewMemoryVerificationRequestStore()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	seed := []ReserveVerificationRequest{
		{RequestID: "req-expired", AssetID: "asset-1", Type: RequestTypeReserveVerification, ExpiresAt: now.Add(-time.Minute), Status: RequestStatusPending},
		{RequestID: "req-live", AssetID: "asset-2", Type: RequestTypeReserveVerification, ExpiresAt: now.Add(time.Hour), Status: RequestStatusPending},
		{RequestID: "req-done", AssetID: "asset-3", Type: RequestTypeReserveVerification, ExpiresAt: now.Add(-time.Minute), Status: RequestStatusFulfilled},
	}
	for _, req := range seed {
		if _, err := store.Append(context.Background(), req); err != nil {
			t.Fatalf("Append(%s) error = %v", req.RequestID, err)
		}
	}

	expired, err := store.ListPendingExpiredBefore(context.Background(), now)
	if err != nil {
		t.Fatalf("ListPendingExpiredBefore() error = %v", err)
	}
	if len(expired) != 1 || expired[0].RequestID != "req-expired" {
		t.Fatalf("unexpected expired set %+v", expired)
	}
}

func TestMemoryReserveDataStoreZeroValueRead(t *testing.T) {
	store := NewMemoryReserveDataStore()

	data, err := store.Get(context.Background(), "asset-unknown")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if data.AssetID != "asset-unknown" || data.IsVerified || data.ConsecutiveFailures != 0 {
		t.Fatalf("unexpected zero-value read %+v", data)
	}

	data.IsVerified = true
	data.ConsecutiveFailures = 0
	data.LastRequestID = "req-1"
	if err := store.Upsert(context.Background(), data); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	stored, err := store.Get(context.Background(), "asset-unknown")
	if err != nil {
		t.Fatalf("Get() after upsert error = %v", err)
	}
	if !stored.IsVerified || stored.LastRequestID != "req-1" {
		t.Fatalf("unexpected stored data %+v", stored)
	}
}

func TestMemoryActivitySinkFilters(t *testing.T) {
	sink := NewMemoryActivitySink()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	entries := []EngineActivityEntry{
		{Action: "loan.originate", EntityID: "loan-1", Status: EngineActivityStatusOK, CreatedAt: base},
		{Action: "loan.repay", EntityID: "loan-1", Status: EngineActivityStatusError, CreatedAt: base.Add(time.Minute)},
		{Action: "asset.redeem", EntityID: "asset-1", Status: EngineActivityStatusOK, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, entry := range entries {
		if err := sink.Record(context.Background(), entry); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	byEntity, err := sink.List(context.Background(), ActivityFilter{EntityID: "loan-1"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(byEntity) != 2 {
		t.Fatalf("entity filter returned %d entries, want 2", len(byEntity))
	}

	byStatus, err := sink.List(context.Background(), ActivityFilter{Status: EngineActivityStatusError})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].Action != "loan.repay" {
		t.Fatalf("unexpected status filter result %+v", byStatus)
	}

	from := base.Add(30 * time.Second)
	windowed, err := sink.List(context.Background(), ActivityFilter{From: &from, Limit: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(windowed) != 1 || windowed[0].Action != "loan.repay" {
		t.Fatalf("unexpected windowed result %+v", windowed)
	}
}

func TestActivityRecordedForCommands(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	sink := NewMemoryActivitySink()
	svc := newTestService(t, lendingGateway(20000), WithActivitySink(sink), WithClock(testClock(now)))

	if _, err := svc.OriginateLoan(context.Background(), OriginateLoanRequest{
		Borrower:        "0xborrower",
		Collateral:      TokenRef{Contract: "0xdeed", TokenID: 9},
		Principal:       MustAmount(100),
		InterestRateBps: 500,
		Duration:        time.Hour,
	}); err != nil {
		t.Fatalf("OriginateLoan() error = %v", err)
	}

	recorded, err := sink.List(context.Background(), ActivityFilter{Action: "loan.originate"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recorded) != 1 || recorded[0].Status != EngineActivityStatusOK {
		t.Fatalf("unexpected activity %+v", recorded)
	}
}
