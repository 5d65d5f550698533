package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/bagelhq/rwa-engine/core"
	enginemigrations "github.com/bagelhq/rwa-engine/migrations"
	"github.com/bagelhq/rwa-engine/oracle"
	sqlstore "github.com/bagelhq/rwa-engine/store/sql"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "rwa-engine-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"rwa_loans",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "rwa_loans" {
		t.Fatalf("expected rwa_loans table, got %q", tableName)
	}
}

func TestLoanStore_RoundTripAndVersioning(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.LoanStore()
	if store == nil {
		t.Fatalf("expected loan store from factory")
	}

	start := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	created, err := store.Create(ctx, core.Loan{
		ID:                "loan-1",
		Borrower:          "0xborroweraa",
		Collateral:        core.TokenRef{Contract: "0xdeednft", TokenID: 7},
		Principal:         amount(t, "10000"),
		InterestRateBps:   1200,
		Duration:          30 * 24 * time.Hour,
		StartTime:         start,
		EndTime:           start.Add(30 * 24 * time.Hour),
		Status:            core.LoanStatusActive,
		AmountRepaid:      amount(t, "0"),
		TotalRepaymentDue: amount(t, "11200"),
	})
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected created loan version=1, got %d", created.Version)
	}

	fetched, err := store.Get(ctx, "loan-1")
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	if fetched.Principal.String() != "10000" {
		t.Fatalf("expected principal 10000, got %s", fetched.Principal)
	}
	if fetched.TotalRepaymentDue.String() != "11200" {
		t.Fatalf("expected total due 11200, got %s", fetched.TotalRepaymentDue)
	}
	if fetched.Duration != 30*24*time.Hour {
		t.Fatalf("expected duration to round-trip, got %s", fetched.Duration)
	}
	if fetched.Collateral.Contract != "0xdeednft" || fetched.Collateral.TokenID != 7 {
		t.Fatalf("expected collateral to round-trip, got %+v", fetched.Collateral)
	}

	fetched.AmountRepaid = amount(t, "1200")
	updated, err := store.Update(ctx, fetched, fetched.Version)
	if err != nil {
		t.Fatalf("update loan: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected updated loan version=2, got %d", updated.Version)
	}

	if _, err := store.Update(ctx, fetched, 1); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected version conflict for stale update, got %v", err)
	}

	if _, err := store.Get(ctx, "loan-missing"); !errors.Is(err, core.ErrLoanNotFound) {
		t.Fatalf("expected loan not found, got %v", err)
	}
}

func TestLoanStore_FindActiveByCollateral(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.LoanStore()

	collateral := core.TokenRef{Contract: "0xdeednft", TokenID: 9}
	seedLoan(t, store, "loan-active", collateral, core.LoanStatusActive)
	seedLoan(t, store, "loan-repaid", collateral, core.LoanStatusRepaid)
	seedLoan(t, store, "loan-other", core.TokenRef{Contract: "0xdeednft", TokenID: 10}, core.LoanStatusActive)

	active, err := store.FindActiveByCollateral(ctx, core.TokenRef{Contract: "  0xDeedNFT ", TokenID: 9})
	if err != nil {
		t.Fatalf("find active by collateral: %v", err)
	}
	if len(active) != 1 || active[0].ID != "loan-active" {
		t.Fatalf("expected only loan-active, got %+v", active)
	}

	activeAll, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(activeAll) != 2 {
		t.Fatalf("expected 2 active loans, got %d", len(activeAll))
	}
}

func TestAssetStore_LookupByFractionalContract(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.AssetStore()
	if store == nil {
		t.Fatalf("expected asset store from factory")
	}

	source := core.TokenRef{Contract: "0xdeednft", TokenID: 21}
	created, err := store.Create(ctx, core.FractionalizedAsset{
		ID:                 core.DeriveAssetID(source),
		Source:             source,
		OriginalOwner:      "0xowneraa",
		FractionalSupply:   amount(t, "1000"),
		CirculatingSupply:  amount(t, "1000"),
		ReservePrice:       amount(t, "50000"),
		FractionalContract: "0xfractoken",
		CustodianEndpoint:  "https://custodian.example.com/por",
		Status:             core.AssetStatusActive,
	})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected created asset version=1, got %d", created.Version)
	}

	byContract, err := store.GetByFractionalContract(ctx, "  0xFracToken ")
	if err != nil {
		t.Fatalf("get by fractional contract: %v", err)
	}
	if byContract.ID != created.ID {
		t.Fatalf("expected asset %q, got %q", created.ID, byContract.ID)
	}
	if byContract.Source != source {
		t.Fatalf("expected source token to round-trip, got %+v", byContract.Source)
	}

	if _, err := store.GetByFractionalContract(ctx, "0xunknown"); !errors.Is(err, core.ErrAssetNotFound) {
		t.Fatalf("expected asset not found, got %v", err)
	}

	byContract.Status = core.AssetStatusUnderReview
	if _, err := store.Update(ctx, byContract, byContract.Version); err != nil {
		t.Fatalf("update asset: %v", err)
	}
	if _, err := store.Update(ctx, byContract, byContract.Version); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected version conflict for stale asset update, got %v", err)
	}
}

func TestVerificationRequestStore_PendingQueries(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.VerificationRequestStore()
	if store == nil {
		t.Fatalf("expected verification request store from factory")
	}

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	seedRequest(t, store, "req-pending", "asset-1", core.RequestTypeReserveVerification, now, now.Add(time.Hour))
	seedRequest(t, store, "req-other-type", "asset-1", core.RequestTypeMetadataUpdate, now, now.Add(time.Hour))
	seedRequest(t, store, "req-other-asset", "asset-2", core.RequestTypeReserveVerification, now, now.Add(5*time.Hour))

	pending, found, err := store.FindPending(ctx, "asset-1", core.RequestTypeReserveVerification)
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if !found || pending.RequestID != "req-pending" {
		t.Fatalf("expected req-pending, got found=%v request=%+v", found, pending)
	}

	if transitioned, err := store.MarkResolved(ctx, "req-pending", core.RequestStatusFailed, "custodian reported shortfall"); err != nil || !transitioned {
		t.Fatalf("mark resolved: transitioned=%v err=%v", transitioned, err)
	}
	resolved, err := store.Get(ctx, "req-pending")
	if err != nil {
		t.Fatalf("get resolved request: %v", err)
	}
	if resolved.Status != core.RequestStatusFailed {
		t.Fatalf("expected failed status, got %q", resolved.Status)
	}
	if resolved.Reason != "custodian reported shortfall" {
		t.Fatalf("expected failure reason to persist, got %q", resolved.Reason)
	}

	if _, found, err := store.FindPending(ctx, "asset-1", core.RequestTypeReserveVerification); err != nil || found {
		t.Fatalf("expected no pending request after resolution, found=%v err=%v", found, err)
	}

	expired, err := store.ListPendingExpiredBefore(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("list pending expired: %v", err)
	}
	if len(expired) != 1 || expired[0].RequestID != "req-other-type" {
		t.Fatalf("expected only req-other-type to be expired, got %+v", expired)
	}

	if transitioned, err := store.MarkResolved(ctx, "req-pending", core.RequestStatusExpired, ""); err != nil || transitioned {
		t.Fatalf("expected resolved request to stay put, transitioned=%v err=%v", transitioned, err)
	}
	if _, err := store.MarkResolved(ctx, "req-missing", core.RequestStatusExpired, ""); err == nil {
		t.Fatalf("expected error for unknown request id")
	}
}

func TestReserveDataStore_UpsertAndZeroValueRead(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.ReserveDataStore()
	if store == nil {
		t.Fatalf("expected reserve data store from factory")
	}

	missing, err := store.Get(ctx, "asset-unknown")
	if err != nil {
		t.Fatalf("get missing reserve data: %v", err)
	}
	if missing.AssetID != "asset-unknown" || missing.IsVerified || missing.ConsecutiveFailures != 0 {
		t.Fatalf("expected zero-valued snapshot for unknown asset, got %+v", missing)
	}

	verifiedAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	if err := store.Upsert(ctx, core.ReserveData{
		AssetID:          "asset-1",
		IsVerified:       true,
		LastVerification: verifiedAt,
		LastRequestID:    "req-1",
	}); err != nil {
		t.Fatalf("upsert reserve data: %v", err)
	}

	if err := store.Upsert(ctx, core.ReserveData{
		AssetID:             "asset-1",
		IsVerified:          false,
		ConsecutiveFailures: 2,
		LastVerification:    verifiedAt,
		LastRequestID:       "req-2",
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	data, err := store.Get(ctx, "asset-1")
	if err != nil {
		t.Fatalf("get reserve data: %v", err)
	}
	if data.IsVerified {
		t.Fatalf("expected second upsert to win")
	}
	if data.ConsecutiveFailures != 2 {
		t.Fatalf("expected 2 consecutive failures, got %d", data.ConsecutiveFailures)
	}
	if data.LastRequestID != "req-2" {
		t.Fatalf("expected last request id req-2, got %q", data.LastRequestID)
	}
}

func TestActivityStore_RecordAndFilter(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	sink := factory.ActivitySink()
	if sink == nil {
		t.Fatalf("expected activity sink from factory")
	}

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	entries := []core.EngineActivityEntry{
		{Action: "loan.originate", EntityID: "loan-1", Status: core.EngineActivityStatusOK, CreatedAt: base},
		{Action: "loan.repay", EntityID: "loan-1", Status: core.EngineActivityStatusError, CreatedAt: base.Add(time.Minute)},
		{Action: "asset.fractionalize", EntityID: "asset-1", Status: core.EngineActivityStatusOK, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, entry := range entries {
		if err := sink.Record(ctx, entry); err != nil {
			t.Fatalf("record %s: %v", entry.Action, err)
		}
	}

	byEntity, err := sink.List(ctx, core.ActivityFilter{EntityID: "loan-1"})
	if err != nil {
		t.Fatalf("list by entity: %v", err)
	}
	if len(byEntity) != 2 {
		t.Fatalf("expected 2 entries for loan-1, got %d", len(byEntity))
	}
	if byEntity[0].Action != "loan.repay" {
		t.Fatalf("expected newest entry first, got %q", byEntity[0].Action)
	}

	failures, err := sink.List(ctx, core.ActivityFilter{Status: core.EngineActivityStatusError})
	if err != nil {
		t.Fatalf("list failures: %v", err)
	}
	if len(failures) != 1 || failures[0].Action != "loan.repay" {
		t.Fatalf("expected the failed repay entry, got %+v", failures)
	}

	from := base.Add(90 * time.Second)
	recent, err := sink.List(ctx, core.ActivityFilter{From: &from, Limit: 10})
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Action != "asset.fractionalize" {
		t.Fatalf("expected only the fractionalize entry, got %+v", recent)
	}
}

func TestCallbackDeliveryStore_ClaimDedupeAndRetry(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.CallbackDeliveryStore()
	if store == nil {
		t.Fatalf("expected callback delivery store from factory")
	}

	payload := []byte(`{"request_id":"req-1"}`)
	first, claimed, err := store.Claim(ctx, "custodian", "delivery-1", payload, time.Minute)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !claimed {
		t.Fatalf("expected first claim to succeed")
	}
	if first.Attempts != 1 {
		t.Fatalf("expected attempts=1 on first claim, got %d", first.Attempts)
	}

	_, claimed, err = store.Claim(ctx, "custodian", "delivery-1", payload, time.Minute)
	if err != nil {
		t.Fatalf("duplicate claim: %v", err)
	}
	if claimed {
		t.Fatalf("expected duplicate claim to lose while lease is held")
	}

	if _, claimed, err := store.Claim(ctx, "other-source", "delivery-1", payload, time.Minute); err != nil || !claimed {
		t.Fatalf("expected claim from another source to succeed, claimed=%v err=%v", claimed, err)
	}

	if err := store.Complete(ctx, first.ClaimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	record, err := store.Get(ctx, "custodian", "delivery-1")
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if record.Status != oracle.DeliveryStatusProcessed {
		t.Fatalf("expected processed status, got %q", record.Status)
	}
	if record.NextAttemptAt != nil {
		t.Fatalf("expected processed delivery to have no next attempt")
	}

	if _, claimed, err := store.Claim(ctx, "custodian", "delivery-1", payload, time.Minute); err != nil || claimed {
		t.Fatalf("expected processed delivery to stay claimed, claimed=%v err=%v", claimed, err)
	}

	if err := store.Complete(ctx, "claim-unknown"); err == nil {
		t.Fatalf("expected completing an unknown claim to fail")
	}
}

func TestCallbackDeliveryStore_FailMovesToDeadAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.CallbackDeliveryStore()

	first, claimed, err := store.Claim(ctx, "custodian", "delivery-2", nil, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}

	retryAt := time.Now().UTC().Add(-time.Second)
	if err := store.Fail(ctx, first.ClaimID, errors.New("handler unavailable"), retryAt, 2); err != nil {
		t.Fatalf("first fail: %v", err)
	}
	record, err := store.Get(ctx, "custodian", "delivery-2")
	if err != nil {
		t.Fatalf("get after first fail: %v", err)
	}
	if record.Status != oracle.DeliveryStatusRetryReady {
		t.Fatalf("expected retry_ready after first failure, got %q", record.Status)
	}

	second, claimed, err := store.Claim(ctx, "custodian", "delivery-2", nil, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("reclaim after retry window: claimed=%v err=%v", claimed, err)
	}
	if second.Attempts != 2 {
		t.Fatalf("expected attempts=2 after reclaim, got %d", second.Attempts)
	}
	if second.ClaimID == first.ClaimID {
		t.Fatalf("expected claim id to rotate on reclaim")
	}

	if err := store.Fail(ctx, second.ClaimID, errors.New("handler unavailable"), retryAt, 2); err != nil {
		t.Fatalf("second fail: %v", err)
	}
	record, err = store.Get(ctx, "custodian", "delivery-2")
	if err != nil {
		t.Fatalf("get after second fail: %v", err)
	}
	if record.Status != oracle.DeliveryStatusDead {
		t.Fatalf("expected dead status at max attempts, got %q", record.Status)
	}

	if _, claimed, err := store.Claim(ctx, "custodian", "delivery-2", nil, time.Minute); err != nil || claimed {
		t.Fatalf("expected dead delivery to stay unclaimable, claimed=%v err=%v", claimed, err)
	}

	if err := store.Fail(ctx, first.ClaimID, errors.New("stale"), retryAt, 2); err == nil {
		t.Fatalf("expected fail with stale claim id to error")
	}
}

func seedLoan(t *testing.T, store core.LoanStore, id string, collateral core.TokenRef, status core.LoanStatus) {
	t.Helper()
	start := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	if _, err := store.Create(context.Background(), core.Loan{
		ID:                id,
		Borrower:          "0xborroweraa",
		Collateral:        collateral,
		Principal:         amount(t, "10000"),
		InterestRateBps:   1200,
		Duration:          30 * 24 * time.Hour,
		StartTime:         start,
		EndTime:           start.Add(30 * 24 * time.Hour),
		Status:            status,
		AmountRepaid:      amount(t, "0"),
		TotalRepaymentDue: amount(t, "11200"),
	}); err != nil {
		t.Fatalf("seed loan %s: %v", id, err)
	}
}

func seedRequest(
	t *testing.T,
	store core.VerificationRequestStore,
	id string,
	assetID string,
	requestType core.RequestType,
	issuedAt time.Time,
	expiresAt time.Time,
) {
	t.Helper()
	if _, err := store.Append(context.Background(), core.ReserveVerificationRequest{
		RequestID: id,
		AssetID:   assetID,
		Type:      requestType,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Status:    core.RequestStatusPending,
	}); err != nil {
		t.Fatalf("seed verification request %s: %v", id, err)
	}
}

func amount(t *testing.T, raw string) core.Amount {
	t.Helper()
	value, err := core.ParseAmount(raw)
	if err != nil {
		t.Fatalf("parse amount %q: %v", raw, err)
	}
	return value
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:rwa-engine-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = enginemigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != enginemigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, enginemigrations.WithValidationTargets(enginemigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
