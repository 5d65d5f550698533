package core

import (
	"context"
	"testing"
	"time"
)

func TestNewServiceAppliesDefaults(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "rwa-engine" {
		t.Fatalf("service name = %q, want default", cfg.ServiceName)
	}
	if cfg.Verification.FailureThreshold != 3 {
		t.Fatalf("failure threshold = %d, want 3", cfg.Verification.FailureThreshold)
	}
	if cfg.Lending.LiquidationThresholdMilli != 1200 {
		t.Fatalf("liquidation threshold = %d, want 1200", cfg.Lending.LiquidationThresholdMilli)
	}

	deps := svc.Dependencies()
	if deps.LoanStore == nil || deps.AssetStore == nil || deps.VerificationRequestStore == nil || deps.ReserveDataStore == nil {
		t.Fatalf("expected memory stores to back an unconfigured service")
	}
	if deps.ActivitySink == nil {
		t.Fatalf("expected a default activity sink")
	}
	if deps.EntityLocker == nil {
		t.Fatalf("expected a default entity locker")
	}
}

func TestNewServiceRuntimeConfigOverridesDefaults(t *testing.T) {
	svc, err := NewService(Config{
		Lending: LendingConfig{MaxLTVBps: 6000, TargetLTVBps: 4000},
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	cfg := svc.Config()
	if cfg.Lending.MaxLTVBps != 6000 {
		t.Fatalf("max ltv = %d, want runtime override 6000", cfg.Lending.MaxLTVBps)
	}
	if cfg.Lending.TargetLTVBps != 4000 {
		t.Fatalf("target ltv = %d, want runtime override 4000", cfg.Lending.TargetLTVBps)
	}
	if cfg.Verification.RequestTimeout != time.Hour {
		t.Fatalf("request timeout = %v, want untouched default", cfg.Verification.RequestTimeout)
	}
}

type staticConfigProvider struct {
	loaded Config
}

func (p staticConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.loaded, nil
}

func TestNewServiceRuntimeWinsOverLoadedConfig(t *testing.T) {
	loaded := DefaultConfig()
	loaded.Verification.FailureThreshold = 5
	loaded.Lending.MaxLTVBps = 9000

	svc, err := NewService(
		Config{Lending: LendingConfig{MaxLTVBps: 6500}},
		WithConfigProvider(staticConfigProvider{loaded: loaded}),
	)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	cfg := svc.Config()
	if cfg.Verification.FailureThreshold != 5 {
		t.Fatalf("failure threshold = %d, want loaded value 5", cfg.Verification.FailureThreshold)
	}
	if cfg.Lending.MaxLTVBps != 6500 {
		t.Fatalf("max ltv = %d, want runtime value 6500", cfg.Lending.MaxLTVBps)
	}
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	if _, err := NewService(Config{UsageMode: UsageMode("sideways")}); err == nil {
		t.Fatalf("expected validation failure for bad usage mode")
	}
}

type stubStoreProvider struct {
	loans    LoanStore
	assets   AssetStore
	requests VerificationRequestStore
	reserves ReserveDataStore
	activity ActivitySink
}

func (p stubStoreProvider) LoanStore() LoanStore                               { return p.loans }
func (p stubStoreProvider) AssetStore() AssetStore                             { return p.assets }
func (p stubStoreProvider) VerificationRequestStore() VerificationRequestStore { return p.requests }
func (p stubStoreProvider) ReserveDataStore() ReserveDataStore                 { return p.reserves }
func (p stubStoreProvider) ActivitySink() ActivitySink                         { return p.activity }

type stubStoreFactory struct {
	provider StoreProvider
	client   any
}

func (f *stubStoreFactory) BuildStores(persistenceClient any) (StoreProvider, error) {
	f.client = persistenceClient
	return f.provider, nil
}

func TestNewServiceAdoptsFactoryStores(t *testing.T) {
	loans := NewMemoryLoanStore()
	provider := stubStoreProvider{
		loans:    loans,
		assets:   NewMemoryAssetStore(),
		requests: NewMemoryVerificationRequestStore(),
		reserves: NewMemoryReserveDataStore(),
		activity: NewMemoryActivitySink(),
	}
	factory := &stubStoreFactory{provider: provider}
	client := struct{ name string }{name: "pretend-client"}

	svc, err := NewService(Config{},
		WithPersistenceClient(client),
		WithRepositoryFactory(factory),
	)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if factory.client != client {
		t.Fatalf("factory received client %v, want %v", factory.client, client)
	}
	deps := svc.Dependencies()
	if deps.LoanStore != LoanStore(loans) {
		t.Fatalf("service must adopt the factory loan store")
	}
}

func TestNewServiceAdoptsProviderActivitySink(t *testing.T) {
	sink := NewMemoryActivitySink()
	provider := stubStoreProvider{
		loans:    NewMemoryLoanStore(),
		assets:   NewMemoryAssetStore(),
		requests: NewMemoryVerificationRequestStore(),
		reserves: NewMemoryReserveDataStore(),
		activity: sink,
	}

	svc, err := NewService(Config{}, WithRepositoryFactory(provider))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if svc.Dependencies().ActivitySink != ActivitySink(sink) {
		t.Fatalf("service must adopt the provider activity sink")
	}
}

func TestNewServiceExplicitStoresWinOverFactory(t *testing.T) {
	explicit := NewMemoryLoanStore()
	provider := stubStoreProvider{
		loans:    NewMemoryLoanStore(),
		assets:   NewMemoryAssetStore(),
		requests: NewMemoryVerificationRequestStore(),
		reserves: NewMemoryReserveDataStore(),
	}

	svc, err := NewService(Config{},
		WithRepositoryFactory(provider),
		WithLoanStore(explicit),
	)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if svc.Dependencies().LoanStore != LoanStore(explicit) {
		t.Fatalf("explicit store must win over factory store")
	}
}

func TestRunSweepOnceCountsWork(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	loans := NewMemoryLoanStore()
	requests := NewMemoryVerificationRequestStore()

	if _, err := loans.Create(context.Background(), Loan{
		ID: "loan-overdue", Borrower: "0xa", Collateral: TokenRef{Contract: "0xdeed", TokenID: 1},
		Principal: MustAmount(100), Duration: time.Hour, StartTime: start, EndTime: start.Add(time.Hour),
		Status: LoanStatusActive, AmountRepaid: AmountZero(),
	}); err != nil {
		t.Fatalf("seed loan: %v", err)
	}
	if _, err := requests.Append(context.Background(), ReserveVerificationRequest{
		RequestID: "req-old",
		AssetID:   "asset-1",
		Type:      RequestTypeReserveVerification,
		IssuedAt:  start,
		ExpiresAt: start.Add(time.Hour),
		Status:    RequestStatusPending,
	}); err != nil {
		t.Fatalf("seed request: %v", err)
	}

	now := start.Add(3 * time.Hour)
	svc := newTestService(t, stubLedgerGateway{},
		WithLoanStore(loans),
		WithVerificationRequestStore(requests),
		WithClock(testClock(now)),
	)

	result, err := svc.RunSweepOnce(context.Background())
	if err != nil {
		t.Fatalf("RunSweepOnce() error = %v", err)
	}
	if result.ExpiredRequests != 1 {
		t.Fatalf("expired requests = %d, want 1", result.ExpiredRequests)
	}
	if result.DefaultedLoans != 1 {
		t.Fatalf("defaulted loans = %d, want 1", result.DefaultedLoans)
	}
}
