package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	ledgerGateway     LedgerGateway
	entityLocker      EntityLocker
	loanStore         LoanStore
	assetStore        AssetStore
	requestStore      VerificationRequestStore
	reserveStore      ReserveDataStore
	activitySink      ActivitySink
	clock             Clock
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithLedgerGateway(gateway LedgerGateway) Option {
	return func(b *serviceBuilder) {
		b.ledgerGateway = gateway
	}
}

func WithEntityLocker(locker EntityLocker) Option {
	return func(b *serviceBuilder) {
		b.entityLocker = locker
	}
}

func WithLoanStore(store LoanStore) Option {
	return func(b *serviceBuilder) {
		b.loanStore = store
	}
}

func WithAssetStore(store AssetStore) Option {
	return func(b *serviceBuilder) {
		b.assetStore = store
	}
}

func WithVerificationRequestStore(store VerificationRequestStore) Option {
	return func(b *serviceBuilder) {
		b.requestStore = store
	}
}

func WithReserveDataStore(store ReserveDataStore) Option {
	return func(b *serviceBuilder) {
		b.reserveStore = store
	}
}

func WithActivitySink(sink ActivitySink) Option {
	return func(b *serviceBuilder) {
		b.activitySink = sink
	}
}

func WithClock(clock Clock) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("engine", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return engineErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(string(cfg.UsageMode)) != "" {
		layer["usage_mode"] = string(cfg.UsageMode)
	}

	verification := map[string]any{}
	if includeZero || cfg.Verification.FailureThreshold > 0 {
		verification["failure_threshold"] = cfg.Verification.FailureThreshold
	}
	if includeZero || cfg.Verification.RequestTimeout > 0 {
		verification["request_timeout"] = cfg.Verification.RequestTimeout
	}
	if includeZero || cfg.Verification.SweepInterval > 0 {
		verification["sweep_interval"] = cfg.Verification.SweepInterval
	}
	if len(verification) > 0 {
		layer["verification"] = verification
	}

	lending := map[string]any{}
	if includeZero || cfg.Lending.LiquidationThresholdMilli > 0 {
		lending["liquidation_threshold_milli"] = cfg.Lending.LiquidationThresholdMilli
	}
	if includeZero || cfg.Lending.MaxLTVBps > 0 {
		lending["max_ltv_bps"] = cfg.Lending.MaxLTVBps
	}
	if includeZero || cfg.Lending.TargetLTVBps > 0 {
		lending["target_ltv_bps"] = cfg.Lending.TargetLTVBps
	}
	if len(lending) > 0 {
		layer["lending"] = lending
	}

	ledger := map[string]any{}
	if includeZero || cfg.Ledger.SubmitConcurrency > 0 {
		ledger["submit_concurrency"] = cfg.Ledger.SubmitConcurrency
	}
	if includeZero || cfg.Ledger.CallTimeout > 0 {
		ledger["call_timeout"] = cfg.Ledger.CallTimeout
	}
	if len(ledger) > 0 {
		layer["ledger"] = ledger
	}

	return layer
}
