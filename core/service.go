package core

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service orchestrates loan and fractionalization lifecycles against the
// ledger and keeps the local records consistent with confirmed ledger
// outcomes. Local state is advisory; the ledger is authoritative.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	ledger            LedgerGateway
	entityLocker      EntityLocker
	loanStore         LoanStore
	assetStore        AssetStore
	requestStore      VerificationRequestStore
	reserveStore      ReserveDataStore
	activitySink      ActivitySink
	correlator        *Correlator
	nowFn             Clock
}

type ServiceDependencies struct {
	Logger                   Logger
	LoggerProvider           LoggerProvider
	MetricsRecorder          MetricsRecorder
	ErrorFactory             ErrorFactory
	ErrorMapper              ErrorMapper
	PersistenceClient        any
	RepositoryFactory        any
	ConfigProvider           ConfigProvider
	OptionsResolver          OptionsResolver
	LedgerGateway            LedgerGateway
	EntityLocker             EntityLocker
	LoanStore                LoanStore
	AssetStore               AssetStore
	VerificationRequestStore VerificationRequestStore
	ReserveDataStore         ReserveDataStore
	ActivitySink             ActivitySink
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("engine", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("engine"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.entityLocker == nil {
		builder.entityLocker = NewMemoryEntityLocker()
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.repositoryFactory != nil && storesMissing(builder) {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				adoptStores(&builder, storeProvider)
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			adoptStores(&builder, storeProvider)
		}
	}
	if builder.activitySink == nil && builder.repositoryFactory != nil {
		if provider, ok := builder.repositoryFactory.(interface{ ActivitySink() ActivitySink }); ok {
			builder.activitySink = provider.ActivitySink()
		}
	}

	if builder.loanStore == nil {
		builder.loanStore = NewMemoryLoanStore()
	}
	if builder.assetStore == nil {
		builder.assetStore = NewMemoryAssetStore()
	}
	if builder.requestStore == nil {
		builder.requestStore = NewMemoryVerificationRequestStore()
	}
	if builder.reserveStore == nil {
		builder.reserveStore = NewMemoryReserveDataStore()
	}
	if builder.activitySink == nil {
		builder.activitySink = NewMemoryActivitySink()
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		ledger:            builder.ledgerGateway,
		entityLocker:      builder.entityLocker,
		loanStore:         builder.loanStore,
		assetStore:        builder.assetStore,
		requestStore:      builder.requestStore,
		reserveStore:      builder.reserveStore,
		activitySink:      builder.activitySink,
		correlator:        NewCorrelator(builder.requestStore, logger, builder.clock),
		nowFn:             builder.clock,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func storesMissing(builder serviceBuilder) bool {
	return builder.loanStore == nil ||
		builder.assetStore == nil ||
		builder.requestStore == nil ||
		builder.reserveStore == nil
}

func adoptStores(builder *serviceBuilder, provider StoreProvider) {
	if builder.loanStore == nil {
		builder.loanStore = provider.LoanStore()
	}
	if builder.assetStore == nil {
		builder.assetStore = provider.AssetStore()
	}
	if builder.requestStore == nil {
		builder.requestStore = provider.VerificationRequestStore()
	}
	if builder.reserveStore == nil {
		builder.reserveStore = provider.ReserveDataStore()
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:                   s.logger,
		LoggerProvider:           s.loggerProvider,
		MetricsRecorder:          s.metricsRecorder,
		ErrorFactory:             s.errorFactory,
		ErrorMapper:              s.errorMapper,
		PersistenceClient:        s.persistenceClient,
		RepositoryFactory:        s.repositoryFactory,
		ConfigProvider:           s.configProvider,
		OptionsResolver:          s.optionsResolver,
		LedgerGateway:            s.ledger,
		EntityLocker:             s.entityLocker,
		LoanStore:                s.loanStore,
		AssetStore:               s.assetStore,
		VerificationRequestStore: s.requestStore,
		ReserveDataStore:         s.reserveStore,
		ActivitySink:             s.activitySink,
	}
}

func (s *Service) Correlator() *Correlator {
	if s == nil {
		return nil
	}
	return s.correlator
}

func (s *Service) now() time.Time {
	if s == nil || s.nowFn == nil {
		return time.Now().UTC()
	}
	return s.nowFn()
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) recordActivity(ctx context.Context, action, entityID string, err error, metadata map[string]any) {
	if s == nil || s.activitySink == nil {
		return
	}
	status := EngineActivityStatusOK
	if err != nil {
		status = EngineActivityStatusError
		metadata = cloneFields(metadata)
		metadata["error"] = err.Error()
	}
	entry := EngineActivityEntry{
		Action:    action,
		EntityID:  entityID,
		Status:    status,
		Metadata:  metadata,
		CreatedAt: s.now(),
	}
	if recordErr := s.activitySink.Record(ctx, entry); recordErr != nil {
		s.logError(ctx, "failed to record activity", map[string]any{
			"action":    action,
			"entity_id": entityID,
			"error":     recordErr.Error(),
		})
	}
}
