package sqlstore

import (
	"fmt"

	"github.com/bagelhq/rwa-engine/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	loanStore                *LoanStore
	assetStore               *AssetStore
	verificationRequestStore *VerificationRequestStore
	reserveDataStore         *ReserveDataStore
	cachedReserveDataStore   *CachedReserveDataStore
	activityStore            *ActivityStore
	callbackDeliveryStore    *CallbackDeliveryStore

	reserveDataCache repositorycache.CacheService
}

type FactoryOption func(*RepositoryFactory)

// WithReserveDataCache fronts reserve snapshot reads with the given cache.
func WithReserveDataCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		if cacheService != nil {
			f.reserveDataCache = cacheService
		}
	}
}

func NewRepositoryFactory(options ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, option := range options {
		if option != nil {
			option(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, options ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(options...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, options ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(options...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.loanStore != nil && f.assetStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) LoanStore() core.LoanStore {
	if f == nil {
		return nil
	}
	return f.loanStore
}

func (f *RepositoryFactory) AssetStore() core.AssetStore {
	if f == nil {
		return nil
	}
	return f.assetStore
}

func (f *RepositoryFactory) VerificationRequestStore() core.VerificationRequestStore {
	if f == nil {
		return nil
	}
	return f.verificationRequestStore
}

func (f *RepositoryFactory) ReserveDataStore() core.ReserveDataStore {
	if f == nil {
		return nil
	}
	if f.cachedReserveDataStore != nil {
		return f.cachedReserveDataStore
	}
	return f.reserveDataStore
}

func (f *RepositoryFactory) ActivitySink() core.ActivitySink {
	if f == nil {
		return nil
	}
	return f.activityStore
}

func (f *RepositoryFactory) CallbackDeliveryStore() *CallbackDeliveryStore {
	if f == nil {
		return nil
	}
	return f.callbackDeliveryStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	loanStore, err := NewLoanStore(f.db)
	if err != nil {
		return err
	}
	f.loanStore = loanStore

	assetStore, err := NewAssetStore(f.db)
	if err != nil {
		return err
	}
	f.assetStore = assetStore

	verificationRequestStore, err := NewVerificationRequestStore(f.db)
	if err != nil {
		return err
	}
	f.verificationRequestStore = verificationRequestStore

	reserveDataStore, err := NewReserveDataStore(f.db)
	if err != nil {
		return err
	}
	f.reserveDataStore = reserveDataStore

	if f.reserveDataCache != nil {
		cached, err := NewCachedReserveDataStore(reserveDataStore, f.reserveDataCache)
		if err != nil {
			return err
		}
		f.cachedReserveDataStore = cached
	}

	activityStore, err := NewActivityStore(f.db)
	if err != nil {
		return err
	}
	f.activityStore = activityStore

	callbackDeliveryStore, err := NewCallbackDeliveryStore(f.db)
	if err != nil {
		return err
	}
	f.callbackDeliveryStore = callbackDeliveryStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var (
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
