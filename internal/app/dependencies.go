package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/storage/memory"
	"github.com/vladislavdragonenkov/stockd/internal/storage/postgres"
)

// stockStore — общая часть memory- и postgres-хранилищ.
type stockStore interface {
	domain.TxRunner
	Products() domain.ProductReader
	Ledger() domain.LedgerReader
	Catalog() domain.VersionedCollection[domain.Product]
	Ping(ctx context.Context) error
}

// runtimeDependencies содержит хранилище, выбранное конфигурацией.
type runtimeDependencies struct {
	driver string
	store  stockStore
	outbox domain.OutboxRepository
	close  func() error
}

// initRuntimeDependencies открывает хранилище. Для postgres при
// PostgresAutoMigrate применяются встроенные миграции.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			driver: StorageDriverMemory,
			store:  store,
			outbox: store.Outbox(),
			close:  func() error { return nil },
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", cfg.StorageDriver)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		logger.Info("using postgres storage")
		return &runtimeDependencies{
			driver: StorageDriverPostgres,
			store:  store,
			outbox: store.Outbox(),
			close:  store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func (d *runtimeDependencies) Close() error {
	if d == nil || d.close == nil {
		return nil
	}
	return d.close()
}
