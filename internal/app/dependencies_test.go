package app

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/metrics"
	"github.com/vladislavdragonenkov/stockd/internal/service/inventory"
)

func newMemoryService(t *testing.T, cfg Config) (*runtimeDependencies, *inventory.Service) {
	t.Helper()
	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })
	return deps, newInventoryService(cfg, deps, metrics.NewInventoryMetrics(), log.WithField("test", t.Name()))
}

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	require.NoError(t, err)
	assert.Equal(t, StorageDriverMemory, deps.driver)
	assert.NotNil(t, deps.store)
	assert.NotNil(t, deps.outbox)
	assert.NoError(t, deps.store.Ping(context.Background()))
	assert.NoError(t, deps.Close())
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	assert.Error(t, err)
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	assert.ErrorContains(t, err, "unsupported storage driver")
}

func TestRuntimeDependencies_NilClose(t *testing.T) {
	var deps *runtimeDependencies
	assert.NoError(t, deps.Close())
}

func TestSeedProducts_Memory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = []SeedProduct{{ID: "p-1", Quantity: 12}, {ID: "p-2", Quantity: 0}}
	deps, svc := newMemoryService(t, cfg)
	ctx := context.Background()

	require.NoError(t, seedProducts(ctx, cfg, deps.driver, svc, log.WithField("test", "seed")))

	products, err := svc.ListProducts(ctx, domain.Page{})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.EqualValues(t, 12, products[0].StockQuantity)
	assert.EqualValues(t, 0, products[1].StockQuantity)

	history, err := svc.History(ctx, "p-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.MovementAddition, history[0].Type)
	assert.EqualValues(t, 12, history[0].Quantity)
	assert.Equal(t, seedActorID, history[0].ActorID)

	empty, err := svc.History(ctx, "p-2", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSeedProducts_IgnoredForPostgres(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = []SeedProduct{{ID: "p-1", Quantity: 1}}
	_, svc := newMemoryService(t, cfg)

	require.NoError(t, seedProducts(context.Background(), cfg, StorageDriverPostgres, svc, log.WithField("test", "seed")))
	products, err := svc.ListProducts(context.Background(), domain.Page{})
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestStartOutboxWorker_DrainsToLogWithoutKafka(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = []SeedProduct{{ID: "p-1", Quantity: 3}}
	cfg.OutboxPollInterval = 5 * time.Millisecond
	deps, svc := newMemoryService(t, cfg)
	require.NoError(t, seedProducts(context.Background(), cfg, deps.driver, svc, log.WithField("test", "seed")))

	stats, err := deps.outbox.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)

	ctx, cancel := context.WithCancel(context.Background())
	done := startOutboxWorker(ctx, cfg, deps, nil, log.WithField("test", "outbox"))

	assert.Eventually(t, func() bool {
		stats, err := deps.outbox.Stats(context.Background())
		return err == nil && stats.PendingCount == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("outbox worker did not stop")
	}
}
