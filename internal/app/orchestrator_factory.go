package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/metrics"
	"github.com/vladislavdragonenkov/stockd/internal/service/inventory"
	"github.com/vladislavdragonenkov/stockd/internal/service/txn"
)

// newInventoryService собирает оркестратор транзакций и сервис остатков
// поверх выбранного хранилища.
func newInventoryService(cfg Config, deps *runtimeDependencies, m *metrics.InventoryMetrics, logger *log.Entry) *inventory.Service {
	orch := txn.NewOrchestrator(deps.store,
		txn.WithLogger(logger.WithField("component", "txn")),
		txn.WithMetrics(m),
	)

	return inventory.NewService(orch, deps.store.Products(), deps.store.Ledger(), deps.store.Catalog(),
		inventory.WithLogger(logger.WithField("component", "inventory")),
		inventory.WithMetrics(m),
		inventory.WithRetry(cfg.TxMaxRetries, cfg.TxInitialDelay),
		inventory.WithOptimisticRetry(cfg.OCCMaxRetries, cfg.OCCInitialDelay),
	)
}
