package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/service/inventory"
)

const seedActorID = "seed"

// seedProducts создаёт товары и выставляет начальный остаток через обычную
// запись журнала. К postgres не применяется.
func seedProducts(ctx context.Context, cfg Config, driver string, svc *inventory.Service, logger *log.Entry) error {
	if len(cfg.Seed) == 0 {
		return nil
	}
	if driver != StorageDriverMemory {
		logger.WithField("driver", driver).Warn("seed is ignored for persistent storage")
		return nil
	}

	for _, seed := range cfg.Seed {
		if _, err := svc.SyncProduct(ctx, inventory.ProductInfo{ID: seed.ID, Name: seed.ID}); err != nil {
			return fmt.Errorf("seed product %s: %w", seed.ID, err)
		}
		if seed.Quantity == 0 {
			continue
		}
		if _, err := svc.SetStock(ctx, seed.ID, seed.Quantity, inventory.MutationOptions{
			Reason:  "initial stock",
			ActorID: seedActorID,
		}); err != nil {
			return fmt.Errorf("seed stock %s: %w", seed.ID, err)
		}
	}

	logger.WithField("products", len(cfg.Seed)).Info("seeded initial stock")
	return nil
}
