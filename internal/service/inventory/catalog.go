package inventory

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/service/txn"
)

// ProductInfo — карточка товара из внешнего каталога.
type ProductInfo struct {
	ID   string
	Name string
	SKU  string
}

// SyncProduct создаёт или обновляет карточку товара. Остаток каталог не
// трогает: новый товар появляется с нулевым остатком.
func (s *Service) SyncProduct(ctx context.Context, info ProductInfo) (domain.Product, error) {
	info.ID = strings.TrimSpace(info.ID)
	if info.ID == "" {
		return domain.Product{}, domain.NewValidationError("id", "is required")
	}

	product, err := txn.UpdateWithVersioning(ctx, s.orch, s.occOptions("sync product"), s.catalog, info.ID,
		func(current domain.Product, exists bool) (domain.Product, error) {
			if !exists {
				current = domain.Product{ID: info.ID}
			}
			current.Name = info.Name
			current.SKU = info.SKU
			return current, current.Validate()
		})
	if err != nil {
		s.fail(err, "sync product", log.Fields{"product_id": info.ID})
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"version":    product.Version,
	}).Debug("product synced")
	return product, nil
}
