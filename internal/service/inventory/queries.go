package inventory

import (
	"context"
	"strings"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxPageLimit        = 1000
)

// ListProducts возвращает товары, упорядоченные по идентификатору. Нулевой
// limit означает страницу максимального размера maxPageLimit.
func (s *Service) ListProducts(ctx context.Context, page domain.Page) ([]domain.Product, error) {
	if page.Limit < 0 || page.Offset < 0 {
		return nil, domain.NewValidationError("page", "limit and offset must be non-negative")
	}
	if page.Limit == 0 || page.Limit > maxPageLimit {
		page.Limit = maxPageLimit
	}
	return s.products.List(ctx, page)
}

// LowStockReport делит товары с остатком не выше порога на заканчивающиеся
// и закончившиеся.
type LowStockReport struct {
	Threshold  int64
	LowStock   []domain.Product
	OutOfStock []domain.Product
}

// LowStock возвращает товары с остатком не выше threshold.
func (s *Service) LowStock(ctx context.Context, threshold int64) (LowStockReport, error) {
	if threshold < 0 {
		return LowStockReport{}, domain.NewValidationError("threshold", "must be non-negative")
	}

	products, err := s.products.ListLowStock(ctx, threshold)
	if err != nil {
		return LowStockReport{}, err
	}

	report := LowStockReport{
		Threshold:  threshold,
		LowStock:   make([]domain.Product, 0),
		OutOfStock: make([]domain.Product, 0),
	}
	for _, p := range products {
		if p.StockQuantity == 0 {
			report.OutOfStock = append(report.OutOfStock, p)
			continue
		}
		report.LowStock = append(report.LowStock, p)
	}
	return report, nil
}

// History возвращает журнал движений товара, начиная с последних.
func (s *Service) History(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, domain.NewValidationError("productId", "is required")
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	if _, err := s.products.Get(ctx, productID); err != nil {
		return nil, err
	}
	return s.ledger.ListByProduct(ctx, productID, limit)
}
