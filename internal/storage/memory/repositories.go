package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrConcurrencyConflict)
}

// productReader читает зафиксированное состояние товаров.
type productReader struct {
	store *Store
}

func (r productReader) Get(_ context.Context, id string) (domain.Product, error) {
	p, ok := r.store.getProduct(id)
	if !ok {
		return domain.Product{}, domain.ProductNotFound(id)
	}
	return p, nil
}

func (r productReader) List(_ context.Context, page domain.Page) ([]domain.Product, error) {
	products := r.store.snapshotProducts()
	sortProducts(products)
	return paginate(products, page), nil
}

func (r productReader) ListLowStock(_ context.Context, threshold int64) ([]domain.Product, error) {
	return filterLowStock(r.store.snapshotProducts(), threshold), nil
}

// ledgerReader читает зафиксированный журнал.
type ledgerReader struct {
	store *Store
}

func (r ledgerReader) ListByProduct(_ context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	entries := r.store.snapshotLedger(func(e *domain.LedgerEntry) bool { return e.ProductID == productID })
	reverse(entries)
	return limitEntries(entries, limit), nil
}

func (r ledgerReader) ListByOrder(_ context.Context, orderID string) ([]domain.LedgerEntry, error) {
	return r.store.snapshotLedger(func(e *domain.LedgerEntry) bool { return e.OrderID == orderID }), nil
}

func (r ledgerReader) ListExpiredReservations(_ context.Context, now time.Time, limit int) ([]domain.LedgerEntry, error) {
	entries := r.store.snapshotLedger(func(e *domain.LedgerEntry) bool { return e.IsExpired(now) })
	sortByExpiry(entries)
	return limitEntries(entries, limit), nil
}

// catalog — карточки товаров с оптимистичной блокировкой по версии.
// Остаток через каталог не меняется: вставка создаёт товар с нулевым остатком,
// обновление сохраняет текущий остаток.
type catalog struct {
	store *Store
}

func (c catalog) Load(_ context.Context, id string) (domain.Product, int64, error) {
	p, ok := c.store.getProduct(id)
	if !ok {
		return domain.Product{}, 0, domain.ProductNotFound(id)
	}
	return p, p.Version, nil
}

func (c catalog) UpdateIfVersion(_ context.Context, id string, version int64, doc domain.Product) (domain.Product, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	current, ok := c.store.products[id]
	if !ok || current.Version != version {
		return domain.Product{}, conflictf("product %q version %d is stale", id, version)
	}
	current.Name = strings.TrimSpace(doc.Name)
	current.SKU = strings.TrimSpace(doc.SKU)
	current.Version++
	current.UpdatedAt = c.store.now()
	c.store.products[id] = current
	return current, nil
}

func (c catalog) Insert(_ context.Context, doc domain.Product) (domain.Product, error) {
	if err := doc.Validate(); err != nil {
		return domain.Product{}, err
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if _, exists := c.store.products[doc.ID]; exists {
		return domain.Product{}, conflictf("product %q already exists", doc.ID)
	}
	now := c.store.now()
	p := domain.Product{
		ID:        doc.ID,
		Name:      strings.TrimSpace(doc.Name),
		SKU:       strings.TrimSpace(doc.SKU),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.store.products[p.ID] = p
	return p, nil
}

var (
	_ domain.ProductReader                       = productReader{}
	_ domain.LedgerReader                        = ledgerReader{}
	_ domain.VersionedCollection[domain.Product] = catalog{}
)
