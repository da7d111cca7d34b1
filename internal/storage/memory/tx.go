package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

type releaseMark struct {
	at   time.Time
	note string
}

// tx копит изменения локально; до Commit их не видит никто, кроме самой транзакции.
// Сессия принадлежит одной горутине.
type tx struct {
	store    *Store
	reads    map[string]int64
	writes   map[string]domain.Product
	appends  []domain.LedgerEntry
	releases map[string]releaseMark
	outbox   []domain.OutboxMessage
	done     bool
}

func newTx(s *Store) *tx {
	return &tx{
		store:    s,
		reads:    make(map[string]int64),
		writes:   make(map[string]domain.Product),
		releases: make(map[string]releaseMark),
	}
}

func (t *tx) Products() domain.ProductRepository { return txProducts{tx: t} }
func (t *tx) Ledger() domain.LedgerRepository    { return txLedger{tx: t} }
func (t *tx) Outbox() domain.OutboxWriter        { return txOutbox{tx: t} }

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return domain.ErrTxClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.done = true
	return t.store.commit(t)
}

func (t *tx) Rollback(context.Context) error {
	t.done = true
	return nil
}

func (t *tx) checkOpen() error {
	if t.done {
		return domain.ErrTxClosed
	}
	return nil
}

// product возвращает товар с учётом собственных записей и запоминает версию первого чтения.
func (t *tx) product(id string) (domain.Product, error) {
	if err := t.checkOpen(); err != nil {
		return domain.Product{}, err
	}
	if p, ok := t.writes[id]; ok {
		return p, nil
	}
	p, ok := t.store.getProduct(id)
	if !ok {
		return domain.Product{}, domain.ProductNotFound(id)
	}
	if version, seen := t.reads[id]; seen && version != p.Version {
		return domain.Product{}, conflictf("product %q changed during transaction", id)
	}
	t.reads[id] = p.Version
	return p, nil
}

func (t *tx) overlay(products []domain.Product) []domain.Product {
	for i := range products {
		if p, ok := t.writes[products[i].ID]; ok {
			products[i] = p
		}
	}
	return products
}

type txProducts struct {
	tx *tx
}

func (r txProducts) Get(_ context.Context, id string) (domain.Product, error) {
	return r.tx.product(id)
}

func (r txProducts) List(_ context.Context, page domain.Page) ([]domain.Product, error) {
	if err := r.tx.checkOpen(); err != nil {
		return nil, err
	}
	products := r.tx.overlay(r.tx.store.snapshotProducts())
	sortProducts(products)
	return paginate(products, page), nil
}

func (r txProducts) ListLowStock(_ context.Context, threshold int64) ([]domain.Product, error) {
	if err := r.tx.checkOpen(); err != nil {
		return nil, err
	}
	return filterLowStock(r.tx.overlay(r.tx.store.snapshotProducts()), threshold), nil
}

func (r txProducts) CompareAndSetStock(_ context.Context, id string, expected, next int64) (domain.Product, error) {
	p, err := r.tx.product(id)
	if err != nil {
		return domain.Product{}, err
	}
	if p.StockQuantity != expected {
		return domain.Product{}, conflictf("stock of %q is %d, expected %d", id, p.StockQuantity, expected)
	}
	if next < 0 {
		return domain.Product{}, domain.NewValidationError("stockQuantity", "must be non-negative")
	}
	if next == expected {
		// версия первого чтения уже в t.reads и проверится при фиксации
		return p, nil
	}
	p.StockQuantity = next
	p.Version++
	p.UpdatedAt = r.tx.store.now()
	r.tx.writes[id] = p
	return p, nil
}

type txLedger struct {
	tx *tx
}

func (r txLedger) Append(_ context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	if err := r.tx.checkOpen(); err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := entry.Validate(); err != nil {
		return domain.LedgerEntry{}, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.tx.store.now()
	}
	entry.Seq = 0
	r.tx.appends = append(r.tx.appends, cloneEntry(entry))
	return entry, nil
}

func (r txLedger) MarkReleased(_ context.Context, entryID string, at time.Time, note string) error {
	if err := r.tx.checkOpen(); err != nil {
		return err
	}
	if _, marked := r.tx.releases[entryID]; marked {
		return conflictf("reservation %q already released in this transaction", entryID)
	}
	entry, ok := r.tx.store.ledgerEntry(entryID)
	if !ok {
		return &domain.NotFoundError{Entity: "ledger entry", ID: entryID}
	}
	if entry.Kind != domain.EntryKindReservation {
		return domain.NewValidationError("entryId", fmt.Sprintf("entry %q is not a reservation", entryID))
	}
	if entry.ReleasedAt != nil {
		return conflictf("reservation %q already released", entryID)
	}
	r.tx.releases[entryID] = releaseMark{at: at, note: note}
	return nil
}

func (r txLedger) ListByProduct(_ context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	if err := r.tx.checkOpen(); err != nil {
		return nil, err
	}
	entries := r.tx.withPending(func(e *domain.LedgerEntry) bool { return e.ProductID == productID })
	reverse(entries)
	return limitEntries(entries, limit), nil
}

func (r txLedger) ListByOrder(_ context.Context, orderID string) ([]domain.LedgerEntry, error) {
	if err := r.tx.checkOpen(); err != nil {
		return nil, err
	}
	return r.tx.withPending(func(e *domain.LedgerEntry) bool { return e.OrderID == orderID }), nil
}

func (r txLedger) ListExpiredReservations(_ context.Context, now time.Time, limit int) ([]domain.LedgerEntry, error) {
	if err := r.tx.checkOpen(); err != nil {
		return nil, err
	}
	entries := r.tx.withPending(func(e *domain.LedgerEntry) bool { return e.IsExpired(now) })
	entries = filterEntries(entries, func(e *domain.LedgerEntry) bool { return e.IsExpired(now) })
	sortByExpiry(entries)
	return limitEntries(entries, limit), nil
}

// withPending возвращает зафиксированные записи с наложенными пометками и
// добавленные в транзакции записи в порядке вставки.
func (t *tx) withPending(match func(*domain.LedgerEntry) bool) []domain.LedgerEntry {
	entries := t.store.snapshotLedger(match)
	for i := range entries {
		if mark, ok := t.releases[entries[i].ID]; ok {
			at := mark.at
			entries[i].ReleasedAt = &at
			entries[i].Notes = domain.AppendNote(entries[i].Notes, mark.note)
		}
	}
	for i := range t.appends {
		if match(&t.appends[i]) {
			entries = append(entries, cloneEntry(t.appends[i]))
		}
	}
	return entries
}

type txOutbox struct {
	tx *tx
}

func (w txOutbox) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := w.tx.checkOpen(); err != nil {
		return domain.OutboxMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	w.tx.outbox = append(w.tx.outbox, msg)
	return msg, nil
}

func reverse(entries []domain.LedgerEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}

func limitEntries(entries []domain.LedgerEntry, limit int) []domain.LedgerEntry {
	if limit > 0 && limit < len(entries) {
		return entries[:limit]
	}
	return entries
}

func filterEntries(entries []domain.LedgerEntry, keep func(*domain.LedgerEntry) bool) []domain.LedgerEntry {
	result := entries[:0]
	for i := range entries {
		if keep(&entries[i]) {
			result = append(result, entries[i])
		}
	}
	return result
}

func sortByExpiry(entries []domain.LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ExpiresAt.Before(*entries[j].ExpiresAt)
	})
}

func filterLowStock(products []domain.Product, threshold int64) []domain.Product {
	result := make([]domain.Product, 0)
	for _, p := range products {
		if p.StockQuantity <= threshold {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StockQuantity != result[j].StockQuantity {
			return result[i].StockQuantity < result[j].StockQuantity
		}
		return result[i].ID < result[j].ID
	})
	return result
}

var (
	_ domain.Tx                = (*tx)(nil)
	_ domain.ProductRepository = txProducts{}
	_ domain.LedgerRepository  = txLedger{}
)
