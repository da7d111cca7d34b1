package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

// Store — in-memory хранилище товаров, журнала и outbox.
// Транзакции читают товары без блокировок и проверяют прочитанные версии при фиксации:
// кто зафиксировался первым, тот и выиграл, остальные получают ErrConcurrencyConflict.
type Store struct {
	mu        sync.RWMutex
	products  map[string]domain.Product
	ledger    []domain.LedgerEntry
	ledgerIdx map[string]int
	seq       int64
	outbox    *OutboxRepository
	now       func() time.Time
}

// StoreOption настраивает Store.
type StoreOption func(*Store)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore создаёт пустое хранилище.
func NewStore(options ...StoreOption) *Store {
	s := &Store{
		products:  make(map[string]domain.Product),
		ledgerIdx: make(map[string]int),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	s.outbox = newOutboxRepository(s.now)
	return s
}

// Begin открывает транзакцию.
func (s *Store) Begin(ctx context.Context, _ domain.TxOptions) (domain.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newTx(s), nil
}

// Products возвращает чтение зафиксированного состояния товаров.
func (s *Store) Products() domain.ProductReader {
	return productReader{store: s}
}

// Ledger возвращает чтение зафиксированного журнала.
func (s *Store) Ledger() domain.LedgerReader {
	return ledgerReader{store: s}
}

// Catalog возвращает коллекцию карточек товаров с версионированием.
func (s *Store) Catalog() domain.VersionedCollection[domain.Product] {
	return catalog{store: s}
}

// Outbox возвращает outbox для воркера публикации.
func (s *Store) Outbox() *OutboxRepository {
	return s.outbox
}

// Ping всегда успешен.
func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) getProduct(id string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

func (s *Store) snapshotProducts() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		result = append(result, p)
	}
	return result
}

func (s *Store) snapshotLedger(match func(*domain.LedgerEntry) bool) []domain.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.LedgerEntry, 0)
	for i := range s.ledger {
		if match(&s.ledger[i]) {
			result = append(result, cloneEntry(s.ledger[i]))
		}
	}
	return result
}

func (s *Store) ledgerEntry(id string) (domain.LedgerEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.ledgerIdx[id]
	if !ok {
		return domain.LedgerEntry{}, false
	}
	return cloneEntry(s.ledger[idx]), true
}

// commit применяет изменения транзакции атомарно относительно других фиксаций.
func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, version := range t.reads {
		current, ok := s.products[id]
		if !ok || current.Version != version {
			return conflictf("product %q changed since it was read", id)
		}
	}
	for id := range t.releases {
		idx, ok := s.ledgerIdx[id]
		if !ok {
			return &domain.NotFoundError{Entity: "ledger entry", ID: id}
		}
		if s.ledger[idx].ReleasedAt != nil {
			return conflictf("reservation %q already released", id)
		}
	}

	for id, p := range t.writes {
		s.products[id] = p
	}
	for id, mark := range t.releases {
		entry := &s.ledger[s.ledgerIdx[id]]
		at := mark.at
		entry.ReleasedAt = &at
		entry.Notes = domain.AppendNote(entry.Notes, mark.note)
	}
	for _, entry := range t.appends {
		s.seq++
		entry.Seq = s.seq
		s.ledgerIdx[entry.ID] = len(s.ledger)
		s.ledger = append(s.ledger, entry)
	}
	for _, msg := range t.outbox {
		s.outbox.enqueue(msg)
	}

	return nil
}

func sortProducts(products []domain.Product) {
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
}

func paginate(products []domain.Product, page domain.Page) []domain.Product {
	if page.Offset > 0 {
		if page.Offset >= len(products) {
			return []domain.Product{}
		}
		products = products[page.Offset:]
	}
	if page.Limit > 0 && page.Limit < len(products) {
		products = products[:page.Limit]
	}
	return products
}

func cloneEntry(e domain.LedgerEntry) domain.LedgerEntry {
	if e.ExpiresAt != nil {
		at := *e.ExpiresAt
		e.ExpiresAt = &at
	}
	if e.ReleasedAt != nil {
		at := *e.ReleasedAt
		e.ReleasedAt = &at
	}
	return e
}

var _ domain.TxRunner = (*Store)(nil)
