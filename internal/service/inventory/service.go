// Package inventory реализует управление остатками: изменение, резервирование,
// проверку доступности и списание по оплаченным заказам. Каждое изменение
// остатка пишется в журнал и outbox в той же транзакции, что и сам остаток.
package inventory

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/metrics"
	"github.com/vladislavdragonenkov/stockd/internal/service/txn"
)

// DefaultActorID подставляется, если инициатор изменения не указан.
const DefaultActorID = "system"

// Service — точка входа для всех операций над остатками.
type Service struct {
	orch     *txn.Orchestrator
	products domain.ProductReader
	ledger   domain.LedgerReader
	catalog  domain.VersionedCollection[domain.Product]

	logger  *log.Entry
	metrics *metrics.InventoryMetrics
	now     func() time.Time

	txRetry  txn.Options
	occRetry txn.Options
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics задаёт метрики движений остатка.
func WithMetrics(m *metrics.InventoryMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRetry задаёт число попыток и начальную задержку для транзакций.
func WithRetry(maxRetries int, initialDelay time.Duration) Option {
	return func(s *Service) {
		s.txRetry = txn.Options{MaxRetries: maxRetries, InitialDelay: initialDelay}
	}
}

// WithOptimisticRetry задаёт повторы для обновлений каталога по версии.
func WithOptimisticRetry(maxRetries int, initialDelay time.Duration) Option {
	return func(s *Service) {
		s.occRetry = txn.Options{MaxRetries: maxRetries, InitialDelay: initialDelay}
	}
}

// NewService создаёт сервис остатков.
func NewService(orch *txn.Orchestrator, products domain.ProductReader, ledger domain.LedgerReader,
	catalog domain.VersionedCollection[domain.Product], options ...Option) *Service {
	s := &Service{
		orch:     orch,
		products: products,
		ledger:   ledger,
		catalog:  catalog,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "inventory")
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// MutationOptions описывает, кто и зачем меняет остаток.
type MutationOptions struct {
	Reason  string
	ActorID string
	OrderID string
	Notes   string
}

func (o MutationOptions) withDefaults() MutationOptions {
	o.Reason = strings.TrimSpace(o.Reason)
	o.ActorID = strings.TrimSpace(o.ActorID)
	if o.ActorID == "" {
		o.ActorID = DefaultActorID
	}
	return o
}

// StockChange возвращает товар после изменения и созданную запись журнала.
// Entry равен nil, если изменение оказалось пустым.
type StockChange struct {
	Product domain.Product
	Entry   *domain.LedgerEntry
}

func (s *Service) txOptions(operation string) txn.Options {
	opts := s.txRetry
	opts.LogPrefix = operation
	return opts
}

func (s *Service) occOptions(operation string) txn.Options {
	opts := s.occRetry
	opts.LogPrefix = operation
	return opts
}

// movement хранит параметры одной записи журнала.
type movement struct {
	kind      domain.EntryKind
	typ       domain.MovementType
	reason    string
	actorID   string
	orderID   string
	notes     string
	expiresAt *time.Time
}

// move меняет остаток на delta внутри транзакции: читает текущее значение,
// проверяет неотрицательность, пишет остаток условной записью, затем запись
// журнала и событие в outbox.
func (s *Service) move(ctx context.Context, tx domain.Tx, productID string, delta int64, m movement) (domain.Product, domain.LedgerEntry, error) {
	current, err := tx.Products().Get(ctx, productID)
	if err != nil {
		return domain.Product{}, domain.LedgerEntry{}, err
	}

	next := current.StockQuantity + delta
	if next < 0 {
		return domain.Product{}, domain.LedgerEntry{}, &domain.InsufficientStockError{
			ProductID: productID,
			Requested: -delta,
			Available: current.StockQuantity,
		}
	}

	return s.write(ctx, tx, current, next, m)
}

// write фиксирует переход current -> next и пишет запись журнала. При next,
// равном текущему остатку, условная запись только проверяет остаток, не
// меняя версию, а событие в outbox не ставится.
func (s *Service) write(ctx context.Context, tx domain.Tx, current domain.Product, next int64, m movement) (domain.Product, domain.LedgerEntry, error) {
	updated, err := tx.Products().CompareAndSetStock(ctx, current.ID, current.StockQuantity, next)
	if err != nil {
		return domain.Product{}, domain.LedgerEntry{}, err
	}

	quantity := next - current.StockQuantity
	typ := m.typ
	if typ == "" {
		typ = domain.MovementAddition
		if quantity < 0 {
			typ = domain.MovementReduction
		}
	}
	if quantity < 0 {
		quantity = -quantity
	}

	entry, err := tx.Ledger().Append(ctx, domain.LedgerEntry{
		ProductID:        current.ID,
		Type:             typ,
		Kind:             m.kind,
		Quantity:         quantity,
		PreviousQuantity: current.StockQuantity,
		NewQuantity:      next,
		Reason:           m.reason,
		ActorID:          m.actorID,
		OrderID:          m.orderID,
		Notes:            m.notes,
		ExpiresAt:        m.expiresAt,
		CreatedAt:        s.now(),
	})
	if err != nil {
		return domain.Product{}, domain.LedgerEntry{}, err
	}

	if entry.Delta() == 0 {
		return updated, entry, nil
	}

	msg, err := domain.NewStockChangedMessage(entry)
	if err != nil {
		return domain.Product{}, domain.LedgerEntry{}, err
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return domain.Product{}, domain.LedgerEntry{}, err
	}

	return updated, entry, nil
}

// observe учитывает в метриках записи уже зафиксированной транзакции.
func (s *Service) observe(entries ...domain.LedgerEntry) {
	for _, e := range entries {
		s.metrics.RecordMovement(string(e.Kind), string(e.Type), e.Quantity)
		if e.Delta() != 0 {
			s.metrics.RecordOutboxEnqueued()
		}
	}
}

// fail логирует итог неудачной операции и учитывает отказы по остатку.
// Вызывается один раз на операцию, после WithTransaction.
func (s *Service) fail(err error, operation string, fields log.Fields) {
	entry := s.logger.WithError(err).WithField("operation", operation).WithFields(fields)
	switch {
	case domain.IsInsufficientStock(err):
		s.metrics.RecordInsufficientStock()
		entry.Info("inventory operation rejected")
	case domain.IsValidation(err), domain.IsNotFound(err):
		entry.Info("inventory operation rejected")
	default:
		entry.Error("inventory operation failed")
	}
}
