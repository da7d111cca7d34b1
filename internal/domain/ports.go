package domain

import (
	"context"
	"time"
)

// IsolationLevel задаёт уровень изоляции транзакции хранилища.
type IsolationLevel string

const (
	// IsolationSnapshot: чтения из снимка, конфликт записи обнаруживается при фиксации.
	IsolationSnapshot IsolationLevel = "snapshot"
)

// WriteConcern описывает требование к подтверждению записи.
type WriteConcern string

const (
	// WriteConcernMajority: фиксация подтверждается большинством реплик.
	WriteConcernMajority WriteConcern = "majority"
)

// TxOptions задаёт параметры транзакции.
type TxOptions struct {
	Isolation    IsolationLevel
	WriteConcern WriteConcern
}

// DefaultTxOptions возвращает snapshot isolation и majority write concern.
func DefaultTxOptions() TxOptions {
	return TxOptions{Isolation: IsolationSnapshot, WriteConcern: WriteConcernMajority}
}

// Tx — транзакционная сессия хранилища. Все изменения видны другим
// только после Commit. Rollback после Commit безопасен и ничего не делает.
type Tx interface {
	Products() ProductRepository
	Ledger() LedgerRepository
	Outbox() OutboxWriter
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxRunner открывает транзакции.
type TxRunner interface {
	Begin(ctx context.Context, opts TxOptions) (Tx, error)
}

// ProductReader читает товары.
type ProductReader interface {
	// Get возвращает товар или *NotFoundError.
	Get(ctx context.Context, id string) (Product, error)
	List(ctx context.Context, page Page) ([]Product, error)
	// ListLowStock возвращает товары с остатком не выше threshold, включая нулевые.
	ListLowStock(ctx context.Context, threshold int64) ([]Product, error)
}

// ProductRepository даёт доступ к товарам внутри транзакции.
type ProductRepository interface {
	ProductReader
	// CompareAndSetStock записывает next, только если текущий остаток равен expected.
	// Если условие не выполнилось, возвращает ErrConcurrencyConflict.
	// При next == expected ничего не пишет и версию не меняет, но конкурентное
	// изменение остатка до фиксации всё равно даёт конфликт.
	CompareAndSetStock(ctx context.Context, id string, expected, next int64) (Product, error)
}

// LedgerReader читает журнал движения остатков.
type LedgerReader interface {
	// ListByProduct возвращает записи товара от новых к старым.
	ListByProduct(ctx context.Context, productID string, limit int) ([]LedgerEntry, error)
	// ListByOrder возвращает записи заказа в порядке вставки.
	ListByOrder(ctx context.Context, orderID string) ([]LedgerEntry, error)
	// ListExpiredReservations возвращает неснятые резервы с истёкшим сроком.
	ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]LedgerEntry, error)
}

// LedgerRepository работает с журналом внутри транзакции. Записи только добавляются.
type LedgerRepository interface {
	LedgerReader
	Append(ctx context.Context, entry LedgerEntry) (LedgerEntry, error)
	// MarkReleased помечает резерв снятым. Повторная пометка возвращает ErrConcurrencyConflict.
	MarkReleased(ctx context.Context, entryID string, at time.Time, note string) error
}

// VersionedCollection описывает коллекцию документов с оптимистичной блокировкой по версии.
type VersionedCollection[T any] interface {
	// Load возвращает документ и его версию или *NotFoundError.
	Load(ctx context.Context, id string) (T, int64, error)
	// UpdateIfVersion сохраняет doc, если версия не изменилась, иначе ErrConcurrencyConflict.
	UpdateIfVersion(ctx context.Context, id string, version int64, doc T) (T, error)
	// Insert создаёт документ; на дубликат ключа возвращает ErrConcurrencyConflict.
	Insert(ctx context.Context, doc T) (T, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxWriter сохраняет событие в той же транзакции, что и изменение остатка.
type OutboxWriter interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// OutboxRepository обслуживает воркер публикации outbox.
type OutboxRepository interface {
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
