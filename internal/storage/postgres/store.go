// Package postgres хранит товары, журнал движений и outbox в PostgreSQL.
// Транзакции открываются на уровне REPEATABLE READ: конкурентная запись той же
// строки завершается serialization failure, которую повторяет оркестратор.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

var errNotInitialized = errors.New("postgres store is not initialized")

// queryer — общая часть *sql.DB и *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB возвращает raw SQL DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin открывает транзакцию. Snapshot isolation соответствует REPEATABLE READ,
// а подтверждению большинством соответствует синхронная фиксация на репликах.
func (s *Store) Begin(ctx context.Context, opts domain.TxOptions) (domain.Tx, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: isolationLevel(opts.Isolation)})
	if err != nil {
		return nil, err
	}
	if opts.WriteConcern == domain.WriteConcernMajority {
		if _, err := sqlTx.ExecContext(ctx, `SET LOCAL synchronous_commit = on`); err != nil {
			_ = sqlTx.Rollback()
			return nil, fmt.Errorf("set synchronous commit: %w", err)
		}
	}
	return &pgTx{tx: sqlTx}, nil
}

func isolationLevel(level domain.IsolationLevel) sql.IsolationLevel {
	switch level {
	case domain.IsolationSnapshot:
		return sql.LevelRepeatableRead
	default:
		return sql.LevelDefault
	}
}

// Products читает товары вне транзакции.
func (s *Store) Products() domain.ProductReader {
	return productRepository{q: s.db}
}

// Ledger читает журнал вне транзакции.
func (s *Store) Ledger() domain.LedgerReader {
	return ledgerRepository{q: s.db}
}

// Catalog возвращает карточки товаров с версионированием.
func (s *Store) Catalog() domain.VersionedCollection[domain.Product] {
	return catalogRepository{db: s.db}
}

// Outbox возвращает репозиторий для воркера публикации.
func (s *Store) Outbox() domain.OutboxRepository {
	return &outboxRepository{db: s.db}
}

var _ domain.TxRunner = (*Store)(nil)
