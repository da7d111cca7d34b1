package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

// pgTx — транзакционная сессия поверх *sql.Tx.
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Products() domain.ProductRepository { return productRepository{q: t.tx} }
func (t *pgTx) Ledger() domain.LedgerRepository    { return ledgerRepository{q: t.tx} }
func (t *pgTx) Outbox() domain.OutboxWriter        { return outboxWriter{q: t.tx} }

func (t *pgTx) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return domain.ErrTxClosed
		}
		return err
	}
	return nil
}

func (t *pgTx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return domain.ErrTxClosed
		}
		return err
	}
	return nil
}

var _ domain.Tx = (*pgTx)(nil)
