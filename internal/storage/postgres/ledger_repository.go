package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

const ledgerColumns = `seq, id, product_id, movement_type, kind, quantity, previous_quantity, new_quantity,
	reason, actor_id, order_id, notes, expires_at, released_at, created_at`

func scanEntry(row rowScanner) (domain.LedgerEntry, error) {
	var (
		e          domain.LedgerEntry
		typ, kind  string
		expiresAt  sql.NullTime
		releasedAt sql.NullTime
	)
	if err := row.Scan(
		&e.Seq, &e.ID, &e.ProductID, &typ, &kind, &e.Quantity, &e.PreviousQuantity, &e.NewQuantity,
		&e.Reason, &e.ActorID, &e.OrderID, &e.Notes, &expiresAt, &releasedAt, &e.CreatedAt,
	); err != nil {
		return domain.LedgerEntry{}, err
	}
	e.Type = domain.MovementType(typ)
	e.Kind = domain.EntryKind(kind)
	e.ExpiresAt = nullTime(expiresAt)
	e.ReleasedAt = nullTime(releasedAt)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// ledgerRepository — журнал движений. Записи только добавляются,
// обновляется лишь пометка снятия резерва.
type ledgerRepository struct {
	q queryer
}

func (r ledgerRepository) Append(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	if err := entry.Validate(); err != nil {
		return domain.LedgerEntry{}, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	created, err := scanEntry(r.q.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (
			id, product_id, movement_type, kind, quantity, previous_quantity, new_quantity,
			reason, actor_id, order_id, notes, expires_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING `+ledgerColumns,
		entry.ID, entry.ProductID, string(entry.Type), string(entry.Kind),
		entry.Quantity, entry.PreviousQuantity, entry.NewQuantity,
		entry.Reason, entry.ActorID, entry.OrderID, entry.Notes,
		timeArg(entry.ExpiresAt), entry.CreatedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.LedgerEntry{}, conflictf("ledger entry %q already exists", entry.ID)
		}
		return domain.LedgerEntry{}, fmt.Errorf("append ledger entry: %w", err)
	}
	return created, nil
}

func (r ledgerRepository) MarkReleased(ctx context.Context, entryID string, at time.Time, note string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE ledger_entries
		SET released_at = $2,
		    notes = CASE WHEN notes = '' THEN $3 ELSE notes || '; ' || $3 END
		WHERE id = $1 AND kind = 'reservation' AND released_at IS NULL
	`, entryID, at.UTC(), note)
	if err != nil {
		return fmt.Errorf("mark reservation released: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for release mark: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var kind string
	err = r.q.QueryRowContext(ctx, `SELECT kind FROM ledger_entries WHERE id = $1`, entryID).Scan(&kind)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &domain.NotFoundError{Entity: "ledger entry", ID: entryID}
	case err != nil:
		return fmt.Errorf("load ledger entry: %w", err)
	case domain.EntryKind(kind) != domain.EntryKindReservation:
		return domain.NewValidationError("entryId", fmt.Sprintf("entry %q is not a reservation", entryID))
	default:
		return conflictf("reservation %q already released", entryID)
	}
}

func (r ledgerRepository) ListByProduct(ctx context.Context, productID string, limit int) ([]domain.LedgerEntry, error) {
	return r.query(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE product_id = $1
		ORDER BY seq DESC
		LIMIT NULLIF($2::bigint, 0)
	`, productID, limit)
}

func (r ledgerRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.LedgerEntry, error) {
	return r.query(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE order_id = $1 AND order_id <> ''
		ORDER BY seq
	`, orderID)
}

func (r ledgerRepository) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]domain.LedgerEntry, error) {
	return r.query(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE kind = 'reservation'
		  AND released_at IS NULL
		  AND expires_at <= $1
		ORDER BY expires_at, seq
		LIMIT NULLIF($2::bigint, 0)
	`, now.UTC(), limit)
}

func (r ledgerRepository) query(ctx context.Context, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	result := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return result, nil
}

var _ domain.LedgerRepository = ledgerRepository{}
