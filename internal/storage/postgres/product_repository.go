package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

const productColumns = `id, name, sku, stock_quantity, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.StockQuantity, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// productRepository работает и с пулом, и с открытой транзакцией.
type productRepository struct {
	q queryer
}

func (r productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	p, err := scanProduct(r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ProductNotFound(id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r productRepository) List(ctx context.Context, page domain.Page) ([]domain.Product, error) {
	return r.query(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY id
		LIMIT NULLIF($1::bigint, 0) OFFSET $2
	`, page.Limit, page.Offset)
}

func (r productRepository) ListLowStock(ctx context.Context, threshold int64) ([]domain.Product, error) {
	return r.query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE stock_quantity <= $1
		ORDER BY stock_quantity, id
	`, threshold)
}

func (r productRepository) query(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}

// CompareAndSetStock: условная запись остатка. Пустое совпадение означает,
// что остаток изменился после чтения. При next == expected строка только
// блокируется FOR SHARE: версия не растёт, а конкурентная запись остатка
// до фиксации приведёт к ошибке сериализации.
func (r productRepository) CompareAndSetStock(ctx context.Context, id string, expected, next int64) (domain.Product, error) {
	if next < 0 {
		return domain.Product{}, domain.NewValidationError("stockQuantity", "must be non-negative")
	}

	query := `
		UPDATE products
		SET stock_quantity = $3,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND stock_quantity = $2
		RETURNING ` + productColumns
	args := []any{id, expected, next}
	if next == expected {
		query = `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND stock_quantity = $2 FOR SHARE`
		args = args[:2]
	}

	p, err := scanProduct(r.q.QueryRowContext(ctx, query, args...))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("compare and set stock: %w", err)
	}

	if _, getErr := r.Get(ctx, id); getErr != nil {
		return domain.Product{}, getErr
	}
	return domain.Product{}, conflictf("stock of %q is no longer %d", id, expected)
}

// catalogRepository меняет только карточку товара; остаток не трогает.
type catalogRepository struct {
	db *sql.DB
}

func (c catalogRepository) Load(ctx context.Context, id string) (domain.Product, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := productRepository{q: c.db}.Get(ctx, id)
	if err != nil {
		return domain.Product{}, 0, err
	}
	return p, p.Version, nil
}

func (c catalogRepository) UpdateIfVersion(ctx context.Context, id string, version int64, doc domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := scanProduct(c.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $3,
		    sku = $4,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING `+productColumns,
		id, version, strings.TrimSpace(doc.Name), strings.TrimSpace(doc.SKU)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, conflictf("product %q version %d is stale", id, version)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

func (c catalogRepository) Insert(ctx context.Context, doc domain.Product) (domain.Product, error) {
	if err := doc.Validate(); err != nil {
		return domain.Product{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := scanProduct(c.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, sku, stock_quantity, version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 1, NOW(), NOW())
		RETURNING `+productColumns,
		doc.ID, strings.TrimSpace(doc.Name), strings.TrimSpace(doc.SKU)))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, conflictf("product %q already exists", doc.ID)
		}
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

var (
	_ domain.ProductRepository                   = productRepository{}
	_ domain.VersionedCollection[domain.Product] = catalogRepository{}
)
