package sales

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/officine-erp/officine-erp/internal/platform/db"
)

// TxRepository exposes the write operations available inside a transaction.
type TxRepository interface {
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertLine(ctx context.Context, line SaleLine) (int64, error)
}

// Repository persists sales.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	const query = `
		INSERT INTO sales (tenant_id, number, status, total, sold_at, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	var id int64
	err := r.tx.QueryRow(ctx, query,
		sale.TenantID, sale.Number, sale.Status, sale.Total, sale.SoldAt, sale.ActorID, time.Now()).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line SaleLine) (int64, error) {
	const query = `
		INSERT INTO sale_lines (sale_id, product_id, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	var id int64
	err := r.tx.QueryRow(ctx, query,
		line.SaleID, line.ProductID, line.Quantity, line.UnitPrice, line.LineTotal).Scan(&id)
	return id, err
}

// GetSale loads a sale header with its lines.
func (r *Repository) GetSale(ctx context.Context, tenantID, id int64) (Sale, []SaleLine, error) {
	var sale Sale
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, number, status, total, sold_at, actor_id
		FROM sales
		WHERE tenant_id = $1 AND id = $2`, tenantID, id).Scan(
		&sale.ID, &sale.TenantID, &sale.Number, &sale.Status, &sale.Total, &sale.SoldAt, &sale.ActorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, nil, ErrNotFound
	}
	if err != nil {
		return Sale{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price, line_total
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY id`, id)
	if err != nil {
		return Sale{}, nil, err
	}
	defer rows.Close()

	var lines []SaleLine
	for rows.Next() {
		var line SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return Sale{}, nil, err
		}
		lines = append(lines, line)
	}
	return sale, lines, rows.Err()
}

// ListSales returns recent sales for a tenant, newest first.
func (r *Repository) ListSales(ctx context.Context, tenantID int64, limit int) ([]Sale, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, number, status, total, sold_at, actor_id
		FROM sales
		WHERE tenant_id = $1
		ORDER BY sold_at DESC, id DESC
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		var sale Sale
		if err := rows.Scan(&sale.ID, &sale.TenantID, &sale.Number, &sale.Status, &sale.Total, &sale.SoldAt, &sale.ActorID); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}
