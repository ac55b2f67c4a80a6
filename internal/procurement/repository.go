package procurement

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
	CreateReceipt(ctx context.Context, receipt GoodsReceipt) (int64, error)
	InsertLine(ctx context.Context, line ReceiptLine) (int64, error)
	UpdateReceiptStatus(ctx context.Context, tenantID, id int64, status ReceiptStatus) error
	SetLineLot(ctx context.Context, lineID, lotID int64) error
}

// Repository persists goods receipts.
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

func (r *txRepository) CreateReceipt(ctx context.Context, receipt GoodsReceipt) (int64, error) {
	const query = `
		INSERT INTO goods_receipts (tenant_id, number, supplier_id, status, received_at, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	var id int64
	err := r.tx.QueryRow(ctx, query,
		receipt.TenantID, receipt.Number, receipt.SupplierID, receipt.Status,
		receipt.ReceivedAt, receipt.Note, time.Now()).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line ReceiptLine) (int64, error) {
	const query = `
		INSERT INTO goods_receipt_lines (receipt_id, product_id, quantity, unit_cost, lot_number, expires_at, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	var id int64
	err := r.tx.QueryRow(ctx, query,
		line.ReceiptID, line.ProductID, line.Quantity, line.UnitCost,
		line.LotNumber, line.ExpiresAt, line.Location).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateReceiptStatus(ctx context.Context, tenantID, id int64, status ReceiptStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE goods_receipts SET status = $1 WHERE tenant_id = $2 AND id = $3`, status, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SetLineLot(ctx context.Context, lineID, lotID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE goods_receipt_lines SET lot_id = $1 WHERE id = $2`, lotID, lineID)
	return err
}

const receiptColumns = `id, tenant_id, number, supplier_id, status, received_at, note`

// GetReceipt loads a receipt header with its lines.
func (r *Repository) GetReceipt(ctx context.Context, tenantID, id int64) (GoodsReceipt, []ReceiptLine, error) {
	var receipt GoodsReceipt
	err := r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM goods_receipts WHERE tenant_id = $1 AND id = $2`, tenantID, id).Scan(
		&receipt.ID, &receipt.TenantID, &receipt.Number, &receipt.SupplierID,
		&receipt.Status, &receipt.ReceivedAt, &receipt.Note)
	if errors.Is(err, pgx.ErrNoRows) {
		return GoodsReceipt{}, nil, ErrNotFound
	}
	if err != nil {
		return GoodsReceipt{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, receipt_id, product_id, quantity, unit_cost, lot_number, expires_at, location, lot_id
		FROM goods_receipt_lines
		WHERE receipt_id = $1
		ORDER BY id`, id)
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	defer rows.Close()

	var lines []ReceiptLine
	for rows.Next() {
		var line ReceiptLine
		if err := rows.Scan(&line.ID, &line.ReceiptID, &line.ProductID, &line.Quantity,
			&line.UnitCost, &line.LotNumber, &line.ExpiresAt, &line.Location, &line.LotID); err != nil {
			return GoodsReceipt{}, nil, err
		}
		lines = append(lines, line)
	}
	return receipt, lines, rows.Err()
}

// ListReceipts returns receipt headers for a tenant, newest first.
func (r *Repository) ListReceipts(ctx context.Context, tenantID int64, limit int) ([]GoodsReceipt, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+receiptColumns+`
		FROM goods_receipts
		WHERE tenant_id = $1
		ORDER BY received_at DESC, id DESC
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []GoodsReceipt
	for rows.Next() {
		var receipt GoodsReceipt
		if err := rows.Scan(&receipt.ID, &receipt.TenantID, &receipt.Number, &receipt.SupplierID,
			&receipt.Status, &receipt.ReceivedAt, &receipt.Note); err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}
