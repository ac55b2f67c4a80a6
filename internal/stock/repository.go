package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/officine-erp/officine-erp/internal/platform/db"
)

// Repository persists lots and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the service. All
// lot reads inside a transaction take row locks so concurrent allocators on the
// same product serialise instead of overselling.
type TxRepository interface {
	LotsForAllocation(ctx context.Context, tenantID, productID int64) ([]Lot, error)
	GetLotForUpdate(ctx context.Context, tenantID, lotID int64) (Lot, error)
	ApplyDeduction(ctx context.Context, tenantID, lotID, amount int64) (int64, error)
	ApplyAddition(ctx context.Context, tenantID, lotID, amount int64) (int64, error)
	InsertLot(ctx context.Context, lot Lot) (int64, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const lotColumns = `id, tenant_id, product_id, lot_number, quantity_remaining, expires_at, unit_cost, location, created_at`

// fifoOrder sorts lots expiring soonest first; lots without an expiration sort
// after all dated lots, oldest-created-first among themselves.
const fifoOrder = `ORDER BY expires_at ASC NULLS LAST, created_at ASC, id ASC`

// ListLots returns the live lots for a product in allocation order, without
// locking. Used by read endpoints.
func (r *Repository) ListLots(ctx context.Context, tenantID, productID int64) ([]Lot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+` FROM stock_lots
WHERE tenant_id=$1 AND product_id=$2 AND quantity_remaining > 0 `+fifoOrder, tenantID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLots(rows)
}

// ProductQuantity sums the live quantity across all lots of a product.
func (r *Repository) ProductQuantity(ctx context.Context, tenantID, productID int64) (int64, error) {
	var qty int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity_remaining), 0) FROM stock_lots
WHERE tenant_id=$1 AND product_id=$2`, tenantID, productID).Scan(&qty)
	return qty, err
}

// Movements lists the ledger entries for one lot, oldest first.
func (r *Repository) Movements(ctx context.Context, tenantID, lotID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, movement_type, lot_id, destination_lot_id, quantity_before, quantity_delta, quantity_after, actor_id, reason, recorded_at
FROM stock_movements WHERE tenant_id=$1 AND lot_id=$2 ORDER BY recorded_at ASC, id ASC LIMIT $3`, tenantID, lotID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var dest *int64
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Type, &m.LotID, &dest, &m.QuantityBefore, &m.QuantityDelta, &m.QuantityAfter, &m.ActorID, &m.Reason, &m.RecordedAt); err != nil {
			return nil, err
		}
		if dest != nil {
			m.DestinationLotID = *dest
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// OverviewRow aggregates the live stock of one product together with its
// threshold overrides, for the tenant-wide overview.
type OverviewRow struct {
	ProductID     int64
	ProductName   string
	Quantity      int64
	LotCount      int64
	NearestExpiry *time.Time
	Thresholds    ProductThresholds
}

// OverviewRows returns per-product aggregates for a tenant, joined with the
// product threshold overrides so the caller can classify without extra queries.
func (r *Repository) OverviewRows(ctx context.Context, tenantID int64) ([]OverviewRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, COALESCE(SUM(l.quantity_remaining), 0), COUNT(l.id) FILTER (WHERE l.quantity_remaining > 0), MIN(l.expires_at) FILTER (WHERE l.quantity_remaining > 0),
p.threshold_critical, p.threshold_low, p.threshold_maximum
FROM products p
LEFT JOIN stock_lots l ON l.product_id = p.id AND l.tenant_id = p.tenant_id
WHERE p.tenant_id=$1 AND p.is_active
GROUP BY p.id, p.name, p.threshold_critical, p.threshold_low, p.threshold_maximum
ORDER BY p.name ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []OverviewRow{}
	for rows.Next() {
		var row OverviewRow
		var critical, low, maximum *int64
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.Quantity, &row.LotCount, &row.NearestExpiry, &critical, &low, &maximum); err != nil {
			return nil, err
		}
		row.Thresholds = ProductThresholds{
			Critical: ThresholdFromPtr(critical),
			Low:      ThresholdFromPtr(low),
			Maximum:  ThresholdFromPtr(maximum),
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// ExpiringLots lists live lots expiring on or before the cutoff, soonest first.
func (r *Repository) ExpiringLots(ctx context.Context, tenantID int64, cutoff time.Time) ([]Lot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+` FROM stock_lots
WHERE tenant_id=$1 AND quantity_remaining > 0 AND expires_at IS NOT NULL AND expires_at <= $2 `+fifoOrder, tenantID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLots(rows)
}

func (r *txRepository) LotsForAllocation(ctx context.Context, tenantID, productID int64) ([]Lot, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lotColumns+` FROM stock_lots
WHERE tenant_id=$1 AND product_id=$2 AND quantity_remaining > 0 `+fifoOrder+` FOR UPDATE`, tenantID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLots(rows)
}

func (r *txRepository) GetLotForUpdate(ctx context.Context, tenantID, lotID int64) (Lot, error) {
	var lot Lot
	err := r.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM stock_lots
WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, lotID).
		Scan(&lot.ID, &lot.TenantID, &lot.ProductID, &lot.LotNumber, &lot.QuantityRemaining, &lot.ExpiresAt, &lot.UnitCost, &lot.Location, &lot.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lot{}, ErrLotNotFound
		}
		return Lot{}, err
	}
	return lot, nil
}

// ApplyDeduction decrements the lot remainder, guarded so the quantity never
// goes negative. Distinguishes a missing lot from an oversized deduction.
func (r *txRepository) ApplyDeduction(ctx context.Context, tenantID, lotID, amount int64) (int64, error) {
	var newQty int64
	err := r.tx.QueryRow(ctx, `UPDATE stock_lots SET quantity_remaining = quantity_remaining - $3
WHERE tenant_id=$1 AND id=$2 AND quantity_remaining >= $3
RETURNING quantity_remaining`, tenantID, lotID, amount).Scan(&newQty)
	if err == nil {
		return newQty, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	var exists bool
	if err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_lots WHERE tenant_id=$1 AND id=$2)`, tenantID, lotID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrLotNotFound
	}
	return 0, ErrInsufficientQuantity
}

func (r *txRepository) ApplyAddition(ctx context.Context, tenantID, lotID, amount int64) (int64, error) {
	var newQty int64
	err := r.tx.QueryRow(ctx, `UPDATE stock_lots SET quantity_remaining = quantity_remaining + $3
WHERE tenant_id=$1 AND id=$2
RETURNING quantity_remaining`, tenantID, lotID, amount).Scan(&newQty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrLotNotFound
		}
		return 0, err
	}
	return newQty, nil
}

func (r *txRepository) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_lots (tenant_id, product_id, lot_number, quantity_remaining, expires_at, unit_cost, location, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		lot.TenantID, lot.ProductID, lot.LotNumber, lot.QuantityRemaining, lot.ExpiresAt, lot.UnitCost, lot.Location).Scan(&id)
	return id, err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (tenant_id, movement_type, lot_id, destination_lot_id, quantity_before, quantity_delta, quantity_after, actor_id, reason, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		m.TenantID, string(m.Type), m.LotID, nullInt(m.DestinationLotID), m.QuantityBefore, m.QuantityDelta, m.QuantityAfter, nullInt(m.ActorID), m.Reason, m.RecordedAt).Scan(&id)
	return id, err
}

func scanLots(rows pgx.Rows) ([]Lot, error) {
	lots := []Lot{}
	for rows.Next() {
		var lot Lot
		if err := rows.Scan(&lot.ID, &lot.TenantID, &lot.ProductID, &lot.LotNumber, &lot.QuantityRemaining, &lot.ExpiresAt, &lot.UnitCost, &lot.Location, &lot.CreatedAt); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
