package products

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/officine-erp/officine-erp/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, tenantID int64, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, tenantID, id int64) (Product, error)
	GetThresholds(ctx context.Context, tenantID, id int64) (critical, low, maximum *int64, err error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, tenantID, id int64, product Product) error
	Deactivate(ctx context.Context, tenantID, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, tenant_id, code, name, dci, form, unit_price, prescription, threshold_critical, threshold_low, threshold_maximum, supplier_id, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, tenantID int64, filters shared.ListFilters) ([]Product, int, error) {
	filters.Normalize()

	where := ` WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		ph := strconv.Itoa(argCount)
		where += ` AND (name ILIKE $` + ph + ` OR code ILIKE $` + ph + ` OR dci ILIKE $` + ph + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.SupplierID != nil {
		argCount++
		where += ` AND supplier_id = $` + strconv.Itoa(argCount)
		args = append(args, *filters.SupplierID)
	}
	if filters.IsActive != nil {
		argCount++
		where += ` AND is_active = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products` + where +
		` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)

	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, filters.Limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, filters.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE tenant_id = $1 AND id = $2`
	p, err := scanProduct(r.db.QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) GetThresholds(ctx context.Context, tenantID, id int64) (*int64, *int64, *int64, error) {
	query := `SELECT threshold_critical, threshold_low, threshold_maximum FROM products WHERE tenant_id = $1 AND id = $2`
	var critical, low, maximum *int64
	err := r.db.QueryRow(ctx, query, tenantID, id).Scan(&critical, &low, &maximum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, nil, nil, err
	}
	return critical, low, maximum, nil
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	query := `INSERT INTO products (tenant_id, code, name, dci, form, unit_price, prescription, threshold_critical, threshold_low, threshold_maximum, supplier_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query,
		product.TenantID, product.Code, product.Name, product.DCI, product.Form,
		product.UnitPrice, product.Prescription,
		product.ThresholdCritical, product.ThresholdLow, product.ThresholdMaximum,
		product.SupplierID, product.IsActive, now,
	).Scan(&product.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Product{}, shared.ErrDuplicate
		}
		return Product{}, err
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

func (r *repository) Update(ctx context.Context, tenantID, id int64, product Product) error {
	query := `UPDATE products SET code = $1, name = $2, dci = $3, form = $4, unit_price = $5, prescription = $6,
		threshold_critical = $7, threshold_low = $8, threshold_maximum = $9, supplier_id = $10, is_active = $11, updated_at = $12
		WHERE tenant_id = $13 AND id = $14`
	tag, err := r.db.Exec(ctx, query,
		product.Code, product.Name, product.DCI, product.Form, product.UnitPrice, product.Prescription,
		product.ThresholdCritical, product.ThresholdLow, product.ThresholdMaximum,
		product.SupplierID, product.IsActive, time.Now(), tenantID, id)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, tenantID, id int64) error {
	query := `UPDATE products SET is_active = FALSE, updated_at = $1 WHERE tenant_id = $2 AND id = $3`
	tag, err := r.db.Exec(ctx, query, time.Now(), tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.Code, &p.Name, &p.DCI, &p.Form, &p.UnitPrice, &p.Prescription,
		&p.ThresholdCritical, &p.ThresholdLow, &p.ThresholdMaximum, &p.SupplierID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "name":
		return "name " + dir
	case "unit_price":
		return "unit_price " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
