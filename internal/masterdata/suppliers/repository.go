package suppliers

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
	List(ctx context.Context, tenantID int64, filters shared.ListFilters) ([]Supplier, int, error)
	Get(ctx context.Context, tenantID, id int64) (Supplier, error)
	Create(ctx context.Context, supplier Supplier) (Supplier, error)
	Update(ctx context.Context, tenantID, id int64, supplier Supplier) error
	Deactivate(ctx context.Context, tenantID, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const supplierColumns = `id, tenant_id, code, name, address, email, phone, lead_time_days, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, tenantID int64, filters shared.ListFilters) ([]Supplier, int, error) {
	filters.Normalize()

	where := ` WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		ph := strconv.Itoa(argCount)
		where += ` AND (name ILIKE $` + ph + ` OR code ILIKE $` + ph + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		where += ` AND is_active = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + supplierColumns + ` FROM suppliers` + where + ` ORDER BY name ASC`
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

	var items []Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (Supplier, error) {
	query := `SELECT ` + supplierColumns + ` FROM suppliers WHERE tenant_id = $1 AND id = $2`
	s, err := scanSupplier(r.db.QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.ErrNotFound
	}
	return s, err
}

func (r *repository) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	query := `INSERT INTO suppliers (tenant_id, code, name, address, email, phone, lead_time_days, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query,
		supplier.TenantID, supplier.Code, supplier.Name, supplier.Address,
		supplier.Email, supplier.Phone, supplier.LeadTimeDays, supplier.IsActive, now,
	).Scan(&supplier.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Supplier{}, shared.ErrDuplicate
		}
		return Supplier{}, err
	}
	supplier.CreatedAt = now
	supplier.UpdatedAt = now
	return supplier, nil
}

func (r *repository) Update(ctx context.Context, tenantID, id int64, supplier Supplier) error {
	query := `UPDATE suppliers SET code = $1, name = $2, address = $3, email = $4, phone = $5, lead_time_days = $6, is_active = $7, updated_at = $8
		WHERE tenant_id = $9 AND id = $10`
	tag, err := r.db.Exec(ctx, query,
		supplier.Code, supplier.Name, supplier.Address, supplier.Email, supplier.Phone,
		supplier.LeadTimeDays, supplier.IsActive, time.Now(), tenantID, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
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
	query := `UPDATE suppliers SET is_active = FALSE, updated_at = $1 WHERE tenant_id = $2 AND id = $3`
	tag, err := r.db.Exec(ctx, query, time.Now(), tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.TenantID, &s.Code, &s.Name, &s.Address, &s.Email, &s.Phone,
		&s.LeadTimeDays, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
