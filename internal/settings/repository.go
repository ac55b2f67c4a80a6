package settings

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/officine-erp/officine-erp/internal/shared"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the stored settings for a tenant. Absence is reported with
// shared.ErrNotFound so the service can fall back to defaults.
func (r *Repository) Get(ctx context.Context, tenantID int64) (AlertSettings, error) {
	const query = `
		SELECT tenant_id, threshold_critical, threshold_low, threshold_maximum, notify_email, expiry_window_days, updated_at
		FROM tenant_alert_settings
		WHERE tenant_id = $1`
	var s AlertSettings
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&s.TenantID, &s.ThresholdCritical, &s.ThresholdLow, &s.ThresholdMaximum,
		&s.NotifyEmail, &s.ExpiryWindowDays, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return AlertSettings{}, shared.ErrNotFound
	}
	if err != nil {
		return AlertSettings{}, err
	}
	return s, nil
}

// Upsert stores the settings row for a tenant, creating it on first write.
func (r *Repository) Upsert(ctx context.Context, s AlertSettings) (AlertSettings, error) {
	const query = `
		INSERT INTO tenant_alert_settings (tenant_id, threshold_critical, threshold_low, threshold_maximum, notify_email, expiry_window_days, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id) DO UPDATE SET
			threshold_critical = EXCLUDED.threshold_critical,
			threshold_low = EXCLUDED.threshold_low,
			threshold_maximum = EXCLUDED.threshold_maximum,
			notify_email = EXCLUDED.notify_email,
			expiry_window_days = EXCLUDED.expiry_window_days,
			updated_at = EXCLUDED.updated_at`
	now := time.Now()
	_, err := r.pool.Exec(ctx, query,
		s.TenantID, s.ThresholdCritical, s.ThresholdLow, s.ThresholdMaximum,
		s.NotifyEmail, s.ExpiryWindowDays, now)
	if err != nil {
		return AlertSettings{}, err
	}
	s.UpdatedAt = now
	return s, nil
}

// TenantIDs lists every tenant with a product catalog. The background scans
// iterate over this set.
func (r *Repository) TenantIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM products ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
