package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// OverviewRepository is the read side consumed by the overview.
type OverviewRepository interface {
	OverviewRows(ctx context.Context, tenantID int64) ([]OverviewRow, error)
}

// OverviewEntry is the classified stock position of one product.
type OverviewEntry struct {
	ProductID      int64          `json:"product_id"`
	ProductName    string         `json:"product_name"`
	Quantity       int64          `json:"quantity"`
	LotCount       int64          `json:"lot_count"`
	NearestExpiry  *time.Time     `json:"nearest_expiry,omitempty"`
	Classification Classification `json:"classification"`
}

// OverviewSnapshot is the tenant-wide stock dashboard payload.
type OverviewSnapshot struct {
	TenantID    int64                 `json:"tenant_id"`
	GeneratedAt time.Time             `json:"generated_at"`
	Products    []OverviewEntry       `json:"products"`
	StatusCount map[StockStatus]int64 `json:"status_count"`
}

// Overview serves the tenant stock dashboard from a short-lived Redis cache,
// collapsing concurrent rebuilds of the same tenant through singleflight.
type Overview struct {
	repo     OverviewRepository
	settings SettingsPort
	cache    *redis.Client
	ttl      time.Duration
	group    singleflight.Group
	logger   *slog.Logger
}

// NewOverview constructs Overview. A nil cache disables caching.
func NewOverview(repo OverviewRepository, settings SettingsPort, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Overview {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Overview{repo: repo, settings: settings, cache: cache, ttl: ttl, logger: logger}
}

func overviewKey(tenantID int64) string {
	return fmt.Sprintf("stock:overview:%d", tenantID)
}

// Snapshot returns the cached snapshot for a tenant, rebuilding it on miss.
func (o *Overview) Snapshot(ctx context.Context, tenantID int64) (OverviewSnapshot, error) {
	if tenantID == 0 {
		return OverviewSnapshot{}, errors.New("stock: tenant required")
	}
	key := overviewKey(tenantID)
	if o.cache != nil {
		payload, err := o.cache.Get(ctx, key).Bytes()
		if err == nil {
			var snapshot OverviewSnapshot
			if err := json.Unmarshal(payload, &snapshot); err == nil {
				return snapshot, nil
			}
			o.logger.Warn("overview cache decode", slog.Int64("tenant_id", tenantID))
		} else if !errors.Is(err, redis.Nil) {
			o.logger.Warn("overview cache get", slog.Any("error", err))
		}
	}

	result, err, _ := o.group.Do(key, func() (any, error) {
		snapshot, err := o.build(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if o.cache != nil {
			if payload, err := json.Marshal(snapshot); err == nil {
				if err := o.cache.Set(ctx, key, payload, o.ttl).Err(); err != nil {
					o.logger.Warn("overview cache set", slog.Any("error", err))
				}
			}
		}
		return snapshot, nil
	})
	if err != nil {
		return OverviewSnapshot{}, err
	}
	return result.(OverviewSnapshot), nil
}

// Invalidate drops the cached snapshot, typically after a goods receipt.
func (o *Overview) Invalidate(ctx context.Context, tenantID int64) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Del(ctx, overviewKey(tenantID)).Err(); err != nil {
		o.logger.Warn("overview cache invalidate", slog.Any("error", err))
	}
}

func (o *Overview) build(ctx context.Context, tenantID int64) (OverviewSnapshot, error) {
	rows, err := o.repo.OverviewRows(ctx, tenantID)
	if err != nil {
		return OverviewSnapshot{}, err
	}
	tenant, err := o.settings.AlertSettings(ctx, tenantID)
	if err != nil {
		return OverviewSnapshot{}, err
	}
	snapshot := OverviewSnapshot{
		TenantID:    tenantID,
		GeneratedAt: time.Now().UTC(),
		Products:    make([]OverviewEntry, 0, len(rows)),
		StatusCount: make(map[StockStatus]int64),
	}
	for _, row := range rows {
		classification, err := Classify(row.Quantity, ResolveThresholds(row.Thresholds, tenant))
		if err != nil {
			return OverviewSnapshot{}, err
		}
		snapshot.Products = append(snapshot.Products, OverviewEntry{
			ProductID:      row.ProductID,
			ProductName:    row.ProductName,
			Quantity:       row.Quantity,
			LotCount:       row.LotCount,
			NearestExpiry:  row.NearestExpiry,
			Classification: classification,
		})
		snapshot.StatusCount[classification.Status]++
	}
	return snapshot, nil
}
