package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/officine-erp/officine-erp/internal/shared"
	"github.com/officine-erp/officine-erp/internal/stock"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	Get(ctx context.Context, tenantID int64) (AlertSettings, error)
	Upsert(ctx context.Context, s AlertSettings) (AlertSettings, error)
	TenantIDs(ctx context.Context) ([]int64, error)
}

type Service struct {
	repo RepositoryPort
}

func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get returns the tenant settings, materialising defaults for tenants that
// never saved a row.
func (s *Service) Get(ctx context.Context, tenantID int64) (AlertSettings, error) {
	if tenantID <= 0 {
		return AlertSettings{}, shared.ErrTenantRequired
	}
	stored, err := s.repo.Get(ctx, tenantID)
	if errors.Is(err, shared.ErrNotFound) {
		return AlertSettings{TenantID: tenantID, ExpiryWindowDays: DefaultExpiryWindowDays}, nil
	}
	if err != nil {
		return AlertSettings{}, err
	}
	if stored.ExpiryWindowDays <= 0 {
		stored.ExpiryWindowDays = DefaultExpiryWindowDays
	}
	return stored, nil
}

// Update validates and persists tenant settings.
func (s *Service) Update(ctx context.Context, in AlertSettings) (AlertSettings, error) {
	if in.TenantID <= 0 {
		return AlertSettings{}, shared.ErrTenantRequired
	}
	for _, v := range []*int64{in.ThresholdCritical, in.ThresholdLow, in.ThresholdMaximum} {
		if v != nil && *v < 0 {
			return AlertSettings{}, fmt.Errorf("settings: thresholds must not be negative")
		}
	}
	if in.ExpiryWindowDays < 0 {
		return AlertSettings{}, fmt.Errorf("settings: expiry window must not be negative")
	}
	if in.ExpiryWindowDays == 0 {
		in.ExpiryWindowDays = DefaultExpiryWindowDays
	}
	return s.repo.Upsert(ctx, in)
}

// AlertSettings adapts the stored row for the stock engine's threshold
// cascade. Implements the stock service's settings port.
func (s *Service) AlertSettings(ctx context.Context, tenantID int64) (stock.TenantAlertSettings, error) {
	stored, err := s.Get(ctx, tenantID)
	if err != nil {
		return stock.TenantAlertSettings{}, err
	}
	return stock.TenantAlertSettings{
		TenantID:         stored.TenantID,
		Critical:         stock.ThresholdFromPtr(stored.ThresholdCritical),
		Low:              stock.ThresholdFromPtr(stored.ThresholdLow),
		Maximum:          stock.ThresholdFromPtr(stored.ThresholdMaximum),
		NotifyEmail:      stored.NotifyEmail,
		ExpiryWindowDays: stored.ExpiryWindowDays,
	}, nil
}

// TenantIDs exposes the scan population for background jobs.
func (s *Service) TenantIDs(ctx context.Context) ([]int64, error) {
	return s.repo.TenantIDs(ctx)
}
