package products

import (
	"context"

	"github.com/officine-erp/officine-erp/internal/masterdata/shared"
	"github.com/officine-erp/officine-erp/internal/stock"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, tenantID int64, filters shared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, tenantID, filters)
}

func (s *Service) Get(ctx context.Context, tenantID, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, tenantID, id int64, product Product) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(product); err != nil {
		return err
	}
	return s.repo.Update(ctx, tenantID, id, product)
}

func (s *Service) Deactivate(ctx context.Context, tenantID, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Deactivate(ctx, tenantID, id)
}

// Thresholds exposes the per-product override values to the stock engine.
// Zero and NULL columns both come back as unset thresholds.
func (s *Service) Thresholds(ctx context.Context, tenantID, productID int64) (stock.ProductThresholds, error) {
	critical, low, maximum, err := s.repo.GetThresholds(ctx, tenantID, productID)
	if err != nil {
		return stock.ProductThresholds{}, err
	}
	return stock.ProductThresholds{
		Critical: stock.ThresholdFromPtr(critical),
		Low:      stock.ThresholdFromPtr(low),
		Maximum:  stock.ThresholdFromPtr(maximum),
	}, nil
}
