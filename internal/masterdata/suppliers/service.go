package suppliers

import (
	"context"

	"github.com/officine-erp/officine-erp/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, tenantID int64, filters shared.ListFilters) ([]Supplier, int, error) {
	return s.repo.List(ctx, tenantID, filters)
}

func (s *Service) Get(ctx context.Context, tenantID, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	if err := s.validate(supplier); err != nil {
		return Supplier{}, err
	}
	return s.repo.Create(ctx, supplier)
}

func (s *Service) Update(ctx context.Context, tenantID, id int64, supplier Supplier) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(supplier); err != nil {
		return err
	}
	return s.repo.Update(ctx, tenantID, id, supplier)
}

func (s *Service) Deactivate(ctx context.Context, tenantID, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Deactivate(ctx, tenantID, id)
}
