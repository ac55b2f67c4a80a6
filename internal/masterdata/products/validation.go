package products

import (
	"strings"

	"github.com/officine-erp/officine-erp/internal/masterdata/shared"
)

func (s *Service) validate(p Product) error {
	if p.TenantID <= 0 {
		return shared.ErrValidation
	}
	if strings.TrimSpace(p.Code) == "" {
		return shared.ErrRequiredField
	}
	if strings.TrimSpace(p.Name) == "" {
		return shared.ErrRequiredField
	}
	if p.UnitPrice.IsNegative() {
		return shared.ErrValidation
	}
	return nil
}
