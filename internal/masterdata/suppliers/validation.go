package suppliers

import (
	"strings"

	"github.com/officine-erp/officine-erp/internal/masterdata/shared"
)

func (s *Service) validate(sup Supplier) error {
	if sup.TenantID <= 0 {
		return shared.ErrValidation
	}
	if strings.TrimSpace(sup.Code) == "" {
		return shared.ErrRequiredField
	}
	if strings.TrimSpace(sup.Name) == "" {
		return shared.ErrRequiredField
	}
	if sup.LeadTimeDays < 0 {
		return shared.ErrValidation
	}
	return nil
}
