package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a pharmacy product reference.
type Product struct {
	ID                int64           `json:"id"`
	TenantID          int64           `json:"tenant_id"`
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	DCI               string          `json:"dci"`
	Form              string          `json:"form"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Prescription      bool            `json:"prescription"`
	ThresholdCritical *int64          `json:"threshold_critical"`
	ThresholdLow      *int64          `json:"threshold_low"`
	ThresholdMaximum  *int64          `json:"threshold_maximum"`
	SupplierID        *int64          `json:"supplier_id"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
