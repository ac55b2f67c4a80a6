package products

import "github.com/shopspring/decimal"

// ProductForm is the JSON payload for create and update requests.
type ProductForm struct {
	Code              string          `json:"code" validate:"required"`
	Name              string          `json:"name" validate:"required"`
	DCI               string          `json:"dci"`
	Form              string          `json:"form"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Prescription      bool            `json:"prescription"`
	ThresholdCritical *int64          `json:"threshold_critical" validate:"omitempty,gte=0"`
	ThresholdLow      *int64          `json:"threshold_low" validate:"omitempty,gte=0"`
	ThresholdMaximum  *int64          `json:"threshold_maximum" validate:"omitempty,gte=0"`
	SupplierID        *int64          `json:"supplier_id" validate:"omitempty,gt=0"`
	IsActive          bool            `json:"is_active"`
}
