// Package sales implements the point-of-sale checkout. Each checkout line
// draws stock through the FIFO allocation engine; the sale is only persisted
// once every line has been covered.
package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "COMPLETED"
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

// Sale is a completed point-of-sale transaction.
type Sale struct {
	ID       int64           `json:"id"`
	TenantID int64           `json:"tenant_id"`
	Number   string          `json:"number"`
	Status   SaleStatus      `json:"status"`
	Total    decimal.Decimal `json:"total"`
	SoldAt   time.Time       `json:"sold_at"`
	ActorID  int64           `json:"actor_id"`
}

// SaleLine is one sold product with the lots it was drawn from.
type SaleLine struct {
	ID        int64           `json:"id"`
	SaleID    int64           `json:"sale_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

var (
	// ErrValidation indicates invalid checkout input.
	ErrValidation = errors.New("sales: invalid input")
	// ErrNotFound indicates a missing sale.
	ErrNotFound = errors.New("sales: not found")
)
