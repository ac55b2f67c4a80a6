package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Goods receipt lifecycle statuses.
type ReceiptStatus string

const (
	ReceiptStatusDraft     ReceiptStatus = "DRAFT"
	ReceiptStatusPosted    ReceiptStatus = "POSTED"
	ReceiptStatusCancelled ReceiptStatus = "CANCELLED"
)

// GoodsReceipt records a delivery from a supplier. Posting it turns every
// line into a stock lot.
type GoodsReceipt struct {
	ID         int64         `json:"id"`
	TenantID   int64         `json:"tenant_id"`
	Number     string        `json:"number"`
	SupplierID int64         `json:"supplier_id"`
	Status     ReceiptStatus `json:"status"`
	ReceivedAt time.Time     `json:"received_at"`
	Note       string        `json:"note"`
}

// ReceiptLine describes one received product. LotNumber is the supplier's
// printed lot number when known, otherwise one is generated at posting time.
type ReceiptLine struct {
	ID        int64           `json:"id"`
	ReceiptID int64           `json:"receipt_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	LotNumber string          `json:"lot_number"`
	ExpiresAt *time.Time      `json:"expires_at"`
	Location  string          `json:"location"`
	LotID     *int64          `json:"lot_id"`
}

var (
	// ErrInvalidState occurs when an action violates the status workflow.
	ErrInvalidState = errors.New("procurement: invalid state transition")
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("procurement: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
)
