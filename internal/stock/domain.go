package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported lot movements.
type MovementType string

const (
	// MovementSale represents an outbound sale allocation.
	MovementSale MovementType = "sale"
	// MovementAdjustment represents a manual correction, positive or negative.
	MovementAdjustment MovementType = "adjustment"
	// MovementTransfer moves quantity between two lots of the same product.
	MovementTransfer MovementType = "transfer"
	// MovementReturn puts a customer return back into a lot.
	MovementReturn MovementType = "return"
	// MovementDestruction writes off expired or damaged stock.
	MovementDestruction MovementType = "destruction"
	// MovementInitial seeds a freshly received lot.
	MovementInitial MovementType = "initial"
)

// Lot models a receipt batch of a single product. Lots are never deleted; an
// exhausted lot keeps its row with quantity_remaining = 0 as a historical record.
type Lot struct {
	ID                int64
	TenantID          int64
	ProductID         int64
	LotNumber         string
	QuantityRemaining int64
	ExpiresAt         *time.Time
	UnitCost          decimal.Decimal
	Location          string
	CreatedAt         time.Time
}

// Movement is an immutable ledger entry describing one quantity change on a lot.
type Movement struct {
	ID               int64
	TenantID         int64
	Type             MovementType
	LotID            int64
	DestinationLotID int64
	QuantityBefore   int64
	QuantityDelta    int64
	QuantityAfter    int64
	ActorID          int64
	Reason           string
	RecordedAt       time.Time
}

// Deduction is one entry of an allocation plan.
type Deduction struct {
	LotID       int64
	LotNumber   string
	Quantity    int64
	NewQuantity int64
}

// AllocationPlan describes how a requested quantity was satisfied across lots.
type AllocationPlan struct {
	TenantID   int64
	ProductID  int64
	Requested  int64
	Deductions []Deduction
}

// Allocated returns the total quantity covered by the plan.
func (p AllocationPlan) Allocated() int64 {
	var total int64
	for _, d := range p.Deductions {
		total += d.Quantity
	}
	return total
}

// AllocationInput describes a consumption request.
type AllocationInput struct {
	TenantID  int64
	ProductID int64
	Quantity  int64
	ActorID   int64
	Reason    string
}

// AdjustmentInput applies a signed correction to one lot.
type AdjustmentInput struct {
	TenantID int64
	LotID    int64
	Delta    int64
	ActorID  int64
	Reason   string
}

// TransferInput moves quantity between two lots of the same product.
type TransferInput struct {
	TenantID  int64
	FromLotID int64
	ToLotID   int64
	Quantity  int64
	ActorID   int64
	Reason    string
}

// ReturnInput puts quantity back into a lot.
type ReturnInput struct {
	TenantID int64
	LotID    int64
	Quantity int64
	ActorID  int64
	Reason   string
}

// DestructionInput writes off quantity from a lot.
type DestructionInput struct {
	TenantID int64
	LotID    int64
	Quantity int64
	ActorID  int64
	Reason   string
}

// CreateLotInput registers a new lot on goods receipt or import.
type CreateLotInput struct {
	TenantID  int64
	ProductID int64
	LotNumber string
	Quantity  int64
	UnitCost  decimal.Decimal
	ExpiresAt *time.Time
	Location  string
	ActorID   int64
	Reason    string
}

// ErrInvalidRequest indicates a negative or otherwise malformed requested quantity.
var ErrInvalidRequest = errors.New("stock: invalid requested quantity")

// ErrLotNotFound indicates the lot is missing or belongs to another tenant.
var ErrLotNotFound = errors.New("stock: lot not found")

// ErrInsufficientQuantity indicates a deduction larger than the lot remainder.
var ErrInsufficientQuantity = errors.New("stock: insufficient quantity on lot")

// ErrConcurrentModification indicates the allocation retry budget was exhausted.
var ErrConcurrentModification = errors.New("stock: concurrent modification, retry later")

// ErrLotMismatch indicates a transfer between lots of different products.
var ErrLotMismatch = errors.New("stock: transfer requires lots of the same product")

// InsufficientStockError reports the exact shortfall so the caller can decide
// whether to partially fulfil from other sources.
type InsufficientStockError struct {
	TenantID  int64
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// Shortfall is the quantity that could not be covered.
func (e *InsufficientStockError) Shortfall() int64 {
	return e.Requested - e.Available
}

// InvariantViolationError indicates a movement whose before/after quantities do
// not balance. It points at a bug elsewhere in the system, never at user input.
type InvariantViolationError struct {
	LotID          int64
	QuantityBefore int64
	QuantityDelta  int64
	QuantityAfter  int64
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("stock: movement conservation violated on lot %d: %d + %d != %d", e.LotID, e.QuantityBefore, e.QuantityDelta, e.QuantityAfter)
}
