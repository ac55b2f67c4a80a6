package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/officine-erp/officine-erp/internal/shared"
	"github.com/officine-erp/officine-erp/internal/stock"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, tenantID, id int64) (Sale, []SaleLine, error)
	ListSales(ctx context.Context, tenantID int64, limit int) ([]Sale, error)
}

// StockPort exposes the required stock engine integration.
type StockPort interface {
	Allocate(ctx context.Context, input stock.AllocationInput) (stock.AllocationPlan, error)
	Return(ctx context.Context, input stock.ReturnInput) (stock.Movement, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates point-of-sale checkouts.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	stock  StockPort
	audit  AuditPort
}

// NewService constructs the sales service.
func NewService(logger *slog.Logger, repo RepositoryPort, stockPort StockPort, audit AuditPort) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, stock: stockPort, audit: audit}
}

// CheckoutInput describes one POS basket.
type CheckoutInput struct {
	TenantID int64
	ActorID  int64
	Number   string
	Lines    []CheckoutLine
}

// CheckoutLine is one basket line.
type CheckoutLine struct {
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
}

// CheckoutResult is the persisted sale plus the per-line allocation detail
// and the formatted ticket total.
type CheckoutResult struct {
	Sale         Sale                   `json:"sale"`
	Lines        []SaleLine             `json:"lines"`
	Allocations  []stock.AllocationPlan `json:"allocations"`
	ReceiptTotal string                 `json:"receipt_total"`
}

// Checkout allocates stock for every basket line and persists the sale.
// Allocation failures after the first line are compensated by returning the
// already-deducted quantities to their lots.
func (s *Service) Checkout(ctx context.Context, input CheckoutInput) (CheckoutResult, error) {
	if input.TenantID <= 0 || len(input.Lines) == 0 {
		return CheckoutResult{}, ErrValidation
	}
	for _, line := range input.Lines {
		if line.ProductID <= 0 || line.Quantity <= 0 || line.UnitPrice.IsNegative() {
			return CheckoutResult{}, ErrValidation
		}
	}
	if input.Number == "" {
		input.Number = fmt.Sprintf("POS-%d", time.Now().UnixNano())
	}

	plans := make([]stock.AllocationPlan, 0, len(input.Lines))
	for _, line := range input.Lines {
		plan, err := s.stock.Allocate(ctx, stock.AllocationInput{
			TenantID:  input.TenantID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			ActorID:   input.ActorID,
			Reason:    fmt.Sprintf("sale %s", input.Number),
		})
		if err != nil {
			s.compensate(ctx, input, plans)
			return CheckoutResult{}, err
		}
		plans = append(plans, plan)
	}

	sale := Sale{
		TenantID: input.TenantID,
		Number:   input.Number,
		Status:   SaleStatusCompleted,
		SoldAt:   time.Now().UTC(),
		ActorID:  input.ActorID,
	}
	lines := make([]SaleLine, 0, len(input.Lines))
	total := decimal.Zero
	for _, line := range input.Lines {
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity))
		total = total.Add(lineTotal)
		lines = append(lines, SaleLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: lineTotal,
		})
	}
	sale.Total = total

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saleID, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = saleID
		for i := range lines {
			lines[i].SaleID = saleID
			lineID, err := tx.InsertLine(ctx, lines[i])
			if err != nil {
				return err
			}
			lines[i].ID = lineID
		}
		return nil
	})
	if err != nil {
		s.compensate(ctx, input, plans)
		return CheckoutResult{}, err
	}

	s.recordAudit(ctx, input.TenantID, input.ActorID, "SALE_CHECKOUT", sale.ID, map[string]any{
		"number": sale.Number,
		"total":  sale.Total.String(),
	})
	return CheckoutResult{
		Sale:         sale,
		Lines:        lines,
		Allocations:  plans,
		ReceiptTotal: FormatReceiptTotal(sale.Total),
	}, nil
}

// compensate puts already-allocated quantities back on their lots after a
// failed checkout. Failures here are logged, not returned; the ledger keeps
// both the sale deduction and the compensating return.
func (s *Service) compensate(ctx context.Context, input CheckoutInput, plans []stock.AllocationPlan) {
	for _, plan := range plans {
		for _, d := range plan.Deductions {
			_, err := s.stock.Return(ctx, stock.ReturnInput{
				TenantID: input.TenantID,
				LotID:    d.LotID,
				Quantity: d.Quantity,
				ActorID:  input.ActorID,
				Reason:   fmt.Sprintf("checkout %s aborted", input.Number),
			})
			if err != nil {
				s.logger.Error("checkout compensation failed",
					slog.Int64("lot_id", d.LotID),
					slog.Int64("quantity", d.Quantity),
					slog.Any("error", err))
			}
		}
	}
}

// Sale loads one sale with its lines.
func (s *Service) Sale(ctx context.Context, tenantID, id int64) (Sale, []SaleLine, error) {
	return s.repo.GetSale(ctx, tenantID, id)
}

// Sales lists recent sales.
func (s *Service) Sales(ctx context.Context, tenantID int64, limit int) ([]Sale, error) {
	return s.repo.ListSales(ctx, tenantID, limit)
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{TenantID: tenantID, ActorID: actorID, Action: action, Entity: "sales", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
