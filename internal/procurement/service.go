package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/officine-erp/officine-erp/internal/shared"
	"github.com/officine-erp/officine-erp/internal/stock"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReceipt(ctx context.Context, tenantID, id int64) (GoodsReceipt, []ReceiptLine, error)
	ListReceipts(ctx context.Context, tenantID int64, limit int) ([]GoodsReceipt, error)
}

// StockPort exposes the required stock engine integration.
type StockPort interface {
	CreateLot(ctx context.Context, input stock.CreateLotInput) (stock.Lot, error)
	Destroy(ctx context.Context, input stock.DestructionInput) (stock.Movement, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates goods receipts and lot imports.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	stock       StockPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs the procurement service.
func NewService(logger *slog.Logger, repo RepositoryPort, stockPort StockPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, stock: stockPort, audit: audit, idempotency: idem}
}

// CreateReceiptInput describes a receipt creation payload.
type CreateReceiptInput struct {
	TenantID   int64
	Number     string
	SupplierID int64
	ReceivedAt time.Time
	Note       string
	ActorID    int64
	Lines      []ReceiptLineInput
}

// ReceiptLineInput describes one received line.
type ReceiptLineInput struct {
	ProductID int64
	Quantity  int64
	UnitCost  decimal.Decimal
	LotNumber string
	ExpiresAt *time.Time
	Location  string
}

// ImportLotsInput describes a bulk lot import payload.
type ImportLotsInput struct {
	TenantID int64
	ActorID  int64
	Reason   string
	Rows     []ReceiptLineInput
}

// CreateReceipt persists the receipt header and lines in DRAFT state.
func (s *Service) CreateReceipt(ctx context.Context, input CreateReceiptInput) (GoodsReceipt, error) {
	if input.TenantID <= 0 || input.SupplierID <= 0 {
		return GoodsReceipt{}, ErrValidation
	}
	if len(input.Lines) == 0 {
		return GoodsReceipt{}, ErrValidation
	}
	if input.Number == "" {
		input.Number = generateNumber("GRN")
	}
	receipt := GoodsReceipt{
		TenantID:   input.TenantID,
		Number:     input.Number,
		SupplierID: input.SupplierID,
		Status:     ReceiptStatusDraft,
		ReceivedAt: defaultTime(input.ReceivedAt),
		Note:       input.Note,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateReceipt(ctx, receipt)
		if err != nil {
			return err
		}
		receipt.ID = id
		for _, line := range input.Lines {
			if line.ProductID <= 0 || line.Quantity <= 0 || line.UnitCost.IsNegative() {
				return ErrValidation
			}
			if _, err := tx.InsertLine(ctx, ReceiptLine{
				ReceiptID: id,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitCost:  line.UnitCost,
				LotNumber: line.LotNumber,
				ExpiresAt: line.ExpiresAt,
				Location:  line.Location,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, input.TenantID, input.ActorID, "GRN_CREATE", receipt.ID, map[string]any{"number": receipt.Number})
	return receipt, nil
}

// PostReceipt posts a DRAFT receipt: every line becomes a stock lot with an
// initial movement. Posting the same receipt twice is rejected through the
// idempotency store.
func (s *Service) PostReceipt(ctx context.Context, tenantID, receiptID, actorID int64) error {
	receipt, lines, err := s.repo.GetReceipt(ctx, tenantID, receiptID)
	if err != nil {
		return err
	}
	if receipt.Status != ReceiptStatusDraft {
		return ErrInvalidState
	}

	key := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("GRN:%d:%s", tenantID, receipt.Number))).String()
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "procurement.receipt"); err != nil {
			return err
		}
		inserted = true
	}

	// Lot creation commits in the stock engine's own transaction, so a failure
	// midway leaves earlier lots live. created tracks them for compensation.
	generator := stock.NewLotNumberGenerator()
	created := make([]stock.Lot, 0, len(lines))
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateReceiptStatus(ctx, tenantID, receiptID, ReceiptStatusPosted); err != nil {
			return err
		}
		for i, line := range lines {
			lotNumber := line.LotNumber
			if lotNumber == "" {
				lotNumber = generator.Generate(line.ProductID, i)
			}
			lot, err := s.stock.CreateLot(ctx, stock.CreateLotInput{
				TenantID:  tenantID,
				ProductID: line.ProductID,
				LotNumber: lotNumber,
				Quantity:  line.Quantity,
				UnitCost:  line.UnitCost,
				ExpiresAt: line.ExpiresAt,
				Location:  line.Location,
				ActorID:   actorID,
				Reason:    fmt.Sprintf("GRN %s", receipt.Number),
			})
			if err != nil {
				return err
			}
			created = append(created, lot)
			if err := tx.SetLineLot(ctx, line.ID, lot.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.compensateLots(ctx, tenantID, actorID, fmt.Sprintf("GRN %s post aborted", receipt.Number), created)
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return err
	}
	s.recordAudit(ctx, tenantID, actorID, "GRN_POST", receiptID, map[string]any{"number": receipt.Number, "lines": len(lines)})
	return nil
}

// CancelReceipt cancels a DRAFT receipt.
func (s *Service) CancelReceipt(ctx context.Context, tenantID, receiptID, actorID int64) error {
	receipt, _, err := s.repo.GetReceipt(ctx, tenantID, receiptID)
	if err != nil {
		return err
	}
	if receipt.Status != ReceiptStatusDraft {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateReceiptStatus(ctx, tenantID, receiptID, ReceiptStatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenantID, actorID, "GRN_CANCEL", receiptID, map[string]any{"number": receipt.Number})
	return nil
}

// ImportLots ingests lots directly, bypassing the receipt workflow. Rows
// without a lot number get one from a generator owned by this call, so rows
// for the same product in one import never collide.
func (s *Service) ImportLots(ctx context.Context, input ImportLotsInput) ([]stock.Lot, error) {
	if input.TenantID <= 0 {
		return nil, ErrValidation
	}
	if len(input.Rows) == 0 {
		return nil, ErrValidation
	}

	for i, row := range input.Rows {
		if row.ProductID <= 0 || row.Quantity <= 0 || row.UnitCost.IsNegative() {
			return nil, fmt.Errorf("%w: row %d", ErrValidation, i)
		}
	}

	generator := stock.NewLotNumberGenerator()
	lots := make([]stock.Lot, 0, len(input.Rows))
	for i, row := range input.Rows {
		lotNumber := row.LotNumber
		if lotNumber == "" {
			lotNumber = generator.Generate(row.ProductID, i)
		}
		lot, err := s.stock.CreateLot(ctx, stock.CreateLotInput{
			TenantID:  input.TenantID,
			ProductID: row.ProductID,
			LotNumber: lotNumber,
			Quantity:  row.Quantity,
			UnitCost:  row.UnitCost,
			ExpiresAt: row.ExpiresAt,
			Location:  row.Location,
			ActorID:   input.ActorID,
			Reason:    defaultString(input.Reason, "bulk import"),
		})
		if err != nil {
			s.compensateLots(ctx, input.TenantID, input.ActorID, "bulk import aborted", lots)
			return nil, fmt.Errorf("import row %d: %w", i, err)
		}
		lots = append(lots, lot)
	}
	s.recordAudit(ctx, input.TenantID, input.ActorID, "LOT_IMPORT", input.TenantID, map[string]any{"rows": len(lots)})
	return lots, nil
}

// Receipt exposes one receipt with its lines.
func (s *Service) Receipt(ctx context.Context, tenantID, id int64) (GoodsReceipt, []ReceiptLine, error) {
	return s.repo.GetReceipt(ctx, tenantID, id)
}

// Receipts lists receipt headers.
func (s *Service) Receipts(ctx context.Context, tenantID int64, limit int) ([]GoodsReceipt, error) {
	return s.repo.ListReceipts(ctx, tenantID, limit)
}

// compensateLots writes off lots created by a post that failed partway. The
// ledger keeps both the initial load and the write-off; failures here are
// logged, not returned.
func (s *Service) compensateLots(ctx context.Context, tenantID, actorID int64, reason string, created []stock.Lot) {
	for _, lot := range created {
		_, err := s.stock.Destroy(ctx, stock.DestructionInput{
			TenantID: tenantID,
			LotID:    lot.ID,
			Quantity: lot.QuantityRemaining,
			ActorID:  actorID,
			Reason:   reason,
		})
		if err != nil {
			s.logger.Error("receipt post compensation failed",
				slog.Int64("lot_id", lot.ID),
				slog.Int64("quantity", lot.QuantityRemaining),
				slog.Any("error", err))
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{TenantID: tenantID, ActorID: actorID, Action: action, Entity: "procurement", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now()
	}
	return value
}
