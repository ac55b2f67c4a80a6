package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/officine-erp/officine-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListLots(ctx context.Context, tenantID, productID int64) ([]Lot, error)
	ProductQuantity(ctx context.Context, tenantID, productID int64) (int64, error)
	Movements(ctx context.Context, tenantID, lotID int64, limit int) ([]Movement, error)
}

// ProductPort resolves the per-product threshold overrides.
type ProductPort interface {
	Thresholds(ctx context.Context, tenantID, productID int64) (ProductThresholds, error)
}

// SettingsPort resolves the per-tenant fallback thresholds.
type SettingsPort interface {
	AlertSettings(ctx context.Context, tenantID int64) (TenantAlertSettings, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the lot-based stock engine: FIFO allocation, movement
// recording and on-demand classification.
type Service struct {
	repo        RepositoryPort
	products    ProductPort
	settings    SettingsPort
	audit       AuditPort
	metrics     *Metrics
	maxAttempts int
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// MaxAllocateAttempts bounds the retry loop on serialization conflicts.
	MaxAllocateAttempts int
}

// NewService builds Service.
func NewService(repo RepositoryPort, products ProductPort, settings SettingsPort, audit AuditPort, metrics *Metrics, cfg ServiceConfig) *Service {
	attempts := cfg.MaxAllocateAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Service{repo: repo, products: products, settings: settings, audit: audit, metrics: metrics, maxAttempts: attempts}
}

// Allocate satisfies a consumption request across one or more lots in
// first-expiring-first-out order. The whole computation runs as a single
// transaction: either every lot in the plan is deducted and every movement
// recorded, or nothing is. Serialization conflicts are retried a bounded number
// of times before surfacing ErrConcurrentModification.
func (s *Service) Allocate(ctx context.Context, input AllocationInput) (AllocationPlan, error) {
	if input.TenantID == 0 || input.ProductID == 0 {
		return AllocationPlan{}, errors.New("stock: tenant and product required")
	}
	if input.Quantity < 0 {
		return AllocationPlan{}, ErrInvalidRequest
	}
	plan := AllocationPlan{TenantID: input.TenantID, ProductID: input.ProductID, Requested: input.Quantity}
	if input.Quantity == 0 {
		return plan, nil
	}

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		plan.Deductions = nil
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			lots, err := tx.LotsForAllocation(ctx, input.TenantID, input.ProductID)
			if err != nil {
				return err
			}
			remaining := input.Quantity
			var available int64
			for _, lot := range lots {
				available += lot.QuantityRemaining
			}
			if available < remaining {
				return &InsufficientStockError{
					TenantID:  input.TenantID,
					ProductID: input.ProductID,
					Requested: input.Quantity,
					Available: available,
				}
			}
			now := time.Now().UTC()
			for _, lot := range lots {
				if remaining == 0 {
					break
				}
				take := lot.QuantityRemaining
				if take > remaining {
					take = remaining
				}
				newQty, err := tx.ApplyDeduction(ctx, input.TenantID, lot.ID, take)
				if err != nil {
					return err
				}
				if _, err := recordMovement(ctx, tx, Movement{
					TenantID:       input.TenantID,
					Type:           MovementSale,
					LotID:          lot.ID,
					QuantityBefore: lot.QuantityRemaining,
					QuantityDelta:  -take,
					QuantityAfter:  newQty,
					ActorID:        input.ActorID,
					Reason:         input.Reason,
					RecordedAt:     now,
				}); err != nil {
					return err
				}
				plan.Deductions = append(plan.Deductions, Deduction{
					LotID:       lot.ID,
					LotNumber:   lot.LotNumber,
					Quantity:    take,
					NewQuantity: newQty,
				})
				remaining -= take
			}
			return nil
		})
		if err == nil {
			s.metrics.AllocationCommitted(len(plan.Deductions))
			s.recordAudit(ctx, input.TenantID, input.ActorID, "stock:allocate", input.ProductID, map[string]any{
				"requested": input.Quantity,
				"lots":      len(plan.Deductions),
			})
			return plan, nil
		}
		var insufficient *InsufficientStockError
		if errors.As(err, &insufficient) {
			s.metrics.AllocationRejected()
			return AllocationPlan{}, err
		}
		if !isSerializationFailure(err) {
			return AllocationPlan{}, err
		}
		lastErr = err
	}
	s.metrics.RetriesExhausted()
	return AllocationPlan{}, fmt.Errorf("%w: %w", ErrConcurrentModification, lastErr)
}

// Record appends a movement directly, outside an allocation. The conservation
// invariant is enforced at append time; the ledger exposes no update or delete.
func (s *Service) Record(ctx context.Context, m Movement) (int64, error) {
	if m.TenantID == 0 || m.LotID == 0 {
		return 0, errors.New("stock: tenant and lot required")
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = recordMovement(ctx, tx, m)
		return err
	})
	return id, err
}

// Adjust applies a signed correction to one lot.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Movement, error) {
	if input.Delta == 0 {
		return Movement{}, ErrInvalidRequest
	}
	return s.mutateLot(ctx, input.TenantID, input.LotID, input.Delta, MovementAdjustment, input.ActorID, input.Reason, 0)
}

// Return puts a customer return back into a lot.
func (s *Service) Return(ctx context.Context, input ReturnInput) (Movement, error) {
	if input.Quantity <= 0 {
		return Movement{}, ErrInvalidRequest
	}
	return s.mutateLot(ctx, input.TenantID, input.LotID, input.Quantity, MovementReturn, input.ActorID, input.Reason, 0)
}

// Destroy writes off expired or damaged quantity from a lot.
func (s *Service) Destroy(ctx context.Context, input DestructionInput) (Movement, error) {
	if input.Quantity <= 0 {
		return Movement{}, ErrInvalidRequest
	}
	return s.mutateLot(ctx, input.TenantID, input.LotID, -input.Quantity, MovementDestruction, input.ActorID, input.Reason, 0)
}

// Transfer moves quantity between two lots of the same product. The outbound
// movement carries the destination lot reference.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Movement, Movement, error) {
	if input.Quantity <= 0 {
		return Movement{}, Movement{}, ErrInvalidRequest
	}
	if input.FromLotID == input.ToLotID {
		return Movement{}, Movement{}, ErrLotMismatch
	}
	var out, in Movement
	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			// Lots are locked in ascending ID order so two opposing transfers
			// cannot deadlock on each other's rows.
			firstID, secondID := input.FromLotID, input.ToLotID
			if secondID < firstID {
				firstID, secondID = secondID, firstID
			}
			first, err := tx.GetLotForUpdate(ctx, input.TenantID, firstID)
			if err != nil {
				return err
			}
			second, err := tx.GetLotForUpdate(ctx, input.TenantID, secondID)
			if err != nil {
				return err
			}
			from, to := first, second
			if from.ID != input.FromLotID {
				from, to = second, first
			}
			if from.ProductID != to.ProductID {
				return ErrLotMismatch
			}
			newFrom, err := tx.ApplyDeduction(ctx, input.TenantID, from.ID, input.Quantity)
			if err != nil {
				return err
			}
			newTo, err := tx.ApplyAddition(ctx, input.TenantID, to.ID, input.Quantity)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			out = Movement{
				TenantID:         input.TenantID,
				Type:             MovementTransfer,
				LotID:            from.ID,
				DestinationLotID: to.ID,
				QuantityBefore:   from.QuantityRemaining,
				QuantityDelta:    -input.Quantity,
				QuantityAfter:    newFrom,
				ActorID:          input.ActorID,
				Reason:           input.Reason,
				RecordedAt:       now,
			}
			in = Movement{
				TenantID:       input.TenantID,
				Type:           MovementTransfer,
				LotID:          to.ID,
				QuantityBefore: to.QuantityRemaining,
				QuantityDelta:  input.Quantity,
				QuantityAfter:  newTo,
				ActorID:        input.ActorID,
				Reason:         input.Reason,
				RecordedAt:     now,
			}
			if out.ID, err = recordMovement(ctx, tx, out); err != nil {
				return err
			}
			if in.ID, err = recordMovement(ctx, tx, in); err != nil {
				return err
			}
			return nil
		})
		if err == nil {
			s.recordAudit(ctx, input.TenantID, input.ActorID, "stock:transfer", input.FromLotID, map[string]any{
				"to_lot": input.ToLotID,
				"qty":    input.Quantity,
			})
			return out, in, nil
		}
		if !isSerializationFailure(err) {
			return Movement{}, Movement{}, err
		}
		lastErr = err
	}
	s.metrics.RetriesExhausted()
	return Movement{}, Movement{}, fmt.Errorf("%w: %w", ErrConcurrentModification, lastErr)
}

// CreateLot registers a freshly received lot and seeds it with an initial
// movement.
func (s *Service) CreateLot(ctx context.Context, input CreateLotInput) (Lot, error) {
	if input.TenantID == 0 || input.ProductID == 0 {
		return Lot{}, errors.New("stock: tenant and product required")
	}
	if input.Quantity <= 0 {
		return Lot{}, ErrInvalidRequest
	}
	if input.LotNumber == "" {
		return Lot{}, errors.New("stock: lot number required")
	}
	lot := Lot{
		TenantID:          input.TenantID,
		ProductID:         input.ProductID,
		LotNumber:         input.LotNumber,
		QuantityRemaining: input.Quantity,
		ExpiresAt:         input.ExpiresAt,
		UnitCost:          input.UnitCost,
		Location:          input.Location,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertLot(ctx, lot)
		if err != nil {
			return err
		}
		lot.ID = id
		_, err = recordMovement(ctx, tx, Movement{
			TenantID:       input.TenantID,
			Type:           MovementInitial,
			LotID:          id,
			QuantityBefore: 0,
			QuantityDelta:  input.Quantity,
			QuantityAfter:  input.Quantity,
			ActorID:        input.ActorID,
			Reason:         input.Reason,
			RecordedAt:     time.Now().UTC(),
		})
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	return lot, nil
}

// Lots lists the live lots of a product in allocation order.
func (s *Service) Lots(ctx context.Context, tenantID, productID int64) ([]Lot, error) {
	if tenantID == 0 || productID == 0 {
		return nil, errors.New("stock: tenant and product required")
	}
	return s.repo.ListLots(ctx, tenantID, productID)
}

// Movements returns the ledger of one lot.
func (s *Service) Movements(ctx context.Context, tenantID, lotID int64, limit int) ([]Movement, error) {
	if tenantID == 0 || lotID == 0 {
		return nil, errors.New("stock: tenant and lot required")
	}
	return s.repo.Movements(ctx, tenantID, lotID, limit)
}

// ResolveThresholds returns the effective threshold triple for a product.
func (s *Service) ResolveThresholds(ctx context.Context, tenantID, productID int64) (StockThresholds, error) {
	product, err := s.products.Thresholds(ctx, tenantID, productID)
	if err != nil {
		return StockThresholds{}, err
	}
	tenant, err := s.settings.AlertSettings(ctx, tenantID)
	if err != nil {
		return StockThresholds{}, err
	}
	return ResolveThresholds(product, tenant), nil
}

// ProductStatus is the on-demand classification of a product snapshot.
type ProductStatus struct {
	ProductID      int64           `json:"product_id"`
	Quantity       int64           `json:"quantity"`
	Thresholds     StockThresholds `json:"thresholds"`
	Classification Classification  `json:"classification"`
}

// Status classifies the current total quantity of a product.
func (s *Service) Status(ctx context.Context, tenantID, productID int64) (ProductStatus, error) {
	qty, err := s.repo.ProductQuantity(ctx, tenantID, productID)
	if err != nil {
		return ProductStatus{}, err
	}
	th, err := s.ResolveThresholds(ctx, tenantID, productID)
	if err != nil {
		return ProductStatus{}, err
	}
	classification, err := Classify(qty, th)
	if err != nil {
		return ProductStatus{}, err
	}
	return ProductStatus{ProductID: productID, Quantity: qty, Thresholds: th, Classification: classification}, nil
}

// mutateLot applies one signed delta to a single lot and records the movement.
func (s *Service) mutateLot(ctx context.Context, tenantID, lotID, delta int64, typ MovementType, actorID int64, reason string, destLotID int64) (Movement, error) {
	if tenantID == 0 || lotID == 0 {
		return Movement{}, errors.New("stock: tenant and lot required")
	}
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLotForUpdate(ctx, tenantID, lotID)
		if err != nil {
			return err
		}
		var newQty int64
		if delta < 0 {
			newQty, err = tx.ApplyDeduction(ctx, tenantID, lotID, -delta)
		} else {
			newQty, err = tx.ApplyAddition(ctx, tenantID, lotID, delta)
		}
		if err != nil {
			return err
		}
		movement = Movement{
			TenantID:         tenantID,
			Type:             typ,
			LotID:            lotID,
			DestinationLotID: destLotID,
			QuantityBefore:   lot.QuantityRemaining,
			QuantityDelta:    delta,
			QuantityAfter:    newQty,
			ActorID:          actorID,
			Reason:           reason,
			RecordedAt:       time.Now().UTC(),
		}
		movement.ID, err = recordMovement(ctx, tx, movement)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, fmt.Sprintf("stock:%s", typ), lotID, map[string]any{
		"delta": delta,
	})
	return movement, nil
}

// recordMovement enforces the conservation invariant at append time.
func recordMovement(ctx context.Context, tx TxRepository, m Movement) (int64, error) {
	if m.QuantityBefore+m.QuantityDelta != m.QuantityAfter {
		return 0, &InvariantViolationError{
			LotID:          m.LotID,
			QuantityBefore: m.QuantityBefore,
			QuantityDelta:  m.QuantityDelta,
			QuantityAfter:  m.QuantityAfter,
		}
	}
	if m.QuantityAfter < 0 {
		return 0, ErrInsufficientQuantity
	}
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now().UTC()
	}
	return tx.InsertMovement(ctx, m)
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

// isSerializationFailure reports whether the transaction lost a concurrency
// race and is safe to retry as a whole (SQLSTATE 40001, 40P01).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
