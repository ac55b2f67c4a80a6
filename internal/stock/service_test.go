package stock

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu        sync.Mutex
	lots      map[int64]*Lot
	movements []Movement
	nextLot   int64
	nextMove  int64

	// failSerialization makes the next N transactions fail with SQLSTATE 40001
	// after the callback ran, as a lost concurrency race would.
	failSerialization int

	// lockOrder records every GetLotForUpdate call.
	lockOrder []int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{lots: make(map[int64]*Lot)}
}

func (r *memoryRepo) addLot(tenantID, productID, qty int64, expires *time.Time) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextLot++
	r.lots[r.nextLot] = &Lot{
		ID:                r.nextLot,
		TenantID:          tenantID,
		ProductID:         productID,
		LotNumber:         "LOT-TEST",
		QuantityRemaining: qty,
		ExpiresAt:         expires,
		CreatedAt:         time.Now().Add(time.Duration(r.nextLot) * time.Second),
	}
	return r.nextLot
}

func (r *memoryRepo) quantity(lotID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lots[lotID].QuantityRemaining
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Snapshot for rollback so a failed callback leaves no partial mutation.
	lotsBackup := make(map[int64]*Lot, len(r.lots))
	for id, lot := range r.lots {
		copied := *lot
		lotsBackup[id] = &copied
	}
	movesBackup := len(r.movements)

	err := fn(ctx, &memoryTx{repo: r})
	if err == nil && r.failSerialization > 0 {
		r.failSerialization--
		err = &pgconn.PgError{Code: "40001"}
	}
	if err != nil {
		r.lots = lotsBackup
		r.movements = r.movements[:movesBackup]
		return err
	}
	return nil
}

func (r *memoryRepo) ListLots(ctx context.Context, tenantID, productID int64) ([]Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orderedLots(tenantID, productID), nil
}

func (r *memoryRepo) ProductQuantity(ctx context.Context, tenantID, productID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, lot := range r.lots {
		if lot.TenantID == tenantID && lot.ProductID == productID {
			total += lot.QuantityRemaining
		}
	}
	return total, nil
}

func (r *memoryRepo) Movements(ctx context.Context, tenantID, lotID int64, limit int) ([]Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []Movement{}
	for _, m := range r.movements {
		if m.TenantID == tenantID && m.LotID == lotID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *memoryRepo) orderedLots(tenantID, productID int64) []Lot {
	lots := []Lot{}
	for _, lot := range r.lots {
		if lot.TenantID == tenantID && lot.ProductID == productID && lot.QuantityRemaining > 0 {
			lots = append(lots, *lot)
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		switch {
		case a.ExpiresAt == nil && b.ExpiresAt != nil:
			return false
		case a.ExpiresAt != nil && b.ExpiresAt == nil:
			return true
		case a.ExpiresAt != nil && b.ExpiresAt != nil && !a.ExpiresAt.Equal(*b.ExpiresAt):
			return a.ExpiresAt.Before(*b.ExpiresAt)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ID < b.ID
		}
	})
	return lots
}

func (tx *memoryTx) LotsForAllocation(ctx context.Context, tenantID, productID int64) ([]Lot, error) {
	return tx.repo.orderedLots(tenantID, productID), nil
}

func (tx *memoryTx) GetLotForUpdate(ctx context.Context, tenantID, lotID int64) (Lot, error) {
	tx.repo.lockOrder = append(tx.repo.lockOrder, lotID)
	lot, ok := tx.repo.lots[lotID]
	if !ok || lot.TenantID != tenantID {
		return Lot{}, ErrLotNotFound
	}
	return *lot, nil
}

func (tx *memoryTx) ApplyDeduction(ctx context.Context, tenantID, lotID, amount int64) (int64, error) {
	lot, ok := tx.repo.lots[lotID]
	if !ok || lot.TenantID != tenantID {
		return 0, ErrLotNotFound
	}
	if lot.QuantityRemaining < amount {
		return 0, ErrInsufficientQuantity
	}
	lot.QuantityRemaining -= amount
	return lot.QuantityRemaining, nil
}

func (tx *memoryTx) ApplyAddition(ctx context.Context, tenantID, lotID, amount int64) (int64, error) {
	lot, ok := tx.repo.lots[lotID]
	if !ok || lot.TenantID != tenantID {
		return 0, ErrLotNotFound
	}
	lot.QuantityRemaining += amount
	return lot.QuantityRemaining, nil
}

func (tx *memoryTx) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	tx.repo.nextLot++
	lot.ID = tx.repo.nextLot
	lot.CreatedAt = time.Now()
	tx.repo.lots[lot.ID] = &lot
	return lot.ID, nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	tx.repo.nextMove++
	m.ID = tx.repo.nextMove
	tx.repo.movements = append(tx.repo.movements, m)
	return m.ID, nil
}

type staticProducts struct {
	thresholds ProductThresholds
}

func (p staticProducts) Thresholds(ctx context.Context, tenantID, productID int64) (ProductThresholds, error) {
	return p.thresholds, nil
}

type staticSettings struct {
	settings TenantAlertSettings
}

func (s staticSettings) AlertSettings(ctx context.Context, tenantID int64) (TenantAlertSettings, error) {
	return s.settings, nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, staticProducts{}, staticSettings{}, nil, nil, ServiceConfig{})
}

func daysFromNow(days int) *time.Time {
	t := time.Now().AddDate(0, 0, days)
	return &t
}

func TestAllocateFIFOSingleLot(t *testing.T) {
	repo := newMemoryRepo()
	first := repo.addLot(1, 10, 8, daysFromNow(5))
	second := repo.addLot(1, 10, 8, daysFromNow(30))
	svc := newTestService(repo)

	plan, err := svc.Allocate(context.Background(), AllocationInput{TenantID: 1, ProductID: 10, Quantity: 3})
	require.NoError(t, err)
	require.Len(t, plan.Deductions, 1)
	require.Equal(t, first, plan.Deductions[0].LotID)
	require.EqualValues(t, 3, plan.Deductions[0].Quantity)
	require.EqualValues(t, 5, repo.quantity(first))
	require.EqualValues(t, 8, repo.quantity(second))
}

func TestAllocateSpansLots(t *testing.T) {
	repo := newMemoryRepo()
	first := repo.addLot(1, 10, 5, daysFromNow(5))
	second := repo.addLot(1, 10, 3, daysFromNow(10))
	third := repo.addLot(1, 10, 10, daysFromNow(20))
	svc := newTestService(repo)

	plan, err := svc.Allocate(context.Background(), AllocationInput{TenantID: 1, ProductID: 10, Quantity: 7})
	require.NoError(t, err)
	require.Len(t, plan.Deductions, 2)
	require.Equal(t, first, plan.Deductions[0].LotID)
	require.EqualValues(t, 5, plan.Deductions[0].Quantity)
	require.Equal(t, second, plan.Deductions[1].LotID)
	require.EqualValues(t, 2, plan.Deductions[1].Quantity)
	require.EqualValues(t, 0, repo.quantity(first))
	require.EqualValues(t, 1, repo.quantity(second))
	require.EqualValues(t, 10, repo.quantity(third))
	require.EqualValues(t, 7, plan.Allocated())
}

func TestAllocateUndatedLotsSortLast(t *testing.T) {
	repo := newMemoryRepo()
	undated := repo.addLot(1, 10, 5, nil)
	dated := repo.addLot(1, 10, 5, daysFromNow(300))
	svc := newTestService(repo)

	plan, err := svc.Allocate(context.Background(), AllocationInput{TenantID: 1, ProductID: 10, Quantity: 5})
	require.NoError(t, err)
	require.Equal(t, dated, plan.Deductions[0].LotID)
	require.EqualValues(t, 5, repo.quantity(undated))
}

func TestAllocateInsufficientLeavesLotsUntouched(t *testing.T) {
	repo := newMemoryRepo()
	first := repo.addLot(1, 10, 5, daysFromNow(5))
	second := repo.addLot(1, 10, 3, daysFromNow(10))
	svc := newTestService(repo)

	_, err := svc.Allocate(context.Background(), AllocationInput{TenantID: 1, ProductID: 10, Quantity: 10})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.EqualValues(t, 2, insufficient.Shortfall())
	require.EqualValues(t, 8, insufficient.Available)
	require.EqualValues(t, 5, repo.quantity(first))
	require.EqualValues(t, 3, repo.quantity(second))
	require.Empty(t, repo.movements)
}

func TestAllocateZeroIsNoop(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 10, 5, daysFromNow(5))
	svc := newTestService(repo)

	plan, err := svc.Allocate(context.Background(), AllocationInput{TenantID: 1, ProductID: 10, Quantity: 0})
	require.NoError(t, err)
	require.Empty(t, plan.Deductions)
	require.Empty(t, repo.movements)
}

func TestAllocateNegativeRejected(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.Allocate(context.Background(), AllocationInput{TenantID: 1, ProductID: 10, Quantity: -1})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAllocateMovementsConserveQuantity(t *testing.T) {
	repo := newMemoryRepo()
	repo.addLot(1, 10, 5, daysFromNow(5))
	repo.addLot(1, 10, 3, daysFromNow(10))
	svc := newTestService(repo)

	_, err := svc.Allocate(context.Background(), AllocationInput{TenantID: 1, ProductID: 10, Quantity: 7})
	require.NoError(t, err)
	require.Len(t, repo.movements, 2)
	for _, m := range repo.movements {
		require.Equal(t, MovementSale, m.Type)
		require.Equal(t, m.QuantityAfter, m.QuantityBefore+m.QuantityDelta)
		require.Negative(t, m.QuantityDelta)
	}
}

func TestAllocateRetriesSerializationFailures(t *testing.T) {
	repo := newMemoryRepo()
	lot := repo.addLot(1, 10, 10, daysFromNow(5))
	repo.failSerialization = 2
	svc := newTestService(repo)

	plan, err := svc.Allocate(context.Background(), AllocationInput{TenantID: 1, ProductID: 10, Quantity: 4})
	require.NoError(t, err)
	require.Len(t, plan.Deductions, 1)
	require.EqualValues(t, 6, repo.quantity(lot))
}

func TestAllocateRetryBudgetExhausted(t *testing.T) {
	repo := newMemoryRepo()
	lot := repo.addLot(1, 10, 10, daysFromNow(5))
	repo.failSerialization = 10
	svc := newTestService(repo)

	_, err := svc.Allocate(context.Background(), AllocationInput{TenantID: 1, ProductID: 10, Quantity: 4})
	require.ErrorIs(t, err, ErrConcurrentModification)
	require.EqualValues(t, 10, repo.quantity(lot))
	require.Empty(t, repo.movements)
}

func TestConcurrentAllocationsNeverOversell(t *testing.T) {
	repo := newMemoryRepo()
	lot := repo.addLot(1, 10, 10, daysFromNow(5))
	svc := newTestService(repo)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Allocate(context.Background(), AllocationInput{TenantID: 1, ProductID: 10, Quantity: 6})
		}(i)
	}
	wg.Wait()

	var succeeded, failed int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
		failed++
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, failed)
	require.EqualValues(t, 4, repo.quantity(lot))
}

func TestRecordRejectsInvariantViolation(t *testing.T) {
	repo := newMemoryRepo()
	lot := repo.addLot(1, 10, 5, daysFromNow(5))
	svc := newTestService(repo)

	_, err := svc.Record(context.Background(), Movement{
		TenantID:       1,
		Type:           MovementAdjustment,
		LotID:          lot,
		QuantityBefore: 5,
		QuantityDelta:  -2,
		QuantityAfter:  4,
	})
	var violation *InvariantViolationError
	require.ErrorAs(t, err, &violation)
	require.Empty(t, repo.movements)
}

func TestAdjustNegativeBeyondRemainder(t *testing.T) {
	repo := newMemoryRepo()
	lot := repo.addLot(1, 10, 3, daysFromNow(5))
	svc := newTestService(repo)

	_, err := svc.Adjust(context.Background(), AdjustmentInput{TenantID: 1, LotID: lot, Delta: -5, Reason: "casse"})
	require.ErrorIs(t, err, ErrInsufficientQuantity)
	require.EqualValues(t, 3, repo.quantity(lot))
}

func TestAdjustRecordsMovement(t *testing.T) {
	repo := newMemoryRepo()
	lot := repo.addLot(1, 10, 3, daysFromNow(5))
	svc := newTestService(repo)

	movement, err := svc.Adjust(context.Background(), AdjustmentInput{TenantID: 1, LotID: lot, Delta: 4, Reason: "inventaire"})
	require.NoError(t, err)
	require.Equal(t, MovementAdjustment, movement.Type)
	require.EqualValues(t, 3, movement.QuantityBefore)
	require.EqualValues(t, 7, movement.QuantityAfter)
	require.EqualValues(t, 7, repo.quantity(lot))
}

func TestTransferBetweenLots(t *testing.T) {
	repo := newMemoryRepo()
	from := repo.addLot(1, 10, 8, daysFromNow(5))
	to := repo.addLot(1, 10, 2, daysFromNow(30))
	svc := newTestService(repo)

	out, in, err := svc.Transfer(context.Background(), TransferInput{TenantID: 1, FromLotID: from, ToLotID: to, Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, to, out.DestinationLotID)
	require.EqualValues(t, 5, out.QuantityAfter)
	require.EqualValues(t, 5, in.QuantityAfter)
	require.EqualValues(t, 5, repo.quantity(from))
	require.EqualValues(t, 5, repo.quantity(to))
}

func TestTransferLocksLotsInAscendingIDOrder(t *testing.T) {
	repo := newMemoryRepo()
	first := repo.addLot(1, 10, 8, daysFromNow(5))
	second := repo.addLot(1, 10, 2, daysFromNow(30))
	svc := newTestService(repo)

	// Transferring from the higher ID still locks the lower ID first, so two
	// opposing transfers cannot deadlock.
	out, in, err := svc.Transfer(context.Background(), TransferInput{TenantID: 1, FromLotID: second, ToLotID: first, Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, []int64{first, second}, repo.lockOrder)
	require.EqualValues(t, second, out.LotID)
	require.EqualValues(t, first, in.LotID)
	require.EqualValues(t, 10, repo.quantity(first))
	require.EqualValues(t, 0, repo.quantity(second))
}

func TestTransferRetriesSerializationFailures(t *testing.T) {
	repo := newMemoryRepo()
	from := repo.addLot(1, 10, 8, daysFromNow(5))
	to := repo.addLot(1, 10, 2, daysFromNow(30))
	svc := newTestService(repo)

	repo.failSerialization = 1
	_, _, err := svc.Transfer(context.Background(), TransferInput{TenantID: 1, FromLotID: from, ToLotID: to, Quantity: 3})
	require.NoError(t, err)
	require.EqualValues(t, 5, repo.quantity(from))
	require.EqualValues(t, 5, repo.quantity(to))

	repo.failSerialization = 10
	_, _, err = svc.Transfer(context.Background(), TransferInput{TenantID: 1, FromLotID: from, ToLotID: to, Quantity: 1})
	require.ErrorIs(t, err, ErrConcurrentModification)
}

func TestTransferAcrossProductsRejected(t *testing.T) {
	repo := newMemoryRepo()
	from := repo.addLot(1, 10, 8, daysFromNow(5))
	to := repo.addLot(1, 11, 2, daysFromNow(30))
	svc := newTestService(repo)

	_, _, err := svc.Transfer(context.Background(), TransferInput{TenantID: 1, FromLotID: from, ToLotID: to, Quantity: 3})
	require.ErrorIs(t, err, ErrLotMismatch)
	require.EqualValues(t, 8, repo.quantity(from))
}

func TestDestroyAndReturn(t *testing.T) {
	repo := newMemoryRepo()
	lot := repo.addLot(1, 10, 6, daysFromNow(5))
	svc := newTestService(repo)

	destroyed, err := svc.Destroy(context.Background(), DestructionInput{TenantID: 1, LotID: lot, Quantity: 2, Reason: "périmé"})
	require.NoError(t, err)
	require.Equal(t, MovementDestruction, destroyed.Type)
	require.EqualValues(t, 4, repo.quantity(lot))

	returned, err := svc.Return(context.Background(), ReturnInput{TenantID: 1, LotID: lot, Quantity: 1, Reason: "retour client"})
	require.NoError(t, err)
	require.Equal(t, MovementReturn, returned.Type)
	require.EqualValues(t, 5, repo.quantity(lot))
}

func TestCreateLotSeedsInitialMovement(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	lot, err := svc.CreateLot(context.Background(), CreateLotInput{
		TenantID:  1,
		ProductID: 10,
		LotNumber: "LOT-20260801-000001-0001",
		Quantity:  12,
	})
	require.NoError(t, err)
	require.NotZero(t, lot.ID)
	require.Len(t, repo.movements, 1)
	m := repo.movements[0]
	require.Equal(t, MovementInitial, m.Type)
	require.EqualValues(t, 0, m.QuantityBefore)
	require.EqualValues(t, 12, m.QuantityAfter)
}

func TestCrossTenantLotIsInvisible(t *testing.T) {
	repo := newMemoryRepo()
	lot := repo.addLot(2, 10, 5, daysFromNow(5))
	svc := newTestService(repo)

	_, err := svc.Adjust(context.Background(), AdjustmentInput{TenantID: 1, LotID: lot, Delta: -1, Reason: "test"})
	require.ErrorIs(t, err, ErrLotNotFound)
}
