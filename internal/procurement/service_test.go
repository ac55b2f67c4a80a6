package procurement

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/officine-erp/officine-erp/internal/stock"
)

type memoryRepo struct {
	receipts map[int64]*GoodsReceipt
	lines    map[int64][]ReceiptLine
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		receipts: make(map[int64]*GoodsReceipt),
		lines:    make(map[int64][]ReceiptLine),
		nextID:   1,
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepo) GetReceipt(ctx context.Context, tenantID, id int64) (GoodsReceipt, []ReceiptLine, error) {
	receipt, ok := m.receipts[id]
	if !ok || receipt.TenantID != tenantID {
		return GoodsReceipt{}, nil, ErrNotFound
	}
	return *receipt, m.lines[id], nil
}

func (m *memoryRepo) ListReceipts(ctx context.Context, tenantID int64, limit int) ([]GoodsReceipt, error) {
	var out []GoodsReceipt
	for _, r := range m.receipts {
		if r.TenantID == tenantID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) CreateReceipt(ctx context.Context, receipt GoodsReceipt) (int64, error) {
	id := t.repo.nextID
	t.repo.nextID++
	receipt.ID = id
	t.repo.receipts[id] = &receipt
	return id, nil
}

func (t *memoryTx) InsertLine(ctx context.Context, line ReceiptLine) (int64, error) {
	id := t.repo.nextID
	t.repo.nextID++
	line.ID = id
	t.repo.lines[line.ReceiptID] = append(t.repo.lines[line.ReceiptID], line)
	return id, nil
}

func (t *memoryTx) UpdateReceiptStatus(ctx context.Context, tenantID, id int64, status ReceiptStatus) error {
	receipt, ok := t.repo.receipts[id]
	if !ok || receipt.TenantID != tenantID {
		return ErrNotFound
	}
	receipt.Status = status
	return nil
}

func (t *memoryTx) SetLineLot(ctx context.Context, lineID, lotID int64) error {
	for receiptID, lines := range t.repo.lines {
		for i := range lines {
			if lines[i].ID == lineID {
				t.repo.lines[receiptID][i].LotID = &lotID
				return nil
			}
		}
	}
	return ErrNotFound
}

type fakeStock struct {
	created     []stock.CreateLotInput
	destroyed   []stock.DestructionInput
	failProduct int64
	nextID      int64
}

func (f *fakeStock) CreateLot(ctx context.Context, input stock.CreateLotInput) (stock.Lot, error) {
	if f.failProduct != 0 && input.ProductID == f.failProduct {
		return stock.Lot{}, stock.ErrInvalidRequest
	}
	f.created = append(f.created, input)
	f.nextID++
	return stock.Lot{
		ID:                f.nextID,
		TenantID:          input.TenantID,
		ProductID:         input.ProductID,
		LotNumber:         input.LotNumber,
		QuantityRemaining: input.Quantity,
	}, nil
}

func (f *fakeStock) Destroy(ctx context.Context, input stock.DestructionInput) (stock.Movement, error) {
	f.destroyed = append(f.destroyed, input)
	return stock.Movement{LotID: input.LotID, QuantityDelta: -input.Quantity}, nil
}

func TestCreateReceiptRequiresLines(t *testing.T) {
	svc := NewService(nil, newMemoryRepo(), &fakeStock{}, nil, nil)

	_, err := svc.CreateReceipt(context.Background(), CreateReceiptInput{
		TenantID:   1,
		SupplierID: 1,
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestPostReceiptCreatesLots(t *testing.T) {
	repo := newMemoryRepo()
	stockPort := &fakeStock{}
	svc := NewService(nil, repo, stockPort, nil, nil)

	expiry := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	receipt, err := svc.CreateReceipt(context.Background(), CreateReceiptInput{
		TenantID:   1,
		SupplierID: 4,
		Lines: []ReceiptLineInput{
			{ProductID: 10, Quantity: 50, UnitCost: decimal.RequireFromString("2.35"), LotNumber: "AX-991", ExpiresAt: &expiry},
			{ProductID: 11, Quantity: 20, UnitCost: decimal.RequireFromString("7.90")},
		},
	})
	require.NoError(t, err)

	require.NoError(t, svc.PostReceipt(context.Background(), 1, receipt.ID, 42))

	require.Len(t, stockPort.created, 2)
	require.Equal(t, "AX-991", stockPort.created[0].LotNumber)
	// A line without a supplier lot number gets a generated one.
	require.NotEmpty(t, stockPort.created[1].LotNumber)
	require.EqualValues(t, 42, stockPort.created[0].ActorID)

	stored, lines, err := repo.GetReceipt(context.Background(), 1, receipt.ID)
	require.NoError(t, err)
	require.Equal(t, ReceiptStatusPosted, stored.Status)
	for _, line := range lines {
		require.NotNil(t, line.LotID)
	}
}

func TestPostReceiptRejectsNonDraft(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(nil, repo, &fakeStock{}, nil, nil)

	receipt, err := svc.CreateReceipt(context.Background(), CreateReceiptInput{
		TenantID:   1,
		SupplierID: 4,
		Lines:      []ReceiptLineInput{{ProductID: 10, Quantity: 5}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.PostReceipt(context.Background(), 1, receipt.ID, 1))
	require.ErrorIs(t, svc.PostReceipt(context.Background(), 1, receipt.ID, 1), ErrInvalidState)
}

func TestPostReceiptWritesOffLotsWhenLaterLineFails(t *testing.T) {
	repo := newMemoryRepo()
	stockPort := &fakeStock{failProduct: 11}
	svc := NewService(nil, repo, stockPort, nil, nil)

	receipt, err := svc.CreateReceipt(context.Background(), CreateReceiptInput{
		TenantID:   1,
		SupplierID: 4,
		Lines: []ReceiptLineInput{
			{ProductID: 10, Quantity: 50, UnitCost: decimal.RequireFromString("2.35")},
			{ProductID: 11, Quantity: 20, UnitCost: decimal.RequireFromString("7.90")},
		},
	})
	require.NoError(t, err)

	err = svc.PostReceipt(context.Background(), 1, receipt.ID, 42)
	require.ErrorIs(t, err, stock.ErrInvalidRequest)

	// The first line's lot committed before the failure; the post must
	// write it off so a retry does not double-load inventory.
	require.Len(t, stockPort.destroyed, 1)
	require.Equal(t, stockPort.created[0].Quantity, stockPort.destroyed[0].Quantity)
	require.EqualValues(t, 42, stockPort.destroyed[0].ActorID)
	require.Contains(t, stockPort.destroyed[0].Reason, "post aborted")
}

func TestImportLotsGeneratesDistinctNumbers(t *testing.T) {
	stockPort := &fakeStock{}
	svc := NewService(nil, newMemoryRepo(), stockPort, nil, nil)

	lots, err := svc.ImportLots(context.Background(), ImportLotsInput{
		TenantID: 1,
		Rows: []ReceiptLineInput{
			{ProductID: 7, Quantity: 10},
			{ProductID: 7, Quantity: 15},
			{ProductID: 8, Quantity: 3},
		},
	})
	require.NoError(t, err)
	require.Len(t, lots, 3)

	seen := make(map[string]bool)
	for _, input := range stockPort.created {
		require.NotEmpty(t, input.LotNumber)
		require.False(t, seen[input.LotNumber], "duplicate lot number %s", input.LotNumber)
		seen[input.LotNumber] = true
	}
}

func TestImportLotsRejectsBadRow(t *testing.T) {
	stockPort := &fakeStock{}
	svc := NewService(nil, newMemoryRepo(), stockPort, nil, nil)

	_, err := svc.ImportLots(context.Background(), ImportLotsInput{
		TenantID: 1,
		Rows: []ReceiptLineInput{
			{ProductID: 7, Quantity: 10},
			{ProductID: 8, Quantity: 0},
		},
	})
	require.ErrorIs(t, err, ErrValidation)
	// Rows are validated before any lot is created.
	require.Empty(t, stockPort.created)
}

func TestImportLotsWritesOffLotsWhenLaterRowFails(t *testing.T) {
	stockPort := &fakeStock{failProduct: 8}
	svc := NewService(nil, newMemoryRepo(), stockPort, nil, nil)

	_, err := svc.ImportLots(context.Background(), ImportLotsInput{
		TenantID: 1,
		Rows: []ReceiptLineInput{
			{ProductID: 7, Quantity: 10},
			{ProductID: 8, Quantity: 5},
		},
	})
	require.Error(t, err)
	require.Len(t, stockPort.destroyed, 1)
	require.EqualValues(t, 10, stockPort.destroyed[0].Quantity)
}
