package sales

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/officine-erp/officine-erp/internal/stock"
)

type memoryRepo struct {
	sales  map[int64]*Sale
	lines  map[int64][]SaleLine
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sales: make(map[int64]*Sale), lines: make(map[int64][]SaleLine), nextID: 1}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepo) GetSale(ctx context.Context, tenantID, id int64) (Sale, []SaleLine, error) {
	sale, ok := m.sales[id]
	if !ok || sale.TenantID != tenantID {
		return Sale{}, nil, ErrNotFound
	}
	return *sale, m.lines[id], nil
}

func (m *memoryRepo) ListSales(ctx context.Context, tenantID int64, limit int) ([]Sale, error) {
	var out []Sale
	for _, sale := range m.sales {
		if sale.TenantID == tenantID {
			out = append(out, *sale)
		}
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	id := t.repo.nextID
	t.repo.nextID++
	sale.ID = id
	t.repo.sales[id] = &sale
	return id, nil
}

func (t *memoryTx) InsertLine(ctx context.Context, line SaleLine) (int64, error) {
	id := t.repo.nextID
	t.repo.nextID++
	line.ID = id
	t.repo.lines[line.SaleID] = append(t.repo.lines[line.SaleID], line)
	return id, nil
}

type fakeStock struct {
	failProduct int64
	allocated   []stock.AllocationInput
	returned    []stock.ReturnInput
}

func (f *fakeStock) Allocate(ctx context.Context, input stock.AllocationInput) (stock.AllocationPlan, error) {
	if input.ProductID == f.failProduct {
		return stock.AllocationPlan{}, &stock.InsufficientStockError{
			TenantID:  input.TenantID,
			ProductID: input.ProductID,
			Requested: input.Quantity,
			Available: 0,
		}
	}
	f.allocated = append(f.allocated, input)
	return stock.AllocationPlan{
		TenantID:  input.TenantID,
		ProductID: input.ProductID,
		Requested: input.Quantity,
		Deductions: []stock.Deduction{
			{LotID: input.ProductID * 100, Quantity: input.Quantity},
		},
	}, nil
}

func (f *fakeStock) Return(ctx context.Context, input stock.ReturnInput) (stock.Movement, error) {
	f.returned = append(f.returned, input)
	return stock.Movement{}, nil
}

func TestCheckoutPersistsSaleWithTotals(t *testing.T) {
	repo := newMemoryRepo()
	stockPort := &fakeStock{}
	svc := NewService(nil, repo, stockPort, nil)

	result, err := svc.Checkout(context.Background(), CheckoutInput{
		TenantID: 1,
		ActorID:  9,
		Lines: []CheckoutLine{
			{ProductID: 10, Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")},
			{ProductID: 11, Quantity: 1, UnitPrice: decimal.RequireFromString("127.50")},
		},
	})
	require.NoError(t, err)

	require.True(t, result.Sale.Total.Equal(decimal.RequireFromString("152.50")))
	require.Len(t, result.Lines, 2)
	require.Len(t, result.Allocations, 2)
	require.Equal(t, SaleStatusCompleted, result.Sale.Status)
	require.Equal(t, "152,50 €", result.ReceiptTotal)

	_, lines, err := repo.GetSale(context.Background(), 1, result.Sale.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
}

func TestCheckoutInsufficientStockCompensates(t *testing.T) {
	repo := newMemoryRepo()
	stockPort := &fakeStock{failProduct: 11}
	svc := NewService(nil, repo, stockPort, nil)

	_, err := svc.Checkout(context.Background(), CheckoutInput{
		TenantID: 1,
		Lines: []CheckoutLine{
			{ProductID: 10, Quantity: 2, UnitPrice: decimal.RequireFromString("5.00")},
			{ProductID: 11, Quantity: 1, UnitPrice: decimal.RequireFromString("3.00")},
		},
	})
	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.EqualValues(t, 11, insufficient.ProductID)
	require.EqualValues(t, 1, insufficient.Shortfall())

	// The first line was already deducted; it must be put back.
	require.Len(t, stockPort.returned, 1)
	require.EqualValues(t, 1000, stockPort.returned[0].LotID)
	require.EqualValues(t, 2, stockPort.returned[0].Quantity)

	require.Empty(t, repo.sales)
}

func TestCheckoutRejectsEmptyBasket(t *testing.T) {
	svc := NewService(nil, newMemoryRepo(), &fakeStock{}, nil)

	_, err := svc.Checkout(context.Background(), CheckoutInput{TenantID: 1})
	require.ErrorIs(t, err, ErrValidation)
}

func TestFormatReceiptTotalGroupsThousands(t *testing.T) {
	formatted := FormatReceiptTotal(decimal.RequireFromString("1234.5"))
	require.Contains(t, formatted, "€")
	require.Contains(t, formatted, ",50")
}
