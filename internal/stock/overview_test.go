package stock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeOverviewRepo struct {
	rows  []OverviewRow
	calls int
}

func (r *fakeOverviewRepo) OverviewRows(ctx context.Context, tenantID int64) ([]OverviewRow, error) {
	r.calls++
	return r.rows, nil
}

func TestOverviewSnapshotClassifies(t *testing.T) {
	repo := &fakeOverviewRepo{rows: []OverviewRow{
		{ProductID: 1, ProductName: "Doliprane 1000mg", Quantity: 0},
		{ProductID: 2, ProductName: "Amoxicilline 500mg", Quantity: 4},
		{ProductID: 3, ProductName: "Smecta", Quantity: 40, Thresholds: ProductThresholds{Maximum: NewThreshold(50)}},
	}}
	overview := NewOverview(repo, staticSettings{}, nil, time.Minute, nil)

	snapshot, err := overview.Snapshot(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, snapshot.Products, 3)
	require.Equal(t, StatusRupture, snapshot.Products[0].Classification.Status)
	require.Equal(t, StatusFaible, snapshot.Products[1].Classification.Status)
	require.Equal(t, StatusNormal, snapshot.Products[2].Classification.Status)
	require.EqualValues(t, 1, snapshot.StatusCount[StatusRupture])
}

func TestOverviewSnapshotCached(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})

	repo := &fakeOverviewRepo{rows: []OverviewRow{{ProductID: 1, ProductName: "Doliprane", Quantity: 7}}}
	overview := NewOverview(repo, staticSettings{}, client, time.Minute, nil)

	first, err := overview.Snapshot(context.Background(), 1)
	require.NoError(t, err)
	second, err := overview.Snapshot(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, first.Products, second.Products)
	require.Equal(t, 1, repo.calls)

	overview.Invalidate(context.Background(), 1)
	_, err = overview.Snapshot(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
}
