package products

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/officine-erp/officine-erp/internal/masterdata/shared"
)

type memoryRepo struct {
	Repository
	thresholds map[int64][3]*int64
}

func (m *memoryRepo) GetThresholds(ctx context.Context, tenantID, id int64) (*int64, *int64, *int64, error) {
	t, ok := m.thresholds[id]
	if !ok {
		return nil, nil, nil, shared.ErrNotFound
	}
	return t[0], t[1], t[2], nil
}

func ptr(v int64) *int64 { return &v }

func TestThresholdsTreatZeroAsUnset(t *testing.T) {
	svc := NewService(&memoryRepo{thresholds: map[int64][3]*int64{
		1: {ptr(3), ptr(0), nil},
	}})

	th, err := svc.Thresholds(context.Background(), 1, 1)
	require.NoError(t, err)

	require.True(t, th.Critical.Valid)
	require.EqualValues(t, 3, th.Critical.Value)
	// A stored zero must not be treated as a configured threshold.
	require.False(t, th.Low.Valid)
	require.False(t, th.Maximum.Valid)
}

func TestThresholdsUnknownProduct(t *testing.T) {
	svc := NewService(&memoryRepo{thresholds: map[int64][3]*int64{}})

	_, err := svc.Thresholds(context.Background(), 1, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
