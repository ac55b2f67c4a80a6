package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/officine-erp/officine-erp/internal/shared"
)

type memoryRepo struct {
	rows map[int64]AlertSettings
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[int64]AlertSettings)}
}

func (m *memoryRepo) Get(ctx context.Context, tenantID int64) (AlertSettings, error) {
	s, ok := m.rows[tenantID]
	if !ok {
		return AlertSettings{}, shared.ErrNotFound
	}
	return s, nil
}

func (m *memoryRepo) Upsert(ctx context.Context, s AlertSettings) (AlertSettings, error) {
	m.rows[s.TenantID] = s
	return s, nil
}

func (m *memoryRepo) TenantIDs(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	return ids, nil
}

func ptr(v int64) *int64 { return &v }

func TestGetDefaultsForUnknownTenant(t *testing.T) {
	svc := NewService(newMemoryRepo())

	s, err := svc.Get(context.Background(), 7)
	require.NoError(t, err)
	require.EqualValues(t, 7, s.TenantID)
	require.Nil(t, s.ThresholdCritical)
	require.Equal(t, DefaultExpiryWindowDays, s.ExpiryWindowDays)
}

func TestUpdateRejectsNegativeThreshold(t *testing.T) {
	svc := NewService(newMemoryRepo())

	_, err := svc.Update(context.Background(), AlertSettings{
		TenantID:          1,
		ThresholdCritical: ptr(-1),
	})
	require.Error(t, err)
}

func TestAlertSettingsTreatsZeroAsUnset(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	_, err := svc.Update(context.Background(), AlertSettings{
		TenantID:          1,
		ThresholdCritical: ptr(0),
		ThresholdLow:      ptr(8),
		NotifyEmail:       "alerts@officine.example",
	})
	require.NoError(t, err)

	resolved, err := svc.AlertSettings(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, resolved.Critical.Valid)
	require.True(t, resolved.Low.Valid)
	require.EqualValues(t, 8, resolved.Low.Value)
	require.Equal(t, "alerts@officine.example", resolved.NotifyEmail)
	require.Equal(t, DefaultExpiryWindowDays, resolved.ExpiryWindowDays)
}
