package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveProductOverrideWins(t *testing.T) {
	product := ProductThresholds{Critical: NewThreshold(3)}
	tenant := TenantAlertSettings{Critical: NewThreshold(5), Low: NewThreshold(8)}

	resolved := ResolveThresholds(product, tenant)
	require.EqualValues(t, 3, resolved.Critical)
	require.EqualValues(t, 8, resolved.Low)
	require.EqualValues(t, DefaultMaximum, resolved.Maximum)
}

func TestResolveZeroMeansUnset(t *testing.T) {
	// A product explicitly saved with 0 must fall through to the tenant value
	// instead of disabling alerting.
	product := ProductThresholds{Critical: NewThreshold(0)}
	tenant := TenantAlertSettings{Critical: NewThreshold(5)}

	resolved := ResolveThresholds(product, tenant)
	require.EqualValues(t, 5, resolved.Critical)
}

func TestResolveSystemDefaults(t *testing.T) {
	resolved := ResolveThresholds(ProductThresholds{}, TenantAlertSettings{})
	require.EqualValues(t, DefaultCritical, resolved.Critical)
	require.EqualValues(t, DefaultLow, resolved.Low)
	require.EqualValues(t, DefaultMaximum, resolved.Maximum)
}

func TestThresholdFromPtr(t *testing.T) {
	require.False(t, ThresholdFromPtr(nil).Valid)

	zero := int64(0)
	require.False(t, ThresholdFromPtr(&zero).Valid)

	five := int64(5)
	th := ThresholdFromPtr(&five)
	require.True(t, th.Valid)
	require.EqualValues(t, 5, th.Value)
}
