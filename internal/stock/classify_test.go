package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyStatusBands(t *testing.T) {
	th := StockThresholds{Critical: 2, Low: 5, Maximum: 10}

	cases := []struct {
		quantity int64
		status   StockStatus
		urgency  Urgency
	}{
		{0, StatusRupture, UrgencyCritical},
		{1, StatusCritique, UrgencyDanger},
		{2, StatusCritique, UrgencyDanger},
		{3, StatusFaible, UrgencyWarning},
		{5, StatusFaible, UrgencyWarning},
		{6, StatusNormal, UrgencyInfo},
		{10, StatusNormal, UrgencyInfo},
		{11, StatusSurstock, UrgencyWarning},
	}
	for _, tc := range cases {
		c, err := Classify(tc.quantity, th)
		require.NoError(t, err)
		require.Equal(t, tc.status, c.Status, "quantity %d", tc.quantity)
		require.Equal(t, tc.urgency, c.Urgency, "quantity %d", tc.quantity)
	}
}

func TestClassifyRotation(t *testing.T) {
	th := StockThresholds{Critical: 2, Low: 5, Maximum: 10}

	c, err := Classify(4, th)
	require.NoError(t, err)
	require.Equal(t, RotationRapide, c.Rotation)

	c, err = Classify(8, th)
	require.NoError(t, err)
	require.Equal(t, RotationNormale, c.Rotation)

	c, err = Classify(25, th)
	require.NoError(t, err)
	require.Equal(t, RotationLente, c.Rotation)
}

func TestClassifyRejectsMalformedThresholds(t *testing.T) {
	_, err := Classify(3, StockThresholds{Critical: 5, Low: 2, Maximum: 10})
	require.ErrorIs(t, err, ErrInvalidThresholds)

	_, err = Classify(3, StockThresholds{Critical: -1, Low: 2, Maximum: 10})
	require.ErrorIs(t, err, ErrInvalidThresholds)

	_, err = Classify(3, StockThresholds{Critical: 2, Low: 5, Maximum: 4})
	require.ErrorIs(t, err, ErrInvalidThresholds)
}

func TestClassifyRejectsNegativeQuantity(t *testing.T) {
	_, err := Classify(-1, StockThresholds{Critical: 2, Low: 5, Maximum: 10})
	require.ErrorIs(t, err, ErrInvalidRequest)
}
