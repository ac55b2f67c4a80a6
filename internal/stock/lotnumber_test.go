package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateUniqueWithinBurst(t *testing.T) {
	gen := NewLotNumberGenerator()

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		number := gen.Generate(42, i)
		_, dup := seen[number]
		require.False(t, dup, "duplicate lot number %s", number)
		seen[number] = struct{}{}
	}
	require.Len(t, seen, 1000)
}

func TestGenerateSameIndexDifferentProducts(t *testing.T) {
	gen := NewLotNumberGenerator()

	a := gen.Generate(1, 0)
	b := gen.Generate(2, 0)
	require.NotEqual(t, a, b)
	require.Contains(t, a, "-000000-1-")
	require.Contains(t, b, "-000000-2-")
}

func TestResetClearsPerProductCounters(t *testing.T) {
	gen := NewLotNumberGenerator()

	gen.Generate(1, 0)
	second := gen.Generate(1, 1)
	require.Equal(t, "0002", second[len(second)-4:])

	gen.Reset()
	restarted := gen.Generate(1, 0)
	require.Equal(t, "0001", restarted[len(restarted)-4:])
}
