package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPaginationComputesPages(t *testing.T) {
	p := NewPagination(2, 20, 45)
	require.Equal(t, 3, p.TotalPages)
	require.True(t, p.HasNext)

	last := NewPagination(3, 20, 45)
	require.False(t, last.HasNext)
}

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, 5)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PerPage)
	require.Equal(t, 1, p.TotalPages)
	require.False(t, p.HasNext)
}
