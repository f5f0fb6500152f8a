package fmt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSprintFloat(t *testing.T) {
	require.Equal(t, "1.5", SprintFloat(1.5, 3))
	require.Equal(t, "1.125", SprintFloat(1.125, 3))
	require.Equal(t, "2", SprintFloat(2.0, 3))
	require.Equal(t, "-0.25", SprintFloat(-0.25, 3))
	require.Equal(t, "0", SprintFloat(0.0, 3))
	require.Equal(t, "500", SprintFloat(500.0, 0))
	require.Equal(t, "101", SprintFloat(100.7, 0))
	require.Equal(t, "1.235", SprintFloat(1.23456, 3))
}
