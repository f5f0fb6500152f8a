package grbl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRealTimeCommand(t *testing.T) {
	cmd, err := NewRealTimeCommand(0x18)
	require.NoError(t, err)
	require.Equal(t, RealTimeSoftReset, cmd)

	cmd, err = NewRealTimeCommand('?')
	require.NoError(t, err)
	require.Equal(t, RealTimeStatusQuery, cmd)

	_, err = NewRealTimeCommand('G')
	require.ErrorIs(t, err, ErrNotRealTimeCommand)
}

func TestRealTimeCommandString(t *testing.T) {
	require.Equal(t, "soft reset", RealTimeSoftReset.String())
	require.Equal(t, "feed override +10%", RealTimeFeedInc10.String())
	require.Equal(t, "unknown (0x47)", RealTimeCommand('G').String())
}
