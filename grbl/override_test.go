package grbl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeedOverrideSteps(t *testing.T) {
	t.Run("coarse steps only", func(t *testing.T) {
		cmds, final := FeedOverrideSteps(100, 150)
		require.Equal(t, []RealTimeCommand{
			RealTimeFeedInc10, RealTimeFeedInc10, RealTimeFeedInc10,
			RealTimeFeedInc10, RealTimeFeedInc10,
		}, cmds)
		require.Equal(t, 150, final)
	})

	t.Run("fine steps only", func(t *testing.T) {
		cmds, final := FeedOverrideSteps(100, 104)
		require.Equal(t, []RealTimeCommand{
			RealTimeFeedInc1, RealTimeFeedInc1, RealTimeFeedInc1, RealTimeFeedInc1,
		}, cmds)
		require.Equal(t, 104, final)
	})

	t.Run("mixed downward", func(t *testing.T) {
		cmds, final := FeedOverrideSteps(100, 77)
		require.Equal(t, []RealTimeCommand{
			RealTimeFeedDec10, RealTimeFeedDec10,
			RealTimeFeedDec1, RealTimeFeedDec1, RealTimeFeedDec1,
		}, cmds)
		require.Equal(t, 77, final)
	})

	t.Run("target clamped to range", func(t *testing.T) {
		cmds, final := FeedOverrideSteps(100, 500)
		require.Len(t, cmds, 10)
		require.Equal(t, 200, final)

		cmds, final = FeedOverrideSteps(100, 0)
		require.Len(t, cmds, 9)
		require.Equal(t, 10, final)
	})

	t.Run("no-op", func(t *testing.T) {
		cmds, final := FeedOverrideSteps(100, 100)
		require.Empty(t, cmds)
		require.Equal(t, 100, final)
	})
}

func TestSpindleOverrideSteps(t *testing.T) {
	t.Run("uses spindle bytes", func(t *testing.T) {
		cmds, final := SpindleOverrideSteps(100, 121)
		require.Equal(t, []RealTimeCommand{
			RealTimeSpindleInc10, RealTimeSpindleInc10, RealTimeSpindleInc1,
		}, cmds)
		require.Equal(t, 121, final)
	})

	t.Run("clamps to spindle minimum", func(t *testing.T) {
		cmds, final := SpindleOverrideSteps(100, 10)
		require.Equal(t, 50, final)
		require.Len(t, cmds, 5)
		for _, cmd := range cmds {
			require.Equal(t, RealTimeSpindleDec10, cmd)
		}
	})
}
