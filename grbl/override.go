package grbl

// Override percentage ranges the controller enforces; targets are clamped
// to these before stepping.
const (
	FeedOverrideMin    = 10
	FeedOverrideMax    = 200
	SpindleOverrideMin = 50
	SpindleOverrideMax = 200

	// OverrideDefault is the percentage the dedicated reset bytes snap to.
	OverrideDefault = 100
)

// overrideSteps plans the minimal real-time byte sequence moving an
// override from current to target within [low, high]: coarse 10 point steps
// while at least 10 points remain, then 1 point steps for the rest. Returns
// the sequence and the percentage the controller lands on.
func overrideSteps(
	current, target, low, high int,
	inc10, dec10, inc1, dec1 RealTimeCommand,
) ([]RealTimeCommand, int) {
	target = min(max(target, low), high)
	diff := target - current

	var cmds []RealTimeCommand
	for diff >= 10 {
		cmds = append(cmds, inc10)
		diff -= 10
	}
	for diff <= -10 {
		cmds = append(cmds, dec10)
		diff += 10
	}
	for diff > 0 {
		cmds = append(cmds, inc1)
		diff--
	}
	for diff < 0 {
		cmds = append(cmds, dec1)
		diff++
	}
	return cmds, target
}

// FeedOverrideSteps plans the real-time bytes stepping the feed override
// from current to target percent, clamping target to 10..200.
func FeedOverrideSteps(current, target int) ([]RealTimeCommand, int) {
	return overrideSteps(
		current, target, FeedOverrideMin, FeedOverrideMax,
		RealTimeFeedInc10, RealTimeFeedDec10, RealTimeFeedInc1, RealTimeFeedDec1,
	)
}

// SpindleOverrideSteps plans the real-time bytes stepping the spindle speed
// override from current to target percent, clamping target to 50..200.
func SpindleOverrideSteps(current, target int) ([]RealTimeCommand, int) {
	return overrideSteps(
		current, target, SpindleOverrideMin, SpindleOverrideMax,
		RealTimeSpindleInc10, RealTimeSpindleDec10, RealTimeSpindleInc1, RealTimeSpindleDec1,
	)
}
