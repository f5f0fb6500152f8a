package grbl

import (
	"errors"
	"fmt"
)

// ErrNotRealTimeCommand reports a byte outside the real-time command set.
var ErrNotRealTimeCommand = errors.New("not a real time command")

// RealTimeCommand is a single byte the controller acts on immediately, out
// of band: no line terminator, no ok/error acknowledgment.
type RealTimeCommand byte

const (
	RealTimeSoftReset        RealTimeCommand = 0x18
	RealTimeStatusQuery      RealTimeCommand = '?'
	RealTimeCycleStartResume RealTimeCommand = '~'
	RealTimeFeedHold         RealTimeCommand = '!'
	RealTimeSafetyDoor       RealTimeCommand = 0x84
	RealTimeJogCancel        RealTimeCommand = 0x85
	RealTimeFeedReset        RealTimeCommand = 0x90
	RealTimeFeedInc10        RealTimeCommand = 0x91
	RealTimeFeedDec10        RealTimeCommand = 0x92
	RealTimeFeedInc1         RealTimeCommand = 0x93
	RealTimeFeedDec1         RealTimeCommand = 0x94
	RealTimeRapid100         RealTimeCommand = 0x95
	RealTimeRapid50          RealTimeCommand = 0x96
	RealTimeRapid25          RealTimeCommand = 0x97
	RealTimeSpindleReset     RealTimeCommand = 0x99
	RealTimeSpindleInc10     RealTimeCommand = 0x9A
	RealTimeSpindleDec10     RealTimeCommand = 0x9B
	RealTimeSpindleInc1      RealTimeCommand = 0x9C
	RealTimeSpindleDec1      RealTimeCommand = 0x9D
	RealTimeSpindleStop      RealTimeCommand = 0x9E
	RealTimeFloodToggle      RealTimeCommand = 0xA0
	RealTimeMistToggle       RealTimeCommand = 0xA1
)

var realTimeCommandNames = map[RealTimeCommand]string{
	RealTimeSoftReset:        "soft reset",
	RealTimeStatusQuery:      "status query",
	RealTimeCycleStartResume: "cycle start / resume",
	RealTimeFeedHold:         "feed hold",
	RealTimeSafetyDoor:       "safety door",
	RealTimeJogCancel:        "jog cancel",
	RealTimeFeedReset:        "feed override reset",
	RealTimeFeedInc10:        "feed override +10%",
	RealTimeFeedDec10:        "feed override -10%",
	RealTimeFeedInc1:         "feed override +1%",
	RealTimeFeedDec1:         "feed override -1%",
	RealTimeRapid100:         "rapid override 100%",
	RealTimeRapid50:          "rapid override 50%",
	RealTimeRapid25:          "rapid override 25%",
	RealTimeSpindleReset:     "spindle override reset",
	RealTimeSpindleInc10:     "spindle override +10%",
	RealTimeSpindleDec10:     "spindle override -10%",
	RealTimeSpindleInc1:      "spindle override +1%",
	RealTimeSpindleDec1:      "spindle override -1%",
	RealTimeSpindleStop:      "spindle stop toggle",
	RealTimeFloodToggle:      "flood coolant toggle",
	RealTimeMistToggle:       "mist coolant toggle",
}

// NewRealTimeCommand validates that b is a known real-time command byte.
func NewRealTimeCommand(b byte) (RealTimeCommand, error) {
	c := RealTimeCommand(b)
	if _, ok := realTimeCommandNames[c]; !ok {
		return 0, ErrNotRealTimeCommand
	}
	return c, nil
}

func (c RealTimeCommand) String() string {
	if name, ok := realTimeCommandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown (0x%02X)", byte(c))
}
