package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/grblmini/gms/grbl"
)

var baudRate int
var defaultBaudRate = grbl.DefaultBaudRate

var rxBufferBytes int
var defaultRxBufferBytes = grbl.DefaultWindowBytes

var bfAutosize bool
var defaultBfAutosize = true

var plannerThrottle bool
var defaultPlannerThrottle = true

var plannerFreeMin int
var defaultPlannerFreeMin = grbl.DefaultPlannerFreeMin

var cancelUnlock bool
var defaultCancelUnlock = false

var ackTimeout time.Duration
var defaultAckTimeout = grbl.DefaultAckTimeout

var homingTimeout time.Duration
var defaultHomingTimeout = grbl.DefaultHomingTimeout

var systemTimeout time.Duration
var defaultSystemTimeout = grbl.DefaultSystemTimeout

// AddEngineFlags registers the controller tuning flags shared by every
// command that opens a connection.
func AddEngineFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().IntVar(&baudRate, "baud", defaultBaudRate, "Serial baud rate")
	cmd.PersistentFlags().IntVar(&rxBufferBytes, "rx-buffer", defaultRxBufferBytes, "Controller receive buffer capacity in bytes, for buffered streaming")
	cmd.PersistentFlags().BoolVar(&bfAutosize, "bf-autosize", defaultBfAutosize, "Grow the receive buffer capacity when Bf: status fields report a larger one")
	cmd.PersistentFlags().BoolVar(&plannerThrottle, "planner-throttle", defaultPlannerThrottle, "Defer buffered sends while the planner queue is nearly full")
	cmd.PersistentFlags().IntVar(&plannerFreeMin, "planner-free-min", defaultPlannerFreeMin, "Minimum free planner blocks required to keep sending (1-4)")
	cmd.PersistentFlags().BoolVar(&cancelUnlock, "cancel-unlock", defaultCancelUnlock, "Send $X after the soft reset when canceling a job")
	cmd.PersistentFlags().DurationVar(&ackTimeout, "ack-timeout", defaultAckTimeout, "How long to wait for a line acknowledgment")
	cmd.PersistentFlags().DurationVar(&homingTimeout, "homing-timeout", defaultHomingTimeout, "Acknowledgment allowance for $H")
	cmd.PersistentFlags().DurationVar(&systemTimeout, "system-timeout", defaultSystemTimeout, "Acknowledgment allowance for $ system commands")
}

// GetEngineConfig assembles the engine configuration from the connection
// and tuning flags. The port name doubles as the display identity, so the
// bridge address stands in for it when dialing TCP.
func GetEngineConfig() grbl.Config {
	name := portName
	if name == "" {
		name = address
	}
	return grbl.Config{
		PortName:        name,
		BaudRate:        baudRate,
		RxBufferBytes:   rxBufferBytes,
		BfAutosize:      bfAutosize,
		PlannerThrottle: plannerThrottle,
		PlannerFreeMin:  plannerFreeMin,
		CancelUnlock:    cancelUnlock,
		AckTimeout:      ackTimeout,
		HomingTimeout:   homingTimeout,
		SystemTimeout:   systemTimeout,
	}
}

func init() {
	resetFlagsFns = append(resetFlagsFns, func() {
		baudRate = defaultBaudRate
		rxBufferBytes = defaultRxBufferBytes
		bfAutosize = defaultBfAutosize
		plannerThrottle = defaultPlannerThrottle
		plannerFreeMin = defaultPlannerFreeMin
		cancelUnlock = defaultCancelUnlock
		ackTimeout = defaultAckTimeout
		homingTimeout = defaultHomingTimeout
		systemTimeout = defaultSystemTimeout
	})
}
