package grbl

// StreamMode selects the flow-control discipline of a job.
type StreamMode string

const (
	// StreamSync sends one line at a time, each waiting for its own
	// acknowledgment.
	StreamSync StreamMode = "sync"
	// StreamBuffered keeps the controller's receive buffer as full as the
	// flow-control window allows, consuming acknowledgments asynchronously.
	StreamBuffered StreamMode = "buffered"
	// StreamNone is reported while no job is streaming.
	StreamNone StreamMode = "none"
)

// ParseStreamMode maps a configuration string to a StreamMode, falling back
// to StreamSync for anything unrecognized.
func ParseStreamMode(s string) StreamMode {
	if StreamMode(s) == StreamBuffered {
		return StreamBuffered
	}
	return StreamSync
}

// Command is the closed set of requests an operator interface posts to the
// engine. One concrete type exists per request kind and the engine
// dispatches with a type switch; the unexported marker keeps the set
// closed.
type Command interface {
	command()
}

// Shutdown stops the engine worker after the current iteration and tears
// the connection down.
type Shutdown struct{}

// RealTime writes one real-time control byte immediately, bypassing all
// queuing and acknowledgment handling.
type RealTime struct {
	Cmd RealTimeCommand
}

// SendLine transmits one line and holds the engine loop for its synchronous
// response; a timeout or fatal outcome is reported as an Error event.
type SendLine struct {
	Text string
}

// StartJob begins streaming the sanitized program at Path. TotalLines is
// the sanitizer's retained line count and drives progress and completion
// detection. Unknown modes fall back to StreamSync.
type StartJob struct {
	Path       string
	TotalLines int
	Mode       StreamMode
}

// Pause suspends new sends without sending anything to the controller;
// acknowledgments for lines already in flight keep being consumed.
type Pause struct{}

// Hold is Pause bookkeeping under the hold label; callers pair it with a
// real-time feed hold byte sent beforehand.
type Hold struct{}

// Resume clears a Pause or Hold; callers pair it with the real-time cycle
// start byte when the controller is held.
type Resume struct{}

// SoftReset sends the real-time soft reset byte and clears any active job
// locally; a reset produces no acknowledgment.
type SoftReset struct{}

// CancelJob sends the soft reset byte, lets the controller settle,
// optionally unlocks it (per configuration) and clears the job locally.
type CancelJob struct{}

// RunLines streams a macro: each line is sent synchronously with its own
// acknowledgment, and the first non-ok outcome aborts the remainder.
type RunLines struct {
	Lines []string
}

func (Shutdown) command()  {}
func (RealTime) command()  {}
func (SendLine) command()  {}
func (StartJob) command()  {}
func (Pause) command()     {}
func (Hold) command()      {}
func (Resume) command()    {}
func (SoftReset) command() {}
func (CancelJob) command() {}
func (RunLines) command()  {}
