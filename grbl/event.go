package grbl

// JobPhase is the coarse lifecycle state reported through JobState events.
type JobPhase string

const (
	PhaseIdle         JobPhase = "idle"
	PhaseRunning      JobPhase = "running"
	PhasePaused       JobPhase = "paused"
	PhaseHold         JobPhase = "hold"
	PhaseDisconnected JobPhase = "disconnected"
)

// Event is the closed set of notifications the engine publishes. Consumers
// dispatch with a type switch; the unexported marker keeps the set closed.
type Event interface {
	event()
}

// Log carries an operator-facing message: controller chatter is prefixed
// "[grbl] ", identification lines "[id] ", advisories "[info] " or
// "[warn] ".
type Log struct {
	Message string
}

// Error carries a failure that ended an operation or the connection.
type Error struct {
	Message string
}

// JobState reports a job lifecycle transition.
type JobState struct {
	Phase JobPhase
}

// Progress reports acknowledged lines against the job total. A cancel
// resets both to zero.
type Progress struct {
	Acknowledged int
	Total        int
}

// JobLine reports the sent and acknowledged counters whenever either
// changes, so interfaces can render an N/M position.
type JobLine struct {
	Sent         int
	Acknowledged int
	Total        int
}

// ActiveStreamMode reports which flow-control discipline is in effect,
// StreamNone while no job is streaming.
type ActiveStreamMode struct {
	Mode StreamMode
}

// PortInfo reports the connected port description, "-" after teardown.
type PortInfo struct {
	Info string
}

// GrblID reports the controller identification banner captured during the
// handshake.
type GrblID struct {
	Banner string
}

// MachineState reports the state token from the most recent status report,
// "-" when unknown or disconnected.
type MachineState struct {
	Text string
}

// Status carries a raw status report line plus its parsed form. Report is
// nil when the line resembled a report but did not parse.
type Status struct {
	Raw    string
	Report *StatusReport
}

func (Log) event()              {}
func (Error) event()            {}
func (JobState) event()         {}
func (Progress) event()         {}
func (JobLine) event()          {}
func (ActiveStreamMode) event() {}
func (PortInfo) event()         {}
func (GrblID) event()           {}
func (MachineState) event()     {}
func (Status) event()           {}
