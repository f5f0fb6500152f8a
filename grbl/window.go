package grbl

// Receive buffer capacity bounds.
const (
	WindowMinBytes     = 32
	WindowMaxBytes     = 4096
	DefaultWindowBytes = 128

	// windowMargin is the required safety slack: no new send is issued once
	// in-flight bytes get this close to capacity.
	windowMargin = 2
)

// Window is the flow-control accountant for buffered streaming. It tracks
// every payload written but not yet acknowledged against the controller's
// receive buffer capacity, plus the most recent planner queue depth seen in
// Bf fields. The pending queue is FIFO, mirroring the controller's own
// receive order: each ok or error pops the oldest entry. The invariant
// in-flight == sum(pending) holds across any call sequence.
//
// A Window belongs to the engine worker and is not safe for sharing.
type Window struct {
	total    int
	autosize bool
	inFlight int
	pending  []int

	plannerFree int
	bfSeen      bool
}

// NewWindow creates a Window with capacity clamped to 32..4096 bytes; zero
// or negative selects the 128 byte default. With autosize the capacity
// learns larger controller buffers from Bf reports, and never shrinks.
func NewWindow(capacity int, autosize bool) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowBytes
	}
	capacity = min(max(capacity, WindowMinBytes), WindowMaxBytes)
	return &Window{total: capacity, autosize: autosize}
}

// Capacity returns the current receive buffer capacity in bytes.
func (w *Window) Capacity() int {
	return w.total
}

// InFlight returns the byte count sent but not yet acknowledged.
func (w *Window) InFlight() int {
	return w.inFlight
}

// PendingCount returns the number of unacknowledged sends.
func (w *Window) PendingCount() int {
	return len(w.pending)
}

// Full reports whether in-flight bytes have reached capacity minus the
// safety margin, meaning no new send may be issued.
func (w *Window) Full() bool {
	return w.inFlight >= w.total-windowMargin
}

// Oversize reports whether a payload of n bytes can never fit the buffer
// under normal windowing and needs the drain-then-synchronous exception.
func (w *Window) Oversize(n int) bool {
	return n > w.total
}

// Fits reports whether a payload of n bytes can be written right now
// without overrunning the controller's buffer.
func (w *Window) Fits(n int) bool {
	return w.inFlight+n <= w.total
}

// Send records a written payload of n bytes.
func (w *Window) Send(n int) {
	w.pending = append(w.pending, n)
	w.inFlight += n
}

// Ack pops the oldest pending send and returns its length; 0 when nothing
// is pending (stray acknowledgments are tolerated).
func (w *Window) Ack() int {
	if len(w.pending) == 0 {
		return 0
	}
	n := w.pending[0]
	w.pending = w.pending[1:]
	w.inFlight -= n
	return n
}

// Reset discards all pending accounting unconditionally. Used on job end,
// cancel and soft reset: the controller's own reset flushes its buffers, so
// whatever was in flight is gone.
func (w *Window) Reset() {
	w.inFlight = 0
	w.pending = w.pending[:0]
}

// Observe feeds a Bf report pair (planner free blocks, receive free bytes)
// into the accountant. It returns the new capacity when autosizing learned
// a larger controller buffer, else 0.
func (w *Window) Observe(plannerFree, rxFree int) int {
	w.bfSeen = true
	w.plannerFree = plannerFree
	if w.autosize && rxFree > w.total {
		w.total = rxFree
		return w.total
	}
	return 0
}

// BufferStateSeen reports whether any Bf field arrived on this connection.
func (w *Window) BufferStateSeen() bool {
	return w.bfSeen
}

// PlannerAbove reports whether the planner queue has more than minFree free
// blocks. Before any Bf field has been seen it reports true: firmware built
// without buffer reporting must not be throttled.
func (w *Window) PlannerAbove(minFree int) bool {
	if !w.bfSeen {
		return true
	}
	return w.plannerFree > minFree
}
