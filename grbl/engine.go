package grbl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fornellas/slogxt/log"
	"go.bug.st/serial"
)

// Engine loop timing.
const (
	statusPollInterval   = 250 * time.Millisecond
	commandWaitStreaming = 2 * time.Millisecond
	commandWaitIdle      = 20 * time.Millisecond
	serialReadTimeout    = 10 * time.Millisecond
	cancelSettleDelay    = 80 * time.Millisecond
)

const (
	commandChannelSize = 64
	eventChannelSize   = 256
)

// Config defaults, selected by the corresponding zero value.
const (
	DefaultBaudRate        = 115200
	DefaultPlannerFreeMin  = 2
	DefaultAckTimeout      = 2 * time.Second
	DefaultHomingTimeout   = 60 * time.Second
	DefaultSystemTimeout   = 10 * time.Second
	DefaultBootDelay       = 2 * time.Second
	DefaultHandshakeWindow = 1250 * time.Millisecond
)

// OpenPortFn opens the connection an Engine drives. Implementations exist
// for local serial devices and for TCP adapters speaking raw serial.
type OpenPortFn func(ctx context.Context, mode *serial.Mode) (serial.Port, error)

// Config carries the engine settings. Zero fields select defaults.
type Config struct {
	// PortName is the device path or address, used for reporting only.
	PortName string
	BaudRate int

	// RxBufferBytes is the controller receive buffer capacity assumed by
	// buffered streaming. BfAutosize lets Bf status fields raise it.
	RxBufferBytes int
	BfAutosize    bool

	// PlannerThrottle holds buffered sends while the controller reports
	// PlannerFreeMin or fewer free planner blocks.
	PlannerThrottle bool
	PlannerFreeMin  int

	// CancelUnlock sends $X after the soft reset of a cancel.
	CancelUnlock bool

	// AckTimeout bounds the wait for a synchronous acknowledgment.
	// HomingTimeout applies to $H and SystemTimeout to other $ commands,
	// which block until the controller is done with them.
	AckTimeout    time.Duration
	HomingTimeout time.Duration
	SystemTimeout time.Duration

	// BootDelay is the settle time after opening the port, which resets
	// most controllers. HandshakeWindow is how long to collect
	// identification lines after $I.
	BootDelay       time.Duration
	HandshakeWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.PlannerFreeMin == 0 {
		c.PlannerFreeMin = DefaultPlannerFreeMin
	}
	c.PlannerFreeMin = min(max(c.PlannerFreeMin, 1), 4)
	if c.AckTimeout == 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.HomingTimeout == 0 {
		c.HomingTimeout = DefaultHomingTimeout
	}
	if c.SystemTimeout == 0 {
		c.SystemTimeout = DefaultSystemTimeout
	}
	if c.BootDelay == 0 {
		c.BootDelay = DefaultBootDelay
	}
	if c.HandshakeWindow == 0 {
		c.HandshakeWindow = DefaultHandshakeWindow
	}
	return c
}

// Engine owns a GRBL connection and the job streamed over it. A single
// worker goroutine started by Run performs all port I/O and state changes;
// other goroutines interact with it only through Post and Events.
type Engine struct {
	cfg      Config
	openPort OpenPortFn

	commandCh chan Command
	eventCh   chan Event

	// Worker state, touched only inside Run.
	port             serial.Port
	window           *Window
	job              *job
	running          bool
	ioErr            error
	lastStateToken   string
	lastPoll         time.Time
	plannerNoteShown bool
	readBuf          []byte
	rxTail           string
	rxLines          []string
}

// NewEngine returns an engine for the given configuration. openPort is
// called once per Run to establish the connection.
func NewEngine(cfg Config, openPort OpenPortFn) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:       cfg,
		openPort:  openPort,
		commandCh: make(chan Command, commandChannelSize),
		eventCh:   make(chan Event, eventChannelSize),
		window:    NewWindow(cfg.RxBufferBytes, cfg.BfAutosize),
		readBuf:   make([]byte, 512),
	}
}

// Post queues a command for the worker without blocking. It reports false
// when the engine is saturated.
func (e *Engine) Post(cmd Command) bool {
	select {
	case e.commandCh <- cmd:
		return true
	default:
		return false
	}
}

// Events returns the channel the worker publishes on. Run closes it on
// return.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// Run connects and drives the engine until ctx is canceled, Shutdown is
// posted, or the connection fails. All engine state is owned by the
// calling goroutine for the duration.
func (e *Engine) Run(ctx context.Context) (err error) {
	defer close(e.eventCh)

	ctx, logger := log.MustWithGroup(ctx, "Sender")
	logger.Debug("Starting", "port", e.cfg.PortName, "baud", e.cfg.BaudRate)

	e.running = true

	if err := e.connect(ctx); err != nil {
		e.emit(ctx, Error{Message: fmt.Sprintf("Failed to open serial: %v", err)})
		e.emit(ctx, JobState{Phase: PhaseDisconnected})
		e.emit(ctx, ActiveStreamMode{Mode: StreamNone})
		e.emit(ctx, MachineState{Text: "-"})
		e.emit(ctx, GrblID{Banner: "(not connected)"})
		if e.port != nil {
			err = errors.Join(err, e.port.Close())
			e.port = nil
		}
		return err
	}

	e.handshake(ctx)

	for e.running {
		if cmd := e.waitCommand(ctx); cmd != nil {
			e.dispatch(ctx, cmd)
		}
		if !e.running {
			break
		}
		e.streamStep(ctx)
		e.pollStatus(ctx)
		res := e.processIncoming(ctx)
		e.settleJob(ctx, res)
	}

	e.teardown(ctx)
	err = e.ioErr
	if e.port != nil {
		err = errors.Join(err, e.port.Close())
		e.port = nil
	}
	logger.Debug("Stopped")
	return err
}

// connect opens the port, waits out the controller boot and wakes it up.
func (e *Engine) connect(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: e.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := e.openPort(ctx, mode)
	if err != nil {
		return err
	}
	e.port = port
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	// Opening the port resets most controller boards.
	e.sleepCtx(ctx, e.cfg.BootDelay)

	if _, err := port.Write([]byte("\r\n")); err != nil {
		return fmt.Errorf("failed to write wake sequence: %w", err)
	}

	e.emit(ctx, Log{Message: fmt.Sprintf("Connected: %s @ %d", e.cfg.PortName, e.cfg.BaudRate)})
	e.emit(ctx, PortInfo{Info: fmt.Sprintf("%s @ %d", e.cfg.PortName, e.cfg.BaudRate)})
	e.emit(ctx, JobState{Phase: PhaseIdle})
	e.emit(ctx, ActiveStreamMode{Mode: StreamNone})
	return nil
}

// handshake requests controller identification with $I and collects the
// replies for a short window. The first line mentioning grbl becomes the
// reported banner. A missing banner is a warning, not a failure.
func (e *Engine) handshake(ctx context.Context) {
	if _, err := e.port.Write([]byte("$I\n")); err != nil {
		e.emit(ctx, Error{Message: fmt.Sprintf("Handshake failed: %v", err)})
		e.emit(ctx, GrblID{Banner: "(handshake failed)"})
		return
	}
	banner := ""
	deadline := time.Now().Add(e.cfg.HandshakeWindow)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		line, ok, err := e.nextLine()
		if err != nil {
			e.failIO(ctx, "read", err)
			return
		}
		if !ok {
			continue
		}
		if line == "ok" {
			continue
		}
		if IsStatusLine(line) {
			e.handleStatus(ctx, line)
			continue
		}
		e.emit(ctx, Log{Message: "[id] " + line})
		if banner == "" && strings.Contains(strings.ToLower(line), "grbl") {
			banner = line
		}
	}
	if banner == "" {
		banner = "(no GRBL banner detected)"
	}
	e.emit(ctx, GrblID{Banner: banner})
	log.MustLogger(ctx).Debug("Handshake done", "banner", banner)
}

// waitCommand waits briefly for the next posted command. The wait is short
// while a job is streaming so sends keep flowing, longer when idle to
// avoid spinning.
func (e *Engine) waitCommand(ctx context.Context) Command {
	wait := commandWaitIdle
	if e.job != nil && e.job.active && !e.job.paused {
		wait = commandWaitStreaming
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case cmd := <-e.commandCh:
		return cmd
	case <-ctx.Done():
		e.running = false
		return nil
	case <-timer.C:
		return nil
	}
}

func (e *Engine) dispatch(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case Shutdown:
		e.running = false
	case RealTime:
		e.sendRealTime(ctx, c.Cmd)
	case SendLine:
		e.sendImmediate(ctx, c.Text)
	case StartJob:
		e.startJob(ctx, c)
	case Pause:
		e.pauseJob(ctx, PhasePaused)
	case Hold:
		e.pauseJob(ctx, PhaseHold)
	case Resume:
		e.resumeJob(ctx)
	case SoftReset:
		e.softReset(ctx)
	case CancelJob:
		e.cancelJob(ctx)
	case RunLines:
		e.runLines(ctx, c.Lines)
	default:
		panic(fmt.Sprintf("bug: unexpected command type: %T", cmd))
	}
}

func (e *Engine) sendRealTime(ctx context.Context, cmd RealTimeCommand) {
	if _, err := e.port.Write([]byte{byte(cmd)}); err != nil {
		e.failIO(ctx, "write", err)
	}
}

// sendImmediate transmits one operator line and blocks the loop on its
// synchronous response.
func (e *Engine) sendImmediate(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	outcome := e.sendAndWait(ctx, text)
	switch outcome.kind {
	case syncFatal:
		e.emit(ctx, Error{Message: fmt.Sprintf("Command failed: %s", outcome.message)})
	case syncTimeout:
		e.emit(ctx, Error{Message: outcome.message})
	}
}

func (e *Engine) startJob(ctx context.Context, c StartJob) {
	if e.job != nil && e.job.active {
		e.emit(ctx, Error{Message: "A job is already running."})
		return
	}
	if ParseState(e.lastStateToken) != StateIdle {
		state := e.lastStateToken
		if state == "" {
			state = "-"
		}
		e.emit(ctx, Error{Message: fmt.Sprintf("Machine is not idle (state: %s); job not started.", state)})
		return
	}
	if c.TotalLines <= 0 {
		e.emit(ctx, Error{Message: "Job has no lines to send."})
		return
	}
	src, err := openJobSource(c.Path)
	if err != nil {
		e.emit(ctx, Error{Message: fmt.Sprintf("Failed to open job: %v", err)})
		return
	}
	mode := c.Mode
	if mode != StreamBuffered {
		mode = StreamSync
	}
	e.window.Reset()
	e.job = &job{src: src, total: c.TotalLines, mode: mode, active: true}
	e.emit(ctx, JobState{Phase: PhaseRunning})
	e.emit(ctx, Progress{Acknowledged: 0, Total: c.TotalLines})
	e.emit(ctx, ActiveStreamMode{Mode: mode})
	e.emitJobLine(ctx)
	e.emit(ctx, Log{Message: fmt.Sprintf("Job started (%s): %s (%d lines)", mode, filepath.Base(c.Path), c.TotalLines)})
	log.MustLogger(ctx).Debug("Job started", "path", c.Path, "lines", c.TotalLines, "mode", string(mode))
}

// pauseJob suspends new sends without touching the controller.
// Acknowledgments for lines already in flight keep being consumed.
func (e *Engine) pauseJob(ctx context.Context, phase JobPhase) {
	if e.job != nil {
		e.job.paused = true
		e.job.pausePhase = phase
	}
	e.emit(ctx, JobState{Phase: phase})
}

func (e *Engine) resumeJob(ctx context.Context) {
	phase := PhaseIdle
	if e.job != nil {
		e.job.paused = false
		e.job.pausePhase = ""
		if e.job.active {
			phase = PhaseRunning
		}
	}
	e.emit(ctx, JobState{Phase: phase})
}

// softReset sends the reset byte and clears job state locally. A reset
// produces no acknowledgment and flushes the controller's buffers.
func (e *Engine) softReset(ctx context.Context) {
	if _, err := e.port.Write([]byte{byte(RealTimeSoftReset)}); err != nil {
		e.failIO(ctx, "write", err)
		return
	}
	if e.job != nil {
		e.cancelLocal(ctx)
	}
	e.rxTail = ""
	e.rxLines = nil
	e.emit(ctx, Log{Message: "Soft reset sent."})
}

func (e *Engine) cancelJob(ctx context.Context) {
	if _, err := e.port.Write([]byte{byte(RealTimeSoftReset)}); err != nil {
		e.failIO(ctx, "write", err)
		return
	}
	e.sleepCtx(ctx, cancelSettleDelay)
	message := "Job canceled (soft reset sent)."
	if e.cfg.CancelUnlock {
		if outcome := e.sendAndWait(ctx, "$X"); outcome.kind == syncStopped {
			return
		}
		message = "Job canceled (soft reset and $X sent)."
	}
	e.cancelLocal(ctx)
	e.emit(ctx, Log{Message: message})
}

// runLines streams a macro, each line synchronously, stopping at the first
// failure.
func (e *Engine) runLines(ctx context.Context, lines []string) {
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if !e.running || ctx.Err() != nil {
			return
		}
		outcome := e.sendAndWait(ctx, line)
		switch outcome.kind {
		case syncOK:
		case syncStopped:
			return
		default:
			e.emit(ctx, Error{Message: fmt.Sprintf("Macro stopped (%s): %s", outcome.message, line)})
			return
		}
	}
}

// cancelLocal clears job state without touching the controller. In-flight
// accounting is discarded unconditionally.
func (e *Engine) cancelLocal(ctx context.Context) {
	if e.job != nil {
		_ = e.job.src.Close()
		e.job = nil
	}
	e.window.Reset()
	e.emit(ctx, Progress{Acknowledged: 0, Total: 0})
	e.emit(ctx, JobState{Phase: PhaseIdle})
	e.emit(ctx, ActiveStreamMode{Mode: StreamNone})
	e.emitJobLine(ctx)
}

// finishJob ends the active job and reports why.
func (e *Engine) finishJob(ctx context.Context, message string) {
	if e.job == nil {
		return
	}
	_ = e.job.src.Close()
	e.job = nil
	e.window.Reset()
	e.emit(ctx, JobState{Phase: PhaseIdle})
	e.emit(ctx, ActiveStreamMode{Mode: StreamNone})
	e.emitJobLine(ctx)
	e.emit(ctx, Log{Message: message})
}

func (e *Engine) teardown(ctx context.Context) {
	if e.job != nil {
		_ = e.job.src.Close()
		e.job = nil
	}
	e.emit(ctx, JobState{Phase: PhaseDisconnected})
	e.emit(ctx, ActiveStreamMode{Mode: StreamNone})
	e.emit(ctx, MachineState{Text: "-"})
	e.emit(ctx, PortInfo{Info: "-"})
	e.emit(ctx, GrblID{Banner: "-"})
	e.emitJobLine(ctx)
	e.emit(ctx, Log{Message: "Disconnected"})
}

// pollStatus requests a status report at a fixed cadence, fire and forget.
func (e *Engine) pollStatus(ctx context.Context) {
	if time.Since(e.lastPoll) < statusPollInterval {
		return
	}
	e.lastPoll = time.Now()
	if _, err := e.port.Write([]byte{byte(RealTimeStatusQuery)}); err != nil {
		e.failIO(ctx, "write", err)
	}
}

// handleStatus parses a status report line and publishes the machine
// state. Bf fields feed the flow-control window.
func (e *Engine) handleStatus(ctx context.Context, line string) {
	report, ok := ParseStatus(line)
	if !ok {
		e.emit(ctx, Status{Raw: line})
		return
	}
	e.lastStateToken = report.StateToken
	e.emit(ctx, Status{Raw: line, Report: report})
	text := report.StateToken
	if text == "" {
		text = "-"
	}
	e.emit(ctx, MachineState{Text: text})
	if report.PlannerFree != nil && report.RxFree != nil {
		if grown := e.window.Observe(*report.PlannerFree, *report.RxFree); grown > 0 {
			e.emit(ctx, Log{Message: fmt.Sprintf("[info] Learned larger RX buffer total via Bf: %d", grown)})
		}
	}
}

// failIO handles a read or write failure on the open port. It is fatal to
// the connection: the engine marks itself stopped and Run proceeds to
// teardown.
func (e *Engine) failIO(ctx context.Context, op string, err error) {
	if !e.running {
		return
	}
	e.running = false
	e.ioErr = fmt.Errorf("serial %s failed: %w", op, err)
	e.emit(ctx, Error{Message: fmt.Sprintf("Serial %s failed: %v", op, err)})
	e.emit(ctx, Log{Message: fmt.Sprintf("Emergency disconnect: serial %s failed.", op)})
}

// emit publishes an event without ever wedging the worker: it prefers the
// buffered channel and falls back to waiting until space frees or the
// context ends.
func (e *Engine) emit(ctx context.Context, ev Event) {
	select {
	case e.eventCh <- ev:
		return
	default:
	}
	select {
	case e.eventCh <- ev:
	case <-ctx.Done():
	}
}

func (e *Engine) emitJobLine(ctx context.Context) {
	var sent, acked, total int
	if e.job != nil {
		sent, acked, total = e.job.sent, e.job.acked, e.job.total
	}
	e.emit(ctx, JobLine{Sent: sent, Acknowledged: acked, Total: total})
}

// fillRxLines performs one read from the port and splits complete lines
// into the receive queue. A timed-out read with no data is not an error.
func (e *Engine) fillRxLines() error {
	n, err := e.port.Read(e.readBuf)
	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		return err
	}
	if n == 0 {
		return nil
	}
	data := e.rxTail + string(e.readBuf[:n])
	data = strings.ReplaceAll(data, "\r", "\n")
	parts := strings.Split(data, "\n")
	e.rxTail = parts[len(parts)-1]
	for _, part := range parts[:len(parts)-1] {
		part = strings.TrimSpace(part)
		if part != "" {
			e.rxLines = append(e.rxLines, part)
		}
	}
	return nil
}

// nextLine pops the oldest received line, reading from the port when the
// queue is empty. ok is false when no complete line is available yet.
func (e *Engine) nextLine() (line string, ok bool, err error) {
	if len(e.rxLines) == 0 {
		if err := e.fillRxLines(); err != nil {
			return "", false, err
		}
		if len(e.rxLines) == 0 {
			return "", false, nil
		}
	}
	line = e.rxLines[0]
	e.rxLines = e.rxLines[1:]
	return line, true, nil
}

func (e *Engine) sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
