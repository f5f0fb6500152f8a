package grbl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fornellas/slogxt/log"
)

// job tracks one streaming program.
type job struct {
	src            *jobSource
	total          int
	sent           int
	acked          int
	active         bool
	paused         bool
	pausePhase     JobPhase
	mode           StreamMode
	oversizeWarned bool
}

// jobSource reads a sanitized program line by line with one line of
// pushback for flow-control rewinds.
type jobSource struct {
	file    *os.File
	scanner *bufio.Scanner
	pushed  *string
}

func openJobSource(path string) (*jobSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job source: %w", err)
	}
	return &jobSource{file: file, scanner: bufio.NewScanner(file)}, nil
}

// Next returns the next line, io.EOF at end of program.
func (s *jobSource) Next() (string, error) {
	if s.pushed != nil {
		line := *s.pushed
		s.pushed = nil
		return line, nil
	}
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Unread pushes line back so the next Next returns it again.
func (s *jobSource) Unread(line string) {
	if s.pushed != nil {
		panic("bug: jobSource pushback already occupied")
	}
	s.pushed = &line
}

func (s *jobSource) Close() error {
	return s.file.Close()
}

// streamStep advances the active job by one scheduling step.
func (e *Engine) streamStep(ctx context.Context) {
	if e.job == nil || !e.job.active || e.job.paused {
		return
	}
	switch e.job.mode {
	case StreamBuffered:
		e.streamStepBuffered(ctx)
	default:
		e.streamStepSync(ctx)
	}
}

// streamStepSync sends the next line and blocks until its acknowledgment.
func (e *Engine) streamStepSync(ctx context.Context) {
	line, err := e.job.src.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			e.finishJob(ctx, "Job complete")
		} else {
			e.finishJob(ctx, fmt.Sprintf("Job stopped: source read failed: %v", err))
		}
		return
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	e.job.sent++
	e.emitJobLine(ctx)
	outcome := e.sendAndWait(ctx, line)
	switch outcome.kind {
	case syncOK:
		e.job.acked++
		e.emit(ctx, Progress{Acknowledged: e.job.acked, Total: e.job.total})
		e.emitJobLine(ctx)
		if e.job.total > 0 && e.job.acked >= e.job.total {
			e.finishJob(ctx, "Job complete")
		}
	case syncStopped:
	default:
		e.finishJob(ctx, "Job stopped: "+outcome.message)
	}
}

// streamStepBuffered tops up the controller receive buffer. Lines go out
// until the window or the planner throttle stops them; acknowledgments are
// consumed later by settleJob.
//
//gocyclo:ignore
func (e *Engine) streamStepBuffered(ctx context.Context) {
	for e.running && e.job != nil && e.job.active && !e.job.paused {
		if ctx.Err() != nil {
			return
		}
		if !e.plannerCanSend(ctx) {
			return
		}
		if e.window.Full() {
			return
		}
		line, err := e.job.src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Acknowledgments still owed arrive via settleJob, which
				// also detects completion.
				if e.window.InFlight() == 0 {
					e.finishJob(ctx, "Job complete")
				}
				return
			}
			e.finishJob(ctx, fmt.Sprintf("Job stopped: source read failed: %v", err))
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n := len(line) + 1
		if e.window.Oversize(n) {
			if e.window.InFlight() > 0 {
				if !e.job.oversizeWarned {
					e.job.oversizeWarned = true
					e.emit(ctx, Log{Message: fmt.Sprintf(
						"[warn] Line exceeds RX buffer (%d > %d); waiting for buffer to drain.",
						n, e.window.Capacity())})
				}
				e.job.src.Unread(line)
				return
			}
			e.job.oversizeWarned = false
			e.sendOversizeSync(ctx, line)
			return
		}
		if !e.window.Fits(n) {
			e.job.src.Unread(line)
			return
		}
		if _, err := e.port.Write([]byte(line + "\n")); err != nil {
			e.failIO(ctx, "write", err)
			return
		}
		e.window.Send(n)
		e.job.sent++
		e.emitJobLine(ctx)
		log.MustLogger(ctx).Debug("Sent", "line", line, "inFlight", e.window.InFlight())
	}
}

// sendOversizeSync pushes a line longer than the whole receive buffer
// through the synchronous path once the buffer has drained.
func (e *Engine) sendOversizeSync(ctx context.Context, line string) {
	e.job.sent++
	e.emitJobLine(ctx)
	outcome := e.sendAndWait(ctx, line)
	switch outcome.kind {
	case syncOK:
		e.job.acked++
		e.emit(ctx, Progress{Acknowledged: e.job.acked, Total: e.job.total})
		e.emitJobLine(ctx)
		if e.job.total > 0 && e.job.acked >= e.job.total {
			e.finishJob(ctx, "Job complete")
		}
	case syncStopped:
	default:
		e.finishJob(ctx, "Job stopped: "+outcome.message)
	}
}

// plannerCanSend gates buffered sends on free planner blocks when the
// controller reports them through Bf.
func (e *Engine) plannerCanSend(ctx context.Context) bool {
	if !e.cfg.PlannerThrottle {
		return true
	}
	if !e.window.BufferStateSeen() && !e.plannerNoteShown {
		e.plannerNoteShown = true
		e.emit(ctx, Log{Message: "[info] Planner throttle disabled (no Bf: in status)."})
	}
	return e.window.PlannerAbove(e.cfg.PlannerFreeMin)
}

type syncKind int

const (
	syncOK syncKind = iota
	syncFatal
	syncTimeout
	syncStopped
)

func (k syncKind) String() string {
	switch k {
	case syncOK:
		return "ok"
	case syncFatal:
		return "fatal"
	case syncTimeout:
		return "timeout"
	case syncStopped:
		return "stopped"
	}
	return fmt.Sprintf("unknown (%d)", int(k))
}

// syncOutcome is the result of one synchronous send.
type syncOutcome struct {
	kind    syncKind
	message string
}

// sendAndWait writes one line and blocks until its acknowledgment, a fatal
// response, the per-command deadline, or engine stop.
func (e *Engine) sendAndWait(ctx context.Context, line string) syncOutcome {
	if _, err := e.port.Write([]byte(line + "\n")); err != nil {
		e.failIO(ctx, "write", err)
		return syncOutcome{kind: syncStopped}
	}
	log.MustLogger(ctx).Debug("Sent", "line", line)
	outcome := e.waitAck(ctx, line)
	if outcome.kind != syncOK {
		log.MustLogger(ctx).Debug("Send not acknowledged", "kind", outcome.kind, "message", outcome.message)
	}
	return outcome
}

// waitAck consumes received lines until ok, a fatal response, or the
// deadline. Status reports and chatter are handled in place so nothing
// queued behind the acknowledgment is lost.
func (e *Engine) waitAck(ctx context.Context, line string) syncOutcome {
	timeout := e.timeoutFor(line)
	deadline := time.Now().Add(timeout)
	for {
		if !e.running || ctx.Err() != nil {
			return syncOutcome{kind: syncStopped}
		}
		if time.Now().After(deadline) {
			return syncOutcome{
				kind: syncTimeout,
				message: fmt.Sprintf(
					"No response from controller (waiting for ok) after %.1fs.",
					timeout.Seconds()),
			}
		}
		recv, ok, err := e.nextLine()
		if err != nil {
			e.failIO(ctx, "read", err)
			return syncOutcome{kind: syncStopped}
		}
		if !ok {
			continue
		}
		if IsStatusLine(recv) {
			e.handleStatus(ctx, recv)
			continue
		}
		if recv == "ok" {
			return syncOutcome{kind: syncOK}
		}
		if isFatalLine(recv) {
			return syncOutcome{kind: syncFatal, message: recv}
		}
		e.emit(ctx, Log{Message: "[grbl] " + recv})
	}
}

// timeoutFor picks the acknowledgment deadline for a line. Homing blocks
// until motion completes and other $ system commands can take seconds, so
// both get longer deadlines.
func (e *Engine) timeoutFor(line string) time.Duration {
	upper := strings.ToUpper(strings.TrimSpace(line))
	switch {
	case strings.HasPrefix(upper, "$H"):
		return e.cfg.HomingTimeout
	case strings.HasPrefix(upper, "$"):
		return e.cfg.SystemTimeout
	}
	return e.cfg.AckTimeout
}

// isFatalLine reports whether a response aborts the in-flight command.
func isFatalLine(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "error:") || strings.HasPrefix(lower, "alarm:")
}

// drainResult summarizes one pass over queued controller responses.
type drainResult struct {
	acks  int
	fatal string
}

// processIncoming consumes every line already received, handling status
// reports and chatter in place and counting acknowledgments for settleJob.
func (e *Engine) processIncoming(ctx context.Context) drainResult {
	var res drainResult
	for {
		line, ok, err := e.nextLine()
		if err != nil {
			e.failIO(ctx, "read", err)
			return res
		}
		if !ok {
			return res
		}
		if IsStatusLine(line) {
			e.handleStatus(ctx, line)
			continue
		}
		if line == "ok" {
			res.acks++
			continue
		}
		if isFatalLine(line) {
			if res.fatal == "" {
				res.fatal = line
			}
			e.emit(ctx, Log{Message: "[grbl] " + line})
			continue
		}
		e.emit(ctx, Log{Message: "[grbl] " + line})
	}
}

// settleJob applies drained acknowledgments to the buffered job. A fatal
// response stops motion with a feed hold before ending the job.
func (e *Engine) settleJob(ctx context.Context, res drainResult) {
	if e.job == nil || !e.job.active || e.job.mode != StreamBuffered {
		return
	}
	if res.fatal != "" {
		if _, err := e.port.Write([]byte{byte(RealTimeFeedHold)}); err != nil {
			e.failIO(ctx, "write", err)
			return
		}
		e.finishJob(ctx, "Job stopped: "+res.fatal)
		return
	}
	if res.acks == 0 {
		return
	}
	for i := 0; i < res.acks; i++ {
		e.window.Ack()
		e.job.acked++
	}
	e.emit(ctx, Progress{Acknowledged: e.job.acked, Total: e.job.total})
	e.emitJobLine(ctx)
	if e.job.total > 0 && e.job.acked >= e.job.total {
		e.finishJob(ctx, "Job complete")
	}
}
