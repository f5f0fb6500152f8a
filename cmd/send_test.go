package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fornellas/slogxt/log"
	"github.com/stretchr/testify/require"

	"github.com/grblmini/gms/grbl"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))
}

// commandRecorder stands in for the engine's Post.
type commandRecorder struct {
	commands []grbl.Command
	reject   bool
}

func (r *commandRecorder) post(cmd grbl.Command) bool {
	r.commands = append(r.commands, cmd)
	return !r.reject
}

// eventChannel returns a closed channel pre-loaded with the given events,
// so consumers can be driven synchronously.
func eventChannel(events ...grbl.Event) <-chan grbl.Event {
	ch := make(chan grbl.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestSanitizeToTemp(t *testing.T) {
	src := filepath.Join(t.TempDir(), "part.nc")
	raw := "g21 ; metric\n( header )\nG0 X1\n\nG1 Y2 F100\n"
	require.NoError(t, os.WriteFile(src, []byte(raw), 0644))

	workPath, total, err := sanitizeToTemp(src)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(workPath) })

	require.Equal(t, 3, total)
	contents, err := os.ReadFile(workPath)
	require.NoError(t, err)
	require.Equal(t, "G21\nG0X1\nG1Y2F100\n", string(contents))

	original, err := os.ReadFile(src)
	require.NoError(t, err)
	require.Equal(t, raw, string(original))
}

func TestSanitizeToTempMissingSource(t *testing.T) {
	_, _, err := sanitizeToTemp(filepath.Join(t.TempDir(), "missing.nc"))
	require.Error(t, err)
}

func TestDriveJobCompletes(t *testing.T) {
	ctx := testContext(t)
	rec := &commandRecorder{}

	err := driveJob(ctx, rec.post, eventChannel(
		grbl.MachineState{Text: "Idle"},
		grbl.JobState{Phase: grbl.PhaseRunning},
		grbl.Progress{Acknowledged: 10, Total: 10},
		grbl.JobState{Phase: grbl.PhaseIdle},
	), "part.nc", 10, grbl.StreamSync)
	require.NoError(t, err)

	require.Equal(t, []grbl.Command{
		grbl.StartJob{Path: "part.nc", TotalLines: 10, Mode: grbl.StreamSync},
		grbl.Shutdown{},
	}, rec.commands)
}

func TestDriveJobWaitsForIdle(t *testing.T) {
	ctx := testContext(t)
	rec := &commandRecorder{}

	err := driveJob(ctx, rec.post, eventChannel(
		grbl.MachineState{Text: "-"},
		grbl.MachineState{Text: "Alarm"},
		grbl.MachineState{Text: "Run"},
		grbl.MachineState{Text: "Idle"},
		grbl.JobState{Phase: grbl.PhaseRunning},
		grbl.Progress{Acknowledged: 2, Total: 2},
		grbl.JobState{Phase: grbl.PhaseIdle},
	), "part.nc", 2, grbl.StreamBuffered)
	require.NoError(t, err)

	require.Equal(t, []grbl.Command{
		grbl.StartJob{Path: "part.nc", TotalLines: 2, Mode: grbl.StreamBuffered},
		grbl.Shutdown{},
	}, rec.commands)
}

func TestDriveJobIncomplete(t *testing.T) {
	ctx := testContext(t)
	rec := &commandRecorder{}

	err := driveJob(ctx, rec.post, eventChannel(
		grbl.MachineState{Text: "Idle"},
		grbl.JobState{Phase: grbl.PhaseRunning},
		grbl.Progress{Acknowledged: 3, Total: 10},
		grbl.JobState{Phase: grbl.PhaseIdle},
	), "part.nc", 10, grbl.StreamSync)
	require.EqualError(t, err, "job ended after 3/10 lines")
}

func TestDriveJobConnectFailure(t *testing.T) {
	ctx := testContext(t)
	rec := &commandRecorder{}

	err := driveJob(ctx, rec.post, eventChannel(
		grbl.Error{Message: "failed to open port: no such device"},
	), "part.nc", 10, grbl.StreamSync)
	require.EqualError(t, err, "failed to open port: no such device")
	require.Equal(t, []grbl.Command{grbl.Shutdown{}}, rec.commands)
}

func TestDriveJobErrorDuringJob(t *testing.T) {
	// Mid-job errors are reported by the renderer; completion is judged
	// by the acknowledged count alone.
	ctx := testContext(t)
	rec := &commandRecorder{}

	err := driveJob(ctx, rec.post, eventChannel(
		grbl.MachineState{Text: "Idle"},
		grbl.JobState{Phase: grbl.PhaseRunning},
		grbl.Error{Message: "error:24 (two g-codes from same modal group)"},
		grbl.Progress{Acknowledged: 5, Total: 5},
		grbl.JobState{Phase: grbl.PhaseIdle},
	), "part.nc", 5, grbl.StreamSync)
	require.NoError(t, err)
}

func TestDriveJobPostRejected(t *testing.T) {
	ctx := testContext(t)
	rec := &commandRecorder{reject: true}

	err := driveJob(ctx, rec.post, eventChannel(
		grbl.MachineState{Text: "Idle"},
	), "part.nc", 10, grbl.StreamSync)
	require.EqualError(t, err, "engine is not accepting commands")
}

func TestRenderEventsDrains(t *testing.T) {
	ctx := testContext(t)

	require.NoError(t, renderEvents(ctx, eventChannel(
		grbl.Log{Message: "[grbl] Grbl 1.1h ['$' for help]"},
		grbl.Error{Message: "error:2 (bad number format)"},
		grbl.Progress{Acknowledged: 1, Total: 4},
		grbl.Progress{Acknowledged: 2, Total: 4},
		grbl.Progress{Acknowledged: 0, Total: 0},
		grbl.Status{Raw: "<Idle>"},
	)))
}
