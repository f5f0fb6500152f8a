package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fornellas/slogxt/log"

	"github.com/grblmini/gms/broker"
	"github.com/grblmini/gms/gcode"
	"github.com/grblmini/gms/grbl"
	"github.com/grblmini/gms/worker"
)

var streamModeFlag string
var defaultStreamModeFlag = string(grbl.StreamSync)

// subscriberChSize buffers each event subscriber. The job driver does no
// I/O and never falls this far behind; the renderer may drop under
// terminal backpressure, which only costs log lines.
const subscriberChSize = 256

// sanitizeToTemp writes the wire-ready form of the program at path to a
// temp file and returns its path and retained line count. The original
// file is never modified.
func sanitizeToTemp(path string) (string, int, error) {
	tmp, err := os.CreateTemp("", "gms-*-"+filepath.Base(path))
	if err != nil {
		return "", 0, err
	}
	workPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		return "", 0, errors.Join(err, os.Remove(workPath))
	}
	total, err := gcode.SanitizeFile(path, workPath)
	if err != nil {
		return "", 0, errors.Join(err, os.Remove(workPath))
	}
	return workPath, total, nil
}

// renderEvents reports engine activity to the operator.
func renderEvents(ctx context.Context, events <-chan grbl.Event) error {
	logger := log.MustLogger(ctx)
	lastPercent := -1
	for ev := range events {
		switch e := ev.(type) {
		case grbl.Log:
			logger.Info(e.Message)
		case grbl.Error:
			logger.Error(e.Message)
		case grbl.Progress:
			if e.Total <= 0 {
				break
			}
			percent := 100 * e.Acknowledged / e.Total
			if percent != lastPercent {
				lastPercent = percent
				logger.Info("Progress", "lines", fmt.Sprintf("%d/%d", e.Acknowledged, e.Total), "percent", percent)
			}
		}
	}
	return nil
}

// driveJob owns the job lifecycle: wait for an Idle report, post the job,
// and judge success by the acknowledged line count once the job phase
// returns to idle.
func driveJob(ctx context.Context, post func(grbl.Command) bool, events <-chan grbl.Event, path string, total int, mode grbl.StreamMode) error {
	logger := log.MustLogger(ctx)

	posted := false
	waitLogged := false
	running := false
	done := false
	acked := 0
	var jobErr error

	finish := func(err error) {
		if done {
			return
		}
		done = true
		jobErr = err
		post(grbl.Shutdown{})
	}

	for ev := range events {
		switch e := ev.(type) {
		case grbl.Error:
			if !running {
				// Connecting, handshaking or starting failed.
				finish(errors.New(e.Message))
			}
		case grbl.MachineState:
			if posted || e.Text == "-" {
				break
			}
			if grbl.ParseState(e.Text) == grbl.StateIdle {
				posted = true
				if !post(grbl.StartJob{Path: path, TotalLines: total, Mode: mode}) {
					finish(errors.New("engine is not accepting commands"))
				}
			} else if !waitLogged {
				waitLogged = true
				logger.Info("Waiting for controller to become idle", "state", e.Text)
			}
		case grbl.JobState:
			switch e.Phase {
			case grbl.PhaseRunning:
				running = true
			case grbl.PhaseIdle:
				if !running {
					break
				}
				if acked == total {
					finish(nil)
				} else {
					finish(fmt.Errorf("job ended after %d/%d lines", acked, total))
				}
			}
		case grbl.Progress:
			acked = e.Acknowledged
		}
	}
	return jobErr
}

var SendCmd = &cobra.Command{
	Use:   "send path",
	Short: "Stream a g-code file to the controller.",
	Long:  "Sanitizes the file to a temporary working copy, connects, waits for the controller to report Idle, streams every line and exits non-zero if the job does not complete.",
	Args:  cobra.ExactArgs(1),
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		path := args[0]

		ctx, logger := log.MustWithAttrs(
			cmd.Context(),
			"port-name", portName,
			"address", address,
			"path", path,
			"stream-mode", streamModeFlag,
		)
		cmd.SetContext(ctx)

		openPortFn, err := GetOpenPortFn()
		if err != nil {
			return err
		}
		mode := grbl.ParseStreamMode(streamModeFlag)

		workPath, total, err := sanitizeToTemp(path)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, os.Remove(workPath)) }()

		if total == 0 {
			return fmt.Errorf("%s has no sendable lines", path)
		}
		logger.Info("Sanitized", "lines", total)

		eng := grbl.NewEngine(GetEngineConfig(), openPortFn)
		events := broker.NewBroker[grbl.Event]()
		renderCh := events.Subscribe("Render", subscriberChSize)
		jobCh := events.Subscribe("Job", subscriberChSize)

		m := worker.NewManager()
		m.Add("Engine", eng.Run)
		m.Add("Events", func(ctx context.Context) error {
			for ev := range eng.Events() {
				events.Publish(ev)
			}
			events.Close()
			return nil
		})
		m.Add("Render", func(ctx context.Context) error {
			return renderEvents(ctx, renderCh)
		})
		m.Add("Job", func(ctx context.Context) error {
			return driveJob(ctx, eng.Post, jobCh, workPath, total, mode)
		})
		m.Start(ctx)

		return worker.Err(m.Wait(ctx))
	}),
}

func init() {
	AddPortFlags(SendCmd)
	AddEngineFlags(SendCmd)

	SendCmd.PersistentFlags().StringVar(
		&streamModeFlag, "stream-mode", defaultStreamModeFlag,
		"Flow control for the job: sync waits for each acknowledgment, buffered keeps the receive buffer full",
	)

	RootCmd.AddCommand(SendCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		streamModeFlag = defaultStreamModeFlag
	})
}
