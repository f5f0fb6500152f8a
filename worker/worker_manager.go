package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/fornellas/slogxt/log"
)

type worker struct {
	name   string
	fn     func(context.Context) error
	cancel context.CancelFunc
	errCh  chan error
}

// Manager runs a group of named workers and coordinates their shutdown.
// Workers registered later are collected first by Wait, so consumers
// should be added after the producers they drain.
type Manager struct {
	workers []*worker
}

func NewManager() *Manager {
	return &Manager{}
}

// Add registers a worker under name. Must be called before Start.
func (m *Manager) Add(name string, fn func(context.Context) error) {
	m.workers = append([]*worker{{name: name, fn: fn}}, m.workers...)
}

// Start launches every registered worker. Each runs under its own
// cancelable context carrying a logger group named after it. Any worker
// returning or panicking triggers Cancel, so the group winds down as
// soon as one member exits.
func (m *Manager) Start(ctx context.Context) {
	ctx, logger := log.MustWithGroup(ctx, "Workers")
	logger.Debug("Starting workers", "count", len(m.workers))
	for _, w := range m.workers {
		workerCtx, workerLogger := log.MustWithGroup(ctx, w.name)
		workerCtx, w.cancel = context.WithCancel(workerCtx)
		w.errCh = make(chan error, 1)
		go func() {
			var err error
			defer func() {
				m.Cancel(workerCtx)
				if r := recover(); r != nil {
					workerLogger.Debug("Panic", "recovered", r, "stack", string(debug.Stack()))
					w.errCh <- fmt.Errorf("panic: %v", r)
				} else {
					workerLogger.Debug("Finished", "err", err)
					w.errCh <- err
				}
			}()
			workerLogger.Debug("Starting")
			err = w.fn(workerCtx)
		}()
	}
}

// Cancel begins group shutdown by cancelling the most recently added
// worker. Wait cancels the remaining workers one by one as it collects
// them.
func (m *Manager) Cancel(ctx context.Context) {
	if len(m.workers) == 0 || m.workers[0].cancel == nil {
		return
	}
	log.MustLogger(ctx).Debug("Cancelling workers", "first", m.workers[0].name)
	m.workers[0].cancel()
}

// Wait blocks until every worker has returned and reports each worker's
// error under its name. Workers are cancelled in reverse registration
// order as their predecessors finish.
func (m *Manager) Wait(ctx context.Context) map[string]error {
	logger := log.MustLogger(ctx)
	errs := make(map[string]error, len(m.workers))
	for i, w := range m.workers {
		if i > 0 {
			w.cancel()
		}
		errs[w.name] = <-w.errCh
		logger.Debug("Worker returned", "name", w.name, "err", errs[w.name])
	}
	m.workers = nil
	return errs
}

// Err flattens a Wait result into a single error, naming each failed
// worker. Context cancellation is dropped since that is the normal
// shutdown path.
func Err(errs map[string]error) error {
	var err error
	for name, workerErr := range errs {
		if workerErr == nil || errors.Is(workerErr, context.Canceled) {
			continue
		}
		err = errors.Join(err, fmt.Errorf("%s: %w", name, workerErr))
	}
	return err
}
