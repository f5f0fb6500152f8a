package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/fornellas/slogxt/log"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))
}

func blockUntilCancelled(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestManagerRunsAllWorkers(t *testing.T) {
	ctx := testContext(t)

	var mu sync.Mutex
	ran := []string{}
	mark := func(name string) func(context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			ran = append(ran, name)
			mu.Unlock()
			return nil
		}
	}

	m := NewManager()
	m.Add("first", mark("first"))
	m.Add("second", mark("second"))
	m.Start(ctx)

	errs := m.Wait(ctx)
	require.Len(t, errs, 2)
	require.NoError(t, errs["first"])
	require.NoError(t, errs["second"])

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{"first", "second"}, ran)
}

func TestManagerWorkerExitTriggersShutdown(t *testing.T) {
	ctx := testContext(t)

	m := NewManager()
	m.Add("quick", func(ctx context.Context) error {
		return nil
	})
	m.Add("blocked", blockUntilCancelled)
	m.Start(ctx)

	errs := m.Wait(ctx)
	require.NoError(t, errs["quick"])
	require.ErrorIs(t, errs["blocked"], context.Canceled)
}

func TestManagerWaitCancelsRemaining(t *testing.T) {
	ctx := testContext(t)

	m := NewManager()
	m.Add("blocked", blockUntilCancelled)
	m.Add("quick", func(ctx context.Context) error {
		return nil
	})
	m.Start(ctx)

	errs := m.Wait(ctx)
	require.NoError(t, errs["quick"])
	require.ErrorIs(t, errs["blocked"], context.Canceled)
}

func TestManagerWorkerError(t *testing.T) {
	ctx := testContext(t)
	errBoom := errors.New("boom")

	m := NewManager()
	m.Add("blocked", blockUntilCancelled)
	m.Add("failing", func(ctx context.Context) error {
		return errBoom
	})
	m.Start(ctx)

	errs := m.Wait(ctx)
	require.ErrorIs(t, errs["failing"], errBoom)
	require.ErrorIs(t, errs["blocked"], context.Canceled)
}

func TestManagerWorkerPanic(t *testing.T) {
	ctx := testContext(t)

	m := NewManager()
	m.Add("panicky", func(ctx context.Context) error {
		panic("kaboom")
	})
	m.Start(ctx)

	errs := m.Wait(ctx)
	require.Error(t, errs["panicky"])
	require.ErrorContains(t, errs["panicky"], "panic: kaboom")
}

func TestManagerCancel(t *testing.T) {
	ctx := testContext(t)

	m := NewManager()
	m.Add("a", blockUntilCancelled)
	m.Add("b", blockUntilCancelled)
	m.Start(ctx)
	m.Cancel(ctx)

	errs := m.Wait(ctx)
	require.ErrorIs(t, errs["a"], context.Canceled)
	require.ErrorIs(t, errs["b"], context.Canceled)
}

func TestManagerShutdownOrder(t *testing.T) {
	ctx := testContext(t)

	order := make(chan string, 3)
	block := func(name string) func(context.Context) error {
		return func(ctx context.Context) error {
			<-ctx.Done()
			order <- name
			return ctx.Err()
		}
	}

	m := NewManager()
	m.Add("backend", block("backend"))
	m.Add("middle", block("middle"))
	m.Add("frontend", block("frontend"))
	m.Start(ctx)
	m.Cancel(ctx)

	errs := m.Wait(ctx)
	require.Len(t, errs, 3)

	close(order)
	got := []string{}
	for name := range order {
		got = append(got, name)
	}
	require.Equal(t, []string{"frontend", "middle", "backend"}, got)
}

func TestErr(t *testing.T) {
	errBoom := errors.New("boom")

	err := Err(map[string]error{
		"clean":    nil,
		"canceled": context.Canceled,
		"failing":  errBoom,
	})
	require.ErrorIs(t, err, errBoom)
	require.ErrorContains(t, err, "failing: boom")

	require.NoError(t, Err(map[string]error{
		"clean":    nil,
		"canceled": context.Canceled,
	}))
}
