package shutdown

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

// TestSetupSignalHandler tests that the signal handler context works
func TestSetupSignalHandler(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Signal tests not supported on Windows")
	}

	var stopped atomic.Bool
	ctx := SetupSignalHandler(time.Second, Hook{Name: "feed", Stop: func(context.Context) error {
		stopped.Store(true)
		return nil
	}})

	select {
	case <-ctx.Done():
		t.Fatal("Context should not be cancelled initially")
	default:
	}

	p, _ := os.FindProcess(os.Getpid())
	p.Signal(os.Interrupt)

	select {
	case <-ctx.Done():
	case <-time.After(1 * time.Second):
		t.Fatal("Context should be cancelled after signal")
	}

	if !stopped.Load() {
		t.Error("Stop hook should have run before cancellation")
	}
}

// TestWaitForSignal_ContextDone returns without draining
func TestWaitForSignal_ContextDone(t *testing.T) {
	var stopped atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan bool)
	go func() {
		done <- WaitForSignal(ctx, time.Second, Hook{Name: "http", Stop: func(context.Context) error {
			stopped.Store(true)
			return nil
		}})
	}()

	select {
	case signalled := <-done:
		if signalled {
			t.Error("WaitForSignal should report no signal")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("WaitForSignal should return once the context is done")
	}
	if stopped.Load() {
		t.Error("Stop hook should not run without a signal")
	}
}

func TestDrain_RunsEveryHookInOrder(t *testing.T) {
	var order []string
	errDisk := errors.New("disk full")

	err := Drain(time.Second,
		Hook{Name: "feed", Stop: func(context.Context) error {
			order = append(order, "feed")
			return nil
		}},
		Hook{Name: "reports", Stop: func(context.Context) error {
			order = append(order, "reports")
			return errDisk
		}},
		Hook{Name: "http", Stop: func(context.Context) error {
			order = append(order, "http")
			return nil
		}},
	)

	if len(order) != 3 || order[0] != "feed" || order[1] != "reports" || order[2] != "http" {
		t.Errorf("hooks ran as %v, want [feed reports http]", order)
	}
	if !errors.Is(err, errDisk) {
		t.Errorf("Drain error = %v, want it to wrap %v", err, errDisk)
	}
}

func TestDrain_SharedDeadline(t *testing.T) {
	var deadline time.Time
	err := Drain(50*time.Millisecond, Hook{Name: "http", Stop: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	}})

	if deadline.IsZero() {
		t.Error("hooks should receive a deadline")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drain error = %v, want deadline exceeded", err)
	}
}
