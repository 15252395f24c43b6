// Package shutdown turns SIGINT/SIGTERM into an ordered, time-boxed stop of
// the analyzer services.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// DefaultGrace bounds how long all stop hooks together may take
const DefaultGrace = 10 * time.Second

// Hook is one step of a graceful stop, e.g. closing the live feed before the
// HTTP server drains
type Hook struct {
	Name string
	Stop func(ctx context.Context) error
}

// Drain runs hooks in order under one shared grace deadline. A failing hook
// does not stop the ones after it; all failures are returned joined.
func Drain(grace time.Duration, hooks ...Hook) error {
	if grace <= 0 {
		grace = DefaultGrace
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	var errs []error
	for _, h := range hooks {
		log.Printf("[Signal] Stopping %s", h.Name)
		if err := h.Stop(ctx); err != nil {
			log.Printf("[Signal] %s: %v", h.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}

// SetupSignalHandler returns a context cancelled on the first SIGTERM or SIGINT,
// after the hooks have drained. A second signal exits the process.
func SetupSignalHandler(grace time.Duration, hooks ...Hook) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		log.Printf("[Signal] Received %v, initiating graceful shutdown...", sig)
		Drain(grace, hooks...)
		cancel()

		sig = <-sigCh
		log.Printf("[Signal] Received second %v, forcing exit", sig)
		os.Exit(1)
	}()

	return ctx
}

// WaitForSignal blocks until ctx ends or a signal arrives. The hooks drain only
// for a signal; the return value reports whether one arrived.
func WaitForSignal(ctx context.Context, grace time.Duration, hooks ...Hook) bool {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		log.Println("[Signal] Context cancelled")
		return false
	case sig := <-sigCh:
		log.Printf("[Signal] Received %v, initiating graceful shutdown...", sig)
		Drain(grace, hooks...)
		return true
	}
}
