package launch

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"slatechain/core"
)

// Process exit statuses. ExitStopForUpdate is contractually distinct from
// both success and generic failure: it tells the supervisor the node stopped
// for a software update or administrative restart and a restart is expected.
// No further supervisor semantics are assumed.
const (
	ExitSuccess       = 0
	ExitFailure       = 1
	ExitStopForUpdate = 20
)

// ErrUpdateRequested is returned by RaceShutdown when the shutdown flag wins
// the race against the running action.
var ErrUpdateRequested = errors.New("launch: shutdown requested, stopping for update")

// RaceShutdown races run against the shutdown flag. If run finishes first
// its result propagates unchanged; if shutdown wins, ErrUpdateRequested is
// returned and run is abandoned without further cleanup beyond what the
// lifecycle bracket already guarantees. One-shot: repeated triggers are not
// distinguished.
func RaceShutdown(sdc *core.ShutdownContext, run func() error) error {
	done := make(chan error, 1)
	go func() { done <- run() }()
	select {
	case err := <-done:
		return err
	case <-sdc.Done():
		return ErrUpdateRequested
	}
}

// InstallSignalHandler wires SIGINT/SIGTERM to the shutdown flag.
func InstallSignalHandler(sdc *core.ShutdownContext, logger *slog.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-ch
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		sdc.Trigger()
	}()
}

// ExitCode maps the outcome of the raced runtime to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrUpdateRequested):
		return ExitStopForUpdate
	default:
		return ExitFailure
	}
}
