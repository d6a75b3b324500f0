package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// ShutdownContext is the process-wide shutdown flag: written at most from
// unset to set, never reset, observed by any number of readers. The signal
// handler and internal fatal paths trigger it; the shutdown race waits on it.
type ShutdownContext struct {
	requested atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewShutdownContext creates an unset flag.
func NewShutdownContext() *ShutdownContext {
	return &ShutdownContext{done: make(chan struct{})}
}

// Trigger sets the flag and wakes every waiter. Repeated triggers are
// indistinguishable from the first.
func (s *ShutdownContext) Trigger() {
	s.requested.Store(true)
	s.once.Do(func() { close(s.done) })
}

// Requested reports whether shutdown has been triggered.
func (s *ShutdownContext) Requested() bool {
	return s.requested.Load()
}

// Done returns the channel closed on the first trigger.
func (s *ShutdownContext) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until shutdown is triggered or ctx is done.
func (s *ShutdownContext) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
