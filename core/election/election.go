// Package election holds the per-epoch leader schedule used to decide slot
// leadership. Schedule computation itself happens in the consensus layer;
// this package only owns the shared, swappable state.
package election

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSchedule is returned when leadership is queried before any schedule
// was installed.
var ErrNoSchedule = errors.New("election: no leader schedule installed")

// Schedule assigns a leader to every slot of one epoch.
type Schedule struct {
	Epoch   int64
	Leaders []string
}

// Context is the leader-election context: the current schedule plus the sync
// data consumers wait on until the first schedule arrives.
type Context struct {
	mu       sync.RWMutex
	schedule *Schedule

	readyOnce sync.Once
	ready     chan struct{}
}

// NewContext creates an empty election context.
func NewContext() *Context {
	return &Context{ready: make(chan struct{})}
}

// Install swaps in the schedule for a new epoch and releases any waiter
// blocked on the first installation.
func (c *Context) Install(s Schedule) {
	c.mu.Lock()
	c.schedule = &s
	c.mu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })
}

// Current returns the installed schedule, if any.
func (c *Context) Current() (Schedule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.schedule == nil {
		return Schedule{}, false
	}
	return *c.schedule, true
}

// LeaderAt returns the leader of the given slot in the current epoch.
func (c *Context) LeaderAt(slot int64) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.schedule == nil {
		return "", ErrNoSchedule
	}
	if slot < 0 || slot >= int64(len(c.schedule.Leaders)) {
		return "", ErrNoSchedule
	}
	return c.schedule.Leaders[slot], nil
}

// WaitReady blocks until the first schedule is installed or ctx is done.
func (c *Context) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
