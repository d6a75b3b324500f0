// Package slotting translates wall-clock time into the logical block
// production slots the consensus layer schedules against.
package slotting

import (
	"sync"
	"time"
)

// SlotID addresses one slot within one epoch.
type SlotID struct {
	Epoch int64
	Slot  int64
}

// EpochSlots describes the slot geometry of an epoch.
type EpochSlots struct {
	Duration time.Duration
	Count    int64
}

// Var is the slot-timing variable: the genesis system start plus mutable
// per-epoch slotting data. It is created once during node allocation and
// updated in place when the protocol adjusts slot geometry; the node context
// is never rebuilt around it.
type Var struct {
	systemStart time.Time

	mu       sync.RWMutex
	defaults EpochSlots
	epochs   map[int64]EpochSlots
}

// NewVar seeds the variable from the genesis system start.
func NewVar(systemStart time.Time, defaults EpochSlots) *Var {
	return &Var{
		systemStart: systemStart.UTC(),
		defaults:    defaults,
		epochs:      make(map[int64]EpochSlots),
	}
}

// SystemStart returns the genesis start time.
func (v *Var) SystemStart() time.Time {
	return v.systemStart
}

// For returns the slot geometry for an epoch, falling back to the genesis
// defaults when no override was recorded.
func (v *Var) For(epoch int64) EpochSlots {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if data, ok := v.epochs[epoch]; ok {
		return data
	}
	return v.defaults
}

// Update records slot geometry for an epoch.
func (v *Var) Update(epoch int64, data EpochSlots) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.epochs[epoch] = data
}

// lastOverride returns the highest epoch with recorded geometry, or -1 when
// every epoch uses the genesis defaults. Conversions walk epoch by epoch up
// to this point and switch to plain division beyond it.
func (v *Var) lastOverride() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	last := int64(-1)
	for epoch := range v.epochs {
		if epoch > last {
			last = epoch
		}
	}
	return last
}

// Context provides the pure time-to-slot conversions over a Var.
type Context struct {
	v *Var
}

// NewContext wraps a slot-timing variable.
func NewContext(v *Var) *Context {
	return &Context{v: v}
}

// Var exposes the underlying slot-timing variable.
func (c *Context) Var() *Var {
	return c.v
}

// Current returns the slot containing now. Before the system start the
// first slot of epoch zero is reported. Epochs with recorded geometry are
// walked one by one so Current and SlotStart invert each other even after
// an override changes epoch size mid-chain.
func (c *Context) Current(now time.Time) SlotID {
	elapsed := now.UTC().Sub(c.v.systemStart)
	if elapsed < 0 {
		return SlotID{}
	}
	last := c.v.lastOverride()
	for epoch := int64(0); ; epoch++ {
		geo := c.v.For(epoch)
		if geo.Duration <= 0 || geo.Count <= 0 {
			return SlotID{Epoch: epoch}
		}
		if epoch > last {
			// Uniform geometry from here on.
			total := int64(elapsed / geo.Duration)
			return SlotID{Epoch: epoch + total/geo.Count, Slot: total % geo.Count}
		}
		span := time.Duration(geo.Count) * geo.Duration
		if elapsed < span {
			return SlotID{Epoch: epoch, Slot: int64(elapsed / geo.Duration)}
		}
		elapsed -= span
	}
}

// epochOffset returns the duration between the system start and the first
// slot of an epoch, accounting for geometry overrides in earlier epochs.
func (c *Context) epochOffset(epoch int64) time.Duration {
	var offset time.Duration
	last := c.v.lastOverride()
	for e := int64(0); e < epoch; e++ {
		geo := c.v.For(e)
		if geo.Duration <= 0 || geo.Count <= 0 {
			return offset
		}
		if e > last {
			return offset + time.Duration(epoch-e)*time.Duration(geo.Count)*geo.Duration
		}
		offset += time.Duration(geo.Count) * geo.Duration
	}
	return offset
}

// SlotStart returns the wall-clock start of a slot.
func (c *Context) SlotStart(id SlotID) time.Time {
	geo := c.v.For(id.Epoch)
	return c.v.systemStart.Add(c.epochOffset(id.Epoch) + time.Duration(id.Slot)*geo.Duration)
}

// Before reports whether a precedes b in slot order.
func (a SlotID) Before(b SlotID) bool {
	if a.Epoch != b.Epoch {
		return a.Epoch < b.Epoch
	}
	return a.Slot < b.Slot
}
