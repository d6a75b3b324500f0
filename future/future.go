// Package future provides a single-assignment slot with a blocking read.
// It exists to break circular initialisation dependencies during node
// allocation: a value produced late in the allocation sequence can be
// referenced by a component constructed earlier, without reordering the
// sequence or resorting to nullable fields.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrDoubleWrite is the panic value raised when a slot is written twice.
// A second write indicates the allocation sequence itself is wrong, so it
// is treated as a programming fault rather than a recoverable error.
var ErrDoubleWrite = errors.New("future: slot written twice")

// Slot is a single-assignment cell. The zero value is not usable; construct
// with NewSlot. Once written it behaves as an ordinary immutable value:
// every read, before or after the write, yields the same value.
type Slot[T any] struct {
	mu    sync.Mutex
	done  chan struct{}
	value T
	set   bool
}

// NewSlot creates an unresolved slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{done: make(chan struct{})}
}

// Set resolves the slot and wakes every pending and future reader.
// Calling Set a second time panics with ErrDoubleWrite; the first value
// remains intact.
func (s *Slot[T]) Set(v T) {
	s.mu.Lock()
	if s.set {
		s.mu.Unlock()
		panic(ErrDoubleWrite)
	}
	s.value = v
	s.set = true
	close(s.done)
	s.mu.Unlock()
}

// Get blocks until the slot is resolved or ctx is cancelled. On
// cancellation the ctx error is returned and the slot stays readable.
func (s *Slot[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-s.done:
		return s.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the slot is resolved. It is intended for allocation
// code where write-before-read is a program-order invariant; a reader that
// never sees a write stays suspended.
func (s *Slot[T]) Wait() T {
	<-s.done
	return s.value
}

// TryGet reports the value without blocking.
func (s *Slot[T]) TryGet() (T, bool) {
	select {
	case <-s.done:
		return s.value, true
	default:
		var zero T
		return zero, false
	}
}

// Resolved reports whether the slot has been written.
func (s *Slot[T]) Resolved() bool {
	_, ok := s.TryGet()
	return ok
}
