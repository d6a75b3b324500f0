package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestShutdownTriggerIsOneWayAndIdempotent(t *testing.T) {
	sdc := NewShutdownContext()
	if sdc.Requested() {
		t.Fatalf("fresh context reports requested")
	}

	sdc.Trigger()
	sdc.Trigger()
	if !sdc.Requested() {
		t.Fatalf("trigger not observed")
	}
	select {
	case <-sdc.Done():
	default:
		t.Fatalf("done channel not closed")
	}
}

func TestShutdownWait(t *testing.T) {
	sdc := NewShutdownContext()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := sdc.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sdc.Wait(context.Background()) }()
	sdc.Trigger()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter not released")
	}
}
