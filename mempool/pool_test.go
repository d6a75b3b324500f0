package mempool

import (
	"context"
	"errors"
	"testing"
	"time"

	"slatechain/core/election"
	"slatechain/core/slotting"
	"slatechain/future"
)

func TestAddRejectsDuplicatesAndOverflow(t *testing.T) {
	pool := NewPool(Settings{Limits: Limits{MaxBytes: 64, MaxTxs: 2}})

	tx := NewTx([]byte("payload-a"))
	if err := pool.Add(tx); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := pool.Add(tx); !errors.Is(err, ErrKnownTx) {
		t.Fatalf("expected ErrKnownTx, got %v", err)
	}
	if err := pool.Add(NewTx([]byte("payload-b"))); err != nil {
		t.Fatalf("add second: %v", err)
	}
	if err := pool.Add(NewTx([]byte("payload-c"))); !errors.Is(err, ErrPoolFull) {
		t.Fatalf("expected ErrPoolFull, got %v", err)
	}
	if err := pool.Add(Tx{}); !errors.Is(err, ErrEmptyTx) {
		t.Fatalf("expected ErrEmptyTx, got %v", err)
	}
	if pool.Len() != 2 {
		t.Fatalf("len = %d", pool.Len())
	}
}

func TestAddRejectsByteOverflow(t *testing.T) {
	pool := NewPool(Settings{Limits: Limits{MaxBytes: 10}})
	if err := pool.Add(NewTx(make([]byte, 8))); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := pool.Add(NewTx(make([]byte, 8))); !errors.Is(err, ErrPoolFull) {
		t.Fatalf("expected ErrPoolFull, got %v", err)
	}
	if pool.SizeBytes() != 8 {
		t.Fatalf("bytes = %d", pool.SizeBytes())
	}
}

func TestRemoveKeepsOrder(t *testing.T) {
	pool := NewPool(Settings{})
	a := NewTx([]byte("a"))
	b := NewTx([]byte("b"))
	c := NewTx([]byte("c"))
	for _, tx := range []Tx{a, b, c} {
		if err := pool.Add(tx); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	pool.Remove(b.Hash)
	snapshot := pool.Snapshot()
	if len(snapshot) != 2 || snapshot[0].Hash != a.Hash || snapshot[1].Hash != c.Hash {
		t.Fatalf("snapshot = %v", snapshot)
	}
}

func TestProposalBatchWaitsForElection(t *testing.T) {
	electionFut := future.NewSlot[*election.Context]()
	pool := NewPool(Settings{Election: electionFut})
	if err := pool.Add(NewTx([]byte("tx"))); err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	if _, err := pool.ProposalBatch(ctx, 10); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("batch before election should block, got %v", err)
	}
	cancel()

	ec := election.NewContext()
	ec.Install(election.Schedule{Epoch: 0, Leaders: []string{"a"}})
	electionFut.Set(ec)

	batch, err := pool.ProposalBatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("batch len = %d", len(batch))
	}
}

func TestPruneDropsExpired(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	v := slotting.NewVar(start, slotting.EpochSlots{Duration: time.Second, Count: 10})
	slotFut := future.NewSlot[*slotting.Context]()

	pool := NewPool(Settings{Slotting: slotFut})
	expired := Tx{Hash: [32]byte{1}, Raw: []byte("old"), Received: start, TTLSlots: 2}
	fresh := Tx{Hash: [32]byte{2}, Raw: []byte("new"), Received: start.Add(50 * time.Second), TTLSlots: 100}
	eternal := Tx{Hash: [32]byte{3}, Raw: []byte("keep"), Received: start}
	for _, tx := range []Tx{expired, fresh, eternal} {
		if err := pool.Add(tx); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	// Future unresolved: nothing to prune yet.
	if pruned := pool.Prune(start.Add(time.Hour)); pruned != 0 {
		t.Fatalf("pruned %d before slotting resolved", pruned)
	}

	slotFut.Set(slotting.NewContext(v))
	if pruned := pool.Prune(start.Add(time.Minute)); pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}
	if pool.Len() != 2 {
		t.Fatalf("len = %d", pool.Len())
	}
}
