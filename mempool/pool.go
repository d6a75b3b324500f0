// Package mempool keeps the in-memory pool of pending transactions. The pool
// is constructed early in node allocation, before the leader-election and
// slot-timing contexts exist; its settings therefore reference those through
// single-assignment futures that allocation resolves later.
package mempool

import (
	"context"
	"errors"
	"sync"
	"time"

	"lukechampine.com/blake3"

	"slatechain/core/election"
	"slatechain/core/slotting"
	"slatechain/future"
)

var (
	ErrPoolFull = errors.New("mempool: pool is full")
	ErrKnownTx  = errors.New("mempool: transaction already pooled")
	ErrEmptyTx  = errors.New("mempool: empty transaction")
)

// Tx is a raw pooled transaction addressed by its blake3 hash.
type Tx struct {
	Hash     [32]byte
	Raw      []byte
	Received time.Time
	TTLSlots int64
}

// NewTx wraps raw transaction bytes.
func NewTx(raw []byte) Tx {
	return Tx{Hash: blake3.Sum256(raw), Raw: raw, Received: time.Now()}
}

// Limits bounds the pool; they come straight from configuration.
type Limits struct {
	MaxBytes int64
	MaxTxs   int
}

// Settings wires the pool into the rest of the node. Election and Slotting
// are futures because the pool is built before either context exists.
type Settings struct {
	Limits   Limits
	Election *future.Slot[*election.Context]
	Slotting *future.Slot[*slotting.Context]
}

// Pool is the transaction pool state.
type Pool struct {
	settings Settings

	mu    sync.Mutex
	txs   map[[32]byte]Tx
	order [][32]byte
	bytes int64
}

// NewPool creates an empty pool.
func NewPool(settings Settings) *Pool {
	return &Pool{
		settings: settings,
		txs:      make(map[[32]byte]Tx),
	}
}

// Add pools a transaction, rejecting duplicates and anything that would
// exceed the configured bounds. The pool never evicts to make room.
func (p *Pool) Add(tx Tx) error {
	if len(tx.Raw) == 0 {
		return ErrEmptyTx
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.txs[tx.Hash]; ok {
		return ErrKnownTx
	}
	if p.settings.Limits.MaxTxs > 0 && len(p.txs) >= p.settings.Limits.MaxTxs {
		return ErrPoolFull
	}
	if p.settings.Limits.MaxBytes > 0 && p.bytes+int64(len(tx.Raw)) > p.settings.Limits.MaxBytes {
		return ErrPoolFull
	}
	p.txs[tx.Hash] = tx
	p.order = append(p.order, tx.Hash)
	p.bytes += int64(len(tx.Raw))
	return nil
}

// Remove drops a transaction, usually because a block included it.
func (p *Pool) Remove(hash [32]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx, ok := p.txs[hash]
	if !ok {
		return
	}
	delete(p.txs, hash)
	p.bytes -= int64(len(tx.Raw))
	for i, h := range p.order {
		if h == hash {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of pooled transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}

// SizeBytes returns the pooled payload size.
func (p *Pool) SizeBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytes
}

// Snapshot returns the pooled transactions in arrival order.
func (p *Pool) Snapshot() []Tx {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Tx, 0, len(p.order))
	for _, h := range p.order {
		out = append(out, p.txs[h])
	}
	return out
}

// ProposalBatch returns up to max transactions for a block proposal. It
// blocks until the leader schedule is available: proposing before the first
// election would build a block nobody accepts.
func (p *Pool) ProposalBatch(ctx context.Context, max int) ([]Tx, error) {
	if p.settings.Election != nil {
		ec, err := p.settings.Election.Get(ctx)
		if err != nil {
			return nil, err
		}
		if err := ec.WaitReady(ctx); err != nil {
			return nil, err
		}
	}
	batch := p.Snapshot()
	if max > 0 && len(batch) > max {
		batch = batch[:max]
	}
	return batch, nil
}

// Prune drops transactions whose slot TTL expired. It reads the slot-timing
// context through its future; before allocation resolves it, callers simply
// have nothing to prune.
func (p *Pool) Prune(now time.Time) int {
	if p.settings.Slotting == nil {
		return 0
	}
	sc, ok := p.settings.Slotting.TryGet()
	if !ok {
		return 0
	}
	current := sc.Current(now)

	p.mu.Lock()
	defer p.mu.Unlock()
	pruned := 0
	kept := p.order[:0]
	for _, h := range p.order {
		tx := p.txs[h]
		if tx.TTLSlots > 0 {
			received := sc.Current(tx.Received)
			count := sc.Var().For(received.Epoch).Count
			if count <= 0 {
				kept = append(kept, h)
				continue
			}
			total := received.Slot + tx.TTLSlots
			expiry := slotting.SlotID{Epoch: received.Epoch + total/count, Slot: total % count}
			if expiry.Before(current) || expiry == current {
				delete(p.txs, h)
				p.bytes -= int64(len(tx.Raw))
				pruned++
				continue
			}
		}
		kept = append(kept, h)
	}
	p.order = kept
	return pruned
}
