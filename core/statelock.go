package core

import (
	"encoding/binary"
	"encoding/json"
	"sync"
	"sync/atomic"

	"lukechampine.com/blake3"
)

// Tip identifies the best known block of the chain.
type Tip struct {
	Hash   [32]byte `json:"hash"`
	Epoch  int64    `json:"epoch"`
	Slot   int64    `json:"slot"`
	Height uint64   `json:"height"`
}

// GenesisTip derives the epoch-zero tip from the network identity, so two
// nodes with the same configuration agree on it without any stored state.
func GenesisTip(protocolMagic uint32, networkName string) Tip {
	h := blake3.New(32, nil)
	var magic [4]byte
	binary.BigEndian.PutUint32(magic[:], protocolMagic)
	h.Write(magic[:])
	h.Write([]byte(networkName))
	var tip Tip
	h.Sum(tip.Hash[:0])
	return tip
}

func encodeTip(t Tip) ([]byte, error) {
	return json.Marshal(t)
}

func decodeTip(raw []byte) (Tip, error) {
	var t Tip
	err := json.Unmarshal(raw, &t)
	return t, err
}

// StateLock is the process-wide mutual exclusion over chain-state mutation,
// seeded with the current chain tip. At most one mutator holds it at a time;
// readers that need a consistent snapshot take it for the duration of their
// read.
type StateLock struct {
	mu  sync.Mutex
	tip Tip
}

// NewStateLock seeds the lock with the current tip.
func NewStateLock(tip Tip) *StateLock {
	return &StateLock{tip: tip}
}

// WithLock runs fn while holding the lock. fn receives the current tip and
// returns the tip after its mutation; on error the tip is left unchanged.
func (l *StateLock) WithLock(fn func(tip Tip) (Tip, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := fn(l.tip)
	if err != nil {
		return err
	}
	l.tip = next
	return nil
}

// Snapshot returns the tip under the lock.
func (l *StateLock) Snapshot() Tip {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tip
}

// TipCache is the last-known-chain-tip cache: a lock-free read path for the
// surfaces (stats, health, wallet queries) that tolerate slight staleness.
type TipCache struct {
	p atomic.Pointer[Tip]
}

// NewTipCache seeds the cache.
func NewTipCache(tip Tip) *TipCache {
	c := &TipCache{}
	c.p.Store(&tip)
	return c
}

// Load returns the cached tip.
func (c *TipCache) Load() Tip {
	return *c.p.Load()
}

// Store replaces the cached tip.
func (c *TipCache) Store(tip Tip) {
	t := tip
	c.p.Store(&t)
}
