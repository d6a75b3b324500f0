// Package ssc holds the shared-seed computation state: the commitment,
// opening, and share phases that together derive the randomness seed for the
// next epoch's leader election.
package ssc

import (
	"errors"
	"sort"
	"sync"

	"lukechampine.com/blake3"
)

var (
	ErrDuplicate  = errors.New("ssc: participant already submitted for this phase")
	ErrWrongPhase = errors.New("ssc: submission outside its phase")
)

// Phase is the position of a slot within the epoch's SSC timetable.
type Phase int

const (
	PhaseCommitment Phase = iota
	PhaseOpening
	PhaseShares
	PhaseIdle
)

// PhaseAt maps a slot index to its SSC phase. The first three tenths of an
// epoch are split evenly between the phases; the remainder is idle.
func PhaseAt(slot, slotsPerEpoch int64) Phase {
	if slotsPerEpoch <= 0 {
		return PhaseIdle
	}
	tenth := slotsPerEpoch / 10
	if tenth == 0 {
		tenth = 1
	}
	switch {
	case slot < tenth:
		return PhaseCommitment
	case slot < 2*tenth:
		return PhaseOpening
	case slot < 3*tenth:
		return PhaseShares
	default:
		return PhaseIdle
	}
}

// State accumulates one epoch's SSC submissions.
type State struct {
	mu          sync.RWMutex
	epoch       int64
	commitments map[string][]byte
	openings    map[string][]byte
	shares      map[string][]byte
}

// NewState creates state for epoch zero.
func NewState() *State {
	s := &State{}
	s.reset(0)
	return s
}

func (s *State) reset(epoch int64) {
	s.epoch = epoch
	s.commitments = make(map[string][]byte)
	s.openings = make(map[string][]byte)
	s.shares = make(map[string][]byte)
}

// ResetForEpoch discards accumulated submissions and starts a new epoch.
func (s *State) ResetForEpoch(epoch int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(epoch)
}

// Epoch returns the epoch the state currently accumulates for.
func (s *State) Epoch() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Submit records a participant's payload for the given phase. Duplicate
// submissions are rejected; idle-phase submissions are protocol errors.
func (s *State) Submit(phase Phase, participant string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var table map[string][]byte
	switch phase {
	case PhaseCommitment:
		table = s.commitments
	case PhaseOpening:
		table = s.openings
	case PhaseShares:
		table = s.shares
	default:
		return ErrWrongPhase
	}
	if _, ok := table[participant]; ok {
		return ErrDuplicate
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	table[participant] = cp
	return nil
}

// Seed folds the revealed openings into the epoch randomness seed. The fold
// is order-independent: openings are hashed in sorted participant order.
func (s *State) Seed() [32]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participants := make([]string, 0, len(s.openings))
	for p := range s.openings {
		participants = append(participants, p)
	}
	sort.Strings(participants)

	h := blake3.New(32, nil)
	for _, p := range participants {
		h.Write([]byte(p))
		h.Write(s.openings[p])
	}
	var seed [32]byte
	h.Sum(seed[:0])
	return seed
}
