// Package delegation tracks stake delegation certificates. Heavyweight
// certificates carry real stake and participate in leader election;
// lightweight ones only redirect block signing.
package delegation

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"
)

var (
	ErrUnknownDelegator = errors.New("delegation: unknown delegator")
	ErrZeroStake        = errors.New("delegation: heavyweight certificate requires stake")
)

// Tier distinguishes the two certificate classes.
type Tier uint8

const (
	Heavyweight Tier = iota
	Lightweight
)

// Certificate records one delegation relationship.
type Certificate struct {
	Delegator string
	Delegate  string
	Tier      Tier
	Stake     *uint256.Int
	Epoch     int64
}

// State is the mutable delegation state owned by the node context.
type State struct {
	mu    sync.RWMutex
	heavy map[string]Certificate
	light map[string]Certificate
}

// NewState creates empty delegation state.
func NewState() *State {
	return &State{
		heavy: make(map[string]Certificate),
		light: make(map[string]Certificate),
	}
}

// Register stores a certificate, replacing any prior certificate of the same
// tier from the same delegator.
func (s *State) Register(cert Certificate) error {
	if cert.Tier == Heavyweight && (cert.Stake == nil || cert.Stake.IsZero()) {
		return ErrZeroStake
	}
	if cert.Stake != nil {
		cert.Stake = new(uint256.Int).Set(cert.Stake)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cert.Tier == Heavyweight {
		s.heavy[cert.Delegator] = cert
	} else {
		s.light[cert.Delegator] = cert
	}
	return nil
}

// Lookup returns the certificate of the given tier for a delegator.
func (s *State) Lookup(delegator string, tier Tier) (Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	table := s.heavy
	if tier == Lightweight {
		table = s.light
	}
	cert, ok := table[delegator]
	if !ok {
		return Certificate{}, ErrUnknownDelegator
	}
	return cert, nil
}

// Revoke removes a delegator's certificate of the given tier.
func (s *State) Revoke(delegator string, tier Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := s.heavy
	if tier == Lightweight {
		table = s.light
	}
	if _, ok := table[delegator]; !ok {
		return ErrUnknownDelegator
	}
	delete(table, delegator)
	return nil
}

// TotalHeavyStake sums the stake behind all heavyweight certificates.
func (s *State) TotalHeavyStake() *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := new(uint256.Int)
	for _, cert := range s.heavy {
		if cert.Stake != nil {
			total.Add(total, cert.Stake)
		}
	}
	return total
}

// Len reports the number of certificates per tier.
func (s *State) Len() (heavy, light int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.heavy), len(s.light)
}
