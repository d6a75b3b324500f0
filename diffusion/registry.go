package diffusion

import (
	"sync"
	"time"
)

// PeerInfo is the diagnostic view of one connected peer.
type PeerInfo struct {
	ID          string
	Addr        string
	Inbound     bool
	Version     string
	ConnectedAt time.Time
}

// PeerRegistry is the live peer set. It is created during node allocation
// and shared between the diffusion layer, which maintains it, and the
// diagnostic surfaces (health check, stats export), which read it.
type PeerRegistry struct {
	mu    sync.RWMutex
	peers map[string]PeerInfo
}

// NewPeerRegistry creates an empty registry.
func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{peers: make(map[string]PeerInfo)}
}

// Add records a connected peer, replacing any stale entry under the same ID.
func (r *PeerRegistry) Add(info PeerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[info.ID] = info
}

// Remove drops a disconnected peer.
func (r *PeerRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// Count returns the number of connected peers.
func (r *PeerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot returns a copy of the peer set.
func (r *PeerRegistry) Snapshot() []PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerInfo, 0, len(r.peers))
	for _, info := range r.peers {
		out = append(out, info)
	}
	return out
}
