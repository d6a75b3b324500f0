package diffusion

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var peersBucket = []byte("peers")

// maxDialFails is the failure count past which a stored address is no
// longer offered as a dial target. Record resets the count.
const maxDialFails = 3

// PeerstoreEntry is the dial metadata persisted for each known address.
type PeerstoreEntry struct {
	Addr     string    `json:"addr"`
	LastSeen time.Time `json:"lastSeen"`
	Fails    int       `json:"fails"`
}

// Peerstore persists known peer addresses across restarts so a node can
// rejoin the network without waiting for seed resolution.
type Peerstore struct {
	db *bolt.DB
}

// OpenPeerstore opens (or creates) the peerstore at path.
func OpenPeerstore(path string) (*Peerstore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("diffusion: open peerstore: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(peersBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("diffusion: init peerstore: %w", err)
	}
	return &Peerstore{db: db}, nil
}

// Record marks an address as recently seen and clears its failure count.
func (ps *Peerstore) Record(addr string) error {
	entry := PeerstoreEntry{Addr: addr, LastSeen: time.Now().UTC()}
	return ps.put(entry)
}

// Fail increments the failure count for an address.
func (ps *Peerstore) Fail(addr string) error {
	return ps.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(peersBucket)
		entry := PeerstoreEntry{Addr: addr}
		if raw := bucket.Get([]byte(addr)); raw != nil {
			if err := json.Unmarshal(raw, &entry); err != nil {
				return fmt.Errorf("diffusion: decode peerstore entry: %w", err)
			}
		}
		entry.Fails++
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(addr), raw)
	})
}

func (ps *Peerstore) put(entry PeerstoreEntry) error {
	return ps.db.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return tx.Bucket(peersBucket).Put([]byte(entry.Addr), raw)
	})
}

// Addresses lists the persisted addresses still worth dialing, skipping
// any whose failure count reached maxDialFails. Order is not guaranteed;
// callers shuffle or sort as needed.
func (ps *Peerstore) Addresses() ([]string, error) {
	var out []string
	err := ps.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(peersBucket).ForEach(func(k, v []byte) error {
			var entry PeerstoreEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("diffusion: decode peerstore entry: %w", err)
			}
			if entry.Fails >= maxDialFails {
				return nil
			}
			out = append(out, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying database.
func (ps *Peerstore) Close() error {
	return ps.db.Close()
}
