package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
)

// DefaultDirName is the database directory used when the configuration does
// not name one.
const DefaultDirName = "node-db"

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// OpenMode selects how an existing database directory is treated on open.
type OpenMode int

const (
	// OpenReuse opens the directory as-is, preserving prior contents.
	OpenReuse OpenMode = iota
	// OpenRebuild destroys any prior contents and starts from an empty
	// store.
	OpenRebuild
)

// Database is a generic interface for a key-value store, allowing the node
// to run against either an in-memory or a persistent backend.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	Close() error
}

// ResolvePath returns the database directory for the given data dir,
// applying the default name when the configured path is empty.
func ResolvePath(dataDir, dbPath string) string {
	if dbPath != "" {
		return dbPath
	}
	return filepath.Join(dataDir, DefaultDirName)
}

// Open opens (or, in rebuild mode, recreates) the LevelDB store at path.
func Open(path string, mode OpenMode) (*LevelDB, error) {
	if mode == OpenRebuild {
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("storage: rebuild %s: %w", path, err)
		}
	}
	return NewLevelDB(path)
}

// --- In-memory store (tests, ephemeral nodes) ---

type MemDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errors.New("storage: memdb closed")
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	db.data[string(key)] = cp
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

func (db *MemDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errors.New("storage: memdb already closed")
	}
	db.closed = true
	return nil
}

// --- Persistent store ---

// LevelDB is a persistent key-value store backed by LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, lerrors.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// Close flushes and closes the database.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}
