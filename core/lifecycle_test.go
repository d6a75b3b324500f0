package core

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"slatechain/config"
	"slatechain/mempool"
	"slatechain/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:       t.TempDir(),
		NetworkName:   "testnet",
		ProtocolMagic: 7,
	}
}

func testConsensus() ConsensusParams {
	return ConsensusParams{
		SystemStart:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		SlotDuration:  time.Second,
		SlotsPerEpoch: 10,
		SecurityParam: 2,
	}
}

type countingDB struct {
	storage.Database
	closes atomic.Int32
	fail   bool
}

func (db *countingDB) Close() error {
	db.closes.Add(1)
	err := db.Database.Close()
	if db.fail {
		return errors.New("close failed")
	}
	return err
}

func TestReleaseClosesExactlyOnce(t *testing.T) {
	db := &countingDB{Database: storage.NewMemDB()}
	res := &NodeResources{DB: db}

	res.Release(slog.Default())
	res.Release(slog.Default())
	if got := db.closes.Load(); got != 1 {
		t.Fatalf("close count = %d, want 1", got)
	}
}

func TestWithNodeResourcesReleasesOnNormalReturn(t *testing.T) {
	cfg := testConfig(t)
	err := WithNodeResources(context.Background(), cfg, testConsensus(), mempool.Limits{}, slog.Default(), nil,
		func(_ context.Context, res *NodeResources) error {
			return nil
		})
	if err != nil {
		t.Fatalf("with resources: %v", err)
	}
	assertStorageClosed(t, cfg)
}

func TestWithNodeResourcesPropagatesActionError(t *testing.T) {
	cfg := testConfig(t)
	boom := errors.New("action failed")
	err := WithNodeResources(context.Background(), cfg, testConsensus(), mempool.Limits{}, slog.Default(), nil,
		func(_ context.Context, res *NodeResources) error {
			return boom
		})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want action error", err)
	}
	assertStorageClosed(t, cfg)
}

func TestWithNodeResourcesReleasesOnPanic(t *testing.T) {
	cfg := testConfig(t)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("panic did not propagate")
			}
		}()
		_ = WithNodeResources(context.Background(), cfg, testConsensus(), mempool.Limits{}, slog.Default(), nil,
			func(_ context.Context, res *NodeResources) error {
				panic("action exploded")
			})
	}()
	assertStorageClosed(t, cfg)
}

func TestReleaseFaultDoesNotMaskActionError(t *testing.T) {
	cfg := testConfig(t)
	boom := errors.New("action failed")
	var db *countingDB
	err := WithNodeResources(context.Background(), cfg, testConsensus(), mempool.Limits{}, slog.Default(), nil,
		func(_ context.Context, res *NodeResources) error {
			db = &countingDB{Database: res.DB, fail: true}
			res.DB = db
			return boom
		})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want the action error despite the release fault", err)
	}
	if got := db.closes.Load(); got != 1 {
		t.Fatalf("close count = %d, want 1", got)
	}
	assertStorageClosed(t, cfg)
}

func TestReleaseFaultOnSuccessIsLoggedNotReturned(t *testing.T) {
	cfg := testConfig(t)
	var db *countingDB
	err := WithNodeResources(context.Background(), cfg, testConsensus(), mempool.Limits{}, slog.Default(), nil,
		func(_ context.Context, res *NodeResources) error {
			db = &countingDB{Database: res.DB, fail: true}
			res.DB = db
			return nil
		})
	if err != nil {
		t.Fatalf("release fault escaped the bracket: %v", err)
	}
	if got := db.closes.Load(); got != 1 {
		t.Fatalf("close count = %d, want 1", got)
	}
}

func TestAllocationFailureReleasesStorage(t *testing.T) {
	cfg := testConfig(t)
	initErr := errors.New("bad genesis")
	err := WithNodeResources(context.Background(), cfg, testConsensus(), mempool.Limits{}, slog.Default(),
		func(storage.Database) error { return initErr },
		func(_ context.Context, res *NodeResources) error {
			t.Fatalf("action ran despite allocation failure")
			return nil
		})
	if !errors.Is(err, initErr) {
		t.Fatalf("got %v, want db init error", err)
	}
	assertStorageClosed(t, cfg)
}

// assertStorageClosed relies on the LevelDB directory lock: reopening only
// succeeds after the previous handle was closed.
func assertStorageClosed(t *testing.T, cfg *config.Config) {
	t.Helper()
	db, err := storage.Open(storage.ResolvePath(cfg.DataDir, cfg.DBPath), storage.OpenReuse)
	if err != nil {
		t.Fatalf("storage still locked after release: %v", err)
	}
	_ = db.Close()
}
