package core

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"slatechain/config"
	"slatechain/core/delegation"
	"slatechain/core/election"
	"slatechain/core/slotting"
	"slatechain/core/ssc"
	"slatechain/diffusion"
	"slatechain/future"
	"slatechain/mempool"
	"slatechain/observability"
	"slatechain/observability/logging"
	"slatechain/storage"
)

var tipKey = []byte("meta/tip")

// NodeResources is the top-level resource bundle: the node context plus the
// handles the lifecycle manager must release. It is owned exclusively by the
// bracketed scope in WithNodeResources; every allocation has exactly one
// matching release.
type NodeResources struct {
	Ctx        *NodeContext
	DB         storage.Database
	Mempool    *mempool.Pool
	Delegation *delegation.State
	SSC        *ssc.State
	JSONLog    *logging.JSONFile
	Metrics    *observability.Store

	releaseOnce sync.Once
}

// allocFutures are the placeholders created before the values they stand for
// exist. Allocation must write each of them before returning; a reader
// scheduled earlier in the sequence blocks until then.
type allocFutures struct {
	election    *future.Slot[*election.Context]
	slottingVar *future.Slot[*slotting.Var]
	slotting    *future.Slot[*slotting.Context]
}

// AllocateNodeResources acquires the full resource graph. On any failure the
// resources acquired so far are released before the error is returned; a
// partially constructed node never escapes.
func AllocateNodeResources(cfg *config.Config, consensus ConsensusParams, limits mempool.Limits, logger *slog.Logger, dbInit func(storage.Database) error) (*NodeResources, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Step 1: open storage, rebuilding when requested.
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("core: prepare data dir: %w", err)
	}
	dbPath := storage.ResolvePath(cfg.DataDir, cfg.DBPath)
	mode := storage.OpenReuse
	if cfg.RebuildDB {
		mode = storage.OpenRebuild
	}
	db, err := storage.Open(dbPath, mode)
	if err != nil {
		return nil, err
	}
	logger.Info("storage opened", slog.String("path", dbPath), slog.Bool("rebuilt", cfg.RebuildDB))

	fail := func(cause error) (*NodeResources, error) {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("closing storage after failed allocation", slog.Any("error", closeErr))
		}
		return nil, cause
	}

	// Step 2: placeholders for the values produced later in the sequence.
	futs := allocFutures{
		election:    future.NewSlot[*election.Context](),
		slottingVar: future.NewSlot[*slotting.Var](),
		slotting:    future.NewSlot[*slotting.Context](),
	}

	// Step 3: caller-supplied database initialisation (schema, genesis).
	if dbInit != nil {
		if err := dbInit(db); err != nil {
			return fail(fmt.Errorf("core: database init: %w", err))
		}
	}

	// Step 4: metrics store and the mempool, which reads the election and
	// slotting contexts through the futures resolved in step 5.
	metrics := observability.NewStore(cfg.Metrics.Enabled)
	pool := mempool.NewPool(mempool.Settings{
		Limits:   limits,
		Election: futs.election,
		Slotting: futs.slotting,
	})

	// Step 5: the node context itself, resolving the placeholders.
	nctx, err := newNodeContext(cfg, consensus, logger, db, metrics, pool, futs)
	if err != nil {
		return fail(err)
	}

	// Step 6: the bundle.
	return &NodeResources{
		Ctx:        nctx,
		DB:         db,
		Mempool:    pool,
		Delegation: nctx.Delegation,
		SSC:        nctx.SSC,
		JSONLog:    nctx.JSONLog,
		Metrics:    metrics,
	}, nil
}

func newNodeContext(cfg *config.Config, consensus ConsensusParams, logger *slog.Logger, db storage.Database, metrics *observability.Store, pool *mempool.Pool, futs allocFutures) (*NodeContext, error) {
	tip, err := loadTip(db, cfg)
	if err != nil {
		return nil, err
	}
	stateLock := NewStateLock(tip)

	electionCtx := election.NewContext()
	slottingVar := slotting.NewVar(consensus.SystemStart, slotting.EpochSlots{
		Duration: consensus.SlotDuration,
		Count:    consensus.SlotsPerEpoch,
	})

	// Resolve the placeholders. Order matters: the slotting context reads
	// the slotting var through its future, so the var must be written first.
	futs.slottingVar.Set(slottingVar)
	slottingCtx := slotting.NewContext(futs.slottingVar.Wait())
	futs.slotting.Set(slottingCtx)
	futs.election.Set(electionCtx)

	var jsonLog *logging.JSONFile
	if cfg.JSONLogFile != "" {
		jsonLog, err = logging.OpenJSONFile(cfg.JSONLogFile)
		if err != nil {
			return nil, err
		}
	}

	return &NodeContext{
		Params:      cfg,
		Consensus:   consensus,
		Logger:      logger,
		DB:          db,
		StateLock:   stateLock,
		TipCache:    NewTipCache(tip),
		Election:    electionCtx,
		SlottingVar: slottingVar,
		Slotting:    slottingCtx,
		Delegation:  delegation.NewState(),
		SSC:         ssc.NewState(),
		Mempool:     pool,
		Metrics:     metrics,
		Misbehavior: observability.NewMisbehaviorMetrics(metrics),
		Shutdown:    NewShutdownContext(),
		Peers:       diffusion.NewPeerRegistry(),
		JSONLog:     jsonLog,
	}, nil
}

// loadTip reads the persisted chain tip, falling back to (and persisting)
// the genesis tip on a fresh store.
func loadTip(db storage.Database, cfg *config.Config) (Tip, error) {
	raw, err := db.Get(tipKey)
	switch {
	case err == nil:
		tip, decErr := decodeTip(raw)
		if decErr != nil {
			return Tip{}, fmt.Errorf("core: corrupt tip record: %w", decErr)
		}
		return tip, nil
	case errors.Is(err, storage.ErrNotFound):
		tip := GenesisTip(cfg.ProtocolMagic, cfg.NetworkName)
		encoded, encErr := encodeTip(tip)
		if encErr != nil {
			return Tip{}, encErr
		}
		if putErr := db.Put(tipKey, encoded); putErr != nil {
			return Tip{}, fmt.Errorf("core: persist genesis tip: %w", putErr)
		}
		return tip, nil
	default:
		return Tip{}, fmt.Errorf("core: read tip: %w", err)
	}
}

// Release closes the JSON log and the storage handle, exactly once. Release
// faults are logged, never propagated: they must not mask a fault raised by
// the action the resources were bracketing.
func (r *NodeResources) Release(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.releaseOnce.Do(func() {
		if r.JSONLog != nil {
			if err := r.JSONLog.Close(); err != nil {
				logger.Error("closing json log", slog.Any("error", err))
			}
		}
		if err := r.DB.Close(); err != nil {
			logger.Error("closing storage", slog.Any("error", err))
		} else {
			logger.Info("node resources released")
		}
	})
}
