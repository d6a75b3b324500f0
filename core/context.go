package core

import (
	"log/slog"
	"time"

	"slatechain/config"
	"slatechain/core/delegation"
	"slatechain/core/election"
	"slatechain/core/slotting"
	"slatechain/core/ssc"
	"slatechain/diffusion"
	"slatechain/mempool"
	"slatechain/observability"
	"slatechain/observability/logging"
	"slatechain/storage"
)

// ConsensusParams are the protocol constants fixed at genesis.
type ConsensusParams struct {
	SystemStart   time.Time
	SlotDuration  time.Duration
	SlotsPerEpoch int64
	SecurityParam int64
}

// ConsensusParamsFromConfig derives the genesis constants from the node
// configuration.
func ConsensusParamsFromConfig(cfg *config.Config) ConsensusParams {
	return ConsensusParams{
		SystemStart:   cfg.SystemStart(),
		SlotDuration:  cfg.SlotDuration(),
		SlotsPerEpoch: cfg.Consensus.SlotsPerEpoch,
		SecurityParam: cfg.Consensus.SecurityParam,
	}
}

// NodeContext is the aggregate of handles every node subsystem depends on.
// It is allocated once; after allocation completes every field is populated
// and the struct itself is treated as immutable. Subsystems needing fresh
// values use the mutable cells it contains, never a rebuilt context.
type NodeContext struct {
	Params    *config.Config
	Consensus ConsensusParams
	Logger    *slog.Logger

	DB        storage.Database
	StateLock *StateLock
	TipCache  *TipCache

	Election    *election.Context
	SlottingVar *slotting.Var
	Slotting    *slotting.Context
	Delegation  *delegation.State
	SSC         *ssc.State
	Mempool     *mempool.Pool

	Metrics     *observability.Store
	Misbehavior *observability.MisbehaviorMetrics

	Shutdown *ShutdownContext
	Peers    *diffusion.PeerRegistry

	// JSONLog is nil unless a JSON log path was configured.
	JSONLog *logging.JSONFile
}
