package core

import (
	"context"
	"log/slog"

	"slatechain/config"
	"slatechain/mempool"
	"slatechain/storage"
)

// WithNodeResources acquires the full resource graph, runs action against
// it, and releases everything on every exit path: normal return, error, or
// panic. The action's error reaches the caller unchanged; release faults are
// logged by Release and never replace it.
func WithNodeResources(
	ctx context.Context,
	cfg *config.Config,
	consensus ConsensusParams,
	limits mempool.Limits,
	logger *slog.Logger,
	dbInit func(storage.Database) error,
	action func(context.Context, *NodeResources) error,
) error {
	if logger == nil {
		logger = slog.Default()
	}

	res, err := AllocateNodeResources(cfg, consensus, limits, logger, dbInit)
	if err != nil {
		return err
	}
	defer res.Release(logger)

	// Resources are live: let a supervising process manager know the node
	// is ready before the long-running action starts.
	NotifyReady(logger)

	return action(ctx, res)
}
