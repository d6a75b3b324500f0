package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"os"
	"strings"

	"slatechain/config"
	"slatechain/core"
	"slatechain/diffusion"
	"slatechain/launch"
	"slatechain/mempool"
	"slatechain/mode"
	"slatechain/observability/logging"
	"slatechain/storage"
)

var schemaKey = []byte("meta/schema")

const schemaVersion = "1"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	rebuildDB := flag.Bool("rebuild-db", false, "Discard the existing database and start from an empty store")
	jsonLog := flag.String("json-log", "", "Path to an append-only JSON log file (overrides config JSONLogFile)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SLATE_ENV"))
	logger := logging.Setup("slated", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(launch.ExitFailure)
	}
	if *rebuildDB {
		cfg.RebuildDB = true
	}
	if strings.TrimSpace(*jsonLog) != "" {
		cfg.JSONLogFile = strings.TrimSpace(*jsonLog)
	}

	os.Exit(run(cfg, logger))
}

func run(cfg *config.Config, logger *slog.Logger) int {
	consensus := core.ConsensusParamsFromConfig(cfg)
	limits := mempool.Limits{
		MaxBytes: cfg.Mempool.MaxBytes,
		MaxTxs:   cfg.Mempool.MaxTransactions,
	}

	err := core.WithNodeResources(context.Background(), cfg, consensus, limits, logger, initSchema,
		func(ctx context.Context, res *core.NodeResources) error {
			launch.InstallSignalHandler(res.Ctx.Shutdown, logger)
			logger.Info("node resources allocated",
				slog.String("network", cfg.NetworkName),
				slog.Uint64("tipHeight", res.Ctx.TipCache.Load().Height))

			return launch.RaceShutdown(res.Ctx.Shutdown, func() error {
				return launch.RunServer(ctx, res.Ctx,
					func(d *diffusion.Diffusion) mode.Capabilities {
						return mode.NewRealMode(res.Ctx, d)
					},
					nodeAction(res))
			})
		})

	switch code := launch.ExitCode(err); code {
	case launch.ExitSuccess:
		logger.Info("node stopped")
		return code
	case launch.ExitStopForUpdate:
		logger.Info("node stopping for update")
		return code
	default:
		logger.Error("node failed", slog.Any("error", err))
		return code
	}
}

// nodeAction is the long-running node logic: consume diffusion envelopes and
// feed the relevant subsystems. It runs until the shutdown race abandons it.
func nodeAction(res *core.NodeResources) func(mode.Capabilities) error {
	return func(m mode.Capabilities) error {
		logger := m.Logger()
		logger.Info("node logic started", slog.String("host", m.Host()))
		for msg := range m.Diffusion().Messages() {
			switch msg.Type {
			case "tx":
				tx := mempool.NewTx(msg.Payload)
				if err := res.Mempool.Add(tx); err != nil {
					logger.Debug("transaction rejected",
						slog.String("peer", msg.From), slog.Any("error", err))
				}
			case "tip":
				var tip core.Tip
				if err := json.Unmarshal(msg.Payload, &tip); err != nil {
					logger.Debug("malformed tip announcement", slog.String("peer", msg.From))
					continue
				}
				if tip.Height > res.Ctx.TipCache.Load().Height {
					res.Ctx.TipCache.Store(tip)
				}
			default:
				logger.Debug("unhandled message", slog.String("type", msg.Type))
			}
		}
		return nil
	}
}

// initSchema is the database-initialisation action run against freshly
// opened storage: stamp an empty store, verify the stamp on reuse.
func initSchema(db storage.Database) error {
	raw, err := db.Get(schemaKey)
	if errors.Is(err, storage.ErrNotFound) {
		return db.Put(schemaKey, []byte(schemaVersion))
	}
	if err != nil {
		return err
	}
	if string(raw) != schemaVersion {
		return errors.New("main: state schema mismatch; run with -rebuild-db to resync")
	}
	return nil
}
