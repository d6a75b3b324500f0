package launch

import (
	"context"
	"log/slog"
	"path/filepath"

	"slatechain/core"
	"slatechain/diffusion"
	"slatechain/mode"
)

// RunServer composes the node runtime: it builds the diffusion configuration
// from the protocol constants, opens the diffusion layer scoped to this
// call, registers the node gauges, builds the logic facade via makeLogic,
// and wraps action with the configured sidecars in a fixed order (health
// check, then metrics export, then stats export; a disabled sidecar is the
// identity wrapper). The whole composition runs as one unit, so callers
// racing it against shutdown abandon diffusion, sidecars, and action
// together.
func RunServer(
	ctx context.Context,
	n *core.NodeContext,
	makeLogic func(*diffusion.Diffusion) mode.Capabilities,
	action func(mode.Capabilities) error,
) error {
	d, err := diffusion.Open(ctx, DiffusionConfig(n))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := d.Close(); closeErr != nil {
			n.Logger.Error("closing diffusion layer", slog.Any("error", closeErr))
		}
	}()

	if n.Metrics.Enabled() {
		registerNodeGauges(n)
	}

	logic := makeLogic(d)
	run := mode.Hoist(logic, action)
	run = statsSidecar(n, run)
	run = metricsSidecar(n, run)
	run = healthSidecar(n, d, run)
	return run()
}

// DiffusionConfig derives the diffusion layer configuration from the node
// context: protocol magic and constants, the recovery-headers window, the
// last known software version, the handshake timeout, and the streaming
// window.
func DiffusionConfig(n *core.NodeContext) diffusion.Config {
	cfg := n.Params
	return diffusion.Config{
		ListenAddress:    cfg.ListenAddress,
		ProtocolMagic:    cfg.ProtocolMagic,
		NetworkName:      cfg.NetworkName,
		LastKnownVersion: cfg.ClientVersion,
		RecoveryHeaders:  cfg.Consensus.RecoveryHeaders,
		StreamingWindow:  cfg.Consensus.StreamingWindow,
		HandshakeTimeout: cfg.HandshakeTimeout(),
		StaticPeers:      cfg.Topology.StaticPeers,
		SeedDomains:      cfg.Topology.SeedDomains,
		DNSServer:        cfg.Topology.DNSServer,
		MaxPeers:         cfg.Topology.MaxPeers,
		MsgsPerSecond:    cfg.Topology.MsgsPerSecond,
		MsgBurst:         cfg.Topology.MsgBurst,
		PeerstorePath:    filepath.Join(cfg.DataDir, "peerstore.db"),
		Registry:         n.Peers,
		Logger:           n.Logger,
	}
}

func registerNodeGauges(n *core.NodeContext) {
	n.Metrics.RegisterGaugeFunc("node", "peers", "Connected peer count.", func() float64 {
		return float64(n.Peers.Count())
	})
	n.Metrics.RegisterGaugeFunc("mempool", "transactions", "Pooled transaction count.", func() float64 {
		return float64(n.Mempool.Len())
	})
	n.Metrics.RegisterGaugeFunc("mempool", "bytes", "Pooled transaction bytes.", func() float64 {
		return float64(n.Mempool.SizeBytes())
	})
	n.Metrics.RegisterGaugeFunc("chain", "tip_height", "Height of the last known chain tip.", func() float64 {
		return float64(n.TipCache.Load().Height)
	})
}
