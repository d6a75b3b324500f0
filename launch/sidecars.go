package launch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"slatechain/core"
	"slatechain/diffusion"
)

const sidecarShutdownGrace = 5 * time.Second

// runFn is one step of the composed runtime pipeline.
type runFn func() error

// withSidecar brackets next with an HTTP server: bind, serve for the
// duration of next, shut down after. A bind failure is an ordinary startup
// fault of the composer scope.
func withSidecar(name, addr string, handler http.Handler, next runFn) runFn {
	return func() error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("launch: %s sidecar listen %s: %w", name, addr, err)
		}
		srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
		serveErr := make(chan error, 1)
		go func() { serveErr <- srv.Serve(ln) }()

		runErr := next()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), sidecarShutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err = <-serveErr

		if runErr != nil {
			return runErr
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("launch: %s sidecar: %w", name, err)
		}
		return nil
	}
}

// healthSidecar serves the diffusion layer's health status. Enabled iff the
// topology configures a health address; otherwise the identity wrapper.
func healthSidecar(n *core.NodeContext, d *diffusion.Diffusion, next runFn) runFn {
	addr := n.Params.Topology.HealthAddress
	if addr == "" {
		return next
	}
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := d.Health()
		w.Header().Set("Content-Type", "application/json")
		if !status.Listening {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
	return withSidecar("health", addr, r, next)
}

// metricsSidecar exports the node's metrics registry. Enabled iff metrics
// are enabled and an endpoint is configured.
func metricsSidecar(n *core.NodeContext, next runFn) runFn {
	if !n.Metrics.Enabled() || n.Params.Metrics.Address == "" {
		return next
	}
	r := chi.NewRouter()
	r.Handle("/metrics", n.Metrics.Handler())
	return withSidecar("metrics", n.Params.Metrics.Address, r, next)
}

// statsSnapshot is the payload served by the stats sidecar.
type statsSnapshot struct {
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Goroutines    int     `json:"goroutines"`
	Peers         int     `json:"peers"`
	MempoolTxs    int     `json:"mempoolTxs"`
	MempoolBytes  int64   `json:"mempoolBytes"`
	TipEpoch      int64   `json:"tipEpoch"`
	TipSlot       int64   `json:"tipSlot"`
	TipHeight     uint64  `json:"tipHeight"`
}

// statsSidecar serves a point-in-time runtime snapshot. Enabled iff metrics
// are enabled and a stats endpoint is configured.
func statsSidecar(n *core.NodeContext, next runFn) runFn {
	if !n.Metrics.Enabled() || n.Params.Metrics.StatsAddress == "" {
		return next
	}
	started := time.Now()
	r := chi.NewRouter()
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		tip := n.TipCache.Load()
		snapshot := statsSnapshot{
			UptimeSeconds: time.Since(started).Seconds(),
			Goroutines:    runtime.NumGoroutine(),
			Peers:         n.Peers.Count(),
			MempoolTxs:    n.Mempool.Len(),
			MempoolBytes:  n.Mempool.SizeBytes(),
			TipEpoch:      tip.Epoch,
			TipSlot:       tip.Slot,
			TipHeight:     tip.Height,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshot)
	})
	return withSidecar("stats", n.Params.Metrics.StatsAddress, r, next)
}
