package observability

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "slate"

// Store owns the node's metrics registry. Every subsystem registers against
// this instance rather than the global default registry so that tests and
// multi-node processes stay isolated. A disabled store still hands out
// collectors; they are simply never exported.
type Store struct {
	enabled  bool
	registry *prometheus.Registry
}

// NewStore builds a metrics store. When enabled, the standard process and Go
// runtime collectors are pre-registered.
func NewStore(enabled bool) *Store {
	registry := prometheus.NewRegistry()
	if enabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return &Store{enabled: enabled, registry: registry}
}

// Enabled reports whether metrics export was requested by configuration.
func (s *Store) Enabled() bool {
	return s.enabled
}

// Registry exposes the underlying registry for sidecar export.
func (s *Store) Registry() *prometheus.Registry {
	return s.registry
}

// Handler returns the HTTP handler serving the store's registry.
func (s *Store) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// MustRegister registers collectors with the store's registry.
func (s *Store) MustRegister(cs ...prometheus.Collector) {
	s.registry.MustRegister(cs...)
}

// RegisterGaugeFunc registers a pull-style gauge sampled at scrape time.
// Re-registration under the same name is a no-op so a runtime can be
// composed more than once per process.
func (s *Store) RegisterGaugeFunc(subsystem, name, help string, fn func() float64) {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
	if err := s.registry.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			panic(err)
		}
	}
}

// MisbehaviorMetrics counts protocol violations observed while following the
// chain. It is owned by the node context and fed by the diffusion and
// validation layers.
type MisbehaviorMetrics struct {
	Forks         prometheus.Counter
	InvalidBlocks prometheus.Counter
	BannedPeers   prometheus.Counter
	MissedSlots   prometheus.Counter
}

// NewMisbehaviorMetrics builds and registers the misbehavior counters.
func NewMisbehaviorMetrics(store *Store) *MisbehaviorMetrics {
	m := &MisbehaviorMetrics{
		Forks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "misbehavior",
			Name:      "forks_total",
			Help:      "Observed chain forks.",
		}),
		InvalidBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "misbehavior",
			Name:      "invalid_blocks_total",
			Help:      "Blocks rejected by validation.",
		}),
		BannedPeers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "misbehavior",
			Name:      "banned_peers_total",
			Help:      "Peers banned for protocol violations.",
		}),
		MissedSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "misbehavior",
			Name:      "missed_slots_total",
			Help:      "Leadership slots missed by this node.",
		}),
	}
	store.MustRegister(m.Forks, m.InvalidBlocks, m.BannedPeers, m.MissedSlots)
	return m
}
