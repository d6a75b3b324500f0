package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied when the file leaves a field unset.
const (
	DefaultListenAddress    = "0.0.0.0:7746"
	DefaultNetworkName      = "slate-local"
	DefaultDataDir          = "./data"
	DefaultProtocolMagic    = 0x534c4154
	DefaultSlotDuration     = 20 * time.Second
	DefaultSlotsPerEpoch    = 21600
	DefaultRecoveryHeaders  = 2200
	DefaultStreamingWindow  = 2048
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultMempoolMaxBytes  = 8 << 20
	DefaultMempoolMaxTxs    = 5000
)

// Config is the full node configuration, decoded from a TOML file.
type Config struct {
	DataDir       string `toml:"DataDir"`
	DBPath        string `toml:"DBPath"`
	RebuildDB     bool   `toml:"RebuildDB"`
	JSONLogFile   string `toml:"JSONLogFile"`
	NetworkName   string `toml:"NetworkName"`
	ListenAddress string `toml:"ListenAddress"`
	ClientVersion string `toml:"ClientVersion"`
	ProtocolMagic uint32 `toml:"ProtocolMagic"`

	Topology  Topology  `toml:"topology"`
	Metrics   Metrics   `toml:"metrics"`
	Consensus Consensus `toml:"consensus"`
	Mempool   Mempool   `toml:"mempool"`
}

// Topology describes the node's view of the network and which diagnostic
// surfaces it exposes.
type Topology struct {
	// HealthAddress enables the health-check endpoint when non-empty.
	HealthAddress string   `toml:"HealthAddress"`
	StaticPeers   []string `toml:"StaticPeers"`
	SeedDomains   []string `toml:"SeedDomains"`
	DNSServer     string   `toml:"DNSServer"`
	MaxPeers      int      `toml:"MaxPeers"`
	MsgsPerSecond float64  `toml:"MsgsPerSecond"`
	MsgBurst      int      `toml:"MsgBurst"`
}

// Metrics configures the metrics store and its export sidecars.
type Metrics struct {
	Enabled      bool   `toml:"Enabled"`
	Address      string `toml:"Address"`
	StatsAddress string `toml:"StatsAddress"`
}

// Consensus carries the protocol constants the runtime composer feeds to the
// diffusion layer and the slotting subsystem.
type Consensus struct {
	SystemStartUnix     int64 `toml:"SystemStartUnix"`
	SlotDurationSeconds int64 `toml:"SlotDurationSeconds"`
	SlotsPerEpoch       int64 `toml:"SlotsPerEpoch"`
	SecurityParam       int64 `toml:"SecurityParam"`
	RecoveryHeaders     int   `toml:"RecoveryHeaders"`
	StreamingWindow     int   `toml:"StreamingWindow"`
	HandshakeTimeoutMs  int   `toml:"HandshakeTimeoutMs"`
}

// Mempool bounds the in-memory transaction pool.
type Mempool struct {
	MaxBytes        int64 `toml:"MaxBytes"`
	MaxTransactions int   `toml:"MaxTransactions"`
}

// Load reads the configuration from path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = DefaultNetworkName
	}
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.ProtocolMagic == 0 {
		c.ProtocolMagic = DefaultProtocolMagic
	}
	if c.Consensus.SlotDurationSeconds <= 0 {
		c.Consensus.SlotDurationSeconds = int64(DefaultSlotDuration / time.Second)
	}
	if c.Consensus.SlotsPerEpoch <= 0 {
		c.Consensus.SlotsPerEpoch = DefaultSlotsPerEpoch
	}
	if c.Consensus.SecurityParam <= 0 {
		c.Consensus.SecurityParam = 2160
	}
	if c.Consensus.RecoveryHeaders <= 0 {
		c.Consensus.RecoveryHeaders = DefaultRecoveryHeaders
	}
	if c.Consensus.StreamingWindow <= 0 {
		c.Consensus.StreamingWindow = DefaultStreamingWindow
	}
	if c.Consensus.HandshakeTimeoutMs <= 0 {
		c.Consensus.HandshakeTimeoutMs = int(DefaultHandshakeTimeout / time.Millisecond)
	}
	if c.Mempool.MaxBytes <= 0 {
		c.Mempool.MaxBytes = DefaultMempoolMaxBytes
	}
	if c.Mempool.MaxTransactions <= 0 {
		c.Mempool.MaxTransactions = DefaultMempoolMaxTxs
	}
	if c.Topology.MaxPeers <= 0 {
		c.Topology.MaxPeers = 64
	}
	if c.Topology.MsgsPerSecond <= 0 {
		c.Topology.MsgsPerSecond = 32
	}
	if c.Topology.MsgBurst <= 0 {
		c.Topology.MsgBurst = 200
	}
}

// SystemStart returns the genesis start time. A zero configuration value
// means "start of the current UTC day", which keeps throwaway devnets usable
// without editing the file.
func (c *Config) SystemStart() time.Time {
	if c.Consensus.SystemStartUnix > 0 {
		return time.Unix(c.Consensus.SystemStartUnix, 0).UTC()
	}
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// SlotDuration returns the configured slot length.
func (c *Config) SlotDuration() time.Duration {
	return time.Duration(c.Consensus.SlotDurationSeconds) * time.Second
}

// HandshakeTimeout returns the peer-conversation establish timeout.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Consensus.HandshakeTimeoutMs) * time.Millisecond
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}
