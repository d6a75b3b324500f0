package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate rejects configurations that would fail at an awkward point later
// in startup. Addresses are checked for shape only; binding happens when the
// sidecars start.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	for name, addr := range map[string]string{
		"ListenAddress":          c.ListenAddress,
		"topology.HealthAddress": c.Topology.HealthAddress,
		"metrics.Address":        c.Metrics.Address,
		"metrics.StatsAddress":   c.Metrics.StatsAddress,
	} {
		if strings.TrimSpace(addr) == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("config: %s %q: %w", name, addr, err)
		}
	}
	if (c.Metrics.Address != "" || c.Metrics.StatsAddress != "") && !c.Metrics.Enabled {
		return fmt.Errorf("config: metrics endpoints configured but metrics.Enabled is false")
	}
	for _, peer := range c.Topology.StaticPeers {
		trimmed := strings.TrimSpace(peer)
		if trimmed == "" {
			return fmt.Errorf("config: empty entry in topology.StaticPeers")
		}
		if _, _, err := net.SplitHostPort(trimmed); err != nil {
			return fmt.Errorf("config: static peer %q: %w", trimmed, err)
		}
	}
	return nil
}
