package diffusion

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// Seed is one entry from a network seed TXT record, in "nodeID@host:port"
// form.
type Seed struct {
	NodeID  string
	Address string
}

// Resolver looks up the TXT records that publish seed peers. The interface
// exists so tests can substitute a fixture resolver.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

type dnsResolver struct {
	client *dns.Client
	server string
}

// NewResolver returns a TXT resolver querying the given server ("host:port").
// With an empty server the system resolver configuration is used.
func NewResolver(server string) Resolver {
	if strings.TrimSpace(server) == "" {
		if conf, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(conf.Servers) > 0 {
			server = net.JoinHostPort(conf.Servers[0], conf.Port)
		} else {
			server = "127.0.0.1:53"
		}
	}
	return &dnsResolver{client: &dns.Client{}, server: server}
}

func (r *dnsResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	reply, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("diffusion: resolve %s: %w", name, err)
	}
	var out []string
	for _, rr := range reply.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			out = append(out, strings.Join(txt.Txt, ""))
		}
	}
	return out, nil
}

// ParseSeedRecords extracts well-formed seeds from TXT payloads. Records may
// carry several comma-separated entries; malformed entries are skipped.
func ParseSeedRecords(records []string) []Seed {
	var seeds []Seed
	seen := make(map[string]struct{})
	for _, record := range records {
		for _, raw := range strings.Split(record, ",") {
			entry := strings.TrimSpace(raw)
			if entry == "" {
				continue
			}
			nodePart, addrPart, found := strings.Cut(entry, "@")
			if !found {
				continue
			}
			nodeID := strings.TrimSpace(nodePart)
			addr := strings.TrimSpace(addrPart)
			if nodeID == "" || addr == "" {
				continue
			}
			if _, _, err := net.SplitHostPort(addr); err != nil {
				continue
			}
			key := strings.ToLower(nodeID) + "@" + strings.ToLower(addr)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			seeds = append(seeds, Seed{NodeID: nodeID, Address: addr})
		}
	}
	return seeds
}

// ResolveSeeds queries every seed domain and returns the deduplicated peer
// addresses. Resolution is best effort: a failing domain is skipped.
func ResolveSeeds(ctx context.Context, resolver Resolver, domains []string) []string {
	var addrs []string
	seen := make(map[string]struct{})
	for _, domain := range domains {
		records, err := resolver.LookupTXT(ctx, domain)
		if err != nil {
			continue
		}
		for _, seed := range ParseSeedRecords(records) {
			if _, dup := seen[seed.Address]; dup {
				continue
			}
			seen[seed.Address] = struct{}{}
			addrs = append(addrs, seed.Address)
		}
	}
	return addrs
}
