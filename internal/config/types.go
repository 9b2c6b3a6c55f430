package config

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/util/naming"
)

// DefaultDiscoveryImage is the discovery service container image.
const DefaultDiscoveryImage = "gliderlabs/consul-server:0.6"

// DefaultConcurrency is the per-provider cap on simultaneously running tasks.
const DefaultConcurrency = 12

// Config is the deployment topology.
type Config struct {
	Discovery     ProviderGroups    `yaml:"discovery"`
	Hosts         ProviderGroups    `yaml:"hosts"`
	LoadBalancers int               `yaml:"load_balancers"`
	Deploy        map[string]Bundle `yaml:"deploy"`

	// Certificate is the TLS bundle handed to the load balancers. Either a local
	// path or an s3://bucket/key URI.
	Certificate string `yaml:"certificate"`

	// ServicesDir holds the compose projects for the built-in services.
	ServicesDir string `yaml:"services_dir"`
	// DeployDir holds one compose project directory per user bundle.
	DeployDir string `yaml:"deploy_dir"`

	DiscoveryImage string                 `yaml:"discovery_image"`
	Concurrency    map[fleet.Provider]int `yaml:"concurrency"`
	ExtraPorts     []Port                 `yaml:"extra_ports"`
}

// Bundle maps compose service name to replica count.
type Bundle map[string]int

// Services returns the bundle's service names in sorted order.
func (b Bundle) Services() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BundleNames returns the user bundle names in sorted order.
func (c *Config) BundleNames() []string {
	names := make([]string, 0, len(c.Deploy))
	for name := range c.Deploy {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Port is a firewall opening.
type Port struct {
	Protocol string `yaml:"protocol"` // tcp or udp
	Port     int    `yaml:"port"`
}

func (p Port) String() string {
	return fmt.Sprintf("%d/%s", p.Port, p.Protocol)
}

// ConcurrencyFor returns the concurrency cap for a provider.
func (c *Config) ConcurrencyFor(p fleet.Provider) int {
	if n, ok := c.Concurrency[p]; ok && n > 0 {
		return n
	}
	return DefaultConcurrency
}

// ProviderGroups maps provider to its placements.
type ProviderGroups map[fleet.Provider][]Placement

// UnmarshalYAML accepts a single placement mapping or a sequence of placements per provider.
func (g *ProviderGroups) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of provider to placements", node.Line)
	}

	out := make(ProviderGroups)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]

		provider, err := fleet.ParseProvider(keyNode.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", keyNode.Line, err)
		}

		var items []*yaml.Node
		switch valueNode.Kind {
		case yaml.MappingNode:
			items = []*yaml.Node{valueNode}
		case yaml.SequenceNode:
			items = valueNode.Content
		default:
			return fmt.Errorf("line %d: %s placements must be a mapping or a list", valueNode.Line, provider)
		}

		for _, item := range items {
			placement := newPlacement(provider)
			if err := item.Decode(placement); err != nil {
				return fmt.Errorf("line %d: invalid %s placement: %w", item.Line, provider, err)
			}
			out[provider] = append(out[provider], placement)
		}
	}

	*g = out
	return nil
}

// Providers returns the configured providers in display order.
func (g ProviderGroups) Providers() []fleet.Provider {
	var out []fleet.Provider
	for _, p := range fleet.Providers {
		if len(g[p]) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// Total returns the desired instance count across all providers.
func (g ProviderGroups) Total() int {
	total := 0
	for _, placements := range g {
		for _, pl := range placements {
			total += pl.Count()
		}
	}
	return total
}

// CountFor returns the desired instance count for one provider.
func (g ProviderGroups) CountFor(p fleet.Provider) int {
	total := 0
	for _, pl := range g[p] {
		total += pl.Count()
	}
	return total
}

// PlacementFor returns the placement an instance was built from, decoded from
// its name. Instances the topology no longer describes get the provider's
// default placement.
func (c *Config) PlacementFor(name string) (Placement, error) {
	parts, err := naming.Parse(name)
	if err != nil {
		return nil, err
	}
	provider, err := fleet.ParseProvider(parts.Provider)
	if err != nil {
		return nil, err
	}

	groups := c.Hosts
	if naming.IsDiscovery(name) {
		groups = c.Discovery
	}

	idx := parts.Location
	if idx == naming.NoLocation {
		idx = 0
	}
	if placements := groups[provider]; idx < len(placements) {
		return placements[idx], nil
	}
	return DefaultPlacement(provider), nil
}

// DefaultPlacement returns a defaulted placement with no replicas.
func DefaultPlacement(p fleet.Provider) Placement {
	pl := newPlacement(p)
	pl.ApplyDefaults()
	return pl
}
