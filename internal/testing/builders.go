package testing

import (
	"maps"

	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/fleet"
)

// ConfigBuilder provides a fluent interface for constructing test topologies.
// Each method returns a new builder (immutable) for chaining.
type ConfigBuilder struct {
	cfg config.Config
}

// NewConfigBuilder creates a builder with no instances and default directories.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: config.Config{
			Discovery:      config.ProviderGroups{},
			Hosts:          config.ProviderGroups{},
			Deploy:         map[string]config.Bundle{},
			ServicesDir:    "services",
			DeployDir:      "deploy",
			DiscoveryImage: config.DefaultDiscoveryImage,
		},
	}
}

// WithDiscovery adds a discovery placement of scale instances.
func (b *ConfigBuilder) WithDiscovery(p fleet.Provider, scale int) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Discovery[p] = append(nb.cfg.Discovery[p], placement(p, scale))
	return nb
}

// WithHosts adds a cluster placement of scale instances.
func (b *ConfigBuilder) WithHosts(p fleet.Provider, scale int) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.Hosts[p] = append(nb.cfg.Hosts[p], placement(p, scale))
	return nb
}

// WithLoadBalancers sets the load balancer count and certificate.
func (b *ConfigBuilder) WithLoadBalancers(n int, certificate string) *ConfigBuilder {
	nb := b.clone()
	nb.cfg.LoadBalancers = n
	nb.cfg.Certificate = certificate
	return nb
}

// WithBundle adds a user bundle service.
func (b *ConfigBuilder) WithBundle(name, service string, scale int) *ConfigBuilder {
	nb := b.clone()
	bundle := maps.Clone(nb.cfg.Deploy[name])
	if bundle == nil {
		bundle = config.Bundle{}
	}
	bundle[service] = scale
	nb.cfg.Deploy[name] = bundle
	return nb
}

// WithConcurrency caps the parallelism of a provider.
func (b *ConfigBuilder) WithConcurrency(p fleet.Provider, n int) *ConfigBuilder {
	nb := b.clone()
	if nb.cfg.Concurrency == nil {
		nb.cfg.Concurrency = map[fleet.Provider]int{}
	}
	nb.cfg.Concurrency[p] = n
	return nb
}

// Build returns the configuration.
func (b *ConfigBuilder) Build() *config.Config {
	cfg := b.clone().cfg
	return &cfg
}

func (b *ConfigBuilder) clone() *ConfigBuilder {
	cfg := b.cfg
	cfg.Discovery = cloneGroups(b.cfg.Discovery)
	cfg.Hosts = cloneGroups(b.cfg.Hosts)
	cfg.Deploy = maps.Clone(b.cfg.Deploy)
	cfg.Concurrency = maps.Clone(b.cfg.Concurrency)
	return &ConfigBuilder{cfg: cfg}
}

func cloneGroups(g config.ProviderGroups) config.ProviderGroups {
	out := make(config.ProviderGroups, len(g))
	for p, placements := range g {
		out[p] = append([]config.Placement(nil), placements...)
	}
	return out
}

func placement(p fleet.Provider, scale int) config.Placement {
	pl := config.DefaultPlacement(p)
	switch v := pl.(type) {
	case *config.AWSPlacement:
		v.Scale = scale
	case *config.AzurePlacement:
		v.Scale = scale
	case *config.DigitalOceanPlacement:
		v.Scale = scale
	case *config.HetznerPlacement:
		v.Scale = scale
	}
	return pl
}
