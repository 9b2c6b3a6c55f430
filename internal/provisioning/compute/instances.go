package compute

import (
	"errors"

	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/util/naming"
)

// ErrNoDiscovery is returned when a cluster needs an endpoint and no discovery instance exists.
var ErrNoDiscovery = errors.New("no discovery instance available")

// EndpointSelector picks the discovery address cluster instances join.
type EndpointSelector func(discovery []fleet.Instance) (string, error)

// FirstDiscovery selects the first discovery instance in inventory order.
func FirstDiscovery(discovery []fleet.Instance) (string, error) {
	for _, inst := range discovery {
		if inst.IP != "" {
			return inst.IP, nil
		}
	}
	return "", ErrNoDiscovery
}

// DiscoveryInstances returns the discovery instances the topology asks for.
func DiscoveryInstances(cfg *config.Config) []fleet.Instance {
	return build(cfg.Discovery, naming.Discovery)
}

// ClusterInstances returns the cluster instances the topology asks for, all
// joining endpoint. The first instance is the swarm master.
func ClusterInstances(cfg *config.Config, endpoint string) []fleet.Instance {
	instances := build(cfg.Hosts, naming.Cluster)
	for i := range instances {
		instances[i].DiscoveryEndpoint = endpoint
		instances[i].SwarmMaster = i == 0
	}
	return instances
}

func build(groups config.ProviderGroups, name func(provider string, location, ordinal int) string) []fleet.Instance {
	var out []fleet.Instance
	for _, p := range groups.Providers() {
		placements := groups[p]
		for loc, pl := range placements {
			location := loc
			if len(placements) == 1 {
				location = naming.NoLocation
			}
			for ordinal := range pl.Count() {
				out = append(out, fleet.Instance{
					Name:      name(string(p), location, ordinal),
					Provider:  p,
					Placement: pl,
				})
			}
		}
	}
	return out
}
