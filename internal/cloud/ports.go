package cloud

import (
	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/fleet"
)

// OverlayPorts carry the swarm overlay network and the load balancer.
var OverlayPorts = []config.Port{
	{Protocol: "udp", Port: 4789},
	{Protocol: "udp", Port: 7946},
	{Protocol: "tcp", Port: 7946},
	{Protocol: "tcp", Port: 80},
	{Protocol: "tcp", Port: 88},
	{Protocol: "tcp", Port: 443},
}

// DiscoveryPorts are the discovery service RPC, WAN gossip and HTTP ports.
var DiscoveryPorts = []config.Port{
	{Protocol: "tcp", Port: 8300},
	{Protocol: "tcp", Port: 8302},
	{Protocol: "udp", Port: 8302},
	{Protocol: "tcp", Port: 8500},
}

// ClusterPorts returns the ports opened on a new cluster instance.
// Azure cluster hosts also open the discovery ports.
func ClusterPorts(p fleet.Provider, extra []config.Port) []config.Port {
	ports := append([]config.Port{}, OverlayPorts...)
	if p == fleet.Azure {
		ports = append(ports, DiscoveryPorts...)
	}
	return dedupePorts(append(ports, extra...))
}

func dedupePorts(ports []config.Port) []config.Port {
	seen := make(map[config.Port]bool, len(ports))
	out := ports[:0]
	for _, p := range ports {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
