package machine

import "fmt"

// Engine ports used by the swarm overlay.
const (
	EnginePort    = 2376
	DiscoveryPort = 8500
)

// SwarmFlags returns the docker-machine flags that join an instance to the
// swarm backed by the discovery service at discoveryAddr.
func SwarmFlags(discoveryAddr string, master bool) []string {
	store := fmt.Sprintf("consul://%s:%d", discoveryAddr, DiscoveryPort)
	flags := []string{"--swarm"}
	if master {
		flags = append(flags, "--swarm-master", "--swarm-opt=replication=true")
	}
	return append(flags,
		"--swarm-discovery="+store,
		"--engine-opt=cluster-store="+store,
		fmt.Sprintf("--engine-opt=cluster-advertise=eth0:%d", EnginePort),
	)
}
