package fleet

import (
	"github.com/imamik/storm/internal/util/naming"
)

// Role is the part an instance plays in the deployment.
type Role int

const (
	// RoleCluster instances run the container engine and application workloads.
	RoleCluster Role = iota
	// RoleDiscovery instances run the discovery service.
	RoleDiscovery
)

func (r Role) String() string {
	if r == RoleDiscovery {
		return "discovery"
	}
	return "cluster"
}

// RoleOf derives the role from an instance name.
func RoleOf(name string) Role {
	if naming.IsDiscovery(name) {
		return RoleDiscovery
	}
	return RoleCluster
}

// Instance is the identity and desired state of one compute node.
type Instance struct {
	Name      string
	Provider  Provider
	Placement Placement

	// DiscoveryEndpoint is the discovery address a cluster instance joins.
	// Set when the instance is built and never changed afterwards.
	DiscoveryEndpoint string

	// SwarmMaster marks the cluster instance that receives orchestration commands.
	SwarmMaster bool

	// IP is empty until the instance exists.
	IP string
}

// Role returns the instance role, derived from its name.
func (i Instance) Role() Role {
	return RoleOf(i.Name)
}
