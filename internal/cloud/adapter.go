package cloud

import (
	"context"

	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/fleet"
)

// CreateSpec describes an instance to create.
type CreateSpec struct {
	Name      string
	Placement config.Placement

	// DiscoveryEndpoint joins the instance to the swarm backed by that
	// discovery address. Empty for discovery instances.
	DiscoveryEndpoint string
	SwarmMaster       bool
}

// SpecFor returns the CreateSpec of an instance.
func SpecFor(inst fleet.Instance) CreateSpec {
	spec := CreateSpec{
		Name:              inst.Name,
		DiscoveryEndpoint: inst.DiscoveryEndpoint,
		SwarmMaster:       inst.SwarmMaster,
	}
	if pl, ok := inst.Placement.(config.Placement); ok {
		spec.Placement = pl
	} else {
		spec.Placement = config.DefaultPlacement(inst.Provider)
	}
	return spec
}

// Adapter is the per-provider boundary for instance lifecycle and ports.
type Adapter interface {
	Provider() fleet.Provider
	// CreateInstance creates the instance and returns its address.
	CreateInstance(ctx context.Context, spec CreateSpec) (string, error)
	// OpenPorts opens ports to the world on the instance.
	OpenPorts(ctx context.Context, inst fleet.Instance, ports []config.Port) error
	// ListInstances returns every instance this provider hosts.
	ListInstances(ctx context.Context) ([]fleet.Listing, error)
	// DestroyInstance removes the instance and the resources created for it.
	DestroyInstance(ctx context.Context, name string) error
	// StopInstance powers the instance off without removing it.
	StopInstance(ctx context.Context, name string) error
}
