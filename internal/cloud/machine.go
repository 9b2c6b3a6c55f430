package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/platform/machine"
)

// PortOpener manages the provider firewall of an instance.
type PortOpener interface {
	OpenPorts(ctx context.Context, name string, placement config.Placement, ports []config.Port) error
	// ClosePorts removes per-instance firewall resources left after the instance is gone.
	ClosePorts(ctx context.Context, name string) error
}

// MachineAdapter is an Adapter that drives docker-machine for the instance
// lifecycle and a PortOpener for the firewall.
type MachineAdapter struct {
	provider fleet.Provider
	machines *machine.Client
	creds    *config.Credentials
	ports    PortOpener
}

// NewMachineAdapter returns an Adapter for provider p. A nil ports leaves the
// provider's default firewall untouched.
func NewMachineAdapter(p fleet.Provider, machines *machine.Client, creds *config.Credentials, ports PortOpener) *MachineAdapter {
	return &MachineAdapter{provider: p, machines: machines, creds: creds, ports: ports}
}

func (a *MachineAdapter) Provider() fleet.Provider { return a.provider }

// CreateInstance runs docker-machine create and returns the instance address.
func (a *MachineAdapter) CreateInstance(ctx context.Context, spec CreateSpec) (string, error) {
	if spec.Placement == nil {
		spec.Placement = config.DefaultPlacement(a.provider)
	}
	if spec.Placement.Provider() != a.provider {
		return "", fmt.Errorf("%s adapter cannot create %s placement", a.provider, spec.Placement.Provider())
	}

	flags, err := driverFlags(a.creds, spec)
	if err != nil {
		return "", err
	}
	if err := a.machines.Create(ctx, spec.Name, DriverName(a.provider), flags); err != nil {
		return "", err
	}
	return a.machines.IP(ctx, spec.Name)
}

// OpenPorts opens ports on the instance's provider firewall.
func (a *MachineAdapter) OpenPorts(ctx context.Context, inst fleet.Instance, ports []config.Port) error {
	if a.ports == nil || len(ports) == 0 {
		return nil
	}
	placement := SpecFor(inst).Placement
	if err := a.ports.OpenPorts(ctx, inst.Name, placement, ports); err != nil {
		return fmt.Errorf("failed to open ports on %s: %w", inst.Name, err)
	}
	return nil
}

// ListInstances returns the machines created with this provider's driver.
func (a *MachineAdapter) ListInstances(ctx context.Context) ([]fleet.Listing, error) {
	machines, err := a.machines.List(ctx)
	if err != nil {
		return nil, err
	}

	driver := DriverName(a.provider)
	var out []fleet.Listing
	for _, m := range machines {
		if m.Driver != driver {
			continue
		}
		out = append(out, fleet.Listing{
			Name:     m.Name,
			Address:  m.Address(),
			Provider: a.provider,
			State:    m.State,
		})
	}
	return out, nil
}

// DestroyInstance removes the machine and then its firewall resources.
func (a *MachineAdapter) DestroyInstance(ctx context.Context, name string) error {
	err := a.machines.Remove(ctx, name)
	if a.ports != nil {
		if cerr := a.ports.ClosePorts(ctx, name); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to remove firewall of %s: %w", name, cerr))
		}
	}
	return err
}

// StopInstance stops the machine.
func (a *MachineAdapter) StopInstance(ctx context.Context, name string) error {
	return a.machines.Stop(ctx, name)
}
