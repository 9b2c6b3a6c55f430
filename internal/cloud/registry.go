package cloud

import (
	"context"
	"fmt"

	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/platform/aws"
	"github.com/imamik/storm/internal/platform/azure"
	"github.com/imamik/storm/internal/platform/digitalocean"
	"github.com/imamik/storm/internal/platform/hcloud"
	"github.com/imamik/storm/internal/platform/machine"
	"github.com/imamik/storm/internal/util/async"
	"github.com/imamik/storm/internal/util/retry"
)

// Registry holds one Adapter per provider.
type Registry struct {
	adapters map[fleet.Provider]Adapter
}

// NewRegistry returns a Registry over adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[fleet.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// Build creates a MachineAdapter for every provider that has credentials.
func Build(machines *machine.Client, creds *config.Credentials, timeouts *config.Timeouts) (*Registry, error) {
	retryOpts := []retry.Option{
		retry.WithMaxRetries(timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(timeouts.RetryInitialDelay),
	}

	var adapters []Adapter
	for _, p := range fleet.Providers {
		if !creds.Has(p) {
			continue
		}

		var ports PortOpener
		switch p {
		case fleet.AWS:
			ports = awsPorts{fw: aws.NewFirewall(*creds.AWS, retryOpts...)}
		case fleet.Azure:
			rules, err := azure.NewRuleClient(*creds.Azure)
			if err != nil {
				return nil, err
			}
			ports = azurePorts{fw: azure.NewFirewall(rules, retryOpts...)}
		case fleet.DigitalOcean:
			ports = digitalOceanPorts{fw: digitalocean.NewFirewall(digitalocean.NewAPI(creds.DigitalOceanToken), retryOpts...)}
		case fleet.Hetzner:
			ports = hetznerPorts{client: hcloud.NewRealClient(creds.HetznerToken, hcloud.WithTimeouts(timeouts))}
		}

		adapters = append(adapters, NewMachineAdapter(p, machines, creds, ports))
	}

	return NewRegistry(adapters...), nil
}

// Get returns the adapter of a provider.
func (r *Registry) Get(p fleet.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w for %s", config.ErrMissingCredentials, p)
	}
	return a, nil
}

// Providers returns the registered providers in display order.
func (r *Registry) Providers() []fleet.Provider {
	var out []fleet.Provider
	for _, p := range fleet.Providers {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Inventory lists every provider concurrently and projects the result.
func (r *Registry) Inventory(ctx context.Context) (*fleet.Inventory, error) {
	providers := r.Providers()
	listings := make([][]fleet.Listing, len(providers))

	tasks := make([]async.Task, 0, len(providers))
	for i, p := range providers {
		adapter := r.adapters[p]
		tasks = append(tasks, async.Task{
			Name: "list " + string(p),
			Func: func(ctx context.Context) error {
				l, err := adapter.ListInstances(ctx)
				if err != nil {
					return err
				}
				listings[i] = l
				return nil
			},
		})
	}

	if err := async.RunParallel(ctx, tasks); err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	var all []fleet.Listing
	for _, l := range listings {
		all = append(all, l...)
	}
	return fleet.NewInventory(all), nil
}
