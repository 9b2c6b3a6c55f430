package destroy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/provisioning"
	"github.com/imamik/storm/internal/util/naming"
)

// CleanupError collects the instances that could not be removed or stopped.
type CleanupError struct {
	Errors []error
}

func (e *CleanupError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("cleanup incomplete: %s", strings.Join(msgs, "; "))
}

func (e *CleanupError) Unwrap() []error {
	return e.Errors
}

// Provisioner removes or stops a set of instances under the destroy deadline.
type Provisioner struct {
	instances []fleet.Instance
	stop      bool

	mu   sync.Mutex
	done []string
}

// NewProvisioner creates a provisioner that removes instances.
func NewProvisioner(instances []fleet.Instance) *Provisioner {
	return &Provisioner{instances: instances}
}

// NewStopper creates a provisioner that powers instances off.
func NewStopper(instances []fleet.Instance) *Provisioner {
	return &Provisioner{instances: instances, stop: true}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	if p.stop {
		return "stop"
	}
	return "destroy"
}

// Provision implements the provisioning.Phase interface. Every instance gets
// one call; failures are collected into a *CleanupError.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	if len(p.instances) == 0 {
		return nil
	}

	op := provisioning.OpDestroy
	if p.stop {
		op = provisioning.OpStop
	}

	batch := provisioning.Batch{Phase: p.Name(), Deadline: ctx.Timeouts.Destroy}
	for _, inst := range p.instances {
		batch.Tasks = append(batch.Tasks, provisioning.Task{
			Instance: inst,
			Op:       op,
			Weight:   provisioning.WeightDefault,
			Run: func(tctx context.Context, _ provisioning.Progress) error {
				return p.run(ctx, tctx, inst)
			},
		})
	}

	report := provisioning.RunBatch(ctx, batch)
	if err := report.Err(); err != nil {
		var cleanup CleanupError
		for _, res := range report.Failures() {
			cleanup.Errors = append(cleanup.Errors, fmt.Errorf("%s: %w", res.ID, res.Err))
		}
		return &cleanup
	}
	return nil
}

// Done returns the instances that were removed or stopped.
func (p *Provisioner) Done() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.done...)
}

func (p *Provisioner) run(ctx *provisioning.Context, tctx context.Context, inst fleet.Instance) error {
	provider, err := providerOf(inst)
	if err != nil {
		return err
	}
	adapter, err := ctx.Cloud.Get(provider)
	if err != nil {
		return err
	}

	if p.stop {
		if err := adapter.StopInstance(tctx, inst.Name); err != nil {
			return fmt.Errorf("failed to stop instance: %w", err)
		}
	} else {
		if err := adapter.DestroyInstance(tctx, inst.Name); err != nil {
			return fmt.Errorf("failed to destroy instance: %w", err)
		}
		provisioning.LogInstanceDestroyed(ctx.Observer, p.Name(), inst.Name)
	}

	p.mu.Lock()
	p.done = append(p.done, inst.Name)
	p.mu.Unlock()
	return nil
}

func providerOf(inst fleet.Instance) (fleet.Provider, error) {
	if inst.Provider != "" {
		return inst.Provider, nil
	}
	parts, err := naming.Parse(inst.Name)
	if err != nil {
		return "", err
	}
	return fleet.ParseProvider(parts.Provider)
}

// Resolve looks names up in inv. Names that are not in the inventory are
// returned separately.
func Resolve(inv *fleet.Inventory, names []string) ([]fleet.Instance, []string) {
	var found []fleet.Instance
	var missing []string
	for _, name := range names {
		if inst, ok := inv.Get(name); ok {
			found = append(found, inst)
			continue
		}
		missing = append(missing, name)
	}
	return found, missing
}

// IsCleanupError reports whether err carries a *CleanupError.
func IsCleanupError(err error) bool {
	var cleanup *CleanupError
	return errors.As(err, &cleanup)
}
