package compute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/imamik/storm/internal/cloud"
	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/provisioning"
)

// ErrNothingLaunched is returned when every create of a batch failed.
var ErrNothingLaunched = errors.New("no instance was launched")

// Launcher creates a set of instances as one batch.
type Launcher struct {
	label     string
	instances []fleet.Instance
	ports     func(fleet.Provider) []config.Port

	mu       sync.Mutex
	launched []fleet.Instance
	report   provisioning.Report
}

// NewDiscoveryLauncher launches discovery instances. Their ports are opened by
// the bootstrap sequencer.
func NewDiscoveryLauncher(instances []fleet.Instance) *Launcher {
	return &Launcher{label: "launch discovery", instances: instances}
}

// NewClusterLauncher launches cluster instances and opens the overlay ports
// plus extra on each.
func NewClusterLauncher(instances []fleet.Instance, extra []config.Port) *Launcher {
	return &Launcher{
		label:     "launch cluster",
		instances: instances,
		ports: func(p fleet.Provider) []config.Port {
			return cloud.ClusterPorts(p, extra)
		},
	}
}

// Name implements the provisioning.Phase interface.
func (l *Launcher) Name() string {
	return l.label
}

// Provision implements the provisioning.Phase interface. Isolated create
// failures are reported but do not fail the phase; it fails only when nothing
// was launched.
func (l *Launcher) Provision(ctx *provisioning.Context) error {
	if len(l.instances) == 0 {
		return nil
	}

	batch := provisioning.Batch{
		Phase:    l.label,
		Deadline: ctx.Timeouts.Batch,
	}
	// Creates are staggered per provider, counting across its placements.
	slots := make(map[fleet.Provider]int)
	for _, inst := range l.instances {
		batch.Tasks = append(batch.Tasks, l.createTask(ctx, inst, slots[inst.Provider]))
		slots[inst.Provider]++
	}
	batch.LimitByProvider(ctx.Config)

	report := provisioning.RunBatch(ctx, batch)

	l.mu.Lock()
	l.report = report
	l.mu.Unlock()

	if len(report.Succeeded()) == 0 {
		return fmt.Errorf("%w: %w", ErrNothingLaunched, report.Err())
	}
	return nil
}

// Launched returns the instances that were created with their addresses.
func (l *Launcher) Launched() []fleet.Instance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]fleet.Instance(nil), l.launched...)
}

// LaunchedNames returns the names of Launched.
func (l *Launcher) LaunchedNames() []string {
	launched := l.Launched()
	names := make([]string, len(launched))
	for i, inst := range launched {
		names[i] = inst.Name
	}
	return names
}

// Report returns the outcome of the last Provision.
func (l *Launcher) Report() provisioning.Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.report
}

func (l *Launcher) createTask(ctx *provisioning.Context, inst fleet.Instance, slot int) provisioning.Task {
	return provisioning.Task{
		Instance: inst,
		Op:       provisioning.OpCreate,
		Weight:   provisioning.WeightCreate,
		Run: func(tctx context.Context, p provisioning.Progress) error {
			adapter, err := ctx.Cloud.Get(inst.Provider)
			if err != nil {
				return err
			}

			if err := stagger(tctx, time.Duration(slot)*ctx.Timeouts.Stagger); err != nil {
				return err
			}
			p.Advance(provisioning.WeightCreateStart)

			addr, err := adapter.CreateInstance(tctx, cloud.SpecFor(inst))
			if err != nil {
				return l.compensate(ctx, adapter, inst.Name, fmt.Errorf("failed to create instance: %w", err))
			}
			inst.IP = addr
			p.Advance(provisioning.WeightCreateLaunch)

			if l.ports != nil {
				if err := adapter.OpenPorts(tctx, inst, l.ports(inst.Provider)); err != nil {
					return l.compensate(ctx, adapter, inst.Name, fmt.Errorf("failed to open ports: %w", err))
				}
			}
			p.Advance(provisioning.WeightCreatePorts)

			l.mu.Lock()
			l.launched = append(l.launched, inst)
			l.mu.Unlock()
			provisioning.LogInstanceCreated(ctx.Observer, l.label, inst.Name, addr)
			return nil
		},
	}
}

// compensate destroys a partially created instance. The destroy gets its own
// deadline so it still runs when the create was cut short by the batch.
func (l *Launcher) compensate(ctx *provisioning.Context, adapter cloud.Adapter, name string, cause error) error {
	dctx := context.WithoutCancel(ctx)
	if ctx.Timeouts.Destroy > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(dctx, ctx.Timeouts.Destroy)
		defer cancel()
	}

	ctx.Observer.Printf("[%s] destroying %s after failed create", l.label, name)
	destroyErr := adapter.DestroyInstance(dctx, name)
	provisioning.LogInstanceCompensated(ctx.Observer, l.label, name, destroyErr)
	if destroyErr != nil {
		return errors.Join(cause, fmt.Errorf("failed to destroy %s: %w", name, destroyErr))
	}
	return cause
}

func stagger(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
