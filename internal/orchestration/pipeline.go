package orchestration

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/provisioning"
	"github.com/imamik/storm/internal/provisioning/compute"
	"github.com/imamik/storm/internal/provisioning/destroy"
	"github.com/imamik/storm/internal/provisioning/discovery"
	"github.com/imamik/storm/internal/provisioning/services"
	"github.com/imamik/storm/internal/util/keygen"
)

const scope = "pipeline"

var (
	// ErrNoCluster is returned when no cluster instance exists after the cluster launch.
	ErrNoCluster = errors.New("no cluster instance is running")
	// ErrNoSwarmMaster is returned when the swarm master was not launched.
	ErrNoSwarmMaster = errors.New("swarm master was not launched")
)

// Pipeline deploys a topology one state at a time and remembers every
// instance it created or reused so they can be torn down.
type Pipeline struct {
	Confirm        Confirmer
	SelectEndpoint compute.EndpointSelector
	GossipKey      func() (string, error)

	// Optional overrides of the phase transports. Nil keeps the phase default.
	Engines      discovery.EngineFactory
	Resolver     discovery.Resolver
	Shells       services.ShellFactory
	Certificates services.CertificateLoader

	mu      sync.Mutex
	state   State
	history []State
	tracked []fleet.Instance
}

// NewPipeline creates an Idle pipeline. A nil confirm approves everything.
func NewPipeline(confirm Confirmer) *Pipeline {
	if confirm == nil {
		confirm = AutoApprove
	}
	return &Pipeline{
		Confirm:        confirm,
		SelectEndpoint: compute.FirstDiscovery,
		GossipKey:      keygen.GossipKey,
	}
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// History returns every state entered, in order.
func (p *Pipeline) History() []State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]State(nil), p.history...)
}

// Track adds instances to the set a teardown destroys.
func (p *Pipeline) Track(instances ...fleet.Instance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, inst := range instances {
		known := false
		for _, t := range p.tracked {
			if t.Name == inst.Name {
				known = true
				break
			}
		}
		if !known {
			p.tracked = append(p.tracked, inst)
		}
	}
}

// Tracked returns the instances a teardown would destroy.
func (p *Pipeline) Tracked() []fleet.Instance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fleet.Instance(nil), p.tracked...)
}

func (p *Pipeline) untrack(names []string) {
	gone := make(map[string]bool, len(names))
	for _, n := range names {
		gone[n] = true
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.tracked[:0]
	for _, inst := range p.tracked {
		if !gone[inst.Name] {
			kept = append(kept, inst)
		}
	}
	p.tracked = kept
}

func (p *Pipeline) transition(ctx *provisioning.Context, s State) {
	p.mu.Lock()
	from := p.state
	p.state = s
	p.history = append(p.history, s)
	p.mu.Unlock()

	ctx.Metrics.SetState(s.String())
	ctx.Observer.Printf("[%s] %s -> %s", scope, from, s)
}

func (p *Pipeline) abort(err error) error {
	return &PipelineAbort{State: p.State(), Err: err}
}

// Run deploys ctx.Config. Discovery and cluster instances that already run
// are reused rather than launched again. It returns ErrDeclined, without side
// effects, when the operator does not confirm the launch; nothing is asked
// when there is nothing to launch.
func (p *Pipeline) Run(ctx *provisioning.Context) error {
	inv, err := p.inventory(ctx)
	if err != nil {
		return p.abort(err)
	}

	launchDiscovery := ctx.Config.Discovery.Total() > 0 && !inv.HasDiscovery()
	if !launchDiscovery && !inv.HasDiscovery() {
		return p.abort(compute.ErrNoDiscovery)
	}

	var discoveryPlan, clusterPlan []fleet.Instance
	if launchDiscovery {
		discoveryPlan = compute.DiscoveryInstances(ctx.Config)
	}
	if len(inv.Cluster()) == 0 {
		clusterPlan = compute.ClusterInstances(ctx.Config, "")
	}
	summary := Summary{
		Action:    "deploy",
		Discovery: fleet.CountByProvider(discoveryPlan),
		Cluster:   fleet.CountByProvider(clusterPlan),
	}
	if !summary.Empty() {
		if err := p.confirm(summary); err != nil {
			return err
		}
	}

	if launchDiscovery {
		if err := p.launchDiscovery(ctx, discoveryPlan); err != nil {
			return err
		}
	} else {
		p.Track(inv.Discovery()...)
		ctx.Observer.Printf("[%s] reusing %d discovery instances, skipping bootstrap", scope, len(inv.Discovery()))
	}
	p.transition(ctx, DiscoveryBootstrapped)

	cluster, target, err := p.launchCluster(ctx)
	if err != nil {
		return err
	}

	prepare := services.NewHAProxyPrepare(cluster, p.certificates(ctx))
	if p.Shells != nil {
		prepare.Connect = p.Shells
	}

	steps := []struct {
		phase provisioning.Phase
		next  State
	}{
		{&services.Registrator{Target: target, Replicas: len(cluster)}, RegistratorDeployed},
		{prepare, HAProxyPrepared},
		{&services.HAProxy{Target: target}, HAProxyDeployed},
		{&services.Bundles{Target: target}, ServicesDeployed},
	}
	for _, step := range steps {
		if err := provisioning.RunPhase(ctx, step.phase); err != nil {
			ctx.Observer.Status(provisioning.LevelError, "%v", err)
			return p.abort(err)
		}
		p.transition(ctx, step.next)
	}

	if n := len(prepare.Prepared()); n > 0 && n < len(cluster) {
		ctx.Observer.Status(provisioning.LevelWarning,
			"certificate missing on %d of %d cluster instances", len(cluster)-n, len(cluster))
	}
	ctx.Observer.Status(provisioning.LevelSuccess, "deployed %d cluster instances (master %s)", len(cluster), target.Master)
	return nil
}

// launchDiscovery launches and bootstraps the discovery cluster. Any failure
// tears down the discovery instances it created.
func (p *Pipeline) launchDiscovery(ctx *provisioning.Context, instances []fleet.Instance) error {
	p.transition(ctx, DiscoveryLaunching)

	launcher := compute.NewDiscoveryLauncher(instances)
	out := provisioning.Guard(ctx, "discovery",
		func() (*discovery.Sequencer, error) {
			err := provisioning.RunPhase(ctx, launcher)
			p.Track(launcher.Launched()...)
			if err != nil {
				return nil, err
			}

			inv, err := p.inventory(ctx)
			if err != nil {
				return nil, err
			}
			key, err := p.GossipKey()
			if err != nil {
				return nil, fmt.Errorf("failed to generate gossip key: %w", err)
			}

			seq := discovery.NewSequencer(inv.Discovery(), key)
			if p.Engines != nil {
				seq.Engines = p.Engines
			}
			if p.Resolver != nil {
				seq.Resolver = p.Resolver
			}
			return seq, provisioning.RunPhase(ctx, seq)
		},
		func(error) error {
			launched := launcher.Launched()
			if len(launched) == 0 {
				return nil
			}
			p.transition(ctx, TearingDown)
			destroyer := destroy.NewProvisioner(launched)
			err := provisioning.RunPhase(ctx, destroyer)
			p.untrack(destroyer.Done())
			p.transition(ctx, Idle)
			return err
		},
	)
	if out.Failed() {
		ctx.Observer.Status(provisioning.LevelError, "discovery launch failed: %v", out.Err)
		return &PipelineAbort{State: DiscoveryLaunching, Err: errors.Join(out.Err, out.RollbackErr)}
	}

	seq := out.Value
	ctx.Observer.Printf("[%s] join chain %s", scope, strings.Join(seq.Plan().Names(), " -> "))
	if !seq.Formed() {
		ctx.Observer.Printf("[%s] continuing below quorum with %d discovery peers", scope, len(seq.Started()))
	}
	return nil
}

// launchCluster launches the cluster against the selected discovery endpoint
// and returns the running cluster instances with the swarm target. A running
// cluster is reused as is, keeping its swarm master.
func (p *Pipeline) launchCluster(ctx *provisioning.Context) ([]fleet.Instance, services.Target, error) {
	inv, err := p.inventory(ctx)
	if err != nil {
		return nil, services.Target{}, p.abort(err)
	}
	endpoint, err := p.SelectEndpoint(inv.Discovery())
	if err != nil {
		return nil, services.Target{}, p.abort(err)
	}

	p.transition(ctx, ClusterLaunching)
	ctx.Observer.Printf("[%s] cluster joins discovery at %s", scope, endpoint)

	if running := inv.Cluster(); len(running) > 0 {
		p.Track(running...)
		master, _ := inv.SwarmMaster()
		ctx.Observer.Printf("[%s] reusing %d cluster instances, skipping launch", scope, len(running))
		return running, services.Target{Master: master.Name, DiscoveryIP: endpoint}, nil
	}

	instances := compute.ClusterInstances(ctx.Config, endpoint)
	if len(instances) == 0 {
		return nil, services.Target{}, p.abort(ErrNoCluster)
	}
	launcher := compute.NewClusterLauncher(instances, ctx.Config.ExtraPorts)
	err = provisioning.RunPhase(ctx, launcher)
	p.Track(launcher.Launched()...)
	if err != nil {
		ctx.Observer.Status(provisioning.LevelError, "%v", err)
		return nil, services.Target{}, p.abort(err)
	}
	if failed := launcher.Report().Failures(); len(failed) > 0 {
		ctx.Observer.Status(provisioning.LevelWarning,
			"%d of %d cluster instances failed to launch", len(failed), len(instances))
	}

	inv, err = p.inventory(ctx)
	if err != nil {
		return nil, services.Target{}, p.abort(err)
	}
	cluster := inv.Cluster()
	if len(cluster) == 0 {
		return nil, services.Target{}, p.abort(ErrNoCluster)
	}
	p.Track(cluster...)

	master := instances[0].Name
	if _, ok := inv.Get(master); !ok {
		return nil, services.Target{}, p.abort(fmt.Errorf("%w: %s", ErrNoSwarmMaster, master))
	}
	return cluster, services.Target{Master: master, DiscoveryIP: endpoint}, nil
}

// Teardown destroys every tracked instance after confirmation and always
// returns to Idle. Destroy failures are returned as a *destroy.CleanupError.
func (p *Pipeline) Teardown(ctx *provisioning.Context) error {
	instances := p.Tracked()
	if len(instances) == 0 {
		ctx.Observer.Printf("[%s] nothing to tear down", scope)
		return nil
	}

	var disc, cluster []fleet.Instance
	for _, inst := range instances {
		if inst.Role() == fleet.RoleDiscovery {
			disc = append(disc, inst)
		} else {
			cluster = append(cluster, inst)
		}
	}
	summary := Summary{
		Action:    "teardown",
		Discovery: fleet.CountByProvider(disc),
		Cluster:   fleet.CountByProvider(cluster),
	}
	if err := p.confirm(summary); err != nil {
		return err
	}

	p.transition(ctx, TearingDown)
	destroyer := destroy.NewProvisioner(instances)
	err := provisioning.RunPhase(ctx, destroyer)
	p.untrack(destroyer.Done())
	p.transition(ctx, Idle)

	if err != nil {
		ctx.Observer.Status(provisioning.LevelWarning, "teardown left %d instances behind", len(p.Tracked()))
		return err
	}
	ctx.Observer.Status(provisioning.LevelSuccess, "destroyed %d instances", len(instances))
	return nil
}

func (p *Pipeline) confirm(s Summary) error {
	ok, err := p.Confirm(s)
	if err != nil {
		return fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		return ErrDeclined
	}
	return nil
}

func (p *Pipeline) inventory(ctx *provisioning.Context) (*fleet.Inventory, error) {
	inv, err := ctx.Cloud.Inventory(ctx)
	if err != nil {
		return nil, err
	}
	for _, role := range []fleet.Role{fleet.RoleDiscovery, fleet.RoleCluster} {
		instances := inv.Cluster()
		if role == fleet.RoleDiscovery {
			instances = inv.Discovery()
		}
		for _, c := range fleet.CountByProvider(instances) {
			ctx.Metrics.SetInstances(string(c.Provider), role.String(), c.Count)
		}
	}
	return inv, nil
}

func (p *Pipeline) certificates(ctx *provisioning.Context) services.CertificateLoader {
	if p.Certificates != nil {
		return p.Certificates
	}
	return services.LoadCertificate(ctx.Creds)
}
