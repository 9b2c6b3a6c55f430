package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"

	"github.com/imamik/storm/internal/cloud"
	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/platform/docker"
	"github.com/imamik/storm/internal/provisioning"
	"github.com/imamik/storm/internal/runner"
)

const phase = "bootstrap discovery"

// ContainerName is the name of the discovery container on every instance.
const ContainerName = "consul"

// Step weights: open ports, start the container, record its address.
const (
	weightPorts   = 2
	weightRun     = 7
	weightInspect = 1
)

// ErrNoPeerStarted is returned when no discovery container could be started.
var ErrNoPeerStarted = errors.New("no discovery peer started")

// BootstrapOrderingFailure means an instance's join configuration could not be
// resolved. It affects only that instance.
type BootstrapOrderingFailure struct {
	Instance string
	Err      error
}

func (e *BootstrapOrderingFailure) Error() string {
	return fmt.Sprintf("cannot order %s into the join chain: %v", e.Instance, e.Err)
}

func (e *BootstrapOrderingFailure) Unwrap() error {
	return e.Err
}

// Resolver looks up host names. *net.Resolver implements it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Engine starts containers on one instance.
type Engine interface {
	Run(ctx context.Context, c docker.Container) (string, error)
	ContainerIP(ctx context.Context, name string) (string, error)
}

// EngineFactory returns the Engine of an instance.
type EngineFactory func(ctx *provisioning.Context, name string) (Engine, error)

// MachineEngine targets the instance's engine through its docker-machine environment.
func MachineEngine(ctx *provisioning.Context, name string) (Engine, error) {
	env, err := ctx.Machines.Env(ctx, name, false)
	if err != nil {
		return nil, err
	}
	return docker.NewEngine(runner.WithEnv(ctx.Runner, env.Vars())), nil
}

// Sequencer starts one discovery container per instance in join-chain order.
type Sequencer struct {
	instances []fleet.Instance
	key       string

	Resolver Resolver
	Engines  EngineFactory

	mu      sync.Mutex
	plan    JoinChainPlan
	started []string
}

// NewSequencer creates a sequencer for the discovery instances in inventory
// order. key is the shared gossip encryption key.
func NewSequencer(instances []fleet.Instance, key string) *Sequencer {
	return &Sequencer{
		instances: instances,
		key:       key,
		Resolver:  net.DefaultResolver,
		Engines:   MachineEngine,
	}
}

// Name implements the provisioning.Phase interface.
func (s *Sequencer) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface. It fails only when no
// container started; a cluster short of the quorum is reported as a warning.
func (s *Sequencer) Provision(ctx *provisioning.Context) error {
	if len(s.instances) == 0 {
		return ErrNoPeerStarted
	}
	if len(s.instances) == 1 {
		provisioning.LogWarning(ctx.Observer, phase,
			"only one discovery instance (%s): no fault tolerance", s.instances[0].Name)
	}

	peers, unresolved := s.resolve(ctx)
	plan := BuildJoinChainPlan(peers)

	s.mu.Lock()
	s.plan = plan
	s.mu.Unlock()

	byName := make(map[string]fleet.Instance, len(s.instances))
	for _, inst := range s.instances {
		byName[inst.Name] = inst
	}

	chain := newChain(len(plan.Entries))
	batch := provisioning.Batch{Phase: phase, Deadline: ctx.Timeouts.Batch}
	for i, entry := range plan.Entries {
		batch.Tasks = append(batch.Tasks, provisioning.Task{
			Instance: byName[entry.Name],
			Op:       provisioning.OpRun,
			Weight:   provisioning.WeightDefault,
			Run: func(tctx context.Context, p provisioning.Progress) error {
				return s.step(ctx, tctx, p, chain, i, entry, byName[entry.Name])
			},
		})
	}
	for _, u := range unresolved {
		batch.Tasks = append(batch.Tasks, provisioning.Task{
			Instance: byName[u.Instance],
			Op:       provisioning.OpRun,
			Weight:   provisioning.WeightDefault,
			Run: func(context.Context, provisioning.Progress) error {
				return u
			},
		})
	}

	provisioning.RunBatch(ctx, batch)

	started := s.Started()
	switch {
	case len(started) == 0:
		return ErrNoPeerStarted
	case len(started) < BootstrapExpect:
		provisioning.LogWarning(ctx.Observer, phase,
			"discovery cluster not formed: %d of %d peers started", len(started), BootstrapExpect)
	default:
		ctx.Observer.Status(provisioning.LevelSuccess, "discovery cluster formed with %d peers", len(started))
	}
	return nil
}

// Plan returns the join-chain plan of the last Provision with the local-join
// targets each started instance actually used.
func (s *Sequencer) Plan() JoinChainPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return JoinChainPlan{Entries: slices.Clone(s.plan.Entries)}
}

// Started returns the instances whose container started, in start order.
func (s *Sequencer) Started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.started...)
}

// Formed reports whether enough peers started to elect a leader.
func (s *Sequencer) Formed() bool {
	return len(s.Started()) >= BootstrapExpect
}

func (s *Sequencer) resolve(ctx *provisioning.Context) ([]Peer, []*BootstrapOrderingFailure) {
	var peers []Peer
	var failures []*BootstrapOrderingFailure
	for _, inst := range s.instances {
		addr, err := s.hostAddress(ctx, inst)
		if err != nil {
			ctx.Observer.Printf("[%s] %s: %v", phase, inst.Name, err)
			failures = append(failures, &BootstrapOrderingFailure{Instance: inst.Name, Err: err})
			continue
		}
		peers = append(peers, Peer{Name: inst.Name, Address: addr})
	}
	return peers, failures
}

// hostAddress returns a literal IP for the instance. Some providers report a
// DNS name instead, which is looked up.
func (s *Sequencer) hostAddress(ctx context.Context, inst fleet.Instance) (string, error) {
	if inst.IP == "" {
		return "", fmt.Errorf("instance has no address")
	}
	if net.ParseIP(inst.IP) != nil {
		return inst.IP, nil
	}
	addrs, err := s.Resolver.LookupHost(ctx, inst.IP)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", inst.IP, err)
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0], nil
	}
	return "", fmt.Errorf("failed to resolve %s: no addresses", inst.IP)
}

func (s *Sequencer) step(
	ctx *provisioning.Context,
	tctx context.Context,
	p provisioning.Progress,
	chain *chain,
	i int,
	entry Entry,
	inst fleet.Instance,
) error {
	var address string
	defer func() { chain.finish(i, address) }()

	adapter, err := ctx.Cloud.Get(inst.Provider)
	if err != nil {
		return err
	}
	if err := adapter.OpenPorts(tctx, inst, cloud.DiscoveryPorts); err != nil {
		return fmt.Errorf("failed to open discovery ports: %w", err)
	}
	p.Advance(weightPorts)

	local, err := chain.wait(tctx, i)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.plan.Entries[i].LocalJoin = local
	s.mu.Unlock()

	engine, err := s.Engines(ctx, inst.Name)
	if err != nil {
		return err
	}

	if _, err := engine.Run(tctx, s.container(ctx, entry, local)); err != nil {
		return err
	}
	p.Advance(weightRun)

	address = entry.Advertise
	if ip, err := engine.ContainerIP(tctx, ContainerName); err != nil {
		ctx.Observer.Printf("[%s] %s: using host address: %v", phase, inst.Name, err)
	} else if ip != "" {
		address = ip
	}
	p.Advance(weightInspect)

	s.mu.Lock()
	s.started = append(s.started, inst.Name)
	s.mu.Unlock()
	ctx.Observer.Printf("[%s] %s started, joining %v", phase, inst.Name, local)
	return nil
}

func (s *Sequencer) container(ctx *provisioning.Context, entry Entry, local []string) docker.Container {
	args := []string{
		"-dc", entry.Name,
		"-encrypt", s.key,
		"-bootstrap-expect", strconv.Itoa(entry.BootstrapExpect),
		"-advertise-wan", entry.Advertise,
	}
	for _, addr := range entry.WANJoin {
		args = append(args, "-retry-join-wan", addr)
	}
	for _, addr := range local {
		args = append(args, "-retry-join", addr)
	}
	args = append(args, "-rejoin")

	return docker.Container{
		Name:    ContainerName,
		Image:   ctx.Config.DiscoveryImage,
		Restart: "always",
		Publish: []string{"8300:8300", "8302:8302", "8302:8302/udp", "8500:8500"},
		Args:    args,
	}
}

// chain lets step i wait for every step before it and collects the
// addresses of those that started.
type chain struct {
	done  []chan struct{}
	mu    sync.Mutex
	addrs []string
}

func newChain(n int) *chain {
	c := &chain{done: make([]chan struct{}, n), addrs: make([]string, n)}
	for i := range c.done {
		c.done[i] = make(chan struct{})
	}
	return c
}

// finish marks step i done. An empty address means the step did not start.
func (c *chain) finish(i int, address string) {
	c.mu.Lock()
	c.addrs[i] = address
	c.mu.Unlock()
	close(c.done[i])
}

// wait blocks until steps 0..i-1 are done and returns the addresses of those
// that started, in order.
func (c *chain) wait(ctx context.Context, i int) ([]string, error) {
	for j := range i {
		select {
		case <-c.done[j]:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for j := range i {
		if c.addrs[j] != "" {
			out = append(out, c.addrs[j])
		}
	}
	return out, nil
}
