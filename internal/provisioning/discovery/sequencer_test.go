package discovery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/storm/internal/cloud"
	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/platform/docker"
	"github.com/imamik/storm/internal/provisioning"
	stormtest "github.com/imamik/storm/internal/testing"
)

func TestBuildJoinChainPlan(t *testing.T) {
	t.Parallel()

	plan := BuildJoinChainPlan([]Peer{
		{Name: "d0", Address: "a0"},
		{Name: "d1", Address: "a1"},
		{Name: "d2", Address: "a2"},
	})

	require.Len(t, plan.Entries, 3)
	assert.Equal(t, []string{"d0", "d1", "d2"}, plan.Names())

	d0, d1, d2 := plan.Entries[0], plan.Entries[1], plan.Entries[2]
	assert.Empty(t, d0.LocalJoin)
	assert.Equal(t, 3, d0.BootstrapExpect)
	assert.Equal(t, []string{"a0"}, d1.LocalJoin)
	assert.Equal(t, []string{"a0", "a1"}, d2.LocalJoin)

	assert.Equal(t, []string{"a1", "a2"}, d0.WANJoin)
	assert.Equal(t, []string{"a0", "a2"}, d1.WANJoin)
	assert.Equal(t, []string{"a0", "a1"}, d2.WANJoin)
	assert.Equal(t, "a1", d1.Advertise)
}

func TestBuildJoinChainPlan_Single(t *testing.T) {
	t.Parallel()

	plan := BuildJoinChainPlan([]Peer{{Name: "d0", Address: "a0"}})
	require.Len(t, plan.Entries, 1)
	assert.Empty(t, plan.Entries[0].LocalJoin)
	assert.Empty(t, plan.Entries[0].WANJoin)
}

type fakeEngines struct {
	mu     sync.Mutex
	order  []string
	runs   map[string]docker.Container
	fail   map[string]bool
	prefix string
}

func newFakeEngines() *fakeEngines {
	return &fakeEngines{runs: map[string]docker.Container{}, fail: map[string]bool{}, prefix: "172.17.0."}
}

func (f *fakeEngines) factory(_ *provisioning.Context, name string) (Engine, error) {
	return &fakeEngine{engines: f, host: name}, nil
}

func (f *fakeEngines) args(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[name].Args
}

func (f *fakeEngines) started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.order)
}

type fakeEngine struct {
	engines *fakeEngines
	host    string
}

func (e *fakeEngine) Run(_ context.Context, c docker.Container) (string, error) {
	e.engines.mu.Lock()
	defer e.engines.mu.Unlock()
	if e.engines.fail[e.host] {
		return "", errors.New("docker run failed")
	}
	e.engines.order = append(e.engines.order, e.host)
	e.engines.runs[e.host] = c
	return "id-" + e.host, nil
}

func (e *fakeEngine) ContainerIP(context.Context, string) (string, error) {
	e.engines.mu.Lock()
	defer e.engines.mu.Unlock()
	return fmt.Sprintf("%s%d", e.engines.prefix, len(e.engines.order)+1), nil
}

type fakeResolver map[string][]string

func (r fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := r[host]; ok {
		return addrs, nil
	}
	return nil, fmt.Errorf("no such host %s", host)
}

// flagValues returns the values following every occurrence of flag.
func flagValues(args []string, flag string) []string {
	var out []string
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			out = append(out, args[i+1])
		}
	}
	return out
}

func discoveryFleet(t *testing.T, n int) []fleet.Instance {
	t.Helper()
	var out []fleet.Instance
	for i := range n {
		out = append(out, fleet.Instance{
			Name:     fmt.Sprintf("consul-aws-%d-0000000%d", i, i),
			Provider: fleet.AWS,
			IP:       fmt.Sprintf("10.0.0.%d", i+1),
		})
	}
	return out
}

func TestSequencer_JoinChain(t *testing.T) {
	t.Parallel()

	aws := stormtest.NewFakeAdapter(fleet.AWS)
	cfg := stormtest.NewConfigBuilder().Build()
	ctx, observer := stormtest.NewProvisioningContext(t, cfg, nil, aws)

	instances := discoveryFleet(t, 3)
	engines := newFakeEngines()
	seq := NewSequencer(instances, "c2VjcmV0c2VjcmV0c2VjcmV0")
	seq.Engines = engines.factory

	require.NoError(t, provisioning.RunPhase(ctx, seq))

	assert.Equal(t, []string{instances[0].Name, instances[1].Name, instances[2].Name}, engines.started())
	assert.Equal(t, engines.started(), seq.Started())
	assert.True(t, seq.Formed())

	first := engines.args(instances[0].Name)
	assert.Empty(t, flagValues(first, "-retry-join"))
	assert.Equal(t, []string{"3"}, flagValues(first, "-bootstrap-expect"))
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.3"}, flagValues(first, "-retry-join-wan"))
	assert.Equal(t, []string{"10.0.0.1"}, flagValues(first, "-advertise-wan"))
	assert.Equal(t, []string{"c2VjcmV0c2VjcmV0c2VjcmV0"}, flagValues(first, "-encrypt"))
	assert.Equal(t, "-rejoin", first[len(first)-1])

	assert.Equal(t, []string{"172.17.0.2"}, flagValues(engines.args(instances[1].Name), "-retry-join"))
	assert.Equal(t, []string{"172.17.0.2", "172.17.0.3"}, flagValues(engines.args(instances[2].Name), "-retry-join"))

	plan := seq.Plan()
	require.Len(t, plan.Entries, 3)
	assert.Empty(t, plan.Entries[0].LocalJoin)
	assert.Equal(t, []string{"172.17.0.2"}, plan.Entries[1].LocalJoin)
	assert.Equal(t, []string{"172.17.0.2", "172.17.0.3"}, plan.Entries[2].LocalJoin)

	for _, inst := range instances {
		assert.Equal(t, cloud.DiscoveryPorts, aws.Opened(inst.Name))
	}
	assert.NotEmpty(t, observer.Statuses(provisioning.LevelSuccess))
}

func TestSequencer_SingleInstanceWarns(t *testing.T) {
	t.Parallel()

	aws := stormtest.NewFakeAdapter(fleet.AWS)
	ctx, observer := stormtest.NewProvisioningContext(t, stormtest.NewConfigBuilder().Build(), nil, aws)

	seq := NewSequencer(discoveryFleet(t, 1), "key")
	seq.Engines = newFakeEngines().factory

	require.NoError(t, seq.Provision(ctx))
	assert.False(t, seq.Formed())

	warnings := strings.Join(observer.Statuses(provisioning.LevelWarning), "\n")
	assert.Contains(t, warnings, "no fault tolerance")
	assert.Len(t, observer.Events(provisioning.EventValidationWarning), 2)
}

func TestSequencer_ResolutionFailureIsIsolated(t *testing.T) {
	t.Parallel()

	az := stormtest.NewFakeAdapter(fleet.Azure)
	ctx, _ := stormtest.NewProvisioningContext(t, stormtest.NewConfigBuilder().Build(), nil, az)

	instances := []fleet.Instance{
		{Name: "consul-azure-0-aaaaaaaa", Provider: fleet.Azure, IP: "consul-azure-0-aaaaaaaa.cloudapp.net"},
		{Name: "consul-azure-1-bbbbbbbb", Provider: fleet.Azure, IP: "consul-azure-1-bbbbbbbb.cloudapp.net"},
		{Name: "consul-azure-2-cccccccc", Provider: fleet.Azure, IP: "consul-azure-2-cccccccc.cloudapp.net"},
	}
	engines := newFakeEngines()
	seq := NewSequencer(instances, "key")
	seq.Engines = engines.factory
	seq.Resolver = fakeResolver{
		"consul-azure-0-aaaaaaaa.cloudapp.net": {"2001:db8::1", "40.0.0.1"},
		"consul-azure-2-cccccccc.cloudapp.net": {"40.0.0.3"},
	}

	require.NoError(t, seq.Provision(ctx))

	assert.Equal(t, []string{"consul-azure-0-aaaaaaaa", "consul-azure-2-cccccccc"}, seq.Started())
	assert.Equal(t, []string{"consul-azure-0-aaaaaaaa", "consul-azure-2-cccccccc"}, seq.Plan().Names())
	assert.Equal(t, []string{"40.0.0.3"}, flagValues(engines.args("consul-azure-0-aaaaaaaa"), "-retry-join-wan"))
	assert.Equal(t, []string{"40.0.0.3"}, flagValues(engines.args("consul-azure-2-cccccccc"), "-advertise-wan"))
}

func TestSequencer_FailedPredecessorIsSkipped(t *testing.T) {
	t.Parallel()

	aws := stormtest.NewFakeAdapter(fleet.AWS)
	ctx, _ := stormtest.NewProvisioningContext(t, stormtest.NewConfigBuilder().Build(), nil, aws)

	instances := discoveryFleet(t, 3)
	engines := newFakeEngines()
	engines.fail[instances[1].Name] = true
	seq := NewSequencer(instances, "key")
	seq.Engines = engines.factory

	require.NoError(t, seq.Provision(ctx))

	assert.Equal(t, []string{instances[0].Name, instances[2].Name}, seq.Started())
	assert.Equal(t, []string{"172.17.0.2"}, flagValues(engines.args(instances[2].Name), "-retry-join"))
}

func TestSequencer_NothingStarted(t *testing.T) {
	t.Parallel()

	aws := stormtest.NewFakeAdapter(fleet.AWS)
	ctx, _ := stormtest.NewProvisioningContext(t, stormtest.NewConfigBuilder().Build(), nil, aws)

	instances := discoveryFleet(t, 2)
	aws.FailOpenPorts(instances[0].Name, instances[1].Name)

	seq := NewSequencer(instances, "key")
	seq.Engines = newFakeEngines().factory
	assert.ErrorIs(t, seq.Provision(ctx), ErrNoPeerStarted)
	assert.ErrorIs(t, NewSequencer(nil, "key").Provision(ctx), ErrNoPeerStarted)
}

func TestSequencer_MachineEngine(t *testing.T) {
	t.Parallel()

	r := stormtest.NewFakeRunner().
		On("docker-machine env", "export DOCKER_TLS_VERIFY=\"1\"\nexport DOCKER_HOST=\"tcp://10.0.0.1:2376\"\nexport DOCKER_CERT_PATH=\"/certs\"\n", nil).
		On("docker inspect", "172.17.0.9\n", nil)
	aws := stormtest.NewFakeAdapter(fleet.AWS)
	cfg := stormtest.NewConfigBuilder().Build()
	ctx, _ := stormtest.NewProvisioningContext(t, cfg, r, aws)

	seq := NewSequencer(discoveryFleet(t, 1), "key")
	require.NoError(t, seq.Provision(ctx))

	runs := r.Lines("docker run")
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0], "--name consul --restart always")
	assert.Contains(t, runs[0], cfg.DiscoveryImage+" -dc consul-aws-0-00000000")

	for _, c := range r.Commands() {
		if strings.HasPrefix(c.Line, "docker run") {
			assert.Equal(t, "tcp://10.0.0.1:2376", c.Env["DOCKER_HOST"])
		}
	}
}

func TestBootstrapOrderingFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("lookup failed")
	err := error(&BootstrapOrderingFailure{Instance: "consul-azure-0-aaaaaaaa", Err: cause})

	var failure *BootstrapOrderingFailure
	require.ErrorAs(t, err, &failure)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "consul-azure-0-aaaaaaaa")
}
