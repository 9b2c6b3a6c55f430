package handlers

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/storm/internal/cloud"
	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/orchestration"
	"github.com/imamik/storm/internal/platform/docker"
	"github.com/imamik/storm/internal/platform/machine"
	"github.com/imamik/storm/internal/provisioning"
	"github.com/imamik/storm/internal/provisioning/discovery"
	"github.com/imamik/storm/internal/provisioning/services"
	stormtest "github.com/imamik/storm/internal/testing"
	"github.com/imamik/storm/internal/util/prerequisites"
)

const machineEnv = "export DOCKER_TLS_VERIFY=\"1\"\nexport DOCKER_HOST=\"tcp://10.3.0.9:3376\"\nexport DOCKER_CERT_PATH=\"/certs\"\n"

type fixture struct {
	pctx     *provisioning.Context
	observer *stormtest.RecordingObserver
	out      *bytes.Buffer
	asked    []string
	needed   []bool
}

// withSession swaps the package factories for fakes and restores them when
// the test ends. Tests using it must not run in parallel.
func withSession(t *testing.T, cfg *config.Config, r *stormtest.FakeRunner, answer bool, adapters ...cloud.Adapter) *fixture {
	t.Helper()

	origOpen, origCerts, origOut, origPipeline := openSession, ensureCertificates, stdout, newPipeline
	t.Cleanup(func() {
		openSession, ensureCertificates, stdout, newPipeline = origOpen, origCerts, origOut, origPipeline
	})

	f := &fixture{out: &bytes.Buffer{}}
	f.pctx, f.observer = stormtest.NewProvisioningContext(t, cfg, r, adapters...)

	openSession = func(_ context.Context, _ Options, needConfig bool) (*session, error) {
		f.needed = append(f.needed, needConfig)
		return &session{
			pctx: f.pctx,
			confirm: func(_ context.Context, title, _ string) (bool, error) {
				f.asked = append(f.asked, title)
				return answer, nil
			},
			close: func() {},
		}, nil
	}
	ensureCertificates = func(context.Context, *machine.Client) error { return nil }
	stdout = f.out
	return f
}

type engine struct{}

func (engine) Run(context.Context, docker.Container) (string, error) {
	return "id", nil
}

func (engine) ContainerIP(context.Context, string) (string, error) {
	return "", nil
}

type shell struct{}

func (shell) Execute(context.Context, string) (string, error) {
	return "", nil
}

func (shell) Upload(context.Context, string, []byte, os.FileMode) error {
	return nil
}

func fakeTransports() {
	newPipeline = func(confirm orchestration.Confirmer) *orchestration.Pipeline {
		p := orchestration.NewPipeline(confirm)
		p.Engines = func(*provisioning.Context, string) (discovery.Engine, error) { return engine{}, nil }
		p.Shells = func(*provisioning.Context, string) (services.Shell, error) { return shell{}, nil }
		p.Certificates = func(context.Context, string) ([]byte, error) { return []byte("PEM"), nil }
		return p
	}
}

func topology() *config.Config {
	return stormtest.NewConfigBuilder().
		WithDiscovery(fleet.AWS, 1).
		WithHosts(fleet.AWS, 2).
		Build()
}

func TestDeploy_ThenTeardown(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS)
	f := withSession(t, topology(), stormtest.NewFakeRunner().On("docker-machine env", machineEnv, nil), true, aws)
	fakeTransports()

	require.NoError(t, Deploy(context.Background(), Options{}))

	assert.Equal(t, []bool{true}, f.needed)
	assert.Equal(t, []string{
		"Setting up 2 hosts on 1 cloud provider, using 1 instance on 1 cloud provider for discovery services. Continue?",
		"Teardown running instances?",
	}, f.asked)
	assert.Len(t, aws.Created(), 3)
	assert.ElementsMatch(t, aws.Created(), aws.Destroyed())
}

func TestDeploy_AutoApproveKeepsInstances(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS)
	f := withSession(t, topology(), stormtest.NewFakeRunner().On("docker-machine env", machineEnv, nil), true, aws)
	fakeTransports()

	require.NoError(t, Deploy(context.Background(), Options{AutoApprove: true}))

	assert.Len(t, f.asked, 1)
	assert.Len(t, aws.Created(), 3)
	assert.Empty(t, aws.Destroyed())
}

func TestDeploy_Declined(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS)
	f := withSession(t, topology(), nil, false, aws)
	fakeTransports()

	require.NoError(t, Deploy(context.Background(), Options{}))

	assert.Empty(t, aws.Created())
	assert.Equal(t, []string{"Aborting..."}, f.observer.Statuses(provisioning.LevelWarning))
}

func TestDeploy_AbortIsAnError(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS).FailCreateAny()
	f := withSession(t, topology(), nil, true, aws)
	fakeTransports()

	err := Deploy(context.Background(), Options{})
	require.Error(t, err)

	var abort *orchestration.PipelineAbort
	assert.ErrorAs(t, err, &abort)
	assert.Len(t, f.asked, 1)
}

func failingRegistrator() *stormtest.FakeRunner {
	return stormtest.NewFakeRunner().
		On("docker-machine env", machineEnv, nil).
		On("scale registrator=", "ERROR: no such service", errors.New("exit status 1"))
}

func TestDeploy_FailureOffersTeardown(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS)
	f := withSession(t, topology(), failingRegistrator(), true, aws)
	fakeTransports()

	err := Deploy(context.Background(), Options{})

	var abort *orchestration.PipelineAbort
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, orchestration.ClusterLaunching, abort.State)
	assert.Contains(t, err.Error(), "deploy failed")

	assert.Equal(t, []string{
		"Setting up 2 hosts on 1 cloud provider, using 1 instance on 1 cloud provider for discovery services. Continue?",
		"Teardown running instances?",
	}, f.asked)
	assert.Len(t, aws.Created(), 3)
	assert.ElementsMatch(t, aws.Created(), aws.Destroyed())
}

func TestDeploy_FailureKeepsInstancesWhenDeclined(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS)
	f := withSession(t, topology(), failingRegistrator(), true, aws)
	fakeTransports()

	answers := []bool{true, false}
	sess, err := openSession(context.Background(), Options{}, true)
	require.NoError(t, err)
	openSession = func(context.Context, Options, bool) (*session, error) {
		sess.confirm = func(_ context.Context, title, _ string) (bool, error) {
			f.asked = append(f.asked, title)
			answer := answers[0]
			answers = answers[1:]
			return answer, nil
		}
		return sess, nil
	}

	require.Error(t, Deploy(context.Background(), Options{}))
	assert.Len(t, f.asked, 2)
	assert.Empty(t, aws.Destroyed())
}

func TestDeploy_FailureUnderAutoApproveKeepsInstances(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS)
	f := withSession(t, topology(), failingRegistrator(), true, aws)
	fakeTransports()

	require.Error(t, Deploy(context.Background(), Options{AutoApprove: true}))
	assert.Len(t, f.asked, 1)
	assert.Len(t, aws.Created(), 3)
	assert.Empty(t, aws.Destroyed())
}

func TestList(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS).Seed("consul-aws-0-aaaaaaaa", "storm-aws-0-bbbbbbbb")
	f := withSession(t, topology(), nil, true, aws)

	require.NoError(t, List(context.Background(), Options{}))

	out := f.out.String()
	assert.Contains(t, out, "NAME")
	assert.Regexp(t, `consul-aws-0-aaaaaaaa\s+aws\s+discovery\s+10\.3\.0\.1`, out)
	assert.Regexp(t, `storm-aws-0-bbbbbbbb\s+aws\s+cluster\s+10\.3\.0\.2`, out)
	assert.Equal(t, []bool{false}, f.needed)
}

func TestList_Empty(t *testing.T) {
	f := withSession(t, topology(), nil, true, stormtest.NewFakeAdapter(fleet.AWS))
	require.NoError(t, List(context.Background(), Options{}))
	assert.Equal(t, "No instances.\n", f.out.String())
}

func TestEnv(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS).Seed("consul-aws-0-aaaaaaaa", "storm-aws-0-bbbbbbbb", "storm-aws-1-cccccccc")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"swarm", []string{"swarm"}, "docker-machine env --shell bash --swarm storm-aws-0-bbbbbbbb"},
		{"discovery", []string{"discovery", "0"}, "docker-machine env --shell bash consul-aws-0-aaaaaaaa"},
		{"cluster", []string{"1"}, "docker-machine env --shell bash storm-aws-1-cccccccc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := stormtest.NewFakeRunner().On("docker-machine env", machineEnv, nil)
			f := withSession(t, topology(), r, true, aws)

			require.NoError(t, Env(context.Background(), Options{}, tt.args))
			assert.Equal(t, []string{tt.want}, r.Lines("docker-machine env"))
			assert.Contains(t, f.out.String(), `export DOCKER_HOST="tcp://10.3.0.9:3376"`)
		})
	}
}

func TestEnv_BadIndex(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS).Seed("storm-aws-0-bbbbbbbb")
	withSession(t, topology(), nil, true, aws)

	assert.ErrorContains(t, Env(context.Background(), Options{}, []string{"3"}), "out of range")
	assert.ErrorContains(t, Env(context.Background(), Options{}, []string{"x"}), "invalid index")
	assert.Error(t, Env(context.Background(), Options{}, nil))
}

func TestPS(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS).Seed("consul-aws-0-aaaaaaaa", "storm-aws-0-bbbbbbbb")
	r := stormtest.NewFakeRunner().
		On("docker-machine env", machineEnv, nil).
		On("docker ps", "CONTAINER ID   IMAGE\n", nil)
	f := withSession(t, topology(), r, true, aws)

	require.NoError(t, PS(context.Background(), Options{}, true))
	assert.Equal(t, []string{"docker ps -a"}, r.Lines("docker ps"))
	assert.Contains(t, f.out.String(), "CONTAINER ID")

	for _, c := range r.Commands() {
		if c.Name == "docker" {
			assert.Equal(t, "tcp://10.3.0.9:3376", c.Env["DOCKER_HOST"])
		}
	}
}

func TestPS_NoCluster(t *testing.T) {
	withSession(t, topology(), nil, true, stormtest.NewFakeAdapter(fleet.AWS))
	assert.ErrorIs(t, PS(context.Background(), Options{}, false), errNoCluster)
}

func TestCompose(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS).Seed("consul-aws-0-aaaaaaaa", "storm-aws-0-bbbbbbbb")
	r := stormtest.NewFakeRunner().
		On("docker-machine env", machineEnv, nil).
		On("docker-compose logs", "web_1 | ready\n", nil)
	f := withSession(t, topology(), r, true, aws)

	require.NoError(t, Compose(context.Background(), Options{}, "deploy/shop", []string{"logs", "web"}))

	assert.Equal(t, []string{"docker-compose logs web"}, r.Lines("docker-compose"))
	assert.Contains(t, f.out.String(), "ready")
	for _, c := range r.Commands() {
		if c.Name == "docker-compose" {
			assert.Equal(t, "deploy/shop", c.Dir)
			assert.Equal(t, "10.3.0.1", c.Env[services.DiscoveryIPVar])
		}
	}
}

func TestStop(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS).Seed("storm-aws-0-bbbbbbbb", "storm-aws-1-cccccccc")
	f := withSession(t, topology(), nil, true, aws)

	require.NoError(t, Stop(context.Background(), Options{}, []string{"storm-aws-1-cccccccc", "nope"}))

	assert.Equal(t, []string{"storm-aws-1-cccccccc"}, aws.Stopped())
	assert.Equal(t, []string{"This will stop storm-aws-1-cccccccc, nope, continue?"}, f.asked)
	assert.Contains(t, f.observer.Statuses(provisioning.LevelWarning), "nope is not a running storm instance")
}

func TestStop_NoNames(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS)
	f := withSession(t, topology(), nil, true, aws)

	require.NoError(t, Stop(context.Background(), Options{}, nil))
	assert.Empty(t, f.asked)
	assert.Equal(t, []string{"No instance specified."}, f.observer.Statuses(provisioning.LevelWarning))
}

func TestRemove_DefaultsToCluster(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS).Seed("consul-aws-0-aaaaaaaa", "storm-aws-0-bbbbbbbb", "storm-aws-1-cccccccc")
	withSession(t, topology(), nil, true, aws)

	require.NoError(t, Remove(context.Background(), Options{}, nil))
	assert.ElementsMatch(t, []string{"storm-aws-0-bbbbbbbb", "storm-aws-1-cccccccc"}, aws.Destroyed())
}

func TestRemove_Declined(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS).Seed("storm-aws-0-bbbbbbbb")
	withSession(t, topology(), nil, false, aws)

	require.NoError(t, Remove(context.Background(), Options{}, []string{"storm-aws-0-bbbbbbbb"}))
	assert.Empty(t, aws.Destroyed())
}

func TestTeardown(t *testing.T) {
	for _, all := range []bool{false, true} {
		aws := stormtest.NewFakeAdapter(fleet.AWS).Seed("consul-aws-0-aaaaaaaa", "storm-aws-0-bbbbbbbb")
		f := withSession(t, topology(), nil, true, aws)

		require.NoError(t, Teardown(context.Background(), Options{}, all))

		if all {
			assert.Len(t, aws.Destroyed(), 2)
			assert.Equal(t, []string{"This will terminate 1 host and 1 discovery instance, continue?"}, f.asked)
		} else {
			assert.Equal(t, []string{"storm-aws-0-bbbbbbbb"}, aws.Destroyed())
		}
	}
}

func TestTeardown_Declined(t *testing.T) {
	aws := stormtest.NewFakeAdapter(fleet.AWS).Seed("storm-aws-0-bbbbbbbb")
	f := withSession(t, topology(), nil, false, aws)

	require.NoError(t, Teardown(context.Background(), Options{}, true))
	assert.Empty(t, aws.Destroyed())
	assert.Equal(t, []string{"Aborting..."}, f.observer.Statuses(provisioning.LevelWarning))
}

func TestLaunch(t *testing.T) {
	do := stormtest.NewFakeAdapter(fleet.DigitalOcean)
	f := withSession(t, topology(), nil, true, do)

	require.NoError(t, Launch(context.Background(), Options{}, "digitalocean", "scratch"))
	assert.Equal(t, []string{"scratch"}, do.Created())
	assert.NotEmpty(t, f.observer.Statuses(provisioning.LevelSuccess))

	assert.Error(t, Launch(context.Background(), Options{}, "openstack", "scratch"))
	assert.ErrorIs(t, Launch(context.Background(), Options{}, "aws", "scratch"), config.ErrMissingCredentials)
}

func TestDoctor(t *testing.T) {
	orig, origOut := checkDefaultPrereqs, stdout
	t.Cleanup(func() { checkDefaultPrereqs, stdout = orig, origOut })

	out := &bytes.Buffer{}
	stdout = out
	checkDefaultPrereqs = func(context.Context) *prerequisites.CheckResults {
		compose := prerequisites.Tool{Name: "docker-compose", Required: true, InstallURL: "https://docs.docker.com/compose/install/"}
		return &prerequisites.CheckResults{
			Results: []prerequisites.CheckResult{
				{Tool: prerequisites.Tool{Name: "docker"}, Found: true, Version: "Docker version 27.0.1"},
				{Tool: compose},
			},
			Missing: []prerequisites.Tool{compose},
		}
	}

	err := Doctor(context.Background())
	require.ErrorContains(t, err, "docker-compose")
	assert.Contains(t, out.String(), "[OK]  docker")
	assert.Contains(t, out.String(), "[!!]  docker-compose")
}

func TestSummaryTitle(t *testing.T) {
	t.Parallel()

	title := summaryTitle(orchestration.Summary{
		Action:    "deploy",
		Discovery: []fleet.ProviderCount{{Provider: fleet.AWS, Count: 3}},
		Cluster:   []fleet.ProviderCount{{Provider: fleet.AWS, Count: 4}, {Provider: fleet.Hetzner, Count: 1}},
	})
	assert.Equal(t, "Setting up 5 hosts on 2 cloud providers, using 3 instances on 1 cloud provider for discovery services. Continue?", title)
}

func TestUsedProviders(t *testing.T) {
	t.Parallel()

	cfg := stormtest.NewConfigBuilder().
		WithDiscovery(fleet.Azure, 1).
		WithHosts(fleet.AWS, 1).
		WithHosts(fleet.Azure, 1).
		Build()
	assert.Equal(t, []fleet.Provider{fleet.Azure, fleet.AWS}, usedProviders(cfg))
}
