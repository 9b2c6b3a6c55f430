package orchestration

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/platform/docker"
	"github.com/imamik/storm/internal/provisioning"
	"github.com/imamik/storm/internal/provisioning/compute"
	"github.com/imamik/storm/internal/provisioning/discovery"
	"github.com/imamik/storm/internal/provisioning/services"
	stormtest "github.com/imamik/storm/internal/testing"
	"github.com/imamik/storm/internal/util/naming"
)

const swarmEnv = "export DOCKER_TLS_VERIFY=\"1\"\nexport DOCKER_HOST=\"tcp://10.3.0.4:3376\"\nexport DOCKER_CERT_PATH=\"/certs\"\n"

type engines struct {
	mu      sync.Mutex
	fail    bool
	started []string
}

func (e *engines) factory(_ *provisioning.Context, name string) (discovery.Engine, error) {
	return &engine{engines: e, host: name}, nil
}

type engine struct {
	engines *engines
	host    string
}

func (e *engine) Run(context.Context, docker.Container) (string, error) {
	e.engines.mu.Lock()
	defer e.engines.mu.Unlock()
	if e.engines.fail {
		return "", errors.New("docker run failed")
	}
	e.engines.started = append(e.engines.started, e.host)
	return "id", nil
}

func (e *engine) ContainerIP(context.Context, string) (string, error) {
	return "", nil
}

type shell struct{}

func (shell) Execute(context.Context, string) (string, error) { return "", nil }

func (shell) Upload(context.Context, string, []byte, os.FileMode) error { return nil }

func prefixed(names []string, prefix string) []string {
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out
}

var _ = Describe("Pipeline", func() {
	var (
		aws      *stormtest.FakeAdapter
		hz       *stormtest.FakeAdapter
		runner   *stormtest.FakeRunner
		observer *stormtest.RecordingObserver
		pctx     *provisioning.Context
		cfg      *config.Config
		eng      *engines
		approve  Confirmer
		actions  []string
	)

	newPipeline := func() *Pipeline {
		p := NewPipeline(approve)
		p.Engines = eng.factory
		p.Shells = func(*provisioning.Context, string) (services.Shell, error) { return shell{}, nil }
		p.Certificates = func(context.Context, string) ([]byte, error) { return []byte("PEM"), nil }
		return p
	}

	setup := func(c *config.Config) {
		cfg = c
		parent, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		DeferCleanup(cancel)
		pctx, observer = stormtest.NewProvisioningContextFrom(parent, cfg, runner, aws, hz)
	}

	BeforeEach(func() {
		aws = stormtest.NewFakeAdapter(fleet.AWS)
		hz = stormtest.NewFakeAdapter(fleet.Hetzner)
		runner = stormtest.NewFakeRunner().On("docker-machine env", swarmEnv, nil)
		eng = &engines{}
		actions = nil
		approve = func(s Summary) (bool, error) {
			actions = append(actions, s.Action)
			return true, nil
		}
		setup(stormtest.NewConfigBuilder().
			WithDiscovery(fleet.AWS, 3).
			WithHosts(fleet.AWS, 4).
			WithLoadBalancers(2, "certificate.pem").
			WithBundle("shop", "web", 3).
			Build())
	})

	Describe("Run", func() {
		It("walks every state in order", func() {
			p := newPipeline()
			Expect(p.Run(pctx)).To(Succeed())

			Expect(p.History()).To(Equal([]State{
				DiscoveryLaunching,
				DiscoveryBootstrapped,
				ClusterLaunching,
				RegistratorDeployed,
				HAProxyPrepared,
				HAProxyDeployed,
				ServicesDeployed,
			}))
			Expect(p.State()).To(Equal(ServicesDeployed))
			Expect(actions).To(Equal([]string{"deploy"}))

			Expect(aws.Created()).To(HaveLen(7))
			Expect(p.Tracked()).To(HaveLen(7))
			Expect(eng.started).To(HaveLen(3))

			Expect(runner.Lines("docker-compose scale")).To(Equal([]string{
				"docker-compose scale registrator=4",
				"docker-compose scale load-balancer=2",
				"docker-compose scale web=3",
			}))
		})

		It("points the cluster at the first discovery instance", func() {
			p := newPipeline()
			Expect(p.Run(pctx)).To(Succeed())

			inv, err := pctx.Cloud.Inventory(pctx)
			Expect(err).NotTo(HaveOccurred())
			endpoint := inv.Discovery()[0].IP

			for _, inst := range inv.Cluster() {
				spec, ok := aws.Spec(inst.Name)
				Expect(ok).To(BeTrue())
				Expect(spec.DiscoveryEndpoint).To(Equal(endpoint))
			}
			for _, c := range runner.Commands() {
				if c.Name == "docker-compose" {
					Expect(c.Env[services.DiscoveryIPVar]).To(Equal(endpoint))
				}
			}
		})

		It("does nothing when the operator declines", func() {
			p := NewPipeline(func(Summary) (bool, error) { return false, nil })

			Expect(p.Run(pctx)).To(MatchError(ErrDeclined))
			Expect(p.State()).To(Equal(Idle))
			Expect(p.History()).To(BeEmpty())
			Expect(aws.Created()).To(BeEmpty())
			Expect(runner.Commands()).To(BeEmpty())
		})

		It("reuses an existing discovery cluster", func() {
			Expect(newPipeline().Run(pctx)).To(Succeed())
			Expect(prefixed(aws.Created(), naming.DiscoveryPrefix)).To(HaveLen(3))

			second := newPipeline()
			Expect(second.Run(pctx)).To(Succeed())

			Expect(prefixed(aws.Created(), naming.DiscoveryPrefix)).To(HaveLen(3))
			Expect(eng.started).To(HaveLen(3))
			Expect(second.History()[0]).To(Equal(DiscoveryBootstrapped))
			Expect(observer.Logged("reusing 3 discovery instances")).To(BeTrue())
		})

		It("reuses a running cluster and keeps its swarm master", func() {
			first := newPipeline()
			Expect(first.Run(pctx)).To(Succeed())
			Expect(prefixed(aws.Created(), naming.ClusterPrefix)).To(HaveLen(4))

			second := newPipeline()
			Expect(second.Run(pctx)).To(Succeed())

			Expect(aws.Created()).To(HaveLen(7))
			Expect(actions).To(Equal([]string{"deploy"}))
			Expect(second.History()).To(Equal([]State{
				DiscoveryBootstrapped,
				ClusterLaunching,
				RegistratorDeployed,
				HAProxyPrepared,
				HAProxyDeployed,
				ServicesDeployed,
			}))
			Expect(second.Tracked()).To(HaveLen(7))
			Expect(observer.Logged("reusing 4 cluster instances")).To(BeTrue())

			masters := 0
			for _, name := range prefixed(aws.Created(), naming.ClusterPrefix) {
				spec, ok := aws.Spec(name)
				Expect(ok).To(BeTrue())
				if spec.SwarmMaster {
					masters++
				}
			}
			Expect(masters).To(Equal(1))

			inv, err := pctx.Cloud.Inventory(pctx)
			Expect(err).NotTo(HaveOccurred())
			master, ok := inv.SwarmMaster()
			Expect(ok).To(BeTrue())
			spec, _ := aws.Spec(master.Name)
			Expect(spec.SwarmMaster).To(BeTrue())
			var deployed []string
			for _, msg := range observer.Statuses(provisioning.LevelSuccess) {
				if strings.HasPrefix(msg, "deployed ") {
					deployed = append(deployed, msg)
				}
			}
			want := "deployed 4 cluster instances (master " + master.Name + ")"
			Expect(deployed).To(Equal([]string{want, want}))
			Expect(runner.Lines("scale registrator=")).To(Equal([]string{
				"docker-compose scale registrator=4",
				"docker-compose scale registrator=4",
			}))
		})

		It("logs the join chain of a fresh discovery cluster", func() {
			Expect(newPipeline().Run(pctx)).To(Succeed())
			Expect(observer.Logged("join chain " + naming.DiscoveryPrefix + "-")).To(BeTrue())
			Expect(observer.Logged("below quorum")).To(BeFalse())
		})

		It("tears down discovery when bootstrap fails", func() {
			eng.fail = true
			p := newPipeline()

			err := p.Run(pctx)
			var abort *PipelineAbort
			Expect(errors.As(err, &abort)).To(BeTrue())
			Expect(abort.State).To(Equal(DiscoveryLaunching))
			Expect(err).To(MatchError(discovery.ErrNoPeerStarted))

			Expect(aws.Destroyed()).To(ConsistOf(aws.Created()))
			Expect(p.History()).To(Equal([]State{DiscoveryLaunching, TearingDown, Idle}))
			Expect(p.Tracked()).To(BeEmpty())

			inv, err := pctx.Cloud.Inventory(pctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.Len()).To(Equal(0))
		})

		It("aborts without rollback when no discovery instance launches", func() {
			aws.FailCreateAny()
			p := newPipeline()

			err := p.Run(pctx)
			Expect(err).To(MatchError(compute.ErrNothingLaunched))
			Expect(aws.Destroyed()).To(HaveLen(3))
			Expect(p.History()).To(Equal([]State{DiscoveryLaunching}))
		})

		It("aborts in Idle without a discovery topology", func() {
			setup(stormtest.NewConfigBuilder().WithHosts(fleet.AWS, 2).Build())
			p := newPipeline()

			err := p.Run(pctx)
			var abort *PipelineAbort
			Expect(errors.As(err, &abort)).To(BeTrue())
			Expect(abort.State).To(Equal(Idle))
			Expect(err).To(MatchError(compute.ErrNoDiscovery))
			Expect(aws.Created()).To(BeEmpty())
		})

		It("proceeds with a warning on a single discovery instance", func() {
			setup(stormtest.NewConfigBuilder().WithDiscovery(fleet.AWS, 1).WithHosts(fleet.AWS, 1).Build())
			p := newPipeline()

			Expect(p.Run(pctx)).To(Succeed())
			Expect(p.State()).To(Equal(ServicesDeployed))
			Expect(strings.Join(observer.Statuses(provisioning.LevelWarning), "\n")).To(ContainSubstring("no fault tolerance"))
			Expect(observer.Logged("continuing below quorum with 1 discovery peers")).To(BeTrue())
		})

		It("isolates one failed create out of five", func() {
			setup(stormtest.NewConfigBuilder().
				WithDiscovery(fleet.AWS, 3).
				WithHosts(fleet.AWS, 4).
				WithHosts(fleet.Hetzner, 1).
				Build())
			hz.FailCreateAny()
			p := newPipeline()

			Expect(p.Run(pctx)).To(Succeed())

			Expect(prefixed(aws.Created(), naming.ClusterPrefix)).To(HaveLen(4))
			Expect(hz.Created()).To(HaveLen(1))
			Expect(hz.Destroyed()).To(Equal(hz.Created()))

			inv, err := pctx.Cloud.Inventory(pctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.Cluster()).To(HaveLen(4))
			Expect(runner.Lines("scale registrator=")).To(Equal([]string{"docker-compose scale registrator=4"}))
			Expect(observer.Statuses(provisioning.LevelWarning)).To(ContainElement("1 of 5 cluster instances failed to launch"))
		})

		It("warns when the certificate misses some cluster instances", func() {
			var once sync.Once
			p := newPipeline()
			p.Shells = func(*provisioning.Context, string) (services.Shell, error) {
				var err error
				once.Do(func() { err = errors.New("connection refused") })
				if err != nil {
					return nil, err
				}
				return shell{}, nil
			}

			Expect(p.Run(pctx)).To(Succeed())
			Expect(p.State()).To(Equal(ServicesDeployed))
			Expect(observer.Statuses(provisioning.LevelWarning)).To(ContainElement("certificate missing on 1 of 4 cluster instances"))
		})

		It("stops at the failing service phase", func() {
			runner.On("scale load-balancer=", "ERROR: no such service", errors.New("exit status 1"))
			p := newPipeline()

			err := p.Run(pctx)
			var abort *PipelineAbort
			Expect(errors.As(err, &abort)).To(BeTrue())
			Expect(abort.State).To(Equal(HAProxyPrepared))
			Expect(observer.Statuses(provisioning.LevelError)).NotTo(BeEmpty())
		})
	})

	Describe("Teardown", func() {
		It("destroys every tracked instance once and returns to Idle", func() {
			p := newPipeline()
			Expect(p.Run(pctx)).To(Succeed())
			tracked := p.Tracked()

			Expect(p.Teardown(pctx)).To(Succeed())

			Expect(aws.Destroyed()).To(HaveLen(len(tracked)))
			Expect(p.State()).To(Equal(Idle))
			Expect(p.Tracked()).To(BeEmpty())
			history := p.History()
			Expect(history[len(history)-2:]).To(Equal([]State{TearingDown, Idle}))
			Expect(actions).To(Equal([]string{"deploy", "teardown"}))
		})

		It("returns to Idle when a destroy fails", func() {
			aws.Seed("storm-aws-0-aaaaaaaa", "storm-aws-1-bbbbbbbb").FailDestroy("storm-aws-1-bbbbbbbb")
			inv, err := pctx.Cloud.Inventory(pctx)
			Expect(err).NotTo(HaveOccurred())

			p := newPipeline()
			p.Track(inv.Cluster()...)

			err = p.Teardown(pctx)
			Expect(err).To(HaveOccurred())
			Expect(aws.Destroyed()).To(HaveLen(2))
			Expect(p.State()).To(Equal(Idle))
			Expect(p.Tracked()).To(HaveLen(1))
		})

		It("keeps everything when declined", func() {
			aws.Seed("storm-aws-0-aaaaaaaa")
			inv, err := pctx.Cloud.Inventory(pctx)
			Expect(err).NotTo(HaveOccurred())

			p := NewPipeline(func(Summary) (bool, error) { return false, nil })
			p.Track(inv.Cluster()...)

			Expect(p.Teardown(pctx)).To(MatchError(ErrDeclined))
			Expect(aws.Destroyed()).To(BeEmpty())
			Expect(p.History()).To(BeEmpty())
		})
	})

	Describe("Summary", func() {
		It("lists counts per provider and role", func() {
			s := Summary{
				Discovery: []fleet.ProviderCount{{Provider: fleet.AWS, Count: 3}},
				Cluster:   []fleet.ProviderCount{{Provider: fleet.Hetzner, Count: 2}},
			}
			Expect(s.Empty()).To(BeFalse())
			Expect(s.String()).To(ContainSubstring("aws"))
			Expect(s.String()).To(MatchRegexp(`hetzner\s+hosts\s+2`))
			Expect(Summary{}.Empty()).To(BeTrue())
		})
	})

	Describe("State", func() {
		It("has a name for every state", func() {
			for s := Idle; s <= TearingDown; s++ {
				Expect(s.String()).NotTo(HavePrefix("state("))
			}
			Expect(State(99).String()).To(Equal("state(99)"))
		})
	})
})
