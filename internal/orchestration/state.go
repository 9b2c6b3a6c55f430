package orchestration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/imamik/storm/internal/fleet"
)

// State is a step of the deployment pipeline.
type State int

const (
	Idle State = iota
	DiscoveryLaunching
	DiscoveryBootstrapped
	ClusterLaunching
	RegistratorDeployed
	HAProxyPrepared
	HAProxyDeployed
	ServicesDeployed
	TearingDown
)

var stateNames = map[State]string{
	Idle:                  "idle",
	DiscoveryLaunching:    "discovery_launching",
	DiscoveryBootstrapped: "discovery_bootstrapped",
	ClusterLaunching:      "cluster_launching",
	RegistratorDeployed:   "registrator_deployed",
	HAProxyPrepared:       "haproxy_prepared",
	HAProxyDeployed:       "haproxy_deployed",
	ServicesDeployed:      "services_deployed",
	TearingDown:           "tearing_down",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrDeclined is returned when the operator does not confirm a transition.
var ErrDeclined = errors.New("declined by operator")

// PipelineAbort stops the pipeline. State is where it stopped.
type PipelineAbort struct {
	State State
	Err   error
}

func (e *PipelineAbort) Error() string {
	return fmt.Sprintf("pipeline aborted in %s: %v", e.State, e.Err)
}

func (e *PipelineAbort) Unwrap() error {
	return e.Err
}

// Summary describes what a confirmed transition is about to do.
type Summary struct {
	Action    string
	Discovery []fleet.ProviderCount
	Cluster   []fleet.ProviderCount
}

// Empty reports whether the summary counts no instance.
func (s Summary) Empty() bool {
	return len(s.Discovery) == 0 && len(s.Cluster) == 0
}

func (s Summary) String() string {
	var b strings.Builder
	write := func(role string, counts []fleet.ProviderCount) {
		for _, c := range counts {
			fmt.Fprintf(&b, "  %-14s %-10s %d\n", c.Provider, role, c.Count)
		}
	}
	write("discovery", s.Discovery)
	write("hosts", s.Cluster)
	return strings.TrimRight(b.String(), "\n")
}

// Confirmer asks the operator to approve a transition.
type Confirmer func(s Summary) (bool, error)

// AutoApprove approves every transition.
func AutoApprove(Summary) (bool, error) {
	return true, nil
}
