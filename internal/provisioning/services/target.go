package services

import (
	"fmt"

	"github.com/imamik/storm/internal/platform/docker"
	"github.com/imamik/storm/internal/provisioning"
)

// DiscoveryIPVar is the variable compose files use to reach the discovery service.
const DiscoveryIPVar = "DISCOVERY_IP"

// Target is the swarm the compose projects are deployed to.
type Target struct {
	Master      string
	DiscoveryIP string
}

// Env returns the compose environment for the swarm master.
func (t Target) Env(ctx *provisioning.Context) (map[string]string, error) {
	if t.Master == "" {
		return nil, fmt.Errorf("no swarm master")
	}
	env, err := ctx.Machines.Env(ctx, t.Master, true)
	if err != nil {
		return nil, err
	}
	vars := env.Vars()
	vars[DiscoveryIPVar] = t.DiscoveryIP
	return vars, nil
}

// deploy brings the project in dir up and sets the replica count of each service.
func (t Target) deploy(ctx *provisioning.Context, dir string, scale map[string]int, order []string) error {
	env, err := t.Env(ctx)
	if err != nil {
		return err
	}

	compose := docker.NewCompose(ctx.Runner)
	if err := compose.Up(ctx, dir, env); err != nil {
		return err
	}
	for _, svc := range order {
		if err := compose.Scale(ctx, dir, env, svc, scale[svc]); err != nil {
			return err
		}
	}
	return nil
}
