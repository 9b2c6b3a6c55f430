package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/imamik/storm/internal/cloud"
	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/platform/docker"
	"github.com/imamik/storm/internal/provisioning"
	"github.com/imamik/storm/internal/provisioning/services"
	"github.com/imamik/storm/internal/runner"
	"github.com/imamik/storm/internal/util/naming"
)

// Launch handles the launch command: one instance with the provider defaults.
func Launch(ctx context.Context, opts Options, provider, name string) error {
	p, err := fleet.ParseProvider(provider)
	if err != nil {
		return err
	}
	if name == "" {
		return errors.New("an instance name is required")
	}

	sess, err := openSession(ctx, opts, false)
	if err != nil {
		return err
	}
	defer sess.close()
	pctx := sess.pctx

	adapter, err := pctx.Cloud.Get(p)
	if err != nil {
		return err
	}
	if err := ensureCertificates(ctx, pctx.Machines); err != nil {
		return err
	}

	pctx.Observer.Printf("[launch] creating %s on %s", name, p.DisplayName())
	addr, err := adapter.CreateInstance(ctx, cloud.SpecFor(fleet.Instance{Name: name, Provider: p}))
	if err != nil {
		return fmt.Errorf("failed to launch %s: %w", name, err)
	}
	pctx.Observer.Status(provisioning.LevelSuccess, "%s launched at %s", name, addr)
	return nil
}

// List handles the ls command.
func List(ctx context.Context, opts Options) error {
	sess, err := openSession(ctx, opts, false)
	if err != nil {
		return err
	}
	defer sess.close()

	inv, err := sess.pctx.Cloud.Inventory(ctx)
	if err != nil {
		return err
	}

	if inv.Len() == 0 {
		fmt.Fprintln(stdout, "No instances.")
		return nil
	}
	fmt.Fprintf(stdout, "%-36s %-14s %-10s %s\n", "NAME", "PROVIDER", "ROLE", "ADDRESS")
	for _, inst := range append(inv.Discovery(), inv.Cluster()...) {
		fmt.Fprintf(stdout, "%-36s %-14s %-10s %s\n", inst.Name, inst.Provider, inst.Role(), inst.IP)
	}
	return nil
}

// PS handles the ps command: containers across the swarm.
func PS(ctx context.Context, opts Options, all bool) error {
	sess, err := openSession(ctx, opts, false)
	if err != nil {
		return err
	}
	defer sess.close()
	pctx := sess.pctx

	inv, err := pctx.Cloud.Inventory(ctx)
	if err != nil {
		return err
	}
	master, _, err := swarm(inv)
	if err != nil {
		return err
	}

	env, err := pctx.Machines.Env(ctx, master.Name, true)
	if err != nil {
		return err
	}
	out, err := docker.NewEngine(runner.WithEnv(pctx.Runner, env.Vars())).PS(ctx, all)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, out)
	return nil
}

// Env handles the env command. args is one of:
//
//	swarm          the swarm master, swarm flavour
//	discovery N    the Nth discovery instance
//	N              the Nth cluster instance
func Env(ctx context.Context, opts Options, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: env swarm | env discovery N | env N")
	}

	sess, err := openSession(ctx, opts, false)
	if err != nil {
		return err
	}
	defer sess.close()
	pctx := sess.pctx

	inv, err := pctx.Cloud.Inventory(ctx)
	if err != nil {
		return err
	}

	var target fleet.Instance
	swarmEnv := false
	switch args[0] {
	case "swarm":
		if target, _, err = swarm(inv); err != nil {
			return err
		}
		swarmEnv = true
	case naming.DiscoveryPrefix, "discovery":
		if len(args) < 2 {
			return errors.New("usage: env discovery N")
		}
		if target, err = pick(inv.Discovery(), args[1]); err != nil {
			return err
		}
	default:
		if target, err = pick(inv.Cluster(), args[0]); err != nil {
			return err
		}
	}

	env, err := pctx.Machines.Env(ctx, target.Name, swarmEnv)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, env.Exports())
	return nil
}

func pick(instances []fleet.Instance, index string) (fleet.Instance, error) {
	i, err := strconv.Atoi(index)
	if err != nil {
		return fleet.Instance{}, fmt.Errorf("invalid index %q", index)
	}
	if i < 0 || i >= len(instances) {
		return fleet.Instance{}, fmt.Errorf("index %d out of range, %d instances running", i, len(instances))
	}
	return instances[i], nil
}

// Compose handles the compose command: docker-compose against the swarm
// master with the discovery address injected.
func Compose(ctx context.Context, opts Options, dir string, args []string) error {
	if len(args) == 0 {
		return errors.New("no docker-compose arguments given")
	}

	sess, err := openSession(ctx, opts, false)
	if err != nil {
		return err
	}
	defer sess.close()
	pctx := sess.pctx

	inv, err := pctx.Cloud.Inventory(ctx)
	if err != nil {
		return err
	}
	master, endpoint, err := swarm(inv)
	if err != nil {
		return err
	}

	env, err := services.Target{Master: master.Name, DiscoveryIP: endpoint}.Env(pctx)
	if err != nil {
		return err
	}
	out, err := docker.NewCompose(pctx.Runner).Passthrough(ctx, dir, env, args...)
	fmt.Fprint(stdout, out)
	return err
}
