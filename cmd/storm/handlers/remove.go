package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/orchestration"
	"github.com/imamik/storm/internal/provisioning"
	"github.com/imamik/storm/internal/provisioning/destroy"
)

// Stop handles the stop command.
func Stop(ctx context.Context, opts Options, names []string) error {
	sess, err := openSession(ctx, opts, false)
	if err != nil {
		return err
	}
	defer sess.close()
	pctx := sess.pctx

	if len(names) == 0 {
		pctx.Observer.Status(provisioning.LevelWarning, "No instance specified.")
		return nil
	}

	instances, err := resolve(pctx, names)
	if err != nil || len(instances) == 0 {
		return err
	}
	ok, err := sess.confirm(ctx, fmt.Sprintf("This will stop %s, continue?", strings.Join(names, ", ")), "")
	if err != nil {
		return err
	}
	if !ok {
		pctx.Observer.Status(provisioning.LevelWarning, "Aborting...")
		return nil
	}
	return provisioning.RunPhase(pctx, destroy.NewStopper(instances))
}

// Remove handles the rm command. Without names it removes every cluster instance.
func Remove(ctx context.Context, opts Options, names []string) error {
	sess, err := openSession(ctx, opts, false)
	if err != nil {
		return err
	}
	defer sess.close()
	pctx := sess.pctx

	var instances []fleet.Instance
	if len(names) == 0 {
		inv, err := pctx.Cloud.Inventory(ctx)
		if err != nil {
			return err
		}
		instances = inv.Cluster()
	} else if instances, err = resolve(pctx, names); err != nil {
		return err
	}
	if len(instances) == 0 {
		pctx.Observer.Status(provisioning.LevelInfo, "Nothing to remove.")
		return nil
	}

	ok, err := sess.confirm(ctx, fmt.Sprintf("This will terminate %s, continue?", strings.Join(instanceNames(instances), ", ")), "")
	if err != nil {
		return err
	}
	if !ok {
		pctx.Observer.Status(provisioning.LevelWarning, "Aborting...")
		return nil
	}
	return provisioning.RunPhase(pctx, destroy.NewProvisioner(instances))
}

// Teardown handles the teardown command. Discovery instances are kept unless
// all is set.
func Teardown(ctx context.Context, opts Options, all bool) error {
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

	pipeline := newPipeline(pipelineConfirmer(pctx, sess.confirm))
	pipeline.Track(inv.Cluster()...)
	if all {
		pipeline.Track(inv.Discovery()...)
	}

	err = pipeline.Teardown(pctx)
	if errors.Is(err, orchestration.ErrDeclined) {
		pctx.Observer.Status(provisioning.LevelWarning, "Aborting...")
		return nil
	}
	return err
}

// resolve maps names to running instances and warns about unknown ones.
func resolve(pctx *provisioning.Context, names []string) ([]fleet.Instance, error) {
	inv, err := pctx.Cloud.Inventory(pctx)
	if err != nil {
		return nil, err
	}
	instances, missing := destroy.Resolve(inv, names)
	for _, name := range missing {
		pctx.Observer.Status(provisioning.LevelWarning, "%s is not a running storm instance", name)
	}
	return instances, nil
}

func instanceNames(instances []fleet.Instance) []string {
	names := make([]string, len(instances))
	for i, inst := range instances {
		names[i] = inst.Name
	}
	return names
}
