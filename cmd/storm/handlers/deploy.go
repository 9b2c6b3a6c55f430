package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/orchestration"
	"github.com/imamik/storm/internal/provisioning"
)

// newPipeline creates the deployment pipeline. Replaced in tests.
var newPipeline = orchestration.NewPipeline

// Deploy handles the deploy command.
//
// It launches and bootstraps the discovery cluster when none exists, launches
// the cluster, deploys the built-in services and the user bundles, and finally
// offers to tear everything down again. The offer is also made when the
// deploy fails after launching instances.
func Deploy(ctx context.Context, opts Options) error {
	sess, err := openSession(ctx, opts, true)
	if err != nil {
		return err
	}
	defer sess.close()
	pctx := sess.pctx

	if err := ensureCertificates(ctx, pctx.Machines); err != nil {
		return err
	}

	pipeline := newPipeline(pipelineConfirmer(pctx, sess.confirm))
	if err := pipeline.Run(pctx); err != nil {
		if errors.Is(err, orchestration.ErrDeclined) {
			pctx.Observer.Status(provisioning.LevelWarning, "Aborting...")
			return nil
		}
		err = fmt.Errorf("deploy failed: %w", err)
		if len(pipeline.Tracked()) == 0 {
			return err
		}
		if tdErr := offerTeardown(pctx, sess, opts, pipeline); tdErr != nil {
			return errors.Join(err, tdErr)
		}
		return err
	}

	return offerTeardown(pctx, sess, opts, pipeline)
}

// offerTeardown asks whether the tracked instances should be destroyed. It
// never asks under auto-approve.
func offerTeardown(pctx *provisioning.Context, sess *session, opts Options, pipeline *orchestration.Pipeline) error {
	if opts.AutoApprove {
		return nil
	}
	teardown, err := sess.confirm(pctx, "Teardown running instances?", "")
	if err != nil || !teardown {
		return err
	}
	pipeline.Confirm = orchestration.AutoApprove
	return pipeline.Teardown(pctx)
}

// pipelineConfirmer turns a pipeline summary into an operator question.
func pipelineConfirmer(ctx context.Context, confirm ConfirmFunc) orchestration.Confirmer {
	return func(s orchestration.Summary) (bool, error) {
		return confirm(ctx, summaryTitle(s), s.String())
	}
}

func summaryTitle(s orchestration.Summary) string {
	if s.Action == "deploy" {
		hosts, hostProviders := totals(s.Cluster)
		disc, discProviders := totals(s.Discovery)
		return fmt.Sprintf("Setting up %s on %s, using %s on %s for discovery services. Continue?",
			plural(hosts, "host"), plural(hostProviders, "cloud provider"),
			plural(disc, "instance"), plural(discProviders, "cloud provider"))
	}
	hosts, _ := totals(s.Cluster)
	disc, _ := totals(s.Discovery)
	return fmt.Sprintf("This will terminate %s and %s, continue?",
		plural(hosts, "host"), plural(disc, "discovery instance"))
}

func totals(counts []fleet.ProviderCount) (instances, providers int) {
	for _, c := range counts {
		instances += c.Count
	}
	return instances, len(counts)
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
