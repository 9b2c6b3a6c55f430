// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command definitions
// in the commands package. Handlers are framework-agnostic and can be tested
// independently of the CLI framework.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/imamik/storm/internal/cloud"
	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/logging"
	"github.com/imamik/storm/internal/metrics"
	"github.com/imamik/storm/internal/platform/machine"
	"github.com/imamik/storm/internal/provisioning"
	"github.com/imamik/storm/internal/provisioning/compute"
	"github.com/imamik/storm/internal/runner"
	"github.com/imamik/storm/internal/ui/prompt"
)

// Options holds the global flags.
type Options struct {
	ConfigPath  string
	AutoApprove bool
	MetricsAddr string
	DebugLog    string
	Verbose     bool
}

var errNoCluster = errors.New("no cluster instance is running")

// ConfirmFunc asks the operator a yes/no question.
type ConfirmFunc func(ctx context.Context, title, description string) (bool, error)

// session is everything a command needs to talk to the fleet.
type session struct {
	pctx    *provisioning.Context
	confirm ConfirmFunc
	close   func()
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// openSession builds the provisioning context for a command.
	openSession = open

	// loadConfig finds and loads the topology file.
	loadConfig = func(path string) (*config.Config, error) {
		found, err := config.Find(path)
		if err != nil {
			return nil, err
		}
		return config.LoadFile(found)
	}

	// loadCredentials reads provider credentials from ~/.storm.
	loadCredentials = func() (*config.Credentials, error) {
		dir, err := config.StateDir()
		if err != nil {
			return nil, err
		}
		return config.LoadCredentials(dir)
	}

	// ensureCertificates bootstraps docker-machine client certificates.
	ensureCertificates = func(ctx context.Context, machines *machine.Client) error {
		dir, err := machine.CertDir()
		if err != nil {
			return err
		}
		return machines.EnsureCertificates(ctx, dir)
	}

	// stdout receives command output.
	stdout io.Writer = os.Stdout
)

// open loads credentials, the debug logger and every provider adapter. The
// topology is loaded only when needConfig is set.
func open(ctx context.Context, opts Options, needConfig bool) (*session, error) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	if needConfig {
		loaded, err := loadConfig(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	creds, err := loadCredentials()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if needConfig {
		if err := creds.Require(usedProviders(cfg)); err != nil {
			return nil, err
		}
	}

	logPath, err := debugLogPath(opts.DebugLog)
	if err != nil {
		return nil, err
	}
	logger, flush, err := logging.New(logging.Options{Path: logPath, Verbose: opts.Verbose})
	if err != nil {
		return nil, err
	}

	r := runner.New(logger)
	machines := machine.New(r)
	timeouts := config.LoadTimeouts()
	registry, err := cloud.Build(machines, creds, timeouts)
	if err != nil {
		flush()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	pctx := provisioning.NewContext(ctx, cfg, registry, r)
	pctx.Creds = creds
	pctx.Machines = machines
	pctx.Timeouts = timeouts

	closers := []func(){flush}
	if opts.MetricsAddr != "" {
		rec := metrics.New()
		pctx.Metrics = rec

		mctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := rec.Serve(mctx, opts.MetricsAddr); err != nil {
				log.Printf("[metrics] %v", err)
			}
		}()
		closers = append(closers, func() {
			cancel()
			<-done
		})
	}

	confirmer := prompt.New(opts.AutoApprove)
	return &session{
		pctx:    pctx,
		confirm: confirmer.Confirm,
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

func debugLogPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	dir, err := config.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, logging.DebugLogName), nil
}

func usedProviders(cfg *config.Config) []fleet.Provider {
	seen := map[fleet.Provider]bool{}
	var out []fleet.Provider
	for _, p := range append(cfg.Discovery.Providers(), cfg.Hosts.Providers()...) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// swarm returns the swarm master and the discovery endpoint of the running
// fleet.
func swarm(inv *fleet.Inventory) (fleet.Instance, string, error) {
	master, ok := inv.SwarmMaster()
	if !ok {
		return fleet.Instance{}, "", errNoCluster
	}
	endpoint, err := compute.FirstDiscovery(inv.Discovery())
	if err != nil {
		return fleet.Instance{}, "", err
	}
	return master, endpoint, nil
}
