// Package main is the entry point for the storm CLI.
//
// storm provisions Docker Swarm clusters across AWS, Azure, DigitalOcean and
// Hetzner Cloud. It launches a consul discovery cluster, joins the swarm
// hosts to it, and deploys registrator, the load balancers and the service
// bundles described in storm.yml.
//
// Commands: deploy, launch, ls, ps, env, stop, rm, teardown, compose, doctor.
//
// For detailed usage information, run:
//
//	storm --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/storm/cmd/storm/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
