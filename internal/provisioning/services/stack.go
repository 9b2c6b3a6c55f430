package services

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/imamik/storm/internal/provisioning"
)

// Compose project directories under the services directory and their scaled services.
const (
	RegistratorProject = "registrator"
	RegistratorService = "registrator"
	HAProxyProject     = "haproxy"
	HAProxyService     = "load-balancer"
)

// Registrator deploys one registrator per cluster instance.
type Registrator struct {
	Target
	Replicas int
}

// Name implements the provisioning.Phase interface.
func (r *Registrator) Name() string {
	return "registrator"
}

// Provision implements the provisioning.Phase interface.
func (r *Registrator) Provision(ctx *provisioning.Context) error {
	dir := filepath.Join(ctx.Config.ServicesDir, RegistratorProject)
	ctx.Observer.Printf("[%s] scaling %s to %d", r.Name(), RegistratorService, r.Replicas)
	return r.deploy(ctx, dir, map[string]int{RegistratorService: r.Replicas}, []string{RegistratorService})
}

// HAProxy deploys the load balancer at the configured replica count.
type HAProxy struct {
	Target
}

// Name implements the provisioning.Phase interface.
func (h *HAProxy) Name() string {
	return "haproxy"
}

// Provision implements the provisioning.Phase interface.
func (h *HAProxy) Provision(ctx *provisioning.Context) error {
	n := ctx.Config.LoadBalancers
	if n == 0 {
		ctx.Observer.Printf("[%s] no load balancers configured, skipping", h.Name())
		return nil
	}
	dir := filepath.Join(ctx.Config.ServicesDir, HAProxyProject)
	ctx.Observer.Printf("[%s] scaling %s to %d", h.Name(), HAProxyService, n)
	return h.deploy(ctx, dir, map[string]int{HAProxyService: n}, []string{HAProxyService})
}

// Bundles deploys every user bundle from its directory under the deploy directory.
type Bundles struct {
	Target
}

// Name implements the provisioning.Phase interface.
func (b *Bundles) Name() string {
	return "bundles"
}

// Provision implements the provisioning.Phase interface. A failing bundle does
// not stop the others.
func (b *Bundles) Provision(ctx *provisioning.Context) error {
	var errs []error
	for _, name := range ctx.Config.BundleNames() {
		bundle := ctx.Config.Deploy[name]
		dir := filepath.Join(ctx.Config.DeployDir, name)

		ctx.Observer.Printf("[%s] deploying %s from %s", b.Name(), name, dir)
		if err := b.deploy(ctx, dir, bundle, bundle.Services()); err != nil {
			ctx.Observer.Status(provisioning.LevelError, "bundle %s: %v", name, err)
			errs = append(errs, fmt.Errorf("bundle %s: %w", name, err))
			continue
		}
		ctx.Observer.Status(provisioning.LevelSuccess, "bundle %s deployed", name)
	}
	return errors.Join(errs...)
}
