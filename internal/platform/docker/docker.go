// Package docker wraps the docker and docker-compose CLIs. Every call goes
// through a runner scoped to one engine (or to the swarm master) with the
// environment returned by docker-machine.
package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/imamik/storm/internal/runner"
)

// Container describes a detached container to start.
type Container struct {
	Name    string
	Image   string
	Publish []string // docker -p values
	Network string
	Restart string
	Args    []string // passed to the image entrypoint
}

func (c Container) runArgs() []string {
	args := []string{"run", "-d", "--name", c.Name}
	if c.Restart != "" {
		args = append(args, "--restart", c.Restart)
	}
	if c.Network != "" {
		args = append(args, "--net", c.Network)
	}
	for _, p := range c.Publish {
		args = append(args, "-p", p)
	}
	args = append(args, c.Image)
	return append(args, c.Args...)
}

// Engine runs docker commands against one engine.
type Engine struct {
	run runner.Runner
}

// NewEngine returns an Engine. r is normally a runner.Scoped carrying the
// engine's DOCKER_* environment.
func NewEngine(r runner.Runner) *Engine {
	return &Engine{run: r}
}

// Run starts a detached container and returns its ID.
func (e *Engine) Run(ctx context.Context, c Container) (string, error) {
	out, err := e.run.Run(ctx, runner.Command{Name: "docker", Args: c.runArgs()})
	if err != nil {
		return "", fmt.Errorf("failed to start container %s: %w", c.Name, err)
	}
	return strings.TrimSpace(out), nil
}

// ContainerIP returns the bridge address of a container, or "" for containers
// without one (for example host networking).
func (e *Engine) ContainerIP(ctx context.Context, name string) (string, error) {
	out, err := e.run.Run(ctx, runner.Command{
		Name: "docker",
		Args: []string{"inspect", "--format", "{{ .NetworkSettings.IPAddress }}", name},
	})
	if err != nil {
		return "", fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	return strings.TrimSpace(out), nil
}

// PS lists containers on the engine.
func (e *Engine) PS(ctx context.Context, all bool) (string, error) {
	args := []string{"ps"}
	if all {
		args = append(args, "-a")
	}
	return e.run.Run(ctx, runner.Command{Name: "docker", Args: args})
}

// Compose runs docker-compose projects against an engine or swarm.
type Compose struct {
	run runner.Runner
}

// NewCompose returns a Compose bound to r.
func NewCompose(r runner.Runner) *Compose {
	return &Compose{run: r}
}

func (c *Compose) exec(ctx context.Context, dir string, env map[string]string, args ...string) (string, error) {
	return c.run.Run(ctx, runner.Command{Name: "docker-compose", Args: args, Dir: dir, Env: env})
}

// Up starts a project in the background.
func (c *Compose) Up(ctx context.Context, dir string, env map[string]string) error {
	if _, err := c.exec(ctx, dir, env, "up", "-d"); err != nil {
		return fmt.Errorf("failed to start compose project in %s: %w", dir, err)
	}
	return nil
}

// Scale sets the replica count of one service.
func (c *Compose) Scale(ctx context.Context, dir string, env map[string]string, service string, replicas int) error {
	if _, err := c.exec(ctx, dir, env, "scale", service+"="+strconv.Itoa(replicas)); err != nil {
		return fmt.Errorf("failed to scale %s to %d: %w", service, replicas, err)
	}
	return nil
}

// Passthrough runs arbitrary docker-compose arguments.
func (c *Compose) Passthrough(ctx context.Context, dir string, env map[string]string, args ...string) (string, error) {
	return c.exec(ctx, dir, env, args...)
}
