// Package machine drives the docker-machine CLI, which owns the lifecycle of
// every instance: creation with provider drivers, listing, stop, removal and
// the TLS environment used to talk to each instance's engine.
package machine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/imamik/storm/internal/runner"
)

const binary = "docker-machine"

// Machine is one row of `docker-machine ls`.
type Machine struct {
	Name   string
	URL    string
	State  string
	Driver string
}

// Address returns the host part of the engine URL, or "" when the machine has none.
func (m Machine) Address() string {
	if m.URL == "" {
		return ""
	}
	u, err := url.Parse(m.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Details is the subset of `docker-machine inspect` storm needs.
type Details struct {
	Name       string
	DriverName string
	IPAddress  string
	SSHUser    string
	SSHPort    int
	SSHKeyPath string
}

// Client wraps docker-machine.
type Client struct {
	run runner.Runner
}

// New returns a Client that executes docker-machine through r.
func New(r runner.Runner) *Client {
	return &Client{run: r}
}

func (c *Client) exec(ctx context.Context, args ...string) (string, error) {
	return c.run.Run(ctx, runner.Command{Name: binary, Args: args})
}

// Create provisions a machine with the given driver and flags.
func (c *Client) Create(ctx context.Context, name, driver string, flags []string) error {
	args := append([]string{"create", "--driver", driver}, flags...)
	args = append(args, name)
	if _, err := c.exec(ctx, args...); err != nil {
		return fmt.Errorf("failed to create machine %s: %w", name, err)
	}
	return nil
}

// Remove force-removes machines, including their cloud resources.
func (c *Client) Remove(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	args := append([]string{"rm", "-f", "-y"}, names...)
	if _, err := c.exec(ctx, args...); err != nil {
		return fmt.Errorf("failed to remove %s: %w", strings.Join(names, ", "), err)
	}
	return nil
}

// Stop stops machines without removing them.
func (c *Client) Stop(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	args := append([]string{"stop"}, names...)
	if _, err := c.exec(ctx, args...); err != nil {
		return fmt.Errorf("failed to stop %s: %w", strings.Join(names, ", "), err)
	}
	return nil
}

// List returns every machine docker-machine knows about.
func (c *Client) List(ctx context.Context) ([]Machine, error) {
	out, err := c.exec(ctx, "ls", "--format", "{{.Name}}\t{{.URL}}\t{{.State}}\t{{.DriverName}}")
	if err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	return parseList(out), nil
}

func parseList(out string) []Machine {
	var machines []Machine
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		for len(fields) < 4 {
			fields = append(fields, "")
		}
		machines = append(machines, Machine{
			Name:   strings.TrimSpace(fields[0]),
			URL:    strings.TrimSpace(fields[1]),
			State:  strings.TrimSpace(fields[2]),
			Driver: strings.TrimSpace(fields[3]),
		})
	}
	return machines
}

// IP returns the public address of a machine.
func (c *Client) IP(ctx context.Context, name string) (string, error) {
	out, err := c.exec(ctx, "ip", name)
	if err != nil {
		return "", fmt.Errorf("failed to get ip of %s: %w", name, err)
	}
	return strings.TrimSpace(out), nil
}

// Inspect returns connection details of a machine.
func (c *Client) Inspect(ctx context.Context, name string) (*Details, error) {
	out, err := c.exec(ctx, "inspect", name)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", name, err)
	}
	return parseInspect(out)
}

func parseInspect(out string) (*Details, error) {
	var raw struct {
		Name       string
		DriverName string
		Driver     struct {
			IPAddress  string
			SSHUser    string
			SSHPort    int
			SSHKeyPath string
		}
	}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse inspect output: %w", err)
	}
	d := &Details{
		Name:       raw.Name,
		DriverName: raw.DriverName,
		IPAddress:  raw.Driver.IPAddress,
		SSHUser:    raw.Driver.SSHUser,
		SSHPort:    raw.Driver.SSHPort,
		SSHKeyPath: raw.Driver.SSHKeyPath,
	}
	if d.SSHPort == 0 {
		d.SSHPort = 22
	}
	return d, nil
}

// SSH runs a shell command on a machine.
func (c *Client) SSH(ctx context.Context, name, command string) (string, error) {
	out, err := c.exec(ctx, "ssh", name, command)
	if err != nil {
		return "", fmt.Errorf("ssh %s: %w", name, err)
	}
	return out, nil
}
