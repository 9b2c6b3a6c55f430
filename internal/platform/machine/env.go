package machine

import (
	"context"
	"fmt"
	"strings"
)

// Environment points docker tooling at a remote engine.
type Environment struct {
	TLSVerify string
	CertPath  string
	Host      string
	Name      string
}

// Vars returns the variables to export for docker and docker-compose.
func (e Environment) Vars() map[string]string {
	vars := map[string]string{
		"DOCKER_TLS_VERIFY": e.TLSVerify,
		"DOCKER_CERT_PATH":  e.CertPath,
		"DOCKER_HOST":       e.Host,
	}
	if e.Name != "" {
		vars["DOCKER_MACHINE_NAME"] = e.Name
	}
	return vars
}

// Exports renders the environment as shell export lines.
func (e Environment) Exports() string {
	var b strings.Builder
	for _, k := range []string{"DOCKER_TLS_VERIFY", "DOCKER_HOST", "DOCKER_CERT_PATH", "DOCKER_MACHINE_NAME"} {
		if v := e.Vars()[k]; v != "" {
			fmt.Fprintf(&b, "export %s=%q\n", k, v)
		}
	}
	return b.String()
}

// Env returns the engine environment of a machine. With swarm set, the
// environment targets the swarm master endpoint instead of the local engine.
func (c *Client) Env(ctx context.Context, name string, swarm bool) (Environment, error) {
	args := []string{"env", "--shell", "bash"}
	if swarm {
		args = append(args, "--swarm")
	}
	args = append(args, name)

	out, err := c.exec(ctx, args...)
	if err != nil {
		return Environment{}, fmt.Errorf("failed to get environment of %s: %w", name, err)
	}
	return parseEnv(out)
}

func parseEnv(out string) (Environment, error) {
	var env Environment
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "export ") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "DOCKER_TLS_VERIFY":
			env.TLSVerify = value
		case "DOCKER_CERT_PATH":
			env.CertPath = value
		case "DOCKER_HOST":
			env.Host = value
		case "DOCKER_MACHINE_NAME":
			env.Name = value
		}
	}
	if env.Host == "" {
		return Environment{}, fmt.Errorf("docker-machine env returned no DOCKER_HOST")
	}
	return env, nil
}
