package runner

import "context"

// Scoped pins environment overrides to every command it runs. It is used to
// point docker and docker-compose at one remote engine or at the swarm master.
type Scoped struct {
	Runner
	env map[string]string
}

// WithEnv returns a Runner that applies env to every command. Variables set on
// the command itself still take precedence.
func WithEnv(r Runner, env map[string]string) *Scoped {
	pinned := make(map[string]string, len(env))
	for k, v := range env {
		pinned[k] = v
	}
	return &Scoped{Runner: r, env: pinned}
}

// Env returns a copy of the pinned overrides.
func (s *Scoped) Env() map[string]string {
	out := make(map[string]string, len(s.env))
	for k, v := range s.env {
		out[k] = v
	}
	return out
}

// Run implements Runner.
func (s *Scoped) Run(ctx context.Context, cmd Command) (string, error) {
	env := s.Env()
	for k, v := range cmd.Env {
		env[k] = v
	}
	cmd.Env = env
	return s.Runner.Run(ctx, cmd)
}
