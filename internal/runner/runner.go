// Package runner executes external commands for the provisioning phases.
//
// Output is streamed line by line into a logr.Logger while the command runs,
// stdout is captured and returned, and a command is treated as failed when it
// exits non-zero or prints a line containing "Error". The docker-machine and
// docker-compose tools report several failures that way while still exiting 0.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"
)

// errorMarker classifies an output line as a failure.
const errorMarker = "Error"

// Command is one external invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  map[string]string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// Failure is returned when a command exits non-zero or reports an error line.
type Failure struct {
	Command  string
	ExitCode int
	LastLine string
	Err      error
}

func (f *Failure) Error() string {
	if f.LastLine == "" {
		return fmt.Sprintf("%s: exit code %d", f.Command, f.ExitCode)
	}
	return fmt.Sprintf("%s: exit code %d: %s", f.Command, f.ExitCode, f.LastLine)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Exec runs commands with os/exec.
type Exec struct {
	log logr.Logger
	env map[string]string
}

// Option configures Exec.
type Option func(*Exec)

// WithBaseEnv adds environment variables to every command.
func WithBaseEnv(env map[string]string) Option {
	return func(e *Exec) {
		for k, v := range env {
			e.env[k] = v
		}
	}
}

// New returns an Exec that logs every output line to log.
func New(log logr.Logger, opts ...Option) *Exec {
	e := &Exec{log: log, env: make(map[string]string)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes cmd and returns its stdout.
func (e *Exec) Run(ctx context.Context, cmd Command) (string, error) {
	log := e.log.WithValues("command", cmd.String())
	log.V(1).Info("running", "dir", cmd.Dir)

	// #nosec G204 - commands are assembled from fixed tool names and validated config
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = mergeEnv(os.Environ(), e.env, cmd.Env)

	stdout, err := c.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open stdout of %s: %w", cmd.Name, err)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open stderr of %s: %w", cmd.Name, err)
	}

	if err := c.Start(); err != nil {
		return "", &Failure{Command: cmd.String(), ExitCode: -1, LastLine: err.Error(), Err: err}
	}

	var (
		mu        sync.Mutex
		captured  strings.Builder
		lastLine  string
		errorLine string
		wg        sync.WaitGroup
	)

	stream := func(r io.Reader, capture bool) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			isError := strings.Contains(line, errorMarker)

			mu.Lock()
			if capture {
				captured.WriteString(line)
				captured.WriteByte('\n')
			}
			if strings.TrimSpace(line) != "" {
				lastLine = line
			}
			if isError && errorLine == "" {
				errorLine = line
			}
			mu.Unlock()

			if isError {
				log.Error(nil, line)
			} else {
				log.V(1).Info(line)
			}
		}
	}

	wg.Add(2)
	go stream(stdout, true)
	go stream(stderr, false)
	wg.Wait()

	waitErr := c.Wait()
	output := captured.String()

	if waitErr != nil {
		failure := &Failure{Command: cmd.String(), ExitCode: -1, LastLine: lastLine, Err: waitErr}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			failure.ExitCode = exitErr.ExitCode()
		}
		if errorLine != "" {
			failure.LastLine = errorLine
		}
		return output, failure
	}
	if errorLine != "" {
		return output, &Failure{Command: cmd.String(), ExitCode: 0, LastLine: errorLine}
	}

	return output, nil
}

// mergeEnv layers overrides onto a base environment; later layers win.
func mergeEnv(base []string, layers ...map[string]string) []string {
	merged := make(map[string]string, len(base))
	order := make([]string, 0, len(base))
	for _, kv := range base {
		k, v, _ := strings.Cut(kv, "=")
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = v
	}

	var extra []string
	for _, layer := range layers {
		for k, v := range layer {
			if _, seen := merged[k]; !seen {
				extra = append(extra, k)
			}
			merged[k] = v
		}
	}
	sort.Strings(extra)
	order = append(order, dedupe(extra)...)

	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+merged[k])
	}
	return out
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
