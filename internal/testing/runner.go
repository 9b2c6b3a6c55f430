package testing

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/imamik/storm/internal/runner"
)

// Reply scripts the outcome of commands whose rendered form contains Match.
type Reply struct {
	Match  string
	Output string
	Err    error
}

// RecordedCommand is a command FakeRunner received, with the environment it ran in.
type RecordedCommand struct {
	runner.Command
	Line string
}

// FakeRunner records every command and answers with the first matching Reply.
// Unmatched commands succeed with empty output. It is safe for concurrent use.
type FakeRunner struct {
	mu       sync.Mutex
	replies  []Reply
	commands []RecordedCommand
}

// NewFakeRunner returns a FakeRunner with replies.
func NewFakeRunner(replies ...Reply) *FakeRunner {
	return &FakeRunner{replies: replies}
}

// On adds a reply.
func (r *FakeRunner) On(match, output string, err error) *FakeRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, Reply{Match: match, Output: output, Err: err})
	return r
}

func (r *FakeRunner) Run(_ context.Context, cmd runner.Command) (string, error) {
	line := cmd.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, RecordedCommand{Command: cmd, Line: line})
	for _, reply := range r.replies {
		if strings.Contains(line, reply.Match) {
			return reply.Output, reply.Err
		}
	}
	return "", nil
}

// Commands returns every recorded command.
func (r *FakeRunner) Commands() []RecordedCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.commands)
}

// Lines returns the rendered commands containing substr.
func (r *FakeRunner) Lines(substr string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.commands {
		if strings.Contains(c.Line, substr) {
			out = append(out, c.Line)
		}
	}
	return out
}
