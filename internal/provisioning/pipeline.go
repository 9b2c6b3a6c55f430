package provisioning

import (
	"fmt"
	"time"
)

// Phase defines the interface for a provisioning phase.
type Phase interface {
	// Name returns the human-readable name of this phase.
	Name() string

	// Provision executes the provisioning logic for this phase.
	Provision(ctx *Context) error
}

// RunPhase executes one phase with start, failure and completion logging.
func RunPhase(ctx *Context, phase Phase) error {
	start := time.Now()
	name := phase.Name()

	LogPhaseStart(ctx.Observer, name)
	ctx.Observer.Printf("[%s] starting", name)

	if err := phase.Provision(ctx); err != nil {
		ctx.Observer.Printf("[%s] failed: %v", name, err)
		LogPhaseFailed(ctx.Observer, name, err)
		return fmt.Errorf("%s phase failed: %w", name, err)
	}

	elapsed := time.Since(start)
	ctx.Observer.Printf("[%s] completed in %v", name, elapsed.Round(time.Millisecond))
	LogPhaseComplete(ctx.Observer, name, elapsed)
	return nil
}

// PhaseFunc adapts a function to Phase.
type PhaseFunc struct {
	Label string
	Func  func(ctx *Context) error
}

func (p PhaseFunc) Name() string                 { return p.Label }
func (p PhaseFunc) Provision(ctx *Context) error { return p.Func(ctx) }
