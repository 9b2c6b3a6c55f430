package provisioning

import "fmt"

// Outcome is the result of a guarded step.
type Outcome[T any] struct {
	Value T
	Err   error

	// RolledBack is set when the rollback ran; RollbackErr holds its error.
	RolledBack  bool
	RollbackErr error
}

// Failed reports whether the step failed.
func (o Outcome[T]) Failed() bool {
	return o.Err != nil
}

// Guard runs step and, when it fails, runs rollback with the failure before
// returning. The rollback error never replaces the step error.
func Guard[T any](ctx *Context, scope string, step func() (T, error), rollback func(cause error) error) Outcome[T] {
	value, err := step()
	if err == nil {
		return Outcome[T]{Value: value}
	}

	out := Outcome[T]{Value: value, Err: err}
	if rollback == nil {
		return out
	}

	ctx.Observer.Printf("[%s] rolling back: %v", scope, err)
	out.RolledBack = true
	if rbErr := rollback(err); rbErr != nil {
		out.RollbackErr = fmt.Errorf("rollback of %s failed: %w", scope, rbErr)
		ctx.Observer.Printf("[%s] %v", scope, out.RollbackErr)
	}
	return out
}
