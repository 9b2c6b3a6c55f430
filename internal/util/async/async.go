package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task is a named operation for RunParallel.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunParallel starts every task at once and waits for all of them. Failures
// are joined in task order, each prefixed with its task name, so the result
// does not depend on which goroutine finished first.
func RunParallel(ctx context.Context, tasks []Task) error {
	errs := make([]error, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Go(func() {
			if err := task.Func(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", task.Name, err)
			}
		})
	}
	wg.Wait()

	return errors.Join(errs...)
}
