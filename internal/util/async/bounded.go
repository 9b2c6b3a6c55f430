package async

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrTimedOut marks a task that had not reported back when the batch deadline elapsed.
var ErrTimedOut = errors.New("timed out waiting for task")

// Job is one unit of work for RunBounded.
type Job[T any] struct {
	ID string
	// Group selects a per-group concurrency cap; empty means no group cap.
	Group string
	Func  func(context.Context) (T, error)
}

// Result is the outcome of one job.
type Result[T any] struct {
	ID       string
	Group    string
	Value    T
	Err      error
	Started  bool
	TimedOut bool
	Duration time.Duration
}

// OK reports whether the job completed without error.
func (r Result[T]) OK() bool {
	return r.Err == nil && !r.TimedOut
}

// Limits bounds a RunBounded call.
type Limits struct {
	// Workers caps jobs running at the same time. Zero or negative means one
	// worker per job.
	Workers int
	// Groups caps jobs of the same Group running at the same time.
	Groups map[string]int
	// Deadline is how long the caller waits for results. Zero means no deadline.
	Deadline time.Duration
}

// Report is the collected outcome of a batch, in submission order.
type Report[T any] struct {
	Results []Result[T]
}

// Failures returns the results that errored or timed out.
func (r Report[T]) Failures() []Result[T] {
	var out []Result[T]
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Succeeded returns the IDs of jobs that completed without error.
func (r Report[T]) Succeeded() []string {
	var out []string
	for _, res := range r.Results {
		if res.OK() {
			out = append(out, res.ID)
		}
	}
	return out
}

// TimedOut returns the IDs of jobs still outstanding at the deadline.
func (r Report[T]) TimedOut() []string {
	var out []string
	for _, res := range r.Results {
		if res.TimedOut {
			out = append(out, res.ID)
		}
	}
	return out
}

// Err joins a *TaskFailure per failed job and a *BatchTimeout when any job
// timed out. It returns nil when every job succeeded.
func (r Report[T]) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil && !res.TimedOut {
			errs = append(errs, &TaskFailure{ID: res.ID, Err: res.Err})
		}
	}
	if pending := r.TimedOut(); len(pending) > 0 {
		errs = append(errs, &BatchTimeout{Pending: pending})
	}
	return errors.Join(errs...)
}

// TaskFailure is the failure of one job. It never aborts sibling jobs.
type TaskFailure struct {
	ID  string
	Err error
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.ID, e.Err)
}

func (e *TaskFailure) Unwrap() error {
	return e.Err
}

// BatchTimeout reports jobs still outstanding when the deadline elapsed.
type BatchTimeout struct {
	Pending []string
}

func (e *BatchTimeout) Error() string {
	pending := append([]string(nil), e.Pending...)
	sort.Strings(pending)
	return fmt.Sprintf("deadline elapsed with %d task(s) outstanding: %s", len(pending), strings.Join(pending, ", "))
}

func (e *BatchTimeout) Is(target error) bool {
	return target == ErrTimedOut
}

// RunBounded runs jobs on min(limits.Workers, len(jobs)) workers.
//
// Jobs are dispatched in submission order. A failing job never cancels the
// others. When the deadline elapses RunBounded stops dispatching, stops
// waiting and returns: jobs that had not reported are marked TimedOut, and
// jobs already running keep running in the background with the caller's
// context. Cancelling ctx has the same effect as the deadline.
func RunBounded[T any](ctx context.Context, jobs []Job[T], limits Limits) Report[T] {
	n := len(jobs)
	report := Report[T]{Results: make([]Result[T], n)}
	if n == 0 {
		return report
	}
	for i, job := range jobs {
		report.Results[i] = Result[T]{ID: job.ID, Group: job.Group}
	}

	workers := limits.Workers
	if workers <= 0 || workers > n {
		workers = n
	}

	groupSlots := make(map[string]chan struct{}, len(limits.Groups))
	for group, limit := range limits.Groups {
		if limit > 0 {
			groupSlots[group] = make(chan struct{}, limit)
		}
	}

	type done struct {
		index  int
		result Result[T]
	}

	queue := make(chan int, n)
	for i := range jobs {
		queue <- i
	}
	close(queue)

	// Buffered so late workers never block after the caller stopped listening.
	results := make(chan done, n)
	started := make(chan int, n)
	stop := make(chan struct{})

	for range workers {
		go func() {
			for i := range queue {
				select {
				case <-stop:
					return
				default:
				}

				job := jobs[i]
				slot := groupSlots[job.Group]
				if slot != nil {
					select {
					case slot <- struct{}{}:
					case <-stop:
						return
					}
				}

				started <- i
				begin := time.Now()
				value, err := job.Func(ctx)
				if slot != nil {
					<-slot
				}

				results <- done{index: i, result: Result[T]{
					ID:       job.ID,
					Group:    job.Group,
					Value:    value,
					Err:      err,
					Started:  true,
					Duration: time.Since(begin),
				}}
			}
		}()
	}

	var deadline <-chan time.Time
	if limits.Deadline > 0 {
		timer := time.NewTimer(limits.Deadline)
		defer timer.Stop()
		deadline = timer.C
	}

	reported := make([]bool, n)
	remaining := n
	for remaining > 0 {
		select {
		case d := <-results:
			report.Results[d.index] = d.result
			reported[d.index] = true
			remaining--
		case i := <-started:
			report.Results[i].Started = true
		case <-deadline:
			close(stop)
			return markOutstanding(report, reported, started)
		case <-ctx.Done():
			close(stop)
			return markOutstanding(report, reported, started)
		}
	}
	close(stop)

	return report
}

func markOutstanding[T any](report Report[T], reported []bool, started chan int) Report[T] {
drain:
	for {
		select {
		case i := <-started:
			report.Results[i].Started = true
		default:
			break drain
		}
	}
	for i := range report.Results {
		if !reported[i] {
			report.Results[i].TimedOut = true
			report.Results[i].Err = ErrTimedOut
		}
	}
	return report
}
