package provisioning

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/metrics"
	"github.com/imamik/storm/internal/ui/progress"
	"github.com/imamik/storm/internal/util/async"
)

// Operation is what a task does to its instance.
type Operation string

const (
	OpCreate  Operation = "create"
	OpDestroy Operation = "destroy"
	OpStop    Operation = "stop"
	OpRun     Operation = "run"
)

// Task weights. A create reports 1 when it starts, 7 once the instance exists
// and 2 once its ports are open.
const (
	WeightCreateStart  = 1
	WeightCreateLaunch = 7
	WeightCreatePorts  = 2
	WeightCreate       = WeightCreateStart + WeightCreateLaunch + WeightCreatePorts
	WeightDefault      = 10
)

// Progress is a task's share of the batch tracker. Advance never moves the
// tracker past the task's weight.
type Progress interface {
	Advance(units int)
}

// Task is one weighted unit of work on one instance.
type Task struct {
	Instance fleet.Instance
	Op       Operation
	Weight   int
	Run      func(ctx context.Context, p Progress) error
}

// ID identifies the task in reports.
func (t Task) ID() string {
	return t.Instance.Name
}

// Batch is a set of tasks run under one deadline and one progress tracker.
type Batch struct {
	Phase    string
	Tasks    []Task
	Deadline time.Duration

	// Workers bounds overall parallelism. Groups bounds it per provider.
	// Zero values mean one worker per task and no provider caps.
	Workers int
	Groups  map[string]int
}

// LimitByProvider caps parallelism at min(cap, n) per provider, where cap is
// the provider's configured concurrency and n its task count.
func (b *Batch) LimitByProvider(cfg *config.Config) {
	counts := make(map[fleet.Provider]int)
	for _, t := range b.Tasks {
		counts[t.Instance.Provider]++
	}

	b.Groups = make(map[string]int, len(counts))
	b.Workers = 0
	for p, n := range counts {
		limit := cfg.ConcurrencyFor(p)
		b.Groups[string(p)] = limit
		b.Workers += min(limit, n)
	}
}

// TotalWeight returns the tracker total for the batch.
func (b *Batch) TotalWeight() int {
	total := 0
	for _, t := range b.Tasks {
		total += t.Weight
	}
	return total
}

// Report is the per-task outcome of a batch.
type Report = async.Report[struct{}]

// RunBatch runs every task of b. One task's failure never stops its siblings,
// and tasks still running at the deadline are reported as timed out. The
// tracker is finished on every return path.
func RunBatch(ctx *Context, b Batch) Report {
	unlock := ctx.lockBatch()
	defer unlock()

	start := time.Now()
	tracker := progress.Start(ctx.output(), b.Phase, b.TotalWeight(),
		progress.WithInterval(ctx.timeouts().Tick),
		progress.WithColor(ctx.Color),
		progress.WithTerminal(ctx.Terminal),
	)
	defer tracker.Finish()

	jobs := make([]async.Job[struct{}], len(b.Tasks))
	for i, task := range b.Tasks {
		s := &share{tracker: tracker, weight: task.Weight}
		jobs[i] = async.Job[struct{}]{
			ID:    task.ID(),
			Group: string(task.Instance.Provider),
			Func: func(jctx context.Context) (struct{}, error) {
				defer s.complete()
				return struct{}{}, task.Run(jctx, s)
			},
		}
	}

	report := async.RunBounded(ctx, jobs, async.Limits{
		Workers:  b.Workers,
		Groups:   b.Groups,
		Deadline: b.Deadline,
	})
	tracker.Finish()

	for _, res := range report.Results {
		switch {
		case res.TimedOut:
			ctx.Metrics.RecordTask(b.Phase, metrics.ResultTimedOut)
		case res.Err != nil:
			ctx.Metrics.RecordTask(b.Phase, metrics.ResultFailure)
		default:
			ctx.Metrics.RecordTask(b.Phase, metrics.ResultSuccess)
		}
	}
	ctx.Metrics.RecordBatch(b.Phase, time.Since(start))

	reportFailures(ctx, b.Phase, report)
	ctx.Observer.Printf("[%s] %d/%d tasks succeeded in %v",
		b.Phase, len(report.Succeeded()), len(report.Results), time.Since(start).Round(time.Millisecond))

	return report
}

func reportFailures(ctx *Context, phase string, report Report) {
	for _, res := range report.Failures() {
		if res.TimedOut {
			ctx.Observer.Printf("[%s] %s still running at deadline", phase, res.ID)
			ctx.Observer.Event(Event{Type: EventTaskTimedOut, Phase: phase, Resource: res.ID, Message: "still running at deadline"})
			continue
		}
		ctx.Observer.Printf("[%s] %s failed: %v", phase, res.ID, res.Err)
		ctx.Observer.Event(Event{Type: EventTaskFailed, Phase: phase, Resource: res.ID, Message: res.Err.Error()})
		ctx.Observer.Status(LevelError, "%s: %v", res.ID, res.Err)
	}

	var timeout *async.BatchTimeout
	if errors.As(report.Err(), &timeout) {
		ctx.Observer.Status(LevelWarning, "%s: %v", phase, timeout)
	}
}

// share caps a task's tracker advances at its weight.
type share struct {
	tracker *progress.Tracker
	weight  int

	mu   sync.Mutex
	used int
}

func (s *share) Advance(units int) {
	s.mu.Lock()
	units = min(units, s.weight-s.used)
	if units <= 0 {
		s.mu.Unlock()
		return
	}
	s.used += units
	s.mu.Unlock()

	s.tracker.Advance(units)
}

// complete advances whatever the task has not reported, so failed tasks still
// count toward completion.
func (s *share) complete() {
	s.Advance(s.weight)
}
