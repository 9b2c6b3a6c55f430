// Package progress renders weighted completion of a batch.
//
// A Tracker is created per batch and handed explicitly to every task of that
// batch. Tasks report completed work with Advance; a ticker re-renders the
// line on its own schedule so elapsed time and ETA stay live between task
// completions. Finish must be called exactly once, usually deferred.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/imamik/storm/internal/ui/style"
)

const barWidth = 30

// Tracker accumulates weighted units for one batch.
type Tracker struct {
	label    string
	total    int64
	done     atomic.Int64
	out      io.Writer
	color    bool
	terminal bool
	interval time.Duration
	now      func() time.Time
	started  time.Time

	mu          sync.Mutex
	lastPercent int

	stop     chan struct{}
	stopped  sync.WaitGroup
	finished sync.Once
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval sets the ticker interval. Zero disables the ticker.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithColor enables lipgloss styling of the bar.
func WithColor(enabled bool) Option {
	return func(t *Tracker) { t.color = enabled }
}

// WithTerminal makes the tracker redraw one line in place. Without it every
// tick that changes the percentage prints a new line.
func WithTerminal(enabled bool) Option {
	return func(t *Tracker) { t.terminal = enabled }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Start begins tracking total units and starts the ticker.
func Start(out io.Writer, label string, total int, opts ...Option) *Tracker {
	t := &Tracker{
		label:       label,
		total:       int64(max(total, 0)),
		out:         out,
		interval:    time.Second,
		now:         time.Now,
		lastPercent: -1,
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.started = t.now()

	if t.interval > 0 {
		t.stopped.Add(1)
		go t.loop()
	}
	return t
}

func (t *Tracker) loop() {
	defer t.stopped.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Tick()
		case <-t.stop:
			return
		}
	}
}

// Advance records completed units. Safe for concurrent use and on a nil Tracker.
func (t *Tracker) Advance(units int) {
	if t == nil || units <= 0 {
		return
	}
	t.done.Add(int64(units))
}

// Tick re-renders the current state.
func (t *Tracker) Tick() {
	if t == nil {
		return
	}
	t.render(false)
}

// Finish stops the ticker and renders 100%. Only the first call has an effect.
func (t *Tracker) Finish() {
	if t == nil {
		return
	}
	t.finished.Do(func() {
		close(t.stop)
		t.stopped.Wait()
		t.render(true)
	})
}

// Done returns the completed units.
func (t *Tracker) Done() int {
	if t == nil {
		return 0
	}
	return int(t.done.Load())
}

// Total returns the units the batch was started with.
func (t *Tracker) Total() int {
	if t == nil {
		return 0
	}
	return int(t.total)
}

// Percent returns completion in the range 0..100.
func (t *Tracker) Percent() int {
	if t == nil || t.total == 0 {
		return 100
	}
	done := min(t.done.Load(), t.total)
	return int(done * 100 / t.total)
}

// Elapsed returns the time since Start.
func (t *Tracker) Elapsed() time.Duration {
	return t.now().Sub(t.started)
}

// ETA estimates the remaining time from the rate so far. It returns false
// until at least one unit has completed.
func (t *Tracker) ETA() (time.Duration, bool) {
	done := min(t.done.Load(), t.total)
	if done == 0 {
		return 0, false
	}
	elapsed := t.Elapsed()
	remaining := t.total - done
	return time.Duration(int64(elapsed) * remaining / done), true
}

func (t *Tracker) render(final bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	percent := t.Percent()
	if final {
		percent = 100
	}
	if !t.terminal && !final && percent == t.lastPercent {
		return
	}
	t.lastPercent = percent

	line := t.line(percent, final)
	switch {
	case t.terminal && final:
		fmt.Fprintf(t.out, "\r%s\n", line)
	case t.terminal:
		fmt.Fprintf(t.out, "\r%s", line)
	default:
		fmt.Fprintln(t.out, line)
	}
}

func (t *Tracker) line(percent int, final bool) string {
	filled := barWidth * percent / 100
	bar := style.Render(t.color, style.BarFull, strings.Repeat("#", filled)) +
		style.Render(t.color, style.BarEmpty, strings.Repeat("-", barWidth-filled))

	eta := "--:--:--"
	if final {
		eta = clock(0)
	} else if d, ok := t.ETA(); ok {
		eta = clock(d)
	}

	return fmt.Sprintf("%s %3d%% [%s] %s ETA %s", t.label, percent, bar, clock(t.Elapsed()), eta)
}

func clock(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
