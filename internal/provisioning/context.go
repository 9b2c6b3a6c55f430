package provisioning

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/imamik/storm/internal/cloud"
	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/metrics"
	"github.com/imamik/storm/internal/platform/machine"
	"github.com/imamik/storm/internal/runner"
	"github.com/imamik/storm/internal/ui/style"
)

// Context wraps all dependencies needed for a provisioning phase.
type Context struct {
	context.Context
	Config   *config.Config
	Creds    *config.Credentials
	Cloud    *cloud.Registry
	Runner   runner.Runner
	Machines *machine.Client
	Observer Observer
	Timeouts *config.Timeouts
	Metrics  *metrics.Recorder

	// Out receives progress bars. Color and Terminal control their rendering.
	Out      io.Writer
	Color    bool
	Terminal bool

	// batch serializes RunBatch so one progress tracker is live at a time.
	batch *sync.Mutex
}

// NewContext creates a new provisioning context writing to stdout.
func NewContext(
	ctx context.Context,
	cfg *config.Config,
	registry *cloud.Registry,
	r runner.Runner,
) *Context {
	terminal := style.IsTerminal(os.Stdout)
	return &Context{
		Context:  ctx,
		Config:   cfg,
		Cloud:    registry,
		Runner:   r,
		Machines: machine.New(r),
		Observer: NewConsoleObserver(terminal),
		Timeouts: config.LoadTimeouts(),
		Out:      os.Stdout,
		Color:    terminal,
		Terminal: terminal,
		batch:    &sync.Mutex{},
	}
}

// WithContext returns a shallow copy bound to ctx. The copy shares the batch lock.
func (c *Context) WithContext(ctx context.Context) *Context {
	cp := *c
	cp.Context = ctx
	if cp.batch == nil {
		cp.batch = &sync.Mutex{}
		c.batch = cp.batch
	}
	return &cp
}

func (c *Context) lockBatch() func() {
	if c.batch == nil {
		c.batch = &sync.Mutex{}
	}
	c.batch.Lock()
	return c.batch.Unlock
}

func (c *Context) output() io.Writer {
	if c.Out == nil {
		return io.Discard
	}
	return c.Out
}

func (c *Context) timeouts() *config.Timeouts {
	if c.Timeouts == nil {
		c.Timeouts = config.LoadTimeouts()
	}
	return c.Timeouts
}
