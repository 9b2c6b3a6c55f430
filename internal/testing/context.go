package testing

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/imamik/storm/internal/cloud"
	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/platform/machine"
	"github.com/imamik/storm/internal/provisioning"
	"github.com/imamik/storm/internal/runner"
)

// TestTimeouts are short deadlines with no stagger and no progress ticker.
func TestTimeouts() *config.Timeouts {
	return &config.Timeouts{
		Batch:             5 * time.Second,
		Destroy:           5 * time.Second,
		SSHConnect:        time.Second,
		RetryMaxAttempts:  1,
		RetryInitialDelay: time.Millisecond,
	}
}

// NewProvisioningContext returns a provisioning.Context over cfg, r and the
// given adapters, with progress output discarded.
func NewProvisioningContext(t *testing.T, cfg *config.Config, r runner.Runner, adapters ...cloud.Adapter) (*provisioning.Context, *RecordingObserver) {
	t.Helper()
	return NewProvisioningContextFrom(TestContext(t), cfg, r, adapters...)
}

// NewProvisioningContextFrom is NewProvisioningContext over an existing context,
// for suites that have no *testing.T.
func NewProvisioningContextFrom(parent context.Context, cfg *config.Config, r runner.Runner, adapters ...cloud.Adapter) (*provisioning.Context, *RecordingObserver) {
	if r == nil {
		r = NewFakeRunner()
	}

	observer := NewRecordingObserver()
	ctx := provisioning.NewContext(parent, cfg, cloud.NewRegistry(adapters...), r)
	ctx.Creds = &config.Credentials{}
	ctx.Machines = machine.New(r)
	ctx.Observer = observer
	ctx.Timeouts = TestTimeouts()
	ctx.Out = io.Discard
	ctx.Color = false
	ctx.Terminal = false
	return ctx, observer
}
