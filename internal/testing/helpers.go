package testing

import (
	"context"
	"testing"
	"time"
)

// testDeadline bounds every test context, well above the batch deadline in
// TestTimeouts.
const testDeadline = 30 * time.Second

// TestContext returns a context cancelled when t finishes or testDeadline elapses.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), testDeadline)
	t.Cleanup(cancel)
	return ctx
}
