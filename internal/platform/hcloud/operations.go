package hcloud

import (
	"context"
	"fmt"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/storm/internal/util/retry"
)

// withRetry runs op until it succeeds, fails with a non-transient error or
// the retry budget from config.Timeouts is spent.
func (c *RealClient) withRetry(ctx context.Context, op func(context.Context) error) error {
	return retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil || transient(err) {
			return err
		}
		return retry.Fatal(err)
	},
		retry.WithMaxRetries(c.timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(c.timeouts.RetryInitialDelay))
}

// wait blocks until every action has finished.
func (c *RealClient) wait(ctx context.Context, what string, actions []*hcloud.Action) error {
	if len(actions) == 0 {
		return nil
	}
	if err := c.client.Action.WaitFor(ctx, actions...); err != nil {
		return fmt.Errorf("failed waiting for %s: %w", what, err)
	}
	return nil
}
