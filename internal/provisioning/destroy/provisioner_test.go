package destroy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/provisioning"
	stormtest "github.com/imamik/storm/internal/testing"
	"github.com/imamik/storm/internal/util/async"
)

func TestProvisionerName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "destroy", NewProvisioner(nil).Name())
	assert.Equal(t, "stop", NewStopper(nil).Name())
}

func TestProvision_DestroysEveryInstanceOnce(t *testing.T) {
	t.Parallel()

	aws := stormtest.NewFakeAdapter(fleet.AWS).Seed("storm-aws-0-aaaaaaaa", "storm-aws-1-bbbbbbbb")
	do := stormtest.NewFakeAdapter(fleet.DigitalOcean).Seed("consul-digitalocean-0-cccccccc")
	ctx, observer := stormtest.NewProvisioningContext(t, stormtest.NewConfigBuilder().Build(), nil, aws, do)

	inv, err := ctx.Cloud.Inventory(ctx)
	require.NoError(t, err)

	p := NewProvisioner(append(inv.Discovery(), inv.Cluster()...))
	require.NoError(t, p.Provision(ctx))

	assert.ElementsMatch(t, []string{"storm-aws-0-aaaaaaaa", "storm-aws-1-bbbbbbbb"}, aws.Destroyed())
	assert.Equal(t, []string{"consul-digitalocean-0-cccccccc"}, do.Destroyed())
	assert.Len(t, p.Done(), 3)
	assert.Len(t, observer.Events(provisioning.EventInstanceDestroyed), 3)

	inv, err = ctx.Cloud.Inventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.Len())
}

func TestProvision_FailureIsCollected(t *testing.T) {
	t.Parallel()

	aws := stormtest.NewFakeAdapter(fleet.AWS).
		Seed("storm-aws-0-aaaaaaaa", "storm-aws-1-bbbbbbbb").
		FailDestroy("storm-aws-1-bbbbbbbb")
	ctx, _ := stormtest.NewProvisioningContext(t, stormtest.NewConfigBuilder().Build(), nil, aws)

	p := NewProvisioner([]fleet.Instance{{Name: "storm-aws-0-aaaaaaaa"}, {Name: "storm-aws-1-bbbbbbbb"}})
	err := p.Provision(ctx)

	require.Error(t, err)
	assert.True(t, IsCleanupError(err))
	assert.ErrorIs(t, err, stormtest.ErrInjected)
	assert.Contains(t, err.Error(), "storm-aws-1-bbbbbbbb")
	assert.Equal(t, []string{"storm-aws-0-aaaaaaaa"}, p.Done())
	assert.Len(t, aws.Destroyed(), 2)
}

func TestProvision_DeadlineReportsOutstanding(t *testing.T) {
	t.Parallel()

	aws := stormtest.NewFakeAdapter(fleet.AWS).Seed("storm-aws-0-aaaaaaaa")
	aws.Delay = time.Second
	ctx, _ := stormtest.NewProvisioningContext(t, stormtest.NewConfigBuilder().Build(), nil, aws)
	ctx.Timeouts.Destroy = 20 * time.Millisecond

	err := NewProvisioner([]fleet.Instance{{Name: "storm-aws-0-aaaaaaaa", Provider: fleet.AWS}}).Provision(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, async.ErrTimedOut)
}

func TestStopper(t *testing.T) {
	t.Parallel()

	hz := stormtest.NewFakeAdapter(fleet.Hetzner).Seed("storm-hetzner-0-aaaaaaaa")
	ctx, _ := stormtest.NewProvisioningContext(t, stormtest.NewConfigBuilder().Build(), nil, hz)

	require.NoError(t, NewStopper([]fleet.Instance{{Name: "storm-hetzner-0-aaaaaaaa"}}).Provision(ctx))
	assert.Equal(t, []string{"storm-hetzner-0-aaaaaaaa"}, hz.Stopped())
	assert.Empty(t, hz.Destroyed())
}

func TestProvision_UnknownProvider(t *testing.T) {
	t.Parallel()

	ctx, _ := stormtest.NewProvisioningContext(t, stormtest.NewConfigBuilder().Build(), nil)
	err := NewProvisioner([]fleet.Instance{{Name: "default"}}).Provision(ctx)
	assert.True(t, IsCleanupError(err))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	inv := fleet.NewInventory([]fleet.Listing{{Name: "storm-aws-0-aaaaaaaa", Provider: fleet.AWS}})
	found, missing := Resolve(inv, []string{"storm-aws-0-aaaaaaaa", "nope"})
	require.Len(t, found, 1)
	assert.Equal(t, fleet.AWS, found[0].Provider)
	assert.Equal(t, []string{"nope"}, missing)
}
