package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInventory_PartitionsByRole(t *testing.T) {
	t.Parallel()

	inv := NewInventory([]Listing{
		{Name: "storm-aws-0-aaaaaaaa", Address: "10.0.0.10", Provider: AWS},
		{Name: "consul-aws-0-bbbbbbbb", Address: "10.0.0.1", Provider: AWS},
		{Name: "consul-azure-1-cccccccc", Address: "10.0.0.2", Provider: Azure},
		{Name: "default", Address: "192.168.99.100"},
		{Name: "storm-aws-1-dddddddd", Address: "10.0.0.11", Provider: AWS},
	})

	require.Equal(t, 4, inv.Len())
	assert.True(t, inv.HasDiscovery())

	discovery := inv.Discovery()
	require.Len(t, discovery, 2)
	assert.Equal(t, "consul-aws-0-bbbbbbbb", discovery[0].Name)
	assert.Equal(t, "consul-azure-1-cccccccc", discovery[1].Name)

	cluster := inv.Cluster()
	require.Len(t, cluster, 2)
	assert.Equal(t, "storm-aws-0-aaaaaaaa", cluster[0].Name)

	assert.Equal(t, []string{
		"consul-aws-0-bbbbbbbb", "consul-azure-1-cccccccc",
		"storm-aws-0-aaaaaaaa", "storm-aws-1-dddddddd",
	}, inv.Names())

	assert.Equal(t, map[string]string{
		"consul-aws-0-bbbbbbbb":   "10.0.0.1",
		"consul-azure-1-cccccccc": "10.0.0.2",
	}, inv.Addresses(RoleDiscovery))

	_, ok := inv.Get("default")
	assert.False(t, ok)
}

func TestNewInventory_IsAProjection(t *testing.T) {
	t.Parallel()

	listings := []Listing{{Name: "storm-hetzner-0-aaaaaaaa", Address: "1.2.3.4", Provider: Hetzner}}
	inv := NewInventory(listings)

	listings[0].Address = "changed"
	cluster := inv.Cluster()
	cluster[0].IP = "mutated"

	inst, ok := inv.Get("storm-hetzner-0-aaaaaaaa")
	require.True(t, ok)
	assert.Equal(t, "1.2.3.4", inst.IP)
	assert.Equal(t, "1.2.3.4", inv.Cluster()[0].IP)
}

func TestInventory_SwarmMaster(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		listings []Listing
		want     string
	}{
		{
			name: "lowest ordinal regardless of listing order",
			listings: []Listing{
				{Name: "storm-aws-2-cccccccc", Provider: AWS},
				{Name: "storm-aws-0-aaaaaaaa", Provider: AWS},
				{Name: "storm-aws-1-bbbbbbbb", Provider: AWS},
			},
			want: "storm-aws-0-aaaaaaaa",
		},
		{
			name: "first location wins",
			listings: []Listing{
				{Name: "storm-aws-1-0-bbbbbbbb", Provider: AWS},
				{Name: "storm-aws-0-1-cccccccc", Provider: AWS},
				{Name: "storm-aws-0-0-aaaaaaaa", Provider: AWS},
			},
			want: "storm-aws-0-0-aaaaaaaa",
		},
		{
			name: "earliest listed on a tie",
			listings: []Listing{
				{Name: "storm-hetzner-0-bbbbbbbb", Provider: Hetzner},
				{Name: "storm-aws-0-aaaaaaaa", Provider: AWS},
			},
			want: "storm-hetzner-0-bbbbbbbb",
		},
		{
			name:     "discovery only",
			listings: []Listing{{Name: "consul-aws-0-aaaaaaaa", Provider: AWS}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			master, ok := NewInventory(tt.listings).SwarmMaster()
			assert.Equal(t, tt.want != "", ok)
			assert.Equal(t, tt.want, master.Name)
		})
	}
}

func TestNewInventory_Empty(t *testing.T) {
	t.Parallel()

	inv := NewInventory(nil)
	assert.Equal(t, 0, inv.Len())
	assert.False(t, inv.HasDiscovery())
	assert.Empty(t, inv.Names())
}

func TestCountByProvider(t *testing.T) {
	t.Parallel()

	counts := CountByProvider([]Instance{
		{Name: "a", Provider: DigitalOcean},
		{Name: "b", Provider: AWS},
		{Name: "c", Provider: AWS},
	})

	assert.Equal(t, []ProviderCount{{Provider: AWS, Count: 2}, {Provider: DigitalOcean, Count: 1}}, counts)
}

func TestRoleOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RoleDiscovery, RoleOf("consul-aws-0-12345678"))
	assert.Equal(t, RoleCluster, RoleOf("storm-aws-0-12345678"))
	assert.Equal(t, "discovery", RoleDiscovery.String())
}

func TestParseProvider(t *testing.T) {
	t.Parallel()

	p, err := ParseProvider(" AWS ")
	require.NoError(t, err)
	assert.Equal(t, AWS, p)
	assert.Equal(t, "DigitalOcean", DigitalOcean.DisplayName())

	_, err = ParseProvider("gcp")
	assert.ErrorContains(t, err, "unsupported provider")
}
