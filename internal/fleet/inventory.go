package fleet

import (
	"sort"

	"github.com/imamik/storm/internal/util/naming"
)

// Listing is one row returned by a provider adapter's list operation.
type Listing struct {
	Name     string
	Address  string
	Provider Provider
	State    string
}

// Inventory is a point-in-time projection of existing instances partitioned by role.
// Building one never has side effects; phases re-derive it after every launch batch.
type Inventory struct {
	discovery []Instance
	cluster   []Instance
	byName    map[string]Instance
}

// NewInventory projects listings into an Inventory. Listings for instances not
// created by storm are ignored. Input order is preserved within each role.
func NewInventory(listings []Listing) *Inventory {
	inv := &Inventory{byName: make(map[string]Instance, len(listings))}

	for _, l := range listings {
		if !naming.IsManaged(l.Name) {
			continue
		}
		if _, dup := inv.byName[l.Name]; dup {
			continue
		}

		inst := Instance{Name: l.Name, Provider: l.Provider, IP: l.Address}
		inv.byName[l.Name] = inst

		if inst.Role() == RoleDiscovery {
			inv.discovery = append(inv.discovery, inst)
		} else {
			inv.cluster = append(inv.cluster, inst)
		}
	}

	return inv
}

// Discovery returns discovery instances in stable order.
func (inv *Inventory) Discovery() []Instance {
	return append([]Instance(nil), inv.discovery...)
}

// Cluster returns cluster instances in stable order.
func (inv *Inventory) Cluster() []Instance {
	return append([]Instance(nil), inv.cluster...)
}

// SwarmMaster returns the cluster instance launched as swarm master: the one
// with the lowest location and ordinal. Ties across providers go to the
// earliest listed.
func (inv *Inventory) SwarmMaster() (Instance, bool) {
	var master Instance
	var best naming.Parts
	found := false
	for _, inst := range inv.cluster {
		parts, err := naming.Parse(inst.Name)
		if err != nil {
			continue
		}
		if !found || parts.Location < best.Location ||
			(parts.Location == best.Location && parts.Ordinal < best.Ordinal) {
			master, best, found = inst, parts, true
		}
	}
	return master, found
}

// Get looks up an instance by name.
func (inv *Inventory) Get(name string) (Instance, bool) {
	inst, ok := inv.byName[name]
	return inst, ok
}

// Names returns all instance names, discovery first.
func (inv *Inventory) Names() []string {
	names := make([]string, 0, len(inv.byName))
	for _, inst := range inv.discovery {
		names = append(names, inst.Name)
	}
	for _, inst := range inv.cluster {
		names = append(names, inst.Name)
	}
	return names
}

// Len returns the number of instances in the inventory.
func (inv *Inventory) Len() int {
	return len(inv.byName)
}

// HasDiscovery reports whether at least one discovery instance exists.
func (inv *Inventory) HasDiscovery() bool {
	return len(inv.discovery) > 0
}

// Addresses maps instance name to address for the given role.
func (inv *Inventory) Addresses(role Role) map[string]string {
	src := inv.cluster
	if role == RoleDiscovery {
		src = inv.discovery
	}
	out := make(map[string]string, len(src))
	for _, inst := range src {
		out[inst.Name] = inst.IP
	}
	return out
}

// ProviderCount is the number of instances a provider hosts.
type ProviderCount struct {
	Provider Provider
	Count    int
}

// CountByProvider summarizes instances of one role per provider, sorted by provider.
func CountByProvider(instances []Instance) []ProviderCount {
	counts := make(map[Provider]int)
	for _, inst := range instances {
		counts[inst.Provider]++
	}

	out := make([]ProviderCount, 0, len(counts))
	for p, n := range counts {
		out = append(out, ProviderCount{Provider: p, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
