package discovery

// BootstrapExpect is the quorum the first members wait for before electing a leader.
const BootstrapExpect = 3

// Peer is a discovery instance and its routable host address.
type Peer struct {
	Name    string
	Address string
}

// Entry is the join configuration of one instance.
type Entry struct {
	Name string
	// Advertise is the WAN address the instance announces.
	Advertise string
	// LocalJoin lists the addresses of every earlier instance in plan order.
	// A plan starts with host addresses; the sequencer replaces them with the
	// targets the instance was started with: the container address of each
	// earlier peer that started, or its host address when that is unknown.
	LocalJoin []string
	// WANJoin lists every other peer's host address.
	WANJoin         []string
	BootstrapExpect int
}

// JoinChainPlan is the ordered bootstrap configuration of a discovery cluster.
type JoinChainPlan struct {
	Entries []Entry
}

// BuildJoinChainPlan orders peers as given. Entry 0 has no local-join targets;
// entry i joins entries 0..i-1.
func BuildJoinChainPlan(peers []Peer) JoinChainPlan {
	plan := JoinChainPlan{Entries: make([]Entry, len(peers))}
	for i, peer := range peers {
		entry := Entry{
			Name:            peer.Name,
			Advertise:       peer.Address,
			BootstrapExpect: BootstrapExpect,
		}
		for j, other := range peers {
			if j < i {
				entry.LocalJoin = append(entry.LocalJoin, other.Address)
			}
			if j != i && other.Address != peer.Address {
				entry.WANJoin = append(entry.WANJoin, other.Address)
			}
		}
		plan.Entries[i] = entry
	}
	return plan
}

// Names returns the entry names in order.
func (p JoinChainPlan) Names() []string {
	names := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		names[i] = e.Name
	}
	return names
}
