package naming

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// DiscoveryPrefix marks instances that run the discovery service.
	DiscoveryPrefix = "consul"
	// LegacyDiscoveryPrefix is accepted when parsing names created by older tooling.
	LegacyDiscoveryPrefix = "discovery"
	// ClusterPrefix marks instances that join the swarm cluster.
	ClusterPrefix = "storm"

	suffixLength = 8
)

// NoLocation is passed as the location index for single-placement providers.
const NoLocation = -1

// Parts is the decoded form of an instance name.
type Parts struct {
	Prefix   string
	Provider string
	Location int // NoLocation when absent
	Ordinal  int
	Suffix   string
}

// Discovery returns a new discovery instance name.
func Discovery(provider string, location, ordinal int) string {
	return build(DiscoveryPrefix, provider, location, ordinal, Suffix())
}

// Cluster returns a new cluster instance name.
func Cluster(provider string, location, ordinal int) string {
	return build(ClusterPrefix, provider, location, ordinal, Suffix())
}

// Suffix returns a short random suffix.
func Suffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLength]
}

func build(prefix, provider string, location, ordinal int, suffix string) string {
	if location == NoLocation {
		return fmt.Sprintf("%s-%s-%d-%s", prefix, provider, ordinal, suffix)
	}
	return fmt.Sprintf("%s-%s-%d-%d-%s", prefix, provider, location, ordinal, suffix)
}

// Parse decodes an instance name created by Discovery or Cluster.
func Parse(name string) (Parts, error) {
	fields := strings.Split(name, "-")
	if len(fields) != 4 && len(fields) != 5 {
		return Parts{}, fmt.Errorf("invalid instance name %q: expected 4 or 5 dash-separated fields", name)
	}

	parts := Parts{
		Prefix:   fields[0],
		Provider: fields[1],
		Location: NoLocation,
		Suffix:   fields[len(fields)-1],
	}

	ordinal, err := strconv.Atoi(fields[len(fields)-2])
	if err != nil {
		return Parts{}, fmt.Errorf("invalid ordinal in instance name %q: %w", name, err)
	}
	parts.Ordinal = ordinal

	if len(fields) == 5 {
		location, err := strconv.Atoi(fields[2])
		if err != nil {
			return Parts{}, fmt.Errorf("invalid location in instance name %q: %w", name, err)
		}
		parts.Location = location
	}

	return parts, nil
}

// IsDiscovery reports whether the name belongs to a discovery instance.
func IsDiscovery(name string) bool {
	return strings.HasPrefix(name, DiscoveryPrefix+"-") || strings.HasPrefix(name, LegacyDiscoveryPrefix+"-")
}

// IsManaged reports whether the name was created by storm.
func IsManaged(name string) bool {
	return IsDiscovery(name) || strings.HasPrefix(name, ClusterPrefix+"-")
}
