// Package naming builds and parses instance names.
//
// Every instance managed by storm carries its identity in its name:
//
//	<prefix>-<provider>[-<location>]-<ordinal>-<suffix>
//
// The prefix decides the role ("consul" for discovery instances, "storm" for
// cluster instances). The location index is present only for providers that are
// configured with more than one placement, and the suffix is eight hex characters
// of a random UUID.
package naming
