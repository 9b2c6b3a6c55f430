// Package keygen generates the shared secrets used during a deployment.
//
// The discovery cluster encrypts its gossip traffic with a symmetric key that
// every member must be started with. The key is generated once per deployment,
// held in memory for the duration of bootstrap and never written to disk.
package keygen
