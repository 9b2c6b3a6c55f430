// Package provisioning provides shared types and the batch scheduler used by
// every provisioning phase.
//
// # Subpackages
//
//   - compute/: instance launch with staggered creates and compensating destroys
//   - discovery/: join-chain plan and bootstrap sequencer for the discovery cluster
//   - services/: registrator, load balancer and user bundle deployment
//   - destroy/: batch stop and destroy
//
// # Core Types
//
// Context carries configuration, the cloud adapters, the command runner and the observer.
// Phase defines a provisioning step with Name() and Provision() methods.
// Task is one weighted unit of work; RunBatch runs a set of tasks with bounded
// parallelism, a deadline and a progress tracker.
package provisioning
