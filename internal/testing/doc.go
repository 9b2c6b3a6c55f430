// Package testing provides test doubles and builders shared by unit tests:
//   - ConfigBuilder: Fluent builder for creating test topologies
//   - FakeAdapter: In-memory cloud provider with failure injection
//   - FakeRunner: Command Runner that records commands and scripts replies
//   - RecordingObserver: provisioning.Observer that keeps every event and status line
//   - NewProvisioningContext: provisioning.Context wired to fakes
//
// Usage:
//
//	cfg := testing.NewConfigBuilder().
//	    WithDiscovery(fleet.AWS, 3).
//	    WithHosts(fleet.DigitalOcean, 5).
//	    Build()
//
//	aws := testing.NewFakeAdapter(fleet.AWS)
//	aws.FailCreate("storm-aws-0-deadbeef")
package testing
