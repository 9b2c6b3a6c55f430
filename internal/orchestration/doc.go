// Package orchestration drives a deployment from an empty fleet to running services.
//
// The Pipeline is a state machine over the phases in internal/provisioning:
//
//	Idle → DiscoveryLaunching → DiscoveryBootstrapped → ClusterLaunching →
//	RegistratorDeployed → HAProxyPrepared → HAProxyDeployed → ServicesDeployed
//
// Any state may move to TearingDown, which always ends in Idle.
//
// # Usage
//
//	pipeline := orchestration.NewPipeline(confirm)
//	if err := pipeline.Run(pctx); err != nil {
//		var abort *orchestration.PipelineAbort
//		...
//	}
//
// An existing discovery cluster is reused, so re-running a deployment never
// launches a second one. Only the discovery launch is guarded by a rollback: a
// failure there tears down the discovery instances it created.
package orchestration
