// Package compute launches instances across providers.
//
// Instances are built from the topology with names that encode provider,
// location and ordinal. Creates run as one batch with a per-provider cap on
// parallelism. Each create is staggered by its position among the provider's
// instances and opens its ports once the instance exists. A create that fails
// at any step destroys its instance again.
package compute
