// Package async provides the concurrency primitives provisioning is built on.
//
// [RunParallel] starts a handful of independent operations at once and joins
// their errors. [RunBounded] is the batch primitive: a fixed-size worker pool
// that drains a queue of tasks in submission order, isolates failures, honours
// per-group caps and gives up waiting at a deadline without cancelling work
// that is already in flight.
package async
