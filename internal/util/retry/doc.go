// Package retry provides exponential backoff retry logic for transient failures.
//
// [WithExponentialBackoff] retries an operation with configurable attempts,
// initial delay, maximum delay and multiplier. It wraps the cloud API calls used
// to open firewall ports and the SSH dials used for certificate transfer.
// Errors wrapped with [Fatal] stop the loop immediately.
package retry
