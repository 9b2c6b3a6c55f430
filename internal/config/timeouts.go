package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timeout values.
// These values can be customized via environment variables.
type Timeouts struct {
	Batch             time.Duration // Deadline for bulk launch, bootstrap and prepare batches
	Destroy           time.Duration // Deadline for bulk stop and destroy batches
	Stagger           time.Duration // Delay per earlier instance of the same provider before a create
	Tick              time.Duration // Progress display refresh interval
	SSHConnect        time.Duration // Timeout for establishing SSH sessions
	RetryMaxAttempts  int           // Maximum number of retry attempts for cloud API calls
	RetryInitialDelay time.Duration // Initial delay between retries
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - STORM_TIMEOUT_BATCH (default: 300s)
//   - STORM_TIMEOUT_DESTROY (default: 30s)
//   - STORM_STAGGER (default: 1s)
//   - STORM_PROGRESS_TICK (default: 1s)
//   - STORM_TIMEOUT_SSH (default: 2m)
//   - STORM_RETRY_MAX_ATTEMPTS (default: 5)
//   - STORM_RETRY_INITIAL_DELAY (default: 1s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		Batch:             parseDuration("STORM_TIMEOUT_BATCH", 300*time.Second),
		Destroy:           parseDuration("STORM_TIMEOUT_DESTROY", 30*time.Second),
		Stagger:           parseDuration("STORM_STAGGER", 1*time.Second),
		Tick:              parseDuration("STORM_PROGRESS_TICK", 1*time.Second),
		SSHConnect:        parseDuration("STORM_TIMEOUT_SSH", 2*time.Minute),
		RetryMaxAttempts:  parseInt("STORM_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay: parseDuration("STORM_RETRY_INITIAL_DELAY", 1*time.Second),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
