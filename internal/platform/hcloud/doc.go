// Package hcloud wraps the Hetzner Cloud API for the parts docker-machine
// does not cover: per-server firewalls.
//
// Every server gets its own firewall, named after it, holding the management
// ports (SSH and the Docker engine) plus the ports storm opens. Calls that hit
// a locked resource are retried with exponential backoff using
// STORM_RETRY_MAX_ATTEMPTS and STORM_RETRY_INITIAL_DELAY; deletions are
// bounded by STORM_TIMEOUT_DESTROY.
package hcloud
