// Package services deploys the compose projects that run on the swarm:
// the registrator, the HAProxy load balancer and the user bundles.
//
// Every compose call targets the swarm master with the environment returned by
// `docker-machine env --swarm` plus DISCOVERY_IP. The load balancer needs its
// TLS certificate on every cluster instance first; it is copied over SSH with
// the key docker-machine generated for the instance.
package services
