// Package cloud provides one Adapter per provider. Adapters create, list,
// stop and destroy instances through docker-machine and open ports through
// the provider's own firewall API.
package cloud
