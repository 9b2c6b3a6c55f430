package config

import (
	"fmt"
	"strings"
)

// Validate checks the topology for errors. It runs once, before any task is built.
func (c *Config) Validate() error {
	if c.Hosts.Total() == 0 {
		return fmt.Errorf("hosts: at least one cluster instance is required")
	}

	if err := validateGroups("discovery", c.Discovery); err != nil {
		return err
	}
	if err := validateGroups("hosts", c.Hosts); err != nil {
		return err
	}

	if c.LoadBalancers < 0 {
		return fmt.Errorf("load_balancers must not be negative, got %d", c.LoadBalancers)
	}
	if c.LoadBalancers > 0 && c.Certificate == "" {
		return fmt.Errorf("certificate is required when load_balancers > 0")
	}

	for _, name := range c.BundleNames() {
		if strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("deploy.%s: bundle name must not contain path separators", name)
		}
		for svc, n := range c.Deploy[name] {
			if n < 0 {
				return fmt.Errorf("deploy.%s.%s: scale must not be negative, got %d", name, svc, n)
			}
		}
	}

	for p, n := range c.Concurrency {
		if n < 0 {
			return fmt.Errorf("concurrency.%s must not be negative, got %d", p, n)
		}
	}

	for _, port := range c.ExtraPorts {
		if port.Protocol != "tcp" && port.Protocol != "udp" {
			return fmt.Errorf("extra_ports: invalid protocol %q for port %d", port.Protocol, port.Port)
		}
		if port.Port < 1 || port.Port > 65535 {
			return fmt.Errorf("extra_ports: port %d out of range", port.Port)
		}
	}

	return nil
}

func validateGroups(section string, groups ProviderGroups) error {
	for _, p := range groups.Providers() {
		for i, pl := range groups[p] {
			if err := pl.Validate(); err != nil {
				return fmt.Errorf("%s.%s[%d]: %w", section, p, i, err)
			}
		}
	}
	return nil
}
