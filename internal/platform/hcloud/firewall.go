package hcloud

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/storm/internal/config"
)

// managedLabel marks firewalls created by storm.
var managedLabel = map[string]string{"managed-by": "storm"}

// managementPorts stay open on every server.
var managementPorts = []config.Port{
	{Protocol: "tcp", Port: 22},
	{Protocol: "tcp", Port: 2376},
	{Protocol: "tcp", Port: 3376},
}

// FirewallName returns the firewall created for a server.
func FirewallName(server string) string {
	return server + "-storm"
}

// EnsureFirewall returns the firewall called name holding exactly rules. An
// existing firewall has its rules replaced.
func (c *RealClient) EnsureFirewall(ctx context.Context, name string, rules []hcloud.FirewallRule) (*hcloud.Firewall, error) {
	var fw *hcloud.Firewall
	err := c.withRetry(ctx, func(ctx context.Context) error {
		existing, _, err := c.client.Firewall.GetByName(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to look up firewall %s: %w", name, err)
		}
		if existing != nil {
			actions, _, err := c.client.Firewall.SetRules(ctx, existing, hcloud.FirewallSetRulesOpts{Rules: rules})
			if err != nil {
				return fmt.Errorf("failed to update firewall %s: %w", name, err)
			}
			fw = existing
			return c.wait(ctx, "firewall "+name, actions)
		}

		res, _, err := c.client.Firewall.Create(ctx, hcloud.FirewallCreateOpts{
			Name:   name,
			Rules:  rules,
			Labels: managedLabel,
		})
		if err != nil {
			return fmt.Errorf("failed to create firewall %s: %w", name, err)
		}
		fw = res.Firewall
		return c.wait(ctx, "firewall "+name, res.Actions)
	})
	if err != nil {
		return nil, err
	}
	return fw, nil
}

// ApplyFirewall attaches fw to the named server.
func (c *RealClient) ApplyFirewall(ctx context.Context, fw *hcloud.Firewall, serverName string) error {
	return c.withRetry(ctx, func(ctx context.Context) error {
		server, _, err := c.client.Server.GetByName(ctx, serverName)
		if err != nil {
			return fmt.Errorf("failed to get server %s: %w", serverName, err)
		}
		if server == nil {
			return fmt.Errorf("server %s not found", serverName)
		}

		actions, _, err := c.client.Firewall.ApplyResources(ctx, fw, []hcloud.FirewallResource{{
			Type:   hcloud.FirewallResourceTypeServer,
			Server: &hcloud.FirewallResourceServer{ID: server.ID},
		}})
		if IsAlreadyApplied(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to apply firewall %s: %w", fw.Name, err)
		}
		return c.wait(ctx, "firewall "+fw.Name, actions)
	})
}

// DeleteFirewall deletes the firewall with the given name. A missing firewall
// is not an error.
func (c *RealClient) DeleteFirewall(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Destroy)
	defer cancel()

	return c.withRetry(ctx, func(ctx context.Context) error {
		fw, _, err := c.client.Firewall.GetByName(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to look up firewall %s: %w", name, err)
		}
		if fw == nil {
			return nil
		}
		if _, err := c.client.Firewall.Delete(ctx, fw); err != nil && !IsNotFound(err) {
			return fmt.Errorf("failed to delete firewall %s: %w", name, err)
		}
		return nil
	})
}

// OpenPorts ensures a firewall for the server allowing ports plus management
// traffic, and attaches it.
func (c *RealClient) OpenPorts(ctx context.Context, server string, ports []config.Port) error {
	fw, err := c.EnsureFirewall(ctx, FirewallName(server), firewallRules(ports))
	if err != nil {
		return err
	}
	return c.ApplyFirewall(ctx, fw, server)
}

func firewallRules(ports []config.Port) []hcloud.FirewallRule {
	seen := make(map[config.Port]bool)
	var all []config.Port
	for _, p := range append(append([]config.Port{}, managementPorts...), ports...) {
		if !seen[p] {
			seen[p] = true
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Protocol != all[j].Protocol {
			return all[i].Protocol < all[j].Protocol
		}
		return all[i].Port < all[j].Port
	})

	anyIPv4 := net.IPNet{IP: net.IPv4zero, Mask: net.CIDRMask(0, 32)}
	anyIPv6 := net.IPNet{IP: net.IPv6zero, Mask: net.CIDRMask(0, 128)}

	rules := make([]hcloud.FirewallRule, 0, len(all))
	for _, p := range all {
		proto := hcloud.FirewallRuleProtocolTCP
		if p.Protocol == "udp" {
			proto = hcloud.FirewallRuleProtocolUDP
		}
		rules = append(rules, hcloud.FirewallRule{
			Direction:   hcloud.FirewallRuleDirectionIn,
			Protocol:    proto,
			Port:        hcloud.Ptr(strconv.Itoa(p.Port)),
			SourceIPs:   []net.IPNet{anyIPv4, anyIPv6},
			Description: hcloud.Ptr("storm " + p.String()),
		})
	}
	return rules
}

// ClosePorts deletes the firewall created for the server.
func (c *RealClient) ClosePorts(ctx context.Context, server string) error {
	return c.DeleteFirewall(ctx, FirewallName(server))
}
