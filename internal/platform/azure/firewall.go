// Package azure opens instance ports on Azure network security groups.
//
// docker-machine's azure driver attaches a security group named
// "<machine>-firewall" to every virtual machine it creates. Each opened port
// becomes one inbound allow rule on that group.
package azure

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/network/mgmt/2021-05-01/network"
	"github.com/Azure/go-autorest/autorest/azure/auth"
	"github.com/Azure/go-autorest/autorest/to"

	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/util/retry"
)

// firstRulePriority leaves room below for the rules docker-machine creates.
const firstRulePriority = 2000

// RuleClient creates or updates one security rule and waits for completion.
type RuleClient interface {
	Apply(ctx context.Context, resourceGroup, securityGroup string, rule network.SecurityRule) error
}

type securityRulesClient struct {
	client network.SecurityRulesClient
}

func (c *securityRulesClient) Apply(ctx context.Context, resourceGroup, securityGroup string, rule network.SecurityRule) error {
	future, err := c.client.CreateOrUpdate(ctx, resourceGroup, securityGroup, to.String(rule.Name), rule)
	if err != nil {
		return fmt.Errorf("failed to create security rule: %w", err)
	}
	if err := future.WaitForCompletionRef(ctx, c.client.Client); err != nil {
		return fmt.Errorf("failed to get security rule creation response: %w", err)
	}
	return nil
}

// NewRuleClient authenticates a service principal and returns a RuleClient.
func NewRuleClient(creds config.AzureCredentials) (RuleClient, error) {
	authorizer, err := auth.NewClientCredentialsConfig(creds.ClientID, creds.ClientSecret, creds.TenantID).Authorizer()
	if err != nil {
		return nil, fmt.Errorf("failed to create authorizer for security rules: %w", err)
	}
	client := network.NewSecurityRulesClient(creds.SubscriptionID)
	client.Authorizer = authorizer
	return &securityRulesClient{client: client}, nil
}

// Firewall opens ports on per-machine security groups.
type Firewall struct {
	rules     RuleClient
	retryOpts []retry.Option
}

// NewFirewall returns a Firewall applying rules through rules.
func NewFirewall(rules RuleClient, retryOpts ...retry.Option) *Firewall {
	return &Firewall{rules: rules, retryOpts: retryOpts}
}

// SecurityGroupName returns the security group docker-machine attaches to a machine.
func SecurityGroupName(machine string) string {
	return machine + "-firewall"
}

// OpenPorts adds an inbound allow rule per port on the machine's security group.
func (f *Firewall) OpenPorts(ctx context.Context, machine string, placement *config.AzurePlacement, ports []config.Port) error {
	group := SecurityGroupName(machine)

	for i, port := range ports {
		rule := inboundRule(port, int32(firstRulePriority+i))
		err := retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
			return f.rules.Apply(ctx, placement.ResourceGroup, group, rule)
		}, f.retryOpts...)
		if err != nil {
			return fmt.Errorf("failed to open %s on %s: %w", port, group, err)
		}
	}

	return nil
}

func inboundRule(port config.Port, priority int32) network.SecurityRule {
	protocol := network.SecurityRuleProtocolTCP
	if port.Protocol == "udp" {
		protocol = network.SecurityRuleProtocolUDP
	}

	return network.SecurityRule{
		Name: to.StringPtr(fmt.Sprintf("storm-%s-%d", strings.ToLower(port.Protocol), port.Port)),
		SecurityRulePropertiesFormat: &network.SecurityRulePropertiesFormat{
			Protocol:                 protocol,
			SourcePortRange:          to.StringPtr("*"),
			DestinationPortRange:     to.StringPtr(strconv.Itoa(port.Port)),
			SourceAddressPrefix:      to.StringPtr("*"),
			DestinationAddressPrefix: to.StringPtr("*"),
			Access:                   network.SecurityRuleAccessAllow,
			Direction:                network.SecurityRuleDirectionInbound,
			Priority:                 to.Int32Ptr(priority),
		},
	}
}
