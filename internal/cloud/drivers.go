package cloud

import (
	"fmt"
	"strconv"

	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/fleet"
	"github.com/imamik/storm/internal/platform/machine"
)

// DriverName returns the docker-machine driver for a provider.
func DriverName(p fleet.Provider) string {
	switch p {
	case fleet.AWS:
		return "amazonec2"
	case fleet.Azure:
		return "azure"
	case fleet.DigitalOcean:
		return "digitalocean"
	default:
		return "hetzner"
	}
}

// driverFlags returns the docker-machine create flags for a placement,
// including credentials, followed by the swarm flags when the CreateSpec joins one.
func driverFlags(creds *config.Credentials, spec CreateSpec) ([]string, error) {
	var flags []string

	switch pl := spec.Placement.(type) {
	case *config.AWSPlacement:
		if creds.AWS == nil {
			return nil, fmt.Errorf("%w for aws", config.ErrMissingCredentials)
		}
		flags = []string{
			"--amazonec2-access-key", creds.AWS.AccessKeyID,
			"--amazonec2-secret-key", creds.AWS.SecretAccessKey,
			"--amazonec2-region", pl.Region,
			"--amazonec2-zone", pl.Zone,
			"--amazonec2-instance-type", pl.InstanceType,
			"--amazonec2-root-size", strconv.Itoa(pl.RootSize),
			"--amazonec2-security-group", pl.SecurityGroup,
		}
		flags = appendIf(flags, "--amazonec2-vpc-id", pl.VPC)
		flags = appendIf(flags, "--amazonec2-subnet-id", pl.Subnet)
		flags = appendIf(flags, "--amazonec2-ami", pl.AMI)

	case *config.AzurePlacement:
		if creds.Azure == nil {
			return nil, fmt.Errorf("%w for azure", config.ErrMissingCredentials)
		}
		flags = []string{
			"--azure-subscription-id", creds.Azure.SubscriptionID,
			"--azure-client-id", creds.Azure.ClientID,
			"--azure-client-secret", creds.Azure.ClientSecret,
			"--azure-resource-group", pl.ResourceGroup,
			"--azure-location", pl.Location,
			"--azure-size", pl.Size,
		}
		flags = appendIf(flags, "--azure-image", pl.Image)

	case *config.DigitalOceanPlacement:
		if creds.DigitalOceanToken == "" {
			return nil, fmt.Errorf("%w for digitalocean", config.ErrMissingCredentials)
		}
		flags = []string{
			"--digitalocean-access-token", creds.DigitalOceanToken,
			"--digitalocean-region", pl.Region,
			"--digitalocean-size", pl.Size,
		}
		flags = appendIf(flags, "--digitalocean-image", pl.Image)

	case *config.HetznerPlacement:
		if creds.HetznerToken == "" {
			return nil, fmt.Errorf("%w for hetzner", config.ErrMissingCredentials)
		}
		flags = []string{
			"--hetzner-api-token", creds.HetznerToken,
			"--hetzner-server-type", pl.ServerType,
			"--hetzner-server-location", pl.Location,
			"--hetzner-image", pl.Image,
		}

	default:
		return nil, fmt.Errorf("unsupported placement %T", spec.Placement)
	}

	if spec.DiscoveryEndpoint != "" {
		flags = append(flags, machine.SwarmFlags(spec.DiscoveryEndpoint, spec.SwarmMaster)...)
	}
	return flags, nil
}

func appendIf(flags []string, flag, value string) []string {
	if value == "" {
		return flags
	}
	return append(flags, flag, value)
}
