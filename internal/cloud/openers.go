package cloud

import (
	"context"
	"fmt"

	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/platform/aws"
	"github.com/imamik/storm/internal/platform/azure"
	"github.com/imamik/storm/internal/platform/digitalocean"
	"github.com/imamik/storm/internal/platform/hcloud"
)

type awsPorts struct {
	fw *aws.Firewall
}

func (o awsPorts) OpenPorts(ctx context.Context, _ string, placement config.Placement, ports []config.Port) error {
	pl, ok := placement.(*config.AWSPlacement)
	if !ok {
		return fmt.Errorf("expected aws placement, got %T", placement)
	}
	return o.fw.OpenPorts(ctx, pl, ports)
}

// Security groups are shared by every instance of a placement.
func (o awsPorts) ClosePorts(context.Context, string) error { return nil }

type azurePorts struct {
	fw *azure.Firewall
}

func (o azurePorts) OpenPorts(ctx context.Context, name string, placement config.Placement, ports []config.Port) error {
	pl, ok := placement.(*config.AzurePlacement)
	if !ok {
		return fmt.Errorf("expected azure placement, got %T", placement)
	}
	return o.fw.OpenPorts(ctx, name, pl, ports)
}

// docker-machine removes the security group along with the machine.
func (o azurePorts) ClosePorts(context.Context, string) error { return nil }

type digitalOceanPorts struct {
	fw *digitalocean.Firewall
}

func (o digitalOceanPorts) OpenPorts(ctx context.Context, name string, _ config.Placement, ports []config.Port) error {
	return o.fw.OpenPorts(ctx, name, ports)
}

func (o digitalOceanPorts) ClosePorts(ctx context.Context, name string) error {
	return o.fw.ClosePorts(ctx, name)
}

type hetznerPorts struct {
	client *hcloud.RealClient
}

func (o hetznerPorts) OpenPorts(ctx context.Context, name string, _ config.Placement, ports []config.Port) error {
	return o.client.OpenPorts(ctx, name, ports)
}

func (o hetznerPorts) ClosePorts(ctx context.Context, name string) error {
	return o.client.ClosePorts(ctx, name)
}
