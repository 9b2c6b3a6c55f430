package config

import (
	"fmt"

	"github.com/imamik/storm/internal/fleet"
)

// Placement is a provider-specific set of size and location attributes plus a
// replica count. Optional fields are filled by ApplyDefaults.
type Placement interface {
	fleet.Placement
	Count() int
	ApplyDefaults()
	Validate() error
}

func newPlacement(p fleet.Provider) Placement {
	switch p {
	case fleet.AWS:
		return &AWSPlacement{}
	case fleet.Azure:
		return &AzurePlacement{}
	case fleet.DigitalOcean:
		return &DigitalOceanPlacement{}
	default:
		return &HetznerPlacement{}
	}
}

// AWSPlacement describes EC2 instances.
type AWSPlacement struct {
	Scale         int    `yaml:"scale"`
	Region        string `yaml:"region"`
	Zone          string `yaml:"zone"`
	InstanceType  string `yaml:"instance_type"`
	AMI           string `yaml:"ami"`
	VPC           string `yaml:"vpc"`
	Subnet        string `yaml:"subnet"`
	SecurityGroup string `yaml:"security_group"`
	RootSize      int    `yaml:"root_size"`
}

func (p *AWSPlacement) Provider() fleet.Provider { return fleet.AWS }
func (p *AWSPlacement) Count() int               { return p.Scale }

func (p *AWSPlacement) ApplyDefaults() {
	if p.Region == "" {
		p.Region = "us-east-1"
	}
	if p.Zone == "" {
		p.Zone = "c"
	}
	if p.InstanceType == "" {
		p.InstanceType = "t2.medium"
	}
	if p.SecurityGroup == "" {
		p.SecurityGroup = "docker-storm"
	}
	if p.RootSize == 0 {
		p.RootSize = 8
	}
}

func (p *AWSPlacement) Validate() error {
	if err := validateScale(p.Scale); err != nil {
		return err
	}
	if len(p.Zone) != 1 {
		return fmt.Errorf("zone must be a single letter, got %q", p.Zone)
	}
	if p.RootSize < 8 {
		return fmt.Errorf("root_size must be at least 8 GB, got %d", p.RootSize)
	}
	return nil
}

// AzurePlacement describes Azure virtual machines.
type AzurePlacement struct {
	Scale         int    `yaml:"scale"`
	Size          string `yaml:"size"`
	Location      string `yaml:"location"`
	Image         string `yaml:"image"`
	ResourceGroup string `yaml:"resource_group"`
}

func (p *AzurePlacement) Provider() fleet.Provider { return fleet.Azure }
func (p *AzurePlacement) Count() int               { return p.Scale }

func (p *AzurePlacement) ApplyDefaults() {
	if p.Size == "" {
		p.Size = "Standard_A1"
	}
	if p.Location == "" {
		p.Location = "eastus"
	}
	if p.ResourceGroup == "" {
		p.ResourceGroup = "docker-machine"
	}
}

func (p *AzurePlacement) Validate() error {
	return validateScale(p.Scale)
}

// DigitalOceanPlacement describes droplets.
type DigitalOceanPlacement struct {
	Scale  int    `yaml:"scale"`
	Size   string `yaml:"size"`
	Region string `yaml:"region"`
	Image  string `yaml:"image"`
}

func (p *DigitalOceanPlacement) Provider() fleet.Provider { return fleet.DigitalOcean }
func (p *DigitalOceanPlacement) Count() int               { return p.Scale }

func (p *DigitalOceanPlacement) ApplyDefaults() {
	if p.Size == "" {
		p.Size = "512mb"
	}
	if p.Region == "" {
		p.Region = "nyc3"
	}
}

func (p *DigitalOceanPlacement) Validate() error {
	return validateScale(p.Scale)
}

// HetznerPlacement describes Hetzner Cloud servers.
type HetznerPlacement struct {
	Scale      int    `yaml:"scale"`
	ServerType string `yaml:"server_type"`
	Location   string `yaml:"location"`
	Image      string `yaml:"image"`
}

func (p *HetznerPlacement) Provider() fleet.Provider { return fleet.Hetzner }
func (p *HetznerPlacement) Count() int               { return p.Scale }

func (p *HetznerPlacement) ApplyDefaults() {
	if p.ServerType == "" {
		p.ServerType = "cx22"
	}
	if p.Location == "" {
		p.Location = "fsn1"
	}
	if p.Image == "" {
		p.Image = "ubuntu-24.04"
	}
}

// validHetznerLocations contains the Hetzner Cloud datacenter locations.
var validHetznerLocations = map[string]bool{
	"nbg1": true,
	"fsn1": true,
	"hel1": true,
	"ash":  true,
	"hil":  true,
	"sin":  true,
}

func (p *HetznerPlacement) Validate() error {
	if err := validateScale(p.Scale); err != nil {
		return err
	}
	if !validHetznerLocations[p.Location] {
		return fmt.Errorf("invalid location %q", p.Location)
	}
	return nil
}

func validateScale(n int) error {
	if n < 0 {
		return fmt.Errorf("scale must not be negative, got %d", n)
	}
	return nil
}
