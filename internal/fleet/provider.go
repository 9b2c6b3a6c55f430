package fleet

import (
	"fmt"
	"strings"
)

// Provider identifies the cloud that hosts an instance.
type Provider string

// Supported providers.
const (
	AWS          Provider = "aws"
	Azure        Provider = "azure"
	DigitalOcean Provider = "digitalocean"
	Hetzner      Provider = "hetzner"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{AWS, Azure, DigitalOcean, Hetzner}

// ParseProvider converts user input to a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported provider %q (supported: aws, azure, digitalocean, hetzner)", s)
}

// DisplayName returns the human-readable provider name.
func (p Provider) DisplayName() string {
	switch p {
	case AWS:
		return "AWS"
	case Azure:
		return "Azure"
	case DigitalOcean:
		return "DigitalOcean"
	case Hetzner:
		return "Hetzner"
	default:
		return string(p)
	}
}

// Placement carries provider-specific size and location attributes.
// It is opaque to the scheduler and only interpreted by the provider adapter.
type Placement interface {
	Provider() Provider
}
