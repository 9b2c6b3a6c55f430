// Package digitalocean opens droplet ports with DigitalOcean cloud firewalls.
//
// A cloud firewall drops all traffic that no rule allows, so every firewall
// created here also allows SSH, the engine ports docker-machine needs and all
// outbound traffic.
package digitalocean

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/digitalocean/godo"
	"golang.org/x/oauth2"

	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/util/retry"
)

var anywhere = &godo.Sources{Addresses: []string{"0.0.0.0/0", "::/0"}}

// managementPorts stay open on every droplet.
var managementPorts = []config.Port{
	{Protocol: "tcp", Port: 22},
	{Protocol: "tcp", Port: 2376},
	{Protocol: "tcp", Port: 3376},
}

// API is the subset of the DigitalOcean API used here.
type API interface {
	DropletID(ctx context.Context, name string) (int, error)
	CreateFirewall(ctx context.Context, req *godo.FirewallRequest) error
	DeleteFirewall(ctx context.Context, name string) error
}

type tokenSource struct {
	token string
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: t.token}, nil
}

type godoAPI struct {
	client *godo.Client
}

// NewAPI returns an API authenticated with a personal access token.
func NewAPI(token string) API {
	oauthClient := oauth2.NewClient(context.Background(), &tokenSource{token: token})
	return &godoAPI{client: godo.NewClient(oauthClient)}
}

func (a *godoAPI) DropletID(ctx context.Context, name string) (int, error) {
	droplets, _, err := a.client.Droplets.ListByName(ctx, name, &godo.ListOptions{PerPage: 10})
	if err != nil {
		return 0, fmt.Errorf("failed to list droplets: %w", err)
	}
	for _, d := range droplets {
		if d.Name == name {
			return d.ID, nil
		}
	}
	return 0, fmt.Errorf("droplet %s not found", name)
}

func (a *godoAPI) CreateFirewall(ctx context.Context, req *godo.FirewallRequest) error {
	if _, _, err := a.client.Firewalls.Create(ctx, req); err != nil {
		return fmt.Errorf("failed to create firewall %s: %w", req.Name, err)
	}
	return nil
}

// DeleteFirewall removes the firewall called name. A missing firewall is not an error.
func (a *godoAPI) DeleteFirewall(ctx context.Context, name string) error {
	opt := &godo.ListOptions{PerPage: 200}
	for {
		firewalls, resp, err := a.client.Firewalls.List(ctx, opt)
		if err != nil {
			return fmt.Errorf("failed to list firewalls: %w", err)
		}
		for _, fw := range firewalls {
			if fw.Name == name {
				if _, err := a.client.Firewalls.Delete(ctx, fw.ID); err != nil {
					return fmt.Errorf("failed to delete firewall %s: %w", name, err)
				}
				return nil
			}
		}
		if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
			return nil
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return fmt.Errorf("failed to page firewalls: %w", err)
		}
		opt.Page = page + 1
	}
}

// Firewall attaches a cloud firewall per droplet.
type Firewall struct {
	api       API
	retryOpts []retry.Option
}

// NewFirewall returns a Firewall using api.
func NewFirewall(api API, retryOpts ...retry.Option) *Firewall {
	return &Firewall{api: api, retryOpts: retryOpts}
}

// FirewallName returns the firewall created for a droplet.
func FirewallName(droplet string) string {
	return droplet + "-storm"
}

// OpenPorts creates a firewall for the droplet allowing ports plus management traffic.
func (f *Firewall) OpenPorts(ctx context.Context, droplet string, ports []config.Port) error {
	var id int
	err := retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
		var err error
		id, err = f.api.DropletID(ctx, droplet)
		return err
	}, f.retryOpts...)
	if err != nil {
		return err
	}

	req := firewallRequest(droplet, id, ports)
	err = retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
		return f.api.CreateFirewall(ctx, req)
	}, f.retryOpts...)
	if err != nil {
		return fmt.Errorf("failed to open ports on %s: %w", droplet, err)
	}
	return nil
}

// ClosePorts deletes the firewall created for the droplet.
func (f *Firewall) ClosePorts(ctx context.Context, droplet string) error {
	return retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
		return f.api.DeleteFirewall(ctx, FirewallName(droplet))
	}, f.retryOpts...)
}

func firewallRequest(droplet string, dropletID int, ports []config.Port) *godo.FirewallRequest {
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

	inbound := make([]godo.InboundRule, 0, len(all))
	for _, p := range all {
		inbound = append(inbound, godo.InboundRule{
			Protocol:  p.Protocol,
			PortRange: strconv.Itoa(p.Port),
			Sources:   anywhere,
		})
	}

	return &godo.FirewallRequest{
		Name:         FirewallName(droplet),
		InboundRules: inbound,
		OutboundRules: []godo.OutboundRule{
			{Protocol: "tcp", PortRange: "all", Destinations: &godo.Destinations{Addresses: anywhere.Addresses}},
			{Protocol: "udp", PortRange: "all", Destinations: &godo.Destinations{Addresses: anywhere.Addresses}},
			{Protocol: "icmp", Destinations: &godo.Destinations{Addresses: anywhere.Addresses}},
		},
		DropletIDs: []int{dropletID},
	}
}
