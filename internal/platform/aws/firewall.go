// Package aws opens instance ports on EC2 security groups.
//
// docker-machine's amazonec2 driver places every instance of a placement in a
// shared, named security group. Ports are authorized on that group one rule at
// a time so that rules which already exist do not fail the whole request.
package aws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	gocache "github.com/patrickmn/go-cache"

	"github.com/imamik/storm/internal/config"
	"github.com/imamik/storm/internal/util/retry"
)

// EC2API is the subset of the EC2 client used here.
type EC2API interface {
	DescribeSecurityGroups(ctx context.Context, in *ec2.DescribeSecurityGroupsInput, opts ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, opts ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
}

// ClientFactory returns an EC2 client for a region.
type ClientFactory func(ctx context.Context, region string) (EC2API, error)

// Firewall authorizes ingress rules on the security groups docker-machine creates.
type Firewall struct {
	newClient ClientFactory
	groups    *gocache.Cache
	retryOpts []retry.Option

	mu      sync.Mutex
	clients map[string]EC2API
}

// NewFirewall returns a Firewall using static credentials.
func NewFirewall(creds config.AWSCredentials, retryOpts ...retry.Option) *Firewall {
	return NewFirewallWithFactory(func(ctx context.Context, region string) (EC2API, error) {
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, "")),
			awsconfig.WithRegion(region),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return ec2.NewFromConfig(cfg), nil
	}, retryOpts...)
}

// NewFirewallWithFactory returns a Firewall that builds clients with newClient.
func NewFirewallWithFactory(newClient ClientFactory, retryOpts ...retry.Option) *Firewall {
	return &Firewall{
		newClient: newClient,
		groups:    gocache.New(10*time.Minute, 10*time.Minute),
		retryOpts: retryOpts,
		clients:   make(map[string]EC2API),
	}
}

func (f *Firewall) client(ctx context.Context, region string) (EC2API, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[region]; ok {
		return c, nil
	}
	c, err := f.newClient(ctx, region)
	if err != nil {
		return nil, err
	}
	f.clients[region] = c
	return c, nil
}

// OpenPorts authorizes world-reachable ingress for ports on the placement's security group.
func (f *Firewall) OpenPorts(ctx context.Context, placement *config.AWSPlacement, ports []config.Port) error {
	client, err := f.client(ctx, placement.Region)
	if err != nil {
		return err
	}

	groupID, err := f.groupID(ctx, client, placement)
	if err != nil {
		return err
	}

	for _, port := range ports {
		err := retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
			_, err := client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
				GroupId: aws.String(groupID),
				IpPermissions: []ec2types.IpPermission{{
					IpProtocol: aws.String(port.Protocol),
					FromPort:   aws.Int32(int32(port.Port)),
					ToPort:     aws.Int32(int32(port.Port)),
					IpRanges:   []ec2types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
				}},
			})
			if err == nil || isErrorCode(err, "InvalidPermission.Duplicate") {
				return nil
			}
			if isErrorCode(err, "UnauthorizedOperation") {
				return retry.Fatal(err)
			}
			return err
		}, f.retryOpts...)
		if err != nil {
			return fmt.Errorf("failed to open %s on security group %s: %w", port, placement.SecurityGroup, err)
		}
	}

	return nil
}

func (f *Firewall) groupID(ctx context.Context, client EC2API, placement *config.AWSPlacement) (string, error) {
	key := fmt.Sprintf("%s/%s/%s", placement.Region, placement.VPC, placement.SecurityGroup)
	if id, ok := f.groups.Get(key); ok {
		return id.(string), nil
	}

	filters := []ec2types.Filter{{Name: aws.String("group-name"), Values: []string{placement.SecurityGroup}}}
	if placement.VPC != "" {
		filters = append(filters, ec2types.Filter{Name: aws.String("vpc-id"), Values: []string{placement.VPC}})
	}

	var id string
	err := retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
		out, err := client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{Filters: filters})
		if err != nil {
			return err
		}
		if len(out.SecurityGroups) == 0 {
			// docker-machine may still be creating the group.
			return fmt.Errorf("security group %s not found in %s", placement.SecurityGroup, placement.Region)
		}
		id = aws.ToString(out.SecurityGroups[0].GroupId)
		return nil
	}, f.retryOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to look up security group: %w", err)
	}

	f.groups.SetDefault(key, id)
	return id, nil
}

func isErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == code
}
