// Package ec2 terminates jobs running on Amazon EC2 instances.
package ec2

import (
	"context"
	"errors"
	"fmt"
	"jobseries/internal/compute"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/smithy-go"
)

// Provider implements compute.Provider with the EC2 API.
type Provider struct {
	client *awsec2.Client
}

// New creates a provider from an SDK configuration.
func New(cfg aws.Config) *Provider {
	return &Provider{client: awsec2.NewFromConfig(cfg)}
}

// TerminateInstance requests termination of one instance.
func (p *Provider) TerminateInstance(ctx context.Context, instanceID string) error {
	_, err := p.client.TerminateInstances(ctx, &awsec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidInstanceID.NotFound", "InvalidInstanceID.Malformed":
			return fmt.Errorf("%w: %s", compute.ErrInstanceNotFound, instanceID)
		}
	}
	return fmt.Errorf("terminate instance %s: %w", instanceID, err)
}

// Ready checks that the EC2 endpoint answers with the configured credentials.
func (p *Provider) Ready(ctx context.Context) error {
	if _, err := p.client.DescribeRegions(ctx, &awsec2.DescribeRegionsInput{}); err != nil {
		return fmt.Errorf("describe regions: %w", err)
	}
	return nil
}
