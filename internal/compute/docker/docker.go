// Package docker terminates jobs running as containers on the local Docker daemon.
package docker

import (
	"context"
	"fmt"
	"jobseries/internal/compute"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Provider implements compute.Provider by force-removing the job container.
// The instance reference is the container ID or name.
type Provider struct {
	client *client.Client
}

// New connects to the daemon described by the DOCKER_* environment.
func New() (*Provider, error) {
	c, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Provider{client: c}, nil
}

// TerminateInstance kills and removes the container in a single call.
func (p *Provider) TerminateInstance(ctx context.Context, instanceID string) error {
	err := p.client.ContainerRemove(ctx, instanceID, container.RemoveOptions{Force: true})
	if err == nil {
		return nil
	}
	if client.IsErrNotFound(err) {
		return fmt.Errorf("%w: %s", compute.ErrInstanceNotFound, instanceID)
	}
	return fmt.Errorf("remove container %s: %w", instanceID, err)
}

// Ready pings the daemon.
func (p *Provider) Ready(ctx context.Context) error {
	_, err := p.client.Ping(ctx)
	return err
}

// Close releases the client connection.
func (p *Provider) Close() error {
	return p.client.Close()
}
