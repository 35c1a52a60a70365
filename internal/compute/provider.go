// Package compute defines the contract for terminating the instance backing a job.
package compute

import (
	"context"
	"errors"
)

// ErrInstanceNotFound is returned when the provider does not know the instance.
var ErrInstanceNotFound = errors.New("instance not found")

// Provider terminates compute instances.
// TerminateInstance issues exactly one terminate call and does not wait for
// the instance to reach a stopped state.
type Provider interface {
	TerminateInstance(ctx context.Context, instanceID string) error
}

// ReadyChecker is implemented by providers that can report reachability.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}
