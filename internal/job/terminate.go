package job

import (
	"context"
	"errors"
	"jobseries/internal/apperrors"
	"jobseries/internal/cloud"
	"jobseries/internal/compute"
	"jobseries/internal/observability"
	"log/slog"
	"time"
)

// Terminator stops the compute instance behind a job.
type Terminator struct {
	clients *Clients
	metrics *observability.Metrics
}

// NewTerminator creates a terminator using the provider clients in clients.
func NewTerminator(clients *Clients, metrics *observability.Metrics) *Terminator {
	return &Terminator{clients: clients, metrics: metrics}
}

// Terminate issues a single terminate call for instanceRef. It does not retry
// and does not wait for the provider to finish shutting the instance down.
// An instance the provider no longer knows counts as terminated.
func (t *Terminator) Terminate(ctx context.Context, instanceRef string, creds cloud.Credentials) error {
	provider, err := t.clients.Provider(ctx, creds)
	if err != nil {
		return apperrors.Upstream("create compute client", err)
	}

	start := time.Now()
	err = provider.TerminateInstance(ctx, instanceRef)
	if errors.Is(err, compute.ErrInstanceNotFound) {
		slog.Warn("Instance already gone", "instanceRef", instanceRef)
		err = nil
	}
	if t.metrics != nil {
		t.metrics.RecordTerminate(ctx, err == nil, time.Since(start).Seconds())
	}
	if err != nil {
		return apperrors.Upstream("terminate instance "+instanceRef, err)
	}
	return nil
}
