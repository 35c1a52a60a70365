package job

import (
	"context"
	"jobseries/internal/apperrors"
	"jobseries/internal/cloud"
	"jobseries/internal/observability"
	"jobseries/pkg/cloudevent"
	"log/slog"
)

// Caller is the already-authenticated identity behind a request and the
// provider credentials used on its behalf.
type Caller struct {
	Identity    string
	Credentials cloud.Credentials
}

// Config holds the collaborators of a Service.
type Config struct {
	Store    Store
	Clients  *Clients
	Bucket   string // object store bucket holding job output
	Metrics  *observability.Metrics
	Notifier Notifier // optional
	Source   string   // CloudEvent source, defaults to "jobseries"
}

// Service runs lifecycle operations on series and jobs.
//
// All state lives in the Store. Writes to one job are serialized through a
// per-job lock and every write re-reads the job under that lock, so two
// requests racing on the same job never persist from a stale copy.
type Service struct {
	store      Store
	clients    *Clients
	bucket     string
	terminator *Terminator
	metrics    *observability.Metrics
	notifier   Notifier
	events     *EventBuilder
	locks      *keyedMutex
}

// NewService creates a new job service.
func NewService(cfg Config) *Service {
	source := cfg.Source
	if source == "" {
		source = "jobseries"
	}
	return &Service{
		store:      cfg.Store,
		clients:    cfg.Clients,
		bucket:     cfg.Bucket,
		terminator: NewTerminator(cfg.Clients, cfg.Metrics),
		metrics:    cfg.Metrics,
		notifier:   cfg.Notifier,
		events:     NewEventBuilder(source),
		locks:      newKeyedMutex(),
	}
}

// QuerySeries returns series matching f. With no filter set, it returns the
// caller's own series.
func (s *Service) QuerySeries(ctx context.Context, caller Caller, f SeriesFilter) ([]Series, error) {
	if f.IsZero() {
		if caller.Identity == "" {
			return []Series{}, nil
		}
		f.Owner = caller.Identity
	}

	series, err := s.store.QuerySeries(ctx, f)
	if err != nil {
		return nil, err
	}
	if series == nil {
		series = []Series{}
	}
	return series, nil
}

// DeleteJob removes one job record regardless of its status.
// Object store output and compute instances are left alone.
func (s *Service) DeleteJob(ctx context.Context, caller Caller, jobID int64) error {
	j, _, err := s.authorizeJob(ctx, caller, jobID, "delete")
	if err != nil {
		return err
	}

	logger := slog.With("jobId", jobID, "seriesId", j.SeriesID)

	unlock := s.locks.Lock(jobID)
	err = s.store.DeleteJob(ctx, jobID)
	unlock()

	if err != nil {
		logger.Error("Job deletion failed", "error", err)
		return err
	}
	logger.Info("Job deleted")
	s.notify(ctx, s.events.JobDeleted(j))
	return nil
}

// CancelJob terminates the job's instance and marks it Cancelled.
// If termination fails the status is left unchanged and the error returned.
func (s *Service) CancelJob(ctx context.Context, caller Caller, jobID int64) error {
	if _, _, err := s.authorizeJob(ctx, caller, jobID, "cancel"); err != nil {
		return err
	}

	unlock := s.locks.Lock(jobID)
	event, err := s.cancelLocked(ctx, caller, jobID)
	unlock()

	if err != nil {
		return err
	}
	s.notify(ctx, event)
	return nil
}

// cancelLocked runs the cancel transition and returns the status event for
// the caller to send once the job lock is released. The caller holds the lock.
func (s *Service) cancelLocked(ctx context.Context, caller Caller, jobID int64) (*cloudevent.CloudEvent, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	logger := slog.With("jobId", jobID, "seriesId", j.SeriesID)

	to, err := Next(j.Status, TriggerCancel)
	if err != nil {
		logger.Warn("Cancel rejected", "status", j.Status)
		return nil, err
	}

	if j.InstanceRef == "" {
		logger.Info("Job has no instance to terminate")
	} else if err := s.terminator.Terminate(ctx, j.InstanceRef, caller.Credentials); err != nil {
		logger.Error("Instance termination failed", "instanceRef", j.InstanceRef, "error", err)
		return nil, err
	}

	from := j.Status
	j.Status = to
	if err := s.store.SaveJob(ctx, j); err != nil {
		logger.Error("Failed to persist cancelled status", "error", err)
		return nil, err
	}
	return s.transitioned(ctx, j, from, TriggerCancel), nil
}

// authorizeJob loads a job and its series and checks that caller owns the series.
func (s *Service) authorizeJob(ctx context.Context, caller Caller, jobID int64, action string) (*Job, *Series, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	series, err := s.store.GetSeries(ctx, j.SeriesID)
	if err != nil {
		return nil, nil, err
	}
	if !Authorized(caller.Identity, series) {
		slog.Warn("Job access denied", "jobId", jobID, "seriesId", series.ID, "action", action)
		return nil, nil, apperrors.Unauthorized(action, "this job")
	}
	return j, series, nil
}

// authorizeSeries loads a series and checks that caller owns it.
func (s *Service) authorizeSeries(ctx context.Context, caller Caller, seriesID int64, action string) (*Series, error) {
	series, err := s.store.GetSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if !Authorized(caller.Identity, series) {
		slog.Warn("Series access denied", "seriesId", seriesID, "action", action)
		return nil, apperrors.Unauthorized(action, "this series")
	}
	return series, nil
}

// transitioned logs and counts a persisted status change and returns its event.
// Events are sent after the job lock is released.
func (s *Service) transitioned(ctx context.Context, j *Job, from Status, trigger Trigger) *cloudevent.CloudEvent {
	slog.Info("Job status changed",
		"jobId", j.ID,
		"seriesId", j.SeriesID,
		"from", from,
		"to", j.Status,
		"trigger", trigger,
	)
	if s.metrics != nil {
		s.metrics.RecordTransition(ctx, string(from), string(j.Status), string(trigger))
	}
	return s.events.StatusChanged(j, from, trigger)
}

func (s *Service) notify(ctx context.Context, event *cloudevent.CloudEvent) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, event)
	}
}
