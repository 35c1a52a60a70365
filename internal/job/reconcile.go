package job

import (
	"context"
	"fmt"
	"jobseries/internal/apperrors"
	"jobseries/internal/objectstore"
	"jobseries/pkg/cloudevent"
	"log/slog"
	"slices"
)

// Reconcile outcomes, as recorded in metrics.
const (
	reconcileSkipped      = "skipped"
	reconcileUnchanged    = "unchanged"
	reconcileTransitioned = "transitioned"
	reconcileError        = "error"
)

// Reconciliation is the result of checking one job against its output.
type Reconciliation struct {
	Objects []objectstore.Object
	From    Status
	To      Status // empty when the status did not change
}

// Changed reports whether a new status was persisted.
func (r *Reconciliation) Changed() bool {
	return r.To != ""
}

// reconcile lists j's output and, if j is Active and output exists, moves it to
// Done or Failed. j is updated in place with the stored job.
// Listing failures are returned and never change the status.
func (s *Service) reconcile(ctx context.Context, objects objectstore.Store, j *Job) (*Reconciliation, error) {
	rec := &Reconciliation{From: j.Status, Objects: []objectstore.Object{}}
	if j.OutputDir == "" {
		s.recordReconcile(ctx, reconcileSkipped)
		return rec, nil
	}

	listed, err := s.listOutput(ctx, objects, j.OutputDir)
	if err != nil {
		slog.Error("Output listing failed", "jobId", j.ID, "outputDir", j.OutputDir, "error", err)
		s.recordReconcile(ctx, reconcileError)
		return nil, err
	}
	if listed != nil {
		rec.Objects = listed
	}

	if j.Status != StatusActive || len(listed) == 0 {
		s.recordReconcile(ctx, reconcileUnchanged)
		return rec, nil
	}

	trigger := OutputTrigger(listed)
	current, event, err := s.applyTrigger(ctx, j.ID, trigger)
	if err != nil {
		s.recordReconcile(ctx, reconcileError)
		return nil, err
	}
	*j = *current
	if event == nil {
		// Another request moved the job since it was read.
		rec.From = current.Status
		s.recordReconcile(ctx, reconcileUnchanged)
		return rec, nil
	}

	rec.To = current.Status
	s.recordReconcile(ctx, reconcileTransitioned)
	s.notify(ctx, event)
	return rec, nil
}

// applyTrigger moves job id by trigger under its lock and returns the stored
// job. The event is nil when the job no longer accepts trigger.
func (s *Service) applyTrigger(ctx context.Context, id int64, trigger Trigger) (*Job, *cloudevent.CloudEvent, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	to, err := Next(current.Status, trigger)
	if err != nil {
		return current, nil, nil
	}

	from := current.Status
	current.Status = to
	if err := s.store.SaveJob(ctx, current); err != nil {
		return nil, nil, err
	}
	return current, s.transitioned(ctx, current, from, trigger), nil
}

// listOutput lists the objects under prefix in the output bucket.
func (s *Service) listOutput(ctx context.Context, objects objectstore.Store, prefix string) ([]objectstore.Object, error) {
	buckets, err := objects.ListBuckets(ctx)
	if err != nil {
		return nil, apperrors.Upstream("list buckets", err)
	}
	if !slices.Contains(buckets, s.bucket) {
		return nil, apperrors.Upstream("list buckets",
			fmt.Errorf("%w: %s", objectstore.ErrBucketNotFound, s.bucket))
	}

	listed, err := objects.ListObjects(ctx, s.bucket, prefix)
	if err != nil {
		return nil, apperrors.Upstream("list objects", err)
	}
	return listed, nil
}

func (s *Service) recordReconcile(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordReconcile(ctx, outcome)
	}
}
