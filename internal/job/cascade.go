package job

import (
	"context"
	"errors"
	"fmt"
	"jobseries/internal/apperrors"
	"log/slog"
)

// Cascade operations, as recorded in metrics.
const (
	cascadeDelete = "delete"
	cascadeCancel = "cancel"
)

// msgSeriesRunning is reported when a series still has running jobs.
const msgSeriesRunning = "Can not delete series, there are running jobs."

// DeleteSeriesJobs deletes every terminal job of a series and then, if no job
// was left behind, the series itself.
//
// Non-terminal jobs are skipped, not aborted on: terminal jobs after them are
// still deleted. The returned error is InvalidState when running jobs kept the
// series alive; the result is returned alongside it either way.
func (s *Service) DeleteSeriesJobs(ctx context.Context, caller Caller, seriesID int64) (*CascadeResult, error) {
	series, err := s.authorizeSeries(ctx, caller, seriesID, "delete the jobs of")
	if err != nil {
		return nil, err
	}

	logger := slog.With("seriesId", seriesID)

	jobs, err := s.store.GetSeriesJobs(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	result := &CascadeResult{SeriesID: seriesID}
	for _, j := range jobs {
		deleted, err := s.deleteIfTerminal(ctx, j.ID)
		switch {
		case err != nil:
			logger.Error("Job deletion failed", "jobId", j.ID, "error", err)
			result.Failed = append(result.Failed, JobFailure{JobID: j.ID, Error: err.Error()})
		case deleted:
			result.Deleted = append(result.Deleted, j.ID)
		default:
			result.Skipped = append(result.Skipped, j.ID)
		}
	}

	switch {
	case len(result.Skipped) > 0:
		logger.Warn("Series kept, jobs still running", "running", len(result.Skipped), "deleted", len(result.Deleted))
		err = apperrors.InvalidState("delete series", msgSeriesRunning)
	case result.Partial():
		err = fmt.Errorf("failed to delete %d jobs of series %d", len(result.Failed), seriesID)
	default:
		if err = s.store.DeleteSeries(ctx, seriesID); err != nil {
			logger.Error("Series deletion failed", "error", err)
			break
		}
		result.SeriesDeleted = true
		logger.Info("Series deleted", "jobs", len(result.Deleted))
		s.notify(ctx, s.events.SeriesDeleted(series))
	}

	s.recordCascade(ctx, cascadeDelete, err == nil, result)
	return result, err
}

// deleteIfTerminal deletes a job if, under its lock, it is in a terminal state.
// A job that is already gone counts as deleted.
func (s *Service) deleteIfTerminal(ctx context.Context, jobID int64) (bool, error) {
	unlock := s.locks.Lock(jobID)

	j, err := s.store.GetJob(ctx, jobID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		unlock()
		return true, nil
	case err != nil:
		unlock()
		return false, err
	case !j.Status.Terminal():
		unlock()
		return false, nil
	}

	err = s.store.DeleteJob(ctx, jobID)
	unlock()
	if err != nil {
		return false, err
	}
	s.notify(ctx, s.events.JobDeleted(j))
	return true, nil
}

// CancelSeriesJobs cancels every non-terminal job of a series.
//
// A failed cancellation does not stop the loop and does not turn the call into
// an error: the operation reports success once every job was visited, and the
// failures are listed in the result for the caller to act on.
func (s *Service) CancelSeriesJobs(ctx context.Context, caller Caller, seriesID int64) (*CascadeResult, error) {
	if _, err := s.authorizeSeries(ctx, caller, seriesID, "cancel the jobs of"); err != nil {
		return nil, err
	}

	logger := slog.With("seriesId", seriesID)

	jobs, err := s.store.GetSeriesJobs(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	result := &CascadeResult{SeriesID: seriesID}
	for _, j := range jobs {
		if j.Status.Terminal() {
			result.Skipped = append(result.Skipped, j.ID)
			continue
		}

		unlock := s.locks.Lock(j.ID)
		event, err := s.cancelLocked(ctx, caller, j.ID)
		unlock()
		if err == nil {
			s.notify(ctx, event)
		}

		switch {
		case errors.Is(err, apperrors.ErrInvalidState):
			// Finished between listing and locking.
			result.Skipped = append(result.Skipped, j.ID)
		case err != nil:
			logger.Error("Job cancellation failed", "jobId", j.ID, "error", err)
			result.Failed = append(result.Failed, JobFailure{JobID: j.ID, Error: err.Error()})
		default:
			result.Cancelled = append(result.Cancelled, j.ID)
		}
	}

	if result.Partial() {
		logger.Warn("Series cancelled with failures", "cancelled", len(result.Cancelled), "failed", len(result.Failed))
	} else {
		logger.Info("Series cancelled", "cancelled", len(result.Cancelled))
	}

	s.recordCascade(ctx, cascadeCancel, true, result)
	return result, nil
}

func (s *Service) recordCascade(ctx context.Context, op string, success bool, r *CascadeResult) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordCascade(ctx, op, success, map[string]int{
		"deleted":   len(r.Deleted),
		"cancelled": len(r.Cancelled),
		"skipped":   len(r.Skipped),
		"failed":    len(r.Failed),
	})
}
