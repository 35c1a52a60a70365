package job

import (
	"context"
	"errors"
	"jobseries/internal/apperrors"
	"jobseries/internal/archive"
	"jobseries/internal/objectstore"
	"log/slog"
)

// JobFiles is a job's output listing after reconciliation.
type JobFiles struct {
	Job   Job                  `json:"job"`
	Files []objectstore.Object `json:"files"`
}

// ListJobsForSeries returns a series' jobs, reconciling every Active job
// against its output first. A job whose reconciliation fails is returned with
// its stored status and the failure is reported in ReconcileErrors.
func (s *Service) ListJobsForSeries(ctx context.Context, caller Caller, seriesID int64) (*JobListing, error) {
	if _, err := s.authorizeSeries(ctx, caller, seriesID, "list the jobs of"); err != nil {
		return nil, err
	}

	jobs, err := s.store.GetSeriesJobs(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	listing := &JobListing{SeriesID: seriesID, Jobs: jobs}
	if listing.Jobs == nil {
		listing.Jobs = []Job{}
	}

	var objects objectstore.Store
	for i := range listing.Jobs {
		j := &listing.Jobs[i]
		if j.Status != StatusActive || j.OutputDir == "" {
			continue
		}

		if objects == nil {
			if objects, err = s.clients.ObjectStore(ctx, caller.Credentials); err != nil {
				return nil, apperrors.Upstream("create object store client", err)
			}
		}

		if _, err := s.reconcile(ctx, objects, j); err != nil {
			if listing.ReconcileErrors == nil {
				listing.ReconcileErrors = make(map[int64]string)
			}
			listing.ReconcileErrors[j.ID] = err.Error()
		}
	}

	slog.Debug("Returning series job list", "seriesId", seriesID, "jobs", len(listing.Jobs))
	return listing, nil
}

// ListJobFiles lists a job's output objects. Listing reconciles the job, so it
// may persist a new status.
func (s *Service) ListJobFiles(ctx context.Context, caller Caller, jobID int64) (*JobFiles, error) {
	j, _, err := s.authorizeJob(ctx, caller, jobID, "list the files of")
	if err != nil {
		return nil, err
	}

	objects, err := s.clients.ObjectStore(ctx, caller.Credentials)
	if err != nil {
		return nil, apperrors.Upstream("create object store client", err)
	}

	rec, err := s.reconcile(ctx, objects, j)
	if err != nil {
		return nil, err
	}

	slog.Info("Job files located", "jobId", jobID, "files", len(rec.Objects))
	return &JobFiles{Job: *j, Files: rec.Objects}, nil
}

// FileOpener authorizes caller on a job and returns a function that opens
// objects from the output bucket with the caller's credentials.
// Missing objects are reported as NotFound, other failures as Upstream.
func (s *Service) FileOpener(ctx context.Context, caller Caller, jobID int64) (archive.OpenFunc, error) {
	if _, _, err := s.authorizeJob(ctx, caller, jobID, "download the files of"); err != nil {
		return nil, err
	}

	objects, err := s.clients.ObjectStore(ctx, caller.Credentials)
	if err != nil {
		return nil, apperrors.Upstream("create object store client", err)
	}

	return func(ctx context.Context, key string) (*objectstore.Blob, error) {
		blob, err := objects.GetObject(ctx, s.bucket, key)
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return nil, apperrors.NotFound("file", key)
		}
		if err != nil {
			return nil, apperrors.Upstream("get object", err)
		}
		return blob, nil
	}, nil
}

// OpenFile authorizes caller on a job and opens one output object.
// Nothing has been sent to the client when this returns an error.
func (s *Service) OpenFile(ctx context.Context, caller Caller, jobID int64, key string) (*objectstore.Blob, error) {
	if key == "" {
		return nil, apperrors.Validation("key", "file key is required")
	}
	open, err := s.FileOpener(ctx, caller, jobID)
	if err != nil {
		return nil, err
	}
	return open(ctx, key)
}
