// Package job implements the job series lifecycle: identity checks, status
// transitions, cascading series operations, output reconciliation and
// instance termination.
package job

import "context"

// Store persists series and jobs.
//
// # Ownership
//
// Series and jobs are created by the submission system. The job service only
// reads, transitions and deletes them, so Store has no create operations.
//
// # Errors
//
// Lookups of unknown IDs return an apperrors.NotFound error. Any other error
// is a storage failure.
type Store interface {
	// GetJob returns one job.
	GetJob(ctx context.Context, id int64) (*Job, error)

	// GetSeries returns one series.
	GetSeries(ctx context.Context, id int64) (*Series, error)

	// GetSeriesJobs returns the jobs of a series ordered by ascending ID.
	// An unknown series yields an empty slice.
	GetSeriesJobs(ctx context.Context, seriesID int64) ([]Job, error)

	// QuerySeries returns the series matching f ordered by ascending ID.
	QuerySeries(ctx context.Context, f SeriesFilter) ([]Series, error)

	// SaveJob persists a job's status. The other fields are fixed at
	// submission and are not written.
	SaveJob(ctx context.Context, j *Job) error

	// DeleteJob removes a job record. Deleting a missing job is not an error.
	DeleteJob(ctx context.Context, id int64) error

	// DeleteSeries removes a series record. Deleting a missing series is not an error.
	DeleteSeries(ctx context.Context, id int64) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
