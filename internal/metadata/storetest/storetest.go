// Package storetest checks that a job.Store backend behaves like the others.
package storetest

import (
	"context"
	"jobseries/internal/apperrors"
	"jobseries/internal/job"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Seeder is a store that tests can populate directly.
type Seeder interface {
	job.Store
	InsertSeries(ctx context.Context, s job.Series) error
	InsertJob(ctx context.Context, j job.Job) error
}

// Fixture series and jobs used by Run.
var (
	AliceSeries = job.Series{ID: 1, Owner: "alice@example.org", Name: "Coastal Survey", Description: "GPS processing for the coastal network"}
	AliceOther  = job.Series{ID: 2, Owner: "alice@example.org", Name: "Inland", Description: "Reprocessing run"}
	BobSeries   = job.Series{ID: 3, Owner: "bob@example.org", Name: "coastal check", Description: "Validation"}

	Jobs = []job.Job{
		{ID: 12, SeriesID: 1, Name: "day-12", Status: job.StatusActive, InstanceRef: "i-12", OutputDir: "alice/1/12/"},
		{ID: 10, SeriesID: 1, Name: "day-10", Status: job.StatusDone, InstanceRef: "i-10", OutputDir: "alice/1/10/"},
		{ID: 11, SeriesID: 1, Name: "day-11", Status: job.StatusPending, InstanceRef: "i-11"},
		{ID: 20, SeriesID: 3, Name: "check", Status: job.StatusFailed, InstanceRef: "i-20", OutputDir: "bob/3/20/"},
	}
)

// Seed inserts the fixture data.
func Seed(t *testing.T, s Seeder) {
	t.Helper()
	ctx := context.Background()
	for _, series := range []job.Series{AliceSeries, AliceOther, BobSeries} {
		require.NoError(t, s.InsertSeries(ctx, series))
	}
	for _, j := range Jobs {
		require.NoError(t, s.InsertJob(ctx, j))
	}
}

// Run exercises every Store operation against a fresh store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) Seeder) {
	t.Run("GetJob", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)

		j, err := s.GetJob(context.Background(), 12)
		require.NoError(t, err)
		assert.Equal(t, Jobs[0], *j)

		_, err = s.GetJob(context.Background(), 999)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("GetSeries", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)

		series, err := s.GetSeries(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, AliceSeries, *series)

		_, err = s.GetSeries(context.Background(), 999)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("GetSeriesJobsOrderedByID", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)

		jobs, err := s.GetSeriesJobs(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, jobs, 3)
		assert.Equal(t, []int64{10, 11, 12}, []int64{jobs[0].ID, jobs[1].ID, jobs[2].ID})

		jobs, err = s.GetSeriesJobs(context.Background(), 2)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("QuerySeries", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)
		ctx := context.Background()

		tests := []struct {
			name   string
			filter job.SeriesFilter
			want   []int64
		}{
			{"no filter", job.SeriesFilter{}, []int64{1, 2, 3}},
			{"owner exact", job.SeriesFilter{Owner: "alice@example.org"}, []int64{1, 2}},
			{"owner is case-sensitive", job.SeriesFilter{Owner: "ALICE@example.org"}, nil},
			{"name substring ignores case", job.SeriesFilter{Name: "COASTAL"}, []int64{1, 3}},
			{"description substring", job.SeriesFilter{Description: "processing"}, []int64{1, 2}},
			{"combined", job.SeriesFilter{Owner: "alice@example.org", Name: "coast"}, []int64{1}},
			{"wildcards are literal", job.SeriesFilter{Name: "%"}, nil},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := s.QuerySeries(ctx, tt.filter)
				require.NoError(t, err)
				var ids []int64
				for _, series := range got {
					ids = append(ids, series.ID)
				}
				assert.Equal(t, tt.want, ids)
			})
		}
	})

	t.Run("SaveJobWritesStatusOnly", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)
		ctx := context.Background()

		update := Jobs[0]
		update.Status = job.StatusDone
		update.InstanceRef = "i-reassigned"
		update.OutputDir = "elsewhere/"
		require.NoError(t, s.SaveJob(ctx, &update))

		got, err := s.GetJob(ctx, 12)
		require.NoError(t, err)
		assert.Equal(t, job.StatusDone, got.Status)
		assert.Equal(t, "i-12", got.InstanceRef)
		assert.Equal(t, "alice/1/12/", got.OutputDir)

		missing := job.Job{ID: 999, Status: job.StatusDone}
		assert.ErrorIs(t, s.SaveJob(ctx, &missing), apperrors.ErrNotFound)
	})

	t.Run("DeleteJobAndSeries", func(t *testing.T) {
		s := newStore(t)
		Seed(t, s)
		ctx := context.Background()

		require.NoError(t, s.DeleteJob(ctx, 20))
		_, err := s.GetJob(ctx, 20)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.NoError(t, s.DeleteJob(ctx, 20), "deleting a missing job is not an error")

		require.NoError(t, s.DeleteSeries(ctx, 3))
		_, err = s.GetSeries(ctx, 3)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.NoError(t, s.DeleteSeries(ctx, 3))

		other, err := s.GetJob(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), other.SeriesID)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
