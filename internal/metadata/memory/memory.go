// Package memory provides an in-memory job.Store.
package memory

import (
	"context"
	"jobseries/internal/apperrors"
	"jobseries/internal/job"
	"sort"
	"strconv"
	"sync"
)

// Store keeps series and jobs in maps. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	series   map[int64]job.Series
	jobs     map[int64]job.Job
	writeErr error
	pingErr  error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		series: make(map[int64]job.Series),
		jobs:   make(map[int64]job.Job),
	}
}

// InsertSeries adds or replaces a series.
func (s *Store) InsertSeries(_ context.Context, series job.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[series.ID] = series
	return nil
}

// InsertJob adds or replaces a job.
func (s *Store) InsertJob(_ context.Context, j job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	return nil
}

// FailWrites makes SaveJob, DeleteJob and DeleteSeries return err. Nil clears it.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// SetPingError sets the error returned by Ping.
func (s *Store) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

func (s *Store) GetJob(_ context.Context, id int64) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", strconv.FormatInt(id, 10))
	}
	return &j, nil
}

func (s *Store) GetSeries(_ context.Context, id int64) (*job.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.series[id]
	if !ok {
		return nil, apperrors.NotFound("series", strconv.FormatInt(id, 10))
	}
	return &series, nil
}

func (s *Store) GetSeriesJobs(_ context.Context, seriesID int64) ([]job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := []job.Job{}
	for _, j := range s.jobs {
		if j.SeriesID == seriesID {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].ID < jobs[b].ID })
	return jobs, nil
}

func (s *Store) QuerySeries(_ context.Context, f job.SeriesFilter) ([]job.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []job.Series{}
	for _, series := range s.series {
		if f.Matches(&series) {
			out = append(out, series)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *Store) SaveJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}

	stored, ok := s.jobs[j.ID]
	if !ok {
		return apperrors.NotFound("job", strconv.FormatInt(j.ID, 10))
	}
	stored.Status = j.Status
	s.jobs[j.ID] = stored
	return nil
}

func (s *Store) DeleteJob(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	delete(s.jobs, id)
	return nil
}

func (s *Store) DeleteSeries(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	delete(s.series, id)
	return nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}

func (s *Store) Close() error {
	return nil
}
