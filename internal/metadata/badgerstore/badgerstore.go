// Package badgerstore implements job.Store on an embedded Badger database.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"jobseries/internal/apperrors"
	"jobseries/internal/job"
	"os"
	"slices"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

type seriesRecord struct {
	ID          int64  `badgerhold:"key"`
	Owner       string `badgerhold:"index"`
	Name        string
	Description string
}

type jobRecord struct {
	ID          int64 `badgerhold:"key"`
	SeriesID    int64 `badgerhold:"index"`
	Name        string
	Status      string
	InstanceRef string
	OutputDir   string
}

// Store is a badgerhold implementation of job.Store.
type Store struct {
	store *badgerhold.Store
}

// Open opens or creates the database under path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &Store{store: store}, nil
}

// InsertSeries adds a series. Used by the submission system and tests.
func (s *Store) InsertSeries(_ context.Context, series job.Series) error {
	rec := seriesRecord{ID: series.ID, Owner: series.Owner, Name: series.Name, Description: series.Description}
	if err := s.store.Insert(series.ID, &rec); err != nil {
		return fmt.Errorf("failed to insert series: %w", err)
	}
	return nil
}

// InsertJob adds a job. Used by the submission system and tests.
func (s *Store) InsertJob(_ context.Context, j job.Job) error {
	rec := toRecord(j)
	if err := s.store.Insert(j.ID, &rec); err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(_ context.Context, id int64) (*job.Job, error) {
	var rec jobRecord
	if err := s.store.Get(id, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, apperrors.NotFound("job", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return rec.toJob()
}

func (s *Store) GetSeries(_ context.Context, id int64) (*job.Series, error) {
	var rec seriesRecord
	if err := s.store.Get(id, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, apperrors.NotFound("series", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get series: %w", err)
	}
	series := rec.toSeries()
	return &series, nil
}

func (s *Store) GetSeriesJobs(_ context.Context, seriesID int64) ([]job.Job, error) {
	var recs []jobRecord
	if err := s.store.Find(&recs, badgerhold.Where("SeriesID").Eq(seriesID).Index("SeriesID")); err != nil {
		return nil, fmt.Errorf("failed to list series jobs: %w", err)
	}

	jobs := make([]job.Job, 0, len(recs))
	for _, rec := range recs {
		j, err := rec.toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	slices.SortFunc(jobs, func(a, b job.Job) int { return compareID(a.ID, b.ID) })
	return jobs, nil
}

func (s *Store) QuerySeries(_ context.Context, f job.SeriesFilter) ([]job.Series, error) {
	var recs []seriesRecord
	var err error
	if f.Owner != "" {
		err = s.store.Find(&recs, badgerhold.Where("Owner").Eq(f.Owner).Index("Owner"))
	} else {
		err = s.store.Find(&recs, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}

	out := []job.Series{}
	for _, rec := range recs {
		series := rec.toSeries()
		if f.Matches(&series) {
			out = append(out, series)
		}
	}
	slices.SortFunc(out, func(a, b job.Series) int { return compareID(a.ID, b.ID) })
	return out, nil
}

// SaveJob writes the job's status. The read and write share one transaction.
func (s *Store) SaveJob(_ context.Context, j *job.Job) error {
	err := s.store.Badger().Update(func(tx *badger.Txn) error {
		var rec jobRecord
		if err := s.store.TxGet(tx, j.ID, &rec); err != nil {
			return err
		}
		rec.Status = string(j.Status)
		return s.store.TxUpdate(tx, j.ID, &rec)
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return apperrors.NotFound("job", strconv.FormatInt(j.ID, 10))
	}
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *Store) DeleteJob(_ context.Context, id int64) error {
	if err := s.store.Delete(id, &jobRecord{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (s *Store) DeleteSeries(_ context.Context, id int64) error {
	if err := s.store.Delete(id, &seriesRecord{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete series: %w", err)
	}
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	if s.store.Badger().IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

func (s *Store) Close() error {
	return s.store.Close()
}

func toRecord(j job.Job) jobRecord {
	return jobRecord{
		ID:          j.ID,
		SeriesID:    j.SeriesID,
		Name:        j.Name,
		Status:      string(j.Status),
		InstanceRef: j.InstanceRef,
		OutputDir:   j.OutputDir,
	}
}

func (r jobRecord) toJob() (*job.Job, error) {
	status, err := job.ParseStatus(r.Status)
	if err != nil {
		return nil, err
	}
	return &job.Job{
		ID:          r.ID,
		SeriesID:    r.SeriesID,
		Name:        r.Name,
		Status:      status,
		InstanceRef: r.InstanceRef,
		OutputDir:   r.OutputDir,
	}, nil
}

func (r seriesRecord) toSeries() job.Series {
	return job.Series{ID: r.ID, Owner: r.Owner, Name: r.Name, Description: r.Description}
}

func compareID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
