// Package sqlstore implements job.Store on PostgreSQL, MySQL or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"jobseries/internal/apperrors"
	"jobseries/internal/job"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects the SQL flavour and the database/sql driver.
type Dialect string

// Supported dialects. The values match the configuration backend names.
const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// Driver returns the registered database/sql driver name.
func (d Dialect) Driver() string {
	if d == SQLite {
		return "sqlite3"
	}
	return string(d)
}

// placeholder returns the bind parameter for the n-th argument (1-based).
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// ownerEquals returns a case-sensitive owner comparison against the n-th
// argument. MySQL's default collation ignores case, so it compares bytes.
func (d Dialect) ownerEquals(n int) string {
	if d == MySQL {
		return "BINARY owner = " + d.placeholder(n)
	}
	return "owner = " + d.placeholder(n)
}

// Store is a database/sql implementation of job.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	series  string
	jobs    string
}

// Open connects to dsn with the driver for d and verifies the connection.
func Open(ctx context.Context, d Dialect, dsn string, cfg TableConfig) (*Store, error) {
	db, err := sql.Open(d.Driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d, err)
	}
	return NewWithConfig(db, d, cfg), nil
}

// New creates a store over db with default table names.
func New(db *sql.DB, d Dialect) *Store {
	return NewWithConfig(db, d, DefaultTableConfig())
}

// NewWithConfig creates a store over db with custom table names.
func NewWithConfig(db *sql.DB, d Dialect, cfg TableConfig) *Store {
	return &Store{
		db:      db,
		dialect: d,
		series:  cfg.SeriesTable,
		jobs:    cfg.JobsTable,
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	cfg := TableConfig{SeriesTable: s.series, JobsTable: s.jobs}
	for _, stmt := range migrationUpStatements(s.dialect, cfg) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// Drop removes the tables.
func (s *Store) Drop(ctx context.Context) error {
	cfg := TableConfig{SeriesTable: s.series, JobsTable: s.jobs}
	for _, stmt := range migrationDownStatements(cfg) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop tables: %w", err)
		}
	}
	return nil
}

// InsertSeries adds a series. Used by the submission system and tests.
func (s *Store) InsertSeries(ctx context.Context, series job.Series) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, owner, name, description) VALUES (%s)`,
		s.series, s.placeholders(4))
	if _, err := s.db.ExecContext(ctx, query, series.ID, series.Owner, series.Name, series.Description); err != nil {
		return fmt.Errorf("failed to insert series: %w", err)
	}
	return nil
}

// InsertJob adds a job. Used by the submission system and tests.
func (s *Store) InsertJob(ctx context.Context, j job.Job) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, series_id, name, status, instance_ref, output_dir) VALUES (%s)`,
		s.jobs, s.placeholders(6))
	_, err := s.db.ExecContext(ctx, query, j.ID, j.SeriesID, j.Name, string(j.Status), j.InstanceRef, j.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id int64) (*job.Job, error) {
	query := fmt.Sprintf(`SELECT id, series_id, name, status, instance_ref, output_dir FROM %s WHERE id = %s`,
		s.jobs, s.dialect.placeholder(1))

	j, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("job", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

func (s *Store) GetSeries(ctx context.Context, id int64) (*job.Series, error) {
	query := fmt.Sprintf(`SELECT id, owner, name, description FROM %s WHERE id = %s`,
		s.series, s.dialect.placeholder(1))

	var series job.Series
	err := s.db.QueryRowContext(ctx, query, id).Scan(&series.ID, &series.Owner, &series.Name, &series.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("series", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get series: %w", err)
	}
	return &series, nil
}

func (s *Store) GetSeriesJobs(ctx context.Context, seriesID int64) ([]job.Job, error) {
	query := fmt.Sprintf(`SELECT id, series_id, name, status, instance_ref, output_dir FROM %s WHERE series_id = %s ORDER BY id`,
		s.jobs, s.dialect.placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, seriesID)
	if err != nil {
		return nil, fmt.Errorf("failed to list series jobs: %w", err)
	}
	defer rows.Close()

	jobs := []job.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list series jobs: %w", err)
	}
	return jobs, nil
}

func (s *Store) QuerySeries(ctx context.Context, f job.SeriesFilter) ([]job.Series, error) {
	var where []string
	var args []any

	if f.Owner != "" {
		args = append(args, f.Owner)
		where = append(where, s.dialect.ownerEquals(len(args)))
	}
	if f.Name != "" {
		args = append(args, likePattern(f.Name))
		where = append(where, "LOWER(name) LIKE "+s.dialect.placeholder(len(args))+" ESCAPE '!'")
	}
	if f.Description != "" {
		args = append(args, likePattern(f.Description))
		where = append(where, "LOWER(description) LIKE "+s.dialect.placeholder(len(args))+" ESCAPE '!'")
	}

	query := fmt.Sprintf(`SELECT id, owner, name, description FROM %s`, s.series)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	defer rows.Close()

	out := []job.Series{}
	for rows.Next() {
		var series job.Series
		if err := rows.Scan(&series.ID, &series.Owner, &series.Name, &series.Description); err != nil {
			return nil, fmt.Errorf("failed to scan series: %w", err)
		}
		out = append(out, series)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query series: %w", err)
	}
	return out, nil
}

func (s *Store) SaveJob(ctx context.Context, j *job.Job) error {
	query := fmt.Sprintf(`UPDATE %s SET status = %s WHERE id = %s`,
		s.jobs, s.dialect.placeholder(1), s.dialect.placeholder(2))

	result, err := s.db.ExecContext(ctx, query, string(j.Status), j.ID)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// MySQL reports zero when the value is unchanged, so confirm the row is gone.
		if _, err := s.GetJob(ctx, j.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, s.jobs, s.dialect.placeholder(1))
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (s *Store) DeleteSeries(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, s.series, s.dialect.placeholder(1))
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete series: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = s.dialect.placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var j job.Job
	var status string
	if err := row.Scan(&j.ID, &j.SeriesID, &j.Name, &status, &j.InstanceRef, &j.OutputDir); err != nil {
		return nil, err
	}
	parsed, err := job.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	j.Status = parsed
	return &j, nil
}

// likePattern builds a case-insensitive substring pattern with '!' as the escape character.
func likePattern(v string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(strings.ToLower(v)) + "%"
}
