package sqlstore

import (
	"fmt"
	"strings"
)

// TableConfig configures the table names used by the store.
type TableConfig struct {
	// SeriesTable is the name of the table storing series.
	SeriesTable string

	// JobsTable is the name of the table storing jobs.
	JobsTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		SeriesTable: "jobseries_series",
		JobsTable:   "jobseries_jobs",
	}
}

// migrationUpStatements returns the schema statements for d, each runnable on its own.
func migrationUpStatements(d Dialect, cfg TableConfig) []string {
	if d == MySQL {
		// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id BIGINT PRIMARY KEY,
    owner VARCHAR(255) NOT NULL,
    name VARCHAR(255) NOT NULL,
    description TEXT NOT NULL,
    INDEX idx_series_owner (owner)
)`, cfg.SeriesTable),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id BIGINT PRIMARY KEY,
    series_id BIGINT NOT NULL,
    name VARCHAR(255) NOT NULL,
    status VARCHAR(16) NOT NULL,
    instance_ref VARCHAR(255) NOT NULL,
    output_dir VARCHAR(1024) NOT NULL,
    INDEX idx_jobs_series (series_id),
    FOREIGN KEY (series_id) REFERENCES %s(id) ON DELETE CASCADE
)`, cfg.JobsTable, cfg.SeriesTable),
		}
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id BIGINT PRIMARY KEY,
    owner TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL
)`, cfg.SeriesTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s(owner)`, cfg.SeriesTable, cfg.SeriesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id BIGINT PRIMARY KEY,
    series_id BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    instance_ref TEXT NOT NULL,
    output_dir TEXT NOT NULL
)`, cfg.JobsTable, cfg.SeriesTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_series ON %s(series_id)`, cfg.JobsTable, cfg.JobsTable),
	}
}

// migrationDownStatements drops the tables, jobs first for the foreign key.
func migrationDownStatements(cfg TableConfig) []string {
	return []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, cfg.JobsTable),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, cfg.SeriesTable),
	}
}

// MigrationUp returns the SQL to create the series and jobs tables.
// Statements are idempotent, so running it against an existing schema is safe.
func MigrationUp(d Dialect, cfg TableConfig) string {
	return strings.Join(migrationUpStatements(d, cfg), ";\n\n") + ";\n"
}

// MigrationDown returns the SQL to drop the series and jobs tables.
func MigrationDown(cfg TableConfig) string {
	return strings.Join(migrationDownStatements(cfg), ";\n") + ";\n"
}
