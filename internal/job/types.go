package job

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a job.
type Status string

// Job states. Done, Failed and Cancelled are terminal.
const (
	StatusPending   Status = "Pending"
	StatusActive    Status = "Active"
	StatusDone      Status = "Done"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDone, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ParseStatus parses a stored status value.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown job status %q", v)
	}
	return s, nil
}

// Series is a named, owned group of jobs.
type Series struct {
	ID          int64  `json:"id"`
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Job is one unit of remote compute work.
type Job struct {
	ID          int64  `json:"id"`
	SeriesID    int64  `json:"seriesId"`
	Name        string `json:"name,omitempty"`
	Status      Status `json:"status"`
	InstanceRef string `json:"instanceRef,omitempty"` // compute instance, set once at submission
	OutputDir   string `json:"outputDir,omitempty"`   // object key prefix for results
}

// SeriesFilter selects series. Owner matches exactly; Name and Description
// match case-insensitive substrings. Empty fields match everything.
type SeriesFilter struct {
	Owner       string `json:"owner,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// IsZero reports whether no filter field is set.
func (f SeriesFilter) IsZero() bool {
	return f.Owner == "" && f.Name == "" && f.Description == ""
}

// Matches reports whether s passes the filter.
func (f SeriesFilter) Matches(s *Series) bool {
	if f.Owner != "" && s.Owner != f.Owner {
		return false
	}
	return containsFold(s.Name, f.Name) && containsFold(s.Description, f.Description)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// JobFailure reports one job a cascade could not process.
type JobFailure struct {
	JobID int64  `json:"jobId"`
	Error string `json:"error"`
}

// CascadeResult aggregates a series-wide delete or cancel.
type CascadeResult struct {
	SeriesID      int64        `json:"seriesId"`
	Deleted       []int64      `json:"deleted,omitempty"`
	Cancelled     []int64      `json:"cancelled,omitempty"`
	Skipped       []int64      `json:"skipped,omitempty"` // left untouched because of their status
	Failed        []JobFailure `json:"failed,omitempty"`
	SeriesDeleted bool         `json:"seriesDeleted,omitempty"`
}

// Partial reports whether any job in the cascade failed.
func (r *CascadeResult) Partial() bool {
	return len(r.Failed) > 0
}

// JobListing is a series' jobs after reconciliation.
// Reconcile failures are reported per job; those jobs keep their stored status.
type JobListing struct {
	SeriesID        int64            `json:"seriesId"`
	Jobs            []Job            `json:"jobs"`
	ReconcileErrors map[int64]string `json:"reconcileErrors,omitempty"`
}
