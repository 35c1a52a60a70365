package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/livez", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/series", 200, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/series/3/jobs", 200, 0.010)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/jobs/7/cancel", 502, 0.005)
	metrics.RecordHTTPRequest(ctx, "DELETE", "/v1/jobs/7", 403, 0.100)
}

func TestRecordLifecycleMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	metrics.RecordTransition(ctx, "Active", "Done", "output")
	metrics.RecordCascade(ctx, "delete", false, map[string]int{"deleted": 2, "skipped": 1, "failed": 0})
	metrics.RecordReconcile(ctx, "transitioned")
	metrics.RecordTerminate(ctx, true, 0.2)
	metrics.RecordArchiveEntry(ctx, "written")
	metrics.RecordArchiveIncomplete(ctx)
	metrics.RecordDownloadStarted(ctx, "archive")
	metrics.RecordDownloadFinished(ctx, "archive", 1024)
	metrics.RecordNotifyDelivered(ctx, 0.01)
	metrics.RecordNotifyFailed(ctx)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, name := range []string{
		"job_transitions_total",
		"series_cascade_jobs_total",
		"instance_terminates_total",
		"archive_entries_total",
		"archives_incomplete_total",
		"notify_failed_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected scrape output to contain %s", name)
		}
	}
}

func TestObserveBreakers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if err := metrics.ObserveBreakers(func() (int, int, int) { return 1, 0, 3 }); err != nil {
		t.Fatalf("ObserveBreakers() error = %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	var open, closed bool
	for _, line := range strings.Split(string(body), "\n") {
		if !strings.HasPrefix(line, "notify_breakers{") {
			continue
		}
		switch {
		case strings.Contains(line, `state="open"`):
			open = strings.HasSuffix(line, " 1")
		case strings.Contains(line, `state="closed"`):
			closed = strings.HasSuffix(line, " 3")
		}
	}
	if !open || !closed {
		t.Errorf("Expected breaker gauge values in scrape output, got:\n%s", body)
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/metrics", "/metrics"},
		{"/v1/series", "/v1/series"},
		{"/v1/jobs/42", "/v1/jobs/{jobId}"},
		{"/v1/jobs/42/files", "/v1/jobs/{jobId}/files"},
		{"/v1/series/9/jobs", "/v1/series/{seriesId}/jobs"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
