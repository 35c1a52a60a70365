package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests and provider calls take
// - Traffic: Request, transition and archive throughput
// - Errors: Rate of failures
// - Saturation: Downloads currently streaming
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Lifecycle metrics (Traffic, Errors)
	JobTransitionsTotal metric.Int64Counter
	CascadesTotal       metric.Int64Counter
	CascadeJobsTotal    metric.Int64Counter
	ReconcilesTotal     metric.Int64Counter

	// Compute provider metrics (Latency, Errors)
	TerminateDuration metric.Float64Histogram
	TerminatesTotal   metric.Int64Counter

	// Download metrics (Traffic, Errors, Saturation)
	ArchiveEntriesTotal     metric.Int64Counter
	ArchivesIncompleteTotal metric.Int64Counter
	DownloadBytesTotal      metric.Int64Counter
	DownloadsActive         metric.Int64UpDownCounter

	// Notification metrics (Latency, Traffic, Errors)
	NotifyDuration  metric.Float64Histogram
	NotifyDelivered metric.Int64Counter
	NotifyFailed    metric.Int64Counter
}

// NewMetrics creates all metrics and returns them with a Prometheus scrape handler.
// Each call uses its own registry.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("jobseries")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Lifecycle metrics
	m.JobTransitionsTotal, err = meter.Int64Counter(
		"job_transitions_total",
		metric.WithDescription("Total number of persisted job status transitions"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CascadesTotal, err = meter.Int64Counter(
		"series_cascades_total",
		metric.WithDescription("Total number of series-wide delete and cancel operations"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CascadeJobsTotal, err = meter.Int64Counter(
		"series_cascade_jobs_total",
		metric.WithDescription("Jobs visited by series cascades, by result"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ReconcilesTotal, err = meter.Int64Counter(
		"job_reconciles_total",
		metric.WithDescription("Output reconciliations, by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Compute provider metrics
	m.TerminateDuration, err = meter.Float64Histogram(
		"instance_terminate_duration_seconds",
		metric.WithDescription("Compute provider terminate call latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TerminatesTotal, err = meter.Int64Counter(
		"instance_terminates_total",
		metric.WithDescription("Total compute provider terminate calls"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Download metrics
	m.ArchiveEntriesTotal, err = meter.Int64Counter(
		"archive_entries_total",
		metric.WithDescription("Archive entries attempted, by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ArchivesIncompleteTotal, err = meter.Int64Counter(
		"archives_incomplete_total",
		metric.WithDescription("Archives sent without a single complete entry"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DownloadBytesTotal, err = meter.Int64Counter(
		"download_bytes_total",
		metric.WithDescription("Uncompressed object bytes streamed to clients"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DownloadsActive, err = meter.Int64UpDownCounter(
		"downloads_active",
		metric.WithDescription("Number of downloads currently streaming (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Notification metrics
	m.NotifyDuration, err = meter.Float64Histogram(
		"notify_duration_seconds",
		metric.WithDescription("Status notification delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDelivered, err = meter.Int64Counter(
		"notify_delivered_total",
		metric.WithDescription("Total status notifications delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyFailed, err = meter.Int64Counter(
		"notify_failed_total",
		metric.WithDescription("Total status notifications failed after retries or rejected by the breaker"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordTransition records a persisted job status change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to, trigger string) {
	m.JobTransitionsTotal.Add(ctx, 1, metric.WithAttributes(
		fromAttr(from),
		toAttr(to),
		triggerAttr(trigger),
	))
}

// RecordCascade records a finished series cascade and the per-job results.
// results maps a result name (deleted, cancelled, skipped, failed) to a job count.
func (m *Metrics) RecordCascade(ctx context.Context, operation string, success bool, results map[string]int) {
	m.CascadesTotal.Add(ctx, 1, metric.WithAttributes(operationAttr(operation), successAttr(success)))
	for result, n := range results {
		if n == 0 {
			continue
		}
		m.CascadeJobsTotal.Add(ctx, int64(n), metric.WithAttributes(operationAttr(operation), resultAttr(result)))
	}
}

// RecordReconcile records one reconciliation outcome
// (skipped, unchanged, transitioned, error).
func (m *Metrics) RecordReconcile(ctx context.Context, outcome string) {
	m.ReconcilesTotal.Add(ctx, 1, metric.WithAttributes(resultAttr(outcome)))
}

// RecordTerminate records a compute provider terminate call.
func (m *Metrics) RecordTerminate(ctx context.Context, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(successAttr(success))
	m.TerminateDuration.Record(ctx, durationSeconds, attrs)
	m.TerminatesTotal.Add(ctx, 1, attrs)
}

// RecordArchiveEntry records one archive entry (written, missing, failed).
func (m *Metrics) RecordArchiveEntry(ctx context.Context, outcome string) {
	m.ArchiveEntriesTotal.Add(ctx, 1, metric.WithAttributes(resultAttr(outcome)))
}

// RecordArchiveIncomplete records an archive whose started entries were all truncated.
func (m *Metrics) RecordArchiveIncomplete(ctx context.Context) {
	m.ArchivesIncompleteTotal.Add(ctx, 1)
}

// RecordDownloadStarted marks a download as streaming.
func (m *Metrics) RecordDownloadStarted(ctx context.Context, kind string) {
	m.DownloadsActive.Add(ctx, 1, metric.WithAttributes(kindAttr(kind)))
}

// RecordDownloadFinished records bytes sent and clears the streaming mark.
func (m *Metrics) RecordDownloadFinished(ctx context.Context, kind string, bytes int64) {
	attrs := metric.WithAttributes(kindAttr(kind))
	m.DownloadsActive.Add(ctx, -1, attrs)
	m.DownloadBytesTotal.Add(ctx, bytes, attrs)
}

// RecordNotifyDelivered records a delivered notification with its duration.
func (m *Metrics) RecordNotifyDelivered(ctx context.Context, durationSeconds float64) {
	m.NotifyDelivered.Add(ctx, 1)
	m.NotifyDuration.Record(ctx, durationSeconds)
}

// RecordNotifyFailed records a notification that was not delivered.
func (m *Metrics) RecordNotifyFailed(ctx context.Context) {
	m.NotifyFailed.Add(ctx, 1)
}

// BreakerCounts reports how many notification circuit breakers are in each state.
type BreakerCounts func() (open, halfOpen, closed int)

// ObserveBreakers exports the states reported by counts as a gauge, read on
// every scrape.
func (m *Metrics) ObserveBreakers(counts BreakerCounts) error {
	_, err := m.meter.Int64ObservableGauge(
		"notify_breakers",
		metric.WithDescription("Notification circuit breakers, by state"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			open, halfOpen, closed := counts()
			o.Observe(int64(open), metric.WithAttributes(stateAttr("open")))
			o.Observe(int64(halfOpen), metric.WithAttributes(stateAttr("half-open")))
			o.Observe(int64(closed), metric.WithAttributes(stateAttr("closed")))
			return nil
		}),
	)
	return err
}
