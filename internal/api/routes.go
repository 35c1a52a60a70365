package api

import (
	"jobseries/internal/health"
	"jobseries/internal/job"
	"jobseries/internal/observability"
	"net/http"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	JobService     *job.Service
	Metrics        *observability.Metrics
	HealthChecker  *health.Checker
	IdentityHeader string
	APIKey         string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.JobService, cfg.Metrics, cfg.HealthChecker, cfg.IdentityHeader)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	auth := AuthMiddleware(cfg.APIKey)
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, auth(fn))
	}

	// Series endpoints
	route("GET /v1/series", handler.QuerySeries)
	route("GET /v1/series/{seriesId}/jobs", handler.ListSeriesJobs)
	route("DELETE /v1/series/{seriesId}/jobs", handler.DeleteSeriesJobs)
	route("POST /v1/series/{seriesId}/cancel", handler.CancelSeriesJobs)

	// Job endpoints
	route("DELETE /v1/jobs/{jobId}", handler.DeleteJob)
	route("POST /v1/jobs/{jobId}/cancel", handler.CancelJob)
	route("GET /v1/jobs/{jobId}/files", handler.ListJobFiles)
	route("GET /v1/jobs/{jobId}/download", handler.DownloadFile)
	route("GET /v1/jobs/{jobId}/archive", handler.DownloadArchive)

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware(handler.identityHeader)(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)
	h = RequestIDMiddleware()(h)

	return h
}
