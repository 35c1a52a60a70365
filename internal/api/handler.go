// Package api provides the HTTP API handlers and routing for the jobseries service.
package api

import (
	"encoding/json"
	"jobseries/internal/apperrors"
	"jobseries/internal/archive"
	"jobseries/internal/cloud"
	"jobseries/internal/health"
	"jobseries/internal/job"
	"jobseries/internal/observability"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

// Headers carrying per-request provider credentials. Absent headers fall back
// to the configured defaults.
const (
	HeaderAccessKeyID     = "X-Provider-Access-Key-Id"
	HeaderSecretAccessKey = "X-Provider-Secret-Access-Key"
	HeaderSessionToken    = "X-Provider-Session-Token"
	HeaderRegion          = "X-Provider-Region"
)

// archiveFilename names every multi-file download.
const archiveFilename = "jobfiles.zip"

// Download kinds, as recorded in metrics.
const (
	downloadFile    = "file"
	downloadArchive = "archive"
)

// Handler contains HTTP handlers for the jobseries API
type Handler struct {
	svc            *job.Service
	metrics        *observability.Metrics
	health         *health.Checker
	identityHeader string
}

// NewHandler creates a new API handler
func NewHandler(svc *job.Service, metrics *observability.Metrics, healthChecker *health.Checker, identityHeader string) *Handler {
	if identityHeader == "" {
		identityHeader = "X-Caller-Identity"
	}
	return &Handler{
		svc:            svc,
		metrics:        metrics,
		health:         healthChecker,
		identityHeader: identityHeader,
	}
}

// QuerySeries handles GET /v1/series
func (h *Handler) QuerySeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := job.SeriesFilter{
		Owner:       q.Get("owner"),
		Name:        q.Get("name"),
		Description: q.Get("description"),
	}

	series, err := h.svc.QuerySeries(r.Context(), h.caller(r), filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, struct {
		Success bool         `json:"success"`
		Series  []job.Series `json:"series"`
	}{true, series})
}

// ListSeriesJobs handles GET /v1/series/{seriesId}/jobs
func (h *Handler) ListSeriesJobs(w http.ResponseWriter, r *http.Request) {
	seriesID, err := pathID(r, "seriesId", "series")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	listing, err := h.svc.ListJobsForSeries(r.Context(), h.caller(r), seriesID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*job.JobListing
	}{true, listing})
}

// DeleteSeriesJobs handles DELETE /v1/series/{seriesId}/jobs
func (h *Handler) DeleteSeriesJobs(w http.ResponseWriter, r *http.Request) {
	seriesID, err := pathID(r, "seriesId", "series")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	result, err := h.svc.DeleteSeriesJobs(r.Context(), h.caller(r), seriesID)
	h.writeCascade(w, r, result, err)
}

// CancelSeriesJobs handles POST /v1/series/{seriesId}/cancel
func (h *Handler) CancelSeriesJobs(w http.ResponseWriter, r *http.Request) {
	seriesID, err := pathID(r, "seriesId", "series")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	result, err := h.svc.CancelSeriesJobs(r.Context(), h.caller(r), seriesID)
	h.writeCascade(w, r, result, err)
}

// DeleteJob handles DELETE /v1/jobs/{jobId}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobId", "job")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if err := h.svc.DeleteJob(r.Context(), h.caller(r), jobID); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// CancelJob handles POST /v1/jobs/{jobId}/cancel
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobId", "job")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if err := h.svc.CancelJob(r.Context(), h.caller(r), jobID); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// ListJobFiles handles GET /v1/jobs/{jobId}/files
func (h *Handler) ListJobFiles(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobId", "job")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	files, err := h.svc.ListJobFiles(r.Context(), h.caller(r), jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*job.JobFiles
	}{true, files})
}

// DownloadFile handles GET /v1/jobs/{jobId}/download?key=&filename=
// The object is opened before any header is written, so lookup failures are
// still reported as JSON.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobId", "job")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	key := r.URL.Query().Get("key")
	blob, err := h.svc.OpenFile(r.Context(), h.caller(r), jobID, key)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = blob.Name()
	}

	logger := slog.With("jobId", jobID, "key", key)

	h.downloadStarted(r, downloadFile)
	setAttachmentHeaders(w, filename)
	if blob.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(blob.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := archive.Stream(w, blob)
	h.downloadFinished(r, downloadFile, n)
	if err != nil {
		logger.Error("Download aborted", "bytes", n, "error", err)
		panic(http.ErrAbortHandler)
	}
	logger.Info("File downloaded", "bytes", n)
}

// DownloadArchive handles GET /v1/jobs/{jobId}/archive?files=k1,k2
func (h *Handler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathID(r, "jobId", "job")
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	keys := splitKeys(r.URL.Query().Get("files"))
	if len(keys) == 0 {
		h.handleError(w, r, apperrors.Validation("files", "at least one file key is required"))
		return
	}

	open, err := h.svc.FileOpener(r.Context(), h.caller(r), jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	logger := slog.With("jobId", jobID, "files", len(keys))

	summary, err := archive.StreamArchive(r.Context(), w, open, keys, archive.Options{
		BeforeWrite: func() {
			h.downloadStarted(r, downloadArchive)
			setAttachmentHeaders(w, archiveFilename)
			w.WriteHeader(http.StatusOK)
		},
		Metrics: h.metrics,
	})
	if summary.Started {
		h.downloadFinished(r, downloadArchive, summary.Bytes)
	}
	if err != nil {
		if summary.Started {
			logger.Error("Archive aborted", "entries", summary.Written(), "bytes", summary.Bytes, "error", err)
			panic(http.ErrAbortHandler)
		}
		h.handleError(w, r, err)
		return
	}
	logger.Info("Archive downloaded", "entries", summary.Written(), "bytes", summary.Bytes)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 if the metadata store or compute provider is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// caller builds the request's caller from the identity and credential headers.
func (h *Handler) caller(r *http.Request) job.Caller {
	return job.Caller{
		Identity: strings.TrimSpace(r.Header.Get(h.identityHeader)),
		Credentials: cloud.Credentials{
			AccessKeyID:     r.Header.Get(HeaderAccessKeyID),
			SecretAccessKey: r.Header.Get(HeaderSecretAccessKey),
			SessionToken:    r.Header.Get(HeaderSessionToken),
			Region:          r.Header.Get(HeaderRegion),
		},
	}
}

type successResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// writeCascade writes a cascade result. A failed cascade still reports what it did.
func (h *Handler) writeCascade(w http.ResponseWriter, r *http.Request, result *job.CascadeResult, err error) {
	if err != nil && result == nil {
		h.handleError(w, r, err)
		return
	}

	status := http.StatusOK
	resp := struct {
		successResponse
		*job.CascadeResult
	}{successResponse{Success: true}, result}

	if err != nil {
		status = h.logError(r, err)
		resp.Success = false
		resp.Error = err.Error()
	}
	h.writeJSON(w, status, resp)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, successResponse{Success: false, Error: message})
}

// handleError handles errors from service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := h.logError(r, err)
	h.writeError(w, status, err.Error())
}

func (h *Handler) logError(r *http.Request, err error) int {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.ErrorContext(r.Context(), "Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.WarnContext(r.Context(), "Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	return status
}

func (h *Handler) downloadStarted(r *http.Request, kind string) {
	if h.metrics != nil {
		h.metrics.RecordDownloadStarted(r.Context(), kind)
	}
}

func (h *Handler) downloadFinished(r *http.Request, kind string, bytes int64) {
	if h.metrics != nil {
		h.metrics.RecordDownloadFinished(r.Context(), kind, bytes)
	}
}

// pathID parses a numeric path parameter. Malformed IDs name no resource, so
// they are reported as not found.
func pathID(r *http.Request, param, resource string) (int64, error) {
	raw := r.PathValue(param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NotFound(resource, strconv.Quote(raw))
	}
	return id, nil
}

// splitKeys parses a comma separated key list, dropping blanks.
func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func setAttachmentHeaders(w http.ResponseWriter, filename string) {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", disposition)
}
