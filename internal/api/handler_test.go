package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"jobseries/internal/compute/computetest"
	"jobseries/internal/health"
	"jobseries/internal/job"
	metamem "jobseries/internal/metadata/memory"
	"jobseries/internal/metadata/storetest"
	"jobseries/internal/objectstore"
	objmem "jobseries/internal/objectstore/memory"
	"mime"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/zip"
)

const (
	testBucket = "vrl-job-output"
	alice      = "alice@example.org"
	bob        = "bob@example.org"
)

type testEnv struct {
	server   *httptest.Server
	store    *metamem.Store
	objects  *objmem.Store
	provider *computetest.Provider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    metamem.New(),
		objects:  objmem.New(testBucket),
		provider: computetest.New(),
	}
	storetest.Seed(t, env.store)

	svc := job.NewService(job.Config{
		Store:   env.store,
		Clients: job.StaticClients(env.objects, env.provider),
		Bucket:  testBucket,
	})
	checker := health.NewChecker(
		health.Dependency{Name: "metadata", Checker: health.CheckFunc(env.store.Ping)},
		health.Dependency{Name: "compute", Checker: env.provider},
	)

	env.server = httptest.NewServer(NewRouter(RouterConfig{
		JobService:    svc,
		HealthChecker: checker,
	}))
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, identity string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if identity != "" {
		req.Header.Set("X-Caller-Identity", identity)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) status(t *testing.T, id int64) job.Status {
	t.Helper()
	j, err := e.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob(%d) error = %v", id, err)
	}
	return j.Status
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func ids(v any) []int64 {
	var out []int64
	list, _ := v.([]any)
	for _, item := range list {
		if f, ok := item.(float64); ok {
			out = append(out, int64(f))
		}
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHandler_Livez(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/livez", "")

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestHandler_Readyz(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/readyz", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	down := newTestEnv(t)
	down.store.SetPingError(errors.New("connection refused"))
	resp = down.do(t, http.MethodGet, "/readyz", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, resp.StatusCode)
	}

	var response health.Response
	json.NewDecoder(resp.Body).Decode(&response)
	if response.Checks["metadata"].Status != health.StatusUnhealthy {
		t.Errorf("Expected metadata check unhealthy, got %+v", response.Checks)
	}
}

func TestHandler_QuerySeries(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name     string
		path     string
		identity string
		want     []int64
	}{
		{"own series by default", "/v1/series", alice, []int64{1, 2}},
		{"no identity", "/v1/series", "", nil},
		{"name filter", "/v1/series?name=COASTAL", alice, []int64{1, 3}},
		{"owner filter", "/v1/series?owner=bob@example.org", alice, []int64{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, tt.path, tt.identity)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
			}

			body := decode(t, resp)
			if body["success"] != true {
				t.Errorf("Expected success, got %v", body)
			}
			var got []int64
			for _, s := range body["series"].([]any) {
				got = append(got, int64(s.(map[string]any)["id"].(float64)))
			}
			if !equalIDs(got, tt.want) {
				t.Errorf("Expected series %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHandler_CancelJob(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		path     string
		identity string
		setup    func(*testEnv)
		want     int
		message  string
	}{
		{"owner cancels", "/v1/jobs/12/cancel", alice, nil, http.StatusOK, ""},
		{"other caller", "/v1/jobs/12/cancel", bob, nil, http.StatusForbidden, "You are not authorised to cancel this job."},
		{"no identity", "/v1/jobs/12/cancel", "", nil, http.StatusForbidden, "You are not authorised to cancel this job."},
		{"terminal job", "/v1/jobs/10/cancel", alice, nil, http.StatusConflict, "job in state Done does not accept cancel"},
		{"unknown job", "/v1/jobs/999/cancel", alice, nil, http.StatusNotFound, "job 999 not found"},
		{"malformed id", "/v1/jobs/abc/cancel", alice, nil, http.StatusNotFound, `job "abc" not found`},
		{
			"provider failure", "/v1/jobs/12/cancel", alice,
			func(e *testEnv) { e.provider.FailAll(errors.New("throttled")) },
			http.StatusBadGateway, "terminate instance i-12: throttled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}

			resp := env.do(t, http.MethodPost, tt.path, tt.identity)
			if resp.StatusCode != tt.want {
				t.Fatalf("Expected status %d, got %d", tt.want, resp.StatusCode)
			}

			body := decode(t, resp)
			if tt.want == http.StatusOK {
				if body["success"] != true {
					t.Errorf("Expected success, got %v", body)
				}
				if env.status(t, 12) != job.StatusCancelled {
					t.Errorf("Expected job 12 cancelled, got %s", env.status(t, 12))
				}
				return
			}
			if body["success"] != false || body["error"] != tt.message {
				t.Errorf("Expected error %q, got %v", tt.message, body)
			}
			if env.status(t, 12) != job.StatusActive {
				t.Errorf("Expected job 12 unchanged, got %s", env.status(t, 12))
			}
		})
	}
}

func TestHandler_DeleteJob(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodDelete, "/v1/jobs/20", alice)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, resp.StatusCode)
	}

	resp = env.do(t, http.MethodDelete, "/v1/jobs/20", bob)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if _, err := env.store.GetJob(context.Background(), 20); err == nil {
		t.Error("Expected job 20 to be deleted")
	}
}

func TestHandler_DeleteSeriesJobs_RunningJobs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodDelete, "/v1/series/1/jobs", alice)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected status %d, got %d", http.StatusConflict, resp.StatusCode)
	}

	body := decode(t, resp)
	if body["success"] != false || body["error"] != "Can not delete series, there are running jobs." {
		t.Errorf("Unexpected body %v", body)
	}
	if got := ids(body["deleted"]); !equalIDs(got, []int64{10}) {
		t.Errorf("Expected deleted [10], got %v", got)
	}
	if got := ids(body["skipped"]); !equalIDs(got, []int64{11, 12}) {
		t.Errorf("Expected skipped [11 12], got %v", got)
	}
}

func TestHandler_DeleteSeriesJobs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodDelete, "/v1/series/3/jobs", bob)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	body := decode(t, resp)
	if body["success"] != true || body["seriesDeleted"] != true {
		t.Errorf("Unexpected body %v", body)
	}
}

func TestHandler_CancelSeriesJobs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.provider.Fail("i-11", errors.New("instance locked"))

	resp := env.do(t, http.MethodPost, "/v1/series/1/cancel", alice)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	body := decode(t, resp)
	if body["success"] != true {
		t.Errorf("Expected success, got %v", body)
	}
	if got := ids(body["cancelled"]); !equalIDs(got, []int64{12}) {
		t.Errorf("Expected cancelled [12], got %v", got)
	}
	failed, _ := body["failed"].([]any)
	if len(failed) != 1 {
		t.Fatalf("Expected 1 failure, got %v", body["failed"])
	}
	if failed[0].(map[string]any)["jobId"] != float64(11) {
		t.Errorf("Expected job 11 to fail, got %v", failed[0])
	}
}

func TestHandler_ListSeriesJobs(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.objects.Put(testBucket, "alice/1/12/run.log", []byte("ok"))
	env.objects.Put(testBucket, "alice/1/12/error.log", []byte("boom"))

	resp := env.do(t, http.MethodGet, "/v1/series/1/jobs", alice)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	body := decode(t, resp)
	jobs := body["jobs"].([]any)
	if len(jobs) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(jobs))
	}
	if status := jobs[2].(map[string]any)["status"]; status != "Failed" {
		t.Errorf("Expected reconciled status Failed, got %v", status)
	}
	if env.status(t, 12) != job.StatusFailed {
		t.Errorf("Expected stored status Failed, got %s", env.status(t, 12))
	}
}

func TestHandler_ListJobFiles(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.objects.Put(testBucket, "alice/1/12/run.log", []byte("ok"))
	env.objects.Put(testBucket, "alice/1/12/result.csv", []byte("a,b\n"))

	resp := env.do(t, http.MethodGet, "/v1/jobs/12/files", alice)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	body := decode(t, resp)
	files := body["files"].([]any)
	if len(files) != 2 {
		t.Fatalf("Expected 2 files, got %d", len(files))
	}
	first := files[0].(map[string]any)
	if first["name"] != "alice/1/12/result.csv" || first["size"] != float64(4) {
		t.Errorf("Unexpected file entry %v", first)
	}
	if status := body["job"].(map[string]any)["status"]; status != "Done" {
		t.Errorf("Expected job status Done, got %v", status)
	}
}

func TestHandler_DownloadFile(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.objects.Put(testBucket, "alice/1/12/result.csv", []byte("a,b\n1,2\n"))

	resp := env.do(t, http.MethodGet, "/v1/jobs/12/download?key=alice/1/12/result.csv", alice)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Expected octet-stream, got %q", ct)
	}
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err != nil || params["filename"] != "result.csv" {
		t.Errorf("Expected filename result.csv, got %q (%v)", resp.Header.Get("Content-Disposition"), err)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "a,b\n1,2\n" {
		t.Errorf("Unexpected body %q", data)
	}

	resp = env.do(t, http.MethodGet, "/v1/jobs/12/download?key=alice/1/12/result.csv&filename=my%20results.csv", alice)
	_, params, _ = mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if params["filename"] != "my results.csv" {
		t.Errorf("Expected requested filename, got %q", params["filename"])
	}
}

func TestHandler_DownloadFile_Errors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.objects.Put(testBucket, "alice/1/12/result.csv", []byte("data"))

	tests := []struct {
		name     string
		path     string
		identity string
		want     int
	}{
		{"missing object", "/v1/jobs/12/download?key=alice/1/12/nope.csv", alice, http.StatusNotFound},
		{"missing key", "/v1/jobs/12/download", alice, http.StatusBadRequest},
		{"not the owner", "/v1/jobs/12/download?key=alice/1/12/result.csv", bob, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, tt.path, tt.identity)
			if resp.StatusCode != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected JSON error body, got %q", ct)
			}
		})
	}
}

// unsizedObjects reports every object body with an unknown length.
type unsizedObjects struct {
	*objmem.Store
}

func (u unsizedObjects) GetObject(ctx context.Context, bucket, key string) (*objectstore.Blob, error) {
	blob, err := u.Store.GetObject(ctx, bucket, key)
	if err == nil {
		blob.Size = -1
	}
	return blob, err
}

func TestHandler_DownloadFile_UnknownLength(t *testing.T) {
	t.Parallel()
	store := metamem.New()
	storetest.Seed(t, store)
	objects := objmem.New(testBucket)
	objects.Put(testBucket, "alice/1/12/result.csv", []byte("a,b\n1,2\n"))

	router := NewRouter(RouterConfig{
		JobService: job.NewService(job.Config{
			Store:   store,
			Clients: job.StaticClients(unsizedObjects{objects}, computetest.New()),
			Bucket:  testBucket,
		}),
		HealthChecker: health.NewChecker(),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/12/download?key=alice/1/12/result.csv", nil)
	req.Header.Set("X-Caller-Identity", alice)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if cl := rec.Header().Get("Content-Length"); cl != "" {
		t.Errorf("Expected no Content-Length for an unknown size, got %q", cl)
	}
	if rec.Body.String() != "a,b\n1,2\n" {
		t.Errorf("Unexpected body %q", rec.Body.String())
	}
}

func TestHandler_DownloadFile_AbortsOnReadFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.objects.Put(testBucket, "alice/1/12/big.bin", bytes.Repeat([]byte("x"), 4096))
	env.objects.FailReads("alice/1/12/big.bin", errors.New("connection reset"))

	resp := env.do(t, http.MethodGet, "/v1/jobs/12/download?key=alice/1/12/big.bin", alice)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected headers to be sent with status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if _, err := io.ReadAll(resp.Body); err == nil {
		t.Error("Expected the connection to be aborted mid-body")
	}
}

func TestHandler_DownloadArchive(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.objects.Put(testBucket, "a.txt", []byte("alpha"))
	env.objects.Put(testBucket, "b.txt", []byte("bravo"))

	resp := env.do(t, http.MethodGet, "/v1/jobs/12/archive?files=a.txt,missing.txt,b.txt", alice)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	_, params, _ := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if params["filename"] != "jobfiles.zip" {
		t.Errorf("Expected jobfiles.zip, got %q", params["filename"])
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Invalid zip: %v", err)
	}

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "b.txt" {
		t.Errorf("Expected entries [a.txt b.txt], got %v", names)
	}
}

func TestHandler_DownloadArchive_Errors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"all missing", "/v1/jobs/12/archive?files=x.txt,y.txt", http.StatusNotFound},
		{"no files", "/v1/jobs/12/archive", http.StatusBadRequest},
		{"blank files", "/v1/jobs/12/archive?files=,%20,", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, tt.path, alice)
			if resp.StatusCode != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, resp.StatusCode)
			}
			body := decode(t, resp)
			if body["success"] != false {
				t.Errorf("Expected JSON failure body, got %v", body)
			}
		})
	}
}

func TestSplitKeys(t *testing.T) {
	t.Parallel()
	got := splitKeys(" a.txt, ,b.txt,,")
	if len(got) != 2 || got[0] != "a.txt" || got[1] != "b.txt" {
		t.Errorf("Unexpected keys %v", got)
	}
	if splitKeys("") != nil {
		t.Error("Expected nil for empty input")
	}
}
