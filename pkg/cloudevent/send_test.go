package cloudevent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPError_Error(t *testing.T) {
	t.Parallel()
	tests := []struct {
		statusCode int
		expected   string
	}{
		{400, "HTTP 400"},
		{404, "HTTP 404"},
		{500, "HTTP 500"},
		{503, "HTTP 503"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			t.Parallel()
			err := &HTTPError{StatusCode: tt.statusCode}
			if err.Error() != tt.expected {
				t.Errorf("HTTPError{%d}.Error() = %q, want %q", tt.statusCode, err.Error(), tt.expected)
			}
		})
	}
}

func TestIsClientError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "400 Bad Request",
			err:      &HTTPError{StatusCode: 400},
			expected: true,
		},
		{
			name:     "401 Unauthorized",
			err:      &HTTPError{StatusCode: 401},
			expected: true,
		},
		{
			name:     "404 Not Found",
			err:      &HTTPError{StatusCode: 404},
			expected: true,
		},
		{
			name:     "499 client error boundary",
			err:      &HTTPError{StatusCode: 499},
			expected: true,
		},
		{
			name:     "500 Internal Server Error",
			err:      &HTTPError{StatusCode: 500},
			expected: false,
		},
		{
			name:     "503 Service Unavailable",
			err:      &HTTPError{StatusCode: 503},
			expected: false,
		},
		{
			name:     "399 not a client error",
			err:      &HTTPError{StatusCode: 399},
			expected: false,
		},
		{
			name:     "non-HTTP error",
			err:      context.DeadlineExceeded,
			expected: false,
		},
		{
			name:     "wrapped 404",
			err:      fmt.Errorf("notify: %w", &HTTPError{StatusCode: 404}),
			expected: true,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := IsClientError(tt.err)
			if got != tt.expected {
				t.Errorf("IsClientError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestGenerateSignature(t *testing.T) {
	t.Parallel()
	payload := []byte(`{"test":"data"}`)
	key := "secret-key"

	signature := generateSignature(payload, key)

	// Verify it starts with sha256=
	if len(signature) < 7 || signature[:7] != "sha256=" {
		t.Errorf("signature should start with 'sha256=', got %q", signature)
	}

	// Verify the hex part is 64 characters (SHA256 = 32 bytes = 64 hex chars)
	hexPart := signature[7:]
	if len(hexPart) != 64 {
		t.Errorf("signature hex part should be 64 chars, got %d", len(hexPart))
	}

	// Verify deterministic output
	signature2 := generateSignature(payload, key)
	if signature != signature2 {
		t.Error("signature should be deterministic")
	}

	// Different key should produce different signature
	signature3 := generateSignature(payload, "different-key")
	if signature == signature3 {
		t.Error("different keys should produce different signatures")
	}
}

func TestSender_Send(t *testing.T) {
	t.Parallel()

	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	event := New(TypeJobStatusChanged, "jobseries", "jobs/7", map[string]any{"status": "Cancelled"})
	err := NewSender(time.Second).Send(context.Background(), srv.URL, event, SendOptions{SigningKey: "k"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotHeaders.Get("Ce-Type") != TypeJobStatusChanged {
		t.Errorf("Ce-Type = %q", gotHeaders.Get("Ce-Type"))
	}
	if gotHeaders.Get("Ce-Id") != event.ID || event.ID == "" {
		t.Errorf("Ce-Id = %q, event ID = %q", gotHeaders.Get("Ce-Id"), event.ID)
	}
	if gotHeaders.Get(SignatureHeader) != generateSignature(gotBody, "k") {
		t.Error("expected signature to verify against received body")
	}

	var decoded CloudEvent
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if decoded.Subject != "jobs/7" || decoded.Data["status"] != "Cancelled" {
		t.Errorf("unexpected event body: %+v", decoded)
	}
}

func TestSender_SendErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	event := New(TypeJobDeleted, "jobseries", "jobs/1", nil)
	err := NewSender(time.Second).Send(context.Background(), srv.URL, event, SendOptions{})
	if !IsClientError(err) {
		t.Errorf("expected client error, got %v", err)
	}
	if _, ok := err.(*HTTPError); !ok {
		t.Errorf("expected *HTTPError, got %T", err)
	}
}
