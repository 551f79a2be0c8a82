package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	h := RequestID(Logger(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusAccepted)
	})))
	req := httptest.NewRequest(http.MethodPost, "/v1/stripe/webhook", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") != "req-1" {
		t.Fatalf("X-Request-ID = %q", rec.Header().Get("X-Request-ID"))
	}
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d log lines: %s", len(lines), buf.String())
	}
	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("log line not json: %s", line)
		}
		if entry["request_id"] != "req-1" {
			t.Fatalf("request_id missing in %s", line)
		}
	}
	var access map[string]any
	_ = json.Unmarshal(lines[1], &access)
	if access["status"] != float64(http.StatusAccepted) || access["path"] != "/v1/stripe/webhook" {
		t.Fatalf("access line = %s", lines[1])
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/stripe/verify", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("allow origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Header().Get("Access-Control-Max-Age") != "600" {
		t.Fatalf("max age = %q", rec.Header().Get("Access-Control-Max-Age"))
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow origin for unknown site")
	}
}

func TestRequestIDReplacesUnsafeIDs(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	for _, rid := range []string{"", "has space", "line\nbreak", strings.Repeat("a", 129)} {
		req := httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
		req.Header.Set("X-Request-ID", rid)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if seen == rid || len(seen) != 36 {
			t.Fatalf("request id %q kept as %q", rid, seen)
		}
		if rec.Header().Get("X-Request-ID") != seen {
			t.Fatalf("header %q != context %q", rec.Header().Get("X-Request-ID"), seen)
		}
	}
}
