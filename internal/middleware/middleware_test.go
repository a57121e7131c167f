package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gobbledegook/creevey/internal/metrics"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })
	return &buf
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := record(rec)

	if rw.status != http.StatusOK {
		t.Errorf("default status = %d", rw.status)
	}
	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.status != http.StatusAccepted || rec.Code != http.StatusAccepted {
		t.Errorf("status = %d/%d, want only the first WriteHeader to count", rw.status, rec.Code)
	}

	n, err := rw.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	rw.Write([]byte(" world"))
	if rw.written != 11 {
		t.Errorf("written = %d, want 11", rw.written)
	}
	if record(rw) != rw {
		t.Error("record() should reuse an existing recorder")
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap() should return the wrapped writer")
	}
}

func TestShouldSkip(t *testing.T) {
	cfg := DefaultLoggingConfig()
	cfg.SkipPaths = []string{"/internal"}

	tests := []struct {
		path   string
		config func(LoggingConfig) LoggingConfig
		want   bool
	}{
		{path: "/api/info", want: false},
		{path: "/api/thumbnail", want: true},
		{path: "/static/app.JS", want: true},
		{path: "/internal/debug", want: true},
		{path: "/health", want: false},
		{path: "/health", config: func(c LoggingConfig) LoggingConfig { c.LogHealthChecks = false; return c }, want: true},
		{path: "/api/thumbnail", config: func(c LoggingConfig) LoggingConfig { c.LogStaticFiles = true; return c }, want: false},
	}

	for _, tt := range tests {
		c := cfg
		if tt.config != nil {
			c = tt.config(cfg)
		}
		if got := shouldSkip(tt.path, c); got != tt.want {
			t.Errorf("shouldSkip(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLoggerMiddleware(t *testing.T) {
	buf := captureLog(t)

	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/info?path=a.jpg", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11)")
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{w3cFields, "10.0.0.1 GET /api/info path=a.jpg 418 15", `"Mozilla/5.0 (X11)"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q does not contain %q", line, want)
		}
	}

	buf.Reset()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/thumbnail?path=a.jpg", nil))
	if buf.Len() != 0 {
		t.Errorf("thumbnail request was logged: %q", buf.String())
	}
}

func TestAccessEntryFormat(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/transform", nil)
	req.RemoteAddr = "192.168.1.5:51234"
	req.Header.Set("Referer", "http://x/\nforged 200")

	now := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)
	e := accessEntry{at: now, req: req, status: 200, bytes: 42, duration: 1500 * time.Millisecond}
	want := "2024-03-01 12:30:45 192.168.1.5 POST /api/transform - 200 42 1500 - http://x/ forged 200 -"
	if got := e.format(); got != want {
		t.Errorf("format() =\n%q\nwant\n%q", got, want)
	}

	e.source = "embedded"
	if got := e.format(); !strings.HasSuffix(got, " embedded") {
		t.Errorf("format() = %q, want thumbnail source at the end", got)
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := map[string]string{
		"plain":          "plain",
		"a\nb\rc":        "a b c",
		"\x1b[31mred":    "[31mred",
		"nul\x00byte":    "nulbyte",
		"tab\tkept\x07!": "tab\tkept!",
	}
	for in, want := range tests {
		if got := sanitizeLogField(in); got != want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	if got := clientIP(req); got != "1.2.3.4" {
		t.Errorf("clientIP() = %q", got)
	}
	req.Header.Set("X-Real-IP", "5.6.7.8")
	if got := clientIP(req); got != "5.6.7.8" {
		t.Errorf("clientIP() with X-Real-IP = %q", got)
	}
}

func TestQuoteW3C(t *testing.T) {
	if got := quoteW3C("curl/8.0"); got != "curl/8.0" {
		t.Errorf("quoteW3C() = %q", got)
	}
	if got := quoteW3C(`say "hi"`); got != `"say ""hi"""` {
		t.Errorf("quoteW3C() = %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/":                      "/",
		"/api/info":              "/api/info",
		"/api/cache/box":         "/api/cache/box",
		"/static/a/b/c/d.js":     "/static/a/b/{path}",
		"/api/cache/abort/extra": "/api/cache/abort/{path}",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMetricsMiddleware(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/info", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/info", "404")
	before := testutil.ToFloat64(counter)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/info?path=x", nil))
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("request counter moved by %v, want 1", got)
	}

	health := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200")
	before = testutil.ToFloat64(health)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := testutil.ToFloat64(health) - before; got != 0 {
		t.Errorf("health check was recorded")
	}
}
