package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gobbledegook/creevey/internal/logging"
)

// w3cFields is the #Fields directive for the lines Logger writes.
const w3cFields = "#Fields: date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken cs(User-Agent) cs(Referer) x-thumb-source"

// LoggingConfig selects which requests Logger writes.
type LoggingConfig struct {
	// SkipPaths are never logged.
	SkipPaths []string
	// StaticPrefixes and SkipExtensions identify bulk image traffic, which
	// is only logged with LogStaticFiles.
	StaticPrefixes  []string
	SkipExtensions  []string
	LogStaticFiles  bool
	LogHealthChecks bool
}

// DefaultLoggingConfig logs health probes but not thumbnail or asset traffic.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		StaticPrefixes:  []string{"/api/thumbnail"},
		SkipExtensions:  []string{".css", ".js", ".ico", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".woff", ".woff2"},
		LogHealthChecks: true,
	}
}

var probePaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

// accessEntry is one finished request.
type accessEntry struct {
	at       time.Time
	req      *http.Request
	status   int
	bytes    int64
	duration time.Duration
	// source is the X-Thumbnail-Source the handler set, if any.
	source string
}

// Logger writes one W3C Extended Log Format line per request.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	logging.Printf("%s", w3cFields)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)

			//nolint:gosec // every request-controlled field goes through sanitizeLogField
			logging.Printf("%s", accessEntry{
				at:       time.Now().UTC(),
				req:      r,
				status:   rec.status,
				bytes:    rec.written,
				duration: time.Since(start),
				source:   rec.Header().Get("X-Thumbnail-Source"),
			}.format())
		})
	}
}

func (e accessEntry) format() string {
	r := e.req
	return fmt.Sprintf("%s %s %s %s %s %s %d %d %d %s %s %s",
		e.at.Format("2006-01-02"),
		e.at.Format("15:04:05"),
		orDash(sanitizeLogField(clientIP(r))),
		sanitizeLogField(r.Method),
		sanitizeLogField(r.URL.Path),
		orDash(sanitizeLogField(r.URL.RawQuery)),
		e.status,
		e.bytes,
		e.duration.Milliseconds(),
		orDash(quoteW3C(sanitizeLogField(r.Header.Get("User-Agent")))),
		orDash(sanitizeLogField(r.Header.Get("Referer"))),
		orDash(sanitizeLogField(e.source)),
	)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// sanitizeLogField strips anything that could forge or corrupt a log line:
// CR and LF become spaces, other control characters are dropped.
func sanitizeLogField(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}

func shouldSkip(path string, config LoggingConfig) bool {
	if hasAnyPrefix(path, config.SkipPaths) {
		return true
	}
	if probePaths[path] {
		return !config.LogHealthChecks
	}
	if config.LogStaticFiles {
		return false
	}
	if hasAnyPrefix(path, config.StaticPrefixes) {
		return true
	}
	lower := strings.ToLower(path)
	for _, ext := range config.SkipExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i != -1 {
		host = host[:i]
	}
	return host
}

// quoteW3C quotes a field containing whitespace or quotes, doubling any
// embedded quotes.
func quoteW3C(s string) string {
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
