package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/gobbledegook/creevey/internal/handlers"
	"github.com/gobbledegook/creevey/internal/memory"
	"github.com/gobbledegook/creevey/internal/startup"
	"github.com/gobbledegook/creevey/internal/thumbcache"
)

func newTestHandlers(t *testing.T) (*handlers.Handlers, *thumbcache.Cache) {
	t.Helper()
	cache := thumbcache.New(thumbcache.Config{Workers: 1})
	h := handlers.New(cache, &startup.Config{Root: t.TempDir()})
	t.Cleanup(func() {
		h.Close()
		cache.Close()
	})
	return h, cache
}

func TestSetupRouter(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := setupRouter(h, false)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/healthz"},
		{"GET", "/livez"},
		{"HEAD", "/livez"},
		{"GET", "/readyz"},
		{"GET", "/version"},
		{"GET", "/api/thumbnail"},
		{"HEAD", "/api/thumbnail"},
		{"GET", "/api/info"},
		{"POST", "/api/transform"},
		{"GET", "/api/cache"},
		{"POST", "/api/cache"},
		{"POST", "/api/cache/abort"},
		{"POST", "/api/cache/resume"},
		{"PUT", "/api/cache/box"},
	}

	for _, tt := range routes {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			var match mux.RouteMatch
			if !router.Match(req, &match) || match.MatchErr != nil {
				t.Errorf("no route for %s %s", tt.method, tt.path)
			}
		})
	}

	t.Run("wrong method is rejected", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/api/transform", nil)
		var match mux.RouteMatch
		router.Match(req, &match)
		if match.MatchErr != mux.ErrMethodMismatch {
			t.Errorf("MatchErr = %v, want ErrMethodMismatch", match.MatchErr)
		}
	})

	t.Run("routes are logged", func(t *testing.T) {
		infos, err := startup.GetRoutes(router)
		if err != nil {
			t.Fatalf("GetRoutes: %v", err)
		}
		if len(infos) == 0 {
			t.Error("expected routes")
		}
	})
}

func TestSetupRouterWithMetrics(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := setupRouter(h, true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/cache", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/cache status = %d, want 200", rec.Code)
	}
}

func TestLivenessEndpoint(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := setupRouter(h, false)

	t.Run("GET /livez returns 200 with JSON", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/livez", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "alive") {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("HEAD /livez returns 200 without body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("HEAD", "/livez", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("HEAD body = %q, want empty", rec.Body.String())
		}
	})
}

func TestMetricsServer(t *testing.T) {
	h, _ := newTestHandlers(t)
	srv := newMetricsServer("0", h)

	if srv.Addr != ":0" {
		t.Errorf("Addr = %q", srv.Addr)
	}
	if srv.ReadTimeout != metricsReadTimeout || srv.WriteTimeout != metricsWriteTimeout || srv.IdleTimeout != metricsIdleTimeout {
		t.Error("metrics server timeouts not applied")
	}

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing Go collector")
	}
}

func TestServerTimeouts(t *testing.T) {
	if readTimeout <= 0 || idleTimeout <= 0 {
		t.Error("server timeouts should be positive")
	}
	if shutdownTimeout < 10*time.Second {
		t.Errorf("shutdown timeout %v is too short for in-flight decodes", shutdownTimeout)
	}
}

func TestShutdown(t *testing.T) {
	cache := thumbcache.New(thumbcache.Config{Workers: 1})
	h := handlers.New(cache, &startup.Config{Root: t.TempDir()})

	c := &components{
		srv:      &http.Server{Addr: ":0"},
		handlers: h,
		cache:    cache,
		monitor:  memory.NewMonitor(memory.DefaultConfig()),
	}
	shutdown(c)

	if _, err := cache.Get(t.Context(), "/nonexistent.jpg"); err != thumbcache.ErrClosed {
		t.Errorf("Get after shutdown = %v, want ErrClosed", err)
	}
}
