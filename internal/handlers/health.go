package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gobbledegook/creevey/internal/memory"
	"github.com/gobbledegook/creevey/internal/startup"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Error   string `json:"error,omitempty"`

	// Cache summary
	CacheEntries int    `json:"cacheEntries"`
	CachePending int    `json:"cachePending"`
	CacheBox     string `json:"cacheBox"`
	Aborted      bool   `json:"aborted"`
	Memory       string `json:"memory"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// rootError reports why the media root cannot be served, if it cannot.
func (h *Handlers) rootError() string {
	st, err := os.Stat(h.root)
	if err != nil {
		return err.Error()
	}
	if !st.IsDir() {
		return h.root + " is not a directory"
	}
	return ""
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	stats := h.cache.Stats()

	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        true,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		CacheEntries: stats.Entries,
		CachePending: stats.Pending,
		CacheBox:     h.cache.BoundingBox().String(),
		Aborted:      h.cache.Aborted(),
		Memory:       h.cache.MemoryPressure().String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if msg := h.rootError(); msg != "" {
		response.Status = statusUnhealthy
		response.Ready = false
		response.Error = msg
	} else if response.Aborted || h.cache.MemoryPressure() == memory.Paused {
		response.Status = statusDegraded
	}

	w.Header().Set("Content-Type", "application/json")

	if !response.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only while the media root is readable.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.rootError() == "" {
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]string{
			"status": "ready",
		})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
		})
	}
}
