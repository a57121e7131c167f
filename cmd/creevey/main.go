package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/gobbledegook/creevey/internal/filesystem"
	"github.com/gobbledegook/creevey/internal/handlers"
	"github.com/gobbledegook/creevey/internal/logging"
	"github.com/gobbledegook/creevey/internal/media"
	"github.com/gobbledegook/creevey/internal/memory"
	"github.com/gobbledegook/creevey/internal/metrics"
	"github.com/gobbledegook/creevey/internal/middleware"
	"github.com/gobbledegook/creevey/internal/startup"
	"github.com/gobbledegook/creevey/internal/thumbcache"
	"github.com/gobbledegook/creevey/internal/watch"
)

const (
	readTimeout     = 15 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 30 * time.Second

	metricsReadTimeout  = 10 * time.Second
	metricsWriteTimeout = 10 * time.Second
	metricsIdleTimeout  = 30 * time.Second

	collectorInterval = 15 * time.Second
)

// components are the long-lived parts of the service, stopped in order on
// shutdown.
type components struct {
	srv        *http.Server
	metricsSrv *http.Server
	handlers   *handlers.Handlers
	cache      *thumbcache.Cache
	watcher    *watch.Watcher
	collector  *metrics.Collector
	monitor    *memory.Monitor
	vips       bool
}

func main() {
	startTime := time.Now()

	// Memory limit first, so everything after runs under it
	memResult := memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memResult)

	c := &components{}

	c.monitor = memory.NewMonitor(memory.DefaultConfig())
	c.monitor.Start()

	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
		filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{"pictures": config.Root}))
		filesystem.SetObserver(metrics.NewFilesystemObserver())
	}

	if config.VipsEnabled {
		err := media.InitVips()
		startup.LogVipsInit(true, err)
		c.vips = err == nil
	} else {
		startup.LogVipsInit(false, nil)
	}

	// Initialize the thumbnail cache
	cacheConfig := config.CacheConfig(c.monitor)
	c.cache = thumbcache.New(cacheConfig)
	startup.LogCacheInit(cacheConfig)

	if config.MetricsEnabled {
		c.collector = metrics.NewCollector(c.cache, collectorInterval)
		c.collector.Start()
	}

	if config.WatchEnabled {
		w, err := watch.New(config.Root, c.cache, config.WatchDelay)
		startup.LogWatcherInit(config.Root, err)
		if err == nil {
			c.watcher = w
			c.watcher.Start()
		}
	}

	// Initialize handlers
	c.handlers = handlers.New(c.cache, config)

	// Setup router
	router := setupRouter(c.handlers, config.MetricsEnabled)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)

	// Create server. Thumbnail waits are bounded by the request context, so
	// there is no write timeout.
	c.srv = &http.Server{
		Addr:        ":" + config.Port,
		Handler:     handler,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	if config.MetricsEnabled {
		c.metricsSrv = newMetricsServer(config.MetricsPort, c.handlers)
		go func() {
			if err := c.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Start graceful shutdown handler
	go handleShutdown(c)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := c.srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
	// ListenAndServe returns as soon as Shutdown starts; wait for the rest.
	<-shutdownDone
}

func setupRouter(h *handlers.Handlers, withMetrics bool) *mux.Router {
	r := mux.NewRouter()
	if withMetrics {
		// Inside the router so the metrics label is the route template
		r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	}

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/thumbnail", h.GetThumbnail).Methods("GET", "HEAD")
	api.HandleFunc("/info", h.GetInfo).Methods("GET")
	api.HandleFunc("/transform", h.Transform).Methods("POST")

	// Cache management
	api.HandleFunc("/cache", h.GetCacheStatus).Methods("GET")
	api.HandleFunc("/cache", h.StartCaching).Methods("POST")
	api.HandleFunc("/cache/abort", h.AbortCaching).Methods("POST")
	api.HandleFunc("/cache/resume", h.ResumeCaching).Methods("POST")
	api.HandleFunc("/cache/box", h.SetBoundingBox).Methods("PUT")

	return r
}

func newMetricsServer(port string, h *handlers.Handlers) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", h.MetricsHandler())
	metricsMux.HandleFunc("/health", h.LivenessCheck)
	return &http.Server{
		Addr:         ":" + port,
		Handler:      metricsMux,
		ReadTimeout:  metricsReadTimeout,
		WriteTimeout: metricsWriteTimeout,
		IdleTimeout:  metricsIdleTimeout,
	}
}

var shutdownDone = make(chan struct{})

func handleShutdown(c *components) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())
	shutdown(c)
	close(shutdownDone)
}

func shutdown(c *components) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := c.srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if c.watcher != nil {
		startup.LogShutdownStep("Stopping file watcher")
		c.watcher.Stop()
		startup.LogShutdownStepComplete("File watcher stopped")
	}

	startup.LogShutdownStep("Stopping background caching")
	c.handlers.Close()
	startup.LogShutdownStepComplete("Background caching stopped")

	startup.LogShutdownStep("Closing thumbnail cache")
	c.cache.Close()
	startup.LogShutdownStepComplete("Thumbnail cache closed")

	if c.collector != nil {
		c.collector.Stop()
	}
	c.monitor.Stop()

	if c.metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := c.metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	if c.vips {
		media.ShutdownVips()
	}

	startup.LogShutdownComplete()
}
