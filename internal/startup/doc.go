// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - CREEVEY_ROOT: Directory of pictures to serve (default: /pictures)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - CACHE_MAX_IMAGES: Thumbnails kept in memory (default: 512)
//   - CACHE_QUEUE_SIZE: Decodes that may wait for a worker (default: 1024)
//   - CACHE_BOX: Thumbnail bounding box as WxH (default: 160x160)
//   - CACHE_INTERPOLATION: nearest, linear or lanczos, for non-JPEG files (default: linear)
//   - THUMB_PREFER_EXIF: Use embedded EXIF thumbnails when large enough (default: false)
//   - WATCH_ENABLED: Refresh thumbnails when files change (default: true)
//   - WATCH_DELAY: Debounce delay for file changes (default: 250ms)
//   - VIPS_ENABLED: Use libvips for HEIF, AVIF and JPEG XL (default: true)
//   - CREEVEY_WORKERS: Worker count for both decoding and directory walks
//   - CREEVEY_DECODE_WORKERS: Decode workers (default: one per CPU)
//   - CREEVEY_SCAN_WORKERS: Directory walk workers (default: two per CPU, at most 16)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_STATIC_FILES: Log static file requests (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// Invalid values are logged and replaced by their defaults. A missing root
// directory is an error.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// The Log* functions print the sectioned startup and shutdown report:
//
//	config, err := startup.LoadConfig()
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//	startup.LogCacheInit(config.CacheConfig(monitor))
//	...
//	startup.LogServerStarted(startup.ServerConfig{
//	    Port:            config.Port,
//	    MetricsPort:     config.MetricsPort,
//	    MetricsEnabled:  config.MetricsEnabled,
//	    StartupDuration: time.Since(startTime),
//	})
package startup
