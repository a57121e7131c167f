// Package main provides the entry point for the Creevey thumbnail server.
//
// Creevey serves correctly oriented, size-bounded previews of the photos under
// a media root, and rewrites JPEG files losslessly (rotation, flips, EXIF
// orientation reset, embedded thumbnail replacement).
//
// # Application Lifecycle
//
//  1. Memory Configuration: Sets GOMEMLIMIT from environment or cgroup limits
//  2. Configuration Loading: Reads environment variables and validates the root
//  3. Component Initialization:
//     - Memory Monitor: pauses thumbnail decoding under memory pressure
//     - libvips: HEIF/AVIF support (if VIPS_ENABLED)
//     - Thumbnail Cache: bounded LRU of decoded previews with a worker pool
//     - File Watcher: invalidates thumbnails when files change on disk
//     - Metrics Collector: publishes cache statistics to Prometheus
//  4. HTTP Server Setup: Configures routes, middleware, and starts server
//  5. Graceful Shutdown: Handles SIGINT/SIGTERM, stops all components cleanly
//
// # HTTP Server
//
// The application runs two HTTP servers:
//
//  1. Main Server (default port 8080):
//     - /api/thumbnail, /api/info, /api/transform
//     - /api/cache for bulk caching, abort/resume and the bounding box
//     - /health, /healthz, /livez, /readyz, /version
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//     - Health check endpoint (/health)
//
// # Environment Variables
//
//   - CREEVEY_ROOT: Directory containing the photos (default: /pictures)
//   - PORT: Main HTTP server port (default: 8080)
//   - METRICS_PORT: Metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable metrics server (default: true)
//   - CACHE_MAX_IMAGES: Thumbnails kept in memory (default: 512)
//   - CACHE_BOX: Thumbnail bounding box, e.g. 160x160
//   - CACHE_INTERPOLATION: nearest, linear or lanczos for non-JPEG files
//   - THUMB_PREFER_EXIF: Use embedded EXIF thumbnails when large enough
//   - CREEVEY_WORKERS: Decode workers (default: number of CPUs)
//   - WATCH_ENABLED: Watch the root for changes (default: true)
//   - LOG_LEVEL: Logging level (debug/info/warn/error)
//   - GOMEMLIMIT: Memory limit (auto-detected from cgroups if not set)
//
// # Graceful Shutdown
//
//  1. Stop accepting new HTTP requests
//  2. Stop the file watcher
//  3. Cancel bulk caching started through the API
//  4. Close the thumbnail cache (pending decodes are dropped)
//  5. Stop metrics collector and memory monitor
//  6. Shutdown metrics server (if running)
//  7. Shut down libvips
package main
