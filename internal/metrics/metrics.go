package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creevey_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "creevey_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "creevey_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Thumbnail cache metrics
var (
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creevey_cache_requests_total",
			Help: "Thumbnail cache lookups by result",
		},
		[]string{"result"}, // "hit", "stale", "miss", "coalesced", "busy"
	)

	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creevey_cache_evictions_total",
			Help: "Total number of entries evicted from the thumbnail cache",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "creevey_cache_entries",
			Help: "Number of decoded images held by the thumbnail cache",
		},
	)

	CachePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "creevey_cache_pending",
			Help: "Number of paths currently being decoded",
		},
	)

	CacheRetained = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "creevey_cache_retained",
			Help: "Number of cache entries pinned by an access bracket",
		},
	)

	CacheGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "creevey_cache_generation",
			Help: "Bounding box generation; bumps each time the box changes",
		},
	)

	CacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "creevey_cache_bytes",
			Help: "Approximate pixel bytes held by the thumbnail cache",
		},
	)

	CacheJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creevey_cache_jobs_total",
			Help: "Thumbnail decode jobs by outcome",
		},
		[]string{"status"}, // "success", "error", "aborted", "discarded"
	)
)

// Decode metrics
var (
	DecodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "creevey_decode_duration_seconds",
			Help:    "Image decode duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"path", "denom"}, // path: "scaled", "embedded", "generic"
	)

	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creevey_decode_errors_total",
			Help: "Total number of failed image decodes",
		},
		[]string{"path"},
	)
)

// Lossless transform metrics
var (
	TransformsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creevey_transforms_total",
			Help: "Total number of lossless JPEG transforms",
		},
		[]string{"op", "status"}, // status: "success", "noop", "error"
	)

	TransformDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "creevey_transform_duration_seconds",
			Help:    "Lossless JPEG transform duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

// Directory walk metrics
var (
	WalkRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creevey_walk_runs_total",
			Help: "Total number of directory walks",
		},
	)

	WalkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "creevey_walk_duration_seconds",
			Help:    "Directory walk duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	WalkFilesFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creevey_walk_files_found_total",
			Help: "Total number of image files found by directory walks",
		},
	)

	WalkErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creevey_walk_errors_total",
			Help: "Total number of errors during directory walks",
		},
	)

	WalkParallelWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "creevey_walk_parallel_workers",
			Help: "Number of workers used by the last directory walk",
		},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creevey_watcher_events_total",
			Help: "Total number of filesystem watcher events",
		},
		[]string{"event_type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creevey_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "creevey_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "creevey_memory_usage_ratio",
			Help: "Heap allocation as a ratio of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "creevey_memory_paused",
			Help: "Whether decoding is paused for memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creevey_memory_gc_pauses_total",
			Help: "Number of times decoding was paused for memory pressure",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "creevey_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creevey_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creevey_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retry attempts",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creevey_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creevey_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "creevey_filesystem_retry_duration_seconds",
			Help:    "Total time spent retrying a filesystem operation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creevey_filesystem_stale_errors_total",
			Help: "Total number of stale NFS file handle errors",
		},
		[]string{"operation", "volume"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "creevey_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
