// Package metrics provides Prometheus instrumentation for creevey.
//
// Metrics are registered with the default registry through promauto and are
// prefixed with "creevey_".
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of total requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//
// ## Thumbnail Cache Metrics
//
//   - CacheRequestsTotal: Counter of lookups by result (hit/stale/miss/coalesced/busy)
//   - CacheEvictionsTotal: Counter of LRU evictions
//   - CacheEntries, CachePending, CacheBytes: Gauges published by the [Collector]
//   - CacheJobsTotal: Counter of decode jobs by outcome
//
// ## Decode and Transform Metrics
//
//   - DecodeDuration: Histogram by decode path (scaled/embedded/generic) and
//     scale denominator
//   - DecodeErrorsTotal: Counter of failed decodes by path
//   - TransformsTotal: Counter of lossless transforms by op and status
//   - TransformDuration: Histogram of successful transform duration
//
// ## Walk, Watcher, Memory and Filesystem Metrics
//
//   - WalkRunsTotal, WalkDuration, WalkFilesFound, WalkErrors, WalkParallelWorkers
//   - WatcherEventsTotal, WatcherErrors, WatchedDirectories
//   - MemoryUsageRatio, MemoryPaused, MemoryGCPauses
//   - Filesystem*: operation latency, errors, retries and stale NFS handles,
//     recorded through [NewFilesystemObserver]
//
// # Usage
//
// Mount promhttp.Handler() on the metrics endpoint:
//
//	mux.Handle("/metrics", promhttp.Handler())
//
// Call [InitializeMetrics] once at startup so every labelled series is
// exported from the first scrape.
//
// # Prometheus Queries
//
// Cache hit rate:
//
//	sum(rate(creevey_cache_requests_total{result="hit"}[5m])) /
//	sum(rate(creevey_cache_requests_total[5m]))
//
// P95 scaled decode time by denominator:
//
//	histogram_quantile(0.95, sum(rate(creevey_decode_duration_seconds_bucket{path="scaled"}[5m])) by (le, denom))
package metrics
