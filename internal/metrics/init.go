package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	// --- Filesystem operation metrics (per volume × operation) ---
	volumes := []string{"media", "unknown"}
	fsOps := []string{"read", "write", "stat"}

	for _, vol := range volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
		}
	}

	// --- Filesystem retry metrics (per retry-operation × volume) ---
	for _, op := range []string{"stat", "open", "read"} {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	// --- Cache ---
	for _, r := range []string{"hit", "stale", "miss", "coalesced", "busy"} {
		CacheRequestsTotal.WithLabelValues(r)
	}
	for _, s := range []string{"success", "error", "aborted", "discarded"} {
		CacheJobsTotal.WithLabelValues(s)
	}

	// --- Decode paths and scale denominators ---
	for _, p := range []string{"scaled", "embedded", "generic"} {
		DecodeErrorsTotal.WithLabelValues(p)
	}
	for _, d := range []string{"1", "2", "4", "8"} {
		DecodeDuration.WithLabelValues("scaled", d)
	}
	DecodeDuration.WithLabelValues("embedded", "1")
	DecodeDuration.WithLabelValues("generic", "1")

	// --- Transforms ---
	for _, op := range []string{"none", "flip-h", "flip-v", "transpose", "transverse", "rot90", "rot180", "rot270"} {
		for _, s := range []string{"success", "noop", "error"} {
			TransformsTotal.WithLabelValues(op, s)
		}
	}

	for _, e := range []string{"write", "remove", "rename", "create"} {
		WatcherEventsTotal.WithLabelValues(e)
	}
}
