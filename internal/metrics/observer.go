package metrics

import "github.com/gobbledegook/creevey/internal/filesystem"

// filesystemObserver feeds filesystem timings and NFS retry events into the
// creevey_filesystem_* series.
type filesystemObserver struct{}

// NewFilesystemObserver returns the observer to pass to
// filesystem.SetObserver.
func NewFilesystemObserver() filesystem.Observer {
	return filesystemObserver{}
}

func (filesystemObserver) ObserveOperation(volume, operation string, durationSeconds float64, err error) {
	FilesystemOperationDuration.WithLabelValues(volume, operation).Observe(durationSeconds)
	if err != nil {
		FilesystemOperationErrors.WithLabelValues(volume, operation).Inc()
	}
}

func (filesystemObserver) ObserveRetry(op, volume string, event filesystem.RetryEvent) {
	switch event {
	case filesystem.RetryStale:
		FilesystemStaleErrors.WithLabelValues(op, volume).Inc()
	case filesystem.RetryAttempt:
		FilesystemRetryAttempts.WithLabelValues(op, volume).Inc()
	case filesystem.RetrySucceeded:
		FilesystemRetrySuccess.WithLabelValues(op, volume).Inc()
	case filesystem.RetryExhausted:
		FilesystemRetryFailures.WithLabelValues(op, volume).Inc()
	}
}

func (filesystemObserver) ObserveRetryDuration(op, volume string, durationSeconds float64) {
	FilesystemRetryDuration.WithLabelValues(op, volume).Observe(durationSeconds)
}
