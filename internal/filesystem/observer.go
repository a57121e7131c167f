package filesystem

import "sync/atomic"

// RetryEvent is one step in the life of a retried operation.
type RetryEvent int

const (
	// RetryStale means the operation failed with a stale NFS handle.
	RetryStale RetryEvent = iota
	// RetryAttempt means the operation is about to be tried again.
	RetryAttempt
	// RetrySucceeded means a retry got through.
	RetrySucceeded
	// RetryExhausted means every retry failed.
	RetryExhausted
)

func (e RetryEvent) String() string {
	switch e {
	case RetryStale:
		return "stale"
	case RetryAttempt:
		return "attempt"
	case RetrySucceeded:
		return "success"
	case RetryExhausted:
		return "failure"
	}
	return "unknown"
}

// Observer receives filesystem timings and retry events. The metrics
// package provides the Prometheus implementation; filesystem does not
// import it.
type Observer interface {
	// ObserveOperation records one stat, open, read or write against the
	// volume label path resolved to.
	ObserveOperation(volume, operation string, durationSeconds float64, err error)
	// ObserveRetry records a retry event for op ("stat", "open", "read").
	ObserveRetry(op, volume string, event RetryEvent)
	// ObserveRetryDuration records the total time spent in a retried call.
	ObserveRetryDuration(op, volume string, durationSeconds float64)
}

type observerBox struct{ o Observer }

var current atomic.Pointer[observerBox]

// SetObserver installs o for all later operations. nil turns recording off.
func SetObserver(o Observer) {
	if o == nil {
		current.Store(nil)
		return
	}
	current.Store(&observerBox{o})
}

// observe returns the installed observer, or nil.
func observe() Observer {
	if b := current.Load(); b != nil {
		return b.o
	}
	return nil
}
