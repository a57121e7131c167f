package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gobbledegook/creevey/internal/filesystem"
)

func TestMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric interface{}
	}{
		{"HTTPRequestsTotal", HTTPRequestsTotal},
		{"HTTPRequestDuration", HTTPRequestDuration},
		{"HTTPRequestsInFlight", HTTPRequestsInFlight},
		{"CacheRequestsTotal", CacheRequestsTotal},
		{"CacheRetained", CacheRetained},
		{"CacheGeneration", CacheGeneration},
		{"CacheEvictionsTotal", CacheEvictionsTotal},
		{"CacheEntries", CacheEntries},
		{"CachePending", CachePending},
		{"CacheJobsTotal", CacheJobsTotal},
		{"DecodeDuration", DecodeDuration},
		{"TransformsTotal", TransformsTotal},
		{"TransformDuration", TransformDuration},
		{"WalkRunsTotal", WalkRunsTotal},
		{"WatcherEventsTotal", WatcherEventsTotal},
		{"MemoryUsageRatio", MemoryUsageRatio},
		{"FilesystemRetryAttempts", FilesystemRetryAttempts},
		{"AppInfo", AppInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestInitializeMetricsExportsLabels(t *testing.T) {
	InitializeMetrics()

	if n := testutil.CollectAndCount(TransformsTotal); n < 24 {
		t.Errorf("TransformsTotal has %d series, want at least 24", n)
	}
	if n := testutil.CollectAndCount(CacheRequestsTotal); n < 5 {
		t.Errorf("CacheRequestsTotal has %d series, want at least 5", n)
	}
	if n := testutil.CollectAndCount(DecodeDuration); n < 6 {
		t.Errorf("DecodeDuration has %d series, want at least 6", n)
	}
}

func TestFilesystemObserver(t *testing.T) {
	o := NewFilesystemObserver()

	before := testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("media", "read"))
	o.ObserveOperation("media", "read", 0.01, nil)
	o.ObserveOperation("media", "read", 0.01, errors.New("boom"))
	if got := testutil.ToFloat64(FilesystemOperationErrors.WithLabelValues("media", "read")); got != before+1 {
		t.Errorf("operation errors = %v, want %v", got, before+1)
	}

	events := []struct {
		event  filesystem.RetryEvent
		series *prometheus.CounterVec
	}{
		{filesystem.RetryStale, FilesystemStaleErrors},
		{filesystem.RetryAttempt, FilesystemRetryAttempts},
		{filesystem.RetrySucceeded, FilesystemRetrySuccess},
		{filesystem.RetryExhausted, FilesystemRetryFailures},
	}
	for _, tt := range events {
		before := testutil.ToFloat64(tt.series.WithLabelValues("stat", "media"))
		o.ObserveRetry("stat", "media", tt.event)
		if got := testutil.ToFloat64(tt.series.WithLabelValues("stat", "media")); got != before+1 {
			t.Errorf("%s: counter = %v, want %v", tt.event, got, before+1)
		}
	}
	o.ObserveRetryDuration("stat", "media", 0.2)
}

type fakeStats struct {
	mu    sync.Mutex
	calls int
	stats Stats
}

func (f *fakeStats) CacheStats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.stats
}

func (f *fakeStats) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestCollectUpdatesCacheGauges(t *testing.T) {
	provider := &fakeStats{stats: Stats{Entries: 42, Pending: 3, Retained: 2, Bytes: 1 << 20, Generation: 5}}
	c := NewCollector(provider, time.Minute)
	c.collect()

	if got := testutil.ToFloat64(CacheEntries); got != 42 {
		t.Errorf("CacheEntries = %v, want 42", got)
	}
	if got := testutil.ToFloat64(CachePending); got != 3 {
		t.Errorf("CachePending = %v, want 3", got)
	}
	if got := testutil.ToFloat64(CacheBytes); got != 1<<20 {
		t.Errorf("CacheBytes = %v, want %v", got, 1<<20)
	}
	if got := testutil.ToFloat64(CacheRetained); got != 2 {
		t.Errorf("CacheRetained = %v, want 2", got)
	}
	if got := testutil.ToFloat64(CacheGeneration); got != 5 {
		t.Errorf("CacheGeneration = %v, want 5", got)
	}
}

func TestCollectWithNilProvider(t *testing.T) {
	collector := NewCollector(nil, time.Second)

	// Should not panic when collecting with nil provider
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("collect() panicked with nil provider: %v", r)
		}
	}()

	collector.collect()
}

func TestCollectorStartStop(t *testing.T) {
	provider := &fakeStats{}
	collector := NewCollector(provider, 10*time.Millisecond)

	collector.Start()
	deadline := time.Now().Add(2 * time.Second)
	for provider.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	collector.Stop()
	collector.Stop()

	if provider.count() < 2 {
		t.Errorf("collector ran %d times, want at least 2", provider.count())
	}
}

func TestMetricsConcurrentAccess(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Inc()
			CacheRequestsTotal.WithLabelValues("hit").Inc()
			TransformsTotal.WithLabelValues("rot90", "success").Inc()
			DecodeDuration.WithLabelValues("scaled", "8").Observe(0.01)
		}()
	}
	wg.Wait()
}
