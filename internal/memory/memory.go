package memory

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gobbledegook/creevey/internal/logging"
	"github.com/gobbledegook/creevey/internal/metrics"
)

// Config tunes the Monitor.
type Config struct {
	// MemoryLimitBytes is the heap budget. Zero means the runtime's
	// GOMEMLIMIT, and no limit at all disables the monitor.
	MemoryLimitBytes int64
	// HighWaterMark is the share of the budget above which the monitor
	// reports Throttled, and below which a pause ends.
	HighWaterMark float64
	// CriticalWaterMark is the share at which decoding pauses.
	CriticalWaterMark float64
	CheckInterval     time.Duration
}

// DefaultConfig pauses at 85% of GOMEMLIMIT and resumes under 70%.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Pressure is the monitor's view of the heap.
type Pressure int

const (
	Normal Pressure = iota
	// Throttled: above the high water mark, decoding continues.
	Throttled
	// Paused: decoding waits in WaitIfPaused until usage falls below the
	// high water mark again.
	Paused
)

func (p Pressure) String() string {
	switch p {
	case Throttled:
		return "throttled"
	case Paused:
		return "paused"
	}
	return "normal"
}

// Snapshot is the last heap sample.
type Snapshot struct {
	Heap     int64
	Limit    int64
	Usage    float64
	Pressure Pressure
}

// Monitor samples the heap and holds thumbnail decoding back while it is
// over the critical water mark. A nil *Monitor never pauses.
type Monitor struct {
	cfg   Config
	limit int64

	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	heap     uint64
	pressure Pressure
	// resumed is closed, and replaced, each time a pause ends.
	resumed chan struct{}
}

// NewMonitor returns a monitor for cfg. Call Start to begin sampling.
func NewMonitor(cfg Config) *Monitor {
	limit := cfg.MemoryLimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l != math.MaxInt64 {
			limit = l
			logging.Info("Memory monitor using GOMEMLIMIT: %s", humanize.IBytes(uint64(limit)))
		}
	}
	if limit == 0 {
		logging.Warn("Memory monitor: no memory limit configured, decode backpressure disabled")
	}
	return &Monitor{
		cfg:     cfg,
		limit:   limit,
		done:    make(chan struct{}),
		resumed: make(chan struct{}),
	}
}

// Start samples the heap every CheckInterval until Stop. It does nothing
// without a limit.
func (m *Monitor) Start() {
	if m == nil || m.limit == 0 {
		return
	}
	go func() {
		t := time.NewTicker(m.cfg.CheckInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				var ms runtime.MemStats
				runtime.ReadMemStats(&ms)
				m.observe(ms.Alloc)
			case <-m.done:
				return
			}
		}
	}()
}

// Stop ends sampling and releases every goroutine in WaitIfPaused.
func (m *Monitor) Stop() {
	if m != nil {
		m.stopOnce.Do(func() { close(m.done) })
	}
}

// observe records a heap sample and moves between pressure levels. Entering
// Paused needs the critical mark; leaving it needs the high mark, so usage
// hovering around one threshold does not flap.
func (m *Monitor) observe(heap uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.heap = heap
	if m.limit <= 0 {
		return
	}
	usage := float64(heap) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	next := Normal
	switch {
	case usage >= m.cfg.CriticalWaterMark:
		next = Paused
	case usage >= m.cfg.HighWaterMark:
		next = Throttled
		if m.pressure == Paused {
			next = Paused
		}
	}
	if next == m.pressure {
		return
	}

	switch {
	case next == Paused:
		logging.Warn("Memory critical (%.1f%% of %s), pausing thumbnail decoding",
			usage*100, humanize.IBytes(uint64(m.limit)))
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	case m.pressure == Paused:
		logging.Info("Memory recovered (%.1f%% of limit), resuming thumbnail decoding", usage*100)
		metrics.MemoryPaused.Set(0)
		close(m.resumed)
		m.resumed = make(chan struct{})
	}
	m.pressure = next
}

// WaitIfPaused blocks while decoding is paused. It returns nil once it may
// proceed, including after Stop, or ctx's error if ctx ends first.
func (m *Monitor) WaitIfPaused(ctx context.Context) error {
	if m == nil {
		return ctx.Err()
	}
	m.mu.RLock()
	paused, resumed := m.pressure == Paused, m.resumed
	m.mu.RUnlock()
	if !paused {
		return ctx.Err()
	}

	logging.Debug("Decode waiting for memory pressure to ease")
	select {
	case <-resumed:
		return nil
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pressure returns the current level. A nil monitor is always Normal.
func (m *Monitor) Pressure() Pressure {
	if m == nil {
		return Normal
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pressure
}

// Snapshot returns the last sample.
func (m *Monitor) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{Heap: int64(min(m.heap, math.MaxInt64)), Limit: m.limit, Pressure: m.pressure}
	if m.limit > 0 {
		s.Usage = float64(m.heap) / float64(m.limit)
	}
	return s
}
