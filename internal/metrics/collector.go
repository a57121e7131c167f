package metrics

import (
	"sync"
	"time"

	"github.com/gobbledegook/creevey/internal/logging"
)

// StatsProvider is implemented by the thumbnail cache.
type StatsProvider interface {
	CacheStats() Stats
}

// Stats is a point-in-time view of the thumbnail cache.
type Stats struct {
	Entries    int
	Pending    int
	Retained   int
	Bytes      int64
	Generation uint64
}

// Collector copies cache stats into the creevey_cache_* gauges on a timer.
// The cache updates counters itself; gauges need sampling.
type Collector struct {
	provider StatsProvider
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	last Stats
}

// NewCollector samples provider every interval once started.
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		provider: provider,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start samples once immediately, then on every tick.
func (c *Collector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.collect()
		t := time.NewTicker(c.interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.collect()
			case <-c.done:
				return
			}
		}
	}()
}

// Stop ends sampling and waits for an in-progress sample to finish. Calling
// it again is a no-op.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Collector) collect() {
	if c.provider == nil {
		return
	}
	s := c.provider.CacheStats()

	CacheEntries.Set(float64(s.Entries))
	CachePending.Set(float64(s.Pending))
	CacheRetained.Set(float64(s.Retained))
	CacheBytes.Set(float64(s.Bytes))
	CacheGeneration.Set(float64(s.Generation))

	if s != c.last {
		logging.Debug("Cache: %d entries (%d retained), %d pending, %d bytes, generation %d",
			s.Entries, s.Retained, s.Pending, s.Bytes, s.Generation)
		c.last = s
	}
}
