package thumbcache

import (
	"context"
	"fmt"

	"github.com/gobbledegook/creevey/internal/logging"
	"github.com/gobbledegook/creevey/internal/metrics"
)

// AttemptLock reserves path for a caller that decodes it itself. On true the
// caller must follow up with AddImage or DontAdd. It returns false when path
// is already cached and valid, or when another producer holds it; in the
// latter case it first waits for that producer to finish.
func (c *Cache) AttemptLock(ctx context.Context, path string) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if c.aborted {
		c.mu.Unlock()
		return false, ErrAborted
	}
	if j, ok := c.pending[path]; ok {
		c.mu.Unlock()
		select {
		case <-j.fut.Done():
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if e, ok := c.entries[path]; ok && c.validLocked(e) {
		c.mu.Unlock()
		return false, nil
	}

	j := c.newJobLocked(path)
	j.manual = true
	c.pending[path] = j
	c.mu.Unlock()
	return true, nil
}

// AddImage stores info, produced after a successful AttemptLock on
// info.Path, and wakes anyone waiting on that path. Without a matching lock,
// for instance after Abort, the image is discarded.
func (c *Cache) AddImage(info *Info) {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.pending[info.Path]
	if !ok || !j.manual {
		logging.Debug("Discarding image for %s: not locked", info.Path)
		metrics.CacheJobsTotal.WithLabelValues("discarded").Inc()
		return
	}
	delete(c.pending, info.Path)
	j.cancel()
	metrics.CacheJobsTotal.WithLabelValues("success").Inc()
	j.fut.resolve(c.addLocked(info.Path, info, j.gen, j.stale), nil)
}

// DontAdd releases an AttemptLock without storing anything. Waiters receive
// ErrNoThumbnail.
func (c *Cache) DontAdd(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.pending[path]
	if !ok || !j.manual {
		return
	}
	delete(c.pending, path)
	j.cancel()
	metrics.CacheJobsTotal.WithLabelValues("error").Inc()
	j.fut.resolve(placeholderInfo(path, j.req.Box), fmt.Errorf("%w: %s", ErrNoThumbnail, path))
}
