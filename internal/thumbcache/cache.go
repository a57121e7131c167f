package thumbcache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"sync"
	"time"

	"github.com/gobbledegook/creevey/internal/epeg"
	"github.com/gobbledegook/creevey/internal/filesystem"
	"github.com/gobbledegook/creevey/internal/logging"
	"github.com/gobbledegook/creevey/internal/media"
	"github.com/gobbledegook/creevey/internal/memory"
	"github.com/gobbledegook/creevey/internal/metrics"
	"github.com/gobbledegook/creevey/internal/workers"
)

var (
	// ErrNoThumbnail is returned when a file could not be decoded. The
	// accompanying Info carries a placeholder image.
	ErrNoThumbnail = errors.New("thumbcache: no thumbnail")

	// ErrAborted is returned for requests dropped by Abort, Remove, or made
	// while the cache is aborted.
	ErrAborted = errors.New("thumbcache: aborted")

	// ErrBusy is returned when the decode queue is full.
	ErrBusy = workers.ErrBusy

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("thumbcache: closed")

	// ErrPending is returned by Future.Result before the decode finishes.
	ErrPending = errors.New("thumbcache: decode pending")
)

// Defaults used for zero Config fields.
const (
	DefaultMaxImages = 512
	DefaultQueueSize = 1024
)

// DefaultBox is the bounding box used when Config.Box is empty.
var DefaultBox = epeg.Size{Width: 160, Height: 160}

// Config configures a Cache.
type Config struct {
	MaxImages      int
	Box            epeg.Size
	Interpolation  media.Interpolation
	PreferEmbedded bool

	// Workers is the number of concurrent decodes; zero sizes the pool
	// with workers.For(workers.Decode, 0).
	Workers   int
	QueueSize int

	// Memory, if set, pauses decoding while memory is tight.
	Memory *memory.Monitor
}

type entry struct {
	info   *Info
	elem   *list.Element
	bytes  int64
	stale  bool
	retain int
}

type job struct {
	path   string
	req    Request
	gen    uint64
	fut    *Future
	ctx    context.Context
	cancel context.CancelFunc

	// stale is set when the file changes while the job runs.
	stale bool
	// manual jobs belong to an AttemptLock caller, not the pool.
	manual bool
}

// Cache is a thumbnail cache. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // of paths, most recently used first
	pending map[string]*job
	bytes   int64

	maxImages      int
	box            epeg.Size
	interp         media.Interpolation
	preferEmbedded bool
	generation     uint64

	ctx     context.Context
	cancel  context.CancelFunc
	aborted bool
	closed  bool

	pool   *workers.Pool
	mem    *memory.Monitor
	decode func(context.Context, Request) (*Info, error)
}

// New creates a cache and starts its worker pool.
func New(cfg Config) *Cache {
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = DefaultMaxImages
	}
	if cfg.Box.Empty() {
		cfg.Box = DefaultBox
	}
	if cfg.Workers <= 0 {
		cfg.Workers = workers.For(workers.Decode, 0)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries:        make(map[string]*entry),
		order:          list.New(),
		pending:        make(map[string]*job),
		maxImages:      cfg.MaxImages,
		box:            cfg.Box,
		interp:         cfg.Interpolation,
		preferEmbedded: cfg.PreferEmbedded,
		ctx:            ctx,
		cancel:         cancel,
		pool:           workers.NewPool(cfg.Workers, cfg.QueueSize),
		mem:            cfg.Memory,
		decode:         Decode,
	}
	logging.Debug("Thumbnail cache: %d images, box %s, %d workers", cfg.MaxImages, cfg.Box, cfg.Workers)
	return c
}

// Request returns a future for path's preview. It never blocks. A stale
// entry is returned at once while a fresh decode starts in the background.
func (c *Cache) Request(path string) *Future {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[path]; ok {
		c.order.MoveToFront(e.elem)
		if c.validLocked(e) {
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			return resolved(e.info, nil)
		}
		metrics.CacheRequestsTotal.WithLabelValues("stale").Inc()
		if _, err := c.startLocked(path); err != nil {
			logging.Debug("Refresh of %s not started: %v", path, err)
		}
		return resolved(e.info, nil)
	}

	if j, ok := c.pending[path]; ok {
		metrics.CacheRequestsTotal.WithLabelValues("coalesced").Inc()
		return j.fut
	}

	j, err := c.startLocked(path)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			metrics.CacheRequestsTotal.WithLabelValues("busy").Inc()
		}
		return resolved(nil, err)
	}
	metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	return j.fut
}

// Get waits for path's preview. Unlike Request it does not settle for a
// stale entry when a newer one can be had.
func (c *Cache) Get(ctx context.Context, path string) (*Info, error) {
	return c.ensure(path).Wait(ctx)
}

// ensure returns a future that resolves with a valid entry for path,
// starting a job if needed.
func (c *Cache) ensure(path string) *Future {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[path]; ok {
		c.order.MoveToFront(e.elem)
		if c.validLocked(e) {
			return resolved(e.info, nil)
		}
	}
	j, err := c.startLocked(path)
	if err != nil {
		return resolved(nil, err)
	}
	return j.fut
}

// ImageForKey returns the cached image for path, or nil. It never blocks or
// starts a decode.
func (c *Cache) ImageForKey(path string) image.Image {
	if info := c.InfoForKey(path); info != nil {
		return info.Image
	}
	return nil
}

// InfoForKey returns the cached entry for path, stale or not, or nil.
func (c *Cache) InfoForKey(path string) *Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		return e.info
	}
	return nil
}

// RequestFor returns the decode the cache would run for path with its
// current settings.
func (c *Cache) RequestFor(path string) Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestLocked(path)
}

func (c *Cache) requestLocked(path string) Request {
	return Request{
		Path:           path,
		Box:            c.box,
		Interpolation:  c.interp,
		PreferEmbedded: c.preferEmbedded,
	}
}

func (c *Cache) validLocked(e *entry) bool {
	return !e.stale && e.info.Generation == c.generation
}

func (c *Cache) newJobLocked(path string) *job {
	ctx, cancel := context.WithCancel(c.ctx)
	return &job{
		path:   path,
		req:    c.requestLocked(path),
		gen:    c.generation,
		fut:    newFuture(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// startLocked returns the pending job for path, queueing one if there is
// none.
func (c *Cache) startLocked(path string) (*job, error) {
	if j, ok := c.pending[path]; ok {
		return j, nil
	}
	if c.closed {
		return nil, ErrClosed
	}
	if c.aborted {
		return nil, ErrAborted
	}

	j := c.newJobLocked(path)
	c.pending[path] = j
	if err := c.pool.TrySubmit(func() { c.run(j) }); err != nil {
		delete(c.pending, path)
		j.cancel()
		if errors.Is(err, workers.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return j, nil
}

func (c *Cache) run(j *job) {
	info, err := c.produce(j)
	c.finish(j, info, err)
}

// produce runs the decode outside the lock. Panics become errors so one bad
// file cannot take down a worker.
func (c *Cache) produce(j *job) (info *Info, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Decoding %s panicked: %v", j.path, r)
			info, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	if err := c.mem.WaitIfPaused(j.ctx); err != nil {
		return nil, err
	}
	if err := j.ctx.Err(); err != nil {
		return nil, err
	}
	return c.decode(j.ctx, j.req)
}

// finish commits a job's result, unless the job was dropped in the meantime.
func (c *Cache) finish(j *job, info *Info, err error) {
	defer j.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending[j.path] != j {
		metrics.CacheJobsTotal.WithLabelValues("discarded").Inc()
		return
	}
	delete(c.pending, j.path)

	if err == nil && (info == nil || info.Image == nil) {
		err = errors.New("decoder returned no image")
	}
	switch {
	case err != nil && j.ctx.Err() != nil:
		metrics.CacheJobsTotal.WithLabelValues("aborted").Inc()
		j.fut.resolve(nil, ErrAborted)
	case err != nil:
		metrics.CacheJobsTotal.WithLabelValues("error").Inc()
		logging.Debug("No thumbnail for %s: %v", j.path, err)
		c.removeLocked(j.path)
		j.fut.resolve(placeholderInfo(j.path, j.req.Box), fmt.Errorf("%w: %s: %w", ErrNoThumbnail, j.path, err))
	default:
		metrics.CacheJobsTotal.WithLabelValues("success").Inc()
		j.fut.resolve(c.addLocked(j.path, info, j.gen, j.stale), nil)
	}
}

// addLocked stores a copy of info as the most recently used entry and
// evicts down to capacity.
func (c *Cache) addLocked(path string, info *Info, gen uint64, stale bool) *Info {
	stored := *info
	stored.Path = path
	stored.Generation = gen
	n := imageBytes(stored.Image)

	if e, ok := c.entries[path]; ok {
		c.bytes -= e.bytes
		e.info, e.bytes, e.stale = &stored, n, stale
		c.order.MoveToFront(e.elem)
	} else {
		e := &entry{info: &stored, bytes: n, stale: stale}
		e.elem = c.order.PushFront(path)
		c.entries[path] = e
	}
	c.bytes += n
	c.evictLocked()
	return &stored
}

// evictLocked drops least recently used entries that are neither pending
// nor retained until the cache is within capacity. When everything older is
// retained the newest entry goes too; its waiters still get the image.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.maxImages {
		victim := c.order.Back()
		for ; victim != nil; victim = victim.Prev() {
			p := victim.Value.(string)
			if _, busy := c.pending[p]; !busy && c.entries[p].retain == 0 {
				break
			}
		}
		if victim == nil {
			return
		}
		c.removeLocked(victim.Value.(string))
		metrics.CacheEvictionsTotal.Inc()
	}
}

func (c *Cache) removeLocked(path string) {
	e, ok := c.entries[path]
	if !ok {
		return
	}
	c.order.Remove(e.elem)
	delete(c.entries, path)
	c.bytes -= e.bytes
}

// dropPendingLocked cancels path's job and fails its waiters.
func (c *Cache) dropPendingLocked(path string) {
	j, ok := c.pending[path]
	if !ok {
		return
	}
	delete(c.pending, path)
	j.cancel()
	j.fut.resolve(nil, ErrAborted)
}

// Invalidate reacts to a change of path on disk. A deleted file is removed
// from the cache; otherwise its entry goes stale and is decoded again on
// next access.
func (c *Cache) Invalidate(path string) {
	_, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	gone := errors.Is(err, fs.ErrNotExist)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gone {
		c.removeLocked(path)
		c.dropPendingLocked(path)
		return
	}
	if e, ok := c.entries[path]; ok {
		e.stale = true
	}
	if j, ok := c.pending[path]; ok {
		j.stale = true
	}
}

// Remove forgets path, cancelling its decode if one is pending.
func (c *Cache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(path)
	c.dropPendingLocked(path)
}

// RemoveAll empties the cache. Pending decodes are left to finish and will
// be added when they do.
func (c *Cache) RemoveAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order.Init()
	c.bytes = 0
}

// BoundingBox returns the size new previews are produced for.
func (c *Cache) BoundingBox() epeg.Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.box
}

// SetBoundingBox changes the preview size. Every existing entry goes stale;
// use RegenerateAll to redo them at once.
func (c *Cache) SetBoundingBox(box epeg.Size) error {
	if box.Empty() {
		return fmt.Errorf("thumbcache: invalid bounding box %s", box)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if box == c.box {
		return nil
	}
	c.box = box
	c.generation++
	logging.Debug("Thumbnail box is now %s (generation %d)", box, c.generation)
	return nil
}

// RegenerateAll decodes every stale entry again, most recently used first,
// and waits for them.
func (c *Cache) RegenerateAll(ctx context.Context) error {
	c.mu.Lock()
	var paths []string
	for el := c.order.Front(); el != nil; el = el.Next() {
		p := el.Value.(string)
		if !c.validLocked(c.entries[p]) {
			paths = append(paths, p)
		}
	}
	c.mu.Unlock()
	return c.CacheFiles(ctx, paths)
}

// busyRetry is how long CacheFiles backs off when the queue is full and it
// has nothing of its own to wait for.
const busyRetry = 10 * time.Millisecond

// CacheFiles decodes every path that is not already cached and valid, and
// waits for them. A full queue makes it wait for earlier jobs rather than
// fail. It stops with ErrAborted if the cache is aborted.
func (c *Cache) CacheFiles(ctx context.Context, paths []string) error {
	var inflight []*Future
	for _, p := range paths {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			fut := c.ensure(p)
			_, err := fut.Result()
			if !errors.Is(err, ErrBusy) {
				if errors.Is(err, ErrAborted) || errors.Is(err, ErrClosed) {
					return err
				}
				inflight = append(inflight, fut)
				break
			}
			// Queue is full: let the oldest of our jobs finish first.
			for len(inflight) > 0 && inflight[0].Ready() {
				inflight = inflight[1:]
			}
			var wait <-chan struct{}
			if len(inflight) > 0 {
				wait = inflight[0].Done()
			}
			select {
			case <-wait:
			case <-time.After(busyRetry):
			case <-ctx.Done():
			}
		}
	}

	for _, fut := range inflight {
		if _, err := fut.Wait(ctx); errors.Is(err, ErrAborted) || errors.Is(err, ErrClosed) {
			return err
		} else if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// Abort stops all decoding: new requests fail with ErrAborted, queued jobs
// are dropped, and running decodes are cancelled and their results
// discarded. Cached entries are kept.
func (c *Cache) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted {
		return
	}
	c.aborted = true
	c.cancel()

	dropped := c.pool.Drain()
	n := len(c.pending)
	for p := range c.pending {
		c.dropPendingLocked(p)
	}
	metrics.CacheJobsTotal.WithLabelValues("aborted").Add(float64(dropped))
	logging.Info("Thumbnail caching aborted: %d pending, %d queued jobs dropped", n, dropped)
}

// Resume accepts requests again after Abort.
func (c *Cache) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.aborted || c.closed {
		return
	}
	c.aborted = false
	c.ctx, c.cancel = context.WithCancel(context.Background())
	logging.Info("Thumbnail caching resumed")
}

// Aborted reports whether the cache is refusing new work.
func (c *Cache) Aborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

// BeginAccess pins path's entry so it is not evicted until the matching
// EndAccess. It returns false if path is not cached.
func (c *Cache) BeginAccess(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok {
		return false
	}
	e.retain++
	return true
}

// EndAccess releases a BeginAccess pin.
func (c *Cache) EndAccess(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok || e.retain == 0 {
		return
	}
	e.retain--
}

// Stats returns a snapshot of the cache's size.
func (c *Cache) Stats() metrics.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := metrics.Stats{
		Entries:    len(c.entries),
		Pending:    len(c.pending),
		Bytes:      c.bytes,
		Generation: c.generation,
	}
	for _, e := range c.entries {
		if e.retain > 0 {
			s.Retained++
		}
	}
	return s
}

// MemoryPressure reports the memory monitor's state; Normal without one.
func (c *Cache) MemoryPressure() memory.Pressure {
	return c.mem.Pressure()
}

// CacheStats implements metrics.StatsProvider.
func (c *Cache) CacheStats() metrics.Stats {
	return c.Stats()
}

// Close aborts outstanding work and stops the workers. The cache cannot be
// used afterwards.
func (c *Cache) Close() {
	c.Abort()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.pool.Close()
}
