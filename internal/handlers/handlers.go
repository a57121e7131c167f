package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gobbledegook/creevey/internal/startup"
	"github.com/gobbledegook/creevey/internal/thumbcache"
)

// DefaultThumbnailQuality is the JPEG quality thumbnails are served at.
const DefaultThumbnailQuality = 85

type Handlers struct {
	cache     *thumbcache.Cache
	root      string
	quality   int
	startTime time.Time

	// transformMu serialises rewrites of files under root.
	transformMu sync.Mutex

	// ctx is cancelled by Close and bounds all background work.
	ctx  context.Context
	stop context.CancelFunc

	bulkMu sync.Mutex
	bulk   bulkStatus
	cancel context.CancelFunc
	bulkWG sync.WaitGroup
}

func New(cache *thumbcache.Cache, config *startup.Config) *Handlers {
	ctx, stop := context.WithCancel(context.Background())
	return &Handlers{
		ctx:       ctx,
		stop:      stop,
		cache:     cache,
		root:      config.Root,
		quality:   DefaultThumbnailQuality,
		startTime: time.Now(),
	}
}

// Close cancels any bulk caching or regeneration started through the API
// and waits for it to stop.
func (h *Handlers) Close() {
	h.stop()
	h.bulkWG.Wait()
}
