package handlers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gobbledegook/creevey/internal/epeg"
	"github.com/gobbledegook/creevey/internal/filesystem"
	"github.com/gobbledegook/creevey/internal/indexer"
	"github.com/gobbledegook/creevey/internal/logging"
	"github.com/gobbledegook/creevey/internal/thumbcache"
)

// bulkStatus describes the most recent bulk caching run.
type bulkStatus struct {
	Running  bool      `json:"running"`
	Path     string    `json:"path,omitempty"`
	Files    int       `json:"files"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Error    string    `json:"error,omitempty"`
}

// CacheRequest is the body of POST /api/cache. An empty path is the root.
type CacheRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

// BoxRequest is the body of PUT /api/cache/box. Box takes precedence over
// Width and Height.
type BoxRequest struct {
	Box        string `json:"box"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Regenerate bool   `json:"regenerate"`
}

// CacheStatus is the GET /api/cache response.
type CacheStatus struct {
	Entries     int        `json:"entries"`
	Pending     int        `json:"pending"`
	Retained    int        `json:"retained"`
	Bytes       int64      `json:"bytes"`
	BytesString string     `json:"bytesString"`
	Generation  uint64     `json:"generation"`
	Box         string     `json:"box"`
	Aborted     bool       `json:"aborted"`
	Memory      string     `json:"memory"`
	Bulk        bulkStatus `json:"bulk"`
}

func (h *Handlers) cacheStatus() CacheStatus {
	s := h.cache.Stats()
	h.bulkMu.Lock()
	bulk := h.bulk
	h.bulkMu.Unlock()
	return CacheStatus{
		Entries:     s.Entries,
		Pending:     s.Pending,
		Retained:    s.Retained,
		Bytes:       s.Bytes,
		BytesString: humanize.IBytes(uint64(s.Bytes)),
		Generation:  s.Generation,
		Box:         h.cache.BoundingBox().String(),
		Aborted:     h.cache.Aborted(),
		Memory:      h.cache.MemoryPressure().String(),
		Bulk:        bulk,
	}
}

// GetCacheStatus reports the cache contents and any bulk caching run.
func (h *Handlers) GetCacheStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSONCode(w, http.StatusOK, h.cacheStatus())
}

// StartCaching walks a directory and caches thumbnails for every image in
// it. The walk runs in the background; poll GET /api/cache for progress.
func (h *Handlers) StartCaching(w http.ResponseWriter, r *http.Request) {
	var req CacheRequest
	if err := readJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	abs, err := h.resolvePath(req.Path, true)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	st, err := filesystem.StatWithRetry(abs, filesystem.DefaultRetryConfig())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeJSONError(w, "Directory not found", http.StatusNotFound)
		return
	case err != nil:
		logging.Error("Cache: failed to stat %s: %v", abs, err)
		writeJSONError(w, "Failed to access directory", http.StatusInternalServerError)
		return
	case !st.IsDir():
		writeJSONError(w, "Path is not a directory", http.StatusBadRequest)
		return
	}
	if h.cache.Aborted() {
		writeJSONError(w, "Caching is aborted; resume first", http.StatusConflict)
		return
	}

	h.bulkMu.Lock()
	if h.bulk.Running {
		h.bulkMu.Unlock()
		writeJSONError(w, "already_running", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(h.ctx)
	h.cancel = cancel
	h.bulk = bulkStatus{Running: true, Path: h.relPath(abs), Started: time.Now()}
	h.bulkWG.Add(1)
	h.bulkMu.Unlock()

	go h.runBulk(ctx, abs, req.Recursive)

	writeJSONCode(w, http.StatusAccepted, h.cacheStatus())
}

func (h *Handlers) runBulk(ctx context.Context, dir string, recursive bool) {
	defer h.bulkWG.Done()

	config := indexer.DefaultParallelWalkerConfig()
	config.Recursive = recursive
	files, err := indexer.NewParallelWalker(dir, config).Walk(ctx)

	h.bulkMu.Lock()
	h.bulk.Files = len(files)
	h.bulkMu.Unlock()

	if err == nil {
		logging.Info("Caching %d images in %s", len(files), dir)
		err = h.cache.CacheFiles(ctx, indexer.Paths(files))
	}

	h.bulkMu.Lock()
	defer h.bulkMu.Unlock()
	h.bulk.Running = false
	h.bulk.Finished = time.Now()
	if err != nil {
		h.bulk.Error = err.Error()
		logging.Warn("Caching %s stopped: %v", dir, err)
	} else {
		logging.Info("Cached %d images in %s (%v)", len(files), dir, h.bulk.Finished.Sub(h.bulk.Started).Round(time.Millisecond))
	}
	h.cancel()
	h.cancel = nil
}

// AbortCaching stops all pending decodes, including a bulk run. Requests
// fail with 503 until ResumeCaching is called.
func (h *Handlers) AbortCaching(w http.ResponseWriter, _ *http.Request) {
	h.cache.Abort()
	h.bulkMu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.bulkMu.Unlock()
	logging.Info("Thumbnail caching aborted")
	writeJSONStatus(w, "aborted")
}

// ResumeCaching accepts new decode work after an abort.
func (h *Handlers) ResumeCaching(w http.ResponseWriter, _ *http.Request) {
	h.cache.Resume()
	logging.Info("Thumbnail caching resumed")
	writeJSONStatus(w, "resumed")
}

func (req *BoxRequest) size() (epeg.Size, error) {
	if req.Box != "" {
		return epeg.ParseSize(req.Box)
	}
	box := epeg.Size{Width: req.Width, Height: req.Height}
	if box.Empty() {
		return box, fmt.Errorf("invalid bounding box %dx%d", req.Width, req.Height)
	}
	return box, nil
}

// SetBoundingBox changes the size of new thumbnails. Existing entries
// become stale; with regenerate set they are re-decoded in the background.
func (h *Handlers) SetBoundingBox(w http.ResponseWriter, r *http.Request) {
	var req BoxRequest
	if err := readJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	box, err := req.size()
	if err == nil {
		err = h.cache.SetBoundingBox(box)
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	logging.Info("Thumbnail bounding box set to %s", box)

	if req.Regenerate {
		h.bulkMu.Lock()
		h.bulkWG.Add(1)
		h.bulkMu.Unlock()
		go func() {
			defer h.bulkWG.Done()
			if err := h.cache.RegenerateAll(h.ctx); err != nil &&
				!errors.Is(err, thumbcache.ErrAborted) && !errors.Is(err, thumbcache.ErrClosed) {
				logging.Warn("Regenerating thumbnails: %v", err)
			}
		}()
	}

	writeJSONCode(w, http.StatusOK, h.cacheStatus())
}
