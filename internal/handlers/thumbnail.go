package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/gobbledegook/creevey/internal/epeg"
	"github.com/gobbledegook/creevey/internal/filesystem"
	"github.com/gobbledegook/creevey/internal/logging"
	"github.com/gobbledegook/creevey/internal/media"
	"github.com/gobbledegook/creevey/internal/thumbcache"
)

// GetThumbnail serves the cached preview of an image.
//
// With wait=0 the request never blocks: a thumbnail that is still being
// decoded yields 202 and the client is expected to poll.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	abs, err := h.resolvePath(r.URL.Query().Get("path"), false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := filesystem.StatWithRetry(abs, filesystem.DefaultRetryConfig())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		http.Error(w, "File not found", http.StatusNotFound)
		return
	case err != nil:
		logging.Error("Thumbnail: failed to stat %s: %v", abs, err)
		http.Error(w, "Failed to access file", http.StatusInternalServerError)
		return
	case st.IsDir():
		http.Error(w, "Cannot generate thumbnail for directory", http.StatusBadRequest)
		return
	case !media.IsImage(abs):
		http.Error(w, "Unsupported file type", http.StatusBadRequest)
		return
	}

	var info *thumbcache.Info
	if r.URL.Query().Get("wait") == "0" {
		info, err = h.cache.Request(abs).Result()
		if errors.Is(err, thumbcache.ErrPending) {
			w.Header().Set("Retry-After", "1")
			writeJSONCode(w, http.StatusAccepted, map[string]string{"status": "pending"})
			return
		}
	} else {
		info, err = h.cache.Get(r.Context(), abs)
	}

	placeholder := false
	switch {
	case err == nil:
	case errors.Is(err, thumbcache.ErrNoThumbnail):
		placeholder = true
	case errors.Is(err, thumbcache.ErrBusy):
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Thumbnail queue is full", http.StatusServiceUnavailable)
		return
	case errors.Is(err, thumbcache.ErrAborted), errors.Is(err, thumbcache.ErrClosed):
		http.Error(w, "Thumbnail caching is stopped", http.StatusServiceUnavailable)
		return
	case r.Context().Err() != nil:
		return
	default:
		logging.Error("Thumbnail: %s: %v", abs, err)
		http.Error(w, "Failed to generate thumbnail", http.StatusInternalServerError)
		return
	}

	if placeholder {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Thumbnail-Placeholder", "true")
	} else {
		etag := thumbnailETag(info)
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "private, no-cache")
		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("X-Thumbnail-Source", info.Source)
		w.Header().Set("X-Image-Size", info.PixelSizeString())
	}

	var buf bytes.Buffer
	err = epeg.Encode(&buf, epeg.FromImage(info.Image), epeg.EncodeOptions{
		Quality: epeg.Quality(h.quality),
		ThumbInfo: &epeg.ThumbInfo{
			URI:      "file://" + abs,
			MTime:    info.ModTime,
			Width:    info.PixelSize.Width,
			Height:   info.PixelSize.Height,
			Mimetype: media.MimeType(abs),
		},
	})
	if err != nil {
		logging.Error("Thumbnail: encoding %s: %v", abs, err)
		http.Error(w, "Failed to encode thumbnail", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if r.Method == http.MethodHead {
		return
	}
	if _, err := buf.WriteTo(w); err != nil {
		logging.Debug("Thumbnail: writing %s: %v", abs, err)
	}
}

// thumbnailETag identifies a thumbnail by its file's identity and the cache
// settings it was produced with.
func thumbnailETag(info *thumbcache.Info) string {
	d := xxhash.New()
	fmt.Fprintf(d, "%s\x00%d\x00%d\x00%d\x00%s\x00%s",
		info.Path, info.ModTime.UnixNano(), info.FileSize, info.Generation, info.Box, info.Source)
	return fmt.Sprintf(`"%016x"`, d.Sum64())
}

// etagMatches implements the weak comparison If-None-Match asks for.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
