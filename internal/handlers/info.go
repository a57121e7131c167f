package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gobbledegook/creevey/internal/epeg"
	"github.com/gobbledegook/creevey/internal/exif"
	"github.com/gobbledegook/creevey/internal/filesystem"
	"github.com/gobbledegook/creevey/internal/logging"
	"github.com/gobbledegook/creevey/internal/media"
)

// FileInfo is the /api/info response.
type FileInfo struct {
	Path           string       `json:"path"`
	Name           string       `json:"name"`
	MimeType       string       `json:"mimeType"`
	FileSize       int64        `json:"fileSize"`
	FileSizeString string       `json:"fileSizeString"`
	Width          int          `json:"width,omitempty"`
	Height         int          `json:"height,omitempty"`
	PixelSize      string       `json:"pixelSize,omitempty"`
	Orientation    int          `json:"orientation,omitempty"`
	DateTaken      *time.Time   `json:"dateTaken,omitempty"`
	Format         media.Format `json:"format"`
	ModTime        time.Time    `json:"modTime"`
	Cached         bool         `json:"cached"`
	Comment        string       `json:"comment,omitempty"`
	Exif           []exif.Field `json:"exif,omitempty"`
}

// GetInfo describes an image file without decoding its pixels.
func (h *Handlers) GetInfo(w http.ResponseWriter, r *http.Request) {
	abs, err := h.resolvePath(r.URL.Query().Get("path"), false)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := filesystem.StatWithRetry(abs, filesystem.DefaultRetryConfig())
	if errors.Is(err, fs.ErrNotExist) {
		writeJSONError(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Info: failed to stat %s: %v", abs, err)
		writeJSONError(w, "Failed to access file", http.StatusInternalServerError)
		return
	}
	if st.IsDir() {
		writeJSONError(w, "Path is a directory", http.StatusBadRequest)
		return
	}

	format, err := media.DetectFormat(abs)
	if err != nil {
		logging.Error("Info: failed to read %s: %v", abs, err)
		writeJSONError(w, "Failed to read file", http.StatusInternalServerError)
		return
	}
	if format == media.FormatUnknown {
		writeJSONError(w, "Unsupported file type", http.StatusBadRequest)
		return
	}

	info := FileInfo{
		Path:           h.relPath(abs),
		Name:           filepath.Base(abs),
		MimeType:       media.MimeType(abs),
		FileSize:       st.Size(),
		FileSizeString: media.FileSizeString(st.Size()),
		Format:         format,
		ModTime:        st.ModTime(),
		Cached:         h.cache.InfoForKey(abs) != nil,
	}

	switch format {
	case media.FormatJPEG:
		im, err := epeg.Open(abs)
		if err != nil {
			logging.Debug("Info: %s: %v", abs, err)
			break
		}
		info.Width, info.Height = im.Width, im.Height
		info.Orientation = im.Orientation
		info.Comment = im.Comment
		if raw, ok := im.Exif(); ok {
			info.Exif = exif.Describe(raw)
			if d, ok := exif.Date(raw); ok {
				info.DateTaken = &d
			}
		}
		im.Close()
	case media.FormatRaw:
		describeRaw(abs, &info)
	default:
		if dims, err := media.GetImageDimensions(abs); err == nil {
			info.Width, info.Height = dims.Width, dims.Height
		} else {
			logging.Debug("Info: %s: %v", abs, err)
		}
	}
	if info.Width > 0 {
		info.PixelSize = media.PixelSizeString(info.Width, info.Height)
	}

	writeJSONCode(w, http.StatusOK, info)
}

// describeRaw fills in what the metadata of a camera RAW file records. The
// TIFF-based formats are described by the EXIF reader directly.
func describeRaw(abs string, info *FileInfo) {
	data, err := filesystem.ReadFileWithRetry(abs, filesystem.DefaultRetryConfig())
	if err != nil {
		logging.Debug("Info: %s: %v", abs, err)
		return
	}
	raw, err := exif.ReadRaw(data)
	if err != nil {
		logging.Debug("Info: %s: %v", abs, err)
		return
	}
	info.Width, info.Height = raw.Width, raw.Height
	info.Orientation = raw.Orientation
	if !raw.Date.IsZero() {
		info.DateTaken = &raw.Date
	}
	info.Exif = exif.Describe(data)
}
