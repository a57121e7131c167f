package media

import (
	"path/filepath"
	"strings"
)

// Format is an image container detected from a file's leading bytes.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatHEIF    Format = "heif"
	FormatAVIF    Format = "avif"
	FormatJXL     Format = "jxl"
	FormatRaw     Format = "raw"
	FormatUnknown Format = "unknown"
)

// NeedsVips reports whether the format can only be decoded by libvips.
func (f Format) NeedsVips() bool {
	return f == FormatHEIF || f == FormatAVIF || f == FormatJXL
}

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".jpe": true, ".jfif": true,
	".png": true, ".gif": true, ".bmp": true, ".webp": true,
	".tiff": true, ".tif": true, ".heic": true, ".heif": true,
	".avif": true, ".jxl": true,
	".cr2": true, ".nef": true, ".nrw": true, ".arw": true, ".srf": true, ".sr2": true,
	".dng": true, ".pef": true, ".orf": true, ".rw2": true, ".srw": true, ".raf": true,
}

// RawExtensions lists camera RAW formats whose embedded JPEG preview is
// used as the image.
var RawExtensions = map[string]bool{
	".cr2": true, ".nef": true, ".nrw": true, ".arw": true, ".srf": true, ".sr2": true,
	".dng": true, ".pef": true, ".orf": true, ".rw2": true, ".srw": true, ".raf": true,
}

// JPEGExtensions lists the extensions handed to the scaled JPEG decoder.
var JPEGExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".jpe": true, ".jfif": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".jpe": "image/jpeg", ".jfif": "image/jpeg",
	".png": "image/png", ".gif": "image/gif", ".bmp": "image/bmp", ".webp": "image/webp",
	".tiff": "image/tiff", ".tif": "image/tiff", ".heic": "image/heic", ".heif": "image/heif",
	".avif": "image/avif", ".jxl": "image/jxl",
	".cr2": "image/x-canon-cr2", ".nef": "image/x-nikon-nef", ".nrw": "image/x-nikon-nrw",
	".arw": "image/x-sony-arw", ".srf": "image/x-sony-srf", ".sr2": "image/x-sony-sr2",
	".dng": "image/x-adobe-dng", ".pef": "image/x-pentax-pef", ".orf": "image/x-olympus-orf",
	".rw2": "image/x-panasonic-rw2", ".srw": "image/x-samsung-srw", ".raf": "image/x-fuji-raf",
}

// IsImage reports whether path has a supported image extension.
func IsImage(path string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsJPEG reports whether path has a JPEG extension.
func IsJPEG(path string) bool {
	return JPEGExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsRaw reports whether path has a camera RAW extension.
func IsRaw(path string) bool {
	return RawExtensions[strings.ToLower(filepath.Ext(path))]
}

// MimeType returns the MIME type for path's extension.
func MimeType(path string) string {
	if mime, ok := MimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "application/octet-stream"
}
