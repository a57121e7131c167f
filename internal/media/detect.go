package media

import (
	"bytes"
	"io"

	"github.com/gobbledegook/creevey/internal/filesystem"
	"github.com/gobbledegook/creevey/internal/logging"
)

// DetectFormat reads the first bytes of path and identifies the container.
// Extensions are not trusted: a PNG renamed to .jpg is reported as PNG. The
// one exception is TIFF, where only the extension tells a camera RAW file
// from a plain TIFF image.
func DetectFormat(path string) (Format, error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return FormatUnknown, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close %s: %v", path, err)
		}
	}()

	header := make([]byte, 32)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FormatUnknown, err
	}
	format := DetectFormatBytes(header[:n])
	if format == FormatTIFF && IsRaw(path) {
		format = FormatRaw
	}
	return format, nil
}

// DetectFormatBytes identifies the container from its leading bytes.
func DetectFormatBytes(header []byte) Format {
	has := func(off int, sig string) bool {
		return len(header) >= off+len(sig) && string(header[off:off+len(sig)]) == sig
	}

	switch {
	case has(0, "\xff\xd8\xff"):
		return FormatJPEG
	case has(0, "\x89PNG"):
		return FormatPNG
	case has(0, "GIF8"):
		return FormatGIF
	case has(0, "RIFF") && has(8, "WEBP"):
		return FormatWebP
	case has(0, "BM"):
		return FormatBMP
	case has(0, "II*\x00"), has(0, "MM\x00*"):
		return FormatTIFF
	case has(0, "IIRO"), has(0, "IIRS"), has(0, "MMOR"), has(0, "IIU\x00"), has(0, "FUJIFILMCCD-RAW "):
		return FormatRaw
	case has(4, "ftyp") && len(header) >= 12:
		switch string(header[8:12]) {
		case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
			return FormatHEIF
		case "avif", "avis":
			return FormatAVIF
		}
	case has(0, "\xff\x0a"):
		return FormatJXL
	case bytes.HasPrefix(header, []byte("\x00\x00\x00\x0cJXL ")):
		return FormatJXL
	}
	return FormatUnknown
}
