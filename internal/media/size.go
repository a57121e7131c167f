package media

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FileSizeString formats a byte count the way the thumbnail grid labels
// files: "812 B", "1.4 MB".
func FileSizeString(n int64) string {
	if n < 0 {
		return "?"
	}
	return humanize.Bytes(uint64(n))
}

// PixelSizeString formats image dimensions, adding the megapixel count for
// images of at least a million pixels.
func PixelSizeString(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	s := fmt.Sprintf("%d x %d", width, height)
	if px := width * height; px >= 1_000_000 {
		s += fmt.Sprintf(" (%.1f MP)", float64(px)/1_000_000)
	}
	return s
}
