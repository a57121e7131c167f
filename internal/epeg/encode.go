package epeg

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gobbledegook/creevey/internal/jpegfile"
)

// ThumbInfo describes the original of a thumbnail. Encode stores it as
// "Thumb::" APP7 markers, following the freedesktop thumbnail keys.
type ThumbInfo struct {
	URI      string
	MTime    time.Time
	Width    int
	Height   int
	Mimetype string
}

const thumbPrefix = "Thumb::"

// ThumbInfoFor describes im as the original of a thumbnail.
func ThumbInfoFor(im *Image) *ThumbInfo {
	ti := &ThumbInfo{Width: im.Width, Height: im.Height, Mimetype: "image/jpeg"}
	if im.path != "" {
		ti.URI = "file://" + im.path
		ti.MTime = im.modTime
	}
	return ti
}

func (ti *ThumbInfo) segments() []jpegfile.Segment {
	var segs []jpegfile.Segment
	add := func(key, value string) {
		segs = append(segs, jpegfile.Segment{
			Marker: jpegfile.MarkerAPP7,
			Data:   []byte(thumbPrefix + key + "\n" + value),
		})
	}
	if ti.URI != "" {
		add("URI", ti.URI)
		add("MTime", strconv.FormatInt(ti.MTime.Unix(), 10))
	}
	add("Image::Width", strconv.Itoa(ti.Width))
	add("Image::Height", strconv.Itoa(ti.Height))
	mime := ti.Mimetype
	if mime == "" {
		mime = "image/jpeg"
	}
	add("Mimetype", mime)
	return segs
}

// parseThumbInfo collects Thumb:: markers. It returns nil when there are none.
func parseThumbInfo(segs []jpegfile.Segment) *ThumbInfo {
	var ti *ThumbInfo
	for _, s := range segs {
		if s.Marker != jpegfile.MarkerAPP7 || !strings.HasPrefix(string(s.Data), thumbPrefix) {
			continue
		}
		key, value, ok := strings.Cut(string(s.Data[len(thumbPrefix):]), "\n")
		if !ok {
			continue
		}
		if ti == nil {
			ti = &ThumbInfo{}
		}
		switch key {
		case "URI":
			ti.URI = value
		case "MTime":
			if sec, err := strconv.ParseInt(value, 10, 64); err == nil {
				ti.MTime = time.Unix(sec, 0)
			}
		case "Image::Width":
			ti.Width, _ = strconv.Atoi(value)
		case "Image::Height":
			ti.Height, _ = strconv.Atoi(value)
		case "Mimetype":
			ti.Mimetype = value
		}
	}
	return ti
}

// EncodeOptions controls Encode.
type EncodeOptions struct {
	// Quality is the JPEG quality, clamped to 0..100. Nil selects
	// jpegfile.DefaultQuality. At 90 and above chroma is not subsampled.
	Quality *int
	// Comment, if set, is written as a COM marker.
	Comment string
	// ThumbInfo, if set, is written as Thumb:: APP7 markers.
	ThumbInfo *ThumbInfo
}

// Quality returns q as an EncodeOptions.Quality value.
func Quality(q int) *int {
	return &q
}

// Encode writes p as a baseline JPEG. CMYK pixels are converted to RGB.
// Nothing is written to w if encoding fails.
func Encode(w io.Writer, p *Pixels, opts EncodeOptions) error {
	q := jpegfile.DefaultQuality
	if opts.Quality != nil {
		q = min(max(*opts.Quality, 0), 100)
	}

	f, err := jpegfile.FromPixels(p.rgbRaster(), q, q < 90)
	if err != nil {
		return fmt.Errorf("epeg: encode: %w", err)
	}
	if opts.Comment != "" {
		f.Segments = append(f.Segments, jpegfile.Segment{Marker: jpegfile.MarkerCOM, Data: []byte(opts.Comment)})
	}
	if opts.ThumbInfo != nil {
		f.Segments = append(f.Segments, opts.ThumbInfo.segments()...)
	}

	var buf bytes.Buffer
	if err := jpegfile.Write(&buf, f, jpegfile.WriteOptions{Optimize: true}); err != nil {
		return fmt.Errorf("epeg: encode: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}
