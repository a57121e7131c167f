package thumbcache

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/gobbledegook/creevey/internal/epeg"
	"github.com/gobbledegook/creevey/internal/exif"
	"github.com/gobbledegook/creevey/internal/filesystem"
	"github.com/gobbledegook/creevey/internal/jpegfile"
	"github.com/gobbledegook/creevey/internal/logging"
	"github.com/gobbledegook/creevey/internal/media"
	"github.com/gobbledegook/creevey/internal/metrics"
)

// Info is a cached preview and what is known about its file. The cache
// hands out shared pointers; treat them as read-only.
type Info struct {
	Path string
	// Image is upright and fits Box. It is a placeholder when the file could
	// not be decoded.
	Image image.Image

	ModTime  time.Time
	FileSize int64
	// PixelSize is the stored size of the original, before orientation.
	PixelSize epeg.Size
	// ExifOrientation is 0 when unknown, otherwise 1..8.
	ExifOrientation int

	// Box is the bounding box Image was produced for; zero for full-size
	// decodes.
	Box        epeg.Size
	Generation uint64

	Placeholder bool
	// Source names the decode path: "scaled", "embedded", "raw" or
	// "generic".
	Source string
}

// FileSizeString formats FileSize for display.
func (i *Info) FileSizeString() string {
	return media.FileSizeString(i.FileSize)
}

// PixelSizeString formats PixelSize for display.
func (i *Info) PixelSizeString() string {
	return media.PixelSizeString(i.PixelSize.Width, i.PixelSize.Height)
}

// Request describes a single decode.
type Request struct {
	Path string
	Box  epeg.Size
	// Interpolation is used only for formats the scaled JPEG decoder does
	// not handle.
	Interpolation media.Interpolation
	// FullSize ignores Box and decodes at the original size.
	FullSize bool
	// PreferEmbedded accepts the EXIF thumbnail when it is at least as large
	// as the target size.
	PreferEmbedded bool
}

// Decode produces the preview described by req. JPEG files and the JPEG
// previews inside camera RAW files go through the scaled decoder; everything
// else through the generic loader.
func Decode(ctx context.Context, req Request) (*Info, error) {
	st, err := filesystem.StatWithRetry(req.Path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", filesystem.ErrIO, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", req.Path)
	}

	box := req.Box
	if req.FullSize {
		box = epeg.Size{}
	}

	format, err := media.DetectFormat(req.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", filesystem.ErrIO, err)
	}

	var info *Info
	switch format {
	case media.FormatJPEG:
		info, err = decodeJPEG(ctx, req.Path, box, req.PreferEmbedded)
	case media.FormatRaw:
		info, err = decodeRaw(ctx, req.Path, box)
	default:
		info, err = decodeGeneric(ctx, req.Path, box, req.Interpolation)
	}
	if err != nil {
		return nil, err
	}

	info.Path = req.Path
	info.ModTime = st.ModTime()
	info.FileSize = st.Size()
	info.Box = box
	return info, nil
}

func decodeJPEG(ctx context.Context, path string, box epeg.Size, preferEmbedded bool) (*Info, error) {
	start := time.Now()
	im, err := epeg.Open(path)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("scaled").Inc()
		return nil, err
	}
	defer im.Close()

	o := im.Orientation
	// Decode into the box as the pixels are stored; turning them upright
	// afterwards swaps the axes for orientations 5 to 8.
	stored := box
	if !box.Empty() {
		stored = epeg.OrientedSize(box, o)
	}
	cs := epeg.RGB8
	if im.Model == jpegfile.ModelGray {
		cs = epeg.Gray8
	}

	info := &Info{PixelSize: im.Size(), ExifOrientation: o}

	if preferEmbedded && !stored.Empty() {
		if p := decodeEmbedded(ctx, im, stored, cs); p != nil {
			info.Image = epeg.Orient(p.Image(), o)
			info.Source = "embedded"
			metrics.DecodeDuration.WithLabelValues("embedded", "1").Observe(time.Since(start).Seconds())
			return info, nil
		}
	}

	p, err := im.DecodeScaled(ctx, stored, cs)
	if err != nil {
		if ctx.Err() == nil {
			metrics.DecodeErrorsTotal.WithLabelValues("scaled").Inc()
		}
		return nil, err
	}
	info.Image = epeg.Orient(p.Image(), o)
	info.Source = "scaled"
	metrics.DecodeDuration.WithLabelValues("scaled", strconv.Itoa(p.Denom)).Observe(time.Since(start).Seconds())
	return info, nil
}

// decodeEmbedded scales the EXIF thumbnail to the target size, or returns nil
// if there is none or it is too small to fill the box.
func decodeEmbedded(ctx context.Context, im *epeg.Image, box epeg.Size, cs epeg.Colorspace) *epeg.Pixels {
	data, ok := im.EmbeddedThumbnail()
	if !ok {
		return nil
	}
	thumb, err := epeg.OpenBytes(data)
	if err != nil {
		logging.Debug("Ignoring unreadable embedded thumbnail in %s: %v", im.Path(), err)
		metrics.DecodeErrorsTotal.WithLabelValues("embedded").Inc()
		return nil
	}
	defer thumb.Close()

	target := epeg.FitSize(im.Size(), box)
	if thumb.Width < target.Width || thumb.Height < target.Height {
		return nil
	}
	if thumb.Model == jpegfile.ModelGray {
		cs = epeg.Gray8
	}
	p, err := thumb.DecodeScaled(ctx, target, cs)
	if err != nil {
		logging.Debug("Embedded thumbnail in %s failed to decode: %v", im.Path(), err)
		metrics.DecodeErrorsTotal.WithLabelValues("embedded").Inc()
		return nil
	}
	return p
}

// decodeRaw scales the largest JPEG preview of a camera RAW file. The sensor
// data itself is never decoded.
func decodeRaw(ctx context.Context, path string, box epeg.Size) (*Info, error) {
	start := time.Now()
	data, err := filesystem.ReadFileWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	raw, err := exif.ReadRaw(data)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("raw").Inc()
		return nil, fmt.Errorf("%w: %s: %w", epeg.ErrNotDecodable, path, err)
	}
	im, err := epeg.OpenBytes(raw.Preview)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("raw").Inc()
		return nil, err
	}
	defer im.Close()

	o := raw.Orientation
	if o == 0 {
		o = im.Orientation
	}
	stored := box
	if !box.Empty() {
		stored = epeg.OrientedSize(box, o)
	}
	cs := epeg.RGB8
	if im.Model == jpegfile.ModelGray {
		cs = epeg.Gray8
	}

	p, err := im.DecodeScaled(ctx, stored, cs)
	if err != nil {
		if ctx.Err() == nil {
			metrics.DecodeErrorsTotal.WithLabelValues("raw").Inc()
		}
		return nil, err
	}
	metrics.DecodeDuration.WithLabelValues("raw", strconv.Itoa(p.Denom)).Observe(time.Since(start).Seconds())
	return &Info{
		Image:           epeg.Orient(p.Image(), o),
		PixelSize:       epeg.Size{Width: raw.Width, Height: raw.Height},
		ExifOrientation: o,
		Source:          "raw",
	}, nil
}

func decodeGeneric(ctx context.Context, path string, box epeg.Size, interp media.Interpolation) (*Info, error) {
	start := time.Now()
	t, err := media.LoadThumbnail(ctx, path, box.Width, box.Height, interp)
	if err != nil {
		if ctx.Err() == nil {
			metrics.DecodeErrorsTotal.WithLabelValues("generic").Inc()
		}
		return nil, err
	}
	metrics.DecodeDuration.WithLabelValues("generic", "1").Observe(time.Since(start).Seconds())
	return &Info{
		Image:     t.Image,
		PixelSize: epeg.Size{Width: t.Source.Width, Height: t.Source.Height},
		Source:    "generic",
	}, nil
}
