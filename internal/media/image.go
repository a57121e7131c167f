package media

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/gobbledegook/creevey/internal/filesystem"
	"github.com/gobbledegook/creevey/internal/logging"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageDimension is the maximum width or height we'll process
	MaxImageDimension = 16384

	// MaxImagePixels is the maximum total pixels (width * height) we'll decode.
	// A 100MP image uses ~400MB in RGBA.
	MaxImagePixels = 100_000_000
)

// Interpolation selects the resampling filter used when scaling generic
// images. JPEG thumbnails do not use it.
type Interpolation int

const (
	Nearest Interpolation = iota
	Linear
	Lanczos
)

// ParseInterpolation accepts "nearest", "linear" and "lanczos".
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nearest", "none", "low":
		return Nearest, nil
	case "linear", "bilinear", "medium", "":
		return Linear, nil
	case "lanczos", "high":
		return Lanczos, nil
	}
	return Linear, fmt.Errorf("unknown interpolation %q", s)
}

func (i Interpolation) String() string {
	switch i {
	case Nearest:
		return "nearest"
	case Lanczos:
		return "lanczos"
	}
	return "linear"
}

// Filter returns the imaging filter for i.
func (i Interpolation) Filter() imaging.ResampleFilter {
	switch i {
	case Nearest:
		return imaging.NearestNeighbor
	case Lanczos:
		return imaging.Lanczos
	}
	return imaging.Linear
}

// ImageDimensions holds image width and height
type ImageDimensions struct {
	Width  int
	Height int
}

// Thumbnail is an image scaled to fit a bounding box.
type Thumbnail struct {
	Image image.Image
	// Source is the size of the original, after EXIF orientation.
	Source ImageDimensions
	Format Format
}

// GetImageDimensions returns image dimensions without fully decoding the image
func GetImageDimensions(path string) (*ImageDimensions, error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}

	return &ImageDimensions{
		Width:  config.Width,
		Height: config.Height,
	}, nil
}

// LoadThumbnail decodes the image at path and scales it to fit within
// width x height, preserving the aspect ratio. Images already inside the box
// are not enlarged. A zero box returns the full-size image.
func LoadThumbnail(ctx context.Context, path string, width, height int, interp Interpolation) (*Thumbnail, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", filesystem.ErrIO, err)
	}

	if format.NeedsVips() {
		if !IsVipsAvailable() {
			return nil, fmt.Errorf("%s images need libvips, which is not available", format)
		}
		return loadWithVips(path, format, width, height)
	}

	if dims, err := GetImageDimensions(path); err == nil {
		if dims.Width > MaxImageDimension || dims.Height > MaxImageDimension || dims.Width*dims.Height > MaxImagePixels {
			if IsVipsAvailable() {
				logging.Debug("Image %s is %dx%d, shrinking with vips", path, dims.Width, dims.Height)
				return loadWithVips(path, format, width, height)
			}
			return nil, fmt.Errorf("image %s is too large to decode (%dx%d)", path, dims.Width, dims.Height)
		}
	} else {
		logging.Debug("Could not get image dimensions for %s: %v", path, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	t := &Thumbnail{
		Image:  img,
		Source: ImageDimensions{Width: b.Dx(), Height: b.Dy()},
		Format: format,
	}
	if width > 0 && height > 0 && (b.Dx() > width || b.Dy() > height) {
		t.Image = imaging.Fit(img, width, height, interp.Filter())
	}
	return t, nil
}
