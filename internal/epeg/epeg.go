// Package epeg produces thumbnails from JPEG files by decoding them at a
// reduced scale. The inverse DCT is evaluated at 1/2, 1/4 or 1/8 of the
// block size, so a 24 megapixel photo is turned into a 160 pixel preview
// without ever materialising the full-resolution image.
package epeg

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gobbledegook/creevey/internal/exif"
	"github.com/gobbledegook/creevey/internal/filesystem"
	"github.com/gobbledegook/creevey/internal/jpegfile"
)

var (
	// ErrNotDecodable is the root of every decode failure. Callers that only
	// need to know whether a thumbnail can be produced test for it.
	ErrNotDecodable = errors.New("epeg: image cannot be decoded")

	// ErrNotAJpeg is returned for data that is not a JPEG stream.
	ErrNotAJpeg = fmt.Errorf("%w: not a JPEG", ErrNotDecodable)

	// ErrTruncated is returned when the stream ends early.
	ErrTruncated = fmt.Errorf("%w: truncated", ErrNotDecodable)

	// ErrOutOfBounds is returned for pixel rectangles that miss the image.
	ErrOutOfBounds = errors.New("epeg: rectangle out of bounds")
)

// decodeError maps codec errors onto this package's sentinels. Context
// errors pass through unchanged so callers can tell an abort from a bad file.
func decodeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, jpegfile.ErrNotJPEG):
		return fmt.Errorf("%w: %w", ErrNotAJpeg, err)
	case errors.Is(err, jpegfile.ErrTruncated):
		return fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	return fmt.Errorf("%w: %w", ErrNotDecodable, err)
}

// Size is a width and height in pixels.
type Size struct {
	Width, Height int
}

func (s Size) String() string {
	return strconv.Itoa(s.Width) + "x" + strconv.Itoa(s.Height)
}

// Empty reports whether either dimension is not positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// ParseSize parses "WxH", or a single number for a square.
func ParseSize(s string) (Size, error) {
	w, h, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		h = w
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil || width <= 0 || height <= 0 {
		return Size{}, fmt.Errorf("epeg: invalid size %q", s)
	}
	return Size{width, height}, nil
}

// Image is an opened JPEG. Only the headers are parsed by Open; coefficient
// data is decoded on first use. An Image is not safe for concurrent use.
type Image struct {
	// Width and Height are the stored dimensions, before any EXIF
	// orientation is applied.
	Width, Height int

	// Model is the colour model of the stored components.
	Model jpegfile.ColorModel

	// Comment is the first COM segment, if any.
	Comment string

	// Orientation is the EXIF orientation, 0 if absent.
	Orientation int

	// ThumbInfo holds the Thumb:: APP7 markers left by a previous Encode,
	// nil if there were none.
	ThumbInfo *ThumbInfo

	path    string
	modTime time.Time

	data   []byte
	header *jpegfile.File
	full   *jpegfile.File

	exif []byte
}

// Open reads and parses the headers of the JPEG file at path.
func Open(path string) (*Image, error) {
	retry := filesystem.DefaultRetryConfig()
	info, err := filesystem.StatWithRetry(path, retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", filesystem.ErrIO, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotAJpeg, path)
	}
	data, err := filesystem.ReadFileWithRetry(path, retry)
	if err != nil {
		return nil, err
	}
	im, err := OpenBytes(data)
	if err != nil {
		return nil, err
	}
	im.path = path
	im.modTime = info.ModTime()
	return im, nil
}

// OpenBytes parses the headers of an in-memory JPEG. data must not be
// modified while the Image is in use.
func OpenBytes(data []byte) (*Image, error) {
	hdr, err := jpegfile.ParseHeader(data)
	if err != nil {
		return nil, decodeError(err)
	}

	im := &Image{
		Width:  hdr.Width,
		Height: hdr.Height,
		Model:  hdr.ColorModel(),
		data:   data,
		header: hdr,
	}
	im.Comment, _ = hdr.Comment()
	im.ThumbInfo = parseThumbInfo(hdr.Segments)

	if raw, ok := exif.FromJPEG(hdr.Segments); ok {
		im.exif = raw
		im.Orientation = exif.Orientation(raw)
	}
	return im, nil
}

// Path returns the file the image was opened from, or "".
func (im *Image) Path() string {
	return im.path
}

// ModTime returns the modification time of the file the image was opened
// from; it is zero for OpenBytes.
func (im *Image) ModTime() time.Time {
	return im.modTime
}

// Size returns the stored dimensions.
func (im *Image) Size() Size {
	return Size{im.Width, im.Height}
}

// EmbeddedThumbnail returns the JPEG thumbnail stored in the EXIF data.
func (im *Image) EmbeddedThumbnail() ([]byte, bool) {
	if im.exif == nil {
		return nil, false
	}
	return exif.ThumbnailBytes(im.exif)
}

// Exif returns the raw EXIF payload, header included.
func (im *Image) Exif() ([]byte, bool) {
	return im.exif, im.exif != nil
}

// coefficients parses the entropy-coded data once.
func (im *Image) coefficients(ctx context.Context) (*jpegfile.File, error) {
	if im.full != nil {
		return im.full, nil
	}
	f, err := jpegfile.Parse(ctx, im.data)
	if err != nil {
		return nil, decodeError(err)
	}
	im.full = f
	return f, nil
}

// Close releases the image's buffers.
func (im *Image) Close() {
	im.data = nil
	im.header = nil
	im.full = nil
	im.exif = nil
}
