// Package jpegtran rewrites JPEG files without recompressing them. Rotations
// and flips are carried out on the quantized DCT coefficients, so pixel data
// loses nothing, and marker-level edits (orientation tag, EXIF thumbnail,
// comment copying) never touch the image data at all.
package jpegtran

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gobbledegook/creevey/internal/exif"
	"github.com/gobbledegook/creevey/internal/filesystem"
	"github.com/gobbledegook/creevey/internal/jpegfile"
	"github.com/gobbledegook/creevey/internal/logging"
	"github.com/gobbledegook/creevey/internal/metrics"
)

// ErrUnsupportedTransform is returned for transforms that cannot be applied
// to the given file or spec.
var ErrUnsupportedTransform = errors.New("jpegtran: unsupported transform")

// CopyPolicy selects which APPn and COM segments survive a transform. The
// JFIF and Adobe headers are always regenerated by the writer.
type CopyPolicy int

const (
	CopyAll CopyPolicy = iota
	CopyComments
	CopyNone
)

func (p CopyPolicy) String() string {
	switch p {
	case CopyAll:
		return "all"
	case CopyComments:
		return "comments"
	case CopyNone:
		return "none"
	}
	return fmt.Sprintf("CopyPolicy(%d)", int(p))
}

// ParseCopyPolicy parses "all", "comments" or "none".
func ParseCopyPolicy(s string) (CopyPolicy, error) {
	switch s {
	case "all", "":
		return CopyAll, nil
	case "comments":
		return CopyComments, nil
	case "none":
		return CopyNone, nil
	}
	return CopyAll, fmt.Errorf("jpegtran: unknown copy policy %q", s)
}

// Spec describes one lossless rewrite. The zero value is a no-op.
type Spec struct {
	Transform Op `json:"transform"`

	Grayscale   bool `json:"grayscale,omitempty"`
	Optimize    bool `json:"optimize,omitempty"`
	Progressive bool `json:"progressive,omitempty"`
	Trim        bool `json:"trim,omitempty"`

	PreserveModTime  bool `json:"preserveModTime,omitempty"`
	ResetOrientation bool `json:"resetOrientation,omitempty"`
	AutoRotate       bool `json:"autoRotate,omitempty"`

	// ReplaceThumb, if set, becomes the EXIF thumbnail. ThumbWidth and
	// ThumbHeight default to the replacement's own dimensions.
	ReplaceThumb []byte `json:"replaceThumb,omitempty"`
	ThumbWidth   int    `json:"thumbWidth,omitempty"`
	ThumbHeight  int    `json:"thumbHeight,omitempty"`
	DeleteThumb  bool   `json:"deleteThumb,omitempty"`

	Copy CopyPolicy `json:"copy,omitempty"`
}

// IsNoop reports whether the spec asks for nothing at all.
func (s Spec) IsNoop() bool {
	return s.Transform == None && !s.Grayscale && !s.Optimize && !s.Progressive &&
		!s.ResetOrientation && !s.AutoRotate && s.ReplaceThumb == nil && !s.DeleteThumb &&
		s.Copy == CopyAll
}

// Transform rewrites the JPEG file at path according to spec. The new file
// replaces the old one atomically; on any error the original is untouched.
// modified is false when there was nothing to do.
func Transform(ctx context.Context, path string, spec Spec) (modified bool, err error) {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.TransformsTotal.WithLabelValues(spec.Transform.String(), status).Inc()
		if status == "success" {
			metrics.TransformDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if spec.IsNoop() {
		status = "noop"
		return false, nil
	}

	retry := filesystem.DefaultRetryConfig()
	info, err := filesystem.StatWithRetry(path, retry)
	if err != nil {
		return false, fmt.Errorf("%w: %w", filesystem.ErrIO, err)
	}
	data, err := filesystem.ReadFileWithRetry(path, retry)
	if err != nil {
		return false, err
	}

	out, modified, err := TransformBytes(ctx, data, spec)
	if err != nil {
		return false, fmt.Errorf("jpegtran: %s: %w", path, err)
	}
	if !modified {
		status = "noop"
		return false, nil
	}

	opts := filesystem.AtomicOptions{Perm: info.Mode().Perm()}
	if spec.PreserveModTime {
		opts.ModTime = info.ModTime()
	}
	if err := filesystem.WriteFileAtomic(path, out, opts); err != nil {
		return false, err
	}

	status = "success"
	logging.Info("jpegtran: %s %s (%d -> %d bytes)", spec.Transform, path, len(data), len(out))
	return true, nil
}

// TransformBytes applies spec to an in-memory JPEG stream.
func TransformBytes(ctx context.Context, data []byte, spec Spec) (out []byte, modified bool, err error) {
	if !spec.Transform.valid() {
		return nil, false, fmt.Errorf("%w: %v", ErrUnsupportedTransform, spec.Transform)
	}
	if spec.IsNoop() {
		return data, false, nil
	}

	f, err := jpegfile.Parse(ctx, data)
	if err != nil {
		return nil, false, err
	}

	ed, err := editMetadata(ctx, f, spec)
	if err != nil {
		return nil, false, err
	}

	if ed.op == None && !spec.Grayscale && !spec.Optimize && !spec.Progressive &&
		!ed.exifChanged && spec.Copy == CopyAll {
		return data, false, nil
	}

	if spec.Grayscale {
		if f, err = toGrayscale(f); err != nil {
			return nil, false, err
		}
	}
	progressive := spec.Progressive || f.Progressive
	if f, err = applyOp(ctx, f, ed.op, spec.Trim); err != nil {
		return nil, false, err
	}
	f.Segments = copySegments(f.Segments, spec.Copy, ed)

	var buf bytes.Buffer
	buf.Grow(len(data))
	if err := jpegfile.Write(&buf, f, jpegfile.WriteOptions{
		Progressive: progressive,
		Optimize:    spec.Optimize,
	}); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

// metadataEdit is the outcome of the EXIF part of a spec.
type metadataEdit struct {
	// op is the geometric transform to apply, including any auto-rotation.
	op Op
	// exif is the EXIF payload to write when exifChanged is set.
	exif        []byte
	exifChanged bool
}

func editMetadata(ctx context.Context, f *jpegfile.File, spec Spec) (metadataEdit, error) {
	ed := metadataEdit{op: spec.Transform}

	raw, hasExif := exif.FromJPEG(f.Segments)
	if hasExif {
		raw = append([]byte(nil), raw...)
	}

	if hasExif && (spec.AutoRotate || spec.ResetOrientation) {
		o := exif.Orientation(raw)
		if spec.AutoRotate {
			ed.op = Compose(FromOrientation(o), ed.op)
		}
		if o > 1 && exif.ResetOrientation(raw) {
			ed.exifChanged = true
		}
	}

	switch {
	case spec.DeleteThumb:
		if !hasExif {
			break
		}
		if _, ok := exif.ThumbnailBytes(raw); ok {
			raw = exif.DeleteThumbnail(raw)
			ed.exifChanged = true
		}
	case spec.ReplaceThumb != nil:
		hdr, err := jpegfile.ParseHeader(spec.ReplaceThumb)
		if err != nil {
			return ed, fmt.Errorf("replacement thumbnail: %w", err)
		}
		w, h := spec.ThumbWidth, spec.ThumbHeight
		if w <= 0 || h <= 0 {
			w, h = hdr.Width, hdr.Height
		}
		if !hasExif {
			raw = exif.New()
		}
		if raw, err = exif.ReplaceThumbnail(raw, spec.ReplaceThumb, w, h); err != nil {
			return ed, err
		}
		ed.exifChanged = true
	case ed.op != None && hasExif:
		// Keep the embedded preview in step with the image.
		if thumb, ok := exif.ThumbnailBytes(raw); ok {
			raw = rotateThumbnail(ctx, raw, thumb, ed.op)
			ed.exifChanged = true
		}
	}

	ed.exif = raw
	return ed, nil
}

// rotateThumbnail applies op to the EXIF thumbnail. A thumbnail that cannot
// be transformed is dropped rather than left pointing the wrong way.
func rotateThumbnail(ctx context.Context, raw, thumb []byte, op Op) []byte {
	out, err := transformThumbnail(ctx, thumb, op)
	if err == nil {
		var hdr *jpegfile.File
		if hdr, err = jpegfile.ParseHeader(out); err == nil {
			var replaced []byte
			if replaced, err = exif.ReplaceThumbnail(raw, out, hdr.Width, hdr.Height); err == nil {
				return replaced
			}
		}
	}
	logging.Warn("jpegtran: dropping EXIF thumbnail that could not be transformed: %v", err)
	return exif.DeleteThumbnail(raw)
}

func transformThumbnail(ctx context.Context, thumb []byte, op Op) ([]byte, error) {
	f, err := jpegfile.Parse(ctx, thumb)
	if err != nil {
		return nil, err
	}
	if f, err = applyOp(ctx, f, op, true); err != nil {
		return nil, err
	}
	f.Segments = nil
	var buf bytes.Buffer
	if err := jpegfile.Write(&buf, f, jpegfile.WriteOptions{Optimize: true}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// copySegments filters segs by policy. An edited EXIF payload replaces the
// original, and is kept even when the policy would drop it.
func copySegments(segs []jpegfile.Segment, policy CopyPolicy, ed metadataEdit) []jpegfile.Segment {
	var out []jpegfile.Segment
	exifWritten := false
	for _, s := range segs {
		if s.IsExif() && !exifWritten && ed.exifChanged {
			out = append(out, jpegfile.Segment{Marker: s.Marker, Data: ed.exif})
			exifWritten = true
			continue
		}
		switch policy {
		case CopyAll:
			out = append(out, s)
		case CopyComments:
			if s.Marker == jpegfile.MarkerCOM {
				out = append(out, s)
			}
		}
	}
	if ed.exifChanged && !exifWritten {
		out = append([]jpegfile.Segment{{Marker: jpegfile.MarkerAPP1, Data: ed.exif}}, out...)
	}
	return out
}
