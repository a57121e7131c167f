package epeg

import (
	"context"
	"fmt"
	"image"

	"github.com/gobbledegook/creevey/internal/jpegfile"
)

// FitSize returns the largest size with the aspect ratio of src that fits
// inside box. Images already inside the box keep their size.
func FitSize(src, box Size) Size {
	if src.Empty() {
		return Size{}
	}
	if box.Empty() || (src.Width <= box.Width && src.Height <= box.Height) {
		return src
	}
	// Compare box.W/src.W with box.H/src.H without floating point.
	if box.Width*src.Height <= box.Height*src.Width {
		h := (src.Height*box.Width + src.Width/2) / src.Width
		return Size{box.Width, max(h, 1)}
	}
	w := (src.Width*box.Height + src.Height/2) / src.Height
	return Size{max(w, 1), box.Height}
}

// Denominator returns the largest d in {1, 2, 4, 8} for which a 1/d decode
// of src is still at least as large as dst in both directions.
func Denominator(src, dst Size) int {
	for _, d := range []int{8, 4, 2} {
		if ceilDiv(src.Width, d) >= dst.Width && ceilDiv(src.Height, d) >= dst.Height {
			return d
		}
	}
	return 1
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// DecodeScaled decodes the image to fit box, preserving its aspect ratio.
// The image is decoded at the coarsest DCT scale that is still at least as
// large as the target, then brought to the exact size with a single
// nearest-neighbour pass. cs selects how the pixels are decoded; it is the
// default for Pixels.Get but any colourspace can be read back later.
func (im *Image) DecodeScaled(ctx context.Context, box Size, cs Colorspace) (*Pixels, error) {
	target := FitSize(im.Size(), box)
	if target.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrNotDecodable)
	}
	denom := Denominator(im.Size(), target)

	r, err := im.decode(ctx, denom, cs)
	if err != nil {
		return nil, err
	}
	if r.Width != target.Width || r.Height != target.Height {
		r = resample(r, target)
	}

	return &Pixels{raster: r, Colorspace: cs, Denom: denom, Source: im.Size()}, nil
}

// Trim decodes the image at full resolution and crops it to rect, which is
// clipped to the image bounds. A rectangle covering the whole image returns
// the full decode unchanged.
func (im *Image) Trim(ctx context.Context, rect image.Rectangle, cs Colorspace) (*Pixels, error) {
	bounds := image.Rect(0, 0, im.Width, im.Height)
	rect = rect.Intersect(bounds)
	if rect.Empty() {
		return nil, ErrOutOfBounds
	}
	r, err := im.decode(ctx, 1, cs)
	if err != nil {
		return nil, err
	}
	p := &Pixels{raster: r, Colorspace: cs, Denom: 1, Source: im.Size()}
	if rect != bounds {
		p.raster = crop(r, rect)
	}
	return p, nil
}

// decode runs the scaled IDCT into the raster model cs needs. CMYK sources
// are always kept as CMYK so Get can apply the ink conversion.
func (im *Image) decode(ctx context.Context, denom int, cs Colorspace) (*jpegfile.Raster, error) {
	if !cs.valid() {
		return nil, fmt.Errorf("%w: colourspace %d", ErrNotDecodable, int(cs))
	}
	f, err := im.coefficients(ctx)
	if err != nil {
		return nil, err
	}

	model := cs.model()
	switch f.ColorModel() {
	case jpegfile.ModelCMYK, jpegfile.ModelYCCK:
		model = jpegfile.ModelCMYK
	default:
		if model == jpegfile.ModelCMYK {
			return nil, fmt.Errorf("%w: %s image requested as CMYK", ErrNotDecodable, f.ColorModel())
		}
	}

	r, err := f.DecodeScaled(ctx, denom, model)
	if err != nil {
		return nil, decodeError(err)
	}
	return r, nil
}

// resample scales r to size by sampling the nearest source pixel.
func resample(r *jpegfile.Raster, size Size) *jpegfile.Raster {
	out := &jpegfile.Raster{
		Width:    size.Width,
		Height:   size.Height,
		Channels: r.Channels,
		Model:    r.Model,
		Pix:      make([]byte, size.Width*size.Height*r.Channels),
	}
	ch := r.Channels
	for y := 0; y < size.Height; y++ {
		src := r.Pix[(y*r.Height/size.Height)*r.Stride():]
		dst := out.Pix[y*out.Stride():]
		for x := 0; x < size.Width; x++ {
			sx := (x * r.Width / size.Width) * ch
			copy(dst[x*ch:x*ch+ch], src[sx:sx+ch])
		}
	}
	return out
}

// crop copies rect out of r. rect must lie inside r.
func crop(r *jpegfile.Raster, rect image.Rectangle) *jpegfile.Raster {
	out := &jpegfile.Raster{
		Width:    rect.Dx(),
		Height:   rect.Dy(),
		Channels: r.Channels,
		Model:    r.Model,
	}
	out.Pix = make([]byte, out.Width*out.Height*out.Channels)
	for y := 0; y < out.Height; y++ {
		src := r.Pix[(rect.Min.Y+y)*r.Stride()+rect.Min.X*r.Channels:]
		copy(out.Pix[y*out.Stride():(y+1)*out.Stride()], src)
	}
	return out
}
