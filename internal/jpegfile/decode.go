package jpegfile

import (
	"context"
	"image/color"
)

// Raster is an interleaved 8-bit pixel buffer.
type Raster struct {
	Width, Height int
	// Channels is 1 for ModelGray, 3 for ModelRGB and ModelYCbCr, and 4 for
	// ModelCMYK.
	Channels int
	Model    ColorModel
	Pix      []byte
}

// Stride returns the number of bytes per row.
func (r *Raster) Stride() int {
	return r.Width * r.Channels
}

// ScaledSize returns the output size of a decode at 1/denom.
func (f *File) ScaledSize(denom int) (w, h int) {
	return (f.Width + denom - 1) / denom, (f.Height + denom - 1) / denom
}

// DecodeScaled converts the coefficients to pixels at 1/denom of the full
// resolution, where denom is 1, 2, 4 or 8. Only the low-frequency corner of
// each block is inverse transformed, so a 1/8 decode reads just the DC terms.
//
// out selects the output model; ModelUnknown picks gray for one component,
// RGB for three and CMYK for four. YCCK data is always returned as CMYK.
func (f *File) DecodeScaled(ctx context.Context, denom int, out ColorModel) (*Raster, error) {
	if !f.HasCoefficients() {
		return nil, syntaxError("no coefficient data")
	}
	switch denom {
	case 1, 2, 4, 8:
	default:
		return nil, unsupportedError("scale 1/%d", denom)
	}

	src := f.ColorModel()
	out, err := resolveModel(src, out)
	if err != nil {
		return nil, err
	}

	planes, err := f.componentPlanes(ctx, denom)
	if err != nil {
		return nil, err
	}

	w, h := f.ScaledSize(denom)
	r := &Raster{Width: w, Height: h, Model: out}
	switch out {
	case ModelGray:
		r.Channels = 1
	case ModelCMYK:
		r.Channels = 4
	default:
		r.Channels = 3
	}
	r.Pix = make([]byte, w*h*r.Channels)

	hmax, vmax := f.MaxSampling()
	n := len(f.Components)
	var s [4]byte
	for y := 0; y < h; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := r.Pix[y*r.Stride():]
		for x := 0; x < w; x++ {
			for i := 0; i < n; i++ {
				c := &f.Components[i]
				p := planes[i]
				s[i] = p.pix[(y*c.V/vmax)*p.stride+x*c.H/hmax]
			}
			convertPixel(src, out, s[:n], row[x*r.Channels:])
		}
	}
	return r, nil
}

func resolveModel(src, out ColorModel) (ColorModel, error) {
	switch src {
	case ModelGray:
		switch out {
		case ModelUnknown:
			return ModelGray, nil
		case ModelGray, ModelRGB, ModelYCbCr:
			return out, nil
		}
	case ModelYCbCr, ModelRGB:
		switch out {
		case ModelUnknown:
			return ModelRGB, nil
		case ModelGray, ModelRGB, ModelYCbCr:
			return out, nil
		}
	case ModelCMYK, ModelYCCK:
		if out == ModelUnknown || out == ModelCMYK {
			return ModelCMYK, nil
		}
	}
	return ModelUnknown, unsupportedError("conversion from %s to %s", src, out)
}

func convertPixel(src, out ColorModel, s []byte, d []byte) {
	switch src {
	case ModelGray:
		switch out {
		case ModelGray:
			d[0] = s[0]
		case ModelRGB:
			d[0], d[1], d[2] = s[0], s[0], s[0]
		case ModelYCbCr:
			d[0], d[1], d[2] = s[0], 128, 128
		}
	case ModelYCbCr:
		switch out {
		case ModelGray:
			d[0] = s[0]
		case ModelYCbCr:
			d[0], d[1], d[2] = s[0], s[1], s[2]
		case ModelRGB:
			d[0], d[1], d[2] = color.YCbCrToRGB(s[0], s[1], s[2])
		}
	case ModelRGB:
		switch out {
		case ModelRGB:
			d[0], d[1], d[2] = s[0], s[1], s[2]
		case ModelYCbCr:
			d[0], d[1], d[2] = color.RGBToYCbCr(s[0], s[1], s[2])
		case ModelGray:
			d[0], _, _ = color.RGBToYCbCr(s[0], s[1], s[2])
		}
	case ModelCMYK:
		d[0], d[1], d[2], d[3] = s[0], s[1], s[2], s[3]
	case ModelYCCK:
		r, g, b := color.YCbCrToRGB(s[0], s[1], s[2])
		d[0], d[1], d[2], d[3] = 255-r, 255-g, 255-b, s[3]
	}
}

type plane struct {
	pix    []byte
	stride int
}

// componentPlanes inverse transforms every block of every component at the
// requested reduction.
func (f *File) componentPlanes(ctx context.Context, denom int) ([]plane, error) {
	bs := 8 / denom
	planes := make([]plane, len(f.Components))
	var blk [blockSize]int32
	for i := range f.Components {
		c := &f.Components[i]
		q := f.Quant[c.Tq]
		if q == nil {
			return nil, syntaxError("missing quantization table %d", c.Tq)
		}
		p := plane{stride: c.BlocksWide * bs}
		p.pix = make([]byte, p.stride*c.BlocksHigh*bs)
		for by := 0; by < c.BlocksHigh; by++ {
			if by%c.V == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			for bx := 0; bx < c.BlocksWide; bx++ {
				b := c.Block(bx, by)
				for k := range blk {
					blk[k] = int32(b[k]) * int32(q[k])
				}
				off := by*bs*p.stride + bx*bs
				idctScaled(&blk, denom, p.pix[off:], p.stride)
			}
		}
		planes[i] = p
	}
	return planes, nil
}
