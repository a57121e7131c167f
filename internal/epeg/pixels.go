package epeg

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"

	"github.com/gobbledegook/creevey/internal/jpegfile"
)

// Colorspace is the layout of pixels returned by Pixels.Get.
type Colorspace int

const (
	Gray8  Colorspace = iota // 1 byte: luma
	YUV8                     // 3 bytes: Y, Cb, Cr
	RGB8                     // 3 bytes: R, G, B
	BGR8                     // 3 bytes: B, G, R
	RGBA8                    // 4 bytes: R, G, B, 0xff
	BGRA8                    // 4 bytes: B, G, R, 0xff
	ARGB32                   // native-endian uint32 0xffRRGGBB
	CMYK                     // 4 bytes: C, M, Y, K as stored by the file
)

var colorspaceNames = [...]string{"gray8", "yuv8", "rgb8", "bgr8", "rgba8", "bgra8", "argb32", "cmyk"}

func (cs Colorspace) String() string {
	if !cs.valid() {
		return fmt.Sprintf("Colorspace(%d)", int(cs))
	}
	return colorspaceNames[cs]
}

func (cs Colorspace) valid() bool {
	return cs >= Gray8 && cs <= CMYK
}

// BytesPerPixel returns the size of one pixel in cs.
func (cs Colorspace) BytesPerPixel() int {
	switch cs {
	case Gray8:
		return 1
	case YUV8, RGB8, BGR8:
		return 3
	}
	return 4
}

// model returns the decoder output model that serves cs most directly.
func (cs Colorspace) model() jpegfile.ColorModel {
	switch cs {
	case Gray8:
		return jpegfile.ModelGray
	case YUV8:
		return jpegfile.ModelYCbCr
	case CMYK:
		return jpegfile.ModelCMYK
	}
	return jpegfile.ModelRGB
}

// Pixels is a decoded, scaled image.
type Pixels struct {
	// Colorspace is the layout the image was decoded for.
	Colorspace Colorspace
	// Denom is the DCT scale denominator the image was decoded at.
	Denom int
	// Source is the size of the image before scaling.
	Source Size

	raster *jpegfile.Raster
}

// Size returns the dimensions of the decoded pixels.
func (p *Pixels) Size() Size {
	return Size{p.raster.Width, p.raster.Height}
}

// Bytes returns the memory held by the pixel buffer.
func (p *Pixels) Bytes() int {
	return len(p.raster.Pix)
}

// Get returns the pixels of the w by h rectangle at (x, y) in colourspace cs,
// packed row by row with no padding. Parts of the rectangle outside the image
// are left zero. A rectangle that misses the image entirely is an error.
func (p *Pixels) Get(x, y, w, h int, cs Colorspace) ([]byte, error) {
	if !cs.valid() {
		return nil, fmt.Errorf("epeg: unknown colourspace %d", int(cs))
	}
	if cs == CMYK && p.raster.Model != jpegfile.ModelCMYK {
		return nil, fmt.Errorf("%w: %s pixels requested as CMYK", ErrNotDecodable, p.raster.Model)
	}
	if w < 1 || h < 1 {
		return nil, ErrOutOfBounds
	}
	req := image.Rect(x, y, x+w, y+h)
	in := req.Intersect(image.Rect(0, 0, p.raster.Width, p.raster.Height))
	if in.Empty() {
		return nil, ErrOutOfBounds
	}

	bpp := cs.BytesPerPixel()
	out := make([]byte, w*h*bpp)
	r := p.raster
	for yy := in.Min.Y; yy < in.Max.Y; yy++ {
		src := r.Pix[yy*r.Stride():]
		dst := out[((yy-y)*w+(in.Min.X-x))*bpp:]
		for xx := in.Min.X; xx < in.Max.X; xx++ {
			convert(r.Model, src[xx*r.Channels:], cs, dst)
			dst = dst[bpp:]
		}
	}
	return out, nil
}

// cmykToRGB converts stored ink values to RGB. JPEG CMYK, as written by
// Adobe applications, stores the inks inverted, so a higher value means
// less ink.
func cmykToRGB(s []byte) (r, g, b byte) {
	k := int(s[3])
	return byte(min(255, int(s[0])*k/255)), byte(min(255, int(s[1])*k/255)), byte(min(255, int(s[2])*k/255))
}

// convert writes one pixel of model m at s to d in layout cs.
func convert(m jpegfile.ColorModel, s []byte, cs Colorspace, d []byte) {
	var r, g, b byte
	switch m {
	case jpegfile.ModelGray:
		switch cs {
		case Gray8:
			d[0] = s[0]
			return
		case YUV8:
			d[0], d[1], d[2] = s[0], 128, 128
			return
		}
		r, g, b = s[0], s[0], s[0]
	case jpegfile.ModelYCbCr:
		switch cs {
		case Gray8:
			d[0] = s[0]
			return
		case YUV8:
			d[0], d[1], d[2] = s[0], s[1], s[2]
			return
		}
		r, g, b = color.YCbCrToRGB(s[0], s[1], s[2])
	case jpegfile.ModelCMYK:
		if cs == CMYK {
			d[0], d[1], d[2], d[3] = s[0], s[1], s[2], s[3]
			return
		}
		r, g, b = cmykToRGB(s)
	default:
		r, g, b = s[0], s[1], s[2]
	}

	switch cs {
	case Gray8:
		d[0], _, _ = color.RGBToYCbCr(r, g, b)
	case YUV8:
		d[0], d[1], d[2] = color.RGBToYCbCr(r, g, b)
	case RGB8:
		d[0], d[1], d[2] = r, g, b
	case BGR8:
		d[0], d[1], d[2] = b, g, r
	case RGBA8:
		d[0], d[1], d[2], d[3] = r, g, b, 0xff
	case BGRA8:
		d[0], d[1], d[2], d[3] = b, g, r, 0xff
	case ARGB32:
		binary.NativeEndian.PutUint32(d, 0xff<<24|uint32(r)<<16|uint32(g)<<8|uint32(b))
	}
}

// Image returns the pixels as an image.Image: *image.Gray for grayscale
// decodes and *image.RGBA otherwise.
func (p *Pixels) Image() image.Image {
	r := p.raster
	if r.Model == jpegfile.ModelGray {
		img := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
		copy(img.Pix, r.Pix)
		return img
	}
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	pix, _ := p.Get(0, 0, r.Width, r.Height, RGBA8)
	copy(img.Pix, pix)
	return img
}

// rgbRaster returns the pixels as an RGB or gray raster for encoding.
func (p *Pixels) rgbRaster() *jpegfile.Raster {
	r := p.raster
	if r.Model == jpegfile.ModelGray || r.Model == jpegfile.ModelRGB || r.Model == jpegfile.ModelYCbCr {
		return r
	}
	pix, _ := p.Get(0, 0, r.Width, r.Height, RGB8)
	return &jpegfile.Raster{Width: r.Width, Height: r.Height, Channels: 3, Model: jpegfile.ModelRGB, Pix: pix}
}

// FromImage copies img into Pixels for encoding. Gray images stay gray;
// everything else becomes RGB8 with alpha dropped.
func FromImage(img image.Image) *Pixels {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	size := Size{w, h}

	if g, ok := img.(*image.Gray); ok {
		pix := make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(pix[y*w:(y+1)*w], g.Pix[(y+b.Min.Y-g.Rect.Min.Y)*g.Stride+(b.Min.X-g.Rect.Min.X):])
		}
		return &Pixels{
			Colorspace: Gray8,
			Denom:      1,
			Source:     size,
			raster:     &jpegfile.Raster{Width: w, Height: h, Channels: 1, Model: jpegfile.ModelGray, Pix: pix},
		}
	}

	pix := make([]byte, 0, w*h*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			pix = append(pix, c.R, c.G, c.B)
		}
	}
	return &Pixels{
		Colorspace: RGB8,
		Denom:      1,
		Source:     size,
		raster:     &jpegfile.Raster{Width: w, Height: h, Channels: 3, Model: jpegfile.ModelRGB, Pix: pix},
	}
}
