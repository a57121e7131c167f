package jpegfile

import (
	"image/color"
	"math"
)

// DefaultQuality is the quality used when none is given.
const DefaultQuality = 75

// stdQuant are the example quantization tables from section K.1 of the
// JPEG standard, in natural order.
var stdQuant = [2][blockSize]uint16{
	{
		16, 11, 10, 16, 24, 40, 51, 61,
		12, 12, 14, 19, 26, 58, 60, 55,
		14, 13, 16, 24, 40, 57, 69, 56,
		14, 17, 22, 29, 51, 87, 80, 62,
		18, 22, 37, 56, 68, 109, 103, 77,
		24, 35, 55, 64, 81, 104, 113, 92,
		49, 64, 78, 87, 103, 121, 120, 101,
		72, 92, 95, 98, 112, 100, 103, 99,
	},
	{
		17, 18, 24, 47, 99, 99, 99, 99,
		18, 21, 26, 66, 99, 99, 99, 99,
		24, 26, 56, 99, 99, 99, 99, 99,
		47, 66, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
	},
}

// QuantTables returns the standard tables scaled for quality in [0, 100],
// using the same mapping as libjpeg's jpeg_set_quality with baseline
// clamping.
func QuantTables(quality int) (lum, chrom *[blockSize]uint16) {
	if quality <= 0 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	var scale int
	if quality < 50 {
		scale = 5000 / quality
	} else {
		scale = 200 - quality*2
	}
	var out [2]*[blockSize]uint16
	for i := range out {
		q := new([blockSize]uint16)
		for j, base := range stdQuant[i] {
			x := (int(base)*scale + 50) / 100
			if x < 1 {
				x = 1
			} else if x > 255 {
				x = 255
			}
			q[j] = uint16(x)
		}
		out[i] = q
	}
	return out[0], out[1]
}

// fdctBasis holds C(u)*cos((2x+1)u*pi/16)/2, indexed [u*8+x].
var fdctBasis = func() (t [blockSize]float64) {
	for u := 0; u < 8; u++ {
		c := 1.0
		if u == 0 {
			c = 1 / math.Sqrt2
		}
		for x := 0; x < 8; x++ {
			t[u*8+x] = c * math.Cos(float64(2*x+1)*float64(u)*math.Pi/16) / 2
		}
	}
	return t
}()

// fdctQuantize transforms 64 level-shifted samples and quantizes the result.
func fdctQuantize(samples *[blockSize]float64, q *[blockSize]uint16, out *Block) {
	var tmp [blockSize]float64
	for y := 0; y < 8; y++ {
		for u := 0; u < 8; u++ {
			s := 0.0
			for x := 0; x < 8; x++ {
				s += fdctBasis[u*8+x] * samples[y*8+x]
			}
			tmp[y*8+u] = s
		}
	}
	for v := 0; v < 8; v++ {
		for u := 0; u < 8; u++ {
			s := 0.0
			for y := 0; y < 8; y++ {
				s += fdctBasis[v*8+y] * tmp[y*8+u]
			}
			out[v*8+u] = int16(math.Round(s / float64(q[v*8+u])))
		}
	}
}

// FromPixels builds a File by forward transforming a raster. Colour rasters
// are stored as YCbCr; with subsample the chroma components use 2x2
// subsampling, otherwise every component is sampled 1x1.
func FromPixels(r *Raster, quality int, subsample bool) (*File, error) {
	if r.Width < 1 || r.Height < 1 || r.Width > maxDimension || r.Height > maxDimension {
		return nil, unsupportedError("image dimensions %dx%d", r.Width, r.Height)
	}
	if len(r.Pix) < r.Width*r.Height*r.Channels {
		return nil, syntaxError("raster buffer too small")
	}

	lum, chrom := QuantTables(quality)
	f := newFile()
	f.Width, f.Height = r.Width, r.Height

	// planes holds full-resolution samples per output component.
	var planes [][]byte
	n := r.Width * r.Height
	switch r.Model {
	case ModelGray:
		f.Components = []Component{{ID: 1, H: 1, V: 1, Tq: 0}}
		f.Quant[0] = lum
		planes = [][]byte{r.Pix[:n]}
	case ModelRGB, ModelYCbCr:
		h := 1
		if subsample {
			h = 2
		}
		f.Components = []Component{
			{ID: 1, H: h, V: h, Tq: 0},
			{ID: 2, H: 1, V: 1, Tq: 1},
			{ID: 3, H: 1, V: 1, Tq: 1},
		}
		f.Quant[0], f.Quant[1] = lum, chrom
		planes = [][]byte{make([]byte, n), make([]byte, n), make([]byte, n)}
		for i := 0; i < n; i++ {
			p := r.Pix[i*3 : i*3+3]
			if r.Model == ModelRGB {
				planes[0][i], planes[1][i], planes[2][i] = color.RGBToYCbCr(p[0], p[1], p[2])
			} else {
				planes[0][i], planes[1][i], planes[2][i] = p[0], p[1], p[2]
			}
		}
	case ModelCMYK:
		f.AdobeTransform = 0
		f.Components = make([]Component, 4)
		planes = make([][]byte, 4)
		for c := 0; c < 4; c++ {
			f.Components[c] = Component{ID: byte(c + 1), H: 1, V: 1, Tq: 0}
			planes[c] = make([]byte, n)
			for i := 0; i < n; i++ {
				planes[c][i] = r.Pix[i*4+c]
			}
		}
		f.Quant[0] = lum
	default:
		return nil, unsupportedError("encoding %s rasters", r.Model)
	}

	f.AllocBlocks()
	hmax, vmax := f.MaxSampling()
	var samples [blockSize]float64
	for ci := range f.Components {
		c := &f.Components[ci]
		q := f.Quant[c.Tq]
		sx, sy := hmax/c.H, vmax/c.V
		cw := (f.Width*c.H + hmax - 1) / hmax
		ch := (f.Height*c.V + vmax - 1) / vmax
		src := planes[ci]
		for by := 0; by < c.BlocksHigh; by++ {
			for bx := 0; bx < c.BlocksWide; bx++ {
				for y := 0; y < 8; y++ {
					cy := min(by*8+y, ch-1)
					for x := 0; x < 8; x++ {
						cx := min(bx*8+x, cw-1)
						samples[y*8+x] = float64(boxSample(src, f.Width, f.Height, cx*sx, cy*sy, sx, sy)) - 128
					}
				}
				fdctQuantize(&samples, q, c.Block(bx, by))
			}
		}
	}
	return f, nil
}

// boxSample averages the sx by sy box of full-resolution samples at (x, y),
// clamping to the image edge.
func boxSample(src []byte, w, h, x, y, sx, sy int) int {
	if sx == 1 && sy == 1 {
		return int(src[min(y, h-1)*w+min(x, w-1)])
	}
	sum := 0
	for j := 0; j < sy; j++ {
		row := min(y+j, h-1) * w
		for i := 0; i < sx; i++ {
			sum += int(src[row+min(x+i, w-1)])
		}
	}
	n := sx * sy
	return (sum + n/2) / n
}
