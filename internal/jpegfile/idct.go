package jpegfile

import "math"

// Constants for the integer IDCT, scaled by 2^11.
const (
	w1 = 2841 // 2048*sqrt(2)*cos(1*pi/16)
	w2 = 2676 // 2048*sqrt(2)*cos(2*pi/16)
	w3 = 2408 // 2048*sqrt(2)*cos(3*pi/16)
	w5 = 1609 // 2048*sqrt(2)*cos(5*pi/16)
	w6 = 1108 // 2048*sqrt(2)*cos(6*pi/16)
	w7 = 565  // 2048*sqrt(2)*cos(7*pi/16)
)

func clampSample(x int32) byte {
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return byte(x)
}

// idct8 performs the full 8x8 inverse DCT on a dequantized block and writes
// 64 level-shifted samples to out.
func idct8(blk *[blockSize]int32, out []byte, stride int) {
	for y := 0; y < 8; y++ {
		idctRow(blk[8*y : 8*y+8])
	}
	for x := 0; x < 8; x++ {
		idctCol(blk, x, out[x:], stride)
	}
}

func idctRow(b []int32) {
	_ = b[7]
	x1 := b[4] << 11
	x2 := b[6]
	x3 := b[2]
	x4 := b[1]
	x5 := b[7]
	x6 := b[5]
	x7 := b[3]
	if (x1 | x2 | x3 | x4 | x5 | x6 | x7) == 0 {
		dc := b[0] << 3
		for i := range b[:8] {
			b[i] = dc
		}
		return
	}
	x0 := (b[0] << 11) + 128

	x8 := w7 * (x4 + x5)
	x4 = x8 + (w1-w7)*x4
	x5 = x8 - (w1+w7)*x5
	x8 = w3 * (x6 + x7)
	x6 = x8 - (w3-w5)*x6
	x7 = x8 - (w3+w5)*x7

	x8 = x0 + x1
	x0 -= x1
	x1 = w6 * (x3 + x2)
	x2 = x1 - (w2+w6)*x2
	x3 = x1 + (w2-w6)*x3

	x1 = x4 + x6
	x4 -= x6
	x6 = x5 + x7
	x5 -= x7

	x7 = x8 + x3
	x8 -= x3
	x3 = x0 + x2
	x0 -= x2

	x2 = (181*(x4+x5) + 128) >> 8
	x4 = (181*(x4-x5) + 128) >> 8

	b[0] = (x7 + x1) >> 8
	b[1] = (x3 + x2) >> 8
	b[2] = (x0 + x4) >> 8
	b[3] = (x8 + x6) >> 8
	b[4] = (x8 - x6) >> 8
	b[5] = (x0 - x4) >> 8
	b[6] = (x3 - x2) >> 8
	b[7] = (x7 - x1) >> 8
}

func idctCol(blk *[blockSize]int32, x int, out []byte, stride int) {
	x1 := blk[x+8*4] << 8
	x2 := blk[x+8*6]
	x3 := blk[x+8*2]
	x4 := blk[x+8*1]
	x5 := blk[x+8*7]
	x6 := blk[x+8*5]
	x7 := blk[x+8*3]
	if (x1 | x2 | x3 | x4 | x5 | x6 | x7) == 0 {
		v := clampSample(((blk[x] + 32) >> 6) + 128)
		for y := 0; y < 8; y++ {
			out[y*stride] = v
		}
		return
	}
	x0 := (blk[x] << 8) + 8192

	x8 := w7*(x4+x5) + 4
	x4 = (x8 + (w1-w7)*x4) >> 3
	x5 = (x8 - (w1+w7)*x5) >> 3
	x8 = w3*(x6+x7) + 4
	x6 = (x8 - (w3-w5)*x6) >> 3
	x7 = (x8 - (w3+w5)*x7) >> 3

	x8 = x0 + x1
	x0 -= x1
	x1 = w6*(x3+x2) + 4
	x2 = (x1 - (w2+w6)*x2) >> 3
	x3 = (x1 + (w2-w6)*x3) >> 3

	x1 = x4 + x6
	x4 -= x6
	x6 = x5 + x7
	x5 -= x7

	x7 = x8 + x3
	x8 -= x3
	x3 = x0 + x2
	x0 -= x2

	x2 = (181*(x4+x5) + 128) >> 8
	x4 = (181*(x4-x5) + 128) >> 8

	out[0*stride] = clampSample(((x7 + x1) >> 14) + 128)
	out[1*stride] = clampSample(((x3 + x2) >> 14) + 128)
	out[2*stride] = clampSample(((x0 + x4) >> 14) + 128)
	out[3*stride] = clampSample(((x8 + x6) >> 14) + 128)
	out[4*stride] = clampSample(((x8 - x6) >> 14) + 128)
	out[5*stride] = clampSample(((x0 - x4) >> 14) + 128)
	out[6*stride] = clampSample(((x3 - x2) >> 14) + 128)
	out[7*stride] = clampSample(((x7 - x1) >> 14) + 128)
}

// reducedBasis[n] holds C(u)*cos((2i+1)u*pi/2n) for the n-point reduced
// inverse DCTs, indexed [i*n+u].
var reducedBasis = map[int][]float64{
	2: reducedTable(2),
	4: reducedTable(4),
}

func reducedTable(n int) []float64 {
	t := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for u := 0; u < n; u++ {
			c := 1.0
			if u == 0 {
				c = 1 / math.Sqrt2
			}
			t[i*n+u] = c * math.Cos(float64(2*i+1)*float64(u)*math.Pi/float64(2*n))
		}
	}
	return t
}

// idctReduced evaluates the n-point inverse DCT of the low-frequency n x n
// corner of an 8x8 block. The result keeps the block's mean so a reduced
// decode has the same brightness as a full one.
func idctReduced(blk *[blockSize]int32, n int, out []byte, stride int) {
	basis := reducedBasis[n]
	var tmp [16]float64
	// Rows: tmp[v][i] = sum_u F(v,u) * basis[i][u]
	for v := 0; v < n; v++ {
		for i := 0; i < n; i++ {
			s := 0.0
			for u := 0; u < n; u++ {
				s += float64(blk[8*v+u]) * basis[i*n+u]
			}
			tmp[v*n+i] = s
		}
	}
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			s := 0.0
			for v := 0; v < n; v++ {
				s += basis[j*n+v] * tmp[v*n+i]
			}
			out[j*stride+i] = clampSample(int32(math.Round(s/4)) + 128)
		}
	}
}

// idctScaled writes an (8/denom) x (8/denom) output for a dequantized block.
func idctScaled(blk *[blockSize]int32, denom int, out []byte, stride int) {
	switch denom {
	case 1:
		idct8(blk, out, stride)
	case 2:
		idctReduced(blk, 4, out, stride)
	case 4:
		idctReduced(blk, 2, out, stride)
	default:
		// DC only: the block mean.
		out[0] = clampSample(((blk[0] + 4) >> 3) + 128)
	}
}
