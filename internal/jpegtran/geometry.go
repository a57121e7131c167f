package jpegtran

import (
	"context"
	"fmt"

	"github.com/gobbledegook/creevey/internal/jpegfile"
)

// newFrame returns a File with src's header fields and no components.
func newFrame(src *jpegfile.File) *jpegfile.File {
	return &jpegfile.File{
		Width:          src.Width,
		Height:         src.Height,
		Progressive:    src.Progressive,
		Quant:          src.Quant,
		Segments:       src.Segments,
		JFIF:           src.JFIF,
		AdobeTransform: src.AdobeTransform,
	}
}

// toGrayscale keeps only the luminance component. It works on YCbCr and
// grayscale files; other colour models have no luminance channel to keep.
func toGrayscale(src *jpegfile.File) (*jpegfile.File, error) {
	switch src.ColorModel() {
	case jpegfile.ModelGray:
		return src, nil
	case jpegfile.ModelYCbCr:
	default:
		return nil, fmt.Errorf("%w: grayscale conversion of %s image", ErrUnsupportedTransform, src.ColorModel())
	}

	dst := newFrame(src)
	dst.AdobeTransform = -1
	y := src.Components[0]
	dst.Components = []jpegfile.Component{{ID: y.ID, H: 1, V: 1, Tq: y.Tq}}
	dst.AllocBlocks()

	dc := &dst.Components[0]
	for by := 0; by < min(dc.BlocksHigh, y.BlocksHigh); by++ {
		for bx := 0; bx < min(dc.BlocksWide, y.BlocksWide); bx++ {
			*dc.Block(bx, by) = *y.Block(bx, by)
		}
	}
	return dst, nil
}

// transposeQuant returns q with rows and columns exchanged.
func transposeQuant(q *[64]uint16) *[64]uint16 {
	if q == nil {
		return nil
	}
	t := new([64]uint16)
	for v := 0; v < 8; v++ {
		for u := 0; u < 8; u++ {
			t[u*8+v] = q[v*8+u]
		}
	}
	return t
}

// mirror maps block index d to its mirror image within the first full
// blocks. Blocks past full belong to a partial iMCU and stay in place.
func mirror(d, full int) (int, bool) {
	if d < full {
		return full - 1 - d, true
	}
	return d, false
}

// applyOp performs op on the coefficient blocks of src. With trim, partial
// iMCUs along a mirrored edge are dropped from the output; without it they
// are copied unmirrored, which leaves a strip of unrotated pixels at that
// edge.
func applyOp(ctx context.Context, src *jpegfile.File, op Op, trim bool) (*jpegfile.File, error) {
	if op == None {
		return src, nil
	}
	g := opGeometry[op]

	dst := newFrame(src)
	dst.Components = make([]jpegfile.Component, len(src.Components))
	for i, c := range src.Components {
		dst.Components[i] = jpegfile.Component{ID: c.ID, H: c.H, V: c.V, Tq: c.Tq}
		if g.transpose {
			dst.Components[i].H, dst.Components[i].V = c.V, c.H
		}
	}
	if g.transpose {
		dst.Width, dst.Height = src.Height, src.Width
		for i := range dst.Quant {
			dst.Quant[i] = transposeQuant(src.Quant[i])
		}
	}

	mcuW, mcuH := dst.MCUSize()
	if trim {
		if g.mirrorX && dst.Width >= mcuW {
			dst.Width -= dst.Width % mcuW
		}
		if g.mirrorY && dst.Height >= mcuH {
			dst.Height -= dst.Height % mcuH
		}
	}
	dst.AllocBlocks()

	var zero jpegfile.Block
	for ci := range dst.Components {
		sc, dc := &src.Components[ci], &dst.Components[ci]
		fullX := dst.Width / mcuW * dc.H
		fullY := dst.Height / mcuH * dc.V

		for dy := 0; dy < dc.BlocksHigh; dy++ {
			if dy%8 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			for dx := 0; dx < dc.BlocksWide; dx++ {
				ux, negU := dx, false
				if g.mirrorX {
					ux, negU = mirror(dx, fullX)
				}
				uy, negV := dy, false
				if g.mirrorY {
					uy, negV = mirror(dy, fullY)
				}
				sx, sy := ux, uy
				if g.transpose {
					sx, sy = uy, ux
				}
				in := &zero
				if sx < sc.BlocksWide && sy < sc.BlocksHigh {
					in = sc.Block(sx, sy)
				}
				transformBlock(dc.Block(dx, dy), in, g.transpose, negU, negV)
			}
		}
	}
	return dst, nil
}

// transformBlock writes in to out, transposed if requested, with the odd
// horizontal and/or vertical frequencies negated. Negating the odd
// frequencies of a DCT block mirrors the block's samples.
func transformBlock(out, in *jpegfile.Block, transpose, negU, negV bool) {
	for v := 0; v < 8; v++ {
		for u := 0; u < 8; u++ {
			c := in[v*8+u]
			if transpose {
				c = in[u*8+v]
			}
			if negU && u&1 == 1 {
				c = -c
			}
			if negV && v&1 == 1 {
				c = -c
			}
			out[v*8+u] = c
		}
	}
}
