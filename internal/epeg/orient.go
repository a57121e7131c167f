package epeg

import (
	"image"

	"github.com/disintegration/imaging"
)

// OrientedSize returns the dimensions of s after EXIF orientation o is
// applied. Orientations 5 to 8 swap the axes.
func OrientedSize(s Size, o int) Size {
	if o >= 5 && o <= 8 {
		return Size{s.Height, s.Width}
	}
	return s
}

// Orient returns img turned upright according to EXIF orientation o.
// Orientations outside 2..8 return img unchanged.
func Orient(img image.Image, o int) image.Image {
	switch o {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}
