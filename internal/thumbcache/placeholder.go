package thumbcache

import (
	"image"
	"image/color"

	"github.com/gobbledegook/creevey/internal/epeg"
)

const placeholderSide = 32

// placeholderImage is the stand-in for files that cannot be decoded: a grey
// tile crossed out in a darker grey.
func placeholderImage(box epeg.Size) image.Image {
	side := placeholderSide
	if !box.Empty() {
		side = min(side, box.Width, box.Height)
	}
	img := image.NewGray(image.Rect(0, 0, side, side))
	for i := range img.Pix {
		img.Pix[i] = 0xc0
	}
	ink := color.Gray{Y: 0x40}
	for i := 0; i < side; i++ {
		img.SetGray(i, i, ink)
		img.SetGray(side-1-i, i, ink)
	}
	return img
}

func placeholderInfo(path string, box epeg.Size) *Info {
	return &Info{
		Path:        path,
		Image:       placeholderImage(box),
		Box:         box,
		Placeholder: true,
	}
}

// imageBytes approximates the memory held by img's pixels.
func imageBytes(img image.Image) int64 {
	switch m := img.(type) {
	case nil:
		return 0
	case *image.RGBA:
		return int64(len(m.Pix))
	case *image.NRGBA:
		return int64(len(m.Pix))
	case *image.Gray:
		return int64(len(m.Pix))
	case *image.YCbCr:
		return int64(len(m.Y) + len(m.Cb) + len(m.Cr))
	}
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}
