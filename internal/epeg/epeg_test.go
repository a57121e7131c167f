package epeg

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobbledegook/creevey/internal/exif"
	"github.com/gobbledegook/creevey/internal/jpegfile"
)

func solidJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// detailedJPEG returns an image with enough texture that most of the file
// is entropy-coded data.
func detailedJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8((x*7 + y*13) ^ (x * y)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func openSolid(t *testing.T, w, h int, c color.Color) *Image {
	t.Helper()
	im, err := OpenBytes(solidJPEG(t, w, h, c))
	require.NoError(t, err)
	return im
}

func TestFitSizeAndDenominator(t *testing.T) {
	tests := []struct {
		src, box Size
		fit      Size
		denom    int
	}{
		{Size{4000, 3000}, Size{200, 200}, Size{200, 150}, 8},
		{Size{640, 480}, Size{160, 160}, Size{160, 120}, 4},
		{Size{640, 480}, Size{100, 100}, Size{100, 75}, 4},
		{Size{330, 100}, Size{160, 160}, Size{160, 48}, 2},
		{Size{3000, 4000}, Size{200, 200}, Size{150, 200}, 8},
		{Size{100, 80}, Size{200, 200}, Size{100, 80}, 1},
		{Size{161, 10}, Size{160, 160}, Size{160, 10}, 1},
	}
	for _, tt := range tests {
		fit := FitSize(tt.src, tt.box)
		assert.Equal(t, tt.fit, fit, "fit %v in %v", tt.src, tt.box)
		assert.Equal(t, tt.denom, Denominator(tt.src, fit), "denominator for %v -> %v", tt.src, fit)
	}

	// The chosen denominator is the largest one whose decode still covers
	// the target.
	assert.Equal(t, 500, ceilDiv(4000, 8))
	assert.Equal(t, 375, ceilDiv(3000, 8))
}

func TestParseSize(t *testing.T) {
	s, err := ParseSize("160x120")
	require.NoError(t, err)
	assert.Equal(t, Size{160, 120}, s)

	s, err = ParseSize(" 256 ")
	require.NoError(t, err)
	assert.Equal(t, Size{256, 256}, s)

	for _, bad := range []string{"", "x", "0x10", "10x-1", "abc"} {
		_, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "160x120", Size{160, 120}.String())
}

func TestDecodeScaled(t *testing.T) {
	im := openSolid(t, 640, 480, color.RGBA{200, 40, 40, 255})
	assert.Equal(t, Size{640, 480}, im.Size())
	assert.Equal(t, jpegfile.ModelYCbCr, im.Model)

	p, err := im.DecodeScaled(context.Background(), Size{160, 160}, RGB8)
	require.NoError(t, err)
	assert.Equal(t, Size{160, 120}, p.Size())
	assert.Equal(t, 4, p.Denom)
	assert.Equal(t, Size{640, 480}, p.Source)
	assert.Equal(t, 160*120*3, p.Bytes())

	// 1/4 gives 160x120, which is then resampled down to the exact fit.
	p, err = im.DecodeScaled(context.Background(), Size{100, 100}, RGB8)
	require.NoError(t, err)
	assert.Equal(t, Size{100, 75}, p.Size())
	assert.Equal(t, 4, p.Denom)

	px, err := p.Get(50, 30, 1, 1, RGB8)
	require.NoError(t, err)
	assert.InDelta(t, 200, int(px[0]), 6)
	assert.InDelta(t, 40, int(px[1]), 6)
	assert.InDelta(t, 40, int(px[2]), 6)
}

func TestDecodeScaledHonoursCancellation(t *testing.T) {
	im := openSolid(t, 64, 64, color.White)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := im.DecodeScaled(ctx, Size{16, 16}, RGB8)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrNotDecodable)
}

func TestGetColorspaces(t *testing.T) {
	im := openSolid(t, 32, 32, color.RGBA{250, 10, 10, 255})
	p, err := im.DecodeScaled(context.Background(), Size{32, 32}, RGB8)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Denom)

	rgb, err := p.Get(8, 8, 1, 1, RGB8)
	require.NoError(t, err)
	r, g, b := rgb[0], rgb[1], rgb[2]
	assert.Greater(t, r, byte(200))
	assert.Less(t, g, byte(50))

	bgr, err := p.Get(8, 8, 1, 1, BGR8)
	require.NoError(t, err)
	assert.Equal(t, []byte{b, g, r}, bgr)

	rgba, err := p.Get(8, 8, 1, 1, RGBA8)
	require.NoError(t, err)
	assert.Equal(t, []byte{r, g, b, 0xff}, rgba)

	bgra, err := p.Get(8, 8, 1, 1, BGRA8)
	require.NoError(t, err)
	assert.Equal(t, []byte{b, g, r, 0xff}, bgra)

	argb, err := p.Get(8, 8, 1, 1, ARGB32)
	require.NoError(t, err)
	assert.Equal(t, 0xff<<24|uint32(r)<<16|uint32(g)<<8|uint32(b), binary.NativeEndian.Uint32(argb))

	gray, err := p.Get(8, 8, 1, 1, Gray8)
	require.NoError(t, err)
	wantY, _, _ := color.RGBToYCbCr(r, g, b)
	assert.Equal(t, wantY, gray[0])

	yuv, err := p.Get(8, 8, 1, 1, YUV8)
	require.NoError(t, err)
	assert.Len(t, yuv, 3)
	assert.Equal(t, wantY, yuv[0])

	_, err = p.Get(0, 0, 1, 1, CMYK)
	assert.ErrorIs(t, err, ErrNotDecodable)

	_, err = p.Get(0, 0, 1, 1, Colorspace(99))
	assert.Error(t, err)
}

func TestGetClipsToBounds(t *testing.T) {
	im := openSolid(t, 16, 16, color.White)
	p, err := im.DecodeScaled(context.Background(), Size{16, 16}, Gray8)
	require.NoError(t, err)

	buf, err := p.Get(-4, -4, 8, 8, Gray8)
	require.NoError(t, err)
	require.Len(t, buf, 64)
	assert.Equal(t, byte(0), buf[0], "outside the image stays zero")
	assert.Equal(t, byte(0), buf[3*8+7])
	assert.Greater(t, buf[4*8+4], byte(240), "inside the image is white")
	assert.Greater(t, buf[7*8+7], byte(240))

	_, err = p.Get(16, 0, 4, 4, Gray8)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = p.Get(-10, -10, 5, 5, Gray8)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = p.Get(0, 0, 0, 5, Gray8)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestGetCMYK(t *testing.T) {
	r := &jpegfile.Raster{Width: 16, Height: 16, Channels: 4, Model: jpegfile.ModelCMYK}
	r.Pix = make([]byte, 16*16*4)
	for i := 0; i < len(r.Pix); i += 4 {
		copy(r.Pix[i:], []byte{200, 100, 50, 180})
	}
	f, err := jpegfile.FromPixels(r, 100, false)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, jpegfile.Write(&buf, f, jpegfile.WriteOptions{}))

	im, err := OpenBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, jpegfile.ModelCMYK, im.Model)

	// Whatever colourspace is asked for, a CMYK source keeps its inks.
	p, err := im.DecodeScaled(context.Background(), Size{8, 8}, RGB8)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Denom)

	cmyk, err := p.Get(3, 3, 1, 1, CMYK)
	require.NoError(t, err)
	assert.InDelta(t, 200, int(cmyk[0]), 3)
	assert.InDelta(t, 180, int(cmyk[3]), 3)

	rgb, err := p.Get(3, 3, 1, 1, RGB8)
	require.NoError(t, err)
	k := int(cmyk[3])
	assert.Equal(t, []byte{
		byte(min(255, int(cmyk[0])*k/255)),
		byte(min(255, int(cmyk[1])*k/255)),
		byte(min(255, int(cmyk[2])*k/255)),
	}, rgb)

	var out bytes.Buffer
	require.NoError(t, Encode(&out, p, EncodeOptions{}))
	back, err := OpenBytes(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, jpegfile.ModelYCbCr, back.Model, "thumbnails of CMYK files are written as RGB")
}

func TestTrim(t *testing.T) {
	im := openSolid(t, 64, 48, color.Gray{128})

	p, err := im.Trim(context.Background(), image.Rect(10, 10, 50, 40), Gray8)
	require.NoError(t, err)
	assert.Equal(t, Size{40, 30}, p.Size())

	p, err = im.Trim(context.Background(), image.Rect(-5, -5, 100, 100), Gray8)
	require.NoError(t, err)
	assert.Equal(t, Size{64, 48}, p.Size())

	_, err = im.Trim(context.Background(), image.Rect(64, 0, 80, 10), Gray8)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestEncode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.jpg")
	require.NoError(t, os.WriteFile(path, solidJPEG(t, 320, 240, color.RGBA{0, 0, 255, 255}), 0o644))

	im, err := Open(path)
	require.NoError(t, err)
	defer im.Close()
	assert.Equal(t, path, im.Path())
	assert.False(t, im.ModTime().IsZero())
	assert.Nil(t, im.ThumbInfo)

	p, err := im.DecodeScaled(context.Background(), Size{80, 80}, RGB8)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p, EncodeOptions{
		Quality:   Quality(95),
		Comment:   "made by creevey",
		ThumbInfo: ThumbInfoFor(im),
	}))

	thumb, err := OpenBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, Size{80, 60}, thumb.Size())
	assert.Equal(t, "made by creevey", thumb.Comment)
	require.NotNil(t, thumb.ThumbInfo)
	assert.Equal(t, "file://"+path, thumb.ThumbInfo.URI)
	assert.Equal(t, im.ModTime().Unix(), thumb.ThumbInfo.MTime.Unix())
	assert.Equal(t, 320, thumb.ThumbInfo.Width)
	assert.Equal(t, 240, thumb.ThumbInfo.Height)
	assert.Equal(t, "image/jpeg", thumb.ThumbInfo.Mimetype)

	hdr, err := jpegfile.ParseHeader(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 1, hdr.Components[0].H, "quality 90 and up is not subsampled")

	buf.Reset()
	require.NoError(t, Encode(&buf, p, EncodeOptions{}))
	hdr, err = jpegfile.ParseHeader(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, hdr.Components[0].H)
	_, hasComment := hdr.Comment()
	assert.False(t, hasComment)
}

func TestEncodeQuality(t *testing.T) {
	p := FromImage(image.NewGray(image.Rect(0, 0, 16, 16)))

	tests := []struct {
		name    string
		quality *int
		want    int
	}{
		{"unset", nil, jpegfile.DefaultQuality},
		{"zero", Quality(0), 0},
		{"negative", Quality(-5), 0},
		{"above range", Quality(250), 100},
		{"in range", Quality(40), 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, p, EncodeOptions{Quality: tt.quality}))
			hdr, err := jpegfile.ParseHeader(buf.Bytes())
			require.NoError(t, err)
			lum, _ := jpegfile.QuantTables(tt.want)
			assert.Equal(t, *lum, *hdr.Quant[0])
		})
	}

	zero, _ := jpegfile.QuantTables(0)
	def, _ := jpegfile.QuantTables(jpegfile.DefaultQuality)
	assert.NotEqual(t, *zero, *def, "explicit zero must not fall back to the default")
}

func TestEmbeddedThumbnail(t *testing.T) {
	small := solidJPEG(t, 16, 12, color.Black)
	raw, err := exif.ReplaceThumbnail(exif.New(), small, 16, 12)
	require.NoError(t, err)

	f, err := jpegfile.Parse(context.Background(), solidJPEG(t, 64, 48, color.White))
	require.NoError(t, err)
	f.Segments = append([]jpegfile.Segment{{Marker: jpegfile.MarkerAPP1, Data: raw}}, f.Segments...)
	var buf bytes.Buffer
	require.NoError(t, jpegfile.Write(&buf, f, jpegfile.WriteOptions{}))

	im, err := OpenBytes(buf.Bytes())
	require.NoError(t, err)
	got, ok := im.EmbeddedThumbnail()
	require.True(t, ok)
	assert.Equal(t, small, got)

	plain := openSolid(t, 8, 8, color.White)
	_, ok = plain.EmbeddedThumbnail()
	assert.False(t, ok)
}

func TestOpenErrors(t *testing.T) {
	_, err := OpenBytes([]byte("GIF89a not a jpeg"))
	assert.ErrorIs(t, err, ErrNotAJpeg)
	assert.ErrorIs(t, err, ErrNotDecodable)

	data := detailedJPEG(t, 256, 256)
	im, err := OpenBytes(data[:len(data)*3/4])
	require.NoError(t, err, "headers are intact")
	_, err = im.DecodeScaled(context.Background(), Size{32, 32}, RGB8)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.ErrorIs(t, err, ErrNotDecodable)

	_, err = Open(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotDecodable)
}

func TestOrient(t *testing.T) {
	a := color.NRGBA{255, 0, 0, 255}
	b := color.NRGBA{0, 0, 255, 255}
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, a)
	src.Set(1, 0, b)

	tests := []struct {
		o      int
		bounds image.Rectangle
		first  color.NRGBA
	}{
		{1, image.Rect(0, 0, 2, 1), a},
		{2, image.Rect(0, 0, 2, 1), b},
		{3, image.Rect(0, 0, 2, 1), b},
		{4, image.Rect(0, 0, 2, 1), a},
		{5, image.Rect(0, 0, 1, 2), a},
		{6, image.Rect(0, 0, 1, 2), a},
		{7, image.Rect(0, 0, 1, 2), b},
		{8, image.Rect(0, 0, 1, 2), b},
	}
	for _, tt := range tests {
		got := Orient(src, tt.o)
		assert.Equal(t, tt.bounds, got.Bounds(), "orientation %d", tt.o)
		assert.Equal(t, tt.first, color.NRGBAModel.Convert(got.At(0, 0)), "orientation %d", tt.o)
		assert.Equal(t, Size{tt.bounds.Dx(), tt.bounds.Dy()}, OrientedSize(Size{2, 1}, tt.o))
	}
	assert.Same(t, src, Orient(src, 0).(*image.NRGBA))
}

func TestFromImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(10, 10, 26, 22))
	for y := 10; y < 22; y++ {
		for x := 10; x < 26; x++ {
			src.Set(x, y, color.NRGBA{200, 100, 50, 255})
		}
	}
	p := FromImage(src)
	assert.Equal(t, Size{16, 12}, p.Size())
	assert.Equal(t, RGB8, p.Colorspace)
	px, err := p.Get(0, 0, 1, 1, RGB8)
	require.NoError(t, err)
	assert.Equal(t, []byte{200, 100, 50}, px)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, p, EncodeOptions{Quality: Quality(90)}))
	back, err := jpeg.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 12), back.Bounds())

	gray := image.NewGray(image.Rect(0, 0, 8, 4))
	gray.Pix[gray.PixOffset(3, 2)] = 0x80
	g := FromImage(gray.SubImage(image.Rect(2, 1, 6, 4)))
	assert.Equal(t, Gray8, g.Colorspace)
	assert.Equal(t, Size{4, 3}, g.Size())
	px, err = g.Get(1, 1, 1, 1, Gray8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80}, px)
}
