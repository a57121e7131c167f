package exif

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobbledegook/creevey/internal/jpegfile"
)

type blobOptions struct {
	order       binary.ByteOrder
	orientation int
	thumb       []byte
	compression int
}

// buildExif assembles a minimal APP1 payload: IFD0 with an optional
// orientation tag, and an optional IFD1 pointing at a thumbnail stored at
// the end of the blob.
func buildExif(o blobOptions) []byte {
	order := o.order
	if order == nil {
		order = binary.LittleEndian
	}
	if o.compression == 0 {
		o.compression = 6
	}

	body := make([]byte, 8)
	if order == binary.ByteOrder(binary.LittleEndian) {
		copy(body, "II")
	} else {
		copy(body, "MM")
	}
	order.PutUint16(body[2:], 42)
	order.PutUint32(body[4:], 8)

	entry := func(tag, typ, val int) []byte {
		e := make([]byte, 12)
		order.PutUint16(e, uint16(tag))
		order.PutUint16(e[2:], uint16(typ))
		order.PutUint32(e[4:], 1)
		if typ == 3 {
			order.PutUint16(e[8:], uint16(val))
		} else {
			order.PutUint32(e[8:], uint32(val))
		}
		return e
	}

	var ifd0 [][]byte
	if o.orientation != 0 {
		ifd0 = append(ifd0, entry(0x0112, 3, o.orientation))
	}
	ifd1Off := 8 + 2 + 12*len(ifd0) + 4

	body = append(body, 0, 0)
	order.PutUint16(body[len(body)-2:], uint16(len(ifd0)))
	for _, e := range ifd0 {
		body = append(body, e...)
	}
	next := make([]byte, 4)
	if o.thumb != nil {
		order.PutUint32(next, uint32(ifd1Off))
	}
	body = append(body, next...)

	if o.thumb != nil {
		dataOff := ifd1Off + 2 + 3*12 + 4
		cnt := make([]byte, 2)
		order.PutUint16(cnt, 3)
		body = append(body, cnt...)
		body = append(body, entry(0x0103, 3, o.compression)...)
		body = append(body, entry(0x0201, 4, dataOff)...)
		body = append(body, entry(0x0202, 4, len(o.thumb))...)
		body = append(body, 0, 0, 0, 0)
		body = append(body, o.thumb...)
	}
	return append([]byte(Header), body...)
}

func smallJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func TestOrientation(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want int
	}{
		{"little endian", buildExif(blobOptions{orientation: 6}), 6},
		{"big endian", buildExif(blobOptions{order: binary.BigEndian, orientation: 8}), 8},
		{"absent", buildExif(blobOptions{}), 0},
		{"out of range", buildExif(blobOptions{orientation: 9}), 0},
		{"no header", []byte("II*\x00\x08\x00\x00\x00"), 0},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Orientation(tt.raw))
		})
	}
}

func TestMalformedInputNeverPanics(t *testing.T) {
	raw := buildExif(blobOptions{orientation: 3, thumb: smallJPEG(t, 8, 8)})
	for n := 0; n <= len(raw); n++ {
		b := append([]byte(nil), raw[:n]...)
		assert.NotPanics(t, func() {
			Orientation(b)
			Thumbnail(b)
			ThumbnailBytes(b)
			ResetOrientation(b)
			DeleteThumbnail(b)
			Describe(b)
		})
	}

	garbage := append([]byte(Header), bytes.Repeat([]byte{0xff}, 64)...)
	copy(garbage[6:], "MM\x00\x2a")
	assert.Equal(t, 0, Orientation(garbage))
	_, _, ok := Thumbnail(garbage)
	assert.False(t, ok)
}

func TestThumbnailBytes(t *testing.T) {
	thumb := smallJPEG(t, 16, 12)
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		raw := buildExif(blobOptions{order: order, orientation: 1, thumb: thumb})

		got, ok := ThumbnailBytes(raw)
		require.True(t, ok)
		assert.Equal(t, thumb, got)

		off, n, ok := Thumbnail(raw)
		require.True(t, ok)
		assert.Equal(t, len(thumb), n)
		assert.Equal(t, thumb, raw[headerLen+off:headerLen+off+n])
	}
}

func TestThumbnailRejected(t *testing.T) {
	thumb := smallJPEG(t, 8, 8)

	_, ok := ThumbnailBytes(buildExif(blobOptions{thumb: thumb, compression: 1}))
	assert.False(t, ok, "uncompressed thumbnails are not JPEG")

	raw := buildExif(blobOptions{thumb: thumb})
	_, ok = ThumbnailBytes(raw[:len(raw)-1])
	assert.False(t, ok, "thumbnail running past the end")

	_, ok = ThumbnailBytes(buildExif(blobOptions{orientation: 1}))
	assert.False(t, ok)
}

func TestResetOrientation(t *testing.T) {
	raw := buildExif(blobOptions{orientation: 6, thumb: smallJPEG(t, 8, 8)})
	before := append([]byte(nil), raw...)

	require.True(t, ResetOrientation(raw))
	assert.Equal(t, 1, Orientation(raw))
	assert.Len(t, raw, len(before))

	diff := 0
	for i := range raw {
		if raw[i] != before[i] {
			diff++
		}
	}
	assert.Equal(t, 1, diff, "only the low byte of the value changes")

	assert.False(t, ResetOrientation(buildExif(blobOptions{})))
	assert.False(t, SetOrientation(raw, 0))
	assert.True(t, SetOrientation(raw, 5))
	assert.Equal(t, 5, Orientation(raw))
}

func TestDeleteThumbnail(t *testing.T) {
	thumb := smallJPEG(t, 8, 8)
	raw := buildExif(blobOptions{orientation: 3, thumb: thumb})

	out := DeleteThumbnail(raw)
	_, ok := ThumbnailBytes(out)
	assert.False(t, ok)
	assert.Equal(t, len(raw)-len(thumb), len(out))
	assert.Equal(t, 3, Orientation(out))

	// The input is left alone.
	_, ok = ThumbnailBytes(raw)
	assert.True(t, ok)
}

func TestReplaceThumbnail(t *testing.T) {
	old := smallJPEG(t, 8, 8)
	replacement := smallJPEG(t, 32, 24)

	for _, raw := range [][]byte{
		buildExif(blobOptions{orientation: 6, thumb: old}),
		buildExif(blobOptions{order: binary.BigEndian, orientation: 6}),
	} {
		out, err := ReplaceThumbnail(raw, replacement, 32, 24)
		require.NoError(t, err)

		got, ok := ThumbnailBytes(out)
		require.True(t, ok)
		assert.Equal(t, replacement, got)
		assert.Equal(t, 6, Orientation(out))

		var length string
		for _, f := range Describe(out) {
			if f.Name == "ThumbJPEGInterchangeFormatLength" {
				length = f.Value
			}
		}
		assert.NotEmpty(t, length)
	}

	_, err := ReplaceThumbnail(buildExif(blobOptions{}), []byte("not a jpeg"), 0, 0)
	assert.ErrorIs(t, err, jpegfile.ErrNotJPEG)

	_, err = ReplaceThumbnail(buildExif(blobOptions{}), append([]byte{0xff, 0xd8}, make([]byte, 70000)...), 0, 0)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	fields := Describe(buildExif(blobOptions{orientation: 6}))
	require.NotEmpty(t, fields)
	assert.Contains(t, fields, Field{Name: "Orientation", Value: "6"})

	assert.Empty(t, Describe([]byte("nonsense")))
}

func TestFromJPEG(t *testing.T) {
	raw := buildExif(blobOptions{orientation: 2})
	segs := []jpegfile.Segment{
		{Marker: jpegfile.MarkerCOM, Data: []byte("hi")},
		{Marker: jpegfile.MarkerAPP1, Data: []byte("http://ns.adobe.com/xap/1.0/\x00")},
		{Marker: jpegfile.MarkerAPP1, Data: raw},
	}
	got, ok := FromJPEG(segs)
	require.True(t, ok)
	assert.Equal(t, 2, Orientation(got))

	_, ok = FromJPEG(segs[:2])
	assert.False(t, ok)
}

func TestNewAcceptsThumbnail(t *testing.T) {
	raw := New()
	assert.Equal(t, 0, Orientation(raw))
	_, ok := ThumbnailBytes(raw)
	assert.False(t, ok)

	thumb := smallJPEG(t, 8, 8)
	out, err := ReplaceThumbnail(raw, thumb, 8, 8)
	require.NoError(t, err)
	got, ok := ThumbnailBytes(out)
	require.True(t, ok)
	assert.Equal(t, thumb, got)
}
