package exif

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rawEntry struct {
	tag, typ int
	vals     []int
	str      string
}

func shortTag(tag int, v ...int) rawEntry { return rawEntry{tag: tag, typ: typeShort, vals: v} }
func longTag(tag int, v ...int) rawEntry { return rawEntry{tag: tag, typ: typeLong, vals: v} }
func asciiTag(tag int, s string) rawEntry { return rawEntry{tag: tag, typ: typeASCII, str: s} }

// tiffBuilder lays out a TIFF file bottom-up: blobs and child IFDs first,
// so every offset is known when the IFD pointing at it is written.
type tiffBuilder struct {
	order binary.ByteOrder
	b     []byte
}

func newTIFFBuilder(order binary.ByteOrder, magic int) *tiffBuilder {
	b := make([]byte, 8)
	if order == binary.ByteOrder(binary.LittleEndian) {
		copy(b, "II")
	} else {
		copy(b, "MM")
	}
	order.PutUint16(b[2:], uint16(magic))
	return &tiffBuilder{order: order, b: b}
}

func (tb *tiffBuilder) blob(data []byte) int {
	if len(tb.b)%2 == 1 {
		tb.b = append(tb.b, 0)
	}
	off := len(tb.b)
	tb.b = append(tb.b, data...)
	return off
}

func (tb *tiffBuilder) ifd(next int, entries ...rawEntry) int {
	payloads := make([][]byte, len(entries))
	offsets := make([]int, len(entries))
	for i, e := range entries {
		var p []byte
		switch e.typ {
		case typeASCII:
			p = append([]byte(e.str), 0)
		case typeShort:
			p = make([]byte, 2*len(e.vals))
			for j, v := range e.vals {
				tb.order.PutUint16(p[2*j:], uint16(v))
			}
		default:
			p = make([]byte, 4*len(e.vals))
			for j, v := range e.vals {
				tb.order.PutUint32(p[4*j:], uint32(v))
			}
		}
		payloads[i] = p
		if len(p) > 4 {
			offsets[i] = tb.blob(p)
		}
	}

	d := make([]byte, 2+entrySize*len(entries)+4)
	tb.order.PutUint16(d, uint16(len(entries)))
	for i, e := range entries {
		x := d[2+entrySize*i:]
		tb.order.PutUint16(x, uint16(e.tag))
		tb.order.PutUint16(x[2:], uint16(e.typ))
		count := len(e.vals)
		if e.typ == typeASCII {
			count = len(payloads[i])
		}
		tb.order.PutUint32(x[4:], uint32(count))
		if len(payloads[i]) > 4 {
			tb.order.PutUint32(x[8:], uint32(offsets[i]))
		} else {
			copy(x[8:12], payloads[i])
		}
	}
	tb.order.PutUint32(d[len(d)-4:], uint32(next))
	return tb.blob(d)
}

func (tb *tiffBuilder) finish(ifd0 int) []byte {
	tb.order.PutUint32(tb.b[4:], uint32(ifd0))
	return tb.b
}

// losslessJPEG is the header of a lossless (SOF3) frame, the way some
// cameras store the sensor data.
var losslessJPEG = []byte{
	0xff, 0xd8,
	0xff, 0xc3, 0x00, 0x0b, 8, 0x00, 0x10, 0x00, 0x10, 1, 1, 0x11, 0,
	0xff, 0xd9,
}

// buildRaw lays out a file the way CR2 and NEF do: a small strip preview in
// IFD0, a medium one in IFD1, and the sensor data plus a large preview in
// SubIFDs. It returns the file and the large preview.
func buildRaw(t *testing.T, order binary.ByteOrder) ([]byte, []byte) {
	t.Helper()
	small, medium, big := smallJPEG(t, 32, 24), smallJPEG(t, 64, 48), smallJPEG(t, 160, 120)

	tb := newTIFFBuilder(order, tiffMagic)
	smallOff := tb.blob(small)
	mediumOff := tb.blob(medium)
	bigOff := tb.blob(big)
	sensorOff := tb.blob(losslessJPEG)

	exifIFD := tb.ifd(0,
		longTag(tagPixelXDimension, 6000),
		longTag(tagPixelYDimension, 4000),
		asciiTag(tagDateTimeOriginal, "2024:05:17 09:30:00"),
	)
	sensor := tb.ifd(0,
		shortTag(tagCompression, compressionNewJPEG),
		longTag(tagImageWidth, 6016),
		longTag(tagImageLength, 4016),
		longTag(tagStripOffsets, sensorOff),
		longTag(tagStripByteCounts, len(losslessJPEG)),
	)
	preview := tb.ifd(0,
		longTag(tagThumbOffset, bigOff),
		longTag(tagThumbLength, len(big)),
	)
	ifd1 := tb.ifd(0,
		shortTag(tagCompression, compressionJPEG),
		longTag(tagThumbOffset, mediumOff),
		longTag(tagThumbLength, len(medium)),
	)
	ifd0 := tb.ifd(ifd1,
		longTag(tagImageWidth, 32),
		longTag(tagImageLength, 24),
		shortTag(tagCompression, compressionJPEG),
		longTag(tagStripOffsets, smallOff),
		asciiTag(tagDateTime, "2020:01:01 00:00:00"),
		shortTag(tagOrientation, 6),
		longTag(tagStripByteCounts, len(small)),
		longTag(tagSubIFDs, sensor, preview),
		longTag(tagExifIFD, exifIFD),
	)
	return tb.finish(ifd0), big
}

func TestReadRaw(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			data, big := buildRaw(t, order)

			r, err := ReadRaw(data)
			require.NoError(t, err)
			assert.Equal(t, big, r.Preview, "the largest decodable preview wins")
			assert.Equal(t, 160, r.PreviewWidth)
			assert.Equal(t, 120, r.PreviewHeight)
			assert.Equal(t, 6016, r.Width)
			assert.Equal(t, 4016, r.Height)
			assert.Equal(t, 6, r.Orientation)
			assert.True(t, r.Date.Equal(time.Date(2024, 5, 17, 9, 30, 0, 0, time.Local)), "date = %v", r.Date)
		})
	}
}

func TestReadRawFallbacks(t *testing.T) {
	small := smallJPEG(t, 32, 24)
	tb := newTIFFBuilder(binary.BigEndian, 0x4f52)
	off := tb.blob(small)
	ifd0 := tb.ifd(0,
		shortTag(tagCompression, compressionNewJPEG),
		longTag(tagStripOffsets, off),
		longTag(tagStripByteCounts, len(small)),
	)

	r, err := ReadRaw(tb.finish(ifd0))
	require.NoError(t, err)
	assert.Equal(t, small, r.Preview)
	assert.Equal(t, 32, r.Width, "size falls back to the preview")
	assert.Equal(t, 24, r.Height)
	assert.Equal(t, 0, r.Orientation)
	assert.True(t, r.Date.IsZero())
}

func TestReadRawFuji(t *testing.T) {
	small := smallJPEG(t, 40, 30)
	app1 := buildExif(blobOptions{orientation: 8})
	preview := []byte{0xff, 0xd8, 0xff, 0xe1, 0, 0}
	binary.BigEndian.PutUint16(preview[4:], uint16(len(app1)+2))
	preview = append(preview, app1...)
	preview = append(preview, small[2:]...)

	data := make([]byte, 100)
	copy(data, rafMagic)
	binary.BigEndian.PutUint32(data[84:], uint32(len(data)))
	binary.BigEndian.PutUint32(data[88:], uint32(len(preview)))
	data = append(data, preview...)

	r, err := ReadRaw(data)
	require.NoError(t, err)
	assert.Equal(t, preview, r.Preview)
	assert.Equal(t, 40, r.Width)
	assert.Equal(t, 30, r.Height)
	assert.Equal(t, 8, r.Orientation)
}

func TestReadRawErrors(t *testing.T) {
	_, err := ReadRaw([]byte("not a raw file at all"))
	assert.ErrorIs(t, err, ErrNoPreview)
	assert.NotErrorIs(t, err, ErrMetadataMalformed)

	tb := newTIFFBuilder(binary.LittleEndian, tiffMagic)
	off := tb.blob(losslessJPEG)
	ifd0 := tb.ifd(0,
		shortTag(tagCompression, compressionNewJPEG),
		longTag(tagStripOffsets, off),
		longTag(tagStripByteCounts, len(losslessJPEG)),
	)
	_, err = ReadRaw(tb.finish(ifd0))
	assert.ErrorIs(t, err, ErrNoPreview, "lossless sensor data is not a preview")

	raf := append([]byte(rafMagic), make([]byte, 80)...)
	binary.BigEndian.PutUint32(raf[84:], 1<<30)
	binary.BigEndian.PutUint32(raf[88:], 16)
	_, err = ReadRaw(raf)
	assert.ErrorIs(t, err, ErrNoPreview)
}

func TestReadRawTruncatedNeverPanics(t *testing.T) {
	data, _ := buildRaw(t, binary.LittleEndian)
	for n := 0; n <= len(data); n += 7 {
		b := append([]byte(nil), data[:n]...)
		assert.NotPanics(t, func() {
			_, _ = ReadRaw(b)
		})
	}
}

func TestDate(t *testing.T) {
	data, _ := buildRaw(t, binary.LittleEndian)
	d, ok := Date(append([]byte(Header), data...))
	require.True(t, ok)
	assert.True(t, d.Equal(time.Date(2024, 5, 17, 9, 30, 0, 0, time.Local)))

	_, ok = Date(buildExif(blobOptions{orientation: 1}))
	assert.False(t, ok)
}
