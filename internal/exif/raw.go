package exif

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gobbledegook/creevey/internal/jpegfile"
)

// ErrNoPreview is returned by ReadRaw when a camera RAW file carries no
// JPEG preview the scaled decoder can read, including when its structure
// cannot be walked at all.
var ErrNoPreview = errors.New("exif: no JPEG preview in raw file")

const (
	tagStripOffsets     = 0x0111
	tagStripByteCounts  = 0x0117
	tagDateTime         = 0x0132
	tagSubIFDs          = 0x014a
	tagExifIFD          = 0x8769
	tagDateTimeOriginal = 0x9003
	tagPixelXDimension  = 0xa002
	tagPixelYDimension  = 0xa003

	typeASCII = 2
	typeIFD   = 13

	compressionNewJPEG = 7
)

// Olympus ORF uses "IIRO" and "IIRS", Panasonic RW2 "IIU\0".
var rawMagics = []int{tiffMagic, 0x4f52, 0x5352, 0x0055}

// Fujifilm RAF is not TIFF based; the header points straight at the preview.
const rafMagic = "FUJIFILMCCD-RAW "

const (
	maxIFDs     = 64
	maxIFDDepth = 4
	maxSubIFDs  = 16
)

const dateLayout = "2006:01:02 15:04:05"

// Raw describes the embedded preview of a camera RAW file.
type Raw struct {
	// Preview is the largest embedded JPEG with a baseline or progressive
	// frame. It aliases the data passed to ReadRaw.
	Preview                     []byte
	PreviewWidth, PreviewHeight int

	// Width and Height are the largest image size recorded in the file,
	// usually the sensor size. They fall back to the preview size.
	Width, Height int

	// Orientation is 0 when unknown, otherwise 1..8.
	Orientation int
	// Date is when the picture was taken, or zero.
	Date        time.Time
}

// ReadRaw finds the JPEG preview, orientation and capture date of a
// TIFF-based camera RAW file (CR2, NEF, ARW, DNG, PEF, ORF, RW2 and
// relatives) or a Fujifilm RAF file.
func ReadRaw(data []byte) (*Raw, error) {
	if bytes.HasPrefix(data, []byte(rafMagic)) {
		return readRAF(data)
	}

	t, err := parseBody(data, rawMagics...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPreview, err)
	}
	i0, err := t.ifd0()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPreview, err)
	}

	w := &rawWalk{t: t, seen: make(map[int]bool), raw: &Raw{}}
	w.chain(i0, 0)
	if w.raw.Preview == nil {
		return nil, ErrNoPreview
	}

	r := w.raw
	if v, ok := t.orientation(i0); ok {
		r.Orientation = v
	}
	r.Date, _ = t.date(i0)
	if r.Width == 0 || r.Height == 0 {
		r.Width, r.Height = r.PreviewWidth, r.PreviewHeight
	}
	return r, nil
}

func readRAF(data []byte) (*Raw, error) {
	if len(data) < 92 {
		return nil, fmt.Errorf("%w: short RAF header", ErrNoPreview)
	}
	off := int(binary.BigEndian.Uint32(data[84:]))
	n := int(binary.BigEndian.Uint32(data[88:]))
	hdr, ok := previewAt(data, off, n)
	if !ok {
		return nil, ErrNoPreview
	}

	r := &Raw{
		Preview:       data[off : off+n : off+n],
		PreviewWidth:  hdr.Width,
		PreviewHeight: hdr.Height,
		Width:         hdr.Width,
		Height:        hdr.Height,
	}
	if app1, ok := FromJPEG(hdr.Segments); ok {
		r.Orientation = Orientation(app1)
		r.Date, _ = Date(app1)
	}
	return r, nil
}

// previewAt parses the header of the JPEG stream at data[off:off+n].
// Lossless and arithmetic-coded frames are refused by the parser, which
// rules out the raw sensor data some formats also store as JPEG.
func previewAt(data []byte, off, n int) (*jpegfile.File, bool) {
	if off < 0 || n < 4 || off > len(data)-n {
		return nil, false
	}
	b := data[off : off+n]
	if b[0] != 0xff || b[1] != 0xd8 {
		return nil, false
	}
	hdr, err := jpegfile.ParseHeader(b)
	if err != nil {
		return nil, false
	}
	return hdr, true
}

// rawWalk visits every IFD reachable from IFD0 through next pointers,
// SubIFDs and the Exif IFD, keeping the largest usable preview.
type rawWalk struct {
	t    *tiff
	seen map[int]bool
	raw  *Raw
}

func (w *rawWalk) chain(off, depth int) {
	for off >= 8 && !w.seen[off] && len(w.seen) < maxIFDs {
		w.seen[off] = true
		ptr, err := w.t.nextPointer(off)
		if err != nil {
			return
		}
		w.visit(off, depth)
		next, ok := w.t.u32(ptr)
		if !ok {
			return
		}
		off = next
	}
}

func (w *rawWalk) visit(off, depth int) {
	t := w.t
	if wd, ok := t.tagValue(off, tagImageWidth); ok {
		if h, ok := t.tagValue(off, tagImageLength); ok {
			w.size(wd, h)
		}
	}

	if o, ok := t.tagValue(off, tagThumbOffset); ok {
		if n, ok := t.tagValue(off, tagThumbLength); ok {
			w.candidate(o, n)
		}
	}
	if c, ok := t.tagValue(off, tagCompression); ok && (c == compressionJPEG || c == compressionNewJPEG) {
		strips := t.longs(off, tagStripOffsets)
		counts := t.longs(off, tagStripByteCounts)
		if len(strips) == 1 && len(counts) == 1 {
			w.candidate(strips[0], counts[0])
		}
	}

	if depth >= maxIFDDepth {
		return
	}
	for _, sub := range t.longs(off, tagSubIFDs) {
		w.chain(sub, depth+1)
	}
	if x, ok := t.tagValue(off, tagExifIFD); ok && !w.seen[x] {
		w.seen[x] = true
		if wd, ok := t.tagValue(x, tagPixelXDimension); ok {
			if h, ok := t.tagValue(x, tagPixelYDimension); ok {
				w.size(wd, h)
			}
		}
	}
}

func (w *rawWalk) size(width, height int) {
	if width*height > w.raw.Width*w.raw.Height {
		w.raw.Width, w.raw.Height = width, height
	}
}

func (w *rawWalk) candidate(off, n int) {
	hdr, ok := previewAt(w.t.b, off, n)
	if !ok {
		return
	}
	r := w.raw
	if hdr.Width*hdr.Height <= r.PreviewWidth*r.PreviewHeight {
		return
	}
	r.Preview = w.t.b[off : off+n : off+n]
	r.PreviewWidth, r.PreviewHeight = hdr.Width, hdr.Height
}

// tagValue reads the first SHORT or LONG value of tag in the IFD at off.
func (t *tiff) tagValue(off, tag int) (int, bool) {
	e, ok := t.find(off, tag)
	if !ok {
		return 0, false
	}
	return t.value(e)
}

// longs reads up to maxSubIFDs LONG or IFD values of tag.
func (t *tiff) longs(off, tag int) []int {
	e, ok := t.find(off, tag)
	if !ok {
		return nil
	}
	typ, _ := t.u16(e + 2)
	if typ == typeShort {
		if v, ok := t.value(e); ok {
			return []int{v}
		}
		return nil
	}
	if typ != typeLong && typ != typeIFD {
		return nil
	}
	n, ok := t.u32(e + 4)
	if !ok || n == 0 {
		return nil
	}
	n = min(n, maxSubIFDs)
	at := e + 8
	if n > 1 {
		if at, ok = t.u32(e + 8); !ok {
			return nil
		}
	}
	var out []int
	for i := 0; i < n; i++ {
		v, ok := t.u32(at + 4*i)
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// ascii reads an ASCII tag without its NUL terminator.
func (t *tiff) ascii(off, tag int) (string, bool) {
	e, ok := t.find(off, tag)
	if !ok {
		return "", false
	}
	if typ, _ := t.u16(e + 2); typ != typeASCII {
		return "", false
	}
	n, ok := t.u32(e + 4)
	if !ok || n == 0 {
		return "", false
	}
	at := e + 8
	if n > 4 {
		if at, ok = t.u32(e + 8); !ok {
			return "", false
		}
	}
	if at+n > len(t.b) {
		return "", false
	}
	return strings.TrimRight(string(t.b[at:at+n]), "\x00 "), true
}

func (t *tiff) orientation(i0 int) (int, bool) {
	v, ok := t.tagValue(i0, tagOrientation)
	if !ok || v < 1 || v > 8 {
		return 0, false
	}
	return v, true
}

// date prefers DateTimeOriginal from the Exif IFD over DateTime in IFD0.
// EXIF dates carry no zone and are read as local time.
func (t *tiff) date(i0 int) (time.Time, bool) {
	var candidates []string
	if x, ok := t.tagValue(i0, tagExifIFD); ok {
		if s, ok := t.ascii(x, tagDateTimeOriginal); ok {
			candidates = append(candidates, s)
		}
	}
	if s, ok := t.ascii(i0, tagDateTime); ok {
		candidates = append(candidates, s)
	}
	for _, s := range candidates {
		if d, err := time.ParseInLocation(dateLayout, s, time.Local); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// Date returns when the picture was taken, from an APP1 payload.
func Date(raw []byte) (time.Time, bool) {
	t, err := parse(raw)
	if err != nil {
		return time.Time{}, false
	}
	i0, err := t.ifd0()
	if err != nil {
		return time.Time{}, false
	}
	return t.date(i0)
}
