// Package exif reads and patches the parts of an EXIF APP1 payload that the
// thumbnail cache and the lossless transform care about: the orientation
// tag and the JPEG thumbnail stored in IFD1.
//
// Every function takes the raw APP1 payload, which is the 6-byte
// "Exif\x00\x00" header followed by a TIFF body. Offsets inside the TIFF body
// are relative to its first byte. Malformed input never panics; readers
// report "no value" instead.
package exif

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/gobbledegook/creevey/internal/jpegfile"
)

// Header is the prefix of an EXIF APP1 payload.
const Header = "Exif\x00\x00"

const headerLen = len(Header)

// ErrMetadataMalformed is returned when the TIFF structure cannot be walked.
// The exported readers absorb it into "no value".
var ErrMetadataMalformed = errors.New("exif: malformed metadata")

// TIFF tags used by this package.
const (
	tagImageWidth   = 0x0100
	tagImageLength  = 0x0101
	tagCompression  = 0x0103
	tagOrientation  = 0x0112
	tagThumbOffset  = 0x0201
	tagThumbLength  = 0x0202
	compressionJPEG = 6
)

// TIFF field types.
const (
	typeShort = 3
	typeLong  = 4
)

const entrySize = 12

// tiff is a bounds-checked view of a TIFF body.
type tiff struct {
	b     []byte
	order binary.ByteOrder
}

func parse(raw []byte) (*tiff, error) {
	if len(raw) < headerLen+8 || string(raw[:headerLen]) != Header {
		return nil, fmt.Errorf("%w: missing header", ErrMetadataMalformed)
	}
	return parseBody(raw[headerLen:], tiffMagic)
}

const tiffMagic = 42

// parseBody reads the byte order and magic of a TIFF body. Any of magics is
// accepted; camera RAW formats use their own.
func parseBody(b []byte, magics ...int) (*tiff, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("%w: short TIFF header", ErrMetadataMalformed)
	}
	t := &tiff{b: b}
	switch string(t.b[:2]) {
	case "II":
		t.order = binary.LittleEndian
	case "MM":
		t.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte order", ErrMetadataMalformed)
	}
	if !slices.Contains(magics, int(t.order.Uint16(t.b[2:]))) {
		return nil, fmt.Errorf("%w: bad magic", ErrMetadataMalformed)
	}
	return t, nil
}

func (t *tiff) u16(off int) (int, bool) {
	if off < 0 || off+2 > len(t.b) {
		return 0, false
	}
	return int(t.order.Uint16(t.b[off:])), true
}

func (t *tiff) u32(off int) (int, bool) {
	if off < 0 || off+4 > len(t.b) {
		return 0, false
	}
	v := t.order.Uint32(t.b[off:])
	if uint64(v) > uint64(len(t.b)) {
		// Offsets and lengths beyond the body are never usable.
		return 0, false
	}
	return int(v), true
}

// ifd0 returns the offset of the first IFD.
func (t *tiff) ifd0() (int, error) {
	off, ok := t.u32(4)
	if !ok || off < 8 {
		return 0, fmt.Errorf("%w: bad IFD0 offset", ErrMetadataMalformed)
	}
	return off, nil
}

// entries returns the entry count of the IFD at off, after checking that
// the whole directory and its next-IFD pointer are in bounds.
func (t *tiff) entries(off int) (int, error) {
	n, ok := t.u16(off)
	if !ok || off+2+n*entrySize+4 > len(t.b) {
		return 0, fmt.Errorf("%w: IFD at %d out of bounds", ErrMetadataMalformed, off)
	}
	return n, nil
}

// nextPointer returns the offset of the pointer to the IFD following the one at off.
func (t *tiff) nextPointer(off int) (int, error) {
	n, err := t.entries(off)
	if err != nil {
		return 0, err
	}
	return off + 2 + n*entrySize, nil
}

// find returns the offset of the entry with the given tag in the IFD at off.
func (t *tiff) find(off, tag int) (int, bool) {
	n, err := t.entries(off)
	if err != nil {
		return 0, false
	}
	for i := 0; i < n; i++ {
		e := off + 2 + i*entrySize
		if got, _ := t.u16(e); got == tag {
			return e, true
		}
	}
	return 0, false
}

// value reads the first value of a SHORT or LONG entry.
func (t *tiff) value(e int) (int, bool) {
	typ, _ := t.u16(e + 2)
	switch typ {
	case typeShort:
		return t.u16(e + 8)
	case typeLong:
		return t.u32(e + 8)
	}
	return 0, false
}

// ifd1 returns the offset of IFD1, or false when the image has none.
func (t *tiff) ifd1() (ptr, off int, ok bool) {
	i0, err := t.ifd0()
	if err != nil {
		return 0, 0, false
	}
	ptr, err = t.nextPointer(i0)
	if err != nil {
		return 0, 0, false
	}
	off, ok = t.u32(ptr)
	if !ok || off < 8 {
		return ptr, 0, false
	}
	if _, err := t.entries(off); err != nil {
		return ptr, 0, false
	}
	return ptr, off, true
}

// Orientation returns the EXIF orientation (1..8) from IFD0, or 0 when the
// tag is absent or holds an invalid value.
func Orientation(raw []byte) int {
	t, err := parse(raw)
	if err != nil {
		return 0
	}
	e, ok := t.orientationEntry()
	if !ok {
		return 0
	}
	v, ok := t.u16(e + 8)
	if !ok || v < 1 || v > 8 {
		return 0
	}
	return v
}

func (t *tiff) orientationEntry() (int, bool) {
	i0, err := t.ifd0()
	if err != nil {
		return 0, false
	}
	e, ok := t.find(i0, tagOrientation)
	if !ok {
		return 0, false
	}
	if typ, _ := t.u16(e + 2); typ != typeShort {
		return 0, false
	}
	return e, true
}

// SetOrientation patches the orientation tag to v in place. It reports
// false when the tag is missing or v is not a valid orientation; the blob
// is never resized.
func SetOrientation(raw []byte, v int) bool {
	if v < 1 || v > 8 {
		return false
	}
	t, err := parse(raw)
	if err != nil {
		return false
	}
	e, ok := t.orientationEntry()
	if !ok {
		return false
	}
	t.order.PutUint16(t.b[e+8:], uint16(v))
	return true
}

// ResetOrientation patches the orientation tag to 1 (normal) in place.
func ResetOrientation(raw []byte) bool {
	return SetOrientation(raw, 1)
}

// Thumbnail locates the JPEG thumbnail described by IFD1. off is relative to
// the TIFF body, so the thumbnail occupies raw[6+off : 6+off+n].
func Thumbnail(raw []byte) (off, n int, ok bool) {
	t, err := parse(raw)
	if err != nil {
		return 0, 0, false
	}
	return t.thumbnail()
}

func (t *tiff) thumbnail() (off, n int, ok bool) {
	_, i1, ok := t.ifd1()
	if !ok {
		return 0, 0, false
	}
	if e, found := t.find(i1, tagCompression); found {
		if c, _ := t.value(e); c != compressionJPEG {
			return 0, 0, false
		}
	}
	e, found := t.find(i1, tagThumbOffset)
	if !found {
		return 0, 0, false
	}
	if off, ok = t.value(e); !ok {
		return 0, 0, false
	}
	e, found = t.find(i1, tagThumbLength)
	if !found {
		return 0, 0, false
	}
	if n, ok = t.value(e); !ok || n == 0 {
		return 0, 0, false
	}
	if off+n > len(t.b) {
		return 0, 0, false
	}
	return off, n, true
}

// ThumbnailBytes returns the embedded thumbnail. The result aliases raw.
func ThumbnailBytes(raw []byte) ([]byte, bool) {
	off, n, ok := Thumbnail(raw)
	if !ok {
		return nil, false
	}
	start := headerLen + off
	return raw[start : start+n : start+n], true
}

// DeleteThumbnail returns a copy of raw with the IFD1 link cleared. When the
// thumbnail data is the tail of the blob it is cut off as well.
func DeleteThumbnail(raw []byte) []byte {
	out := append([]byte(nil), raw...)
	t, err := parse(out)
	if err != nil {
		return out
	}
	ptr, _, ok := t.ifd1()
	if !ok {
		return out
	}
	off, n, hasThumb := t.thumbnail()
	t.order.PutUint32(t.b[ptr:], 0)
	if hasThumb && off+n == len(t.b) {
		out = out[:headerLen+off]
	}
	return out
}

// maxPayload is the largest payload an APP1 segment can carry.
const maxPayload = 65533

// ReplaceThumbnail returns a copy of raw whose IFD1 describes thumb, which
// must be a JPEG stream. Any previous thumbnail link is dropped and a fresh
// IFD1 followed by the thumbnail data is appended. The image width and
// height tags are written when both are positive.
func ReplaceThumbnail(raw, thumb []byte, w, h int) ([]byte, error) {
	if len(thumb) < 2 || thumb[0] != 0xff || thumb[1] != 0xd8 {
		return nil, jpegfile.ErrNotJPEG
	}
	out := DeleteThumbnail(raw)
	t, err := parse(out)
	if err != nil {
		return nil, err
	}
	i0, err := t.ifd0()
	if err != nil {
		return nil, err
	}
	ptr, err := t.nextPointer(i0)
	if err != nil {
		return nil, err
	}

	if len(out)%2 == 1 {
		out = append(out, 0)
	}
	type entry struct{ tag, typ, val int }
	entries := []entry{}
	if w > 0 && h > 0 {
		entries = append(entries,
			entry{tagImageWidth, typeLong, w},
			entry{tagImageLength, typeLong, h},
		)
	}
	entries = append(entries, entry{tagCompression, typeShort, compressionJPEG})

	ifdOff := len(out) - headerLen
	ifdLen := 2 + (len(entries)+2)*entrySize + 4
	dataOff := ifdOff + ifdLen
	entries = append(entries,
		entry{tagThumbOffset, typeLong, dataOff},
		entry{tagThumbLength, typeLong, len(thumb)},
	)
	if headerLen+dataOff+len(thumb) > maxPayload {
		return nil, fmt.Errorf("exif: thumbnail of %d bytes does not fit in APP1", len(thumb))
	}

	ifd := make([]byte, ifdLen)
	order := t.order
	order.PutUint16(ifd, uint16(len(entries)))
	for i, e := range entries {
		b := ifd[2+i*entrySize:]
		order.PutUint16(b, uint16(e.tag))
		order.PutUint16(b[2:], uint16(e.typ))
		order.PutUint32(b[4:], 1)
		if e.typ == typeShort {
			order.PutUint16(b[8:], uint16(e.val))
		} else {
			order.PutUint32(b[8:], uint32(e.val))
		}
	}

	out = append(out, ifd...)
	out = append(out, thumb...)
	order.PutUint32(out[headerLen+ptr:], uint32(ifdOff))
	return out, nil
}

// New returns a little-endian EXIF payload with an empty IFD0, for files
// that gain a thumbnail but carry no EXIF data yet.
func New() []byte {
	return []byte(Header + "II*\x00\x08\x00\x00\x00" + "\x00\x00" + "\x00\x00\x00\x00")
}

// FromJPEG returns the payload of the first EXIF APP1 segment.
func FromJPEG(segments []jpegfile.Segment) ([]byte, bool) {
	for _, s := range segments {
		if s.IsExif() {
			return s.Data, true
		}
	}
	return nil, false
}
