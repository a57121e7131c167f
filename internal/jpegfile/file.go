package jpegfile

import (
	"errors"
	"fmt"
)

// Errors returned by the parser and writer. Callers match them with errors.Is.
var (
	// ErrNotJPEG is returned when the data does not start with an SOI marker.
	ErrNotJPEG = errors.New("jpegfile: not a JPEG file")

	// ErrTruncated is returned when the data ends before the image is complete.
	ErrTruncated = errors.New("jpegfile: truncated data")

	// ErrSyntax is returned for structurally invalid streams.
	ErrSyntax = errors.New("jpegfile: invalid JPEG syntax")

	// ErrUnsupported is returned for valid streams using features this package
	// does not implement (arithmetic coding, lossless or hierarchical frames,
	// 12-bit samples).
	ErrUnsupported = errors.New("jpegfile: unsupported JPEG feature")
)

func syntaxError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

func unsupportedError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

// Marker codes.
const (
	markerSOF0 = 0xc0 // Baseline DCT
	markerSOF1 = 0xc1 // Extended sequential DCT, Huffman
	markerSOF2 = 0xc2 // Progressive DCT, Huffman
	markerDHT  = 0xc4
	markerRST0 = 0xd0
	markerRST7 = 0xd7
	markerSOI  = 0xd8
	markerEOI  = 0xd9
	markerSOS  = 0xda
	markerDQT  = 0xdb
	markerDRI  = 0xdd
	markerAPP0 = 0xe0
	markerCOM  = 0xfe

	// MarkerAPP1 is the marker carrying EXIF (and XMP) data.
	MarkerAPP1 = 0xe1
	// MarkerAPP7 is the marker used for thumbnail description segments.
	MarkerAPP7 = 0xe7
	// MarkerAPP14 is the Adobe marker.
	MarkerAPP14 = 0xee
	// MarkerCOM is the comment marker.
	MarkerCOM = markerCOM
)

const blockSize = 64

// Block holds 64 quantized DCT coefficients in natural (row-major) order.
type Block [blockSize]int16

// unzig maps from the zig-zag ordering to the natural ordering.
var unzig = [blockSize]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// Component is one colour component of a frame with its coefficient blocks.
// The block grid is padded to whole iMCUs, so BlocksWide and BlocksHigh are
// multiples of H and V.
type Component struct {
	ID         byte
	H, V       int
	Tq         int
	BlocksWide int
	BlocksHigh int
	Blocks     []Block
}

// Block returns the block at block column bx and block row by.
func (c *Component) Block(bx, by int) *Block {
	return &c.Blocks[by*c.BlocksWide+bx]
}

// Segment is an application or comment marker segment kept verbatim.
type Segment struct {
	Marker byte
	Data   []byte
}

// IsExif reports whether the segment is an APP1 EXIF segment.
func (s Segment) IsExif() bool {
	return s.Marker == MarkerAPP1 && len(s.Data) >= 6 && string(s.Data[:6]) == "Exif\x00\x00"
}

// ColorModel identifies how the frame's components are to be interpreted.
type ColorModel int

const (
	ModelUnknown ColorModel = iota
	ModelGray
	ModelYCbCr
	ModelRGB
	ModelCMYK
	ModelYCCK
)

func (m ColorModel) String() string {
	switch m {
	case ModelGray:
		return "gray"
	case ModelYCbCr:
		return "ycbcr"
	case ModelRGB:
		return "rgb"
	case ModelCMYK:
		return "cmyk"
	case ModelYCCK:
		return "ycck"
	default:
		return "unknown"
	}
}

// File is a parsed JPEG image. Coefficient data is only present when the file
// was produced by Parse, not ParseHeader.
type File struct {
	Width, Height int
	Progressive   bool

	Components []Component

	// Quant holds the quantization tables in natural order, indexed by Tq.
	Quant [4]*[blockSize]uint16

	RestartInterval int

	// Segments are the APPn and COM segments in file order, excluding the
	// JFIF APP0 and Adobe APP14 segments, which are described by JFIF and
	// AdobeTransform.
	Segments []Segment

	// JFIF holds the JFIF APP0 payload if one was present.
	JFIF []byte

	// AdobeTransform is the Adobe APP14 transform flag, or -1 if the file has
	// no Adobe segment.
	AdobeTransform int
}

// ColorModel reports the colour interpretation of the frame, following the
// same JFIF/Adobe rules as libjpeg.
func (f *File) ColorModel() ColorModel {
	switch len(f.Components) {
	case 1:
		return ModelGray
	case 3:
		if f.AdobeTransform == 0 {
			return ModelRGB
		}
		if f.AdobeTransform < 0 && f.JFIF == nil {
			c := f.Components
			if c[0].ID == 'R' && c[1].ID == 'G' && c[2].ID == 'B' {
				return ModelRGB
			}
		}
		return ModelYCbCr
	case 4:
		if f.AdobeTransform == 2 {
			return ModelYCCK
		}
		return ModelCMYK
	}
	return ModelUnknown
}

// MaxSampling returns the largest horizontal and vertical sampling factors.
func (f *File) MaxSampling() (hmax, vmax int) {
	hmax, vmax = 1, 1
	for _, c := range f.Components {
		hmax = max(hmax, c.H)
		vmax = max(vmax, c.V)
	}
	return hmax, vmax
}

// MCUSize returns the iMCU size in pixels.
func (f *File) MCUSize() (w, h int) {
	hmax, vmax := f.MaxSampling()
	return 8 * hmax, 8 * vmax
}

// MCUGrid returns the number of iMCU columns and rows covering the image.
func (f *File) MCUGrid() (cols, rows int) {
	mw, mh := f.MCUSize()
	return (f.Width + mw - 1) / mw, (f.Height + mh - 1) / mh
}

// ComponentBlocks returns the number of blocks that carry image data for
// component c, as opposed to the MCU padding around them.
func (f *File) ComponentBlocks(c *Component) (wide, high int) {
	hmax, vmax := f.MaxSampling()
	cw := (f.Width*c.H + hmax - 1) / hmax
	ch := (f.Height*c.V + vmax - 1) / vmax
	return (cw + 7) / 8, (ch + 7) / 8
}

// AllocBlocks sizes every component's block grid for the current frame
// dimensions and sampling factors.
func (f *File) AllocBlocks() {
	cols, rows := f.MCUGrid()
	for i := range f.Components {
		c := &f.Components[i]
		c.BlocksWide = cols * c.H
		c.BlocksHigh = rows * c.V
		c.Blocks = make([]Block, c.BlocksWide*c.BlocksHigh)
	}
}

// FindSegment returns the first kept segment with the given marker for which
// match returns true. A nil match accepts any segment.
func (f *File) FindSegment(marker byte, match func(Segment) bool) (int, bool) {
	for i, s := range f.Segments {
		if s.Marker == marker && (match == nil || match(s)) {
			return i, true
		}
	}
	return -1, false
}

// ExifSegment returns the index of the EXIF APP1 segment, if present.
func (f *File) ExifSegment() (int, bool) {
	return f.FindSegment(MarkerAPP1, Segment.IsExif)
}

// Comment returns the payload of the first COM segment.
func (f *File) Comment() (string, bool) {
	i, ok := f.FindSegment(markerCOM, nil)
	if !ok {
		return "", false
	}
	return string(f.Segments[i].Data), true
}

// HasCoefficients reports whether coefficient data was decoded.
func (f *File) HasCoefficients() bool {
	return len(f.Components) > 0 && f.Components[0].Blocks != nil
}
