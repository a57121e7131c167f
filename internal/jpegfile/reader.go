package jpegfile

import (
	"context"
	"encoding/binary"
)

// maxDimension bounds the frame size accepted by the parser.
const maxDimension = 65500

// parser walks the marker structure of an in-memory JPEG stream.
type parser struct {
	data []byte
	pos  int
	f    *File

	dc, ac [4]*huffTable

	frameSeen bool
	// coeffs is false when only the header is wanted.
	coeffs bool
	ctx    context.Context
}

// ParseHeader parses markers up to the first scan without decoding any
// entropy-coded data. The returned File has no coefficient blocks.
func ParseHeader(data []byte) (*File, error) {
	p := &parser{data: data, f: newFile(), ctx: context.Background()}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.f, nil
}

// Parse parses a complete JPEG stream and decodes every scan into
// quantized DCT coefficients. The context is checked between MCU rows.
func Parse(ctx context.Context, data []byte) (*File, error) {
	p := &parser{data: data, f: newFile(), coeffs: true, ctx: ctx}
	if err := p.run(); err != nil {
		return nil, err
	}
	if !p.f.HasCoefficients() {
		return nil, syntaxError("no scan data")
	}
	return p.f, nil
}

func newFile() *File {
	return &File{AdobeTransform: -1}
}

func (p *parser) run() error {
	if len(p.data) < 2 {
		return ErrNotJPEG
	}
	if p.data[0] != 0xff || p.data[1] != markerSOI {
		return ErrNotJPEG
	}
	p.pos = 2

	for {
		marker, err := p.nextMarker()
		if err != nil {
			return err
		}

		switch {
		case marker == markerEOI:
			return nil
		case marker >= markerRST0 && marker <= markerRST7:
			// Stray restart markers carry no payload.
			continue
		case marker == markerSOI || marker == 0x01:
			continue
		}

		payload, err := p.segment()
		if err != nil {
			return err
		}

		switch {
		case marker == markerSOF0 || marker == markerSOF1 || marker == markerSOF2:
			if err := p.processSOF(marker, payload); err != nil {
				return err
			}
		case marker == 0xc3 || (marker >= 0xc5 && marker <= 0xcf && marker != 0xc8 && marker != 0xcc):
			return unsupportedError("frame type SOF%d", marker-0xc0)
		case marker == 0xcc:
			return unsupportedError("arithmetic coding")
		case marker == markerDHT:
			if err := p.processDHT(payload); err != nil {
				return err
			}
		case marker == markerDQT:
			if err := p.processDQT(payload); err != nil {
				return err
			}
		case marker == markerDRI:
			if len(payload) != 2 {
				return syntaxError("DRI has wrong length")
			}
			p.f.RestartInterval = int(binary.BigEndian.Uint16(payload))
		case marker == markerSOS:
			if !p.frameSeen {
				return syntaxError("SOS before SOF")
			}
			if !p.coeffs {
				return nil
			}
			if err := p.processSOS(payload); err != nil {
				return err
			}
		case marker >= markerAPP0 && marker <= 0xef || marker == markerCOM:
			p.processApp(marker, payload)
		default:
			// Unknown markers (DNL, DHP, JPGn) are skipped.
		}
	}
}

// nextMarker skips fill bytes and returns the next marker code.
func (p *parser) nextMarker() (byte, error) {
	for {
		if p.pos >= len(p.data) {
			if p.frameSeen && p.f.HasCoefficients() {
				// A missing EOI after complete scans is tolerated.
				return markerEOI, nil
			}
			return 0, ErrTruncated
		}
		if p.data[p.pos] != 0xff {
			// Garbage between segments; libjpeg skips it with a warning.
			p.pos++
			continue
		}
		for p.pos < len(p.data) && p.data[p.pos] == 0xff {
			p.pos++
		}
		if p.pos >= len(p.data) {
			return 0, ErrTruncated
		}
		m := p.data[p.pos]
		p.pos++
		if m == 0 {
			continue
		}
		return m, nil
	}
}

// segment reads a length-prefixed marker payload.
func (p *parser) segment() ([]byte, error) {
	if p.pos+2 > len(p.data) {
		return nil, ErrTruncated
	}
	n := int(binary.BigEndian.Uint16(p.data[p.pos:]))
	if n < 2 {
		return nil, syntaxError("short segment length %d", n)
	}
	if p.pos+n > len(p.data) {
		return nil, ErrTruncated
	}
	payload := p.data[p.pos+2 : p.pos+n]
	p.pos += n
	return payload, nil
}

func (p *parser) processSOF(marker byte, b []byte) error {
	if p.frameSeen {
		return syntaxError("multiple SOF markers")
	}
	if len(b) < 6 {
		return syntaxError("SOF too short")
	}
	if b[0] != 8 {
		return unsupportedError("%d-bit precision", b[0])
	}
	f := p.f
	f.Height = int(binary.BigEndian.Uint16(b[1:]))
	f.Width = int(binary.BigEndian.Uint16(b[3:]))
	if f.Width == 0 || f.Height == 0 {
		return unsupportedError("image with zero dimension (DNL)")
	}
	if f.Width > maxDimension || f.Height > maxDimension {
		return unsupportedError("image dimensions %dx%d", f.Width, f.Height)
	}
	n := int(b[5])
	if n != 1 && n != 3 && n != 4 {
		return unsupportedError("%d components", n)
	}
	if len(b) != 6+3*n {
		return syntaxError("SOF has wrong length")
	}
	f.Progressive = marker == markerSOF2
	f.Components = make([]Component, n)
	for i := 0; i < n; i++ {
		c := &f.Components[i]
		c.ID = b[6+3*i]
		for j := 0; j < i; j++ {
			if f.Components[j].ID == c.ID {
				return syntaxError("repeated component identifier")
			}
		}
		c.H = int(b[7+3*i] >> 4)
		c.V = int(b[7+3*i] & 0x0f)
		if c.H < 1 || c.H > 4 || c.V < 1 || c.V > 4 {
			return unsupportedError("sampling factors %dx%d", c.H, c.V)
		}
		c.Tq = int(b[8+3*i])
		if c.Tq > 3 {
			return syntaxError("bad quantization table selector")
		}
	}
	if n == 1 {
		// A lone component is always coded one block per MCU.
		f.Components[0].H, f.Components[0].V = 1, 1
	}
	p.frameSeen = true
	if p.coeffs {
		f.AllocBlocks()
	}
	return nil
}

func (p *parser) processDQT(b []byte) error {
	for len(b) > 0 {
		pq := b[0] >> 4
		tq := b[0] & 0x0f
		if tq > 3 {
			return syntaxError("bad Tq value")
		}
		q := new([blockSize]uint16)
		switch pq {
		case 0:
			if len(b) < 1+blockSize {
				return syntaxError("DQT too short")
			}
			for zig := 0; zig < blockSize; zig++ {
				q[unzig[zig]] = uint16(b[1+zig])
			}
			b = b[1+blockSize:]
		case 1:
			if len(b) < 1+2*blockSize {
				return syntaxError("DQT too short")
			}
			for zig := 0; zig < blockSize; zig++ {
				q[unzig[zig]] = binary.BigEndian.Uint16(b[1+2*zig:])
			}
			b = b[1+2*blockSize:]
		default:
			return syntaxError("bad Pq value")
		}
		p.f.Quant[tq] = q
	}
	return nil
}

func (p *parser) processDHT(b []byte) error {
	for len(b) > 0 {
		if len(b) < 17 {
			return syntaxError("DHT too short")
		}
		tc := b[0] >> 4
		th := b[0] & 0x0f
		if tc > 1 || th > 3 {
			return syntaxError("bad Tc/Th value")
		}
		var counts [16]byte
		copy(counts[:], b[1:17])
		total := 0
		for _, c := range counts {
			total += int(c)
		}
		if total == 0 || total > 256 || len(b) < 17+total {
			return syntaxError("bad DHT table size")
		}
		h, err := newHuffTable(counts, b[17:17+total])
		if err != nil {
			return err
		}
		if tc == 0 {
			p.dc[th] = h
		} else {
			p.ac[th] = h
		}
		b = b[17+total:]
	}
	return nil
}

func (p *parser) processApp(marker byte, b []byte) {
	data := make([]byte, len(b))
	copy(data, b)

	switch {
	case marker == markerAPP0 && len(b) >= 5 && string(b[:5]) == "JFIF\x00":
		if p.f.JFIF == nil {
			p.f.JFIF = data
			return
		}
	case marker == MarkerAPP14 && len(b) >= 12 && string(b[:5]) == "Adobe":
		p.f.AdobeTransform = int(b[11])
		return
	}
	p.f.Segments = append(p.f.Segments, Segment{Marker: marker, Data: data})
}

func (p *parser) processSOS(b []byte) error {
	f := p.f
	if len(b) < 1 {
		return syntaxError("SOS too short")
	}
	n := int(b[0])
	if n < 1 || n > 4 || len(b) != 4+2*n {
		return syntaxError("SOS has wrong length")
	}
	s := scan{}
	for i := 0; i < n; i++ {
		id := b[1+2*i]
		ci := -1
		for j := range f.Components {
			if f.Components[j].ID == id {
				ci = j
			}
		}
		if ci < 0 {
			return syntaxError("unknown component selector %d", id)
		}
		for _, prev := range s.comps {
			if prev.index == ci {
				return syntaxError("repeated component selector")
			}
		}
		td := int(b[2+2*i] >> 4)
		ta := int(b[2+2*i] & 0x0f)
		if td > 3 || ta > 3 {
			return syntaxError("bad table selector")
		}
		s.comps = append(s.comps, scanComp{index: ci, td: td, ta: ta})
	}
	s.ss = int(b[1+2*n])
	s.se = int(b[2+2*n])
	s.ah = int(b[3+2*n] >> 4)
	s.al = int(b[3+2*n] & 0x0f)

	if f.Progressive {
		if s.se < s.ss || s.se > 63 || (s.ss == 0 && s.se != 0) || (s.ss != 0 && n != 1) || s.al > 13 {
			return syntaxError("bad spectral selection")
		}
	} else {
		s.ss, s.se, s.ah, s.al = 0, 63, 0, 0
	}
	for i := range s.comps {
		sc := &s.comps[i]
		if s.ss == 0 && s.ah == 0 && p.dc[sc.td] == nil {
			return syntaxError("missing DC Huffman table")
		}
		if s.se > 0 && p.ac[sc.ta] == nil {
			return syntaxError("missing AC Huffman table")
		}
		sc.dc = p.dc[sc.td]
		sc.ac = p.ac[sc.ta]
	}

	end := scanEnd(p.data, p.pos)
	if err := p.decodeScan(&s, p.data[p.pos:end]); err != nil {
		return err
	}
	p.pos = end
	return nil
}

// scanEnd returns the offset of the first marker after an entropy-coded
// segment that is not a restart marker, or len(data).
func scanEnd(data []byte, pos int) int {
	for i := pos; i+1 < len(data); i++ {
		if data[i] != 0xff {
			continue
		}
		m := data[i+1]
		if m == 0 || m == 0xff || (m >= markerRST0 && m <= markerRST7) {
			continue
		}
		return i
	}
	return len(data)
}
