package jpegfile

// lutBits is the number of bits resolved by a single table lookup.
const lutBits = 9

// huffTable is a decoding table for one DHT entry.
type huffTable struct {
	// lut maps the next lutBits bits of the stream to value<<8 | codeLength.
	// A zero entry means the code is longer than lutBits.
	lut [1 << lutBits]uint16

	vals    []byte
	maxCode [17]int32
	valPtr  [17]int32
	minCode [17]int32
}

func newHuffTable(counts [16]byte, vals []byte) (*huffTable, error) {
	h := &huffTable{vals: append([]byte(nil), vals...)}

	code, k := int32(0), int32(0)
	for l := 1; l <= 16; l++ {
		n := int32(counts[l-1])
		h.valPtr[l] = k
		h.minCode[l] = code
		code += n
		k += n
		h.maxCode[l] = code - 1
		if n == 0 {
			h.maxCode[l] = -1
		}
		if code > 1<<l {
			return nil, syntaxError("bad Huffman table")
		}
		code <<= 1
	}

	code, k = 0, 0
	for l := 1; l <= lutBits; l++ {
		for i := 0; i < int(counts[l-1]); i++ {
			base := code << (lutBits - l)
			span := int32(1) << (lutBits - l)
			for j := int32(0); j < span; j++ {
				h.lut[base+j] = uint16(vals[k])<<8 | uint16(l)
			}
			code++
			k++
		}
		code <<= 1
	}
	return h, nil
}

// bitReader reads bits from an entropy-coded segment, removing stuffed zero
// bytes. When a marker or the end of data is reached it feeds zero bits.
type bitReader struct {
	data []byte
	pos  int
	acc  uint64
	n    uint

	atMarker bool
	// padBits counts zero bits synthesised past the end of the data.
	padBits uint
}

func (br *bitReader) fill() {
	for br.n <= 56 {
		var b byte
		switch {
		case br.atMarker:
		case br.pos >= len(br.data):
			br.padBits += 8
		default:
			b = br.data[br.pos]
			if b != 0xff {
				br.pos++
				break
			}
			if br.pos+1 < len(br.data) && br.data[br.pos+1] == 0x00 {
				br.pos += 2
				break
			}
			br.atMarker = true
			b = 0
		}
		br.acc |= uint64(b) << (56 - br.n)
		br.n += 8
	}
}

func (br *bitReader) bits(n uint) uint32 {
	if n == 0 {
		return 0
	}
	if br.n < n {
		br.fill()
	}
	v := uint32(br.acc >> (64 - n))
	br.acc <<= n
	br.n -= n
	return v
}

func (br *bitReader) bit() bool {
	return br.bits(1) != 0
}

// receiveExtend reads an n-bit magnitude and sign extends it (F.2.2.1).
func (br *bitReader) receiveExtend(n uint) int32 {
	if n == 0 {
		return 0
	}
	v := int32(br.bits(n))
	if v < 1<<(n-1) {
		v += (-1 << n) + 1
	}
	return v
}

func (br *bitReader) decode(h *huffTable) (byte, error) {
	if br.n < 16 {
		br.fill()
	}
	peek := br.acc >> (64 - lutBits)
	if e := h.lut[peek]; e != 0 {
		l := uint(e & 0xff)
		br.acc <<= l
		br.n -= l
		return byte(e >> 8), nil
	}
	code := int32(0)
	for l := 1; l <= 16; l++ {
		code = code<<1 | int32(br.acc>>63)
		br.acc <<= 1
		br.n--
		if code <= h.maxCode[l] {
			return h.vals[h.valPtr[l]+code-h.minCode[l]], nil
		}
	}
	return 0, syntaxError("bad Huffman code")
}

// truncated reports whether any synthesised padding bits were consumed.
func (br *bitReader) truncated() bool {
	return br.padBits > br.n
}

// restart discards buffered bits and consumes an RSTn marker.
func (br *bitReader) restart(expected int) error {
	br.acc, br.n, br.padBits = 0, 0, 0
	br.atMarker = false
	for br.pos < len(br.data) && br.data[br.pos] != 0xff {
		br.pos++
	}
	for br.pos+1 < len(br.data) && br.data[br.pos+1] == 0xff {
		br.pos++
	}
	if br.pos+1 >= len(br.data) {
		return ErrTruncated
	}
	m := br.data[br.pos+1]
	if m < markerRST0 || m > markerRST7 {
		return syntaxError("missing restart marker")
	}
	if int(m-markerRST0) != expected&7 {
		return syntaxError("restart marker out of sequence")
	}
	br.pos += 2
	return nil
}
