package jpegfile

import (
	"bufio"
	"errors"
	"io"
)

// WriteOptions selects how coefficients are entropy coded.
type WriteOptions struct {
	// Progressive writes a progressive stream using spectral selection.
	// Progressive output always uses optimised Huffman tables.
	Progressive bool
	// Optimize computes Huffman tables from the image statistics instead of
	// using the standard tables.
	Optimize bool
}

// scanSpec is one output scan. Successive approximation is never used, so
// every coefficient is written in full in exactly one scan.
type scanSpec struct {
	comps  []int
	ss, se int
}

const (
	classDC = 0
	classAC = 1
)

// encoder writes a File as a JPEG stream.
type encoder struct {
	w   *bufio.Writer
	err error
	buf [16]byte

	// bits and nBits are accumulated bits to write to w.
	bits, nBits uint32

	// counting switches the entropy coder into statistics gathering.
	counting bool
	freq     [2][2][257]int64
	lut      [2][2]huffmanLUT

	f *File
}

// Write encodes f to w. Coefficients are written as they are, so a file
// that was parsed and written again decodes to identical pixels.
func Write(w io.Writer, f *File, opts WriteOptions) error {
	if !f.HasCoefficients() {
		return errors.New("jpegfile: no coefficient data to write")
	}
	for _, c := range f.Components {
		if f.Quant[c.Tq] == nil {
			return syntaxError("missing quantization table %d", c.Tq)
		}
	}
	for _, s := range f.Segments {
		if len(s.Data) > 65533 {
			return syntaxError("marker segment too long")
		}
	}

	e := &encoder{w: bufio.NewWriter(w), f: f}
	e.write([]byte{0xff, markerSOI})
	e.writeHeaderSegments()
	for _, s := range f.Segments {
		e.writeMarkerHeader(s.Marker, 2+len(s.Data))
		e.write(s.Data)
	}
	wide := e.writeDQT()

	scans := scanScript(f, opts.Progressive)
	switch {
	case opts.Progressive:
		e.writeSOF(markerSOF2)
		for _, s := range scans {
			e.countScan(s)
			e.writeOptimalDHT(s)
			e.writeSOS(s)
			e.encodeScan(s)
		}
	default:
		marker := byte(markerSOF0)
		if wide {
			marker = markerSOF1
		}
		e.writeSOF(marker)
		if opts.Optimize {
			for _, s := range scans {
				e.countScan(s)
			}
			e.writeOptimalDHT(scanSpec{comps: allComponents(f), ss: 0, se: 63})
		} else {
			e.writeStandardDHT()
		}
		for _, s := range scans {
			e.writeSOS(s)
			e.encodeScan(s)
		}
	}

	e.write([]byte{0xff, markerEOI})
	if e.err == nil {
		e.err = e.w.Flush()
	}
	return e.err
}

func allComponents(f *File) []int {
	idx := make([]int, len(f.Components))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// scanScript returns the scans for the output stream. Progressive output
// sends an interleaved DC scan first, then the luminance AC bands split in
// two, then each chroma component's AC coefficients.
func scanScript(f *File, progressive bool) []scanSpec {
	all := allComponents(f)
	interleave := len(all) > 1 && len(all) <= 4
	if interleave {
		units := 0
		for _, c := range f.Components {
			units += c.H * c.V
		}
		interleave = units <= 10
	}

	var scans []scanSpec
	if !progressive {
		if len(all) == 1 || interleave {
			return []scanSpec{{comps: all, ss: 0, se: 63}}
		}
		for _, i := range all {
			scans = append(scans, scanSpec{comps: []int{i}, ss: 0, se: 63})
		}
		return scans
	}

	if len(all) == 1 || interleave {
		scans = append(scans, scanSpec{comps: all, ss: 0, se: 0})
	} else {
		for _, i := range all {
			scans = append(scans, scanSpec{comps: []int{i}, ss: 0, se: 0})
		}
	}
	scans = append(scans,
		scanSpec{comps: []int{0}, ss: 1, se: 5},
		scanSpec{comps: []int{0}, ss: 6, se: 63},
	)
	for _, i := range all[1:] {
		scans = append(scans, scanSpec{comps: []int{i}, ss: 1, se: 63})
	}
	return scans
}

// tableFor returns the Huffman table slot used by component i. Luminance
// (or the first component) uses slot 0, every other component slot 1.
func tableFor(i int) int {
	if i == 0 {
		return 0
	}
	return 1
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *encoder) writeByte(b byte) {
	if e.err != nil {
		return
	}
	e.err = e.w.WriteByte(b)
}

// writeMarkerHeader writes the header for a marker with the given length.
func (e *encoder) writeMarkerHeader(marker uint8, markerlen int) {
	e.buf[0] = 0xff
	e.buf[1] = marker
	e.buf[2] = uint8(markerlen >> 8)
	e.buf[3] = uint8(markerlen & 0xff)
	e.write(e.buf[:4])
}

// writeHeaderSegments writes the JFIF or Adobe segment the colour model
// calls for.
func (e *encoder) writeHeaderSegments() {
	f := e.f
	switch f.ColorModel() {
	case ModelGray, ModelYCbCr:
		jfif := f.JFIF
		if jfif == nil {
			jfif = []byte{'J', 'F', 'I', 'F', 0, 1, 1, 0, 0, 1, 0, 1, 0, 0}
		}
		e.writeMarkerHeader(markerAPP0, 2+len(jfif))
		e.write(jfif)
	case ModelRGB, ModelCMYK, ModelYCCK:
		transform := byte(0)
		if f.AdobeTransform > 0 {
			transform = byte(f.AdobeTransform)
		}
		e.writeMarkerHeader(MarkerAPP14, 14)
		e.write([]byte{'A', 'd', 'o', 'b', 'e', 0, 100, 0, 0, 0, 0, transform})
	}
}

// writeDQT writes every quantization table a component refers to. It
// reports whether any table needed 16-bit precision.
func (e *encoder) writeDQT() (wide bool) {
	var used [4]bool
	for _, c := range e.f.Components {
		used[c.Tq] = true
	}
	for tq, q := range e.f.Quant {
		if !used[tq] || q == nil {
			continue
		}
		pq := byte(0)
		for _, v := range q {
			if v > 255 {
				pq = 1
				wide = true
			}
		}
		if pq == 0 {
			e.writeMarkerHeader(markerDQT, 2+1+blockSize)
			e.writeByte(byte(tq))
			for zig := 0; zig < blockSize; zig++ {
				e.writeByte(byte(q[unzig[zig]]))
			}
			continue
		}
		e.writeMarkerHeader(markerDQT, 2+1+2*blockSize)
		e.writeByte(0x10 | byte(tq))
		for zig := 0; zig < blockSize; zig++ {
			v := q[unzig[zig]]
			e.writeByte(byte(v >> 8))
			e.writeByte(byte(v))
		}
	}
	return wide
}

func (e *encoder) writeSOF(marker byte) {
	f := e.f
	n := len(f.Components)
	e.writeMarkerHeader(marker, 8+3*n)
	e.writeByte(8)
	e.writeByte(byte(f.Height >> 8))
	e.writeByte(byte(f.Height))
	e.writeByte(byte(f.Width >> 8))
	e.writeByte(byte(f.Width))
	e.writeByte(byte(n))
	for _, c := range f.Components {
		e.writeByte(c.ID)
		e.writeByte(byte(c.H<<4 | c.V))
		e.writeByte(byte(c.Tq))
	}
}

func (e *encoder) writeStandardDHT() {
	specs := []huffmanSpec{standardSpec[0], standardSpec[1]}
	ids := []byte{0x00, 0x10}
	e.lut[classDC][0].init(standardSpec[0])
	e.lut[classAC][0].init(standardSpec[1])
	if len(e.f.Components) > 1 {
		specs = append(specs, standardSpec[2], standardSpec[3])
		ids = append(ids, 0x01, 0x11)
		e.lut[classDC][1].init(standardSpec[2])
		e.lut[classAC][1].init(standardSpec[3])
	}
	e.writeDHT(ids, specs)
}

// writeOptimalDHT builds tables from the gathered statistics for the
// slots that scan s uses, writes them and resets the statistics.
func (e *encoder) writeOptimalDHT(s scanSpec) {
	var (
		ids   []byte
		specs []huffmanSpec
		done  [2][2]bool
	)
	for _, ci := range s.comps {
		t := tableFor(ci)
		for class := classDC; class <= classAC; class++ {
			if class == classDC && s.ss != 0 || class == classAC && s.se == 0 || done[class][t] {
				continue
			}
			done[class][t] = true
			spec := optimalSpec(&e.freq[class][t])
			e.lut[class][t].init(spec)
			ids = append(ids, byte(class<<4|t))
			specs = append(specs, spec)
			e.freq[class][t] = [257]int64{}
		}
	}
	e.writeDHT(ids, specs)
}

func (e *encoder) writeDHT(ids []byte, specs []huffmanSpec) {
	if len(specs) == 0 {
		return
	}
	markerlen := 2
	for _, s := range specs {
		markerlen += 1 + 16 + len(s.value)
	}
	e.writeMarkerHeader(markerDHT, markerlen)
	for i, s := range specs {
		e.writeByte(ids[i])
		e.write(s.count[:])
		e.write(s.value)
	}
}

func (e *encoder) writeSOS(s scanSpec) {
	e.writeMarkerHeader(markerSOS, 6+2*len(s.comps))
	e.writeByte(byte(len(s.comps)))
	for _, ci := range s.comps {
		t := byte(tableFor(ci))
		e.writeByte(e.f.Components[ci].ID)
		e.writeByte(t<<4 | t)
	}
	e.writeByte(byte(s.ss))
	e.writeByte(byte(s.se))
	e.writeByte(0)
}

// emit emits the least significant nBits bits of bits to the bit-stream.
// The precondition is bits < 1<<nBits && nBits <= 16.
func (e *encoder) emit(bits, nBits uint32) {
	if e.counting {
		return
	}
	nBits += e.nBits
	bits <<= 32 - nBits
	bits |= e.bits
	for nBits >= 8 {
		b := uint8(bits >> 24)
		e.writeByte(b)
		if b == 0xff {
			e.writeByte(0x00)
		}
		bits <<= 8
		nBits -= 8
	}
	e.bits, e.nBits = bits, nBits
}

// emitHuff emits the given value with the given Huffman table.
func (e *encoder) emitHuff(class, t int, value byte) {
	if e.counting {
		e.freq[class][t][value]++
		return
	}
	x := e.lut[class][t][value]
	e.emit(x&(1<<24-1), x>>24)
}

// magnitude returns the JPEG size category of v and the bits to emit.
func magnitude(v int32) (nBits uint32, bits uint32) {
	a, b := v, v
	if a < 0 {
		a, b = -v, v-1
	}
	if a < 0x100 {
		nBits = uint32(bitCount[a])
	} else {
		nBits = 8 + uint32(bitCount[a>>8])
	}
	return nBits, uint32(b) & (1<<nBits - 1)
}

// emitHuffRLE emits a run of runLength zeros followed by value.
func (e *encoder) emitHuffRLE(class, t int, runLength, value int32) {
	nBits, bits := magnitude(value)
	e.emitHuff(class, t, byte(runLength<<4|int32(nBits)))
	if nBits > 0 {
		e.emit(bits, nBits)
	}
}

func (e *encoder) countScan(s scanSpec) {
	e.counting = true
	e.encodeScan(s)
	e.counting = false
}

// encodeScan codes the blocks of one scan in the order the decoder reads
// them back.
func (e *encoder) encodeScan(s scanSpec) {
	f := e.f
	var (
		preds  [4]int32
		eobRun int32
	)

	flushEOB := func(t int) {
		if eobRun == 0 {
			return
		}
		nBits := uint32(bitCount[eobRun&0xff])
		if eobRun >= 0x100 {
			nBits = 8 + uint32(bitCount[eobRun>>8])
		}
		nBits--
		e.emitHuff(classAC, t, byte(nBits<<4))
		if nBits > 0 {
			e.emit(uint32(eobRun)&(1<<nBits-1), nBits)
		}
		eobRun = 0
	}

	codeBlock := func(k, ci int, b *Block) {
		t := tableFor(ci)
		if s.ss == 0 {
			dc := int32(b[0])
			e.emitHuffRLE(classDC, t, 0, dc-preds[k])
			preds[k] = dc
			if s.se == 0 {
				return
			}
		}

		start := max(s.ss, 1)
		runLength := int32(0)
		for zig := start; zig <= s.se; zig++ {
			ac := int32(b[unzig[zig]])
			if ac == 0 {
				runLength++
				continue
			}
			flushEOB(t)
			for runLength > 15 {
				e.emitHuff(classAC, t, 0xf0)
				runLength -= 16
			}
			e.emitHuffRLE(classAC, t, runLength, ac)
			runLength = 0
		}
		if runLength == 0 {
			return
		}
		if s.ss == 0 {
			// Sequential scans end every block with its own EOB.
			e.emitHuff(classAC, t, 0x00)
			return
		}
		eobRun++
		if eobRun == 0x7fff {
			flushEOB(t)
		}
	}

	if len(s.comps) == 1 {
		ci := s.comps[0]
		c := &f.Components[ci]
		wide, high := f.ComponentBlocks(c)
		for by := 0; by < high; by++ {
			for bx := 0; bx < wide; bx++ {
				codeBlock(0, ci, c.Block(bx, by))
			}
		}
		if s.ss > 0 {
			flushEOB(tableFor(ci))
		}
	} else {
		cols, rows := f.MCUGrid()
		for my := 0; my < rows; my++ {
			for mx := 0; mx < cols; mx++ {
				for k, ci := range s.comps {
					c := &f.Components[ci]
					for v := 0; v < c.V; v++ {
						for h := 0; h < c.H; h++ {
							codeBlock(k, ci, c.Block(mx*c.H+h, my*c.V+v))
						}
					}
				}
			}
		}
	}

	// Pad the last byte with 1's.
	if e.nBits > 0 {
		e.emit(1<<(8-e.nBits)-1, 8-e.nBits)
	}
	e.bits, e.nBits = 0, 0
}
