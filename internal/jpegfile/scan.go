package jpegfile

// scanComp is one component referenced by an SOS header.
type scanComp struct {
	index  int
	td, ta int
	dc, ac *huffTable
}

// scan describes one SOS segment.
type scan struct {
	comps          []scanComp
	ss, se, ah, al int
}

// decodeScan decodes the entropy-coded data of one scan into the frame's
// coefficient blocks.
func (p *parser) decodeScan(s *scan, data []byte) error {
	f := p.f
	br := &bitReader{data: data}

	var (
		preds  [4]int32
		eobRun uint32
	)

	// Non-interleaved scans code the component's own block grid, one block
	// per MCU. Interleaved scans walk whole MCUs.
	var mcusX, mcusY int
	if len(s.comps) == 1 {
		mcusX, mcusY = f.ComponentBlocks(&f.Components[s.comps[0].index])
	} else {
		mcusX, mcusY = f.MCUGrid()
	}

	decodeBlock := func(sc *scanComp, b *Block, pred *int32) error {
		switch {
		case !f.Progressive:
			return decodeSequential(br, sc, b, pred)
		case s.ss == 0 && s.ah == 0:
			t, err := br.decode(sc.dc)
			if err != nil {
				return err
			}
			if t > 16 {
				return syntaxError("excessive DC component")
			}
			*pred += br.receiveExtend(uint(t))
			b[0] = int16(*pred << s.al)
			return nil
		case s.ss == 0:
			if br.bit() {
				b[0] |= int16(1 << s.al)
			}
			return nil
		case s.ah == 0:
			return decodeACFirst(br, sc.ac, b, s, &eobRun)
		default:
			return decodeACRefine(br, sc.ac, b, s, &eobRun)
		}
	}

	restarts := 0
	mcu := 0
	for my := 0; my < mcusY; my++ {
		if my%8 == 0 {
			if err := p.ctx.Err(); err != nil {
				return err
			}
		}
		for mx := 0; mx < mcusX; mx++ {
			if f.RestartInterval > 0 && mcu > 0 && mcu%f.RestartInterval == 0 {
				if err := br.restart(restarts); err != nil {
					return err
				}
				restarts++
				preds = [4]int32{}
				eobRun = 0
			}
			mcu++

			for i := range s.comps {
				sc := &s.comps[i]
				c := &f.Components[sc.index]
				if len(s.comps) == 1 {
					if err := decodeBlock(sc, c.Block(mx, my), &preds[i]); err != nil {
						return err
					}
					continue
				}
				for v := 0; v < c.V; v++ {
					for h := 0; h < c.H; h++ {
						b := c.Block(mx*c.H+h, my*c.V+v)
						if err := decodeBlock(sc, b, &preds[i]); err != nil {
							return err
						}
					}
				}
			}
		}
		if br.truncated() {
			return ErrTruncated
		}
	}
	return nil
}

func decodeSequential(br *bitReader, sc *scanComp, b *Block, pred *int32) error {
	t, err := br.decode(sc.dc)
	if err != nil {
		return err
	}
	if t > 16 {
		return syntaxError("excessive DC component")
	}
	*pred += br.receiveExtend(uint(t))
	b[0] = int16(*pred)

	for zig := 1; zig < blockSize; zig++ {
		rs, err := br.decode(sc.ac)
		if err != nil {
			return err
		}
		r, size := int(rs>>4), uint(rs&0x0f)
		if size == 0 {
			if r != 0x0f {
				break
			}
			zig += 15
			continue
		}
		zig += r
		if zig >= blockSize {
			return syntaxError("too many coefficients")
		}
		b[unzig[zig]] = int16(br.receiveExtend(size))
	}
	return nil
}

// decodeACFirst decodes the first pass of a progressive AC band (G.1.2.2).
func decodeACFirst(br *bitReader, h *huffTable, b *Block, s *scan, eobRun *uint32) error {
	if *eobRun > 0 {
		*eobRun--
		return nil
	}
	for zig := s.ss; zig <= s.se; zig++ {
		rs, err := br.decode(h)
		if err != nil {
			return err
		}
		r, size := int(rs>>4), uint(rs&0x0f)
		if size != 0 {
			zig += r
			if zig > s.se {
				return syntaxError("too many coefficients")
			}
			b[unzig[zig]] = int16(br.receiveExtend(size) << s.al)
			continue
		}
		if r != 0x0f {
			*eobRun = 1 << r
			if r != 0 {
				*eobRun |= br.bits(uint(r))
			}
			*eobRun--
			break
		}
		zig += 15
	}
	return nil
}

// decodeACRefine decodes a successive approximation refinement pass for an
// AC band (G.1.2.3).
func decodeACRefine(br *bitReader, h *huffTable, b *Block, s *scan, eobRun *uint32) error {
	delta := int16(1 << s.al)
	zig := s.ss
	if *eobRun == 0 {
	loop:
		for ; zig <= s.se; zig++ {
			var z int16
			rs, err := br.decode(h)
			if err != nil {
				return err
			}
			r, size := int(rs>>4), rs&0x0f
			switch size {
			case 0:
				if r != 0x0f {
					*eobRun = 1 << r
					if r != 0 {
						*eobRun |= br.bits(uint(r))
					}
					break loop
				}
			case 1:
				z = delta
				if !br.bit() {
					z = -z
				}
			default:
				return syntaxError("unexpected Huffman code")
			}
			zig = refineNonZeroes(br, b, zig, s.se, r, delta)
			if zig > s.se {
				return syntaxError("too many coefficients")
			}
			if z != 0 {
				b[unzig[zig]] = z
			}
		}
	}
	if *eobRun > 0 {
		*eobRun--
		refineNonZeroes(br, b, zig, s.se, -1, delta)
	}
	return nil
}

// refineNonZeroes refines already non-zero coefficients, skipping past nz
// zero coefficients. It returns the zig-zag index where it stopped.
func refineNonZeroes(br *bitReader, b *Block, zig, zigEnd, nz int, delta int16) int {
	for ; zig <= zigEnd; zig++ {
		u := unzig[zig]
		if b[u] == 0 {
			if nz == 0 {
				break
			}
			nz--
			continue
		}
		if !br.bit() {
			continue
		}
		if b[u] >= 0 {
			b[u] += delta
		} else {
			b[u] -= delta
		}
	}
	return zig
}
