package tjpeg

// Entropy Decoding

// getVLC decodes a single Variable-Length Code (VLC) from the bitstream using
// the pre-built Huffman tables. It returns the decoded integer value.
func (d *decoder) getVLC(vlc *[65536]vlcCode, code *uint8) int {
	// Peek 16 bits for Huffman lookup. This ensures the buffer is filled.
	value16 := d.showBits(16)

	// Lookup Huffman code details from the pre-built table.
	entry := vlc[value16]
	huffBits := int(entry.bits)
	if huffBits == 0 {
		d.panic(ErrSyntax) // Invalid Huffman code.
	}

	huffCode := entry.code
	if code != nil {
		*code = huffCode
	}

	valBits := int(huffCode & 15)

	// Handle EOB/ZRL (valBits == 0).
	if valBits == 0 {
		d.skipBits(huffBits)

		return 0
	}

	totalBits := huffBits + valBits

	// Fast path: Huffman code and value are both in the buffer.
	if d.bufBits >= totalBits {
		shift := d.bufBits - totalBits
		mask := (uint64(1) << valBits) - 1
		value := int((d.buf >> shift) & mask)

		d.bufBits -= totalBits

		// Sign extension.
		if value < (1 << (valBits - 1)) {
			value += ((-1) << valBits) + 1
		}

		return value
	}

	// Slow path: consume the Huffman bits, then read the value bits with a refill.
	d.skipBits(huffBits)
	value := d.getBits(valBits)

	// Sign extension.
	if value < (1 << (valBits - 1)) {
		value += ((-1) << valBits) + 1
	}

	return value
}

// decodeBlock decodes a single 8x8 block of a component. This involves
// entropy decoding of DC and AC coefficients, dequantization, and applying the IDCT
// at the decoder's scale.
func (d *decoder) decodeBlock(c *component, outOffset int) {
	var code uint8
	var value int

	// This clears the array to zeros.
	d.block = [64]int32{}

	// Cache pointers to tables used in the loop.
	qt := d.qtab[c.qtSel]
	dcVLC := d.vlcTab[c.dcTabSel]
	acVLC := d.vlcTab[c.acTabSel+2]

	// Decode DC coefficient.
	value = d.getVLC(dcVLC, nil)

	c.dcPred += value
	d.block[0] = int32(c.dcPred) * int32(qt[0])

	// Decode AC coefficients.
	coef := 1
	for coef <= 63 {
		value = d.getVLC(acVLC, &code)

		if code == 0 { // EOB (End of Block)
			break
		}

		if (code & 0x0F) == 0 {
			if code != 0xF0 { // ZRL (Zero Run Length)
				d.panic(ErrSyntax)
			}

			coef += 16

			continue
		}

		coef += int(code >> 4) // Skip zero coefficients.
		if coef > 63 {
			d.panic(ErrSyntax)
		}

		// Quantization tables are stored in zigzag order, like the coefficients.
		d.block[zz[coef]] = int32(value) * int32(qt[coef])
		coef++
	}

	idctScaled(&d.block, c.pixels, outOffset, c.stride, d.scaleDenom)
}

// decodeScan decodes the image scan data. It iterates through all MCUs in the
// image, decoding each block for each component.
// Handles panics from the hot path.
func (d *decoder) decodeScan() (err error) {
	// Setup recovery for panics in the hot path (getVLC, decodeBlock).
	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(errDecode); ok {
				err = de.error
			} else {
				// Propagate other panics (e.g., runtime errors like index out of bounds)
				panic(r)
			}
		}
	}()

	rstCount := d.rstInterval
	nextRst := 0

	if err := d.decodeLength(); err != nil {
		return err
	}

	if d.length < (4 + 2*d.ncomp) {
		return ErrSyntax
	}

	if int(d.jpegData[d.pos]) != d.ncomp {
		return ErrUnsupported // Non-interleaved scans are left to the fallback decoder.
	}

	if err := d.skip(1); err != nil {
		return err
	}

	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		if int(d.jpegData[d.pos]) != c.id {
			return ErrSyntax
		}

		c.dcTabSel = int(d.jpegData[d.pos+1]) >> 4
		c.acTabSel = int(d.jpegData[d.pos+1]) & 0x0F
		if c.dcTabSel > 1 || c.acTabSel > 1 {
			return ErrSyntax
		}

		if err := d.skip(2); err != nil {
			return err
		}
	}

	// Check for baseline DCT parameters.
	if d.jpegData[d.pos] != 0 || (d.jpegData[d.pos+1] != 63) || d.jpegData[d.pos+2] != 0 {
		return ErrUnsupported
	}

	if err := d.skip(d.length); err != nil {
		return err
	}

	// Every table the frame references must have been defined.
	if d.qtUsed&^d.qtAvail != 0 {
		return ErrSyntax
	}

	// Reset DC predictors at the start of the scan.
	for k := 0; k < 3; k++ {
		d.comp[k].dcPred = 0
	}

	d.buf = 0
	d.bufBits = 0

	bs := 8 / d.scaleDenom

	for mby := 0; mby < d.mbHeight; mby++ {
		for mbx := 0; mbx < d.mbWidth; mbx++ {
			for i := 0; i < d.ncomp; i++ {
				c := &d.comp[i]

				for sby := 0; sby < c.ssY; sby++ {
					for sbx := 0; sbx < c.ssX; sbx++ {
						offset := ((mby*c.ssY+sby)*c.stride + mbx*c.ssX + sbx) * bs

						d.decodeBlock(c, offset)
					}
				}
			}

			// Handle restart markers. None follows the final MCU.
			last := mby == d.mbHeight-1 && mbx == d.mbWidth-1
			if d.rstInterval != 0 && !last {
				rstCount--
				if rstCount == 0 {
					d.byteAlign()

					i := d.getBits(16)

					if ((i & 0xFFF8) != 0xFFD0) || ((i & 7) != nextRst) {
						d.panic(ErrSyntax)
					}

					nextRst = (nextRst + 1) & 7
					rstCount = d.rstInterval

					for k := 0; k < 3; k++ {
						d.comp[k].dcPred = 0
					}
				}
			}
		}
	}

	return nil
}
