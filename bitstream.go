package tjpeg

// Bitstream handling

// showBits reads 'bits' number of bits from the bitstream without consuming them.
// It ensures the internal buffer `d.buf` has enough data, reading from the main
// jpegData slice if necessary. It also handles JPEG byte stuffing (0xFF00).
// Restart markers are passed through as data so the scan loop can verify them.
func (d *decoder) showBits(bits int) int {
	if bits == 0 {
		return 0
	}

fillLoop:
	for d.bufBits < bits {
		if d.size <= 0 {
			// Out of data: pad with 0xFF.
			d.buf = (d.buf << 8) | 0xFF
			d.bufBits += 8

			continue
		}

		b := d.jpegData[d.pos]
		d.pos++
		d.size--

		if b == 0xFF && d.size > 0 {
			b2 := d.jpegData[d.pos] // Peek at the next byte.

			switch {
			case b2 == 0:
				// Stuffed 0xFF00: consume the 0x00 and keep 0xFF as data.
				d.pos++
				d.size--
			case (b2 | 7) == 0xD7:
				// RSTn is kept in the buffer as data.
			default:
				// Any other marker ends the entropy-coded segment.
				// Rewind so the marker parser sees the 0xFF.
				d.pos--
				d.size++

				break fillLoop
			}
		}

		d.buf = (d.buf << 8) | uint64(b)
		d.bufBits += 8
	}

	shift := d.bufBits - bits
	var res uint64
	if shift >= 0 {
		res = d.buf >> shift
	} else {
		// Underfull buffer after hitting a marker: pad with 1s.
		res = d.buf << (-shift)
		res |= (uint64(1) << (-shift)) - 1
	}

	return int(res & ((1 << bits) - 1))
}

// skipBits consumes 'bits' number of bits from the bitstream.
func (d *decoder) skipBits(bits int) {
	if d.bufBits < bits {
		// We must ensure the buffer is filled (handling byte stuffing) even if we just skip.
		d.showBits(bits)
	}

	if d.bufBits < bits {
		d.bufBits = 0
	} else {
		d.bufBits -= bits
	}
}

// getBits reads and consumes 'bits' number of bits from the bitstream.
func (d *decoder) getBits(bits int) int {
	res := d.showBits(bits)
	d.skipBits(bits)

	return res
}

// byteAlign aligns the bitstream to the next byte boundary.
func (d *decoder) byteAlign() {
	d.bufBits &= ^7 // equivalent to (d.bufBits / 8) * 8
}
