package tjpeg

import "math"

// Inverse Discrete Cosine Transform (Pure Go Implementation)

// Constants for the AAN fast IDCT algorithm (scaled by 2^11).
const (
	w1 = 2841 // 2048*sqrt(2)*cos(1*pi/16)
	w2 = 2676 // 2048*sqrt(2)*cos(2*pi/16)
	w3 = 2408 // 2048*sqrt(2)*cos(3*pi/16)
	w5 = 1609 // 2048*sqrt(2)*cos(5*pi/16)
	w6 = 1108 // 2048*sqrt(2)*cos(6*pi/16)
	w7 = 565  // 2048*sqrt(2)*cos(7*pi/16)
)

// idctScaled dispatches to the IDCT producing (8/scaleDenom)x(8/scaleDenom) samples.
// scaleDenom must be 1, 2, 4, or 8.
func idctScaled(blk *[64]int32, out []byte, outOffset int, stride int, scaleDenom int) {
	switch scaleDenom {
	case 2:
		idctReduced(blk, out, outOffset, stride, 4)
	case 4:
		idctReduced(blk, out, outOffset, stride, 2)
	case 8:
		idct1x1(blk, out, outOffset)
	default:
		idct(blk, out, outOffset, stride)
	}
}

// idct performs a full 8x8 2D IDCT using the iterative approach.
func idct(blk *[64]int32, out []byte, outOffset int, stride int) {
	for i := 0; i < 64; i += 8 {
		rowIdct(blk, i)
	}

	for i := 0; i < 8; i++ {
		colIdct(blk, i, out, outOffset+i, stride)
	}
}

// rowIdct performs a 1D IDCT on a single 8-element row.
func rowIdct(blk *[64]int32, offset int) {
	b := blk[offset : offset+8]

	// Explicitly assert the length of the slice to eliminate bounds checks (BCE).
	_ = b[7]

	var x0, x1, x2, x3, x4, x5, x6, x7, x8 int32

	x1 = b[4] << 11
	x2 = b[6]
	x3 = b[2]
	x4 = b[1]
	x5 = b[7]
	x6 = b[5]
	x7 = b[3]

	if (x1 | x2 | x3 | x4 | x5 | x6 | x7) == 0 {
		val := b[0] << 3
		b[0] = val
		b[1] = val
		b[2] = val
		b[3] = val
		b[4] = val
		b[5] = val
		b[6] = val
		b[7] = val

		return
	}

	x0 = (b[0] << 11) + 128

	// Stage 1
	x8 = w7 * (x4 + x5)
	x4 = x8 + (w1-w7)*x4
	x5 = x8 - (w1+w7)*x5
	x8 = w3 * (x6 + x7)
	x6 = x8 - (w3-w5)*x6
	x7 = x8 - (w3+w5)*x7

	// Stage 2
	x8 = x0 + x1
	x0 -= x1
	x1 = w6 * (x3 + x2)
	x2 = x1 - (w2+w6)*x2
	x3 = x1 + (w2-w6)*x3

	// Stage 3
	x1 = x4 + x6
	x4 -= x6
	x6 = x5 + x7
	x5 -= x7

	// Stage 4
	x7 = x8 + x3
	x8 -= x3
	x3 = x0 + x2
	x0 -= x2

	// Rotation stage
	x2 = (181*(x4+x5) + 128) >> 8
	x4 = (181*(x4-x5) + 128) >> 8

	b[0] = (x7 + x1) >> 8
	b[1] = (x3 + x2) >> 8
	b[2] = (x0 + x4) >> 8
	b[3] = (x8 + x6) >> 8
	b[4] = (x8 - x6) >> 8
	b[5] = (x0 - x4) >> 8
	b[6] = (x3 - x2) >> 8
	b[7] = (x7 - x1) >> 8
}

// colIdct performs a 1D IDCT on a single 8-element column, writing clamped, level-shifted samples.
func colIdct(blk *[64]int32, offset int, out []byte, outOffset int, stride int) {
	out = out[outOffset:]

	var x0, x1, x2, x3, x4, x5, x6, x7, x8 int32

	x1 = blk[offset+8*4] << 8
	x2 = blk[offset+8*6]
	x3 = blk[offset+8*2]
	x4 = blk[offset+8*1]
	x5 = blk[offset+8*7]
	x6 = blk[offset+8*5]
	x7 = blk[offset+8*3]

	// Hint BCE. We access up to index 7*stride.
	_ = out[7*stride]

	if (x1 | x2 | x3 | x4 | x5 | x6 | x7) == 0 {
		b := clamp(((blk[offset+8*0] + 32) >> 6) + 128)
		for i := 0; i < 8; i++ {
			out[i*stride] = b
		}

		return
	}

	x0 = (blk[offset+8*0] << 8) + 8192

	// Stage 1
	x8 = w7*(x4+x5) + 4
	x4 = (x8 + (w1-w7)*x4) >> 3
	x5 = (x8 - (w1+w7)*x5) >> 3
	x8 = w3*(x6+x7) + 4
	x6 = (x8 - (w3-w5)*x6) >> 3
	x7 = (x8 - (w3+w5)*x7) >> 3

	// Stage 2
	x8 = x0 + x1
	x0 -= x1
	x1 = w6*(x3+x2) + 4
	x2 = (x1 - (w2+w6)*x2) >> 3
	x3 = (x1 + (w2-w6)*x3) >> 3

	// Stage 3
	x1 = x4 + x6
	x4 -= x6
	x6 = x5 + x7
	x5 -= x7

	// Stage 4
	x7 = x8 + x3
	x8 -= x3
	x3 = x0 + x2
	x0 -= x2

	// Rotation stage
	x2 = (181*(x4+x5) + 128) >> 8
	x4 = (181*(x4-x5) + 128) >> 8

	out[0*stride] = clamp(((x7 + x1) >> 14) + 128)
	out[1*stride] = clamp(((x3 + x2) >> 14) + 128)
	out[2*stride] = clamp(((x0 + x4) >> 14) + 128)
	out[3*stride] = clamp(((x8 + x6) >> 14) + 128)
	out[4*stride] = clamp(((x8 - x6) >> 14) + 128)
	out[5*stride] = clamp(((x0 - x4) >> 14) + 128)
	out[6*stride] = clamp(((x3 - x2) >> 14) + 128)
	out[7*stride] = clamp(((x7 - x1) >> 14) + 128)
}

// idct1x1 produces the single sample of a 1/8 scaled block: the block mean, from DC alone.
func idct1x1(blk *[64]int32, out []byte, outOffset int) {
	out[outOffset] = clamp(((blk[0] + 4) >> 3) + 128)
}

// reducedBasis holds, for n = 2 and 4, the n-point IDCT basis c(u)*cos((2x+1)u*pi/2n)
// scaled by 2^12, at index x*n+u.
var reducedBasis = [5][]int64{2: newReducedBasis(2), 4: newReducedBasis(4)}

func newReducedBasis(n int) []int64 {
	basis := make([]int64, n*n)
	for x := 0; x < n; x++ {
		for u := 0; u < n; u++ {
			c := math.Cos(float64((2*x+1)*u) * math.Pi / float64(2*n))
			if u == 0 {
				c = math.Sqrt2 / 2
			}

			basis[x*n+u] = int64(math.Round(c * 4096))
		}
	}

	return basis
}

// idctReduced computes an nxn output block from the top-left nxn coefficients of an 8x8 block.
// The normalization matches the 8x8 transform, so a flat block keeps its level at every scale.
func idctReduced(blk *[64]int32, out []byte, outOffset int, stride int, n int) {
	basis := reducedBasis[n]

	// Row pass over the first n coefficient rows: tmp[v*n+x].
	var tmp [16]int64
	for v := 0; v < n; v++ {
		for x := 0; x < n; x++ {
			var sum int64
			for u := 0; u < n; u++ {
				sum += basis[x*n+u] * int64(blk[v*8+u])
			}

			tmp[v*n+x] = sum
		}
	}

	// Column pass. The two basis scales (2^24) and the 1/4 transform gain give a shift of 26.
	for y := 0; y < n; y++ {
		row := out[outOffset+y*stride:]
		for x := 0; x < n; x++ {
			var sum int64
			for v := 0; v < n; v++ {
				sum += basis[y*n+v] * tmp[v*n+x]
			}

			row[x] = clamp(int32((sum+(1<<25))>>26) + 128)
		}
	}
}
