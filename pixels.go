package tjpeg

import (
	"encoding/binary"
	"image"

	"golang.org/x/image/draw"
)

// Color conversion

// yCbCrToRGBA converts full-resolution Y, Cb and Cr planes to RGBA.
func yCbCrToRGBA(yc, cbc, crc *component, dst []byte, width, height int) {
	rgbaOffset := 0
	py, pcb, pcr := 0, 0, 0

	for yy := 0; yy < height; yy++ {
		for x := 0; x < width; x++ {
			y := int32(yc.pixels[py+x]) << 8
			cb := int32(cbc.pixels[pcb+x]) - 128
			cr := int32(crc.pixels[pcr+x]) - 128

			r := (y + 359*cr + 128) >> 8
			g := (y - 88*cb - 183*cr + 128) >> 8
			b := (y + 454*cb + 128) >> 8

			dst[rgbaOffset] = clamp(r)
			dst[rgbaOffset+1] = clamp(g)
			dst[rgbaOffset+2] = clamp(b)
			dst[rgbaOffset+3] = 255
			rgbaOffset += 4
		}

		py += yc.stride
		pcb += cbc.stride
		pcr += crc.stride
	}
}

// rgbToRGBA interleaves R, G and B planes of an Adobe RGB-transform JPEG into RGBA.
func rgbToRGBA(rc, gc, bc *component, dst []byte, width, height int) {
	rgbaOffset := 0
	pr, pg, pb := 0, 0, 0

	for yy := 0; yy < height; yy++ {
		for x := 0; x < width; x++ {
			dst[rgbaOffset] = rc.pixels[pr+x]
			dst[rgbaOffset+1] = gc.pixels[pg+x]
			dst[rgbaOffset+2] = bc.pixels[pb+x]
			dst[rgbaOffset+3] = 255
			rgbaOffset += 4
		}

		pr += rc.stride
		pg += gc.stride
		pb += bc.stride
	}
}

// luma returns the BT.601 luminance of an RGB triple, as color.GrayModel computes it.
func luma(r, g, b byte) byte {
	return byte((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}

// Pixel format packing

// packRow writes one row of src, which must be an *image.Gray or *image.RGBA, to row in format pf.
func packRow(src image.Image, y int, row []byte, pf PixelFormat) {
	ps := pixelSize[pf]

	switch img := src.(type) {
	case *image.Gray:
		in := img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y):]
		w := img.Rect.Dx()
		if pf == PixelGray {
			copy(row[:w], in)

			return
		}

		for x, o := 0, 0; x < w; x, o = x+1, o+ps {
			v := in[x]
			row[o+redOffset[pf]] = v
			row[o+greenOffset[pf]] = v
			row[o+blueOffset[pf]] = v
			if e := extraOffset[pf]; e >= 0 {
				row[o+e] = 0xFF
			}
		}
	case *image.RGBA:
		in := img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y):]
		w := img.Rect.Dx()
		if pf == PixelGray {
			for x := 0; x < w; x++ {
				row[x] = luma(in[4*x], in[4*x+1], in[4*x+2])
			}

			return
		}

		for x, o := 0, 0; x < w; x, o = x+1, o+ps {
			row[o+redOffset[pf]] = in[4*x]
			row[o+greenOffset[pf]] = in[4*x+1]
			row[o+blueOffset[pf]] = in[4*x+2]
			if e := extraOffset[pf]; e >= 0 {
				row[o+e] = 0xFF
			}
		}
	}
}

// normalize returns src as an *image.Gray or *image.RGBA.
func normalize(src image.Image) image.Image {
	switch src.(type) {
	case *image.Gray, *image.RGBA:
		return src
	}

	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	return dst
}

// packPixels writes src into dst in format pf, pitch bytes per row.
func packPixels(src image.Image, dst []byte, pitch int, pf PixelFormat, flags Flags) {
	src = normalize(src)
	h := src.Bounds().Dy()
	rowLen := src.Bounds().Dx() * pixelSize[pf]

	for y := 0; y < h; y++ {
		dy := y
		if flags&FlagBottomUp != 0 {
			dy = h - 1 - y
		}

		packRow(src, y, dst[dy*pitch:dy*pitch+rowLen], pf)
	}
}

// packInts writes src into dst as 32-bit pixels, pitch pixels per row. Each value's
// little-endian byte sequence is the 4-byte pixel format pf.
func packInts(src image.Image, dst []uint32, pitch int, pf PixelFormat, flags Flags) {
	src = normalize(src)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	row := make([]byte, w*4)

	for y := 0; y < h; y++ {
		dy := y
		if flags&FlagBottomUp != 0 {
			dy = h - 1 - y
		}

		packRow(src, y, row, pf)
		out := dst[dy*pitch : dy*pitch+w]
		for x := range out {
			out[x] = binary.LittleEndian.Uint32(row[4*x:])
		}
	}
}

// checkBuffer reports whether a buffer of n elements holds height rows of rowLen elements pitch apart.
// It divides rather than multiplies so that a huge pitch cannot overflow.
func checkBuffer(n, rowLen, pitch, height int) bool {
	if pitch < rowLen || n < rowLen {
		return false
	}

	return height <= 1 || pitch <= (n-rowLen)/(height-1)
}

// Planar YUV

// copyPlane copies rows x stride samples from a plane to dst, repeating the last
// available row and column of the source where the destination is larger.
func copyPlane(dst []byte, stride, rows int, src []byte, srcStride, srcRows int) {
	for y := 0; y < rows; y++ {
		sy := min(y, srcRows-1)
		in := src[sy*srcStride : sy*srcStride+srcStride]
		out := dst[y*stride : (y+1)*stride]

		n := copy(out, in)
		for x := n; x < stride; x++ {
			out[x] = in[srcStride-1]
		}
	}
}

// writeYUV lays out Y, U and V planes of the given subsampling in dst.
// planes holds the luma plane followed, unless s is SubsampGray, by the two chroma planes.
func writeYUV(dst []byte, width, height int, s Subsampling, planes [3][]byte, strides, rowCounts [3]int) {
	yStride, yRows, cStride, cRows := yuvPlanes(width, height, s)

	copyPlane(dst, yStride, yRows, planes[0], strides[0], rowCounts[0])
	if s == SubsampGray {
		return
	}

	off := yStride * yRows
	copyPlane(dst[off:], cStride, cRows, planes[1], strides[1], rowCounts[1])
	off += cStride * cRows
	copyPlane(dst[off:], cStride, cRows, planes[2], strides[2], rowCounts[2])
}
