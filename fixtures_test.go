package tjpeg

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// A small tolerance is needed to account for differences in IDCT and color conversion rounding.
const defaultTolerance = 2

// isClose checks if two color component values are within the allowed tolerance.
func isClose(a, b, tol uint8) bool {
	if a > b {
		return a-b <= tol
	}

	return b-a <= tol
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}

	return b - a
}

// gradientRGBA returns a smooth color gradient. image/jpeg encodes it as 4:2:0.
func gradientRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(40 + 160*x/w),
				G: uint8(60 + 120*y/h),
				B: uint8(200 - 100*(x+y)/(w+h)),
				A: 255,
			})
		}
	}

	return img
}

// gradientGray returns a smooth luminance gradient. image/jpeg encodes it with one component.
func gradientGray(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(30 + 180*(x+y)/(w+h))})
		}
	}

	return img
}

// uniformRGBA returns a single-color image.
func uniformRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}

	return img
}

// encodeJPEG encodes img as a baseline JPEG.
func encodeJPEG(t testing.TB, img image.Image, quality int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}

	return buf.Bytes()
}

// stdDecode decodes data with image/jpeg.
func stdDecode(t testing.TB, data []byte) image.Image {
	t.Helper()

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("std jpeg.Decode failed: %v", err)
	}

	return img
}

// exifTIFF returns a TIFF structure with a single orientation entry.
func exifTIFF(order binary.ByteOrder, orientation uint16) []byte {
	tiff := make([]byte, 26)
	if order == binary.LittleEndian {
		copy(tiff, "II")
	} else {
		copy(tiff, "MM")
	}

	order.PutUint16(tiff[2:], 42)
	order.PutUint32(tiff[4:], 8)
	order.PutUint16(tiff[8:], 1)
	order.PutUint16(tiff[10:], tagOrientation)
	order.PutUint16(tiff[12:], typeUnsignedShort)
	order.PutUint32(tiff[14:], 1)
	order.PutUint16(tiff[18:], orientation)

	return tiff
}

// withOrientation inserts an EXIF APP1 segment carrying orientation right after SOI.
func withOrientation(data []byte, orientation uint16) []byte {
	tiff := exifTIFF(binary.BigEndian, orientation)

	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(2+6+len(tiff)))
	seg = append(seg, "Exif\x00\x00"...)
	seg = append(seg, tiff...)

	out := append([]byte{}, data[:2]...)
	out = append(out, seg...)

	return append(out, data[2:]...)
}

// findMarker returns the offset of the first segment with the given marker, or -1.
func findMarker(data []byte, marker byte) int {
	pos := 2
	for pos+4 <= len(data) && data[pos] == 0xFF {
		if data[pos+1] == marker {
			return pos
		}

		if data[pos+1] == 0xDA {
			return -1
		}

		pos += 2 + int(binary.BigEndian.Uint16(data[pos+2:]))
	}

	return -1
}

// withSampling returns a copy of a three-component JPEG whose SOF0 declares the given
// sampling factor bytes. The scan no longer matches, so only the header is usable.
func withSampling(t testing.TB, data []byte, y, cb, cr byte) []byte {
	t.Helper()

	sof := findMarker(data, 0xC0)
	if sof < 0 || data[sof+9] != 3 {
		t.Fatalf("no three-component SOF0 in fixture")
	}

	out := append([]byte(nil), data...)
	out[sof+11] = y
	out[sof+14] = cb
	out[sof+17] = cr

	return out
}

// withComponentIDs returns a copy of a three-component JPEG whose SOF0 names its components
// c0, c1 and c2.
func withComponentIDs(t testing.TB, data []byte, c0, c1, c2 byte) []byte {
	t.Helper()

	sof := findMarker(data, 0xC0)
	if sof < 0 || data[sof+9] != 3 {
		t.Fatalf("no three-component SOF0 in fixture")
	}

	out := append([]byte(nil), data...)
	out[sof+10] = c0
	out[sof+13] = c1
	out[sof+16] = c2

	return out
}
