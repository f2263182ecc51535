package tjpeg

import (
	"fmt"
	"strings"
)

// PixelFormat describes the channel order and packing of an interleaved pixel buffer.
type PixelFormat int

const (
	// PixelRGB stores pixels as R, G, B bytes.
	PixelRGB PixelFormat = iota
	// PixelBGR stores pixels as B, G, R bytes.
	PixelBGR
	// PixelRGBX stores pixels as R, G, B and an unused byte.
	PixelRGBX
	// PixelBGRX stores pixels as B, G, R and an unused byte.
	PixelBGRX
	// PixelXBGR stores pixels as an unused byte followed by B, G, R.
	PixelXBGR
	// PixelXRGB stores pixels as an unused byte followed by R, G, B.
	PixelXRGB
	// PixelGray stores one luminance byte per pixel.
	PixelGray
	// PixelRGBA is PixelRGBX with an opaque alpha channel.
	PixelRGBA
	// PixelBGRA is PixelBGRX with an opaque alpha channel.
	PixelBGRA
	// PixelABGR is PixelXBGR with an opaque alpha channel.
	PixelABGR
	// PixelARGB is PixelXRGB with an opaque alpha channel.
	PixelARGB

	numPixelFormats
)

var (
	pixelSize   = [numPixelFormats]int{3, 3, 4, 4, 4, 4, 1, 4, 4, 4, 4}
	redOffset   = [numPixelFormats]int{0, 2, 0, 2, 3, 1, -1, 0, 2, 3, 1}
	greenOffset = [numPixelFormats]int{1, 1, 1, 1, 2, 2, -1, 1, 1, 2, 2}
	blueOffset  = [numPixelFormats]int{2, 0, 2, 0, 1, 3, -1, 2, 0, 1, 3}
	// Offset of the fourth byte, alpha or padding. Both are written as 0xFF.
	extraOffset = [numPixelFormats]int{-1, -1, 3, 3, 0, 0, -1, 3, 3, 0, 0}

	pixelFormatNames = [numPixelFormats]string{"rgb", "bgr", "rgbx", "bgrx", "xbgr", "xrgb", "gray", "rgba", "bgra", "abgr", "argb"}
)

// Valid reports whether pf is one of the enumerated pixel formats.
func (pf PixelFormat) Valid() bool {
	return pf >= 0 && pf < numPixelFormats
}

func (pf PixelFormat) String() string {
	if !pf.Valid() {
		return fmt.Sprintf("PixelFormat(%d)", int(pf))
	}

	return pixelFormatNames[pf]
}

// PixelSize returns the number of bytes per pixel for pf, or 0 for an invalid format.
func PixelSize(pf PixelFormat) int {
	if !pf.Valid() {
		return 0
	}

	return pixelSize[pf]
}

// ParsePixelFormat returns the pixel format with the given case-insensitive name.
func ParsePixelFormat(name string) (PixelFormat, error) {
	for i, n := range pixelFormatNames {
		if strings.EqualFold(n, name) {
			return PixelFormat(i), nil
		}
	}

	return -1, fmt.Errorf("%w: unknown pixel format %q", ErrInvalidArgument, name)
}

// Subsampling is the chroma subsampling scheme of a JPEG image.
type Subsampling int

const (
	// Subsamp444 has no chroma subsampling.
	Subsamp444 Subsampling = iota
	// Subsamp422 halves chroma horizontally.
	Subsamp422
	// Subsamp420 halves chroma horizontally and vertically.
	Subsamp420
	// SubsampGray has luminance only.
	SubsampGray
	// Subsamp440 halves chroma vertically.
	Subsamp440
	// Subsamp411 quarters chroma horizontally.
	Subsamp411

	// NumSubsamp is the number of known schemes. A header reporting
	// a value at or above it uses a scheme this package does not know.
	NumSubsamp
)

var (
	mcuWidth  = [NumSubsamp]int{8, 16, 16, 8, 8, 32}
	mcuHeight = [NumSubsamp]int{8, 8, 16, 8, 16, 8}

	subsampNames = [NumSubsamp]string{"4:4:4", "4:2:2", "4:2:0", "gray", "4:4:0", "4:1:1"}
)

// Valid reports whether s is one of the known subsampling schemes.
func (s Subsampling) Valid() bool {
	return s >= 0 && s < NumSubsamp
}

func (s Subsampling) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Subsampling(%d)", int(s))
	}

	return subsampNames[s]
}

// MCUWidth returns the width in pixels of a minimum coded unit for s, or 0 if s is unknown.
func MCUWidth(s Subsampling) int {
	if !s.Valid() {
		return 0
	}

	return mcuWidth[s]
}

// MCUHeight returns the height in pixels of a minimum coded unit for s, or 0 if s is unknown.
func MCUHeight(s Subsampling) int {
	if !s.Valid() {
		return 0
	}

	return mcuHeight[s]
}

// pad rounds v up to a multiple of p, which must be a power of two.
func pad(v, p int) int {
	return (v + p - 1) &^ (p - 1)
}

// yuvPlanes returns the row stride and row count of the Y plane and of each chroma plane
// of a planar image. The chroma values are zero for SubsampGray.
func yuvPlanes(width, height int, s Subsampling) (yStride, yRows, cStride, cRows int) {
	pw := pad(width, mcuWidth[s]/8)
	ph := pad(height, mcuHeight[s]/8)
	yStride, yRows = pad(pw, 4), ph

	if s == SubsampGray {
		return yStride, yRows, 0, 0
	}

	cw := pw * 8 / mcuWidth[s]
	ch := ph * 8 / mcuHeight[s]

	return yStride, yRows, pad(cw, 4), ch
}

// BufSizeYUV returns the size of the buffer needed to hold a planar YUV image with the given
// dimensions and subsampling. Each plane row is padded to a multiple of 4 bytes.
// It returns 0 for invalid arguments.
func BufSizeYUV(width, height int, s Subsampling) int {
	if width < 1 || height < 1 || !s.Valid() {
		return 0
	}

	yStride, yRows, cStride, cRows := yuvPlanes(width, height, s)

	return yStride*yRows + 2*cStride*cRows
}

// Flags modify how an image is decompressed. Unknown bits are ignored; negative values are invalid.
type Flags int

const (
	// FlagBottomUp stores the output rows in bottom-up order.
	FlagBottomUp Flags = 2
	// FlagFastUpsample uses nearest-neighbour chroma upsampling.
	FlagFastUpsample Flags = 256
	// FlagFastDCT prefers the fastest IDCT the engine has.
	FlagFastDCT Flags = 2048
	// FlagAccurateDCT prefers the most accurate IDCT the engine has.
	FlagAccurateDCT Flags = 4096
)

// ImageType selects the concrete image returned by DecompressImage.
type ImageType int

const (
	// ImageRGBA produces an *image.RGBA.
	ImageRGBA ImageType = iota
	// ImageNRGBA produces an *image.NRGBA.
	ImageNRGBA
	// ImageGray produces an *image.Gray.
	ImageGray
	// ImageIntRGB produces a *PackedImage with 0xRRGGBB in the low 24 bits of each pixel.
	ImageIntRGB
	// ImageIntBGR produces a *PackedImage with 0xBBGGRR in the low 24 bits of each pixel.
	ImageIntBGR
	// ImageIntARGB produces a *PackedImage with 0xAARRGGBB pixels.
	ImageIntARGB

	numImageTypes
)
