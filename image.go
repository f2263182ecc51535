package tjpeg

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// PackedImage is an in-memory image whose pixels are 32-bit integers. The little-endian
// byte sequence of each value is one pixel in Format, so PixelBGRX holds 0xXXRRGGBB.
type PackedImage struct {
	// Pix holds the image's pixels. The pixel at (x, y) is Pix[(y-Rect.Min.Y)*Stride + (x-Rect.Min.X)].
	Pix []uint32
	// Stride is the Pix distance in pixels between vertically adjacent pixels.
	Stride int
	// Rect is the image's bounds.
	Rect image.Rectangle
	// Format is a 4-byte pixel format.
	Format PixelFormat
}

// NewPackedImage returns a new PackedImage with the given bounds and a 4-byte pixel format.
func NewPackedImage(r image.Rectangle, pf PixelFormat) (*PackedImage, error) {
	if PixelSize(pf) != 4 {
		return nil, fmt.Errorf("%w: %s is not a 4-byte pixel format", ErrInvalidArgument, pf)
	}

	return &PackedImage{
		Pix:    make([]uint32, r.Dx()*r.Dy()),
		Stride: r.Dx(),
		Rect:   r,
		Format: pf,
	}, nil
}

func (p *PackedImage) ColorModel() color.Model { return color.NRGBAModel }

func (p *PackedImage) Bounds() image.Rectangle { return p.Rect }

// PixOffset returns the index of the pixel at (x, y) in Pix.
func (p *PackedImage) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x - p.Rect.Min.X)
}

func (p *PackedImage) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.NRGBA{}
	}

	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], p.Pix[p.PixOffset(x, y)])

	c := color.NRGBA{R: b[redOffset[p.Format]], G: b[greenOffset[p.Format]], B: b[blueOffset[p.Format]], A: 0xFF}
	if p.Format >= PixelRGBA {
		c.A = b[extraOffset[p.Format]]
	}

	return c
}

func (p *PackedImage) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}

	n := color.NRGBAModel.Convert(c).(color.NRGBA)

	var b [4]byte
	b[redOffset[p.Format]] = n.R
	b[greenOffset[p.Format]] = n.G
	b[blueOffset[p.Format]] = n.B
	b[extraOffset[p.Format]] = 0xFF
	if p.Format >= PixelRGBA {
		b[extraOffset[p.Format]] = n.A
	}

	p.Pix[p.PixOffset(x, y)] = binary.LittleEndian.Uint32(b[:])
}

// imageLayout describes where a destination image keeps its pixels.
type imageLayout struct {
	pf    PixelFormat
	pix   []byte   // byte layouts
	ints  []uint32 // packed-integer layouts
	pitch int      // bytes, or pixels for packed-integer layouts
}

// layoutOf maps dst to a pixel format and buffer, or fails with ErrUnsupportedFormat.
// The buffer must hold every row of dst at its stride.
func layoutOf(dst draw.Image) (imageLayout, error) {
	var l imageLayout

	b := dst.Bounds()

	switch img := dst.(type) {
	case *image.RGBA:
		l = imageLayout{pf: PixelRGBA, pix: tail(img.Pix, img.PixOffset(b.Min.X, b.Min.Y)), pitch: img.Stride}
	case *image.NRGBA:
		l = imageLayout{pf: PixelRGBA, pix: tail(img.Pix, img.PixOffset(b.Min.X, b.Min.Y)), pitch: img.Stride}
	case *image.Gray:
		l = imageLayout{pf: PixelGray, pix: tail(img.Pix, img.PixOffset(b.Min.X, b.Min.Y)), pitch: img.Stride}
	case *PackedImage:
		if PixelSize(img.Format) != 4 {
			return imageLayout{}, fmt.Errorf("%w: packed image in %s", ErrUnsupportedFormat, img.Format)
		}

		l = imageLayout{pf: img.Format, ints: tail(img.Pix, img.PixOffset(b.Min.X, b.Min.Y)), pitch: img.Stride}
		if !checkBuffer(len(l.ints), b.Dx(), l.pitch, b.Dy()) {
			return imageLayout{}, fmt.Errorf("%w: %d pixels at stride %d do not hold %dx%d", ErrUnsupportedFormat, len(l.ints), l.pitch, b.Dx(), b.Dy())
		}

		return l, nil
	default:
		return imageLayout{}, fmt.Errorf("%w: %T", ErrUnsupportedFormat, dst)
	}

	if rowLen := b.Dx() * pixelSize[l.pf]; !checkBuffer(len(l.pix), rowLen, l.pitch, b.Dy()) {
		return imageLayout{}, fmt.Errorf("%w: %d bytes at stride %d do not hold %dx%d %s", ErrUnsupportedFormat, len(l.pix), l.pitch, b.Dx(), b.Dy(), l.pf)
	}

	return l, nil
}

// tail returns s from offset i, or nil when i lies outside s.
func tail[S ~[]E, E any](s S, i int) S {
	if i < 0 || i > len(s) {
		return nil
	}

	return s[i:]
}

// newImage allocates a width x height image of type it.
func newImage(it ImageType, width, height int) (draw.Image, error) {
	r := image.Rect(0, 0, width, height)

	switch it {
	case ImageRGBA:
		return image.NewRGBA(r), nil
	case ImageNRGBA:
		return image.NewNRGBA(r), nil
	case ImageGray:
		return image.NewGray(r), nil
	case ImageIntRGB:
		return NewPackedImage(r, PixelBGRX)
	case ImageIntBGR:
		return NewPackedImage(r, PixelRGBX)
	case ImageIntARGB:
		return NewPackedImage(r, PixelBGRA)
	}

	return nil, fmt.Errorf("%w: image type %d", ErrInvalidArgument, int(it))
}
