package tjpeg

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// decodeFallback decodes src with image/jpeg and resamples it to width x height.
// Grayscale sources stay *image.Gray.
func decodeFallback(src []byte, width, height int) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("image/jpeg: %w", err)
	}

	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img, nil
	}

	var dst draw.Image
	if _, ok := img.(*image.Gray); ok {
		dst = image.NewGray(image.Rect(0, 0, width, height))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, width, height))
	}

	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)

	return dst, nil
}

// ratioSubsamp maps an image.YCbCr subsampling ratio to a Subsampling.
var ratioSubsamp = map[image.YCbCrSubsampleRatio]Subsampling{
	image.YCbCrSubsampleRatio444: Subsamp444,
	image.YCbCrSubsampleRatio422: Subsamp422,
	image.YCbCrSubsampleRatio420: Subsamp420,
	image.YCbCrSubsampleRatio440: Subsamp440,
	image.YCbCrSubsampleRatio411: Subsamp411,
}

// decodeFallbackYUV decodes src with image/jpeg and writes its planes to dst.
func decodeFallbackYUV(src, dst []byte) error {
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("image/jpeg: %w", err)
	}

	var (
		planes        [3][]byte
		strides, rows [3]int
		s             Subsampling
	)

	switch m := img.(type) {
	case *image.Gray:
		s = SubsampGray
		planes[0], strides[0], rows[0] = m.Pix, m.Stride, m.Rect.Dy()
	case *image.YCbCr:
		var ok bool
		if s, ok = ratioSubsamp[m.SubsampleRatio]; !ok {
			return fmt.Errorf("%w: YCbCr ratio %v", ErrUnsupported, m.SubsampleRatio)
		}

		cRows := len(m.Cb) / m.CStride
		planes = [3][]byte{m.Y, m.Cb, m.Cr}
		strides = [3]int{m.YStride, m.CStride, m.CStride}
		rows = [3]int{len(m.Y) / m.YStride, cRows, cRows}
	default:
		return fmt.Errorf("%w: no planar YUV layout for %T", ErrUnsupported, img)
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if len(dst) < BufSizeYUV(w, h, s) {
		return fmt.Errorf("%w: YUV buffer of %d bytes", ErrInvalidArgument, len(dst))
	}

	writeYUV(dst, w, h, s, planes, strides, rows)

	return nil
}
