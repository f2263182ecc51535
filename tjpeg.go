// Package tjpeg is a JPEG decompressor modeled on the TurboJPEG API.
//
// A Decompressor negotiates the output size against the scaling factors of its engine,
// validates every decode request before the engine sees it, and decodes into packed
// pixel buffers, 32-bit pixel buffers, planar YUV or draw.Image destinations.
// The built-in engine is a pure-Go baseline decoder with reduced-size IDCTs; other
// coding processes are decoded with image/jpeg and resampled to the negotiated size.
package tjpeg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"sync"

	"github.com/disintegration/imaging"
)

// Options specifies decoding parameters.
type Options struct {
	// Engine creates the codec used by a Decompressor. Nil selects the built-in engine.
	Engine EngineFactory
	// Logger receives debug records. Nil discards them.
	Logger *slog.Logger
	// MaxWidth and MaxHeight bound the image returned by Decode, which picks the largest
	// scaling factor that fits. Zero leaves an axis unbounded.
	MaxWidth, MaxHeight int
	// AutoRotate enables automatic image rotation based on the EXIF orientation tag.
	// The transformed image is returned as *image.NRGBA.
	AutoRotate bool
	// FastUpsample selects nearest-neighbour chroma upsampling in Decode.
	FastUpsample bool
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func optionsOf(opts []*Options) *Options {
	if len(opts) > 0 && opts[0] != nil {
		return opts[0]
	}

	return &Options{}
}

// A reasonable upper limit for the size of JPEG headers.
// Most headers are well under this size (64KB).
const maxHeaderSize = 65536

// A pool for header-sized buffers to reduce allocations in DecodeConfig.
var headerBufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, maxHeaderSize)

		return &b
	},
}

// Interface to check if a reader knows its remaining length.
type readerWithLen interface {
	Len() int
}

// readAllData reads data from r, pre-allocating if the size is known.
func readAllData(r io.Reader) ([]byte, error) {
	if rl, ok := r.(readerWithLen); ok {
		size := rl.Len()
		if size > 0 {
			data := make([]byte, size)
			_, err := io.ReadFull(r, data)
			if err != nil {
				return nil, fmt.Errorf("failed to read image data: %w", err)
			}

			return data, nil
		}
	}

	return io.ReadAll(r)
}

// Decode reads a JPEG image from r and returns it as an [image.Image]: *image.Gray for
// grayscale sources, *image.RGBA otherwise, or *image.NRGBA after an EXIF rotation.
func Decode(r io.Reader, opts ...*Options) (image.Image, error) {
	data, err := readAllData(r)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, ErrNoJPEG
	}

	o := optionsOf(opts)

	dc, err := NewDecompressorFromBuffer(data, len(data), o)
	if err != nil {
		return nil, err
	}
	defer dc.Close()

	h := dc.Header()
	it := ImageRGBA
	if h.Subsamp == SubsampGray {
		it = ImageGray
	}

	var flags Flags
	if o.FastUpsample {
		flags |= FlagFastUpsample
	}

	img, err := dc.DecompressImage(o.MaxWidth, o.MaxHeight, it, flags)
	if err != nil {
		return nil, err
	}

	if o.AutoRotate {
		return orient(img, h.Orientation), nil
	}

	return img, nil
}

// orient applies the transform that brings an image stored with EXIF orientation o upright.
func orient(img image.Image, o int) image.Image {
	switch o {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}

	return img
}

// DecodeConfig returns the color model and dimensions of a JPEG image without decoding the entire image data.
// The dimensions returned are as stored in the file (SOF marker), ignoring any EXIF orientation tags.
func DecodeConfig(r io.Reader) (image.Config, error) {
	bufPtr := headerBufferPool.Get().(*[]byte)
	defer headerBufferPool.Put(bufPtr)
	headerData := *bufPtr

	// A short file yields io.ErrUnexpectedEOF, which is normal here. An empty one yields io.EOF.
	n, err := io.ReadFull(r, headerData)
	if n == 0 && errors.Is(err, io.EOF) {
		return image.Config{}, ErrNoJPEG
	}

	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return image.Config{}, err
	}

	d := decoderPool.Get().(*decoder)
	defer func() {
		d.reset()
		decoderPool.Put(d)
	}()

	if _, err := d.decodeHeader(headerData[:n]); err != nil {
		if errors.Is(err, ErrUnsupported) {
			// image/jpeg needs the whole stream: the bytes already read followed by the rest of r.
			fullReader := io.MultiReader(bytes.NewReader(headerData[:n]), r)

			return jpeg.DecodeConfig(fullReader)
		}

		return image.Config{}, err
	}

	var cm color.Model
	switch d.ncomp {
	case 1:
		cm = color.GrayModel
	case 3:
		if d.isRGB {
			cm = color.RGBAModel
		} else {
			cm = color.YCbCrModel
		}
	case 4:
		cm = color.CMYKModel
	default:
		return image.Config{}, ErrUnsupported
	}

	return image.Config{
		ColorModel: cm,
		Width:      d.width,
		Height:     d.height,
	}, nil
}

// init registers the JPEG format with the standard library's image package.
func init() {
	decodeWrapper := func(r io.Reader) (image.Image, error) {
		return Decode(r)
	}

	image.RegisterFormat("jpeg", "\xff\xd8", decodeWrapper, DecodeConfig)
}
