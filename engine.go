package tjpeg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
)

// Header is the frame information of a JPEG stream.
type Header struct {
	// Width and Height are the image dimensions as stored in the frame header.
	Width, Height int
	// Subsamp is the chroma subsampling scheme, NumSubsamp or above if it has no entry in the table.
	Subsamp Subsampling
	// Orientation is the EXIF orientation tag, 1 when absent.
	Orientation int
}

// Engine is the codec a Decompressor delegates the actual decoding to. An Engine belongs
// to one Decompressor and is never used concurrently.
type Engine interface {
	// ScalingFactors returns the scaling factors the engine can decode at.
	ScalingFactors() []ScalingFactor
	// DecodeHeader parses the frame header of src.
	DecodeHeader(src []byte) (Header, error)
	// Decode decodes src into dst at the largest supported scale within width x height,
	// in format pf with pitch bytes per row. Zero dimensions and pitch have the same
	// meaning as for Decompressor.DecompressTo.
	Decode(src, dst []byte, width, pitch, height int, pf PixelFormat, flags Flags) error
	// DecodeInts is Decode for 32-bit pixels; pf must be a 4-byte format and pitch counts pixels.
	DecodeInts(src []byte, dst []uint32, width, pitch, height int, pf PixelFormat, flags Flags) error
	// DecodeYUV decodes src at full size into dst as planar YUV, skipping color conversion.
	DecodeYUV(src, dst []byte, flags Flags) error
	// Close releases the engine's resources.
	Close() error
}

// EngineFactory creates an Engine for a new Decompressor.
type EngineFactory func() (Engine, error)

// decoderPool is a pool of decoder structs to reduce allocation overhead.
var decoderPool = sync.Pool{
	New: func() interface{} {
		return newDecoder()
	},
}

// NewEngine returns the built-in pure-Go engine. It holds a pooled decoder until Close.
func NewEngine() (Engine, error) {
	return newNativeEngine(nil), nil
}

// nativeEngine decodes baseline JPEGs itself and hands other coding processes to image/jpeg.
type nativeEngine struct {
	d      *decoder
	logger *slog.Logger
}

func newNativeEngine(logger *slog.Logger) *nativeEngine {
	if logger == nil {
		logger = discardLogger
	}

	return &nativeEngine{
		d:      decoderPool.Get().(*decoder),
		logger: logger,
	}
}

// acquire returns the engine's decoder, reset for a new pass over a stream.
func (e *nativeEngine) acquire() (*decoder, error) {
	if e.d == nil {
		return nil, ErrClosed
	}

	e.d.reset()
	e.d.logger = e.logger

	return e.d, nil
}

func (e *nativeEngine) ScalingFactors() []ScalingFactor {
	return ScalingFactors()
}

func (e *nativeEngine) DecodeHeader(src []byte) (Header, error) {
	d, err := e.acquire()
	if err != nil {
		return Header{}, err
	}

	h, err := d.decodeHeader(src)
	if err != nil {
		if !errors.Is(err, ErrUnsupported) {
			return Header{}, err
		}

		cfg, cerr := jpeg.DecodeConfig(bytes.NewReader(src))
		if cerr != nil {
			return Header{}, err
		}

		e.logger.Debug("tjpeg: header read by image/jpeg", slog.Any("reason", err))

		// APP1 segments ahead of the refused marker have already been read.
		return Header{Width: cfg.Width, Height: cfg.Height, Subsamp: NumSubsamp, Orientation: d.orientation}, nil
	}

	return h, nil
}

// decodeImage decodes src at the largest supported scale within width x height and returns
// an *image.Gray or *image.RGBA, or any image for the fallback path.
func (e *nativeEngine) decodeImage(src []byte, width, height int, gray bool, flags Flags) (image.Image, error) {
	h, err := e.DecodeHeader(src)
	if err != nil {
		return nil, err
	}

	sf, err := selectScale(h.Width, h.Height, width, height, defaultScalingFactors)
	if err != nil {
		return nil, err
	}

	d, err := e.acquire()
	if err != nil {
		return nil, err
	}

	if err := d.decodePlanes(src, sf.Denom/sf.Num); err != nil {
		if errors.Is(err, ErrUnsupported) {
			e.logger.Debug("tjpeg: decoding with image/jpeg", slog.Any("reason", err), slog.String("scale", sf.String()))

			return decodeFallback(src, sf.Scaled(h.Width), sf.Scaled(h.Height))
		}

		return nil, err
	}

	return d.planeImage(gray, flags&FlagFastUpsample != 0)
}

func (e *nativeEngine) Decode(src, dst []byte, width, pitch, height int, pf PixelFormat, flags Flags) error {
	if !pf.Valid() || width < 0 || height < 0 || pitch < 0 {
		return invalidArg("Decode")
	}

	img, err := e.decodeImage(src, width, height, pf == PixelGray, flags)
	if err != nil {
		return err
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	rowLen := w * pixelSize[pf]
	if pitch == 0 {
		pitch = rowLen
	}

	if !checkBuffer(len(dst), rowLen, pitch, h) {
		return fmt.Errorf("%w: %d-byte buffer for %dx%d %s with pitch %d", ErrInvalidArgument, len(dst), w, h, pf, pitch)
	}

	packPixels(img, dst, pitch, pf, flags)

	return nil
}

func (e *nativeEngine) DecodeInts(src []byte, dst []uint32, width, pitch, height int, pf PixelFormat, flags Flags) error {
	if PixelSize(pf) != 4 || width < 0 || height < 0 || pitch < 0 {
		return invalidArg("DecodeInts")
	}

	img, err := e.decodeImage(src, width, height, false, flags)
	if err != nil {
		return err
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if pitch == 0 {
		pitch = w
	}

	if !checkBuffer(len(dst), w, pitch, h) {
		return fmt.Errorf("%w: %d-pixel buffer for %dx%d with pitch %d", ErrInvalidArgument, len(dst), w, h, pitch)
	}

	packInts(img, dst, pitch, pf, flags)

	return nil
}

func (e *nativeEngine) DecodeYUV(src, dst []byte, flags Flags) error {
	d, err := e.acquire()
	if err != nil {
		return err
	}

	if err := d.decodePlanes(src, 1); err != nil {
		if errors.Is(err, ErrUnsupported) {
			e.logger.Debug("tjpeg: decoding YUV with image/jpeg", slog.Any("reason", err))

			return decodeFallbackYUV(src, dst)
		}

		return err
	}

	if d.isRGB || !d.subsamp.Valid() {
		return fmt.Errorf("%w: no planar YUV layout for this image", ErrUnsupported)
	}

	if len(dst) < BufSizeYUV(d.width, d.height, d.subsamp) {
		return fmt.Errorf("%w: YUV buffer of %d bytes", ErrInvalidArgument, len(dst))
	}

	var planes [3][]byte
	var strides, rows [3]int
	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		planes[i], strides[i], rows[i] = c.pixels, c.stride, len(c.pixels)/c.stride
	}

	writeYUV(dst, d.width, d.height, d.subsamp, planes, strides, rows)

	return nil
}

func (e *nativeEngine) Close() error {
	if e.d == nil {
		return nil
	}

	e.d.reset()
	decoderPool.Put(e.d)
	e.d = nil

	return nil
}
