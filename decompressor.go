package tjpeg

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/image/draw"
)

// unsetHeader is the header of a Decompressor with no JPEG buffer.
var unsetHeader = Header{Subsamp: -1}

// Decompressor decodes one JPEG image at a time through an Engine.
// It is not safe for concurrent use; separate Decompressors are independent.
type Decompressor struct {
	engine   Engine
	released bool
	jpegBuf  []byte
	jpegSize int
	header   Header
	factors  []ScalingFactor
	logger   *slog.Logger
}

// NewDecompressor creates a Decompressor with no JPEG buffer associated.
// The engine it holds is released by Close, or by a finalizer if Close is never called.
func NewDecompressor(opts ...*Options) (*Decompressor, error) {
	o := optionsOf(opts)

	logger := o.Logger
	if logger == nil {
		logger = discardLogger
	}

	factory := o.Engine
	if factory == nil {
		factory = func() (Engine, error) {
			return newNativeEngine(logger), nil
		}
	}

	e, err := factory()
	if err != nil {
		return nil, &CodecError{Op: "init", Err: err}
	}

	d := &Decompressor{
		engine:  e,
		header:  unsetHeader,
		factors: e.ScalingFactors(),
		logger:  logger,
	}

	runtime.SetFinalizer(d, (*Decompressor).finalize)

	return d, nil
}

// NewDecompressorFromBuffer creates a Decompressor and associates the first size bytes of buf with it.
func NewDecompressorFromBuffer(buf []byte, size int, opts ...*Options) (*Decompressor, error) {
	d, err := NewDecompressor(opts...)
	if err != nil {
		return nil, err
	}

	if err := d.SetJPEGBuffer(buf, size); err != nil {
		_ = d.Close()

		return nil, err
	}

	return d, nil
}

// SetJPEGBuffer associates the first size bytes of buf with d and parses its header.
// The buffer is retained, not copied. On failure d has no buffer associated.
func (d *Decompressor) SetJPEGBuffer(buf []byte, size int) error {
	if d.released {
		return ErrClosed
	}

	if buf == nil || size < 1 || size > len(buf) {
		return invalidArg("SetJPEGBuffer")
	}

	h, err := d.engine.DecodeHeader(buf[:size])
	if err != nil {
		d.jpegBuf, d.jpegSize, d.header = nil, 0, unsetHeader

		return &CodecError{Op: "SetJPEGBuffer", Err: err}
	}

	d.jpegBuf, d.jpegSize, d.header = buf, size, h

	d.logger.Debug("tjpeg: header parsed",
		slog.Int("width", h.Width),
		slog.Int("height", h.Height),
		slog.String("subsamp", h.Subsamp.String()),
		slog.Int("orientation", h.Orientation))

	return nil
}

// Width returns the width of the associated JPEG image.
func (d *Decompressor) Width() (int, error) {
	if d.header.Width < 1 {
		return 0, ErrNotInitialized
	}

	return d.header.Width, nil
}

// Height returns the height of the associated JPEG image.
func (d *Decompressor) Height() (int, error) {
	if d.header.Height < 1 {
		return 0, ErrNotInitialized
	}

	return d.header.Height, nil
}

// Subsamp returns the chroma subsampling of the associated JPEG image. Images whose
// sampling factors match no Subsampling yield ErrCorruptHeader.
func (d *Decompressor) Subsamp() (Subsampling, error) {
	if d.header.Subsamp < 0 {
		return 0, ErrNotInitialized
	}

	if d.header.Subsamp >= NumSubsamp {
		return 0, ErrCorruptHeader
	}

	return d.header.Subsamp, nil
}

// Header returns the parsed header, with zero dimensions and a negative Subsamp when no
// buffer is associated.
func (d *Decompressor) Header() Header {
	return d.header
}

// JPEGBuf returns the associated JPEG buffer.
func (d *Decompressor) JPEGBuf() ([]byte, error) {
	if d.jpegBuf == nil {
		return nil, ErrNotInitialized
	}

	return d.jpegBuf, nil
}

// JPEGSize returns the number of bytes of the associated buffer holding the JPEG image.
func (d *Decompressor) JPEGSize() (int, error) {
	if d.jpegSize < 1 {
		return 0, ErrNotInitialized
	}

	return d.jpegSize, nil
}

// ScaledSize returns the dimensions of the largest image the engine can produce within
// desiredWidth x desiredHeight. Zero leaves an axis unconstrained.
func (d *Decompressor) ScaledSize(desiredWidth, desiredHeight int) (int, int, error) {
	return ResolveScale(d.header.Width, d.header.Height, desiredWidth, desiredHeight, d.factors)
}

// ScaledWidth returns the width component of ScaledSize.
func (d *Decompressor) ScaledWidth(desiredWidth, desiredHeight int) (int, error) {
	w, _, err := d.ScaledSize(desiredWidth, desiredHeight)

	return w, err
}

// ScaledHeight returns the height component of ScaledSize.
func (d *Decompressor) ScaledHeight(desiredWidth, desiredHeight int) (int, error) {
	_, h, err := d.ScaledSize(desiredWidth, desiredHeight)

	return h, err
}

// destKind tags the destination of a decode request.
type destKind int

const (
	destBytes destKind = iota
	destInts
	destYUV
	destImage
)

// request is one decode call. Only the field matching kind holds the destination.
type request struct {
	op    string
	kind  destKind
	bytes []byte
	ints  []uint32
	img   draw.Image

	desiredWidth, pitch, desiredHeight int
	pf                                 PixelFormat
	flags                              Flags
}

// check applies the checks every request shares: d is usable and has a buffer, then the
// numeric arguments are in range. It does not look at the destination.
func (d *Decompressor) check(r *request) error {
	if d.released {
		return ErrClosed
	}

	if d.jpegBuf == nil {
		return ErrNotInitialized
	}

	if r.flags < 0 {
		return invalidArg(r.op)
	}

	switch r.kind {
	case destBytes:
		if r.desiredWidth < 0 || r.pitch < 0 || r.desiredHeight < 0 || !r.pf.Valid() {
			return invalidArg(r.op)
		}
	case destInts:
		if r.desiredWidth < 0 || r.pitch < 0 || r.desiredHeight < 0 || PixelSize(r.pf) != 4 {
			return invalidArg(r.op)
		}
	}

	return nil
}

// dispatch validates r and hands it to the engine. Engine failures are returned as *CodecError.
func (d *Decompressor) dispatch(r *request) error {
	if err := d.check(r); err != nil {
		return err
	}

	src := d.jpegBuf[:d.jpegSize]

	switch r.kind {
	case destBytes:
		if r.bytes == nil {
			return invalidArg(r.op)
		}

		if err := d.checkRows(r, len(r.bytes), pixelSize[r.pf]); err != nil {
			return err
		}

		return d.engineErr(r.op, d.engine.Decode(src, r.bytes, r.desiredWidth, r.pitch, r.desiredHeight, r.pf, r.flags))
	case destInts:
		if r.ints == nil {
			return invalidArg(r.op)
		}

		if err := d.checkRows(r, len(r.ints), 1); err != nil {
			return err
		}

		return d.engineErr(r.op, d.engine.DecodeInts(src, r.ints, r.desiredWidth, r.pitch, r.desiredHeight, r.pf, r.flags))
	case destYUV:
		if r.bytes == nil {
			return invalidArg(r.op)
		}

		s, err := d.Subsamp()
		if err != nil {
			return err
		}

		if need := BufSizeYUV(d.header.Width, d.header.Height, s); len(r.bytes) < need {
			return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidArgument, r.op, need, len(r.bytes))
		}

		d.logger.Debug("tjpeg: decoding planar YUV", slog.String("subsamp", s.String()))

		return d.engineErr(r.op, d.engine.DecodeYUV(src, r.bytes, r.flags))
	case destImage:
		if r.img == nil {
			return invalidArg(r.op)
		}

		return d.dispatchImage(r)
	}

	return fmt.Errorf("%w: unknown destination", ErrInternal)
}

// rowPitch resolves the output size of r and its pitch in elements, elemPerPixel elements
// per pixel. A zero pitch is replaced by the tight row length. The pitch must cover a row
// and pitch*height must not overflow.
func (d *Decompressor) rowPitch(r *request, elemPerPixel int) (w, h, pitch int, err error) {
	w, h, err = d.ScaledSize(r.desiredWidth, r.desiredHeight)
	if err != nil {
		return 0, 0, 0, err
	}

	rowLen := w * elemPerPixel
	pitch = r.pitch
	if pitch == 0 {
		pitch = rowLen
	}

	if pitch < rowLen {
		return 0, 0, 0, fmt.Errorf("%w: %s pitch %d below row length %d", ErrInvalidArgument, r.op, pitch, rowLen)
	}

	if pitch > math.MaxInt/h {
		return 0, 0, 0, fmt.Errorf("%w: %s pitch %d too large for %d rows", ErrInvalidArgument, r.op, pitch, h)
	}

	return w, h, pitch, nil
}

// checkRows makes sure a destination of n elements, elemPerPixel elements per pixel, holds
// the output of r at its pitch.
func (d *Decompressor) checkRows(r *request, n, elemPerPixel int) error {
	w, h, pitch, err := d.rowPitch(r, elemPerPixel)
	if err != nil {
		return err
	}

	if !checkBuffer(n, w*elemPerPixel, pitch, h) {
		return fmt.Errorf("%w: %s destination of %d holds less than %dx%d at pitch %d", ErrInvalidArgument, r.op, n, w, h, pitch)
	}

	d.logger.Debug("tjpeg: decoding",
		slog.String("op", r.op),
		slog.Int("width", w),
		slog.Int("height", h),
		slog.Int("pitch", pitch),
		slog.String("format", r.pf.String()))

	return nil
}

// dispatchImage decodes into r.img, whose bounds must be a size the engine can produce.
func (d *Decompressor) dispatchImage(r *request) error {
	b := r.img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return invalidArg(r.op)
	}

	w, h, err := d.ScaledSize(b.Dx(), b.Dy())
	if err != nil {
		return err
	}

	if w != b.Dx() || h != b.Dy() {
		return fmt.Errorf("%w: %dx%d is not a scaled size of %dx%d", ErrUnsupportedFormat, b.Dx(), b.Dy(), d.header.Width, d.header.Height)
	}

	l, err := layoutOf(r.img)
	if err != nil {
		return err
	}

	if l.ints != nil {
		return d.dispatch(&request{op: r.op, kind: destInts, ints: l.ints, desiredWidth: w, pitch: l.pitch, desiredHeight: h, pf: l.pf, flags: r.flags})
	}

	return d.dispatch(&request{op: r.op, kind: destBytes, bytes: l.pix, desiredWidth: w, pitch: l.pitch, desiredHeight: h, pf: l.pf, flags: r.flags})
}

func (d *Decompressor) engineErr(op string, err error) error {
	if err == nil {
		return nil
	}

	d.logger.Debug("tjpeg: engine failed", slog.String("op", op), slog.Any("error", err))

	return &CodecError{Op: op, Err: err}
}

// DecompressTo decodes the associated image into dst in format pf, scaled to the largest size
// within desiredWidth x desiredHeight (0 leaves an axis unconstrained). pitch is the number of
// bytes per row of dst, or 0 for scaledWidth*PixelSize(pf).
func (d *Decompressor) DecompressTo(dst []byte, desiredWidth, pitch, desiredHeight int, pf PixelFormat, flags Flags) error {
	return d.dispatch(&request{
		op:            "DecompressTo",
		kind:          destBytes,
		bytes:         dst,
		desiredWidth:  desiredWidth,
		pitch:         pitch,
		desiredHeight: desiredHeight,
		pf:            pf,
		flags:         flags,
	})
}

// Decompress is DecompressTo into a new buffer of pitch*scaledHeight bytes.
func (d *Decompressor) Decompress(desiredWidth, pitch, desiredHeight int, pf PixelFormat, flags Flags) ([]byte, error) {
	r := &request{
		op:            "Decompress",
		kind:          destBytes,
		desiredWidth:  desiredWidth,
		pitch:         pitch,
		desiredHeight: desiredHeight,
		pf:            pf,
		flags:         flags,
	}
	if err := d.check(r); err != nil {
		return nil, err
	}

	_, h, pitch, err := d.rowPitch(r, pixelSize[pf])
	if err != nil {
		return nil, err
	}

	r.pitch = pitch
	r.bytes = make([]byte, pitch*h)
	if err := d.dispatch(r); err != nil {
		return nil, err
	}

	return r.bytes, nil
}

// DecompressToInts decodes the associated image into dst as 32-bit pixels. pf must be a
// 4-byte format and pitch counts pixels, 0 meaning scaledWidth.
func (d *Decompressor) DecompressToInts(dst []uint32, desiredWidth, pitch, desiredHeight int, pf PixelFormat, flags Flags) error {
	return d.dispatch(&request{
		op:            "DecompressToInts",
		kind:          destInts,
		ints:          dst,
		desiredWidth:  desiredWidth,
		pitch:         pitch,
		desiredHeight: desiredHeight,
		pf:            pf,
		flags:         flags,
	})
}

// DecompressToYUV decodes the associated image at full size into dst as planar YUV without
// color conversion. dst must hold BufSizeYUV(width, height, subsamp) bytes.
func (d *Decompressor) DecompressToYUV(dst []byte, flags Flags) error {
	return d.dispatch(&request{op: "DecompressToYUV", kind: destYUV, bytes: dst, flags: flags})
}

// DecompressYUV is DecompressToYUV into a new buffer.
func (d *Decompressor) DecompressYUV(flags Flags) ([]byte, error) {
	r := &request{op: "DecompressYUV", kind: destYUV, flags: flags}
	if err := d.check(r); err != nil {
		return nil, err
	}

	s, err := d.Subsamp()
	if err != nil {
		return nil, err
	}

	r.bytes = make([]byte, BufSizeYUV(d.header.Width, d.header.Height, s))
	if err := d.dispatch(r); err != nil {
		return nil, err
	}

	return r.bytes, nil
}

// DecompressToImage decodes the associated image into dst. The bounds of dst must equal a
// scaled size the engine can produce, and dst must be an *image.RGBA, *image.NRGBA,
// *image.Gray or *PackedImage; anything else yields ErrUnsupportedFormat.
func (d *Decompressor) DecompressToImage(dst draw.Image, flags Flags) error {
	return d.dispatch(&request{op: "DecompressToImage", kind: destImage, img: dst, flags: flags})
}

// DecompressImage decodes the associated image into a new image of type it, scaled to the
// largest size within desiredWidth x desiredHeight.
func (d *Decompressor) DecompressImage(desiredWidth, desiredHeight int, it ImageType, flags Flags) (draw.Image, error) {
	r := &request{op: "DecompressImage", kind: destImage, flags: flags}
	if err := d.check(r); err != nil {
		return nil, err
	}

	if desiredWidth < 0 || desiredHeight < 0 || it < 0 || it >= numImageTypes {
		return nil, invalidArg(r.op)
	}

	w, h, err := d.ScaledSize(desiredWidth, desiredHeight)
	if err != nil {
		return nil, err
	}

	if r.img, err = newImage(it, w, h); err != nil {
		return nil, err
	}

	if err := d.dispatch(r); err != nil {
		return nil, err
	}

	return r.img, nil
}

// Close releases the engine. Closing a closed Decompressor does nothing.
func (d *Decompressor) Close() error {
	runtime.SetFinalizer(d, nil)

	return d.release()
}

func (d *Decompressor) release() error {
	if d.released {
		return nil
	}

	d.released = true
	e := d.engine
	d.engine = nil

	d.logger.Debug("tjpeg: releasing engine")

	if err := e.Close(); err != nil {
		return &CodecError{Op: "Close", Err: err}
	}

	return nil
}

// finalize releases an unreachable Decompressor that was never closed. Errors are logged and dropped.
func (d *Decompressor) finalize() {
	if err := d.release(); err != nil {
		d.logger.Debug("tjpeg: release in finalizer failed", slog.Any("error", err))
	}
}
