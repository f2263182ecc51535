// Command tjdecomp decompresses a JPEG file, optionally scaled down, to PPM/PGM, PNG,
// raw interleaved pixels or planar YUV.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/gen2brain/tjpeg"
)

type options struct {
	jpegPath     string
	outPath      string
	width        int
	height       int
	format       tjpeg.PixelFormat
	yuv          bool
	bottomUp     bool
	fastUpsample bool
	zstd         bool
	verbose      bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "tjdecomp: %v\n", err)
		os.Exit(2)
	}

	if err := run(opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "tjdecomp: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("tjdecomp", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: tjdecomp [flags] <jpeg>\n")
		fs.PrintDefaults()
	}

	fs.IntVar(&opts.width, "width", 0, "Maximum output width, 0 for the source width")
	fs.IntVar(&opts.height, "height", 0, "Maximum output height, 0 for the source height")
	format := fs.String("format", "rgb", "Pixel format: rgb, bgr, rgbx, bgrx, xbgr, xrgb, gray, rgba, bgra, abgr, argb")
	fs.BoolVar(&opts.yuv, "yuv", false, "Write full-size planar YUV instead of pixels")
	fs.BoolVar(&opts.bottomUp, "bottomup", false, "Store rows bottom-up (raw pixel formats only)")
	fs.BoolVar(&opts.fastUpsample, "fastupsample", false, "Use nearest-neighbour chroma upsampling")
	fs.StringVar(&opts.outPath, "o", "-", "Output file, - for stdout; a .png name writes PNG")
	fs.BoolVar(&opts.zstd, "zstd", false, "Compress the output with zstd")
	fs.BoolVar(&opts.verbose, "v", false, "Log decoding steps to stderr")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if fs.NArg() != 1 {
		fs.Usage()

		return options{}, fmt.Errorf("missing jpeg path")
	}

	if opts.width < 0 || opts.height < 0 {
		return options{}, fmt.Errorf("negative output size %dx%d", opts.width, opts.height)
	}

	pf, err := tjpeg.ParsePixelFormat(*format)
	if err != nil {
		return options{}, err
	}

	opts.jpegPath = fs.Arg(0)
	opts.format = pf

	if err := opts.validate(); err != nil {
		return options{}, err
	}

	return opts, nil
}

// isPNG reports whether the output is written as PNG.
func (o options) isPNG() bool {
	return strings.HasSuffix(strings.ToLower(o.outPath), ".png")
}

// validate rejects flag combinations the output format cannot represent.
func (o options) validate() error {
	if !o.bottomUp || o.yuv {
		return nil
	}

	if o.isPNG() {
		return fmt.Errorf("-bottomup cannot be written as PNG")
	}

	if o.format == tjpeg.PixelRGB || o.format == tjpeg.PixelGray {
		return fmt.Errorf("-bottomup cannot be written as PPM/PGM; pick another -format for raw output")
	}

	return nil
}

func run(opts options, stdout, stderr io.Writer) (err error) {
	if err := opts.validate(); err != nil {
		return err
	}

	data, err := os.ReadFile(opts.jpegPath)
	if err != nil {
		return fmt.Errorf("read jpeg: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.verbose {
		logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	dc, err := tjpeg.NewDecompressorFromBuffer(data, len(data), &tjpeg.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("open jpeg: %w", err)
	}
	defer dc.Close()

	var out io.Writer = stdout
	if opts.outPath != "-" {
		f, ferr := os.Create(opts.outPath)
		if ferr != nil {
			return fmt.Errorf("create output: %w", ferr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close output: %w", cerr)
			}
		}()

		out = f
	}

	bw := bufio.NewWriter(out)
	out = bw

	var enc *zstd.Encoder
	if opts.zstd {
		enc, err = zstd.NewWriter(bw, zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}

		out = enc
	}

	if err := write(out, dc, opts); err != nil {
		if enc != nil {
			_ = enc.Close()
		}

		return err
	}

	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
	}

	return bw.Flush()
}

// write decodes dc and writes it in the format opts selects.
func write(w io.Writer, dc *tjpeg.Decompressor, opts options) error {
	var flags tjpeg.Flags
	if opts.bottomUp {
		flags |= tjpeg.FlagBottomUp
	}

	if opts.fastUpsample {
		flags |= tjpeg.FlagFastUpsample
	}

	if opts.yuv {
		buf, err := dc.DecompressYUV(flags)
		if err != nil {
			return fmt.Errorf("decompress YUV: %w", err)
		}

		_, err = w.Write(buf)

		return err
	}

	if opts.isPNG() {
		it := tjpeg.ImageRGBA
		if opts.format == tjpeg.PixelGray {
			it = tjpeg.ImageGray
		}

		img, err := dc.DecompressImage(opts.width, opts.height, it, flags)
		if err != nil {
			return fmt.Errorf("decompress: %w", err)
		}

		return png.Encode(w, img)
	}

	sw, sh, err := dc.ScaledSize(opts.width, opts.height)
	if err != nil {
		return err
	}

	buf, err := dc.Decompress(opts.width, 0, opts.height, opts.format, flags)
	if err != nil {
		return fmt.Errorf("decompress: %w", err)
	}

	switch opts.format {
	case tjpeg.PixelRGB:
		if _, err := fmt.Fprintf(w, "P6\n%d %d\n255\n", sw, sh); err != nil {
			return err
		}
	case tjpeg.PixelGray:
		if _, err := fmt.Fprintf(w, "P5\n%d %d\n255\n", sw, sh); err != nil {
			return err
		}
	}

	_, err = w.Write(buf)

	return err
}
