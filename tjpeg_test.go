package tjpeg

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"strings"
	"testing"
)

// addFuzzCorpus seeds f with generated baseline images and a few malformed streams.
func addFuzzCorpus(f *testing.F) {
	f.Helper()

	f.Add(encodeJPEG(f, gradientRGBA(32, 24), 75))
	f.Add(encodeJPEG(f, gradientRGBA(13, 17), 90))
	f.Add(encodeJPEG(f, gradientGray(16, 16), 50))
	f.Add(withOrientation(encodeJPEG(f, gradientRGBA(8, 8), 75), 6))
	f.Add([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	f.Add([]byte{})
}

func TestDecode(t *testing.T) {
	src := gradientRGBA(64, 48)
	data := encodeJPEG(t, src, 95)

	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	m, ok := img.(*image.RGBA)
	if !ok {
		t.Fatalf("got %T, want *image.RGBA", img)
	}

	if m.Bounds() != src.Bounds() {
		t.Fatalf("got bounds %v, want %v", m.Bounds(), src.Bounds())
	}

	ref := stdDecode(t, data)
	for _, p := range []image.Point{{0, 0}, {32, 24}, {63, 47}, {10, 40}} {
		r0, g0, b0, _ := ref.At(p.X, p.Y).RGBA()
		c := m.RGBAAt(p.X, p.Y)

		if !isClose(c.R, uint8(r0>>8), 10) || !isClose(c.G, uint8(g0>>8), 10) || !isClose(c.B, uint8(b0>>8), 10) {
			t.Errorf("pixel %v: got %v, want about (%d, %d, %d)", p, c, r0>>8, g0>>8, b0>>8)
		}

		if c.A != 0xFF {
			t.Errorf("pixel %v: alpha %d", p, c.A)
		}
	}
}

func TestDecodeGray(t *testing.T) {
	data := encodeJPEG(t, gradientGray(40, 30), 90)

	img, err := Decode(bytes.NewReader(data), &Options{FastUpsample: true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if _, ok := img.(*image.Gray); !ok {
		t.Fatalf("got %T, want *image.Gray", img)
	}

	if img.Bounds() != image.Rect(0, 0, 40, 30) {
		t.Errorf("got bounds %v", img.Bounds())
	}
}

func TestDecodeMaxSize(t *testing.T) {
	data := encodeJPEG(t, gradientRGBA(100, 80), 90)

	tests := []struct {
		maxW, maxH int
		want       image.Rectangle
	}{
		{0, 0, image.Rect(0, 0, 100, 80)},
		{100, 80, image.Rect(0, 0, 100, 80)},
		{99, 0, image.Rect(0, 0, 50, 40)},
		{30, 0, image.Rect(0, 0, 25, 20)},
		{0, 10, image.Rect(0, 0, 13, 10)},
	}

	for _, tt := range tests {
		img, err := Decode(bytes.NewReader(data), &Options{MaxWidth: tt.maxW, MaxHeight: tt.maxH})
		if err != nil {
			t.Fatalf("Decode(max %dx%d): %v", tt.maxW, tt.maxH, err)
		}

		if img.Bounds() != tt.want {
			t.Errorf("Decode(max %dx%d): got %v, want %v", tt.maxW, tt.maxH, img.Bounds(), tt.want)
		}
	}

	if _, err := Decode(bytes.NewReader(data), &Options{MaxWidth: 5}); !errors.Is(err, ErrUnsatisfiableScale) {
		t.Errorf("max width 5: got %v, want ErrUnsatisfiableScale", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(bytes.NewReader(nil)); !errors.Is(err, ErrNoJPEG) {
		t.Errorf("empty input: got %v, want ErrNoJPEG", err)
	}

	if _, err := Decode(strings.NewReader("GIF89a")); !errors.Is(err, ErrNoJPEG) {
		t.Errorf("GIF header: got %v, want ErrNoJPEG", err)
	}

	if _, err := Decode(bytes.NewReader([]byte{0xFF, 0xD8, 0xFF, 0xD9})); !errors.Is(err, ErrNativeFailure) {
		t.Errorf("empty JPEG: got %v, want ErrNativeFailure", err)
	}
}

func TestDecodeLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	data := encodeJPEG(t, gradientRGBA(32, 32), 90)
	if _, err := Decode(bytes.NewReader(data), &Options{Logger: logger, MaxWidth: 16}); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"header parsed", "width=32", "decoding", "width=16", "releasing engine"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output lacks %q:\n%s", want, out)
		}
	}
}

func TestDecodeConfig(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		w, h int
		cm   color.Model
	}{
		{"color", encodeJPEG(t, gradientRGBA(37, 23), 75), 37, 23, color.YCbCrModel},
		{"gray", encodeJPEG(t, gradientGray(16, 9), 75), 16, 9, color.GrayModel},
		{"rotated", withOrientation(encodeJPEG(t, gradientRGBA(20, 10), 75), 6), 20, 10, color.YCbCrModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := DecodeConfig(bytes.NewReader(tt.data))
			if err != nil {
				t.Fatalf("DecodeConfig: %v", err)
			}

			if cfg.Width != tt.w || cfg.Height != tt.h || cfg.ColorModel != tt.cm {
				t.Errorf("got %dx%d %v, want %dx%d %v", cfg.Width, cfg.Height, cfg.ColorModel, tt.w, tt.h, tt.cm)
			}
		})
	}

	if _, err := DecodeConfig(bytes.NewReader(nil)); !errors.Is(err, ErrNoJPEG) {
		t.Errorf("empty input: got %v, want ErrNoJPEG", err)
	}
}

// FuzzDecode tests the Decode function for panics with a variety of inputs.
func FuzzDecode(f *testing.F) {
	addFuzzCorpus(f)

	optsNN := &Options{FastUpsample: true}
	optsScaled := &Options{MaxWidth: 8, MaxHeight: 8, AutoRotate: true}

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = Decode(bytes.NewReader(data))
		_, _ = Decode(bytes.NewReader(data), optsNN)
		_, _ = Decode(bytes.NewReader(data), optsScaled)
	})
}

// FuzzDecodeConfig tests the DecodeConfig function for panics.
func FuzzDecodeConfig(f *testing.F) {
	addFuzzCorpus(f)

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = DecodeConfig(bytes.NewReader(data))
	})
}

// FuzzDecompressor drives the validator and engine with arbitrary streams and sizes.
func FuzzDecompressor(f *testing.F) {
	addFuzzCorpus(f)

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) == 0 {
			return
		}

		d, err := NewDecompressorFromBuffer(data, len(data))
		if err != nil {
			return
		}
		defer d.Close()

		w, _ := d.Width()
		h, _ := d.Height()
		if w*h > 1<<20 {
			return
		}

		_, _ = d.Decompress(w/3, 0, h/3, PixelBGRA, FlagBottomUp)
		_, _ = d.DecompressYUV(0)
		_, _ = d.DecompressImage(0, 0, ImageIntARGB, FlagFastUpsample)
	})
}
