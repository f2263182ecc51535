package tjpeg

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

// TestYCbCrToRGBA verifies the correctness of the YCbCr to RGBA color conversion.
func TestYCbCrToRGBA(t *testing.T) {
	// These test cases are based on the standard JFIF conversion formulas.
	// A small tolerance is used to account for rounding differences in integer arithmetic.
	testCases := []struct {
		name      string
		in        color.YCbCr
		want      color.RGBA
		tolerance uint8
	}{
		{"Black", color.YCbCr{Y: 0, Cb: 128, Cr: 128}, color.RGBA{R: 0, G: 0, B: 0, A: 255}, 1},
		{"White", color.YCbCr{Y: 255, Cb: 128, Cr: 128}, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 1},
		{"Gray", color.YCbCr{Y: 128, Cb: 128, Cr: 128}, color.RGBA{R: 128, G: 128, B: 128, A: 255}, 1},
		{"Red", color.YCbCr{Y: 76, Cb: 84, Cr: 255}, color.RGBA{R: 255, G: 0, B: 0, A: 255}, 2},
		{"Green", color.YCbCr{Y: 149, Cb: 43, Cr: 21}, color.RGBA{R: 0, G: 255, B: 0, A: 255}, 2},
		{"Blue", color.YCbCr{Y: 29, Cb: 255, Cr: 107}, color.RGBA{R: 0, G: 0, B: 255, A: 255}, 2},
		{"Magenta", color.YCbCr{Y: 105, Cb: 212, Cr: 234}, color.RGBA{R: 255, G: 0, B: 255, A: 255}, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			const w, h = 1, 1
			y := &component{pixels: []byte{tc.in.Y}, stride: w}
			cb := &component{pixels: []byte{tc.in.Cb}, stride: w}
			cr := &component{pixels: []byte{tc.in.Cr}, stride: w}
			dst := make([]byte, w*h*4)

			yCbCrToRGBA(y, cb, cr, dst, w, h)

			got := color.RGBA{R: dst[0], G: dst[1], B: dst[2], A: dst[3]}
			if !isClose(got.R, tc.want.R, tc.tolerance) ||
				!isClose(got.G, tc.want.G, tc.tolerance) ||
				!isClose(got.B, tc.want.B, tc.tolerance) ||
				got.A != tc.want.A {
				t.Errorf("yCbCrToRGBA(%v) got RGBA%v, want close to RGBA%v", tc.in, got, tc.want)
			}
		})
	}
}

// TestRGBToRGBA verifies the conversion from separate R, G, B planes to an interleaved RGBA buffer.
func TestRGBToRGBA(t *testing.T) {
	const w, h = 2, 2
	r := &component{pixels: []byte{255, 10, 0, 20, 30, 0}, stride: 3}
	g := &component{pixels: []byte{0, 40, 0, 50, 60, 0}, stride: 3}
	b := &component{pixels: []byte{128, 70, 0, 80, 90, 0}, stride: 3}
	dst := make([]byte, w*h*4)

	want := []byte{
		255, 0, 128, 255, // Row 1, Pixel 1
		10, 40, 70, 255, // Row 1, Pixel 2
		20, 50, 80, 255, // Row 2, Pixel 1
		30, 60, 90, 255, // Row 2, Pixel 2
	}

	rgbToRGBA(r, g, b, dst, w, h)

	if !bytes.Equal(dst, want) {
		t.Errorf("rgbToRGBA failed.\nGot:  %v\nWant: %v", dst, want)
	}
}

func TestLuma(t *testing.T) {
	for _, c := range []color.RGBA{{0, 0, 0, 255}, {255, 255, 255, 255}, {255, 0, 0, 255}, {12, 200, 77, 255}, {90, 90, 91, 255}} {
		want := color.GrayModel.Convert(c).(color.Gray).Y
		if got := luma(c.R, c.G, c.B); got != want {
			t.Errorf("luma(%v) = %d, want %d", c, got, want)
		}
	}
}

func TestPackRow(t *testing.T) {
	rgba := &image.RGBA{Pix: []byte{10, 20, 30, 255, 40, 50, 60, 255}, Stride: 8, Rect: image.Rect(0, 0, 2, 1)}
	gray := &image.Gray{Pix: []byte{7, 9}, Stride: 2, Rect: image.Rect(0, 0, 2, 1)}

	tests := []struct {
		pf       PixelFormat
		fromRGBA []byte
		fromGray []byte
	}{
		{PixelRGB, []byte{10, 20, 30, 40, 50, 60}, []byte{7, 7, 7, 9, 9, 9}},
		{PixelBGR, []byte{30, 20, 10, 60, 50, 40}, []byte{7, 7, 7, 9, 9, 9}},
		{PixelRGBX, []byte{10, 20, 30, 255, 40, 50, 60, 255}, []byte{7, 7, 7, 255, 9, 9, 9, 255}},
		{PixelBGRX, []byte{30, 20, 10, 255, 60, 50, 40, 255}, []byte{7, 7, 7, 255, 9, 9, 9, 255}},
		{PixelXBGR, []byte{255, 30, 20, 10, 255, 60, 50, 40}, []byte{255, 7, 7, 7, 255, 9, 9, 9}},
		{PixelXRGB, []byte{255, 10, 20, 30, 255, 40, 50, 60}, []byte{255, 7, 7, 7, 255, 9, 9, 9}},
		{PixelGray, []byte{luma(10, 20, 30), luma(40, 50, 60)}, []byte{7, 9}},
		{PixelRGBA, []byte{10, 20, 30, 255, 40, 50, 60, 255}, []byte{7, 7, 7, 255, 9, 9, 9, 255}},
		{PixelBGRA, []byte{30, 20, 10, 255, 60, 50, 40, 255}, []byte{7, 7, 7, 255, 9, 9, 9, 255}},
		{PixelABGR, []byte{255, 30, 20, 10, 255, 60, 50, 40}, []byte{255, 7, 7, 7, 255, 9, 9, 9}},
		{PixelARGB, []byte{255, 10, 20, 30, 255, 40, 50, 60}, []byte{255, 7, 7, 7, 255, 9, 9, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.pf.String(), func(t *testing.T) {
			row := make([]byte, 2*PixelSize(tt.pf))

			packRow(rgba, 0, row, tt.pf)
			isEqual(t, row, tt.fromRGBA, "from RGBA")

			packRow(gray, 0, row, tt.pf)
			isEqual(t, row, tt.fromGray, "from Gray")
		})
	}
}

func TestPackPixelsPitchAndBottomUp(t *testing.T) {
	src := &image.Gray{Pix: []byte{1, 2, 3, 4, 5, 6}, Stride: 2, Rect: image.Rect(0, 0, 2, 3)}

	dst := make([]byte, 4*3)
	packPixels(src, dst, 4, PixelGray, 0)
	isEqual(t, dst, []byte{1, 2, 0, 0, 3, 4, 0, 0, 5, 6, 0, 0}, "top-down")

	dst = make([]byte, 4*3)
	packPixels(src, dst, 4, PixelGray, FlagBottomUp)
	isEqual(t, dst, []byte{5, 6, 0, 0, 3, 4, 0, 0, 1, 2, 0, 0}, "bottom-up")
}

func TestPackInts(t *testing.T) {
	src := &image.RGBA{Pix: []byte{0x11, 0x22, 0x33, 255, 0x44, 0x55, 0x66, 255}, Stride: 8, Rect: image.Rect(0, 0, 2, 1)}

	tests := []struct {
		pf   PixelFormat
		want [2]uint32
	}{
		{PixelBGRX, [2]uint32{0xFF112233, 0xFF445566}},
		{PixelRGBX, [2]uint32{0xFF332211, 0xFF665544}},
		{PixelBGRA, [2]uint32{0xFF112233, 0xFF445566}},
		{PixelXRGB, [2]uint32{0x332211FF, 0x665544FF}},
	}

	for _, tt := range tests {
		dst := make([]uint32, 3)
		packInts(src, dst, 3, tt.pf, 0)

		if dst[0] != tt.want[0] || dst[1] != tt.want[1] || dst[2] != 0 {
			t.Errorf("%s: got %#x, want %#x", tt.pf, dst, tt.want)
		}
	}
}

func TestPackPixelsNormalizes(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	dst := make([]byte, 3)
	packPixels(src, dst, 3, PixelRGB, 0)
	isEqual(t, dst, []byte{200, 100, 50}, "NRGBA source")
}

func TestCheckBuffer(t *testing.T) {
	tests := []struct {
		n, rowLen, pitch, height int
		want                     bool
	}{
		{7500, 150, 150, 50, true},
		{7499, 150, 150, 50, false},
		{160*49 + 150, 150, 160, 50, true},
		{8000, 150, 149, 50, false},
		{3, 3, 3, 1, true},
		{2, 3, 3, 1, false},
		{30000, 300, 1 << 62, 100, false},
		{30000, 300, 1 << 62, 1, true},
	}

	for _, tt := range tests {
		if got := checkBuffer(tt.n, tt.rowLen, tt.pitch, tt.height); got != tt.want {
			t.Errorf("checkBuffer(%d, %d, %d, %d) = %v, want %v", tt.n, tt.rowLen, tt.pitch, tt.height, got, tt.want)
		}
	}
}

func TestBufSizeYUV(t *testing.T) {
	tests := []struct {
		w, h int
		s    Subsampling
		want int
	}{
		{35, 21, Subsamp420, 36*22 + 2*20*11},
		{35, 21, SubsampGray, 36 * 21},
		{10, 10, Subsamp444, 12*10 + 2*12*10},
		{10, 10, Subsamp422, 12*10 + 2*8*10},
		{10, 10, Subsamp440, 12*10 + 2*12*5},
		{10, 10, Subsamp411, 12*10 + 2*4*10},
		{16, 16, Subsamp420, 16*16 + 2*8*8},
		{1, 1, Subsamp420, 4*2 + 2*4*1},
		{0, 10, Subsamp420, 0},
		{10, 10, NumSubsamp, 0},
		{10, 10, -1, 0},
	}

	for _, tt := range tests {
		if got := BufSizeYUV(tt.w, tt.h, tt.s); got != tt.want {
			t.Errorf("BufSizeYUV(%d, %d, %v) = %d, want %d", tt.w, tt.h, tt.s, got, tt.want)
		}
	}
}

func TestWriteYUV(t *testing.T) {
	// A 3x2 4:2:0 image decoded into 16x16 MCU planes: Y 3x2 padded to 4x2, chroma 2x1 padded to 4x1.
	y := []byte{
		1, 2, 3, 0,
		4, 5, 6, 0,
	}
	cb := []byte{7, 0}
	cr := []byte{9, 0}

	dst := make([]byte, BufSizeYUV(3, 2, Subsamp420))
	writeYUV(dst, 3, 2, Subsamp420, [3][]byte{y, cb, cr}, [3]int{4, 2, 2}, [3]int{2, 1, 1})

	want := []byte{
		1, 2, 3, 0, 4, 5, 6, 0, // Y
		7, 0, 0, 0, // U
		9, 0, 0, 0, // V
	}
	isEqual(t, dst, want, "4:2:0")
}

func TestCopyPlaneReplicatesEdges(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	dst := make([]byte, 3*3)

	copyPlane(dst, 3, 3, src, 2, 2)
	isEqual(t, dst, []byte{1, 2, 2, 3, 4, 4, 3, 4, 4}, "replicated")
}
