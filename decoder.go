package tjpeg

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
)

// vlcCode represents a single entry in the pre-calculated Huffman lookup table.
// It stores the number of bits for the code and the decoded value.
type vlcCode struct {
	bits, code uint8
}

// component stores information about a single color component (e.g., Y, Cb, or Cr).
type component struct {
	id                 int    // Component identifier (e.g., 1 for Y, 2 for Cb, 3 for Cr).
	ssX, ssY           int    // Subsampling factors for X and Y axes.
	width, height      int    // Dimensions of this component in pixels, after scaling.
	stride             int    // The number of bytes from one row of pixels to the next.
	qtSel              int    // Quantization table selector.
	acTabSel, dcTabSel int    // Huffman table selectors for AC and DC coefficients.
	dcPred             int    // DC prediction value for differential coding.
	pixels             []byte // Decoded pixel data for this component.
}

// decoder holds the state of the JPEG decoding process.
type decoder struct {
	jpegData          []byte             // Input buffer containing the entire JPEG file.
	pos               int                // Current position index in the input buffer.
	size              int                // Remaining bytes to be processed.
	length            int                // Length of the current marker segment.
	width, height     int                // Dimensions of the image as stored in the frame header.
	outWidth          int                // Width of the output image after scaling.
	outHeight         int                // Height of the output image after scaling.
	scaleDenom        int                // IDCT scale denominator: 1, 2, 4 or 8.
	mbWidth, mbHeight int                // Dimensions of the image in MCU (Minimum Coded Unit) blocks.
	mbSizeX, mbSizeY  int                // Dimensions of a single MCU in pixels.
	ncomp             int                // Number of color components (1 for grayscale, 3 for color).
	comp              [3]component       // Array to hold data for each color component.
	qtUsed, qtAvail   int                // Bitmasks tracking used and available quantization tables.
	qtab              [4]*[64]uint8      // Pointers for pooling.
	vlcTab            [4]*[65536]vlcCode // Pointers for pooling.
	buf               uint64             // Bit buffer.
	bufBits           int                // Number of valid bits in the bit buffer.
	block             [64]int32          // Temporary storage for a single 8x8 block of DCT coefficients.
	rstInterval       int                // Restart interval in MCUs, for error resilience.
	subsamp           Subsampling        // The detected chroma subsampling scheme.
	isRGB             bool               // True if the image is encoded as RGB instead of YCbCr.
	orientation       int                // EXIF orientation tag (1-8).
	scanned           bool               // True once the scan data has been decoded.
	logger            *slog.Logger
}

// errDecode is used for internal panics during the hot decoding path.
type errDecode struct{ error }

// newDecoder creates a new decoder instance and allocates the large tables.
func newDecoder() *decoder {
	d := new(decoder)
	for i := 0; i < 4; i++ {
		d.qtab[i] = new([64]uint8)
		d.vlcTab[i] = new([65536]vlcCode)
	}

	return d
}

// reset clears the decoder state for reuse, preserving the allocated tables.
func (d *decoder) reset() {
	// Save pointers to the tables.
	vlcTmp := d.vlcTab
	qtabTmp := d.qtab

	// Zero the struct. This clears references (jpegData, pixels, etc.) allowing GC, and resets all state variables.
	*d = decoder{}

	// Restore pointers to the tables.
	d.vlcTab = vlcTmp
	d.qtab = qtabTmp
}

// panic triggers an internal panic to signal a decoding error in the hot path.
func (d *decoder) panic(err error) {
	panic(errDecode{err})
}

// log returns the logger to use, never nil.
func (d *decoder) log() *slog.Logger {
	if d.logger == nil {
		return discardLogger
	}

	return d.logger
}

// zz is the zigzag ordering table. It maps the 1D order of coefficients in the JPEG stream to their 2D position in an 8x8 block.
var zz = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10, 17, 24, 32, 25, 18,
	11, 4, 5, 12, 19, 26, 33, 40, 48, 41, 34, 27, 20, 13, 6, 7, 14, 21, 28, 35,
	42, 49, 56, 57, 50, 43, 36, 29, 22, 15, 23, 30, 37, 44, 51, 58, 59, 52, 45,
	38, 31, 39, 46, 53, 60, 61, 54, 47, 55, 62, 63,
}

// clamp clamps an int32 value to the valid 8-bit pixel range [0, 255].
func clamp(x int32) byte {
	if x < 0 {
		return 0
	}

	if x > 255 {
		return 255
	}

	return byte(x)
}

// skip advances the current position in the jpegData buffer by 'count' bytes.
func (d *decoder) skip(count int) error {
	d.pos += count
	d.size -= count

	if d.length >= count {
		d.length -= count
	} else {
		d.length = 0
	}

	if d.size < 0 {
		return ErrSyntax
	}

	return nil
}

// decode16 reads a 16-bit big-endian integer from the specified offset.
func (d *decoder) decode16(offset int) int {
	p := d.pos + offset

	return (int(d.jpegData[p]) << 8) | int(d.jpegData[p+1])
}

// decodeLength reads the 16-bit length field of a JPEG marker segment and updates the decoder's internal length counter.
func (d *decoder) decodeLength() error {
	if d.size < 2 {
		return ErrSyntax
	}

	d.length = d.decode16(0)
	if d.length > d.size {
		return ErrSyntax
	}

	if d.length < 2 {
		return ErrSyntax // Length must include its own 2 bytes.
	}

	// Skip the 2 bytes of the length field itself.
	// d.length will now hold the size of the remaining payload.
	return d.skip(2)
}

// skipMarker reads the length of the current marker's payload and skips it.
func (d *decoder) skipMarker() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	return d.skip(d.length)
}

// Marker Decoders

// decodeAPP1 decodes the APP1 marker segment and picks the orientation tag out of EXIF data.
func (d *decoder) decodeAPP1() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	// Check for "Exif\0\0" signature (6 bytes).
	if d.length >= 6 &&
		d.jpegData[d.pos+0] == 'E' &&
		d.jpegData[d.pos+1] == 'x' &&
		d.jpegData[d.pos+2] == 'i' &&
		d.jpegData[d.pos+3] == 'f' &&
		d.jpegData[d.pos+4] == 0 &&
		d.jpegData[d.pos+5] == 0 {

		// Start parsing TIFF header inside EXIF payload, starting after the 6-byte signature.
		if o := parseOrientation(d.jpegData[d.pos+6 : d.pos+d.length]); o != 0 {
			d.orientation = o
		}
	}

	return d.skip(d.length)
}

// decodeAPP14 decodes the APP14 "Adobe" marker segment, which specifies the color space transformation.
func (d *decoder) decodeAPP14() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	// Check for the "Adobe" signature.
	if d.length >= 12 &&
		d.jpegData[d.pos+0] == 'A' &&
		d.jpegData[d.pos+1] == 'd' &&
		d.jpegData[d.pos+2] == 'o' &&
		d.jpegData[d.pos+3] == 'b' &&
		d.jpegData[d.pos+4] == 'e' {

		// The colorTransform byte is at offset 11.
		// 0: RGB (or Grayscale for 1-component)
		// 1: YCbCr
		// 2: YCCK
		colorTransform := d.jpegData[d.pos+11]
		if colorTransform == 0 {
			d.isRGB = true
		}
	}

	return d.skip(d.length)
}

// decodeSOF decodes the Start of Frame segment. It extracts image dimensions,
// number of components, and component-specific information like subsampling factors.
// If headerOnly is true, it doesn't validate decodability or allocate pixel memory.
func (d *decoder) decodeSOF(headerOnly bool) error {
	ssxMax, ssyMax := 0, 0
	if err := d.decodeLength(); err != nil {
		return err
	}

	if d.length < 9 {
		return ErrSyntax
	}

	precision := d.jpegData[d.pos]
	d.height = d.decode16(1)
	d.width = d.decode16(3)
	if d.width == 0 || d.height == 0 {
		return ErrSyntax
	}

	d.ncomp = int(d.jpegData[d.pos+5])
	if err := d.skip(6); err != nil {
		return err
	}

	if d.length < (d.ncomp * 3) {
		return ErrSyntax
	}

	if headerOnly && d.ncomp != 1 && d.ncomp != 3 {
		// CMYK and other layouts have no subsampling scheme in the table.
		d.subsamp = NumSubsamp

		return d.skip(d.length)
	}

	if !headerOnly && precision != 8 {
		return ErrUnsupported // Precision must be 8-bit.
	}

	switch d.ncomp {
	case 1, 3: // Grayscale or YCbCr/RGB
	default:
		return ErrUnsupported
	}

	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		c.id = int(d.jpegData[d.pos])

		c.ssX = int(d.jpegData[d.pos+1]) >> 4
		if c.ssX == 0 || (c.ssX&(c.ssX-1)) != 0 {
			return ErrUnsupported // Subsampling factor must be a power of two.
		}

		c.ssY = int(d.jpegData[d.pos+1]) & 15
		if c.ssY == 0 || (c.ssY&(c.ssY-1)) != 0 {
			return ErrUnsupported // Subsampling factor must be a power of two.
		}

		c.qtSel = int(d.jpegData[d.pos+2])
		if (c.qtSel & 0xFC) != 0 {
			return ErrSyntax
		}

		if err := d.skip(3); err != nil {
			return err
		}

		d.qtUsed |= 1 << c.qtSel
		if c.ssX > ssxMax {
			ssxMax = c.ssX
		}

		if c.ssY > ssyMax {
			ssyMax = c.ssY
		}
	}

	if d.ncomp == 1 {
		c := &d.comp[0]
		c.ssX, c.ssY = 1, 1
		ssxMax, ssyMax = 1, 1
		d.subsamp = SubsampGray
	} else {
		// Check for RGB component IDs as a fallback to APP14 marker.
		if d.comp[0].id == 'R' && d.comp[1].id == 'G' && d.comp[2].id == 'B' {
			d.isRGB = true
		}

		d.subsamp = subsampFromFactors(&d.comp[0], &d.comp[1], &d.comp[2])
		if d.isRGB && d.subsamp != Subsamp444 {
			return ErrUnsupported
		}
	}

	// Calculate MCU dimensions and image dimensions in MCUs.
	d.mbSizeX = ssxMax << 3
	d.mbSizeY = ssyMax << 3
	d.mbWidth = (d.width + d.mbSizeX - 1) / d.mbSizeX
	d.mbHeight = (d.height + d.mbSizeY - 1) / d.mbSizeY

	if headerOnly {
		return d.skip(d.length)
	}

	if d.subsamp == NumSubsamp && !d.isRGB {
		// Layouts such as 4:1:0 still decode; only the planar YUV path needs a known scheme.
		d.log().Debug("tjpeg: unlisted subsampling",
			slog.String("factors", fmt.Sprintf("Y:%dx%d Cb:%dx%d Cr:%dx%d",
				d.comp[0].ssX, d.comp[0].ssY, d.comp[1].ssX, d.comp[1].ssY, d.comp[2].ssX, d.comp[2].ssY)))
	}

	// Output and per-component dimensions account for the IDCT scale.
	bs := 8 / d.scaleDenom
	d.outWidth = (d.width + d.scaleDenom - 1) / d.scaleDenom
	d.outHeight = (d.height + d.scaleDenom - 1) / d.scaleDenom

	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		c.width = (d.outWidth*c.ssX + ssxMax - 1) / ssxMax
		c.height = (d.outHeight*c.ssY + ssyMax - 1) / ssyMax
		c.stride = d.mbWidth * c.ssX * bs

		pixelSize := c.stride * d.mbHeight * c.ssY * bs
		if pixelSize <= 0 {
			return ErrOutOfMemory
		}

		c.pixels = make([]byte, pixelSize)
	}

	if d.length > 0 {
		return d.skip(d.length)
	}

	return nil
}

// subsampFromFactors maps per-component sampling factors to a Subsampling.
// It returns NumSubsamp for layouts outside the table.
func subsampFromFactors(y, cb, cr *component) Subsampling {
	if cb.ssX != 1 || cb.ssY != 1 || cr.ssX != 1 || cr.ssY != 1 {
		return NumSubsamp
	}

	switch {
	case y.ssX == 1 && y.ssY == 1:
		return Subsamp444
	case y.ssX == 2 && y.ssY == 1:
		return Subsamp422
	case y.ssX == 2 && y.ssY == 2:
		return Subsamp420
	case y.ssX == 1 && y.ssY == 2:
		return Subsamp440
	case y.ssX == 4 && y.ssY == 1:
		return Subsamp411
	}

	return NumSubsamp
}

// decodeDHT decodes the Define Huffman Table segment. It parses Huffman table
// specifications and builds fast lookup tables for entropy decoding.
func (d *decoder) decodeDHT() error {
	var counts [16]uint8
	if err := d.decodeLength(); err != nil {
		return err
	}

	for d.length >= 17 {
		i := int(d.jpegData[d.pos])
		if (i & 0xEC) != 0 {
			return ErrSyntax
		}

		if (i & 0x02) != 0 {
			// Baseline streams use table slots 0 and 1 only.
			return ErrUnsupported
		}

		i = (i | (i >> 3)) & 3 // Table index: 0-1 for DC, 2-3 for AC.

		// Read counts of codes for each length (1-16 bits).
		for codeLen := 1; codeLen <= 16; codeLen++ {
			counts[codeLen-1] = d.jpegData[d.pos+codeLen]
		}

		if err := d.skip(17); err != nil {
			return err
		}

		var n int
		for _, num := range counts {
			n += int(num)
		}

		if n > 256 || n > d.length {
			return ErrSyntax
		}

		// Build the lookup table using canonical Huffman codes.
		vlc := d.vlcTab[i]

		// Pooling: Clear the table before filling it.
		*vlc = [65536]vlcCode{}

		var huffCode uint32
		valueIdx := 0

		for codeLen := 1; codeLen <= 16; codeLen++ {
			numCodes := int(counts[codeLen-1])
			for k := 0; k < numCodes; k++ {
				huffVal := d.jpegData[d.pos+valueIdx]
				valueIdx++
				shift := 16 - codeLen
				numEntries := 1 << shift
				baseIndex := huffCode << shift

				for j := 0; j < numEntries; j++ {
					index := baseIndex + uint32(j)
					if index < 65536 {
						vlc[index].bits = uint8(codeLen)
						vlc[index].code = huffVal
					}
				}

				huffCode++
			}

			huffCode <<= 1
		}

		if err := d.skip(n); err != nil {
			return err
		}
	}

	if d.length != 0 {
		return ErrSyntax
	}

	return nil
}

// decodeDQT decodes the Define Quantization Table segment. It parses and stores
// the 8x8 quantization matrices used for dequantizing DCT coefficients.
func (d *decoder) decodeDQT() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	for d.length >= 65 {
		i := int(d.jpegData[d.pos])
		if (i & 0xFC) != 0 {
			// 16-bit tables (Pq=1) only appear in extended streams.
			if i&0xF0 != 0 {
				return ErrUnsupported
			}

			return ErrSyntax
		}

		d.qtAvail |= 1 << i
		t := d.qtab[i]

		for j := 0; j < 64; j++ {
			t[j] = d.jpegData[d.pos+j+1]
		}

		if err := d.skip(65); err != nil {
			return err
		}
	}

	if d.length != 0 {
		return ErrSyntax
	}

	return nil
}

// decodeDRI decodes the Define Restart Interval segment. This specifies how often
// restart markers are embedded in the scan data for error resilience.
func (d *decoder) decodeDRI() error {
	if err := d.decodeLength(); err != nil {
		return err
	}

	if d.length < 2 {
		return ErrSyntax
	}

	d.rstInterval = d.decode16(0)

	return d.skip(d.length)
}

// parse walks the marker segments of jpegData. With headerOnly set it returns as soon as
// the frame header has been read and accepts any SOF type; otherwise it decodes the scan.
func (d *decoder) parse(jpegData []byte, headerOnly bool) error {
	d.jpegData = jpegData
	d.pos = 0
	d.size = len(jpegData)
	d.orientation = 1 // Default orientation (Top-Left)
	if d.scaleDenom == 0 {
		d.scaleDenom = 1
	}

	// Check for SOI (Start of Image) marker.
	if d.size < 2 || d.jpegData[0] != 0xFF || d.jpegData[1] != 0xD8 {
		return ErrNoJPEG
	}

	if err := d.skip(2); err != nil {
		return err
	}

	var sofDecoded bool

markerLoop:
	for {
		if d.size < 2 {
			break markerLoop
		}

		if d.jpegData[d.pos] != 0xFF {
			return ErrSyntax
		}

		marker := d.jpegData[d.pos+1]
		if err := d.skip(2); err != nil {
			return err
		}

		switch {
		case marker == 0xC0 || (headerOnly && isSOF(marker)): // SOF0 (Baseline DCT)
			if err := d.decodeSOF(headerOnly); err != nil {
				return err
			}

			d.log().Debug("tjpeg: SOF parsed",
				slog.Int("marker", int(marker)),
				slog.Int("width", d.width),
				slog.Int("height", d.height),
				slog.Int("components", d.ncomp))

			sofDecoded = true
			if headerOnly {
				break markerLoop
			}
		case marker == 0xC4: // DHT (Define Huffman Table)
			if headerOnly {
				if err := d.skipMarker(); err != nil {
					return err
				}

				continue
			}

			if err := d.decodeDHT(); err != nil {
				return err
			}
		case marker == 0xDB: // DQT (Define Quantization Table)
			if headerOnly {
				if err := d.skipMarker(); err != nil {
					return err
				}

				continue
			}

			if err := d.decodeDQT(); err != nil {
				return err
			}
		case marker == 0xDD: // DRI (Define Restart Interval)
			if err := d.decodeDRI(); err != nil {
				return err
			}
		case marker == 0xDA: // SOS (Start of Scan)
			if !sofDecoded {
				return ErrSyntax // Scan data found before SOF.
			}

			if err := d.decodeScan(); err != nil {
				// The entropy decoder may read ahead into a valid EOI marker and report a syntax error.
				if errors.Is(err, ErrSyntax) && d.size >= 0 && d.pos < len(d.jpegData)-1 && d.jpegData[d.pos] == 0xFF && d.jpegData[d.pos+1] == 0xD9 {
					d.scanned = true

					break markerLoop
				}

				return err
			}

			d.scanned = true

			break markerLoop
		case marker == 0xFE: // COM (Comment)
			if err := d.skipMarker(); err != nil {
				return err
			}
		case marker == 0xD9: // EOI (End of Image)
			break markerLoop
		case marker == 0xE1: // APP1 (EXIF)
			if err := d.decodeAPP1(); err != nil {
				return err
			}
		case marker == 0xEE: // APP14 (Adobe)
			if err := d.decodeAPP14(); err != nil {
				return err
			}
		case marker >= 0xE0 && marker <= 0xEF: // Other APPn markers, e.g. JFIF
			if err := d.skipMarker(); err != nil {
				return err
			}
		case marker >= 0xD0 && marker <= 0xD7:
			// RSTn outside a scan carries no payload.
		case marker == 0xFF:
			// Fill byte before a marker. Step back so the next iteration sees 0xFF again.
			d.pos--
			d.size++
		default:
			// Progressive, lossless, arithmetic-coded and hierarchical frames.
			return ErrUnsupported
		}
	}

	if !sofDecoded {
		return ErrSyntax // No image configuration found.
	}

	return nil
}

// isSOF reports whether marker starts a frame of any coding process.
func isSOF(marker byte) bool {
	return marker >= 0xC0 && marker <= 0xCF && marker != 0xC4 && marker != 0xC8 && marker != 0xCC
}

// decodeHeader parses the frame header of jpegData.
func (d *decoder) decodeHeader(jpegData []byte) (Header, error) {
	if err := d.parse(jpegData, true); err != nil {
		return Header{}, err
	}

	return Header{
		Width:       d.width,
		Height:      d.height,
		Subsamp:     d.subsamp,
		Orientation: d.orientation,
	}, nil
}

// decodePlanes decodes jpegData with the given IDCT scale denominator, leaving the result in
// the component planes.
func (d *decoder) decodePlanes(jpegData []byte, scaleDenom int) error {
	d.scaleDenom = scaleDenom

	if err := d.parse(jpegData, false); err != nil {
		return err
	}

	if !d.scanned {
		return ErrSyntax // Frame header found but no scan.
	}

	return nil
}

// planeImage returns the decoded, upsampled output as an *image.Gray or *image.RGBA.
// gray requests a luminance-only image even for color sources.
func (d *decoder) planeImage(gray, fastUpsample bool) (image.Image, error) {
	rect := image.Rect(0, 0, d.outWidth, d.outHeight)

	if d.ncomp == 1 || (gray && !d.isRGB) {
		c := &d.comp[0]
		if err := d.upsample(c, fastUpsample); err != nil {
			return nil, err
		}

		return &image.Gray{Pix: c.pixels, Stride: c.stride, Rect: rect}, nil
	}

	for i := 0; i < d.ncomp; i++ {
		if err := d.upsample(&d.comp[i], fastUpsample); err != nil {
			return nil, err
		}
	}

	dst := image.NewRGBA(rect)
	if d.isRGB {
		rgbToRGBA(&d.comp[0], &d.comp[1], &d.comp[2], dst.Pix, d.outWidth, d.outHeight)
	} else {
		yCbCrToRGBA(&d.comp[0], &d.comp[1], &d.comp[2], dst.Pix, d.outWidth, d.outHeight)
	}

	return dst, nil
}
