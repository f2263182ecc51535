package tjpeg

import "encoding/binary"

// EXIF tag and type constants used to locate the orientation.
const (
	tagOrientation    = 0x0112
	typeUnsignedShort = 3
)

// exifReader reads TIFF-structured EXIF data in its declared byte order.
// Out-of-range reads return 0.
type exifReader struct {
	data  []byte
	order binary.ByteOrder
}

func (r *exifReader) uint16(offset int) uint16 {
	if offset < 0 || offset+2 > len(r.data) {
		return 0
	}

	return r.order.Uint16(r.data[offset:])
}

func (r *exifReader) uint32(offset int) uint32 {
	if offset < 0 || offset+4 > len(r.data) {
		return 0
	}

	return r.order.Uint32(r.data[offset:])
}

// parseOrientation returns the orientation tag (1-8) from the first IFD of a TIFF header,
// or 0 if it is absent or malformed.
func parseOrientation(data []byte) int {
	if len(data) < 8 {
		return 0
	}

	r := &exifReader{data: data}

	// Check byte order (II or MM).
	switch {
	case data[0] == 0x49 && data[1] == 0x49:
		r.order = binary.LittleEndian
	case data[0] == 0x4D && data[1] == 0x4D:
		r.order = binary.BigEndian
	default:
		return 0
	}

	// Check the magic number (42).
	if r.uint16(2) != 42 {
		return 0
	}

	ifdOffset := int(r.uint32(4))
	if ifdOffset < 8 || ifdOffset+2 > len(data) {
		return 0
	}

	numEntries := int(r.uint16(ifdOffset))

	// Entries are 12 bytes long. Truncated directories are read as far as they go.
	if maxEntries := (len(data) - ifdOffset - 2) / 12; numEntries > maxEntries {
		numEntries = maxEntries
	}

	entry := ifdOffset + 2
	for i := 0; i < numEntries; i++ {
		if r.uint16(entry) == tagOrientation {
			if r.uint16(entry+2) != typeUnsignedShort || r.uint32(entry+4) != 1 {
				return 0
			}

			// The value is stored in the first 2 bytes of the offset field.
			if o := int(r.uint16(entry + 8)); o >= 1 && o <= 8 {
				return o
			}

			return 0
		}

		entry += 12
	}

	return 0
}
