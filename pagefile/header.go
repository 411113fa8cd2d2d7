package pagefile

import (
	"bytes"
	"fmt"

	"github.com/arloliu/rdbe/endian"
	"github.com/arloliu/rdbe/errs"
	"github.com/arloliu/rdbe/page"
)

const (
	// HeaderSize is the fixed byte size of the file header prefix.
	HeaderSize = 128
	// FormatVersion is the current on-disk format version.
	FormatVersion = 1
)

// magic identifies an rdbe database file.
var magic = []byte{'R', 'D', 'B', 'E', 0x00, 0x01, 0x00, 0x00}

// Header is the 128-byte file header at offset 0:
//
//	bytes 0-7:   magic "RDBE\x00\x01\x00\x00"
//	bytes 8-11:  format version (u32 LE)
//	bytes 12-15: page size (u32 LE, always 8192)
//	bytes 16-23: page count (u64 LE)
//	bytes 24-31: flags (u64 LE)
//	bytes 32-127: reserved, zero
type Header struct {
	Version   uint32
	PageSize  uint32
	PageCount uint64
	Flags     uint64
}

// NewHeader returns the header of a freshly created, empty database.
func NewHeader() Header {
	return Header{
		Version:  FormatVersion,
		PageSize: page.Size,
	}
}

// Bytes serializes the header into a 128-byte slice.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	engine := endian.GetLittleEndianEngine()

	copy(b[0:8], magic)
	engine.PutUint32(b[8:12], h.Version)
	engine.PutUint32(b[12:16], h.PageSize)
	engine.PutUint64(b[16:24], h.PageCount)
	engine.PutUint64(b[24:32], h.Flags)

	return b
}

// ParseHeader parses and validates a file header.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("file header requires %d bytes, got %d: %w",
			HeaderSize, len(data), errs.ErrInvalidHeaderSize)
	}
	if !bytes.Equal(data[0:8], magic) {
		return Header{}, errs.ErrInvalidMagicNumber
	}

	engine := endian.GetLittleEndianEngine()
	h := Header{
		Version:   engine.Uint32(data[8:12]),
		PageSize:  engine.Uint32(data[12:16]),
		PageCount: engine.Uint64(data[16:24]),
		Flags:     engine.Uint64(data[24:32]),
	}

	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("format version %d, supported %d: %w",
			h.Version, FormatVersion, errs.ErrIncompatibleVersion)
	}
	if h.PageSize != page.Size {
		return Header{}, fmt.Errorf("page size %d, expected %d: %w",
			h.PageSize, page.Size, errs.ErrCorrupt)
	}

	return h, nil
}
