// Package compress provides the compression codecs used by database
// snapshots: Zstandard, S2, LZ4, and a pass-through. Snapshot payloads are
// whole page images (multiples of 8 KiB), which compress well because
// zeroed free space dominates lightly filled pages.
package compress

import (
	"fmt"

	"github.com/arloliu/rdbe/format"
)

// Compressor compresses a complete snapshot payload.
//
// The returned slice is newly allocated and owned by the caller; the input
// is never modified. Implementations may reuse internal buffers.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor restores a payload produced by the matching Compressor.
// Corrupted or mismatched input yields an error, never a partial result.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions; every built-in codec implements it.
type Codec interface {
	Compressor
	Decompressor
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone: NewNoOpCompressor(),
	format.CompressionZstd: NewZstdCompressor(),
	format.CompressionS2:   NewS2Compressor(),
	format.CompressionLZ4:  NewLZ4Compressor(),
}

// GetCodec retrieves the built-in Codec for the given compression type.
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}
