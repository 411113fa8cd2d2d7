package compress

// ZstdCompressor favors compression ratio over speed, making it the default
// for backups that are written once and kept around.
//
// Two implementations exist behind build tags: the default pure-Go
// klauspost/compress encoder, and a cgo binding to libzstd selected with
// -tags gozstd for deployments that already link it.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd codec with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
