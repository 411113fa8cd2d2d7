// Package snapshot writes and restores compressed, integrity-checked
// images of a whole database file.
//
// Snapshot layout:
//
//	bytes 0-7:   magic "RDBS\x00\x01\x00\x00"
//	bytes 8-11:  snapshot version (u32 LE)
//	byte  12:    compression type
//	bytes 13-15: reserved
//	bytes 16-19: page size (u32 LE)
//	bytes 20-27: page count (u64 LE)
//	bytes 28-31: reserved
//	bytes 32-N:  compressed database image (file header + pages)
//	last 8:      xxHash64 (LE) over everything before it
//
// Snapshots are published atomically via rename, so a crashed backup never
// leaves a readable-but-torn snapshot behind. Restore validates the trailer
// hash, the embedded file header, and every page checksum before writing
// the new database file, also atomically.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/google/renameio"

	"github.com/arloliu/rdbe/compress"
	"github.com/arloliu/rdbe/endian"
	"github.com/arloliu/rdbe/errs"
	"github.com/arloliu/rdbe/format"
	"github.com/arloliu/rdbe/internal/pool"
	"github.com/arloliu/rdbe/page"
	"github.com/arloliu/rdbe/pagefile"
)

const (
	headerSize  = 32
	trailerSize = 8
	version     = 1
)

var magic = []byte{'R', 'D', 'B', 'S', 0x00, 0x01, 0x00, 0x00}

// Source is the view of an open database the writer needs. *pagefile.File
// satisfies it.
type Source interface {
	Header() pagefile.Header
	PageCount() uint64
	ReadPage(id uint64) (*page.Page, error)
}

// Write creates a snapshot of src at path using the given compression. The
// caller must flush the database first so the file image is current.
func Write(path string, src Source, compression format.CompressionType) error {
	codec, err := compress.GetCodec(compression)
	if err != nil {
		return fmt.Errorf("%s: %w", compression, errs.ErrUnknownCompression)
	}

	image := pool.GetSnapshotBuffer()
	defer pool.PutSnapshotBuffer(image)

	fileHeader := src.Header()
	image.MustWrite(fileHeader.Bytes())

	for id := uint64(0); id < src.PageCount(); id++ {
		p, err := src.ReadPage(id)
		if err != nil {
			return fmt.Errorf("snapshot page %d: %w", id, err)
		}
		image.MustWrite(p.Bytes())
	}

	compressed, err := codec.Compress(image.Bytes())
	if err != nil {
		return fmt.Errorf("snapshot compression: %w", err)
	}

	out, err := renameio.TempFile("", path)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}
	defer out.Cleanup() //nolint:errcheck

	digest := xxhash.New()

	header := encodeHeader(compression, fileHeader.PageCount)
	if _, err := out.Write(header); err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}
	digest.Write(header) //nolint:errcheck,gosec

	if _, err := out.Write(compressed); err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}
	digest.Write(compressed) //nolint:errcheck,gosec

	trailer := endian.GetLittleEndianEngine().AppendUint64(nil, digest.Sum64())
	if _, err := out.Write(trailer); err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}

	if err := out.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}

	return nil
}

func encodeHeader(compression format.CompressionType, pageCount uint64) []byte {
	engine := endian.GetLittleEndianEngine()

	b := make([]byte, headerSize)
	copy(b[0:8], magic)
	engine.PutUint32(b[8:12], version)
	b[12] = byte(compression)
	engine.PutUint32(b[16:20], page.Size)
	engine.PutUint64(b[20:28], pageCount)

	return b
}

// Verify reads the snapshot at path and validates its trailer hash, its
// embedded file header, and every page checksum.
func Verify(path string) error {
	_, err := readImage(path)
	return err
}

// Restore rebuilds a database file at dbPath from the snapshot at
// snapshotPath, validating everything first. Fails if dbPath already
// exists.
func Restore(snapshotPath, dbPath string) error {
	image, err := readImage(snapshotPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(dbPath); err == nil {
		return fmt.Errorf("restore %s: %w", dbPath, os.ErrExist)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("restore %s: %w", dbPath, err)
	}

	if err := renameio.WriteFile(dbPath, image, 0o644); err != nil {
		return fmt.Errorf("restore %s: %w", dbPath, err)
	}

	return nil
}

// readImage loads, authenticates and validates a snapshot, returning the
// decompressed database image.
func readImage(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	if len(raw) < headerSize+trailerSize {
		return nil, fmt.Errorf("snapshot %s truncated: %w", path, errs.ErrSnapshotCorrupt)
	}
	if !bytes.Equal(raw[0:8], magic) {
		return nil, fmt.Errorf("snapshot %s: %w", path, errs.ErrInvalidMagicNumber)
	}

	engine := endian.GetLittleEndianEngine()
	if v := engine.Uint32(raw[8:12]); v != version {
		return nil, fmt.Errorf("snapshot version %d, supported %d: %w", v, version, errs.ErrIncompatibleVersion)
	}

	body := raw[:len(raw)-trailerSize]
	stored := engine.Uint64(raw[len(raw)-trailerSize:])
	if xxhash.Sum64(body) != stored {
		return nil, fmt.Errorf("snapshot %s hash mismatch: %w", path, errs.ErrSnapshotCorrupt)
	}

	compression := format.CompressionType(raw[12])
	codec, err := compress.GetCodec(compression)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, errs.ErrUnknownCompression)
	}

	if ps := engine.Uint32(raw[16:20]); ps != page.Size {
		return nil, fmt.Errorf("snapshot page size %d: %w", ps, errs.ErrSnapshotCorrupt)
	}
	pageCount := engine.Uint64(raw[20:28])

	image, err := codec.Decompress(body[headerSize:])
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w: %v", path, errs.ErrSnapshotCorrupt, err)
	}

	expected := int64(pagefile.HeaderSize) + int64(pageCount)*page.Size //nolint:gosec
	if int64(len(image)) != expected {
		return nil, fmt.Errorf("snapshot image %d bytes, expected %d: %w",
			len(image), expected, errs.ErrSnapshotCorrupt)
	}

	fileHeader, err := pagefile.ParseHeader(image[:pagefile.HeaderSize])
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	if fileHeader.PageCount != pageCount {
		return nil, fmt.Errorf("snapshot page count %d, file header says %d: %w",
			pageCount, fileHeader.PageCount, errs.ErrSnapshotCorrupt)
	}

	for id := uint64(0); id < pageCount; id++ {
		start := pagefile.HeaderSize + int(id)*page.Size //nolint:gosec
		frame := make([]byte, page.Size)
		copy(frame, image[start:start+page.Size])

		p, err := page.FromBytes(frame)
		if err != nil {
			return nil, fmt.Errorf("snapshot page %d: %w", id, err)
		}
		if !p.VerifyChecksum() {
			return nil, fmt.Errorf("snapshot page %d: %w", id, errs.ErrChecksumMismatch)
		}
	}

	return image, nil
}
