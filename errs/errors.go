// Package errs defines the sentinel errors shared by all rdbe packages.
//
// Errors are grouped by the layer that produces them. Callers match with
// errors.Is; layers wrap sentinels with fmt.Errorf("...: %w", err) to add
// context without breaking identity.
package errs

import "errors"

// Document codec errors.
var (
	// ErrDocumentTooLarge indicates the serialized document would exceed the 16 MiB limit.
	ErrDocumentTooLarge = errors.New("document exceeds maximum serialized size")
	// ErrMaxNestingDepthExceeded indicates the document tree is nested deeper than 100 levels.
	ErrMaxNestingDepthExceeded = errors.New("document nesting depth exceeds maximum")
	// ErrInvalidUtf8 indicates a string value or field name is not valid UTF-8.
	ErrInvalidUtf8 = errors.New("invalid UTF-8 in string")
	// ErrInvalidFieldName indicates a field name contains an embedded NUL or uses a reserved key.
	ErrInvalidFieldName = errors.New("invalid field name")
	// ErrInvalidLength indicates the leading document length does not match the buffer.
	ErrInvalidLength = errors.New("document length prefix does not match data")
	// ErrUnexpectedEndOfData indicates the input was truncated mid-element.
	ErrUnexpectedEndOfData = errors.New("unexpected end of data")
	// ErrInvalidType indicates an unknown element type code.
	ErrInvalidType = errors.New("invalid element type code")
	// ErrInvalidStringLength indicates a non-positive string length field.
	ErrInvalidStringLength = errors.New("invalid string length")
	// ErrInvalidBinaryLength indicates a negative binary length field.
	ErrInvalidBinaryLength = errors.New("invalid binary length")
	// ErrMissingNullTerminator indicates a document or cstring is not NUL-terminated.
	ErrMissingNullTerminator = errors.New("missing null terminator")
	// ErrInvalidTimestamp indicates a DateTime value outside the representable range.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrInvalidEmbeddedDocument indicates a nested object or array failed validation.
	ErrInvalidEmbeddedDocument = errors.New("invalid embedded document")
)

// Page layout errors.
var (
	// ErrNotEnoughSpace indicates a page (or the buffer pool) cannot make room.
	ErrNotEnoughSpace = errors.New("not enough space")
	// ErrRecordNotFound indicates the slot is a tombstone or references no live record.
	ErrRecordNotFound = errors.New("record not found")
	// ErrChecksumMismatch indicates the stored page checksum does not match the payload.
	ErrChecksumMismatch = errors.New("page checksum mismatch")
	// ErrInvalidPageType indicates an operation on a page whose type forbids it.
	ErrInvalidPageType = errors.New("invalid page type")
	// ErrSlotOutOfRange indicates a slot index beyond the slot directory.
	ErrSlotOutOfRange = errors.New("slot index out of range")
)

// Database file errors.
var (
	// ErrDatabaseLocked indicates another process holds the exclusive file lock.
	ErrDatabaseLocked = errors.New("database is locked by another process")
	// ErrIncompatibleVersion indicates a file header with an unsupported format version.
	ErrIncompatibleVersion = errors.New("incompatible database format version")
	// ErrCorrupt indicates the file or a page failed structural validation.
	ErrCorrupt = errors.New("database file is corrupt")
	// ErrInvalidHeaderSize indicates a truncated file header.
	ErrInvalidHeaderSize = errors.New("invalid file header size")
	// ErrInvalidMagicNumber indicates the file does not start with the rdbe magic.
	ErrInvalidMagicNumber = errors.New("invalid magic number")
)

// Buffer pool errors.
var (
	// ErrUnknownPage indicates the page id is not resident in the pool.
	ErrUnknownPage = errors.New("page not resident in buffer pool")
	// ErrNoEvictablePage indicates every resident frame is pinned.
	ErrNoEvictablePage = errors.New("no evictable page: all frames pinned")
)

// Storage engine errors.
var (
	// ErrDocumentTooLargeForPage indicates the serialized document cannot fit in a single page.
	ErrDocumentTooLargeForPage = errors.New("document too large for a single page")
	// ErrDocumentNotFound indicates the handle references a deleted or never-written document.
	ErrDocumentNotFound = errors.New("document not found")
)

// Snapshot errors.
var (
	// ErrSnapshotCorrupt indicates a snapshot failed hash or structural validation.
	ErrSnapshotCorrupt = errors.New("snapshot is corrupt")
	// ErrUnknownCompression indicates a snapshot with an unsupported compression type.
	ErrUnknownCompression = errors.New("unknown snapshot compression type")
)
