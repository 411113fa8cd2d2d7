package codec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/arloliu/rdbe/document"
	"github.com/arloliu/rdbe/endian"
	"github.com/arloliu/rdbe/errs"
	"github.com/arloliu/rdbe/internal/pool"
)

const (
	// MaxDocumentSize is the maximum serialized document length in bytes.
	MaxDocumentSize = 16 * 1024 * 1024
	// MaxNestingDepth is the maximum depth of nested objects and arrays.
	// The root document counts as depth 1.
	MaxNestingDepth = 100

	// minDocumentSize is the smallest legal document: length prefix plus
	// terminator.
	minDocumentSize = 5

	// DateTime values must map to a calendar date between years 1 and 9999.
	minDateTimeMillis = -62135596800000
	maxDateTimeMillis = 253402300799999
)

// Stats describes a document's serialized form without encoding it.
type Stats struct {
	// Size is the exact serialized length in bytes, including the length
	// prefix and trailing NUL.
	Size int
	// Depth is the maximum nesting depth; a flat document has depth 1.
	Depth int
}

// Measure validates doc against the codec limits and returns its serialized
// size and nesting depth. It performs every check Serialize performs, so a
// document that measures cleanly encodes without error.
func Measure(doc *document.Document) (Stats, error) {
	m := &measurer{}

	size, err := m.documentSize(doc.Fields, true, 1)
	if err != nil {
		return Stats{}, err
	}
	if size > MaxDocumentSize {
		return Stats{}, fmt.Errorf("serialized size %d exceeds %d: %w",
			size, MaxDocumentSize, errs.ErrDocumentTooLarge)
	}

	return Stats{Size: size, Depth: m.maxDepth}, nil
}

// Serialize encodes doc into a freshly allocated byte slice obeying the wire
// grammar. The document id is written under the reserved key "_id" at its
// sorted position among the top-level fields.
//
// Fails with ErrDocumentTooLarge, ErrMaxNestingDepthExceeded,
// ErrInvalidUtf8, ErrInvalidFieldName or ErrInvalidTimestamp; on failure no
// bytes are produced.
func Serialize(doc *document.Document) ([]byte, error) {
	stats, err := Measure(doc)
	if err != nil {
		return nil, err
	}

	buf := pool.GetDocBuffer()
	defer pool.PutDocBuffer(buf)

	buf.Grow(stats.Size)
	appendDocument(buf, doc.Fields, &doc.ID)

	out := make([]byte, stats.Size)
	copy(out, buf.Bytes())

	return out, nil
}

// measurer walks a document tree computing sizes while validating limits.
type measurer struct {
	maxDepth int
}

func (m *measurer) documentSize(obj *document.Object, root bool, depth int) (int, error) {
	if depth > MaxNestingDepth {
		return 0, errs.ErrMaxNestingDepthExceeded
	}
	if depth > m.maxDepth {
		m.maxDepth = depth
	}

	size := 4 + 1 // length prefix + terminator
	if root {
		// type byte + "_id" cstring + 12 id bytes
		size += 1 + len(document.IDFieldName) + 1 + document.ObjectIdSize
	}

	for key, val := range obj.All() {
		if err := validateFieldName(key, root); err != nil {
			return 0, err
		}

		valSize, err := m.valueSize(val, depth)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", key, err)
		}

		size += 1 + len(key) + 1 + valSize
	}

	return size, nil
}

func (m *measurer) valueSize(val document.Value, depth int) (int, error) {
	switch val.Type() {
	case document.TypeNull:
		return 0, nil
	case document.TypeBool:
		return 1, nil
	case document.TypeI32:
		return 4, nil
	case document.TypeI64, document.TypeF64:
		return 8, nil
	case document.TypeDateTime:
		ms := val.DateTimeVal()
		if ms < minDateTimeMillis || ms > maxDateTimeMillis {
			return 0, fmt.Errorf("datetime %d ms out of range: %w", ms, errs.ErrInvalidTimestamp)
		}

		return 8, nil
	case document.TypeObjectId:
		return document.ObjectIdSize, nil
	case document.TypeString:
		s := val.StringVal()
		if !utf8.ValidString(s) {
			return 0, errs.ErrInvalidUtf8
		}

		return 4 + len(s) + 1, nil
	case document.TypeBinary:
		data, _ := val.BinaryVal()
		return 4 + 1 + len(data), nil
	case document.TypeObject:
		return m.documentSize(val.ObjectValue(), false, depth+1)
	case document.TypeArray:
		return m.arraySize(val.ArrayVal(), depth+1)
	default:
		return 0, errs.ErrInvalidType
	}
}

func (m *measurer) arraySize(elems []document.Value, depth int) (int, error) {
	if depth > MaxNestingDepth {
		return 0, errs.ErrMaxNestingDepthExceeded
	}
	if depth > m.maxDepth {
		m.maxDepth = depth
	}

	size := 4 + 1
	for i, elem := range elems {
		valSize, err := m.valueSize(elem, depth)
		if err != nil {
			return 0, fmt.Errorf("index %d: %w", i, err)
		}

		size += 1 + itoaLen(i) + 1 + valSize
	}

	return size, nil
}

func validateFieldName(key string, root bool) error {
	if strings.IndexByte(key, 0) >= 0 {
		return fmt.Errorf("field name %q contains NUL: %w", key, errs.ErrInvalidFieldName)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("field name is not valid UTF-8: %w", errs.ErrInvalidUtf8)
	}
	if root && key == document.IDFieldName {
		return fmt.Errorf("%q is reserved: %w", document.IDFieldName, errs.ErrInvalidFieldName)
	}

	return nil
}

// itoaLen returns len(strconv.Itoa(i)) for non-negative i without
// allocating.
func itoaLen(i int) int {
	n := 1
	for i >= 10 {
		i /= 10
		n++
	}

	return n
}

// appendDocument encodes obj (plus the id field when id is non-nil) into
// buf. The tree must have been validated by Measure; this pass cannot fail.
// Length prefixes are back-patched once each document's extent is known.
func appendDocument(buf *pool.ByteBuffer, obj *document.Object, id *document.ObjectId) {
	engine := endian.GetLittleEndianEngine()

	lenPos := buf.Len()
	buf.MustWrite([]byte{0, 0, 0, 0})

	idWritten := id == nil
	for key, val := range obj.All() {
		if !idWritten && key > document.IDFieldName {
			appendIDField(buf, *id)
			idWritten = true
		}
		appendField(buf, key, val)
	}
	if !idWritten {
		appendIDField(buf, *id)
	}

	buf.MustWriteByte(0)
	engine.PutUint32(buf.B[lenPos:lenPos+4], uint32(buf.Len()-lenPos)) //nolint:gosec
}

func appendIDField(buf *pool.ByteBuffer, id document.ObjectId) {
	buf.MustWriteByte(byte(document.TypeObjectId))
	buf.MustWrite([]byte(document.IDFieldName))
	buf.MustWriteByte(0)
	buf.MustWrite(id.Bytes())
}

func appendField(buf *pool.ByteBuffer, key string, val document.Value) {
	buf.MustWriteByte(byte(val.Type()))
	buf.MustWrite([]byte(key))
	buf.MustWriteByte(0)
	appendValue(buf, val)
}

func appendValue(buf *pool.ByteBuffer, val document.Value) {
	engine := endian.GetLittleEndianEngine()

	switch val.Type() {
	case document.TypeNull:
	case document.TypeBool:
		if val.BoolVal() {
			buf.MustWriteByte(1)
		} else {
			buf.MustWriteByte(0)
		}
	case document.TypeI32:
		buf.B = engine.AppendUint32(buf.B, uint32(val.I32Val())) //nolint:gosec
	case document.TypeI64:
		buf.B = engine.AppendUint64(buf.B, uint64(val.I64Val())) //nolint:gosec
	case document.TypeF64:
		buf.B = engine.AppendUint64(buf.B, math.Float64bits(val.F64Val()))
	case document.TypeDateTime:
		buf.B = engine.AppendUint64(buf.B, uint64(val.DateTimeVal())) //nolint:gosec
	case document.TypeObjectId:
		buf.MustWrite(val.ObjectIdValue().Bytes())
	case document.TypeString:
		s := val.StringVal()
		buf.B = engine.AppendUint32(buf.B, uint32(len(s)+1)) //nolint:gosec
		buf.MustWrite([]byte(s))
		buf.MustWriteByte(0)
	case document.TypeBinary:
		data, subtype := val.BinaryVal()
		buf.B = engine.AppendUint32(buf.B, uint32(len(data))) //nolint:gosec
		buf.MustWriteByte(subtype)
		buf.MustWrite(data)
	case document.TypeObject:
		appendDocument(buf, val.ObjectValue(), nil)
	case document.TypeArray:
		appendArray(buf, val.ArrayVal())
	}
}

func appendArray(buf *pool.ByteBuffer, elems []document.Value) {
	engine := endian.GetLittleEndianEngine()

	lenPos := buf.Len()
	buf.MustWrite([]byte{0, 0, 0, 0})

	for i, elem := range elems {
		buf.MustWriteByte(byte(elem.Type()))
		buf.MustWrite([]byte(strconv.Itoa(i)))
		buf.MustWriteByte(0)
		appendValue(buf, elem)
	}

	buf.MustWriteByte(0)
	engine.PutUint32(buf.B[lenPos:lenPos+4], uint32(buf.Len()-lenPos)) //nolint:gosec
}
