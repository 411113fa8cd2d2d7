package codec

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/arloliu/rdbe/document"
	"github.com/arloliu/rdbe/endian"
	"github.com/arloliu/rdbe/errs"
)

// Deserialize parses a serialized document and returns an equal in-memory
// document. The reserved "_id" field is lifted out into Document.ID; a
// document serialized without an id (not produced by this codec) yields the
// zero ObjectId.
//
// The input is validated strictly: the leading length must match the buffer
// exactly, every element must be complete, strings must be valid UTF-8, and
// nesting must not exceed MaxNestingDepth. No partial document is ever
// returned alongside an error.
func Deserialize(data []byte) (*document.Document, error) {
	if err := checkFrame(data); err != nil {
		return nil, err
	}

	d := &decoder{data: data, engine: endian.GetLittleEndianEngine()}

	doc := &document.Document{Fields: document.NewObject()}
	if err := d.readFields(0, len(data), 1, doc.Fields, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// checkFrame validates the outer length prefix against the buffer.
func checkFrame(data []byte) error {
	if len(data) < minDocumentSize {
		return fmt.Errorf("document requires at least %d bytes, got %d: %w",
			minDocumentSize, len(data), errs.ErrUnexpectedEndOfData)
	}

	length := int32(endian.GetLittleEndianEngine().Uint32(data[0:4])) //nolint:gosec
	if length > MaxDocumentSize {
		return fmt.Errorf("declared length %d exceeds %d: %w",
			length, MaxDocumentSize, errs.ErrDocumentTooLarge)
	}
	if length < minDocumentSize || int(length) != len(data) {
		return fmt.Errorf("declared length %d does not match buffer size %d: %w",
			length, len(data), errs.ErrInvalidLength)
	}

	return nil
}

type decoder struct {
	engine endian.EndianEngine
	data   []byte
}

// readFields parses the fields of the document occupying data[start:end]
// into obj. When doc is non-nil this is the root document and the reserved
// "_id" field is lifted into doc.ID instead of obj.
func (d *decoder) readFields(start, end, depth int, obj *document.Object, doc *document.Document) error {
	pos := start + 4
	sawID := false

	for {
		if pos >= end {
			return errs.ErrMissingNullTerminator
		}

		typ := d.data[pos]
		if typ == 0 {
			pos++
			break
		}
		pos++

		key, next, err := d.readCString(pos, end)
		if err != nil {
			return err
		}
		pos = next

		if doc != nil && key == document.IDFieldName {
			if sawID {
				return fmt.Errorf("duplicate %q field: %w", key, errs.ErrInvalidFieldName)
			}
			if document.Type(typ) != document.TypeObjectId {
				return fmt.Errorf("%q must be an ObjectId, got type 0x%02x: %w",
					key, typ, errs.ErrInvalidType)
			}
			id, next, err := d.readObjectId(pos, end)
			if err != nil {
				return err
			}
			doc.ID = id
			pos = next
			sawID = true

			continue
		}

		val, next, err := d.readValue(document.Type(typ), pos, end, depth)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		pos = next

		if _, exists := obj.Get(key); exists {
			return fmt.Errorf("duplicate field name %q: %w", key, errs.ErrInvalidFieldName)
		}
		obj.Set(key, val)
	}

	if pos != end {
		return fmt.Errorf("%d trailing bytes after terminator: %w", end-pos, errs.ErrInvalidLength)
	}

	return nil
}

func (d *decoder) readCString(pos, end int) (string, int, error) {
	idx := bytes.IndexByte(d.data[pos:end], 0)
	if idx < 0 {
		return "", 0, errs.ErrMissingNullTerminator
	}

	raw := d.data[pos : pos+idx]
	if !utf8.Valid(raw) {
		return "", 0, errs.ErrInvalidUtf8
	}

	return string(raw), pos + idx + 1, nil
}

func (d *decoder) readObjectId(pos, end int) (document.ObjectId, int, error) {
	if end-pos < document.ObjectIdSize {
		return document.ObjectId{}, 0, errs.ErrUnexpectedEndOfData
	}

	id, err := document.ObjectIdFromBytes(d.data[pos : pos+document.ObjectIdSize])
	if err != nil {
		return document.ObjectId{}, 0, err
	}

	return id, pos + document.ObjectIdSize, nil
}

func (d *decoder) readValue(typ document.Type, pos, end, depth int) (document.Value, int, error) {
	switch typ {
	case document.TypeNull:
		return document.Null(), pos, nil

	case document.TypeBool:
		if end-pos < 1 {
			return document.Value{}, 0, errs.ErrUnexpectedEndOfData
		}
		b := d.data[pos]
		if b > 1 {
			return document.Value{}, 0, fmt.Errorf("invalid boolean byte 0x%02x: %w", b, errs.ErrInvalidType)
		}

		return document.Bool(b == 1), pos + 1, nil

	case document.TypeI32:
		if end-pos < 4 {
			return document.Value{}, 0, errs.ErrUnexpectedEndOfData
		}

		return document.I32(int32(d.engine.Uint32(d.data[pos : pos+4]))), pos + 4, nil //nolint:gosec

	case document.TypeI64:
		if end-pos < 8 {
			return document.Value{}, 0, errs.ErrUnexpectedEndOfData
		}

		return document.I64(int64(d.engine.Uint64(d.data[pos : pos+8]))), pos + 8, nil //nolint:gosec

	case document.TypeF64:
		if end-pos < 8 {
			return document.Value{}, 0, errs.ErrUnexpectedEndOfData
		}

		return document.F64(math.Float64frombits(d.engine.Uint64(d.data[pos : pos+8]))), pos + 8, nil

	case document.TypeDateTime:
		if end-pos < 8 {
			return document.Value{}, 0, errs.ErrUnexpectedEndOfData
		}
		ms := int64(d.engine.Uint64(d.data[pos : pos+8])) //nolint:gosec
		if ms < minDateTimeMillis || ms > maxDateTimeMillis {
			return document.Value{}, 0, fmt.Errorf("datetime %d ms out of range: %w", ms, errs.ErrInvalidTimestamp)
		}

		return document.DateTime(ms), pos + 8, nil

	case document.TypeObjectId:
		id, next, err := d.readObjectId(pos, end)
		if err != nil {
			return document.Value{}, 0, err
		}

		return document.ObjectIdVal(id), next, nil

	case document.TypeString:
		return d.readString(pos, end)

	case document.TypeBinary:
		return d.readBinary(pos, end)

	case document.TypeObject:
		obj, next, err := d.readEmbedded(pos, end, depth+1)
		if err != nil {
			return document.Value{}, 0, err
		}

		return document.ObjectVal(obj), next, nil

	case document.TypeArray:
		elems, next, err := d.readArray(pos, end, depth+1)
		if err != nil {
			return document.Value{}, 0, err
		}

		return document.Array(elems...), next, nil

	default:
		return document.Value{}, 0, fmt.Errorf("unknown type code 0x%02x: %w", byte(typ), errs.ErrInvalidType)
	}
}

func (d *decoder) readString(pos, end int) (document.Value, int, error) {
	if end-pos < 4 {
		return document.Value{}, 0, errs.ErrUnexpectedEndOfData
	}

	length := int32(d.engine.Uint32(d.data[pos : pos+4])) //nolint:gosec
	if length < 1 {
		return document.Value{}, 0, fmt.Errorf("string length %d: %w", length, errs.ErrInvalidStringLength)
	}
	pos += 4

	if end-pos < int(length) {
		return document.Value{}, 0, errs.ErrUnexpectedEndOfData
	}
	if d.data[pos+int(length)-1] != 0 {
		return document.Value{}, 0, errs.ErrMissingNullTerminator
	}

	raw := d.data[pos : pos+int(length)-1]
	if !utf8.Valid(raw) {
		return document.Value{}, 0, errs.ErrInvalidUtf8
	}

	return document.String(string(raw)), pos + int(length), nil
}

func (d *decoder) readBinary(pos, end int) (document.Value, int, error) {
	if end-pos < 4 {
		return document.Value{}, 0, errs.ErrUnexpectedEndOfData
	}

	length := int32(d.engine.Uint32(d.data[pos : pos+4])) //nolint:gosec
	if length < 0 {
		return document.Value{}, 0, fmt.Errorf("binary length %d: %w", length, errs.ErrInvalidBinaryLength)
	}
	pos += 4

	if end-pos < 1+int(length) {
		return document.Value{}, 0, errs.ErrUnexpectedEndOfData
	}
	subtype := d.data[pos]
	pos++

	data := make([]byte, length)
	copy(data, d.data[pos:pos+int(length)])

	return document.BinaryWithSubtype(data, subtype), pos + int(length), nil
}

// readEmbeddedFrame validates the length prefix of an embedded document at
// pos and returns its end offset.
func (d *decoder) readEmbeddedFrame(pos, end int) (int, error) {
	if end-pos < 4 {
		return 0, errs.ErrUnexpectedEndOfData
	}

	length := int32(d.engine.Uint32(d.data[pos : pos+4])) //nolint:gosec
	if length < minDocumentSize {
		return 0, fmt.Errorf("embedded document length %d: %w", length, errs.ErrInvalidEmbeddedDocument)
	}
	if end-pos < int(length) {
		return 0, errs.ErrUnexpectedEndOfData
	}

	return pos + int(length), nil
}

func (d *decoder) readEmbedded(pos, end, depth int) (*document.Object, int, error) {
	if depth > MaxNestingDepth {
		return nil, 0, errs.ErrMaxNestingDepthExceeded
	}

	innerEnd, err := d.readEmbeddedFrame(pos, end)
	if err != nil {
		return nil, 0, err
	}

	obj := document.NewObject()
	if err := d.readFields(pos, innerEnd, depth, obj, nil); err != nil {
		return nil, 0, err
	}

	return obj, innerEnd, nil
}

// readArray parses an embedded document whose keys must be the decimal
// indices "0", "1", ... in order.
func (d *decoder) readArray(pos, end, depth int) ([]document.Value, int, error) {
	if depth > MaxNestingDepth {
		return nil, 0, errs.ErrMaxNestingDepthExceeded
	}

	innerEnd, err := d.readEmbeddedFrame(pos, end)
	if err != nil {
		return nil, 0, err
	}

	var elems []document.Value
	cur := pos + 4

	for {
		if cur >= innerEnd {
			return nil, 0, errs.ErrMissingNullTerminator
		}

		typ := d.data[cur]
		if typ == 0 {
			cur++
			break
		}
		cur++

		key, next, err := d.readCString(cur, innerEnd)
		if err != nil {
			return nil, 0, err
		}
		cur = next

		if key != strconv.Itoa(len(elems)) {
			return nil, 0, fmt.Errorf("array key %q at index %d: %w",
				key, len(elems), errs.ErrInvalidEmbeddedDocument)
		}

		val, next, err := d.readValue(document.Type(typ), cur, innerEnd, depth)
		if err != nil {
			return nil, 0, fmt.Errorf("index %d: %w", len(elems), err)
		}
		cur = next

		elems = append(elems, val)
	}

	if cur != innerEnd {
		return nil, 0, fmt.Errorf("%d trailing bytes in array: %w", innerEnd-cur, errs.ErrInvalidEmbeddedDocument)
	}

	return elems, innerEnd, nil
}
