package codec

import (
	"bytes"
	"fmt"

	"github.com/arloliu/rdbe/document"
	"github.com/arloliu/rdbe/endian"
	"github.com/arloliu/rdbe/errs"
)

// DeserializePartial extracts only the requested top-level fields from a
// serialized document. Fields that are not requested are skipped by length
// arithmetic without being decoded or allocated; requested names absent from
// the document are silently omitted.
//
// The reserved "_id" field may be requested like any other and decodes to an
// ObjectId value. The walk stops as soon as every requested field has been
// found.
func DeserializePartial(data []byte, fieldNames []string) (*document.Object, error) {
	if err := checkFrame(data); err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(fieldNames))
	for _, name := range fieldNames {
		wanted[name] = struct{}{}
	}

	d := &decoder{data: data, engine: endian.GetLittleEndianEngine()}
	result := document.NewObject()

	pos := 4
	end := len(data)
	found := 0

	for found < len(wanted) {
		if pos >= end {
			return nil, errs.ErrMissingNullTerminator
		}

		typ := d.data[pos]
		if typ == 0 {
			break
		}
		pos++

		keyStart := pos
		idx := bytes.IndexByte(d.data[pos:end], 0)
		if idx < 0 {
			return nil, errs.ErrMissingNullTerminator
		}
		pos += idx + 1

		if _, ok := wanted[string(d.data[keyStart:keyStart+idx])]; !ok {
			next, err := d.skipValue(document.Type(typ), pos, end)
			if err != nil {
				return nil, err
			}
			pos = next

			continue
		}

		key, _, err := d.readCString(keyStart, end)
		if err != nil {
			return nil, err
		}

		val, next, err := d.readValue(document.Type(typ), pos, end, 1)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		pos = next

		result.Set(key, val)
		found++
	}

	return result, nil
}

// skipValue advances past a value of the given type without decoding it.
func (d *decoder) skipValue(typ document.Type, pos, end int) (int, error) {
	switch typ {
	case document.TypeNull:
		return pos, nil
	case document.TypeBool:
		return d.skipFixed(pos, end, 1)
	case document.TypeI32:
		return d.skipFixed(pos, end, 4)
	case document.TypeI64, document.TypeF64, document.TypeDateTime:
		return d.skipFixed(pos, end, 8)
	case document.TypeObjectId:
		return d.skipFixed(pos, end, document.ObjectIdSize)

	case document.TypeString:
		if end-pos < 4 {
			return 0, errs.ErrUnexpectedEndOfData
		}
		length := int32(d.engine.Uint32(d.data[pos : pos+4])) //nolint:gosec
		if length < 1 {
			return 0, fmt.Errorf("string length %d: %w", length, errs.ErrInvalidStringLength)
		}

		return d.skipFixed(pos+4, end, int(length))

	case document.TypeBinary:
		if end-pos < 4 {
			return 0, errs.ErrUnexpectedEndOfData
		}
		length := int32(d.engine.Uint32(d.data[pos : pos+4])) //nolint:gosec
		if length < 0 {
			return 0, fmt.Errorf("binary length %d: %w", length, errs.ErrInvalidBinaryLength)
		}

		return d.skipFixed(pos+4, end, 1+int(length))

	case document.TypeObject, document.TypeArray:
		innerEnd, err := d.readEmbeddedFrame(pos, end)
		if err != nil {
			return 0, err
		}

		return innerEnd, nil

	default:
		return 0, fmt.Errorf("unknown type code 0x%02x: %w", byte(typ), errs.ErrInvalidType)
	}
}

func (d *decoder) skipFixed(pos, end, n int) (int, error) {
	if end-pos < n {
		return 0, errs.ErrUnexpectedEndOfData
	}

	return pos + n, nil
}
