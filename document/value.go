package document

import (
	"bytes"
	"math"
)

// Type identifies the variant held by a Value. The numeric values are the
// wire-format element type codes, so the codec switches on Type directly.
type Type uint8

const (
	TypeF64      Type = 0x01 // 8-byte little-endian IEEE-754
	TypeString   Type = 0x02 // length-prefixed UTF-8 with trailing NUL
	TypeObject   Type = 0x03 // embedded document
	TypeArray    Type = 0x04 // embedded document keyed "0", "1", ...
	TypeBinary   Type = 0x05 // length-prefixed opaque bytes with subtype
	TypeObjectId Type = 0x07 // 12 bytes
	TypeBool     Type = 0x08 // single byte 0x00 or 0x01
	TypeDateTime Type = 0x09 // 8-byte little-endian signed milliseconds
	TypeNull     Type = 0x0A // no value bytes
	TypeI32      Type = 0x10 // 4-byte little-endian
	TypeI64      Type = 0x12 // 8-byte little-endian
)

func (t Type) String() string {
	switch t {
	case TypeF64:
		return "F64"
	case TypeString:
		return "String"
	case TypeObject:
		return "Object"
	case TypeArray:
		return "Array"
	case TypeBinary:
		return "Binary"
	case TypeObjectId:
		return "ObjectId"
	case TypeBool:
		return "Bool"
	case TypeDateTime:
		return "DateTime"
	case TypeNull:
		return "Null"
	case TypeI32:
		return "I32"
	case TypeI64:
		return "I64"
	default:
		return "Unknown"
	}
}

// IsValid reports whether t is one of the closed set of value types.
func (t Type) IsValid() bool {
	switch t {
	case TypeF64, TypeString, TypeObject, TypeArray, TypeBinary,
		TypeObjectId, TypeBool, TypeDateTime, TypeNull, TypeI32, TypeI64:
		return true
	default:
		return false
	}
}

// Value is a tagged union over the closed set of document value types.
//
// The zero Value is Null. Values are constructed through the typed factory
// functions (F64, String, Array, ...) and inspected by switching on Type()
// and calling the matching accessor. Accessors on a mismatched variant
// return the zero value of their type.
type Value struct {
	obj *Object
	arr []Value
	str string
	bin []byte
	i64 int64
	f64 float64
	oid ObjectId
	typ Type
	sub byte
}

// Null returns the null value.
func Null() Value {
	return Value{typ: TypeNull}
}

// Bool returns a boolean value.
func Bool(v bool) Value {
	var i int64
	if v {
		i = 1
	}

	return Value{typ: TypeBool, i64: i}
}

// I32 returns a 32-bit integer value.
func I32(v int32) Value {
	return Value{typ: TypeI32, i64: int64(v)}
}

// I64 returns a 64-bit integer value.
func I64(v int64) Value {
	return Value{typ: TypeI64, i64: v}
}

// F64 returns a double-precision float value.
func F64(v float64) Value {
	return Value{typ: TypeF64, f64: v}
}

// String returns a UTF-8 string value. Validity of the UTF-8 is enforced by
// the codec at serialization time.
func String(v string) Value {
	return Value{typ: TypeString, str: v}
}

// Binary returns an opaque byte sequence value with subtype 0.
func Binary(v []byte) Value {
	return BinaryWithSubtype(v, 0)
}

// BinaryWithSubtype returns an opaque byte sequence value with an explicit
// subtype tag.
func BinaryWithSubtype(v []byte, subtype byte) Value {
	return Value{typ: TypeBinary, bin: v, sub: subtype}
}

// ObjectIdVal returns an ObjectId value.
func ObjectIdVal(id ObjectId) Value {
	return Value{typ: TypeObjectId, oid: id}
}

// DateTime returns a timestamp value from milliseconds since the Unix epoch.
func DateTime(millis int64) Value {
	return Value{typ: TypeDateTime, i64: millis}
}

// Array returns an ordered sequence value.
func Array(elems ...Value) Value {
	return Value{typ: TypeArray, arr: elems}
}

// ObjectVal returns an embedded object value. A nil object is treated as
// empty.
func ObjectVal(obj *Object) Value {
	if obj == nil {
		obj = NewObject()
	}

	return Value{typ: TypeObject, obj: obj}
}

// Type returns the variant tag of the value.
func (v Value) Type() Type {
	if v.typ == 0 {
		return TypeNull
	}

	return v.typ
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.Type() == TypeNull
}

// BoolVal returns the boolean payload.
func (v Value) BoolVal() bool {
	return v.typ == TypeBool && v.i64 != 0
}

// I32Val returns the 32-bit integer payload.
func (v Value) I32Val() int32 {
	if v.typ != TypeI32 {
		return 0
	}

	return int32(v.i64)
}

// I64Val returns the 64-bit integer payload.
func (v Value) I64Val() int64 {
	if v.typ != TypeI64 {
		return 0
	}

	return v.i64
}

// F64Val returns the float payload.
func (v Value) F64Val() float64 {
	if v.typ != TypeF64 {
		return 0
	}

	return v.f64
}

// StringVal returns the string payload.
func (v Value) StringVal() string {
	if v.typ != TypeString {
		return ""
	}

	return v.str
}

// BinaryVal returns the binary payload and its subtype.
func (v Value) BinaryVal() ([]byte, byte) {
	if v.typ != TypeBinary {
		return nil, 0
	}

	return v.bin, v.sub
}

// ObjectIdValue returns the ObjectId payload.
func (v Value) ObjectIdValue() ObjectId {
	if v.typ != TypeObjectId {
		return ObjectId{}
	}

	return v.oid
}

// DateTimeVal returns the timestamp payload in milliseconds since the Unix
// epoch.
func (v Value) DateTimeVal() int64 {
	if v.typ != TypeDateTime {
		return 0
	}

	return v.i64
}

// ArrayVal returns the element slice of an array value. The returned slice
// is shared with the value; callers must not mutate it.
func (v Value) ArrayVal() []Value {
	if v.typ != TypeArray {
		return nil
	}

	return v.arr
}

// ObjectValue returns the embedded object of an object value.
func (v Value) ObjectValue() *Object {
	if v.typ != TypeObject {
		return nil
	}

	return v.obj
}

// Equal reports deep structural equality of two values. Float comparison is
// bitwise, so NaN equals NaN and +0 differs from -0, matching the
// byte-identical serialization guarantee.
func (v Value) Equal(other Value) bool {
	if v.Type() != other.Type() {
		return false
	}

	switch v.Type() {
	case TypeNull:
		return true
	case TypeBool, TypeI32, TypeI64, TypeDateTime:
		return v.i64 == other.i64
	case TypeF64:
		return math.Float64bits(v.f64) == math.Float64bits(other.f64)
	case TypeString:
		return v.str == other.str
	case TypeBinary:
		return v.sub == other.sub && bytes.Equal(v.bin, other.bin)
	case TypeObjectId:
		return v.oid == other.oid
	case TypeArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}

		return true
	case TypeObject:
		return v.obj.Equal(other.obj)
	default:
		return false
	}
}
