package document

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValue_Accessors(t *testing.T) {
	require.True(t, Null().IsNull())
	require.True(t, Bool(true).BoolVal())
	require.False(t, Bool(false).BoolVal())
	require.Equal(t, int32(-42), I32(-42).I32Val())
	require.Equal(t, int64(1<<40), I64(1<<40).I64Val())
	require.Equal(t, 1250.75, F64(1250.75).F64Val())
	require.Equal(t, "hello", String("hello").StringVal())
	require.Equal(t, int64(1700000000123), DateTime(1700000000123).DateTimeVal())

	data, subtype := BinaryWithSubtype([]byte{1, 2, 3}, 5).BinaryVal()
	require.Equal(t, []byte{1, 2, 3}, data)
	require.Equal(t, byte(5), subtype)
}

func TestValue_MismatchedAccessorsReturnZero(t *testing.T) {
	v := String("text")

	require.Equal(t, int32(0), v.I32Val())
	require.Equal(t, 0.0, v.F64Val())
	require.False(t, v.BoolVal())
	require.Nil(t, v.ArrayVal())
	require.Nil(t, v.ObjectValue())
}

func TestValue_ZeroValueIsNull(t *testing.T) {
	var v Value
	require.Equal(t, TypeNull, v.Type())
	require.True(t, v.IsNull())
	require.True(t, v.Equal(Null()))
}

func TestValue_Equal(t *testing.T) {
	t.Run("Scalars", func(t *testing.T) {
		require.True(t, I32(7).Equal(I32(7)))
		require.False(t, I32(7).Equal(I64(7)), "different types are never equal")
		require.True(t, F64(math.NaN()).Equal(F64(math.NaN())), "bitwise float equality")
	})

	t.Run("Arrays", func(t *testing.T) {
		a := Array(I32(1), String("two"))
		require.True(t, a.Equal(Array(I32(1), String("two"))))
		require.False(t, a.Equal(Array(I32(1))))
	})

	t.Run("Objects", func(t *testing.T) {
		left := NewObject().Set("a", I32(1)).Set("b", Null())
		right := NewObject().Set("b", Null()).Set("a", I32(1))
		require.True(t, ObjectVal(left).Equal(ObjectVal(right)), "insertion order must not matter")
	})
}

func TestObject_SortedIteration(t *testing.T) {
	obj := NewObject()
	obj.Set("name", String("Alice"))
	obj.Set("age", I32(28))
	obj.Set("active", Bool(true))
	obj.Set("balance", F64(1250.75))

	require.Equal(t, []string{"active", "age", "balance", "name"}, obj.Keys())

	var seen []string
	for key := range obj.All() {
		seen = append(seen, key)
	}
	require.Equal(t, obj.Keys(), seen)
}

func TestObject_SetReplacesExisting(t *testing.T) {
	obj := NewObject()
	obj.Set("k", I32(1))
	obj.Set("k", I32(2))

	require.Equal(t, 1, obj.Len())
	v, ok := obj.Get("k")
	require.True(t, ok)
	require.Equal(t, int32(2), v.I32Val())
}

func TestObject_Delete(t *testing.T) {
	obj := NewObject().Set("a", I32(1)).Set("b", I32(2))

	require.True(t, obj.Delete("a"))
	require.False(t, obj.Delete("a"))
	require.Equal(t, []string{"b"}, obj.Keys())
}

func TestDocument_Equal(t *testing.T) {
	gen := NewObjectIdGenerator()
	id := gen.Next()

	d1 := New(id).Set("x", I32(1))
	d2 := New(id).Set("x", I32(1))
	require.True(t, d1.Equal(d2))

	d3 := New(gen.Next()).Set("x", I32(1))
	require.False(t, d1.Equal(d3), "documents with different ids differ")
}
