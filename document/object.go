package document

import (
	"iter"
	"sort"
)

// Field is a single key/value pair inside an Object.
type Field struct {
	Key   string
	Value Value
}

// Object is an ordered mapping from string keys to values, kept sorted
// lexicographically by key so that serialization is a linear scan and two
// equal objects serialize byte-identically.
//
// Keys are unique; Set on an existing key replaces its value.
type Object struct {
	fields []Field
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{}
}

// search returns the index where key lives or would be inserted.
func (o *Object) search(key string) (int, bool) {
	idx := sort.Search(len(o.fields), func(i int) bool {
		return o.fields[i].Key >= key
	})
	if idx < len(o.fields) && o.fields[idx].Key == key {
		return idx, true
	}

	return idx, false
}

// Set inserts or replaces the value stored under key, keeping the field
// slice sorted. It returns the object for call chaining.
func (o *Object) Set(key string, value Value) *Object {
	idx, found := o.search(key)
	if found {
		o.fields[idx].Value = value
		return o
	}

	o.fields = append(o.fields, Field{})
	copy(o.fields[idx+1:], o.fields[idx:])
	o.fields[idx] = Field{Key: key, Value: value}

	return o
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	idx, found := o.search(key)
	if !found {
		return Value{}, false
	}

	return o.fields[idx].Value, true
}

// Delete removes the field stored under key and reports whether it existed.
func (o *Object) Delete(key string) bool {
	idx, found := o.search(key)
	if !found {
		return false
	}

	o.fields = append(o.fields[:idx], o.fields[idx+1:]...)

	return true
}

// Len returns the number of fields.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}

	return len(o.fields)
}

// All iterates the fields in sorted key order.
func (o *Object) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		if o == nil {
			return
		}
		for _, f := range o.fields {
			if !yield(f.Key, f.Value) {
				return
			}
		}
	}
}

// Keys returns the field names in sorted order.
func (o *Object) Keys() []string {
	keys := make([]string, len(o.fields))
	for i, f := range o.fields {
		keys[i] = f.Key
	}

	return keys
}

// Equal reports whether two objects hold the same fields with equal values.
func (o *Object) Equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	for i := range o.fields {
		if o.fields[i].Key != other.fields[i].Key {
			return false
		}
		if !o.fields[i].Value.Equal(other.fields[i].Value) {
			return false
		}
	}

	return true
}
