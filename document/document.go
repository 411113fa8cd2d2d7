// Package document defines the in-memory data model of rdbe: the closed
// Value union, the ordered Object map, the Document wrapper, and the
// ObjectId key type with its per-engine generator.
package document

// IDFieldName is the reserved key under which a document's id is persisted
// inside its serialized bytes. Callers may not use it as a top-level field
// name; nested objects may.
const IDFieldName = "_id"

// Document is an ordered set of named fields tagged with an ObjectId.
//
// The id is assigned at construction and is distinct from the fields; it is
// stored on disk under the reserved key "_id" and lifted back out on
// deserialization.
type Document struct {
	Fields *Object
	ID     ObjectId
}

// New creates an empty document with the given id.
func New(id ObjectId) *Document {
	return &Document{
		ID:     id,
		Fields: NewObject(),
	}
}

// Set stores value under key and returns the document for call chaining.
func (d *Document) Set(key string, value Value) *Document {
	d.Fields.Set(key, value)
	return d
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (Value, bool) {
	return d.Fields.Get(key)
}

// Equal reports whether two documents have the same id and equal fields.
func (d *Document) Equal(other *Document) bool {
	if other == nil {
		return d == nil
	}

	return d.ID == other.ID && d.Fields.Equal(other.Fields)
}
