// Package codec serializes documents to and from the rdbe wire format, a
// self-describing, length-prefixed binary encoding:
//
//	document := len(i32 LE) field* 0x00
//	field    := type(u8) cstring value
//	cstring  := UTF-8 bytes ... 0x00
//	string   := len(i32 LE, includes trailing NUL) UTF-8 bytes NUL
//
// Field order is the sorted key order of the object, so two equal documents
// serialize byte-identically. Arrays are encoded as embedded documents whose
// field names are the decimal indices "0", "1", ... in index order.
//
// The document id travels inside the bytes under the reserved key "_id";
// Deserialize lifts it back out into Document.ID.
//
// Two decode surfaces are provided: Deserialize for full documents, and
// DeserializePartial for selected top-level fields with length-arithmetic
// skipping of the rest. Measure inspects an in-memory document's size and
// depth without encoding it. StreamingEncoder writes a document to an
// io.Writer with observational progress reporting.
package codec
