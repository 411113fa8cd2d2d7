// Package endian provides byte order utilities for the rdbe on-disk formats.
//
// All multi-byte integers inside pages, file headers and serialized documents
// are little-endian; ObjectId internals are big-endian. Rather than calling
// encoding/binary directly, the codec and page layers thread an EndianEngine
// so every byte-order decision is explicit at the call site.
package endian

import "encoding/binary"

// EndianEngine combines the ByteOrder and AppendByteOrder interfaces from
// encoding/binary into a single interface for convenient byte order
// operations.
//
// It is satisfied by binary.LittleEndian and binary.BigEndian, so engines
// are immutable, stateless, and safe for concurrent use.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetLittleEndianEngine returns the little-endian engine, the standard for
// every rdbe page and document structure.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine, used only for the
// timestamp and counter fields inside ObjectId.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}
