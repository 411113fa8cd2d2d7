// Package rdbe is an embedded, single-process, document-oriented storage
// engine. It persists self-describing documents (JSON-like trees of
// primitive, array and object values) into a single file of fixed 8 KiB
// pages, with durable, crash-resistant on-disk layout.
//
// # Core Features
//
//   - Self-describing binary document codec with streaming encode and
//     partial decode
//   - Slotted 8 KiB pages with stable record handles, tombstones and
//     in-page compaction
//   - Bounded LRU buffer pool with pinning and dirty-page write-back
//   - Single-file persistence behind an exclusive advisory lock
//   - Compressed, integrity-checked whole-database snapshots
//     (Zstd, S2, LZ4)
//
// # Basic Usage
//
// Creating a database and inserting a document:
//
//	import "github.com/arloliu/rdbe"
//
//	db, _ := rdbe.Create("app.rdbe", rdbe.WithPoolCapacity(128))
//	defer db.Close()
//
//	doc := db.NewDocument()
//	doc.Set("name", document.String("Alice"))
//	doc.Set("age", document.I32(28))
//
//	id, _ := db.Insert(doc)
//	loaded, _ := db.Get(id)
//
// # Package Structure
//
// This package provides convenient top-level wrappers around the engine
// package. For fine-grained control over individual layers, use the codec,
// page, pagefile, bufferpool and snapshot packages directly.
package rdbe

import (
	"github.com/arloliu/rdbe/engine"
	"github.com/arloliu/rdbe/format"
)

// Engine is an open database; see the engine package for the full API.
type Engine = engine.Engine

// DocumentId is the stable handle returned by Engine.Insert.
type DocumentId = engine.DocumentId

// Option configures an Engine at open time.
type Option = engine.Option

// Create initializes a new database file at path and opens it.
func Create(path string, opts ...Option) (*Engine, error) {
	return engine.Create(path, opts...)
}

// Open opens an existing database file at path, taking the exclusive
// advisory lock.
func Open(path string, opts ...Option) (*Engine, error) {
	return engine.Open(path, opts...)
}

// WithPoolCapacity sets the number of resident page frames in the buffer
// pool.
func WithPoolCapacity(capacity int) Option {
	return engine.WithPoolCapacity(capacity)
}

// WithBackupCompression selects the snapshot compression codec used by
// Engine.Backup.
func WithBackupCompression(compression format.CompressionType) Option {
	return engine.WithBackupCompression(compression)
}
