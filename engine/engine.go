// Package engine wires the document codec, the slotted page layout, the
// buffer pool and the database file into document-level operations: insert,
// get, update and delete by handle, plus whole-database flush, backup and
// shutdown.
//
// The engine is single-threaded and cooperative: one logical thread drives
// it, operations complete in call order, and the only blocking points are
// the synchronous file I/O calls underneath. Every successful pin is paired
// with exactly one unpin on all paths, including failures.
package engine

import (
	"errors"
	"fmt"

	"github.com/arloliu/rdbe/bufferpool"
	"github.com/arloliu/rdbe/codec"
	"github.com/arloliu/rdbe/document"
	"github.com/arloliu/rdbe/errs"
	"github.com/arloliu/rdbe/format"
	"github.com/arloliu/rdbe/page"
	"github.com/arloliu/rdbe/pagefile"
	"github.com/arloliu/rdbe/snapshot"
)

// DocumentId is the stable handle returned by Insert: the page holding the
// record and the slot index inside it. Handles survive compaction; Update
// may return a different handle when the document grows.
type DocumentId struct {
	PageID uint64
	SlotID uint32
}

// Engine is an open database.
type Engine struct {
	file  *pagefile.File
	pool  *bufferpool.Pool
	idGen *document.ObjectIdGenerator
	cfg   config
}

// Create initializes a new database file at path and opens it.
func Create(path string, opts ...Option) (*Engine, error) {
	file, err := pagefile.Create(path)
	if err != nil {
		return nil, err
	}

	return newEngine(file, opts...)
}

// Open opens an existing database file at path.
func Open(path string, opts ...Option) (*Engine, error) {
	file, err := pagefile.Open(path)
	if err != nil {
		return nil, err
	}

	return newEngine(file, opts...)
}

func newEngine(file *pagefile.File, opts ...Option) (*Engine, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		file.Close() //nolint:errcheck,gosec
		return nil, err
	}

	pool, err := bufferpool.New(file, cfg.poolCapacity)
	if err != nil {
		file.Close() //nolint:errcheck,gosec
		return nil, err
	}

	return &Engine{
		file:  file,
		pool:  pool,
		idGen: document.NewObjectIdGenerator(),
		cfg:   cfg,
	}, nil
}

// NewDocument creates an empty document with a freshly minted ObjectId from
// this engine's generator.
func (e *Engine) NewDocument() *document.Document {
	return document.New(e.idGen.Next())
}

// Pool exposes the buffer pool, primarily for inspection in tests.
func (e *Engine) Pool() *bufferpool.Pool {
	return e.pool
}

// PageCount returns the number of allocated pages.
func (e *Engine) PageCount() uint64 {
	return e.file.PageCount()
}

// Insert serializes doc and stores it in the first data page with room,
// allocating a new page when every existing page is full. The returned
// handle locates the record for Get, Update and Delete.
//
// Fails with the codec's validation errors or ErrDocumentTooLargeForPage
// when the serialized form plus its slot entry cannot fit an empty page.
func (e *Engine) Insert(doc *document.Document) (DocumentId, error) {
	data, err := codec.Serialize(doc)
	if err != nil {
		return DocumentId{}, err
	}

	return e.insertBytes(data)
}

func (e *Engine) insertBytes(data []byte) (DocumentId, error) {
	if len(data) > page.MaxRecordSize {
		return DocumentId{}, fmt.Errorf("serialized document of %d bytes exceeds %d: %w",
			len(data), page.MaxRecordSize, errs.ErrDocumentTooLargeForPage)
	}

	for pageID := uint64(0); pageID < e.file.PageCount(); pageID++ {
		p, err := e.pool.Pin(pageID)
		if err != nil {
			return DocumentId{}, err
		}
		if p.Type() != format.PageTypeData {
			e.unpin(pageID, false)
			continue
		}

		slotID, err := p.InsertRecord(data)
		if err == nil {
			e.unpin(pageID, true)
			return DocumentId{PageID: pageID, SlotID: slotID}, nil
		}

		e.unpin(pageID, false)
		if !errors.Is(err, errs.ErrNotEnoughSpace) {
			return DocumentId{}, err
		}
	}

	return e.insertIntoNewPage(data)
}

// insertIntoNewPage allocates and initializes a fresh data page, inserts
// the record, and registers the page with the pool.
func (e *Engine) insertIntoNewPage(data []byte) (DocumentId, error) {
	pageID, err := e.file.AllocatePage(format.PageTypeData)
	if err != nil {
		return DocumentId{}, err
	}

	p := page.NewPage(pageID, format.PageTypeData)
	slotID, err := p.InsertRecord(data)
	if err != nil {
		// The record was size-checked against an empty page.
		return DocumentId{}, err
	}

	if err := e.pool.Admit(p); err != nil {
		return DocumentId{}, err
	}

	return DocumentId{PageID: pageID, SlotID: slotID}, nil
}

// Get loads the document at id. Fails with ErrDocumentNotFound when the
// handle references a tombstone, an out-of-range slot, or a page that was
// never allocated.
func (e *Engine) Get(id DocumentId) (*document.Document, error) {
	if id.PageID >= e.file.PageCount() {
		return nil, fmt.Errorf("page %d: %w", id.PageID, errs.ErrDocumentNotFound)
	}

	p, err := e.pool.Get(id.PageID)
	if err != nil {
		return nil, err
	}

	record, err := p.ReadRecord(id.SlotID)
	if err != nil {
		return nil, fmt.Errorf("slot %d on page %d: %w", id.SlotID, id.PageID, errs.ErrDocumentNotFound)
	}

	return codec.Deserialize(record)
}

// Update replaces the document at id with doc. When the new serialization
// is no longer than the old one the record is overwritten in place and the
// handle is unchanged; otherwise the new document is inserted first (its
// handle may differ) and the old record deleted after. On failure either
// the old or the new record is fully in place, never both or neither.
func (e *Engine) Update(id DocumentId, doc *document.Document) (DocumentId, error) {
	data, err := codec.Serialize(doc)
	if err != nil {
		return DocumentId{}, err
	}
	if id.PageID >= e.file.PageCount() {
		return DocumentId{}, fmt.Errorf("page %d: %w", id.PageID, errs.ErrDocumentNotFound)
	}

	p, err := e.pool.Pin(id.PageID)
	if err != nil {
		return DocumentId{}, err
	}

	old, err := p.ReadRecord(id.SlotID)
	if err != nil {
		e.unpin(id.PageID, false)
		return DocumentId{}, fmt.Errorf("slot %d on page %d: %w", id.SlotID, id.PageID, errs.ErrDocumentNotFound)
	}

	if len(data) <= len(old) {
		if err := p.UpdateRecordInPlace(id.SlotID, data); err != nil {
			e.unpin(id.PageID, false)
			return DocumentId{}, err
		}
		e.unpin(id.PageID, true)

		return id, nil
	}
	e.unpin(id.PageID, false)

	// The document grew: insert the replacement first so a failure leaves
	// the old record untouched.
	newID, err := e.insertBytes(data)
	if err != nil {
		return DocumentId{}, err
	}

	if err := e.deleteRecord(id); err != nil {
		// Roll the replacement back so exactly one copy remains.
		if rollbackErr := e.deleteRecord(newID); rollbackErr != nil {
			panic(fmt.Sprintf("engine: update rollback failed: %v after %v", rollbackErr, err))
		}

		return DocumentId{}, err
	}

	return newID, nil
}

// Delete removes the document at id, turning its slot into a tombstone.
// The heap bytes are reclaimed by the next in-page compaction.
func (e *Engine) Delete(id DocumentId) error {
	if id.PageID >= e.file.PageCount() {
		return fmt.Errorf("page %d: %w", id.PageID, errs.ErrDocumentNotFound)
	}

	if err := e.deleteRecord(id); err != nil {
		return err
	}

	return nil
}

func (e *Engine) deleteRecord(id DocumentId) error {
	p, err := e.pool.Pin(id.PageID)
	if err != nil {
		return err
	}

	if err := p.DeleteRecord(id.SlotID); err != nil {
		e.unpin(id.PageID, false)
		if errors.Is(err, errs.ErrRecordNotFound) || errors.Is(err, errs.ErrSlotOutOfRange) {
			return fmt.Errorf("slot %d on page %d: %w", id.SlotID, id.PageID, errs.ErrDocumentNotFound)
		}

		return err
	}
	e.unpin(id.PageID, true)

	return nil
}

// unpin releases a pin taken by this engine. The pool only fails when the
// page is not resident, which cannot happen while we hold a pin.
func (e *Engine) unpin(pageID uint64, dirty bool) {
	if err := e.pool.Unpin(pageID, dirty); err != nil {
		panic(fmt.Sprintf("engine: unpin page %d: %v", pageID, err))
	}
}

// Flush writes every dirty page back to the file and syncs it to stable
// storage. Pages that fail to write stay dirty for retry.
func (e *Engine) Flush() error {
	if err := e.pool.FlushAll(); err != nil {
		return err
	}

	return e.file.Flush()
}

// Backup flushes the database and writes a compressed, integrity-checked
// snapshot of it to path. The snapshot compression defaults to Zstd and is
// configurable with WithBackupCompression.
func (e *Engine) Backup(path string) error {
	if err := e.Flush(); err != nil {
		return err
	}

	return snapshot.Write(path, e.file, e.cfg.backupCompression)
}

// Close flushes all dirty pages, releases the file lock, and closes the
// file. The engine must not be used afterwards.
func (e *Engine) Close() error {
	if err := e.pool.FlushAll(); err != nil {
		e.file.Close() //nolint:errcheck,gosec
		return err
	}

	return e.file.Close()
}
