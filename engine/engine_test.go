package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/rdbe/document"
	"github.com/arloliu/rdbe/errs"
	"github.com/arloliu/rdbe/format"
	"github.com/arloliu/rdbe/snapshot"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.rdbe")
	e, err := Create(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() }) //nolint:errcheck

	return e, path
}

func sampleDoc(e *Engine) *document.Document {
	doc := e.NewDocument()
	doc.Set("name", document.String("Alice"))
	doc.Set("age", document.I32(28))
	doc.Set("active", document.Bool(true))
	doc.Set("balance", document.F64(1250.75))

	return doc
}

func TestEngine_InsertGet(t *testing.T) {
	e, _ := newTestEngine(t, WithPoolCapacity(4))

	doc := sampleDoc(e)
	id, err := e.Insert(doc)
	require.NoError(t, err)

	loaded, err := e.Get(id)
	require.NoError(t, err)
	require.True(t, doc.Equal(loaded))
}

func TestEngine_InsertGetAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.rdbe")

	e, err := Create(path, WithPoolCapacity(4))
	require.NoError(t, err)

	docs := make([]*document.Document, 3)
	ids := make([]DocumentId, 3)
	for i := range docs {
		docs[i] = sampleDoc(e)
		ids[i], err = e.Insert(docs[i])
		require.NoError(t, err)
		require.Equal(t, uint64(0), ids[i].PageID, "small documents share page 0")
	}
	require.NoError(t, e.Close())

	e, err = Open(path, WithPoolCapacity(4))
	require.NoError(t, err)
	defer e.Close() //nolint:errcheck

	for i, want := range docs {
		got, err := e.Get(ids[i])
		require.NoError(t, err)
		require.True(t, want.Equal(got), "document %d after reopen", i)
	}
}

func TestEngine_GetErrors(t *testing.T) {
	e, _ := newTestEngine(t)

	id, err := e.Insert(sampleDoc(e))
	require.NoError(t, err)

	t.Run("Unallocated page", func(t *testing.T) {
		_, err := e.Get(DocumentId{PageID: 42})
		require.ErrorIs(t, err, errs.ErrDocumentNotFound)
	})

	t.Run("Out-of-range slot", func(t *testing.T) {
		_, err := e.Get(DocumentId{PageID: id.PageID, SlotID: 99})
		require.ErrorIs(t, err, errs.ErrDocumentNotFound)
	})

	t.Run("Deleted document", func(t *testing.T) {
		require.NoError(t, e.Delete(id))
		_, err := e.Get(id)
		require.ErrorIs(t, err, errs.ErrDocumentNotFound)
	})
}

func TestEngine_Delete(t *testing.T) {
	e, _ := newTestEngine(t)

	id, err := e.Insert(sampleDoc(e))
	require.NoError(t, err)

	require.NoError(t, e.Delete(id))
	require.ErrorIs(t, e.Delete(id), errs.ErrDocumentNotFound)
	require.ErrorIs(t, e.Delete(DocumentId{PageID: 9}), errs.ErrDocumentNotFound)
}

func TestEngine_UpdateInPlace(t *testing.T) {
	e, _ := newTestEngine(t)

	doc := sampleDoc(e)
	id, err := e.Insert(doc)
	require.NoError(t, err)

	// Fewer fields: the serialization shrinks, so the record is rewritten
	// in place.
	smaller := document.New(doc.ID)
	smaller.Set("name", document.String("Bob"))

	newID, err := e.Update(id, smaller)
	require.NoError(t, err)
	require.Equal(t, id, newID, "shrinking update keeps the handle")

	got, err := e.Get(newID)
	require.NoError(t, err)
	require.True(t, smaller.Equal(got))
}

func TestEngine_UpdateGrown(t *testing.T) {
	e, _ := newTestEngine(t)

	doc := sampleDoc(e)
	id, err := e.Insert(doc)
	require.NoError(t, err)

	grown := document.New(doc.ID)
	grown.Set("name", document.String("Alice"))
	grown.Set("bio", document.String("a considerably longer biography field that forces relocation"))

	newID, err := e.Update(id, grown)
	require.NoError(t, err)

	got, err := e.Get(newID)
	require.NoError(t, err)
	require.True(t, grown.Equal(got))

	// The old record is gone; exactly one copy exists.
	if newID != id {
		_, err = e.Get(id)
		require.ErrorIs(t, err, errs.ErrDocumentNotFound)
	}
}

func TestEngine_UpdateMissing(t *testing.T) {
	e, _ := newTestEngine(t)

	id, err := e.Insert(sampleDoc(e))
	require.NoError(t, err)
	require.NoError(t, e.Delete(id))

	_, err = e.Update(id, sampleDoc(e))
	require.ErrorIs(t, err, errs.ErrDocumentNotFound)
}

func TestEngine_OversizeDocuments(t *testing.T) {
	e, _ := newTestEngine(t)

	t.Run("Too large for a page", func(t *testing.T) {
		doc := e.NewDocument()
		doc.Set("blob", document.Binary(make([]byte, 10000)))

		_, err := e.Insert(doc)
		require.ErrorIs(t, err, errs.ErrDocumentTooLargeForPage)
	})

	t.Run("Too large for the codec", func(t *testing.T) {
		doc := e.NewDocument()
		doc.Set("blob", document.Binary(make([]byte, 17*1024*1024)))

		_, err := e.Insert(doc)
		require.ErrorIs(t, err, errs.ErrDocumentTooLarge)
	})
}

func TestEngine_SpillsToNewPages(t *testing.T) {
	e, _ := newTestEngine(t, WithPoolCapacity(2))

	// ~4KB documents: two per page.
	ids := make([]DocumentId, 5)
	docs := make([]*document.Document, 5)
	for i := range ids {
		docs[i] = e.NewDocument()
		docs[i].Set("payload", document.Binary(make([]byte, 3900)))
		docs[i].Set("seq", document.I32(int32(i)))

		var err error
		ids[i], err = e.Insert(docs[i])
		require.NoError(t, err)
	}

	require.Equal(t, uint64(3), e.PageCount())

	for i := range ids {
		got, err := e.Get(ids[i])
		require.NoError(t, err)
		require.True(t, docs[i].Equal(got), "document %d", i)
	}

	e.Pool().ValidateConsistency()
}

func TestEngine_DeletedSlotIsReused(t *testing.T) {
	e, _ := newTestEngine(t)

	first, err := e.Insert(sampleDoc(e))
	require.NoError(t, err)
	_, err = e.Insert(sampleDoc(e))
	require.NoError(t, err)

	require.NoError(t, e.Delete(first))

	replacement := sampleDoc(e)
	id, err := e.Insert(replacement)
	require.NoError(t, err)
	require.Equal(t, first, id, "the tombstoned slot is recycled")

	got, err := e.Get(id)
	require.NoError(t, err)
	require.True(t, replacement.Equal(got))
}

func TestEngine_FlushAndBackup(t *testing.T) {
	e, path := newTestEngine(t)

	doc := sampleDoc(e)
	id, err := e.Insert(doc)
	require.NoError(t, err)
	require.NoError(t, e.Flush())

	snapPath := path + ".snap"
	require.NoError(t, e.Backup(snapPath))
	require.NoError(t, snapshot.Verify(snapPath))

	restoredPath := path + ".restored"
	require.NoError(t, snapshot.Restore(snapPath, restoredPath))

	restored, err := Open(restoredPath)
	require.NoError(t, err)
	defer restored.Close() //nolint:errcheck

	got, err := restored.Get(id)
	require.NoError(t, err)
	require.True(t, doc.Equal(got))
}

func TestEngine_BackupCompressionOption(t *testing.T) {
	e, path := newTestEngine(t, WithBackupCompression(format.CompressionLZ4))

	_, err := e.Insert(sampleDoc(e))
	require.NoError(t, err)

	snapPath := path + ".snap"
	require.NoError(t, e.Backup(snapPath))
	require.NoError(t, snapshot.Verify(snapPath))
}

func TestEngine_OptionValidation(t *testing.T) {
	dir := t.TempDir()

	_, err := Create(filepath.Join(dir, "a.rdbe"), WithPoolCapacity(0))
	require.Error(t, err)

	_, err = Create(filepath.Join(dir, "b.rdbe"), WithBackupCompression(format.CompressionType(0x99)))
	require.Error(t, err)
}
