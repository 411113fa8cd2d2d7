package pagefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/rdbe/errs"
	"github.com/arloliu/rdbe/format"
	"github.com/arloliu/rdbe/page"
)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.rdbe")
}

func TestHeader_RoundTrip(t *testing.T) {
	h := NewHeader()
	h.PageCount = 17
	h.Flags = 0xABCD

	parsed, err := ParseHeader(h.Bytes())
	require.NoError(t, err)
	require.Equal(t, h, parsed)
}

func TestParseHeader_Errors(t *testing.T) {
	t.Run("Too short", func(t *testing.T) {
		_, err := ParseHeader(make([]byte, 10))
		require.ErrorIs(t, err, errs.ErrInvalidHeaderSize)
	})

	t.Run("Bad magic", func(t *testing.T) {
		b := NewHeader().Bytes()
		b[0] = 'X'
		_, err := ParseHeader(b)
		require.ErrorIs(t, err, errs.ErrInvalidMagicNumber)
	})

	t.Run("Unsupported version", func(t *testing.T) {
		h := NewHeader()
		h.Version = 99
		_, err := ParseHeader(h.Bytes())
		require.ErrorIs(t, err, errs.ErrIncompatibleVersion)
	})

	t.Run("Wrong page size", func(t *testing.T) {
		h := NewHeader()
		h.PageSize = 4096
		_, err := ParseHeader(h.Bytes())
		require.ErrorIs(t, err, errs.ErrCorrupt)
	})
}

func TestCreateAndOpen(t *testing.T) {
	path := tempPath(t)

	f, err := Create(path)
	require.NoError(t, err)
	require.Equal(t, uint64(0), f.PageCount())
	require.NoError(t, f.Close())

	f, err = Open(path)
	require.NoError(t, err)
	require.Equal(t, uint64(0), f.PageCount())
	require.NoError(t, f.Close())
}

func TestCreate_ExistingFileFails(t *testing.T) {
	path := tempPath(t)

	f, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Create(path)
	require.ErrorIs(t, err, os.ErrExist)
}

func TestOpen_Locking(t *testing.T) {
	path := tempPath(t)

	f, err := Create(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	_, err = Open(path)
	require.ErrorIs(t, err, errs.ErrDatabaseLocked)
}

func TestFile_AllocateWriteRead(t *testing.T) {
	path := tempPath(t)

	f, err := Create(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	id, err := f.AllocatePage(format.PageTypeData)
	require.NoError(t, err)
	require.Equal(t, uint64(0), id)
	require.Equal(t, uint64(1), f.PageCount())

	p := page.NewPage(id, format.PageTypeData)
	slot, err := p.InsertRecord([]byte("persisted record"))
	require.NoError(t, err)
	require.NoError(t, f.WritePage(p))
	require.NoError(t, f.Flush())

	loaded, err := f.ReadPage(id)
	require.NoError(t, err)
	require.Equal(t, id, loaded.ID())

	got, err := loaded.ReadRecord(slot)
	require.NoError(t, err)
	require.Equal(t, []byte("persisted record"), got)
}

func TestFile_AllocatePersistsAcrossReopen(t *testing.T) {
	path := tempPath(t)

	f, err := Create(path)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		id, err := f.AllocatePage(format.PageTypeData)
		require.NoError(t, err)
		require.NoError(t, f.WritePage(page.NewPage(id, format.PageTypeData)))
	}
	require.NoError(t, f.Close())

	f, err = Open(path)
	require.NoError(t, err)
	require.Equal(t, uint64(3), f.PageCount())
	require.NoError(t, f.Close())
}

func TestFile_ReadPageErrors(t *testing.T) {
	path := tempPath(t)

	f, err := Create(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	t.Run("Beyond page count", func(t *testing.T) {
		_, err := f.ReadPage(5)
		require.ErrorIs(t, err, errs.ErrCorrupt)
	})

	t.Run("Checksum mismatch", func(t *testing.T) {
		id, err := f.AllocatePage(format.PageTypeData)
		require.NoError(t, err)
		p := page.NewPage(id, format.PageTypeData)
		_, err = p.InsertRecord(make([]byte, 100))
		require.NoError(t, err)
		require.NoError(t, f.WritePage(p))
		require.NoError(t, f.Flush())

		// Flip one byte inside the record behind the file's back.
		raw, err := os.OpenFile(path, os.O_RDWR, 0o644)
		require.NoError(t, err)
		offset := pageOffset(id) + page.Size - 50
		_, err = raw.WriteAt([]byte{0xFF}, offset)
		require.NoError(t, err)
		require.NoError(t, raw.Close())

		_, err = f.ReadPage(id)
		require.ErrorIs(t, err, errs.ErrChecksumMismatch)
		require.ErrorIs(t, err, errs.ErrCorrupt)
	})
}

func TestOpen_SizeMismatchIsCorrupt(t *testing.T) {
	path := tempPath(t)

	f, err := Create(path)
	require.NoError(t, err)
	id, err := f.AllocatePage(format.PageTypeData)
	require.NoError(t, err)
	require.NoError(t, f.WritePage(page.NewPage(id, format.PageTypeData)))
	require.NoError(t, f.Close())

	// Truncate away half a page.
	require.NoError(t, os.Truncate(path, int64(HeaderSize+page.Size/2)))

	_, err = Open(path)
	require.ErrorIs(t, err, errs.ErrCorrupt)
}
