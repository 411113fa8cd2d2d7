package codec

import (
	"fmt"
	"io"

	"github.com/arloliu/rdbe/document"
	"github.com/arloliu/rdbe/endian"
	"github.com/arloliu/rdbe/internal/pool"
)

// ProgressFunc observes encoding progress. It is invoked with the number of
// bytes written so far and the total expected size; it must not attempt to
// influence the output, which is identical with or without a callback.
type ProgressFunc func(bytesWritten, totalExpected int)

// StreamingEncoder writes serialized documents to an io.Writer, flushing
// after every top-level field and reporting progress along the way. The
// encoded bytes are identical to Serialize's output.
//
// A StreamingEncoder is single-use per document but may encode several
// documents in sequence onto the same writer.
type StreamingEncoder struct {
	w        io.Writer
	progress ProgressFunc
	written  int
	docStart int
	total    int
}

// NewStreamingEncoder creates an encoder writing to w. progress may be nil.
func NewStreamingEncoder(w io.Writer, progress ProgressFunc) *StreamingEncoder {
	return &StreamingEncoder{w: w, progress: progress}
}

// BytesWritten returns the total number of bytes flushed to the writer.
func (e *StreamingEncoder) BytesWritten() int {
	return e.written
}

// Encode serializes doc onto the underlying writer.
//
// The document is validated up front (same failure modes as Serialize); on
// validation failure nothing is written. Write errors from the underlying
// writer are returned as-is, wrapped with context.
func (e *StreamingEncoder) Encode(doc *document.Document) error {
	stats, err := Measure(doc)
	if err != nil {
		return err
	}
	e.docStart = e.written
	e.total = stats.Size

	buf := pool.GetDocBuffer()
	defer pool.PutDocBuffer(buf)

	engine := endian.GetLittleEndianEngine()

	// The total size is known, so the root length prefix streams out first
	// instead of being back-patched.
	buf.B = engine.AppendUint32(buf.B, uint32(stats.Size)) //nolint:gosec
	if err := e.flush(buf); err != nil {
		return err
	}

	idWritten := false
	for key, val := range doc.Fields.All() {
		if !idWritten && key > document.IDFieldName {
			appendIDField(buf, doc.ID)
			idWritten = true
		}
		appendField(buf, key, val)

		if err := e.flush(buf); err != nil {
			return err
		}
	}
	if !idWritten {
		appendIDField(buf, doc.ID)
	}

	buf.MustWriteByte(0)
	if err := e.flush(buf); err != nil {
		return err
	}

	if e.written-e.docStart != stats.Size {
		// Mismatch between Measure and the append pass is a codec bug.
		panic(fmt.Sprintf("codec: streamed %d bytes, expected %d", e.written-e.docStart, stats.Size))
	}

	return nil
}

// flush writes the buffered bytes to the writer, resets the buffer, and
// reports progress for the document being encoded.
func (e *StreamingEncoder) flush(buf *pool.ByteBuffer) error {
	if buf.Len() == 0 {
		return nil
	}

	if _, err := buf.WriteTo(e.w); err != nil {
		return fmt.Errorf("streaming encode: %w", err)
	}
	e.written += buf.Len()
	buf.Reset()

	if e.progress != nil {
		e.progress(e.written-e.docStart, e.total)
	}

	return nil
}
