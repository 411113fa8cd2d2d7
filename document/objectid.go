package document

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/rdbe/endian"
	"github.com/arloliu/rdbe/errs"
)

// ObjectIdSize is the byte length of an ObjectId.
const ObjectIdSize = 12

// ObjectId is a 12-byte globally-unique document key:
//
//	bytes 0-3:  seconds since the Unix epoch, big-endian
//	bytes 4-8:  random token, fixed per generator
//	bytes 9-11: monotonically incrementing counter, big-endian
//
// Ids minted by the same generator within one second have strictly
// increasing counter values.
type ObjectId [ObjectIdSize]byte

// Timestamp returns the creation time of the id at second granularity.
func (id ObjectId) Timestamp() time.Time {
	secs := endian.GetBigEndianEngine().Uint32(id[0:4])
	return time.Unix(int64(secs), 0).UTC()
}

// Counter returns the 24-bit counter component.
func (id ObjectId) Counter() uint32 {
	return uint32(id[9])<<16 | uint32(id[10])<<8 | uint32(id[11])
}

// Bytes returns the id as a 12-byte slice.
func (id ObjectId) Bytes() []byte {
	return id[:]
}

// String returns the id as 24 lowercase hex characters.
func (id ObjectId) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the id is the all-zero sentinel.
func (id ObjectId) IsZero() bool {
	return id == ObjectId{}
}

// ObjectIdFromBytes builds an ObjectId from a 12-byte slice.
func ObjectIdFromBytes(data []byte) (ObjectId, error) {
	if len(data) != ObjectIdSize {
		return ObjectId{}, fmt.Errorf("objectid must be %d bytes, got %d: %w",
			ObjectIdSize, len(data), errs.ErrUnexpectedEndOfData)
	}

	var id ObjectId
	copy(id[:], data)

	return id, nil
}

// ObjectIdFromHex parses a 24-character hex representation.
func ObjectIdFromHex(s string) (ObjectId, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return ObjectId{}, fmt.Errorf("invalid objectid hex %q: %w", s, err)
	}

	return ObjectIdFromBytes(data)
}

// ObjectIdGenerator mints ObjectIds for one engine instance.
//
// The 5-byte token is drawn from a random UUID at construction and stays
// fixed for the generator's lifetime; the counter starts at zero and is
// never reset, which gives the strictly-increasing-within-a-second
// guarantee.
type ObjectIdGenerator struct {
	counter atomic.Uint32
	token   [5]byte
}

// NewObjectIdGenerator creates a generator with a fresh random token.
func NewObjectIdGenerator() *ObjectIdGenerator {
	gen := &ObjectIdGenerator{}

	u := uuid.New()
	copy(gen.token[:], u[:])

	return gen
}

// Next mints a new ObjectId stamped with the current time.
func (g *ObjectIdGenerator) Next() ObjectId {
	return g.NextAt(time.Now())
}

// NextAt mints a new ObjectId stamped with the given time.
func (g *ObjectIdGenerator) NextAt(t time.Time) ObjectId {
	var id ObjectId

	endian.GetBigEndianEngine().PutUint32(id[0:4], uint32(t.Unix())) //nolint:gosec
	copy(id[4:9], g.token[:])

	c := g.counter.Add(1) - 1
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)

	return id
}
