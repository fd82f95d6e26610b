package wire

import (
	"errors"

	"github.com/google/uuid"
)

// StreamID is a 128-bit random stream identifier. It correlates a binary
// payload moving over a side channel with the JSON-RPC message that
// references it. IDs are generated with UUID-grade entropy, never
// sequentially.
type StreamID [16]byte

// ZeroStreamID is the all-zero StreamID. It is never produced by
// NewStreamID and marks an unset identifier.
var ZeroStreamID StreamID

// NewStreamID generates a new cryptographically random StreamID.
func NewStreamID() StreamID {
	return StreamID(uuid.New())
}

// StreamIDFromBytes creates a StreamID from raw bytes.
func StreamIDFromBytes(b []byte) (StreamID, error) {
	if len(b) != 16 {
		return StreamID{}, errors.New("stream ID must be exactly 16 bytes")
	}
	var id StreamID
	copy(id[:], b)
	return id, nil
}

// ParseStreamID parses the canonical UUID string form of a StreamID.
func ParseStreamID(s string) (StreamID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return StreamID{}, err
	}
	return StreamID(u), nil
}

// String returns the canonical UUID string form.
func (id StreamID) String() string {
	return uuid.UUID(id).String()
}

// Bytes returns the raw 16-byte form.
func (id StreamID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}

// IsZero reports whether the ID is unset.
func (id StreamID) IsZero() bool {
	return id == ZeroStreamID
}

// MarshalText implements encoding.TextMarshaler so StreamIDs serialize
// as UUID strings in JSON payloads.
func (id StreamID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *StreamID) UnmarshalText(text []byte) error {
	parsed, err := ParseStreamID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
