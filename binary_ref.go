package binstream

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/filegrind/binstream-go/wire"
)

// BinaryReference is the metadata object embedded in an RPC result in
// place of inline data. It is produced when a transfer is registered and
// consumed exactly once to retrieve the bytes. The surrounding RPC layer
// treats it as opaque.
type BinaryReference struct {
	// StreamID correlates this reference with the registered transfer.
	StreamID wire.StreamID `json:"streamId"`
	// Size is the total size of the referenced object in bytes.
	Size uint64 `json:"size"`
	// Checksum is the hex-encoded SHA-256 digest of the complete byte
	// sequence. Empty when the sender declared none.
	Checksum string `json:"checksum,omitempty"`
	// MimeType describes the referenced bytes.
	MimeType string `json:"mimeType"`
}

// HasChecksum reports whether the sender declared an integrity digest.
func (r BinaryReference) HasChecksum() bool {
	return r.Checksum != ""
}

// ByteRange selects a half-open window [Start, End) of an object. A nil
// End extends the window to the object's full size. Range retrieval and
// integrity verification are mutually exclusive: a declared checksum
// covers only the complete object and is never validated for a window.
type ByteRange struct {
	Start uint64  `json:"start"`
	End   *uint64 `json:"end,omitempty"`
}

// resolveRange computes the effective [start, end) window against an
// object of the given full size. A nil rng selects the whole object.
func resolveRange(rng *ByteRange, fullSize uint64) (start, end uint64, err error) {
	if rng == nil {
		return 0, fullSize, nil
	}
	start = rng.Start
	end = fullSize
	if rng.End != nil {
		end = *rng.End
	}
	if start > end {
		return 0, 0, NewInvalidRangeError(fmt.Sprintf("start %d past end %d", start, end))
	}
	if end > fullSize {
		return 0, 0, NewInvalidRangeError(fmt.Sprintf("end %d past object size %d", end, fullSize))
	}
	return start, end, nil
}

// ChecksumHex computes the hex-encoded SHA-256 digest of data, the
// format BinaryReference carries in JSON.
func ChecksumHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
