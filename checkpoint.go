package binstream

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/filegrind/binstream-go/wire"
)

// Checkpoint captures the progress of a partially received transfer in a
// compact, durable form so a receiver can resume after an interruption
// instead of refetching from byte zero. The encoding is CBOR; binary
// fields stay binary.
type Checkpoint struct {
	StreamID      []byte `cbor:"stream_id"`
	TotalSize     uint64 `cbor:"total_size"`
	BytesReceived uint64 `cbor:"bytes_received"`
	Mode          string `cbor:"mode"`
	MimeType      string `cbor:"mime_type"`
}

// NewCheckpoint captures resume state for a reference after
// bytesReceived bytes arrived.
func NewCheckpoint(ref BinaryReference, mode Mode, bytesReceived uint64) Checkpoint {
	return Checkpoint{
		StreamID:      ref.StreamID.Bytes(),
		TotalSize:     ref.Size,
		BytesReceived: bytesReceived,
		Mode:          string(mode),
		MimeType:      ref.MimeType,
	}
}

// Encode serializes the checkpoint to CBOR.
func (cp Checkpoint) Encode() ([]byte, error) {
	return cbor.Marshal(cp)
}

// DecodeCheckpoint deserializes a CBOR checkpoint.
func DecodeCheckpoint(data []byte) (Checkpoint, error) {
	var cp Checkpoint
	if err := cbor.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	if _, err := wire.StreamIDFromBytes(cp.StreamID); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}

// ResumeReceive continues a partially received transfer from a
// checkpoint, requesting only the remaining byte window. Resumed windows
// are partial reads and therefore unverified; a caller holding the full
// reassembled object can still check it against the reference checksum
// with ChecksumHex.
func (c *TransferCoordinator) ResumeReceive(ctx context.Context, ref BinaryReference, cp Checkpoint) ([]byte, error) {
	id, err := wire.StreamIDFromBytes(cp.StreamID)
	if err != nil {
		return nil, err
	}
	if id != ref.StreamID {
		return nil, fmt.Errorf("checkpoint stream %s does not match reference %s", id, ref.StreamID)
	}
	if cp.TotalSize != ref.Size {
		return nil, fmt.Errorf("checkpoint size %d does not match reference %d", cp.TotalSize, ref.Size)
	}
	if cp.BytesReceived >= ref.Size {
		return nil, NewInvalidRangeError(fmt.Sprintf("checkpoint already holds all %d bytes", cp.TotalSize))
	}

	mode, err := ParseMode(cp.Mode)
	if err != nil {
		return nil, err
	}

	return c.BeginReceive(ctx, ref, mode, WithReceiveRange(ByteRange{Start: cp.BytesReceived}))
}
