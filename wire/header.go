package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Protocol version for the stream-transport header.
const ProtocolVersion uint32 = 1

// HeaderSize is the fixed on-wire size of a stream-transport header:
// magic(4) + version(4) + streamId(16) + size(8) + flags(4).
const HeaderSize = 36

// Magic is the fixed prefix that distinguishes a binary transfer header
// from JSON traffic on a shared byte channel. Receivers that see this
// prefix must not attempt to parse the bytes as JSON.
var Magic = [4]byte{0x4D, 0x43, 0x50, 0x00}

// Header is the per-transfer header of the stream transport. It is sent
// once per transfer, followed by exactly Size payload bytes. Size is the
// authoritative total for the transfer, independent of how senders chunk
// their writes. All integer fields are little-endian on the wire. Flags
// is reserved and encoded as zero in version 1.
type Header struct {
	Version  uint32
	StreamID StreamID
	Size     uint64
	Flags    uint32
}

// NewHeader creates a version-1 header for a transfer.
func NewHeader(id StreamID, size uint64) Header {
	return Header{
		Version:  ProtocolVersion,
		StreamID: id,
		Size:     size,
	}
}

// HasMagic reports whether the given prefix starts a binary transfer
// header. The prefix must be at least len(Magic) bytes.
func HasMagic(prefix []byte) bool {
	return len(prefix) >= len(Magic) && bytes.Equal(prefix[:len(Magic)], Magic[:])
}

// Encode returns the on-wire form of the header, including the magic
// prefix.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	copy(buf[8:24], h.StreamID[:])
	binary.LittleEndian.PutUint64(buf[24:32], h.Size)
	binary.LittleEndian.PutUint32(buf[32:36], h.Flags)
	return buf
}

// WriteHeader writes the header to w.
func WriteHeader(w io.Writer, h Header) error {
	_, err := w.Write(h.Encode())
	return err
}

// DecodeHeader decodes a header from buf, which must hold at least
// HeaderSize bytes starting with the magic prefix.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("header requires %d bytes, got %d", HeaderSize, len(buf))
	}
	if !HasMagic(buf) {
		return Header{}, fmt.Errorf("bad magic prefix % X", buf[:4])
	}
	var h Header
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	copy(h.StreamID[:], buf[8:24])
	h.Size = binary.LittleEndian.Uint64(buf[24:32])
	h.Flags = binary.LittleEndian.Uint32(buf[32:36])
	if h.Version != ProtocolVersion {
		return Header{}, fmt.Errorf("unsupported header version %d", h.Version)
	}
	return h, nil
}

// ReadHeader reads a full header from r, magic prefix included.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return DecodeHeader(buf[:])
}
