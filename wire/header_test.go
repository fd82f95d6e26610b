package wire

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
)

// Test header encode/decode roundtrip preserves all fields
func TestHeaderRoundtrip(t *testing.T) {
	id := NewStreamID()
	original := NewHeader(id, 5_242_880)

	encoded := original.Encode()
	if len(encoded) != HeaderSize {
		t.Fatalf("encoded header is %d bytes, expected %d", len(encoded), HeaderSize)
	}

	decoded, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Version != ProtocolVersion {
		t.Errorf("Version mismatch: expected %d, got %d", ProtocolVersion, decoded.Version)
	}
	if decoded.StreamID != id {
		t.Errorf("StreamID mismatch: expected %s, got %s", id, decoded.StreamID)
	}
	if decoded.Size != original.Size {
		t.Errorf("Size mismatch: expected %d, got %d", original.Size, decoded.Size)
	}
	if decoded.Flags != 0 {
		t.Errorf("Flags should be zero, got %d", decoded.Flags)
	}
}

// Test the fixed magic bytes per the wire format
func TestHeaderMagicBytes(t *testing.T) {
	encoded := NewHeader(NewStreamID(), 1).Encode()
	expected := []byte{0x4D, 0x43, 0x50, 0x00}
	if !bytes.Equal(encoded[:4], expected) {
		t.Errorf("magic mismatch: expected % X, got % X", expected, encoded[:4])
	}
}

// Test size field is little-endian on the wire
func TestHeaderSizeLittleEndian(t *testing.T) {
	encoded := NewHeader(NewStreamID(), 0x0102030405060708).Encode()
	sizeBytes := encoded[24:32]
	expected := []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(sizeBytes, expected) {
		t.Errorf("size encoding mismatch: expected % X, got % X", expected, sizeBytes)
	}
}

// Test that JSON traffic is never mistaken for a binary header
func TestHasMagicRejectsJSON(t *testing.T) {
	if HasMagic([]byte(`{"jsonrpc":"2.0"}`)) {
		t.Error("JSON prefix must not match magic")
	}
	if HasMagic([]byte{0x4D, 0x43}) {
		t.Error("short prefix must not match magic")
	}
	if !HasMagic(NewHeader(NewStreamID(), 0).Encode()) {
		t.Error("encoded header must match magic")
	}
}

// Test decode failures: truncation, bad magic, unknown version
func TestDecodeHeaderErrors(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, HeaderSize-1)); err == nil {
		t.Error("expected error for truncated header")
	}

	bad := NewHeader(NewStreamID(), 10).Encode()
	bad[0] = 'X'
	if _, err := DecodeHeader(bad); err == nil {
		t.Error("expected error for bad magic")
	}

	future := NewHeader(NewStreamID(), 10)
	future.Version = 99
	if _, err := DecodeHeader(future.Encode()); err == nil {
		t.Error("expected error for unsupported version")
	}
}

// Test ReadHeader consumes exactly HeaderSize bytes from the stream
func TestReadHeaderFromStream(t *testing.T) {
	id := NewStreamID()
	payload := []byte("payload follows the header")

	var buf bytes.Buffer
	if err := WriteHeader(&buf, NewHeader(id, uint64(len(payload)))); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	buf.Write(payload)

	h, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if h.StreamID != id {
		t.Errorf("StreamID mismatch: expected %s, got %s", id, h.StreamID)
	}

	rest, _ := io.ReadAll(&buf)
	if !bytes.Equal(rest, payload) {
		t.Errorf("payload bytes disturbed: got %q", rest)
	}
}

// Test StreamID string and JSON forms roundtrip
func TestStreamIDRoundtrip(t *testing.T) {
	id := NewStreamID()

	parsed, err := ParseStreamID(id.String())
	if err != nil {
		t.Fatalf("ParseStreamID failed: %v", err)
	}
	if parsed != id {
		t.Errorf("string roundtrip mismatch: %s vs %s", id, parsed)
	}

	fromBytes, err := StreamIDFromBytes(id.Bytes())
	if err != nil {
		t.Fatalf("StreamIDFromBytes failed: %v", err)
	}
	if fromBytes != id {
		t.Error("bytes roundtrip mismatch")
	}

	data, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded StreamID
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded != id {
		t.Error("JSON roundtrip mismatch")
	}
}

// Test StreamID validation of malformed inputs
func TestStreamIDErrors(t *testing.T) {
	if _, err := StreamIDFromBytes([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short byte slice")
	}
	if _, err := ParseStreamID("not-a-uuid"); err == nil {
		t.Error("expected error for malformed string")
	}
	if !ZeroStreamID.IsZero() {
		t.Error("zero ID must report IsZero")
	}
	if NewStreamID().IsZero() {
		t.Error("generated ID must not be zero")
	}
}

// Test chunk size clamping bounds
func TestClampChunkSize(t *testing.T) {
	cases := []struct {
		in, out int
	}{
		{0, DefaultChunkSize},
		{-1, DefaultChunkSize},
		{1, MinChunkSize},
		{DefaultChunkSize, DefaultChunkSize},
		{MaxChunkSize + 1, MaxChunkSize},
	}
	for _, c := range cases {
		if got := ClampChunkSize(c.in); got != c.out {
			t.Errorf("ClampChunkSize(%d) = %d, expected %d", c.in, got, c.out)
		}
	}
}
