package binstream

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filegrind/binstream-go/wire"
)

func TestCheckpointRoundTrip(t *testing.T) {
	ref := BinaryReference{
		StreamID: wire.NewStreamID(),
		Size:     50_000,
		MimeType: "video/mp4",
	}
	cp := NewCheckpoint(ref, ModeStream, 20_000)

	encoded, err := cp.Encode()
	require.NoError(t, err)

	decoded, err := DecodeCheckpoint(encoded)
	require.NoError(t, err)
	assert.Equal(t, cp, decoded)
	assert.Equal(t, ref.StreamID.Bytes(), decoded.StreamID)
	assert.Equal(t, uint64(20_000), decoded.BytesReceived)
}

func TestDecodeCheckpointRejectsGarbage(t *testing.T) {
	_, err := DecodeCheckpoint([]byte("not cbor at all"))
	assert.Error(t, err)
}

func TestDecodeCheckpointRejectsBadStreamID(t *testing.T) {
	cp := Checkpoint{StreamID: []byte{0x01, 0x02}, TotalSize: 10}
	encoded, err := cp.Encode()
	require.NoError(t, err)

	_, err = DecodeCheckpoint(encoded)
	assert.Error(t, err)
}

func TestResumeReceiveFetchesRemainingWindow(t *testing.T) {
	payload := testPayload(10_000)
	const alreadyReceived = 4_000

	var envelope bytes.Buffer
	mpSender := NewMultipartSender(&envelope)
	sender := NewTransferCoordinator(NewStreamRegistry(), testCaps(ModeMultipart))
	sender.RegisterAdapter(mpSender)

	ref, err := sender.RegisterSource(payload, "application/octet-stream", ModeMultipart)
	require.NoError(t, err)
	require.NoError(t, sender.Send(context.Background(), ref.StreamID, &ByteRange{Start: alreadyReceived}))
	require.NoError(t, mpSender.Finish())

	receiver := NewTransferCoordinator(NewStreamRegistry(), testCaps(ModeMultipart))
	receiver.RegisterAdapter(NewMultipartReceiver(bytes.NewReader(envelope.Bytes()), mpSender.Boundary()))

	// The interrupted attempt left an aborted descriptor behind.
	require.NoError(t, receiver.registry.RegisterWithID(ref.StreamID, TransferDescriptor{
		TotalSize: ref.Size,
		Mode:      ModeMultipart,
		Direction: DirectionSink,
	}))
	require.NoError(t, receiver.registry.Finalize(ref.StreamID, StateAborted))

	cp := NewCheckpoint(ref, ModeMultipart, alreadyReceived)
	got, err := receiver.ResumeReceive(context.Background(), ref, cp)
	require.NoError(t, err)
	assert.Equal(t, payload[alreadyReceived:], got)
}

func TestResumeReceiveValidatesCheckpoint(t *testing.T) {
	receiver := NewTransferCoordinator(NewStreamRegistry(), testCaps(ModeMultipart))
	ref := BinaryReference{StreamID: wire.NewStreamID(), Size: 1000}

	// Checkpoint for a different stream.
	other := BinaryReference{StreamID: wire.NewStreamID(), Size: 1000}
	_, err := receiver.ResumeReceive(context.Background(), ref, NewCheckpoint(other, ModeMultipart, 100))
	assert.Error(t, err)

	// Size disagreement.
	resized := ref
	resized.Size = 999
	_, err = receiver.ResumeReceive(context.Background(), ref, NewCheckpoint(resized, ModeMultipart, 100))
	assert.Error(t, err)

	// Nothing left to fetch.
	_, err = receiver.ResumeReceive(context.Background(), ref, NewCheckpoint(ref, ModeMultipart, 1000))
	assert.True(t, IsKind(err, ErrorKindInvalidRange))
}
