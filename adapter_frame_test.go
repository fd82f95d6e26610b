package binstream

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filegrind/binstream-go/wire"
)

// memFrame is one frame in flight between the two ends of a memFrameConn
// pair.
type memFrame struct {
	kind    FrameKind
	payload []byte
}

// memFrameConn is an in-memory FrameConn backed by buffered channels,
// preserving send order the way a real framed socket does.
type memFrameConn struct {
	in  chan memFrame
	out chan memFrame
}

func (c *memFrameConn) WriteFrame(kind FrameKind, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	c.out <- memFrame{kind: kind, payload: buf}
	return nil
}

func (c *memFrameConn) ReadFrame() (FrameKind, []byte, error) {
	f, ok := <-c.in
	if !ok {
		return 0, nil, io.EOF
	}
	return f.kind, f.payload, nil
}

func (c *memFrameConn) close() {
	close(c.out)
}

func memFrameConnPair() (*memFrameConn, *memFrameConn) {
	ab := make(chan memFrame, 256)
	ba := make(chan memFrame, 256)
	return &memFrameConn{in: ba, out: ab}, &memFrameConn{in: ab, out: ba}
}

func TestFrameChannelDeliversJSON(t *testing.T) {
	connA, connB := memFrameConnPair()
	sender := NewFrameChannel(connA)
	receiver := NewFrameChannel(connB)

	received := make(chan []byte, 4)
	receiver.SetJSONHandler(func(message []byte) { received <- message })
	go receiver.Run()
	defer connA.close()

	require.NoError(t, sender.WriteJSON([]byte(`{"id":7}`)))
	assert.Equal(t, `{"id":7}`, string(<-received))
}

func TestBinaryFrameAdapterInterleavesStreams(t *testing.T) {
	connA, connB := memFrameConnPair()
	sender := NewFrameChannel(connA)
	receiver := NewFrameChannel(connB)
	go receiver.Run()
	defer connA.close()

	adapter := NewBinaryFrameAdapter(sender)
	recvAdapter := NewBinaryFrameAdapter(receiver)

	idA := wire.NewStreamID()
	idB := wire.NewStreamID()
	payloadA := bytes.Repeat([]byte{0x01}, 3000)
	payloadB := bytes.Repeat([]byte{0x02}, 5000)

	recvA, err := recvAdapter.Open(TransferDescriptor{StreamID: idA, TotalSize: uint64(len(payloadA))}, RoleReceiver)
	require.NoError(t, err)
	recvB, err := recvAdapter.Open(TransferDescriptor{StreamID: idB, TotalSize: uint64(len(payloadB))}, RoleReceiver)
	require.NoError(t, err)

	sendA, err := adapter.Open(TransferDescriptor{StreamID: idA, TotalSize: uint64(len(payloadA))}, RoleSender)
	require.NoError(t, err)
	sendB, err := adapter.Open(TransferDescriptor{StreamID: idB, TotalSize: uint64(len(payloadB))}, RoleSender)
	require.NoError(t, err)

	// Chunks of the two streams interleave frame by frame; each frame's
	// stream ID prefix routes it to the right receiver.
	go func() {
		for off := 0; off < len(payloadB) || off < len(payloadA); off += 1000 {
			if off < len(payloadA) {
				sendA.WriteChunk(payloadA[off : off+1000])
			}
			if off < len(payloadB) {
				sendB.WriteChunk(payloadB[off : off+1000])
			}
		}
		sendA.Close()
		sendB.Close()
	}()

	// Pipe writes are synchronous, so the two receivers have to drain
	// concurrently.
	gotACh := make(chan []byte, 1)
	go func() { gotACh <- readAllChunks(t, recvA) }()
	gotB := readAllChunks(t, recvB)
	gotA := <-gotACh

	assert.Equal(t, payloadA, gotA)
	assert.Equal(t, payloadB, gotB)
}

func readAllChunks(t *testing.T, h Handle) []byte {
	var out []byte
	for {
		chunk, err := h.ReadChunk(1024)
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Errorf("read chunk: %v", err)
			return out
		}
		out = append(out, chunk...)
	}
}

func TestFrameChannelDropsChunksForUnknownStream(t *testing.T) {
	connA, connB := memFrameConnPair()
	sender := NewFrameChannel(connA)
	receiver := NewFrameChannel(connB)

	received := make(chan []byte, 4)
	receiver.SetJSONHandler(func(message []byte) { received <- message })
	go receiver.Run()
	defer connA.close()

	// A chunk nobody expects is dropped; the loop keeps serving frames.
	require.NoError(t, sender.writeChunk(wire.NewStreamID(), []byte("orphan")))
	require.NoError(t, sender.WriteJSON([]byte(`{"ok":true}`)))

	assert.Equal(t, `{"ok":true}`, string(<-received))
}

func TestFrameChannelStalledReceiverDoesNotBlockJSON(t *testing.T) {
	connA, connB := memFrameConnPair()
	sender := NewFrameChannel(connA)
	receiver := NewFrameChannel(connB)

	received := make(chan []byte, 4)
	receiver.SetJSONHandler(func(message []byte) { received <- message })
	go receiver.Run()
	defer connA.close()

	// A receiver that registered but is not reading yet must not hold
	// up JSON frames arriving behind its chunks.
	id := wire.NewStreamID()
	pr, err := receiver.expect(id)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, sender.writeChunk(id, []byte("chunk")))
	}
	require.NoError(t, sender.WriteJSON([]byte(`{"unblocked":true}`)))

	select {
	case msg := <-received:
		assert.Equal(t, `{"unblocked":true}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("json frame stuck behind a stalled stream")
	}

	// The buffered chunks are still there, in order, once the receiver
	// starts reading.
	buf := make([]byte, 20)
	_, err = io.ReadFull(pr, buf)
	require.NoError(t, err)
	assert.Equal(t, "chunkchunkchunkchunk", string(buf))
}

func TestFrameChannelRejectsShortBinaryFrame(t *testing.T) {
	connA, connB := memFrameConnPair()
	receiver := NewFrameChannel(connB)

	connA.out <- memFrame{kind: FrameBinary, payload: []byte{0x01, 0x02}}
	err := receiver.Run()
	assert.Error(t, err)
}

func TestFrameSendHandleEnforcesAnnouncedSize(t *testing.T) {
	connA, _ := memFrameConnPair()
	sender := NewFrameChannel(connA)
	adapter := NewBinaryFrameAdapter(sender)

	h, err := adapter.Open(TransferDescriptor{StreamID: wire.NewStreamID(), TotalSize: 4}, RoleSender)
	require.NoError(t, err)

	assert.Error(t, h.WriteChunk([]byte("too many bytes")))
	require.NoError(t, h.WriteChunk([]byte("ab")))
	assert.Error(t, h.Close())
}
