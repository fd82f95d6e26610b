package binstream

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/filegrind/binstream-go/wire"
)

// FrameKind distinguishes the two frame classes of a full-duplex framed
// transport.
type FrameKind int

const (
	// FrameText carries an RPC JSON message.
	FrameText FrameKind = iota
	// FrameBinary carries streamId(16 bytes) || payload.
	FrameBinary
)

// FrameConn abstracts a full-duplex, message-framed transport (a
// WebSocket-style socket). The transport must deliver frames in send
// order; this package relies on that for per-stream chunk ordering.
type FrameConn interface {
	// WriteFrame sends one frame.
	WriteFrame(kind FrameKind, payload []byte) error
	// ReadFrame blocks for the next frame.
	ReadFrame() (FrameKind, []byte, error)
}

// FrameChannel multiplexes RPC JSON (text frames) and binary transfers
// (binary frames) over one FrameConn. Unlike the stream transport,
// chunks of different streams interleave freely: each binary frame is
// self-describing via its 16-byte stream ID prefix. Frames for the same
// stream ID are applied in send order.
type FrameChannel struct {
	conn    FrameConn
	writeMu sync.Mutex

	onJSON    JSONHandler
	handlerMu sync.RWMutex

	pendingMu sync.Mutex
	pending   map[wire.StreamID]*frameStream

	logger *zap.Logger
}

// frameStreamQueueDepth bounds how many chunks may sit between the read
// loop and a slow receiver before the loop waits for it.
const frameStreamQueueDepth = 32

// frameStream buffers routed chunks for one receiver so that a receiver
// pausing between reads does not stall JSON frames or other streams.
type frameStream struct {
	queue chan []byte
	pw    *io.PipeWriter
}

// pump moves queued chunks into the receiver pipe. Once a write fails
// the receiver is gone; remaining chunks drain so the read loop never
// blocks on a dead stream.
func (s *frameStream) pump() {
	dead := false
	for chunk := range s.queue {
		if dead {
			continue
		}
		if _, err := s.pw.Write(chunk); err != nil {
			dead = true
		}
	}
}

// FrameChannelOption configures a FrameChannel.
type FrameChannelOption func(*FrameChannel)

// WithFrameChannelLogger sets the channel's logger.
func WithFrameChannelLogger(logger *zap.Logger) FrameChannelOption {
	return func(c *FrameChannel) {
		c.logger = logger
	}
}

// NewFrameChannel wraps a framed transport carrying both RPC JSON and
// binary transfer traffic.
func NewFrameChannel(conn FrameConn, options ...FrameChannelOption) *FrameChannel {
	c := &FrameChannel{
		conn:    conn,
		pending: make(map[wire.StreamID]*frameStream),
		logger:  zap.NewNop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// SetJSONHandler sets the handler invoked for each text frame.
func (c *FrameChannel) SetJSONHandler(handler JSONHandler) {
	c.handlerMu.Lock()
	c.onJSON = handler
	c.handlerMu.Unlock()
}

// WriteJSON sends one RPC JSON message as a text frame.
func (c *FrameChannel) WriteJSON(message []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteFrame(FrameText, message)
}

// writeChunk sends one payload chunk as a binary frame. The write mutex
// serializes individual frames only, so chunks of unrelated streams and
// JSON messages interleave between frames.
func (c *FrameChannel) writeChunk(id wire.StreamID, p []byte) error {
	frame := make([]byte, 16+len(p))
	copy(frame[:16], id[:])
	copy(frame[16:], p)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteFrame(FrameBinary, frame)
}

// Run drives the channel's read loop until the connection reports EOF or
// a channel-level error. Text frames go to the JSON handler; binary
// frames are routed to the receiver registered for their stream ID and
// dropped with a warning when nobody expects them.
func (c *FrameChannel) Run() error {
	for {
		kind, payload, err := c.conn.ReadFrame()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch kind {
		case FrameText:
			c.handlerMu.RLock()
			handler := c.onJSON
			c.handlerMu.RUnlock()
			if handler != nil {
				handler(payload)
			}
		case FrameBinary:
			if len(payload) < 16 {
				return fmt.Errorf("binary frame of %d bytes is shorter than a stream ID", len(payload))
			}
			id, _ := wire.StreamIDFromBytes(payload[:16])
			c.routeChunk(id, payload[16:])
		default:
			return fmt.Errorf("unknown frame kind %d", kind)
		}
	}
}

// routeChunk hands one chunk to the stream's queue. The frame buffer
// may be reused once the read loop moves on, so the chunk is copied.
// The queue send happens under pendingMu so it cannot race a concurrent
// forget closing the queue; the pump guarantees the send makes progress
// even when the receiver is gone.
func (c *FrameChannel) routeChunk(id wire.StreamID, chunk []byte) {
	buf := make([]byte, len(chunk))
	copy(buf, chunk)

	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	s := c.pending[id]
	if s == nil {
		c.logger.Warn("dropping chunk for unexpected stream",
			zap.String("stream_id", id.String()),
			zap.Int("bytes", len(chunk)))
		return
	}
	s.queue <- buf
}

func (c *FrameChannel) expect(id wire.StreamID) (*io.PipeReader, error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if _, exists := c.pending[id]; exists {
		return nil, fmt.Errorf("stream %s already has a receiver", id)
	}
	pr, pw := io.Pipe()
	s := &frameStream{
		queue: make(chan []byte, frameStreamQueueDepth),
		pw:    pw,
	}
	go s.pump()
	c.pending[id] = s
	return pr, nil
}

func (c *FrameChannel) forget(id wire.StreamID) {
	c.pendingMu.Lock()
	s := c.pending[id]
	delete(c.pending, id)
	if s != nil {
		close(s.queue)
	}
	c.pendingMu.Unlock()
	if s != nil {
		s.pw.CloseWithError(io.ErrClosedPipe)
	}
}

// BinaryFrameAdapter moves transfers over a FrameChannel, one or more
// binary frames per transfer.
type BinaryFrameAdapter struct {
	channel *FrameChannel
}

// NewBinaryFrameAdapter creates the binary-frame adapter for a channel.
func NewBinaryFrameAdapter(channel *FrameChannel) *BinaryFrameAdapter {
	return &BinaryFrameAdapter{channel: channel}
}

// Mode implements Adapter.
func (a *BinaryFrameAdapter) Mode() Mode {
	return ModeBinaryFrame
}

// Open implements Adapter.
func (a *BinaryFrameAdapter) Open(desc TransferDescriptor, role Role) (Handle, error) {
	switch role {
	case RoleSender:
		return &frameSendHandle{
			channel:   a.channel,
			id:        desc.StreamID,
			remaining: desc.TotalSize,
		}, nil
	case RoleReceiver:
		pr, err := a.channel.expect(desc.StreamID)
		if err != nil {
			return nil, err
		}
		return &frameRecvHandle{
			channel:   a.channel,
			id:        desc.StreamID,
			pr:        pr,
			remaining: desc.TotalSize,
		}, nil
	default:
		return nil, fmt.Errorf("unknown role %d", role)
	}
}

type frameSendHandle struct {
	channel   *FrameChannel
	id        wire.StreamID
	remaining uint64
	closed    bool
}

func (h *frameSendHandle) WriteChunk(p []byte) error {
	if h.closed {
		return io.ErrClosedPipe
	}
	if uint64(len(p)) > h.remaining {
		return fmt.Errorf("chunk of %d bytes exceeds remaining %d announced bytes", len(p), h.remaining)
	}
	if err := h.channel.writeChunk(h.id, p); err != nil {
		return err
	}
	h.remaining -= uint64(len(p))
	return nil
}

func (h *frameSendHandle) ReadChunk(int) ([]byte, error) {
	return nil, fmt.Errorf("sender handle cannot read")
}

func (h *frameSendHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.remaining != 0 {
		return fmt.Errorf("transfer closed %d bytes short of announced size", h.remaining)
	}
	return nil
}

type frameRecvHandle struct {
	channel   *FrameChannel
	id        wire.StreamID
	pr        *io.PipeReader
	remaining uint64
	closed    bool
}

func (h *frameRecvHandle) WriteChunk([]byte) error {
	return fmt.Errorf("receiver handle cannot write")
}

func (h *frameRecvHandle) ReadChunk(maxBytes int) ([]byte, error) {
	if h.closed {
		return nil, io.ErrClosedPipe
	}
	if h.remaining == 0 {
		return nil, io.EOF
	}
	if maxBytes <= 0 {
		maxBytes = wire.DefaultChunkSize
	}
	if uint64(maxBytes) > h.remaining {
		maxBytes = int(h.remaining)
	}
	buf := make([]byte, maxBytes)
	n, err := h.pr.Read(buf)
	if n > 0 {
		h.remaining -= uint64(n)
		return buf[:n], nil
	}
	return nil, err
}

func (h *frameRecvHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	// Closing the read side first fails any in-flight pump write, so
	// the queue drains and forget can take the channel lock.
	err := h.pr.Close()
	h.channel.forget(h.id)
	return err
}
