package binstream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/filegrind/binstream-go/wire"
)

// JSONHandler receives one newline-delimited JSON message from a shared
// channel's read loop.
type JSONHandler func(message []byte)

// StreamChannel multiplexes newline-delimited JSON messages and binary
// transfers over one byte channel. Binary transfers are framed by a
// magic-prefixed header followed by exactly the announced number of
// payload bytes, so the read loop tells the two apart by peeking at the
// magic prefix and never JSON-parses binary bytes.
//
// The wire format keeps each transfer's payload contiguous: JSON
// messages interleave with binary traffic only between transfers, never
// inside one. Senders therefore hold the channel's write side for the
// duration of a transfer.
type StreamChannel struct {
	r       *bufio.Reader
	w       io.Writer
	writeMu sync.Mutex

	onJSON    JSONHandler
	handlerMu sync.RWMutex

	pendingMu sync.Mutex
	pending   map[wire.StreamID]*io.PipeWriter

	logger *zap.Logger
}

// StreamChannelOption configures a StreamChannel.
type StreamChannelOption func(*StreamChannel)

// WithStreamChannelLogger sets the channel's logger.
func WithStreamChannelLogger(logger *zap.Logger) StreamChannelOption {
	return func(c *StreamChannel) {
		c.logger = logger
	}
}

// NewStreamChannel wraps a bidirectional byte channel that carries both
// the RPC JSON traffic and binary transfers.
func NewStreamChannel(rw io.ReadWriter, options ...StreamChannelOption) *StreamChannel {
	c := &StreamChannel{
		r:       bufio.NewReader(rw),
		w:       rw,
		pending: make(map[wire.StreamID]*io.PipeWriter),
		logger:  zap.NewNop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// SetJSONHandler sets the handler invoked for each JSON message the read
// loop encounters.
func (c *StreamChannel) SetJSONHandler(handler JSONHandler) {
	c.handlerMu.Lock()
	c.onJSON = handler
	c.handlerMu.Unlock()
}

// WriteJSON writes one JSON message to the channel. The write waits for
// any in-flight binary transfer to finish so the message never lands
// inside a binary payload.
func (c *StreamChannel) WriteJSON(message []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(message); err != nil {
		return err
	}
	if len(message) == 0 || message[len(message)-1] != '\n' {
		if _, err := c.w.Write([]byte{'\n'}); err != nil {
			return err
		}
	}
	return nil
}

// Run drives the channel's read loop until EOF or a channel-level error.
// JSON messages go to the JSON handler; binary payloads are piped to the
// receiver registered for their stream ID. A binary transfer nobody
// expects is drained and discarded to keep the channel framed.
func (c *StreamChannel) Run() error {
	for {
		prefix, err := c.r.Peek(len(wire.Magic))
		if err != nil {
			if err == io.EOF && len(prefix) == 0 {
				return nil
			}
			if err == io.EOF {
				// Trailing partial JSON line without newline.
				return c.dispatchJSONLine()
			}
			return err
		}

		if wire.HasMagic(prefix) {
			if err := c.readBinaryTransfer(); err != nil {
				return err
			}
			continue
		}

		if err := c.dispatchJSONLine(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (c *StreamChannel) dispatchJSONLine() error {
	line, err := c.r.ReadBytes('\n')
	trimmed := bytes.TrimRight(line, "\n")
	if len(trimmed) > 0 {
		c.handlerMu.RLock()
		handler := c.onJSON
		c.handlerMu.RUnlock()
		if handler != nil {
			handler(trimmed)
		}
	}
	return err
}

// readBinaryTransfer consumes one header plus payload from the channel.
func (c *StreamChannel) readBinaryTransfer() error {
	h, err := wire.ReadHeader(c.r)
	if err != nil {
		return err
	}

	pw := c.takePending(h.StreamID)
	if pw == nil {
		c.logger.Warn("discarding unexpected binary transfer",
			zap.String("stream_id", h.StreamID.String()),
			zap.Uint64("size", h.Size))
		_, err := io.CopyN(io.Discard, c.r, int64(h.Size))
		return err
	}

	written, copyErr := io.CopyN(pw, c.r, int64(h.Size))
	if copyErr != nil && written < int64(h.Size) {
		// The receiver may have abandoned the transfer; the remaining
		// payload bytes still have to leave the channel to keep it
		// framed for the next message.
		if _, err := io.CopyN(io.Discard, c.r, int64(h.Size)-written); err != nil {
			pw.CloseWithError(err)
			return err
		}
	}
	pw.CloseWithError(copyErr)
	return nil
}

// expect registers a receiver pipe for an incoming stream ID.
func (c *StreamChannel) expect(id wire.StreamID) (*io.PipeReader, error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if _, exists := c.pending[id]; exists {
		return nil, fmt.Errorf("stream %s already has a receiver", id)
	}
	pr, pw := io.Pipe()
	c.pending[id] = pw
	return pr, nil
}

func (c *StreamChannel) takePending(id wire.StreamID) *io.PipeWriter {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	pw := c.pending[id]
	delete(c.pending, id)
	return pw
}

func (c *StreamChannel) cancelPending(id wire.StreamID) {
	c.pendingMu.Lock()
	pw := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()
	if pw != nil {
		pw.CloseWithError(io.ErrClosedPipe)
	}
}

// StreamAdapter moves transfers over a StreamChannel: one header per
// transfer on the shared byte channel, then the payload, chunked only
// for pacing and progress.
type StreamAdapter struct {
	channel *StreamChannel
}

// NewStreamAdapter creates the stream-transport adapter for a channel.
func NewStreamAdapter(channel *StreamChannel) *StreamAdapter {
	return &StreamAdapter{channel: channel}
}

// Mode implements Adapter.
func (a *StreamAdapter) Mode() Mode {
	return ModeStream
}

// Open implements Adapter. Sender handles acquire the channel's write
// side until closed; receiver handles read from the pipe the channel's
// read loop fills for their stream ID.
func (a *StreamAdapter) Open(desc TransferDescriptor, role Role) (Handle, error) {
	switch role {
	case RoleSender:
		a.channel.writeMu.Lock()
		h := wire.NewHeader(desc.StreamID, desc.TotalSize)
		if err := wire.WriteHeader(a.channel.w, h); err != nil {
			a.channel.writeMu.Unlock()
			return nil, err
		}
		return &streamSendHandle{channel: a.channel, remaining: desc.TotalSize}, nil
	case RoleReceiver:
		pr, err := a.channel.expect(desc.StreamID)
		if err != nil {
			return nil, err
		}
		return &streamRecvHandle{channel: a.channel, id: desc.StreamID, pr: pr}, nil
	default:
		return nil, fmt.Errorf("unknown role %d", role)
	}
}

// streamSendHandle writes payload bytes directly after the header. It
// owns the channel write lock until closed.
type streamSendHandle struct {
	channel   *StreamChannel
	remaining uint64
	closed    bool
}

func (h *streamSendHandle) WriteChunk(p []byte) error {
	if h.closed {
		return io.ErrClosedPipe
	}
	if uint64(len(p)) > h.remaining {
		return fmt.Errorf("chunk of %d bytes exceeds remaining %d announced bytes", len(p), h.remaining)
	}
	if _, err := h.channel.w.Write(p); err != nil {
		return err
	}
	h.remaining -= uint64(len(p))
	return nil
}

func (h *streamSendHandle) ReadChunk(int) ([]byte, error) {
	return nil, fmt.Errorf("sender handle cannot read")
}

func (h *streamSendHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	defer h.channel.writeMu.Unlock()
	if h.remaining != 0 {
		return fmt.Errorf("transfer closed %d bytes short of announced size", h.remaining)
	}
	return nil
}

// streamRecvHandle reads payload bytes from the channel's per-stream
// pipe.
type streamRecvHandle struct {
	channel *StreamChannel
	id      wire.StreamID
	pr      *io.PipeReader
	closed  bool
}

func (h *streamRecvHandle) WriteChunk([]byte) error {
	return fmt.Errorf("receiver handle cannot write")
}

func (h *streamRecvHandle) ReadChunk(maxBytes int) ([]byte, error) {
	if h.closed {
		return nil, io.ErrClosedPipe
	}
	if maxBytes <= 0 {
		maxBytes = wire.DefaultChunkSize
	}
	buf := make([]byte, maxBytes)
	n, err := h.pr.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	return nil, err
}

func (h *streamRecvHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.channel.cancelPending(h.id)
	return h.pr.Close()
}
