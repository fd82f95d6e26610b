package binstream

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/filegrind/binstream-go/wire"
)

// defaultProgressInterval is the default notification cadence: at least
// one progress notification per this many transferred bytes, plus the
// mandatory final one.
const defaultProgressInterval uint64 = 1_048_576

// TransferCoordinator orchestrates transfers end to end: it registers
// streams, selects the transport adapter for the negotiated mode, drives
// chunked reads and writes, computes and verifies checksums, emits
// progress notifications, and finalizes or aborts descriptors in the
// registry. Exactly one coordinator drive owns a given stream ID at a
// time.
type TransferCoordinator struct {
	registry *StreamRegistry
	caps     EffectiveCapability

	mu       sync.Mutex
	adapters map[Mode]Adapter
	sources  map[wire.StreamID][]byte

	progress         ProgressSink
	logger           *zap.Logger
	chunkSize        int
	progressInterval uint64
	checksums        bool
}

// CoordinatorOption configures a TransferCoordinator.
type CoordinatorOption func(*TransferCoordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(logger *zap.Logger) CoordinatorOption {
	return func(c *TransferCoordinator) {
		c.logger = logger
	}
}

// WithProgressSink sets where progress notifications go.
func WithProgressSink(sink ProgressSink) CoordinatorOption {
	return func(c *TransferCoordinator) {
		c.progress = sink
	}
}

// WithChunkSize sets the chunk size used when driving adapters.
func WithChunkSize(n int) CoordinatorOption {
	return func(c *TransferCoordinator) {
		c.chunkSize = wire.ClampChunkSize(n)
	}
}

// WithProgressInterval sets the notification cadence in bytes.
func WithProgressInterval(bytes uint64) CoordinatorOption {
	return func(c *TransferCoordinator) {
		if bytes > 0 {
			c.progressInterval = bytes
		}
	}
}

// WithChecksums toggles SHA-256 checksum computation for registered
// sources. Enabled by default; disabling trades integrity verification
// for one fewer pass over the payload.
func WithChecksums(enabled bool) CoordinatorOption {
	return func(c *TransferCoordinator) {
		c.checksums = enabled
	}
}

// NewTransferCoordinator creates a coordinator bound to a registry and
// the session's negotiated capability.
func NewTransferCoordinator(registry *StreamRegistry, caps EffectiveCapability, options ...CoordinatorOption) *TransferCoordinator {
	c := &TransferCoordinator{
		registry:         registry,
		caps:             caps,
		adapters:         make(map[Mode]Adapter),
		sources:          make(map[wire.StreamID][]byte),
		logger:           zap.NewNop(),
		chunkSize:        wire.DefaultChunkSize,
		progressInterval: defaultProgressInterval,
		checksums:        true,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// RegisterAdapter makes an adapter available for its mode, replacing any
// previous adapter for that mode.
func (c *TransferCoordinator) RegisterAdapter(a Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[a.Mode()] = a
}

func (c *TransferCoordinator) adapter(mode Mode) (Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.adapters[mode]
	if !ok {
		return nil, NewCapabilityMismatchError(fmt.Sprintf("no adapter registered for mode %q", mode))
	}
	return a, nil
}

// RegisterSource registers an outbound payload and returns the
// BinaryReference to embed in the RPC result. No bytes move yet; the
// transfer-initiation call (or Send directly) drives them later. The
// size limit is enforced here, before anything is registered.
func (c *TransferCoordinator) RegisterSource(data []byte, mimeType string, mode Mode) (BinaryReference, error) {
	if !c.caps.Supported {
		return BinaryReference{}, NewCapabilityMismatchError("binary transfer not negotiated for this session")
	}
	if !c.caps.HasMode(mode) {
		return BinaryReference{}, NewCapabilityMismatchError(fmt.Sprintf("mode %q not negotiated", mode))
	}
	size := uint64(len(data))
	if !c.caps.AllowsSize(size) {
		return BinaryReference{}, NewPayloadTooLargeError(size, *c.caps.MaxBinarySize)
	}

	var checksum string
	if c.checksums {
		checksum = ChecksumHex(data)
	}

	id, err := c.registry.Register(TransferDescriptor{
		TotalSize:        size,
		Mode:             mode,
		MimeType:         mimeType,
		ExpectedChecksum: checksum,
		Direction:        DirectionSource,
	})
	if err != nil {
		return BinaryReference{}, err
	}

	c.mu.Lock()
	c.sources[id] = data
	c.mu.Unlock()

	c.logger.Debug("registered source stream",
		zap.String("stream_id", id.String()),
		zap.Uint64("size", size),
		zap.String("mode", string(mode)))

	return BinaryReference{
		StreamID: id,
		Size:     size,
		Checksum: checksum,
		MimeType: mimeType,
	}, nil
}

// Send drives a registered source stream through its adapter. A nil rng
// sends the whole object; otherwise exactly the [start, end) window
// moves, and the wire announces the window size. Send stops producing
// chunks as soon as it observes the descriptor in a terminal state
// (receiver-side abort).
func (c *TransferCoordinator) Send(ctx context.Context, id wire.StreamID, rng *ByteRange) error {
	desc, err := c.registry.Lookup(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	data, ok := c.sources[id]
	c.mu.Unlock()
	if !ok {
		return NewNotFoundError(id)
	}

	start, end, err := resolveRange(rng, desc.TotalSize)
	if err != nil {
		return err
	}
	window := data[start:end]
	total := end - start

	a, err := c.adapter(desc.Mode)
	if err != nil {
		return err
	}

	wireDesc := desc
	wireDesc.TotalSize = total
	handle, err := a.Open(wireDesc, RoleSender)
	if err != nil {
		return NewTransportFailureError(id, err)
	}

	var sent, lastNotified uint64
	for sent < total {
		if err := ctx.Err(); err != nil {
			handle.Close()
			return c.failTransfer(id, sent, total, err)
		}
		if current, err := c.registry.Lookup(id); err != nil || current.State.Terminal() {
			handle.Close()
			if err != nil {
				return err
			}
			return NewAlreadyTerminalError(id, current.State)
		}

		chunkEnd := sent + uint64(c.chunkSize)
		if chunkEnd > total {
			chunkEnd = total
		}
		if err := handle.WriteChunk(window[sent:chunkEnd]); err != nil {
			handle.Close()
			return c.failTransfer(id, sent, total, err)
		}
		sent = chunkEnd

		if err := c.registry.UpdateProgress(id, sent); err != nil {
			handle.Close()
			return err
		}
		if sent-lastNotified >= c.progressInterval && sent < total {
			c.notify(ProgressNotification{StreamID: id, BytesTransferred: sent, TotalBytes: total})
			lastNotified = sent
		}
	}

	if err := handle.Close(); err != nil {
		return c.failTransfer(id, sent, total, err)
	}
	if err := c.registry.Finalize(id, StateCompleted); err != nil {
		return err
	}
	c.notify(ProgressNotification{StreamID: id, BytesTransferred: total, TotalBytes: total, Complete: true})

	c.logger.Info("transfer sent",
		zap.String("stream_id", id.String()),
		zap.Uint64("bytes", total),
		zap.String("mode", string(desc.Mode)))
	return nil
}

// BeginSend registers a payload and drives the whole transfer in one
// call.
func (c *TransferCoordinator) BeginSend(ctx context.Context, data []byte, mimeType string, mode Mode) (BinaryReference, error) {
	ref, err := c.RegisterSource(data, mimeType, mode)
	if err != nil {
		return BinaryReference{}, err
	}
	if err := c.Send(ctx, ref.StreamID, nil); err != nil {
		return BinaryReference{}, err
	}
	return ref, nil
}

// receiveConfig carries per-receive options.
type receiveConfig struct {
	rng *ByteRange
}

// ReceiveOption configures a single BeginReceive call.
type ReceiveOption func(*receiveConfig)

// WithReceiveRange requests only the [r.Start, r.End) window of the
// object. Range retrieval skips checksum verification by design; callers
// requesting a window accept unverified data for it.
func WithReceiveRange(r ByteRange) ReceiveOption {
	return func(cfg *receiveConfig) {
		rng := r
		cfg.rng = &rng
	}
}

// BeginReceive opens the adapter in receiver role for a reference and
// accumulates the announced bytes. For a full-object read with a
// declared checksum, the running SHA-256 digest is verified before the
// transfer is reported complete; a mismatch aborts the transfer and the
// partial data is discarded. A reference without a checksum completes
// without verification.
func (c *TransferCoordinator) BeginReceive(ctx context.Context, ref BinaryReference, mode Mode, options ...ReceiveOption) ([]byte, error) {
	var cfg receiveConfig
	for _, opt := range options {
		opt(&cfg)
	}

	start, end, err := resolveRange(cfg.rng, ref.Size)
	if err != nil {
		return nil, err
	}
	total := end - start
	fullObject := start == 0 && end == ref.Size

	desc := TransferDescriptor{
		StreamID:         ref.StreamID,
		TotalSize:        total,
		Mode:             mode,
		MimeType:         ref.MimeType,
		ExpectedChecksum: ref.Checksum,
		Direction:        DirectionSink,
	}
	// A failed earlier attempt for this reference leaves a terminal
	// descriptor under the same ID; clear it so the retry can register.
	if stale, err := c.registry.Lookup(ref.StreamID); err == nil && stale.State.Terminal() {
		c.registry.Release(ref.StreamID)
	}
	if err := c.registry.RegisterWithID(ref.StreamID, desc); err != nil {
		return nil, err
	}

	a, err := c.adapter(mode)
	if err != nil {
		c.registry.Finalize(ref.StreamID, StateAborted)
		return nil, err
	}
	handle, err := a.Open(desc, RoleReceiver)
	if err != nil {
		c.registry.Finalize(ref.StreamID, StateAborted)
		return nil, NewTransportFailureError(ref.StreamID, err)
	}
	defer handle.Close()

	var hasher hash.Hash
	if fullObject && ref.HasChecksum() {
		hasher = sha256.New()
	}

	var buf bytes.Buffer
	buf.Grow(int(total))
	var received, lastNotified uint64
	for received < total {
		if err := ctx.Err(); err != nil {
			return nil, c.failTransfer(ref.StreamID, received, total, err)
		}

		maxBytes := c.chunkSize
		if remaining := total - received; remaining < uint64(maxBytes) {
			maxBytes = int(remaining)
		}
		chunk, err := handle.ReadChunk(maxBytes)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, c.failTransfer(ref.StreamID, received, total, err)
		}

		buf.Write(chunk)
		if hasher != nil {
			hasher.Write(chunk)
		}
		received += uint64(len(chunk))

		if err := c.registry.UpdateProgress(ref.StreamID, received); err != nil {
			return nil, err
		}
		if received-lastNotified >= c.progressInterval && received < total {
			c.notify(ProgressNotification{StreamID: ref.StreamID, BytesTransferred: received, TotalBytes: total})
			lastNotified = received
		}
	}

	if received < total {
		return nil, c.failTransfer(ref.StreamID, received, total,
			fmt.Errorf("stream ended %d bytes short of announced size", total-received))
	}

	if hasher != nil {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if actual != ref.Checksum {
			c.registry.Finalize(ref.StreamID, StateAborted)
			c.notify(ProgressNotification{StreamID: ref.StreamID, BytesTransferred: received, TotalBytes: total})
			return nil, NewChecksumMismatchError(ref.StreamID, ref.Checksum, actual)
		}
	}

	if err := c.registry.Finalize(ref.StreamID, StateCompleted); err != nil {
		return nil, err
	}
	c.notify(ProgressNotification{StreamID: ref.StreamID, BytesTransferred: total, TotalBytes: total, Complete: true})

	c.logger.Info("transfer received",
		zap.String("stream_id", ref.StreamID.String()),
		zap.Uint64("bytes", total),
		zap.Bool("verified", hasher != nil))
	return buf.Bytes(), nil
}

// Abort cancels a transfer. The descriptor moves to Aborted, a final
// notification with complete=false goes out, and any sender observing
// the terminal state stops producing chunks.
func (c *TransferCoordinator) Abort(id wire.StreamID) error {
	desc, err := c.registry.Lookup(id)
	if err != nil {
		return err
	}
	if err := c.registry.Finalize(id, StateAborted); err != nil {
		return err
	}
	c.notify(ProgressNotification{
		StreamID:         id,
		BytesTransferred: desc.BytesTransferred,
		TotalBytes:       desc.TotalSize,
	})
	c.logger.Info("transfer aborted", zap.String("stream_id", id.String()))
	return nil
}

// Release acknowledges consumption of a stream, removing it from the
// registry and dropping any buffered source bytes.
func (c *TransferCoordinator) Release(id wire.StreamID) error {
	if err := c.registry.Release(id); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.sources, id)
	c.mu.Unlock()
	return nil
}

// Reap removes descriptors idle past the threshold along with their
// buffered source bytes, returning the expired IDs. The Reaper calls
// this periodically.
func (c *TransferCoordinator) Reap(idleThreshold time.Duration) []wire.StreamID {
	reaped := c.registry.Reap(idleThreshold)
	if len(reaped) > 0 {
		c.mu.Lock()
		for _, id := range reaped {
			delete(c.sources, id)
		}
		c.mu.Unlock()
	}
	return reaped
}

// failTransfer aborts a transfer after an I/O failure: terminal state,
// final complete=false notification, wrapped error. Adapters never retry
// on their own and neither does this layer.
func (c *TransferCoordinator) failTransfer(id wire.StreamID, transferred, total uint64, cause error) error {
	if err := c.registry.Finalize(id, StateAborted); err != nil && !IsAlreadyTerminal(err) {
		c.logger.Warn("finalize after failure",
			zap.String("stream_id", id.String()), zap.Error(err))
	}
	c.notify(ProgressNotification{StreamID: id, BytesTransferred: transferred, TotalBytes: total})
	c.logger.Warn("transfer failed",
		zap.String("stream_id", id.String()),
		zap.Uint64("bytes", transferred),
		zap.Error(cause))
	return NewTransportFailureError(id, cause)
}

func (c *TransferCoordinator) notify(n ProgressNotification) {
	if c.progress != nil {
		c.progress.Publish(n)
	}
}
