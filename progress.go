package binstream

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/filegrind/binstream-go/wire"
)

// ProgressNotification reports transfer progress to the RPC layer. It is
// fire-and-forget: no response is expected, delivery is best-effort, and
// ordering is guaranteed only per stream (non-decreasing
// BytesTransferred). The final notification of a transfer has
// Complete=true and, on success, BytesTransferred == TotalBytes.
type ProgressNotification struct {
	StreamID         wire.StreamID `json:"streamId"`
	BytesTransferred uint64        `json:"bytesTransferred"`
	TotalBytes       uint64        `json:"totalBytes"`
	Complete         bool          `json:"complete"`
}

// ProgressSink receives progress notifications. Implementations must not
// block: Publish sits on the transfer path.
type ProgressSink interface {
	Publish(n ProgressNotification)
}

// ProgressQueue is a buffered, decoupling ProgressSink. A slow consumer
// never blocks chunk transfer: when the buffer is full, notifications
// are dropped and counted.
type ProgressQueue struct {
	ch      chan ProgressNotification
	dropped atomic.Uint64
	logger  *zap.Logger

	closeOnce sync.Once
}

// NewProgressQueue creates a queue with the given buffer capacity.
func NewProgressQueue(buffer int, logger *zap.Logger) *ProgressQueue {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressQueue{
		ch:     make(chan ProgressNotification, buffer),
		logger: logger,
	}
}

// Publish implements ProgressSink without ever blocking the caller.
func (q *ProgressQueue) Publish(n ProgressNotification) {
	select {
	case q.ch <- n:
	default:
		q.dropped.Add(1)
		q.logger.Debug("progress notification dropped",
			zap.String("stream_id", n.StreamID.String()),
			zap.Uint64("bytes", n.BytesTransferred))
	}
}

// Notifications returns the consumer side of the queue.
func (q *ProgressQueue) Notifications() <-chan ProgressNotification {
	return q.ch
}

// Dropped returns how many notifications were discarded because the
// consumer lagged.
func (q *ProgressQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close closes the consumer channel. Publish must not be called after
// Close.
func (q *ProgressQueue) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}
