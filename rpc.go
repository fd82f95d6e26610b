package binstream

import (
	"context"

	"go.uber.org/zap"

	"github.com/filegrind/binstream-go/wire"
)

// RPC method names this core exposes to the surrounding dispatcher. The
// dispatcher owns routing; these constants keep both sides of a session
// agreeing on names.
const (
	// MethodInitiateTransfer is a request: the consumer announces it is
	// ready for the bytes behind a BinaryReference.
	MethodInitiateTransfer = "transfer/initiate"
	// MethodTransferProgress is a notification with no response
	// expected.
	MethodTransferProgress = "notifications/transfer/progress"
)

// InitiateTransferRequest asks the producer to start moving the bytes
// behind a reference, optionally restricted to a byte window.
type InitiateTransferRequest struct {
	BinaryRef BinaryReference `json:"binaryRef"`
	Range     *ByteRange      `json:"range,omitempty"`
}

// InitiateTransferResult signals that binary bytes will follow on the
// negotiated transport.
type InitiateTransferResult struct {
	StreamID wire.StreamID `json:"streamId"`
	// Size is the number of bytes that will move: the full object, or
	// the requested window.
	Size  uint64 `json:"size"`
	Ready bool   `json:"ready"`
}

// HandleInitiate serves a transfer-initiation request against this
// coordinator. Validation happens synchronously so an unknown or
// expired stream surfaces as a request error; the bytes then move in the
// background, tracked by the registry and surfaced via progress
// notifications.
func (c *TransferCoordinator) HandleInitiate(ctx context.Context, req InitiateTransferRequest) (InitiateTransferResult, error) {
	id := req.BinaryRef.StreamID
	desc, err := c.registry.Lookup(id)
	if err != nil {
		return InitiateTransferResult{}, err
	}
	if desc.State.Terminal() {
		return InitiateTransferResult{}, NewAlreadyTerminalError(id, desc.State)
	}

	start, end, err := resolveRange(req.Range, desc.TotalSize)
	if err != nil {
		return InitiateTransferResult{}, err
	}

	// The dispatcher cancels the request context once the response is
	// written; the announced transfer has to outlive the request.
	sendCtx := context.WithoutCancel(ctx)
	go func() {
		if err := c.Send(sendCtx, id, req.Range); err != nil {
			c.logger.Warn("initiated transfer failed",
				zap.String("stream_id", id.String()),
				zap.Error(err))
		}
	}()

	return InitiateTransferResult{StreamID: id, Size: end - start, Ready: true}, nil
}
