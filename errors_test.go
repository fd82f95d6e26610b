package binstream

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/filegrind/binstream-go/wire"
)

func TestTransferErrorMessages(t *testing.T) {
	id := wire.NewStreamID()

	assert.Contains(t, NewCapabilityMismatchError("no common mode").Error(), "capability mismatch")
	assert.Contains(t, NewPayloadTooLargeError(200, 100).Error(), "payload too large")
	assert.Contains(t, NewDuplicateStreamIDError(id).Error(), "duplicate stream ID")
	assert.Contains(t, NewNotFoundError(id).Error(), "stream not found")
	assert.Contains(t, NewAlreadyTerminalError(id, StateCompleted).Error(), "already terminal")
	assert.Contains(t, NewChecksumMismatchError(id, "aa", "bb").Error(), "checksum mismatch")
	assert.Contains(t, NewTransportFailureError(id, io.ErrUnexpectedEOF).Error(), "transport failure")
	assert.Contains(t, NewInvalidRangeError("end past size").Error(), "invalid range")
}

func TestTransferErrorUnwrap(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := NewTransportFailureError(wire.NewStreamID(), cause)

	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestKindPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("during receive: %w", NewNotFoundError(wire.NewStreamID()))

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsChecksumMismatch(wrapped))
	assert.False(t, IsNotFound(io.EOF))
	assert.False(t, IsNotFound(nil))
}
