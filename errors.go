package binstream

import (
	"errors"
	"fmt"

	"github.com/filegrind/binstream-go/wire"
)

// ErrorKind classifies transfer errors.
type ErrorKind int

const (
	// ErrorKindCapabilityMismatch means no common transfer mode exists.
	// Resolvers fall back to base64 silently; the kind surfaces only when
	// a caller insists on a binary operation that cannot happen.
	ErrorKindCapabilityMismatch ErrorKind = iota
	// ErrorKindPayloadTooLarge means the payload exceeds the negotiated
	// maximum. Raised before any bytes move.
	ErrorKindPayloadTooLarge
	// ErrorKindDuplicateStreamID means a generated stream ID already
	// exists. Internal: registration retries with a fresh ID and only
	// reports this after exhausting retries.
	ErrorKindDuplicateStreamID
	// ErrorKindNotFound means the referenced stream ID is unknown or
	// expired.
	ErrorKindNotFound
	// ErrorKindAlreadyTerminal means an operation referenced a stream
	// that already reached Completed or Aborted.
	ErrorKindAlreadyTerminal
	// ErrorKindChecksumMismatch means the received bytes do not match the
	// declared checksum. Delivered data must be treated as untrusted.
	ErrorKindChecksumMismatch
	// ErrorKindTransportFailure means the underlying adapter failed.
	// The transfer is aborted and not retried at this layer.
	ErrorKindTransportFailure
	// ErrorKindInvalidRange means a requested byte range does not fit the
	// referenced object.
	ErrorKindInvalidRange
)

// TransferError is the error type for all expected failure conditions in
// this package.
type TransferError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *TransferError) Error() string {
	switch e.Kind {
	case ErrorKindCapabilityMismatch:
		return fmt.Sprintf("capability mismatch: %s", e.Message)
	case ErrorKindPayloadTooLarge:
		return fmt.Sprintf("payload too large: %s", e.Message)
	case ErrorKindDuplicateStreamID:
		return fmt.Sprintf("duplicate stream ID: %s", e.Message)
	case ErrorKindNotFound:
		return fmt.Sprintf("stream not found: %s", e.Message)
	case ErrorKindAlreadyTerminal:
		return fmt.Sprintf("stream already terminal: %s", e.Message)
	case ErrorKindChecksumMismatch:
		return fmt.Sprintf("checksum mismatch: %s", e.Message)
	case ErrorKindTransportFailure:
		return fmt.Sprintf("transport failure: %s", e.Message)
	case ErrorKindInvalidRange:
		return fmt.Sprintf("invalid range: %s", e.Message)
	default:
		return e.Message
	}
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *TransferError) Unwrap() error {
	return e.Cause
}

// NewCapabilityMismatchError creates an error for a missing common mode.
func NewCapabilityMismatchError(message string) *TransferError {
	return &TransferError{Kind: ErrorKindCapabilityMismatch, Message: message}
}

// NewPayloadTooLargeError creates an error for a payload exceeding the
// negotiated maximum.
func NewPayloadTooLargeError(size, max uint64) *TransferError {
	return &TransferError{
		Kind:    ErrorKindPayloadTooLarge,
		Message: fmt.Sprintf("%d bytes exceeds negotiated maximum %d", size, max),
	}
}

// NewDuplicateStreamIDError creates an error for an ID collision.
func NewDuplicateStreamIDError(id wire.StreamID) *TransferError {
	return &TransferError{Kind: ErrorKindDuplicateStreamID, Message: id.String()}
}

// NewNotFoundError creates an error for an unknown or expired stream ID.
func NewNotFoundError(id wire.StreamID) *TransferError {
	return &TransferError{Kind: ErrorKindNotFound, Message: id.String()}
}

// NewAlreadyTerminalError creates an error for an operation on a
// finalized stream.
func NewAlreadyTerminalError(id wire.StreamID, state TransferState) *TransferError {
	return &TransferError{
		Kind:    ErrorKindAlreadyTerminal,
		Message: fmt.Sprintf("%s is %s", id, state),
	}
}

// NewChecksumMismatchError creates an error for failed integrity
// verification.
func NewChecksumMismatchError(id wire.StreamID, expected, actual string) *TransferError {
	return &TransferError{
		Kind:    ErrorKindChecksumMismatch,
		Message: fmt.Sprintf("%s: expected %s, computed %s", id, expected, actual),
	}
}

// NewTransportFailureError wraps an adapter I/O failure.
func NewTransportFailureError(id wire.StreamID, cause error) *TransferError {
	return &TransferError{
		Kind:    ErrorKindTransportFailure,
		Message: fmt.Sprintf("%s: %v", id, cause),
		Cause:   cause,
	}
}

// NewInvalidRangeError creates an error for an out-of-bounds byte range.
func NewInvalidRangeError(message string) *TransferError {
	return &TransferError{Kind: ErrorKindInvalidRange, Message: message}
}

// IsKind reports whether err is a TransferError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// IsNotFound reports whether err is a stream-not-found error.
func IsNotFound(err error) bool {
	return IsKind(err, ErrorKindNotFound)
}

// IsPayloadTooLarge reports whether err is a size-limit rejection.
func IsPayloadTooLarge(err error) bool {
	return IsKind(err, ErrorKindPayloadTooLarge)
}

// IsChecksumMismatch reports whether err is an integrity failure.
func IsChecksumMismatch(err error) bool {
	return IsKind(err, ErrorKindChecksumMismatch)
}

// IsAlreadyTerminal reports whether err is a terminal-state rejection.
func IsAlreadyTerminal(err error) bool {
	return IsKind(err, ErrorKindAlreadyTerminal)
}
