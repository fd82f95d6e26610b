// Package binstream implements a binary side-channel for JSON-RPC
// transports, letting large payloads (images, audio, blobs) move as raw
// bytes instead of inline base64 while staying backward compatible with
// base64-only peers.
//
// The surrounding RPC layer stays in charge of method dispatch and JSON
// payload encoding. This package owns the binary transfer lifecycle:
// capability negotiation at session start, stream identifier assignment
// and demultiplexing, chunked transfer over one of three transports
// (length-prefixed stream, HTTP multipart, framed binary messages),
// integrity verification, progress notification, and reclamation of
// abandoned transfers.
//
// Core pieces:
//
//   - Negotiate intersects both peers' BinaryTransferCapability into the
//     session's EffectiveCapability.
//   - StreamRegistry is the unit of truth for what binary data exists and
//     its state, keyed by StreamID.
//   - TransferCoordinator drives a single transfer end to end through a
//     transport Adapter, updating the registry and emitting progress.
//   - ContentResolver chooses between inline base64 and a BinaryReference
//     per content item, falling back to base64 whenever binary transfer
//     is not possible.
package binstream
