package binstream

import "go.uber.org/zap"

// ContentResolver decides, per content item at serialization time,
// whether to emit inline base64 or register a binary stream and embed a
// BinaryReference. The decision is made once per item and never
// revisited mid-transfer.
//
// Binary mode is used iff the session's effective capability supports
// it, the caller explicitly requested binary or the payload exceeds the
// base64-preferred threshold, the size fits under the negotiated
// maximum, and a transfer mode is available. Every other case falls back
// to base64 silently; fallback is never an error.
type ContentResolver struct {
	coordinator *TransferCoordinator
	caps        EffectiveCapability
	threshold   uint64
	preference  []Mode
	logger      *zap.Logger
}

// ResolverOption configures a ContentResolver.
type ResolverOption func(*ContentResolver)

// WithBase64Threshold sets the payload size above which binary mode is
// preferred without an explicit request.
func WithBase64Threshold(bytes uint64) ResolverOption {
	return func(r *ContentResolver) {
		r.threshold = bytes
	}
}

// WithModePreference sets the caller's transfer-mode preference order.
func WithModePreference(modes ...Mode) ResolverOption {
	return func(r *ContentResolver) {
		r.preference = modes
	}
}

// WithResolverLogger sets the resolver's logger.
func WithResolverLogger(logger *zap.Logger) ResolverOption {
	return func(r *ContentResolver) {
		r.logger = logger
	}
}

// defaultBase64Threshold is the payload size (64 KB) above which base64
// inflation starts to hurt enough to prefer the side channel.
const defaultBase64Threshold uint64 = 65_536

// NewContentResolver creates a resolver bound to a coordinator and the
// session's negotiated capability.
func NewContentResolver(coordinator *TransferCoordinator, caps EffectiveCapability, options ...ResolverOption) *ContentResolver {
	r := &ContentResolver{
		coordinator: coordinator,
		caps:        caps,
		threshold:   defaultBase64Threshold,
		logger:      zap.NewNop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// resolveConfig carries per-item options.
type resolveConfig struct {
	preferBinary bool
}

// ResolveOption configures a single Resolve call.
type ResolveOption func(*resolveConfig)

// PreferBinary requests binary mode for this item regardless of size,
// capability permitting.
func PreferBinary() ResolveOption {
	return func(cfg *resolveConfig) {
		cfg.preferBinary = true
	}
}

// Resolve produces the RPC-visible content for a payload. Capability and
// size-limit shortfalls resolve to base64 silently; only internal
// registration failures with no safe fallback surface as errors.
func (r *ContentResolver) Resolve(data []byte, mimeType string, options ...ResolveOption) (Content, error) {
	var cfg resolveConfig
	for _, opt := range options {
		opt(&cfg)
	}

	size := uint64(len(data))
	if !r.caps.Supported {
		return NewBase64Content(data, mimeType), nil
	}
	if !cfg.preferBinary && size <= r.threshold {
		return NewBase64Content(data, mimeType), nil
	}
	if !r.caps.AllowsSize(size) {
		r.logger.Debug("payload exceeds negotiated maximum, falling back to base64",
			zap.Uint64("size", size))
		return NewBase64Content(data, mimeType), nil
	}
	mode, ok := r.caps.SelectMode(r.preference)
	if !ok {
		return NewBase64Content(data, mimeType), nil
	}

	ref, err := r.coordinator.RegisterSource(data, mimeType, mode)
	if err != nil {
		// Capability and size races still have the base64 fallback;
		// anything else has no safe default and surfaces.
		if IsKind(err, ErrorKindCapabilityMismatch) || IsPayloadTooLarge(err) {
			return NewBase64Content(data, mimeType), nil
		}
		return Content{}, err
	}

	r.logger.Debug("resolved content to binary reference",
		zap.String("stream_id", ref.StreamID.String()),
		zap.Uint64("size", size),
		zap.String("mode", string(mode)))
	return NewBinaryRefContent(ref), nil
}
