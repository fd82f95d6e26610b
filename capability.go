package binstream

import "fmt"

// Mode identifies a negotiated wire strategy for moving binary bytes
// outside the JSON payload.
type Mode string

const (
	// ModeStream frames transfers with a magic-prefixed header on the
	// same byte channel that carries the RPC JSON messages.
	ModeStream Mode = "stream"
	// ModeMultipart correlates one JSON part with one binary part inside
	// a multipart/mixed envelope via Content-ID.
	ModeMultipart Mode = "multipart"
	// ModeBinaryFrame sends streamId-prefixed binary frames over a
	// full-duplex framed transport whose text frames carry RPC JSON.
	ModeBinaryFrame Mode = "binaryFrame"
)

// Valid reports whether m is a known transfer mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeStream, ModeMultipart, ModeBinaryFrame:
		return true
	default:
		return false
	}
}

// ParseMode parses a mode string as it appears in capability JSON.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown transfer mode %q", s)
	}
	return m, nil
}

// BinaryTransferCapability is one peer's advertised binary-transfer
// capability. It is exchanged during session initialization and is
// immutable for the lifetime of the session; changing it requires a new
// session.
type BinaryTransferCapability struct {
	// Supported indicates the peer can move binary payloads at all.
	Supported bool `json:"supported"`
	// MaxBinarySize bounds a single payload in bytes. Nil means
	// unlimited.
	MaxBinarySize *uint64 `json:"maxBinarySize,omitempty"`
	// SupportedModes lists the wire strategies the peer accepts, in the
	// peer's order of preference.
	SupportedModes []Mode `json:"supportedModes,omitempty"`
}

// EffectiveCapability is the intersection of two peers' capabilities for
// one session. It is computed once by Negotiate and never revised
// mid-session.
type EffectiveCapability struct {
	// Supported is true only when both peers support binary transfer and
	// share at least one mode.
	Supported bool
	// MaxBinarySize is the smaller of the two peers' bounds. Nil means
	// neither peer declared one.
	MaxBinarySize *uint64
	// Modes is the mode intersection, ordered by the local peer's
	// preference.
	Modes []Mode
}

// Negotiate computes the effective capability from the local and remote
// capabilities. An empty mode intersection disables binary transfer for
// the session even when both sides individually support it; that is
// surfaced as Supported=false, never as an error.
func Negotiate(local, remote BinaryTransferCapability) EffectiveCapability {
	modes := intersectModes(local.SupportedModes, remote.SupportedModes)

	return EffectiveCapability{
		Supported:     local.Supported && remote.Supported && len(modes) > 0,
		MaxBinarySize: minSizeBound(local.MaxBinarySize, remote.MaxBinarySize),
		Modes:         modes,
	}
}

// SelectMode picks the first preferred mode available in the effective
// set. A nil preference falls back to the negotiated order.
func (e EffectiveCapability) SelectMode(preference []Mode) (Mode, bool) {
	if !e.Supported || len(e.Modes) == 0 {
		return "", false
	}
	if len(preference) == 0 {
		return e.Modes[0], true
	}
	for _, want := range preference {
		for _, have := range e.Modes {
			if want == have {
				return want, true
			}
		}
	}
	return "", false
}

// HasMode reports whether the given mode survived negotiation.
func (e EffectiveCapability) HasMode(m Mode) bool {
	for _, have := range e.Modes {
		if have == m {
			return true
		}
	}
	return false
}

// AllowsSize reports whether a payload of the given size fits under the
// negotiated maximum.
func (e EffectiveCapability) AllowsSize(size uint64) bool {
	return e.MaxBinarySize == nil || size <= *e.MaxBinarySize
}

// intersectModes returns the modes present on both sides, in local
// order, with duplicates dropped.
func intersectModes(local, remote []Mode) []Mode {
	remoteSet := make(map[Mode]bool, len(remote))
	for _, m := range remote {
		remoteSet[m] = true
	}

	var out []Mode
	seen := make(map[Mode]bool, len(local))
	for _, m := range local {
		if remoteSet[m] && !seen[m] {
			out = append(out, m)
			seen[m] = true
		}
	}
	return out
}

// minSizeBound combines two optional size bounds, treating nil as
// unlimited.
func minSizeBound(a, b *uint64) *uint64 {
	if a == nil {
		return copyBound(b)
	}
	if b == nil {
		return copyBound(a)
	}
	if *a <= *b {
		return copyBound(a)
	}
	return copyBound(b)
}

func copyBound(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
