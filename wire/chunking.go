package wire

// DefaultChunkSize is the default size adapters use when splitting a
// payload into chunks (256 KB).
const DefaultChunkSize = 262_144

// MinChunkSize bounds how small a configured chunk may be. Tiny chunks
// multiply per-chunk overhead without any pacing benefit.
const MinChunkSize = 4_096

// MaxChunkSize bounds how large a configured chunk may be (4 MB).
const MaxChunkSize = 4_194_304

// ClampChunkSize clamps a configured chunk size into the supported
// range, substituting the default for non-positive values.
func ClampChunkSize(n int) int {
	if n <= 0 {
		return DefaultChunkSize
	}
	if n < MinChunkSize {
		return MinChunkSize
	}
	if n > MaxChunkSize {
		return MaxChunkSize
	}
	return n
}
