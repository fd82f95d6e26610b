package binstream

// Role selects which side of a transfer a handle serves.
type Role int

const (
	// RoleSender produces chunks.
	RoleSender Role = iota
	// RoleReceiver consumes chunks.
	RoleReceiver
)

// String returns the role name.
func (r Role) String() string {
	if r == RoleReceiver {
		return "receiver"
	}
	return "sender"
}

// Handle is an open adapter channel for one transfer. Handles are owned
// by a single coordinator drive and are not safe for concurrent use.
type Handle interface {
	// WriteChunk writes the next chunk of payload bytes (sender role).
	WriteChunk(p []byte) error
	// ReadChunk reads up to maxBytes of the next payload bytes
	// (receiver role). It returns io.EOF once the transfer's bytes are
	// exhausted.
	ReadChunk(maxBytes int) ([]byte, error)
	// Close releases the handle. Senders must have written exactly the
	// announced number of bytes by the time they close.
	Close() error
}

// Adapter converts between raw transport bytes and per-stream payload
// chunks for one transfer mode. Three implementations exist, one per
// mode; the TransferCoordinator selects among them by the negotiated
// mode at runtime. Adapters never retry failed I/O: failures propagate
// to the coordinator, which aborts the transfer.
type Adapter interface {
	// Mode identifies the wire strategy this adapter implements.
	Mode() Mode
	// Open prepares a transfer channel for the descriptor in the given
	// role. The descriptor's TotalSize is the authoritative byte count
	// for the transfer (the effective window for ranged transfers).
	Open(desc TransferDescriptor, role Role) (Handle, error)
}
