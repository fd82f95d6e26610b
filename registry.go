package binstream

import (
	"fmt"
	"sync"
	"time"

	"github.com/filegrind/binstream-go/wire"
)

// TransferState tracks a descriptor through its lifecycle:
// Registered -> Active -> {Completed, Aborted}. Terminal states are
// final.
type TransferState int

const (
	// StateRegistered means the transfer exists but no chunk has moved.
	StateRegistered TransferState = iota
	// StateActive means at least one chunk has been transmitted or
	// received.
	StateActive
	// StateCompleted means all bytes moved and verification (if any)
	// passed.
	StateCompleted
	// StateAborted means the transfer failed or was cancelled.
	StateAborted
)

// String returns the state name.
func (s TransferState) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s TransferState) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Direction distinguishes which side of a transfer a descriptor tracks.
type Direction int

const (
	// DirectionSource means this side produces the bytes.
	DirectionSource Direction = iota
	// DirectionSink means this side consumes the bytes.
	DirectionSink
)

// String returns the direction name.
func (d Direction) String() string {
	if d == DirectionSink {
		return "sink"
	}
	return "source"
}

// TransferDescriptor is one registry entry. The registry owns
// descriptors exclusively: lookups return copies, and all mutation goes
// through registry operations.
type TransferDescriptor struct {
	StreamID         wire.StreamID
	TotalSize        uint64
	BytesTransferred uint64
	State            TransferState
	Mode             Mode
	MimeType         string
	// ExpectedChecksum is the hex SHA-256 digest of the complete object,
	// empty when none was declared.
	ExpectedChecksum string
	CreatedAt        time.Time
	LastActivity     time.Time
	Direction        Direction
}

// registerAttempts bounds ID regeneration on the practically-unreachable
// duplicate collision before Register gives up.
const registerAttempts = 8

const registryShardCount = 32

// registryShard holds one slice of the descriptor table under its own
// lock, so unrelated large transfers never contend on a single global
// mutex.
type registryShard struct {
	mu      sync.Mutex
	entries map[wire.StreamID]*TransferDescriptor
}

// StreamRegistry is the process-wide table of pending and active binary
// transfers, keyed by StreamID. All mutating operations are atomic with
// respect to concurrent callers; single-writer-per-key semantics are
// enforced here, not by callers.
type StreamRegistry struct {
	shards [registryShardCount]registryShard
	now    func() time.Time
}

// NewStreamRegistry creates an empty registry.
func NewStreamRegistry() *StreamRegistry {
	r := &StreamRegistry{now: time.Now}
	for i := range r.shards {
		r.shards[i].entries = make(map[wire.StreamID]*TransferDescriptor)
	}
	return r
}

// shard maps an ID to its shard. StreamIDs are uniformly random, so the
// first byte spreads entries evenly.
func (r *StreamRegistry) shard(id wire.StreamID) *registryShard {
	return &r.shards[int(id[0])%registryShardCount]
}

// Register assigns a fresh StreamID to the descriptor and stores it in
// Registered state. A generated ID that already exists is regenerated
// rather than overwritten; the DuplicateStreamId error is returned only
// after exhausting retries, which entropy makes practically unreachable.
func (r *StreamRegistry) Register(desc TransferDescriptor) (wire.StreamID, error) {
	var lastID wire.StreamID
	for attempt := 0; attempt < registerAttempts; attempt++ {
		id := wire.NewStreamID()
		lastID = id
		if r.tryStore(id, desc) {
			return id, nil
		}
	}
	return wire.ZeroStreamID, NewDuplicateStreamIDError(lastID)
}

// RegisterWithID stores a descriptor under a remotely-assigned ID, the
// receiver-side counterpart of Register.
func (r *StreamRegistry) RegisterWithID(id wire.StreamID, desc TransferDescriptor) error {
	if !r.tryStore(id, desc) {
		return NewDuplicateStreamIDError(id)
	}
	return nil
}

func (r *StreamRegistry) tryStore(id wire.StreamID, desc TransferDescriptor) bool {
	now := r.now()
	desc.StreamID = id
	desc.State = StateRegistered
	desc.BytesTransferred = 0
	desc.CreatedAt = now
	desc.LastActivity = now

	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[id]; exists {
		return false
	}
	stored := desc
	s.entries[id] = &stored
	return true
}

// Lookup returns a copy of the descriptor for the given ID.
func (r *StreamRegistry) Lookup(id wire.StreamID) (TransferDescriptor, error) {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return TransferDescriptor{}, NewNotFoundError(id)
	}
	return *entry, nil
}

// UpdateProgress records transferred bytes for a stream. Progress is
// monotonically non-decreasing and never exceeds TotalSize; the first
// update moves the descriptor from Registered to Active.
func (r *StreamRegistry) UpdateProgress(id wire.StreamID, bytesTransferred uint64) error {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return NewNotFoundError(id)
	}
	if entry.State.Terminal() {
		return NewAlreadyTerminalError(id, entry.State)
	}
	if bytesTransferred > entry.TotalSize {
		return NewTransportFailureError(id,
			progressOverflowError{reported: bytesTransferred, total: entry.TotalSize})
	}
	if bytesTransferred > entry.BytesTransferred {
		entry.BytesTransferred = bytesTransferred
	}
	entry.State = StateActive
	entry.LastActivity = r.now()
	return nil
}

// Finalize moves a stream to a terminal state. Finalizing an already
// terminal stream fails with AlreadyTerminal.
func (r *StreamRegistry) Finalize(id wire.StreamID, outcome TransferState) error {
	if !outcome.Terminal() {
		return NewTransportFailureError(id, nonTerminalOutcomeError{outcome: outcome})
	}
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return NewNotFoundError(id)
	}
	if entry.State.Terminal() {
		return NewAlreadyTerminalError(id, entry.State)
	}
	entry.State = outcome
	entry.LastActivity = r.now()
	return nil
}

// Release removes a stream from the registry. Consumers call this after
// claiming the bytes; it is the consumption acknowledgment that ends a
// reference's lifecycle.
func (r *StreamRegistry) Release(id wire.StreamID) error {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return NewNotFoundError(id)
	}
	delete(s.entries, id)
	return nil
}

// Reap removes every descriptor with no activity within the idle
// threshold and returns the expired IDs. This covers abandoned
// Registered/Active transfers as well as terminal descriptors whose
// consumer never released them.
func (r *StreamRegistry) Reap(idleThreshold time.Duration) []wire.StreamID {
	cutoff := r.now().Add(-idleThreshold)
	var reaped []wire.StreamID
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for id, entry := range s.entries {
			if entry.LastActivity.Before(cutoff) {
				delete(s.entries, id)
				reaped = append(reaped, id)
			}
		}
		s.mu.Unlock()
	}
	return reaped
}

// Len returns the number of live descriptors.
func (r *StreamRegistry) Len() int {
	total := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

// RegistryStats counts live descriptors by state.
type RegistryStats struct {
	Registered int
	Active     int
	Completed  int
	Aborted    int
}

// Stats snapshots descriptor counts by state.
func (r *StreamRegistry) Stats() RegistryStats {
	var stats RegistryStats
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, entry := range s.entries {
			switch entry.State {
			case StateRegistered:
				stats.Registered++
			case StateActive:
				stats.Active++
			case StateCompleted:
				stats.Completed++
			case StateAborted:
				stats.Aborted++
			}
		}
		s.mu.Unlock()
	}
	return stats
}

type progressOverflowError struct {
	reported, total uint64
}

func (e progressOverflowError) Error() string {
	return fmt.Sprintf("progress %d exceeds total size %d", e.reported, e.total)
}

type nonTerminalOutcomeError struct {
	outcome TransferState
}

func (e nonTerminalOutcomeError) Error() string {
	return fmt.Sprintf("finalize outcome must be terminal, got %s", e.outcome)
}
