package binstream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filegrind/binstream-go/wire"
)

type countingReapTarget struct {
	mu    sync.Mutex
	calls int
	idle  time.Duration
}

func (c *countingReapTarget) Reap(idleThreshold time.Duration) []wire.StreamID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.idle = idleThreshold
	return []wire.StreamID{wire.NewStreamID()}
}

func (c *countingReapTarget) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestReaperScansPeriodically(t *testing.T) {
	target := &countingReapTarget{}
	r := NewReaper(target, 5*time.Millisecond, time.Minute, nil)
	r.Start()

	require.Eventually(t, func() bool { return target.count() >= 3 },
		2*time.Second, time.Millisecond)
	r.Stop()

	target.mu.Lock()
	idle := target.idle
	target.mu.Unlock()
	assert.Equal(t, time.Minute, idle)
}

func TestReaperStopHaltsScanning(t *testing.T) {
	target := &countingReapTarget{}
	r := NewReaper(target, time.Millisecond, time.Minute, nil)
	r.Start()

	require.Eventually(t, func() bool { return target.count() >= 1 },
		2*time.Second, time.Millisecond)
	r.Stop()

	after := target.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, target.count())
}

func TestReaperAgainstRegistry(t *testing.T) {
	registry := NewStreamRegistry()
	base := time.Now()
	registry.now = func() time.Time { return base }

	_, err := registry.Register(TransferDescriptor{TotalSize: 100})
	require.NoError(t, err)

	registry.now = func() time.Time { return base.Add(time.Hour) }

	r := NewReaper(registry, 5*time.Millisecond, time.Minute, nil)
	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool { return registry.Len() == 0 },
		2*time.Second, time.Millisecond)
}
