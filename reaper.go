package binstream

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/filegrind/binstream-go/wire"
)

// ReapTarget is anything that can expire idle transfers. Both
// TransferCoordinator and a bare StreamRegistry implement it.
type ReapTarget interface {
	Reap(idleThreshold time.Duration) []wire.StreamID
}

// Reaper periodically removes descriptors with no activity within the
// idle threshold, preventing unbounded memory growth from abandoned or
// never-claimed binary references.
type Reaper struct {
	target   ReapTarget
	interval time.Duration
	idle     time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewReaper creates a reaper that scans the target every interval,
// expiring anything idle longer than the threshold.
func NewReaper(target ReapTarget, interval, idleThreshold time.Duration, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		target:   target,
		interval: interval,
		idle:     idleThreshold,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the reap loop.
func (r *Reaper) Start() {
	go r.run()
}

// Stop halts the reap loop and waits for it to exit.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Reaper) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			reaped := r.target.Reap(r.idle)
			if len(reaped) > 0 {
				r.logger.Info("reaped idle transfers",
					zap.Int("count", len(reaped)),
					zap.Duration("idle_threshold", r.idle))
			}
		}
	}
}
