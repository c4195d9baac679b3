package protocol

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// EpochCoordinator tracks epoch transitions. Setup material is bound to
// an epoch, so all parties must agree on the current epoch number.
type EpochCoordinator interface {
	// CurrentEpoch returns the current epoch number.
	CurrentEpoch() uint64

	// Subscribe receives epoch transition notifications until ctx is done.
	Subscribe(ctx context.Context) <-chan uint64

	// Start begins epoch progression.
	Start(ctx context.Context)

	// AdvanceTo manually advances to a specific epoch (for testing).
	AdvanceTo(epoch uint64)
}

// EpochForTime maps a wall-clock instant to an epoch number.
func EpochForTime(instant time.Time, epochDuration time.Duration) uint64 {
	return uint64(instant.UnixMilli() / epochDuration.Milliseconds())
}

// TimeForEpoch returns the wall-clock start of an epoch.
func TimeForEpoch(epoch uint64, epochDuration time.Duration) time.Time {
	return time.Unix(0, 0).Add(time.Duration(epoch) * epochDuration)
}

type epochSubscriber struct {
	ctx context.Context
	ch  chan uint64
}

// LocalEpochCoordinator derives epochs from local wall-clock time.
type LocalEpochCoordinator struct {
	mu            sync.RWMutex
	currentEpoch  uint64
	epochDuration time.Duration
	subscribers   []epochSubscriber
	started       atomic.Bool
}

// NewLocalEpochCoordinator creates a time-based epoch coordinator.
func NewLocalEpochCoordinator(epochDuration time.Duration) *LocalEpochCoordinator {
	return &LocalEpochCoordinator{
		epochDuration: epochDuration,
	}
}

// CurrentEpoch returns the current epoch number.
func (c *LocalEpochCoordinator) CurrentEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentEpoch
}

// Subscribe receives epoch transition notifications. The current epoch is
// delivered immediately.
func (c *LocalEpochCoordinator) Subscribe(ctx context.Context) <-chan uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan uint64, 8)
	c.subscribers = append(c.subscribers, epochSubscriber{ctx, ch})

	current := c.currentEpoch
	go func() {
		ch <- current
	}()

	return ch
}

// Start begins epoch progression from the wall clock.
func (c *LocalEpochCoordinator) Start(ctx context.Context) {
	if c.started.Swap(true) {
		return
	}

	c.mu.Lock()
	c.currentEpoch = EpochForTime(time.Now(), c.epochDuration)
	c.mu.Unlock()

	go func() {
		for {
			next := TimeForEpoch(c.CurrentEpoch()+1, c.epochDuration)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(next)):
				c.advance()
			}
		}
	}()
}

// AdvanceTo manually advances to a specific epoch. Only used in tests.
func (c *LocalEpochCoordinator) AdvanceTo(epoch uint64) {
	for c.CurrentEpoch() < epoch {
		c.advance()
	}
}

func (c *LocalEpochCoordinator) advance() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentEpoch++
	epoch := c.currentEpoch

	var toRemove []int
	for i, sub := range c.subscribers {
		select {
		case <-sub.ctx.Done():
			close(sub.ch)
			toRemove = append(toRemove, i)
		case sub.ch <- epoch:
		default:
			// Slow subscriber, skip this transition.
		}
	}

	slices.Reverse(toRemove)
	for _, i := range toRemove {
		c.subscribers = slices.Delete(c.subscribers, i, i+1)
	}
}
