package attempt

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Countdown decrements secondsRemaining once per interval and signals zero
// exactly once. It never submits anything itself.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	expired   bool
	stopped   bool

	onTick   func(remaining int)
	onExpire func()

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCountdown creates a Countdown. Either callback may be nil.
func NewCountdown(seconds int, onTick func(int), onExpire func()) *Countdown {
	if seconds < 0 {
		seconds = 0
	}
	return &Countdown{remaining: seconds, onTick: onTick, onExpire: onExpire}
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Tick is a pure decrement. The call that reaches zero fires onExpire; later
// ticks are no-ops.
func (c *Countdown) Tick() int {
	c.mu.Lock()
	if c.expired {
		c.mu.Unlock()
		return 0
	}
	if c.remaining > 0 {
		c.remaining--
	}
	remaining := c.remaining
	fire := remaining == 0
	if fire {
		c.expired = true
	}
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(remaining)
	}
	if fire && c.onExpire != nil {
		c.onExpire()
	}
	return remaining
}

// Start ticks every interval until Stop. Calling Start twice, or after Stop,
// is a no-op.
func (c *Countdown) Start(interval time.Duration) {
	c.mu.Lock()
	if c.cancel != nil || c.stopped {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Tick()
			}
		}
	}()
}

// Stop halts the ticking goroutine and waits for it. Safe to call repeatedly,
// but not from inside onTick or onExpire.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.stopped = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// FormatClock renders seconds as HH:MM:SS. Negative values clamp to zero.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
