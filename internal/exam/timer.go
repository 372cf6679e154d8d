package exam

import (
	"context"
	"sync"
	"time"
)

// CountdownState enumerates the lifecycle of one countdown.
type CountdownState string

const (
	CountdownIdle    CountdownState = "IDLE"
	CountdownRunning CountdownState = "RUNNING"
	CountdownExpired CountdownState = "EXPIRED"
	CountdownStopped CountdownState = "STOPPED"
)

// Countdown is one second-granularity countdown value object. It never owns a
// ticker; the Scheduler (or a test) drives it through Tick so that multiple
// countdowns sharing a tick source cannot drift relative to each other.
//
// A countdown started with zero or negative seconds is untimed: it counts
// elapsed time up and never expires.
type Countdown struct {
	mu        sync.Mutex
	state     CountdownState
	remaining int
	elapsed   int
	untimed   bool
	onExpire  func()
}

// NewCountdown creates an idle countdown. onExpire may be nil; it fires
// exactly once, outside the countdown's lock, when the value reaches zero.
func NewCountdown(onExpire func()) *Countdown {
	return &Countdown{state: CountdownIdle, onExpire: onExpire}
}

// Start arms the countdown with the given budget and begins consuming ticks.
func (c *Countdown) Start(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.untimed = seconds <= 0
	c.remaining = seconds
	c.elapsed = 0
	c.state = CountdownRunning
}

// Reset re-arms a running countdown with a new budget, keeping it running.
// Used when the active section changes. Elapsed time is preserved.
func (c *Countdown) Reset(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.untimed = seconds <= 0
	c.remaining = seconds
	c.state = CountdownRunning
}

// Stop freezes the countdown without raising expiry.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CountdownRunning {
		c.state = CountdownStopped
	}
}

// Resume restarts a stopped countdown. An expired countdown stays expired.
func (c *Countdown) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CountdownStopped {
		c.state = CountdownRunning
	}
}

// Tick advances the countdown by one second. Expiry fires exactly once even
// if ticks keep arriving after the value crossed zero.
func (c *Countdown) Tick() {
	c.mu.Lock()
	if c.state != CountdownRunning {
		c.mu.Unlock()
		return
	}
	c.elapsed++
	if c.untimed {
		c.mu.Unlock()
		return
	}
	c.remaining--
	if c.remaining > 0 {
		c.mu.Unlock()
		return
	}
	c.remaining = 0
	c.state = CountdownExpired
	fire := c.onExpire
	c.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// Remaining returns the seconds left; zero for an expired or untimed countdown.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.untimed {
		return 0
	}
	return c.remaining
}

// Elapsed returns the seconds counted while running.
func (c *Countdown) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// SetElapsed seeds the elapsed counter when resuming a saved attempt.
func (c *Countdown) SetElapsed(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seconds > 0 {
		c.elapsed = seconds
	}
}

// State returns the current lifecycle state.
func (c *Countdown) State() CountdownState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Scheduler owns the single wall-clock ticker that drives every per-second
// concern of the engine. Run blocks until ctx is cancelled.
type Scheduler struct {
	interval time.Duration
	onTick   func()
}

// NewScheduler creates a scheduler firing onTick at the given interval.
// Production uses one second; tests shrink it.
func NewScheduler(interval time.Duration, onTick func()) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{interval: interval, onTick: onTick}
}

// Run drives the tick loop. Call in a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.onTick()
		}
	}
}
