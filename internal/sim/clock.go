package sim

import (
	"context"
	"sync"
	"time"
)

// clockFormat matches what the dashboard clock bar displays.
const clockFormat = "2006-01-02 15:04:05"

// Clock periodically pushes a wall-clock timestamp through the pipeline's
// outbound queue so subscribers can keep a clock widget current.
type Clock struct {
	pipe     *Pipeline
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewClock creates a stopped clock ticking every interval.
func NewClock(pipe *Pipeline, interval time.Duration) *Clock {
	return &Clock{pipe: pipe, interval: interval}
}

// Start begins ticking. Restartable after Stop.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				c.pipe.AppendEvent(Event{Type: EventClock, Payload: now.Format(clockFormat)})
			}
		}
	}()
}

// Stop halts the ticker and waits for it.
func (c *Clock) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()
	c.wg.Wait()
}
