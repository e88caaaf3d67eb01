package sim

import (
	"context"
	"sync"
)

// PollInterval is the number of loop iterations between cancellation polls
// and progress reports.
const PollInterval = 1000

// Controller pauses, resumes and cancels a running simulation. The zero value
// is ready to use and a nil *Controller only observes the context.
type Controller struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
	cancel chan struct{}
	once   sync.Once
}

func NewController() *Controller {
	return &Controller{cancel: make(chan struct{})}
}

func (c *Controller) cancelled() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		c.cancel = make(chan struct{})
	}
	return c.cancel
}

// Pause makes the next Poll block until Resume or Cancel.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.paused = true
	c.resume = make(chan struct{})
}

func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resume)
}

// Cancel stops the run at its next poll. It is safe to call more than once.
func (c *Controller) Cancel() {
	done := c.cancelled()
	c.once.Do(func() { close(done) })
}

func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Controller) IsCancelled() bool {
	select {
	case <-c.cancelled():
		return true
	default:
		return false
	}
}

// Poll reports whether the run must stop. While the controller is paused it
// blocks until resumed, cancelled, or ctx is done.
func (c *Controller) Poll(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if c == nil {
		return false
	}
	done := c.cancelled()
	c.mu.Lock()
	paused, resume := c.paused, c.resume
	c.mu.Unlock()
	if paused {
		select {
		case <-resume:
		case <-done:
			return true
		case <-ctx.Done():
			return true
		}
	}
	select {
	case <-done:
		return true
	default:
		return ctx.Err() != nil
	}
}

// ProgressReporter receives the fraction of the run completed and the loop
// iteration count at every poll, and once more with done set when the run
// ends.
type ProgressReporter interface {
	Progress(fraction float64, iterations int64, done bool)
}

type ProgressFunc func(fraction float64, iterations int64, done bool)

func (f ProgressFunc) Progress(fraction float64, iterations int64, done bool) {
	f(fraction, iterations, done)
}
