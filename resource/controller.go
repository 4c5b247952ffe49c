package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds the limits of a Controller. Zero values mean unlimited,
// except MaxBackgroundJobs, which defaults to one job at a time.
type Config struct {
	// MemoryLimitBytes caps the vector bytes preloading may pin in caches.
	MemoryLimitBytes int64

	// MaxBackgroundJobs bounds concurrent matrix builds and preloads.
	MaxBackgroundJobs int64

	// IOLimitBytesPerSec rate-limits matrix builds and remote fetches.
	IOLimitBytesPerSec int64
}

// Controller enforces a Config across every store that shares it. A nil
// *Controller imposes no limits.
type Controller struct {
	memLimit int64
	memUsed  atomic.Int64
	jobs     *semaphore.Weighted
	io       *rate.Limiter
}

// NewController returns a Controller enforcing cfg.
func NewController(cfg Config) *Controller {
	c := &Controller{
		memLimit: max(cfg.MemoryLimitBytes, 0),
		jobs:     semaphore.NewWeighted(max(cfg.MaxBackgroundJobs, 1)),
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.io = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// ReserveMemory charges n bytes to the memory budget. It never blocks and
// reports false, charging nothing, when the budget cannot cover n.
func (c *Controller) ReserveMemory(n int64) bool {
	if c == nil || n <= 0 {
		return true
	}
	for {
		used := c.memUsed.Load()
		if c.memLimit > 0 && used+n > c.memLimit {
			return false
		}
		if c.memUsed.CompareAndSwap(used, used+n) {
			return true
		}
	}
}

// ReleaseMemory returns n bytes to the memory budget.
func (c *Controller) ReleaseMemory(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.memUsed.Add(-n)
}

// MemoryUsage returns the bytes currently reserved.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the memory budget, 0 when unlimited.
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.memLimit
}

// StartJob waits for a background job slot. Every successful call must be
// paired with FinishJob.
func (c *Controller) StartJob(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.jobs.Acquire(ctx, 1)
}

// FinishJob frees the slot taken by StartJob.
func (c *Controller) FinishJob() {
	if c == nil {
		return
	}
	c.jobs.Release(1)
}

// WaitIO blocks until n bytes of IO fit the rate limit. Requests larger
// than the one-second burst are paid in installments.
func (c *Controller) WaitIO(ctx context.Context, n int) error {
	if c == nil || c.io == nil {
		return nil
	}
	burst := c.io.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := c.io.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
