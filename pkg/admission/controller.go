// Package admission bounds how many connections the edge serves at once.
// Each connection holds one permit from a fixed budget for its whole service
// loop. When the budget is exhausted new connections wait, which pushes
// backpressure onto the accept side instead of rejecting clients.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is the default number of concurrently served connections.
const DefaultCapacity = 25000

var (
	// ErrInvalidCapacity indicates a non-positive permit budget.
	ErrInvalidCapacity = errors.New("admission capacity must be positive")

	// ErrRejected is returned when the acquire timeout elapses before a
	// permit becomes free.
	ErrRejected = errors.New("admission rejected: no permit available")
)

// Option configures a Controller.
type Option func(*Controller)

// WithAcquireTimeout bounds how long Acquire may wait. Zero (the default)
// waits until a permit is free or the caller's context ends.
func WithAcquireTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.acquireTimeout = d
	}
}

// Controller is a counting semaphore over connection permits.
type Controller struct {
	sem            *semaphore.Weighted
	capacity       int64
	acquireTimeout time.Duration

	inUse   atomic.Int64
	waiting atomic.Int64
}

// New creates a controller with capacity permits.
func New(capacity int64, opts ...Option) (*Controller, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidCapacity, capacity)
	}

	c := &Controller{
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
	}
	for _, opt := range opts {
		opt(c)
	}

	permitsCapacity.Set(float64(capacity))
	return c, nil
}

// Acquire suspends until a permit is free and returns it. It fails with the
// context error when ctx ends first, or with ErrRejected when the configured
// acquire timeout elapses.
func (c *Controller) Acquire(ctx context.Context) (*Permit, error) {
	if c.sem.TryAcquire(1) {
		return c.grant(), nil
	}

	waitCtx := ctx
	if c.acquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.acquireTimeout)
		defer cancel()
	}

	start := time.Now()
	c.waiting.Add(1)
	waiting.Inc()
	err := c.sem.Acquire(waitCtx, 1)
	c.waiting.Add(-1)
	waiting.Dec()
	waitSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			rejectionsTotal.Inc()
			return nil, ErrRejected
		}
		return nil, fmt.Errorf("acquire permit: %w", err)
	}
	return c.grant(), nil
}

// TryAcquire returns a permit only if one is free right now.
func (c *Controller) TryAcquire() (*Permit, bool) {
	if !c.sem.TryAcquire(1) {
		return nil, false
	}
	return c.grant(), true
}

func (c *Controller) grant() *Permit {
	c.inUse.Add(1)
	permitsInUse.Inc()
	return &Permit{c: c}
}

func (c *Controller) release() {
	c.inUse.Add(-1)
	permitsInUse.Dec()
	c.sem.Release(1)
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	return State{
		Capacity: c.capacity,
		InUse:    c.inUse.Load(),
		Waiting:  c.waiting.Load(),
	}
}

// Capacity returns the total number of permits.
func (c *Controller) Capacity() int64 {
	return c.capacity
}

// Permit is one unit of the admission budget. Release returns it; calls after
// the first are no-ops.
type Permit struct {
	c    *Controller
	once sync.Once
}

// Release returns the permit to the controller.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(p.c.release)
}
