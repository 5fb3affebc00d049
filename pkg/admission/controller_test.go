package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int64{0, -5} {
		_, err := New(capacity)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
	}
}

func TestAcquireRelease(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	p1, err := c.Acquire(context.Background())
	require.NoError(t, err)
	p2, err := c.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, State{Capacity: 2, InUse: 2}, c.State())

	_, ok := c.TryAcquire()
	assert.False(t, ok, "third permit should not be available")

	p1.Release()
	p2.Release()
	assert.Equal(t, int64(0), c.State().InUse)
}

func TestPermit_ReleaseIsIdempotent(t *testing.T) {
	c, err := New(1)
	require.NoError(t, err)

	p, err := c.Acquire(context.Background())
	require.NoError(t, err)

	p.Release()
	p.Release()
	p.Release()

	assert.Equal(t, int64(0), c.State().InUse)

	// Exactly one permit must be available again, not three.
	p1, ok := c.TryAcquire()
	require.True(t, ok)
	_, ok = c.TryAcquire()
	assert.False(t, ok, "repeated Release must not inflate the budget")
	p1.Release()

	var nilPermit *Permit
	nilPermit.Release()
}

func TestAcquire_BlocksUntilRelease(t *testing.T) {
	c, err := New(1)
	require.NoError(t, err)

	held, err := c.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan *Permit)
	go func() {
		p, err := c.Acquire(context.Background())
		if err != nil {
			t.Errorf("Acquire() error = %v", err)
			close(acquired)
			return
		}
		acquired <- p
	}()

	require.Eventually(t, func() bool { return c.State().Waiting == 1 }, time.Second, time.Millisecond)

	select {
	case <-acquired:
		t.Fatal("second Acquire returned while the budget was exhausted")
	case <-time.After(20 * time.Millisecond):
	}

	held.Release()

	select {
	case p := <-acquired:
		require.NotNil(t, p)
		p.Release()
	case <-time.After(time.Second):
		t.Fatal("second Acquire did not resume after Release")
	}
	assert.Equal(t, State{Capacity: 1}, c.State())
}

func TestAcquire_ContextCancelled(t *testing.T) {
	c, err := New(1)
	require.NoError(t, err)

	held, err := c.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.Equal(t, int64(0), c.State().Waiting)
}

func TestAcquire_Timeout(t *testing.T) {
	c, err := New(1, WithAcquireTimeout(10*time.Millisecond))
	require.NoError(t, err)

	held, err := c.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	start := time.Now()
	_, err = c.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrRejected)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, int64(1), c.State().InUse)
}

// TestAcquire_FullBudget admits 25000 concurrent connections against a budget
// of 25000; the next one waits until a permit is released.
func TestAcquire_FullBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full budget test in short mode")
	}

	c, err := New(DefaultCapacity)
	require.NoError(t, err)

	permits := make(chan *Permit, DefaultCapacity)
	var wg sync.WaitGroup
	for i := 0; i < DefaultCapacity; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			permits <- p
		}()
	}
	wg.Wait()
	require.Equal(t, int64(DefaultCapacity), c.State().InUse)

	extra := make(chan *Permit, 1)
	go func() {
		p, err := c.Acquire(context.Background())
		if err == nil {
			extra <- p
		}
	}()

	require.Eventually(t, func() bool { return c.State().Waiting == 1 }, time.Second, time.Millisecond)
	assert.Len(t, extra, 0, "permit 25001 must wait")

	(<-permits).Release()

	select {
	case p := <-extra:
		p.Release()
	case <-time.After(time.Second):
		t.Fatal("waiting connection was not admitted after a release")
	}

	close(permits)
	for p := range permits {
		p.Release()
	}
	assert.Equal(t, int64(0), c.State().InUse)
}

// TestAcquire_NeverExceedsBudget checks the admission bound under contention.
func TestAcquire_NeverExceedsBudget(t *testing.T) {
	const capacity = 8
	c, err := New(capacity)
	require.NoError(t, err)

	var active, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer p.Release()

			n := active.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(capacity))
	assert.Equal(t, int64(0), c.State().InUse)
}
