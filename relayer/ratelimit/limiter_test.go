package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/SeungheonOh/xreserve-relay/testing/assert"
	"github.com/SeungheonOh/xreserve-relay/testing/require"
)

func TestLimiter_BurstIsImmediate(t *testing.T) {
	l := New(1, 5)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Equal(t, true, time.Since(start) < 100*time.Millisecond, "burst acquires should not wait")
}

func TestLimiter_AcquiresBoundedByRefillRate(t *testing.T) {
	// Burst 2 at 50/s: the 6 acquires beyond the burst need at least
	// (6-2)/50 = 80ms.
	l := New(50, 2)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 6; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	elapsed := time.Since(start)
	assert.Equal(t, true, elapsed >= 70*time.Millisecond, "6 acquires finished in %s, faster than the bucket allows", elapsed)
}

func TestLimiter_ConcurrentAcquire(t *testing.T) {
	l := New(100, 4)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	start := time.Now()
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.Acquire(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	elapsed := time.Since(start)
	assert.Equal(t, true, elapsed >= 140*time.Millisecond, "20 acquires finished in %s, faster than the bucket allows", elapsed)
}

func TestLimiter_AcquireHonorsContext(t *testing.T) {
	l := New(0.1, 1)
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))

	cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(cancelled)
	if err == nil {
		t.Fatal("expected context cancellation error, got nil")
	}
}
