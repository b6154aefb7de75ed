package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestBoundedPoolLimitsConcurrency(t *testing.T) {
	pool := NewBoundedPool(3)
	assert.Equal(t, 3, pool.Size())

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			n := running.Inc()
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Dec()
		}))
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(0))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
}

func TestBoundedPoolDefaultSize(t *testing.T) {
	pool := NewBoundedPool(0)
	assert.Greater(t, pool.Size(), 0)
}

func TestBoundedPoolShutdown(t *testing.T) {
	pool := NewBoundedPool(1)

	var done atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.Submit(func() {
			time.Sleep(time.Millisecond)
			done.Inc()
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	assert.Equal(t, int32(5), done.Load())
	assert.True(t, pool.Closed())
	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)
}

func TestBoundedPoolShutdownTimeout(t *testing.T) {
	pool := NewBoundedPool(1)
	release := make(chan struct{})
	defer close(release)

	started := make(chan struct{})
	var ran atomic.Bool
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, pool.Submit(func() { ran.Store(true) }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)
	assert.False(t, ran.Load())
}

func TestGoPool(t *testing.T) {
	pool := NewGoPool()
	assert.Equal(t, 0, pool.Size())

	var done atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(func() { done.Inc() }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
	assert.Equal(t, int32(10), done.Load())
	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)
}
