package zimage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsFIFO(t *testing.T) {
	t.Parallel()

	p := newWorkerPool("test", 1)
	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.True(t, p.submit(func(context.Context) {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	wg.Wait()
	p.shutdown()
	p.wait()

	require.Len(t, got, 20)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	p := newWorkerPool("test", 3)
	var (
		mu      sync.Mutex
		running int
		peak    int
		wg      sync.WaitGroup
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		p.submit(func(context.Context) {
			defer wg.Done()
			mu.Lock()
			running++
			peak = max(peak, running)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	wg.Wait()
	p.shutdown()
	p.wait()
	assert.LessOrEqual(t, peak, 3)
	assert.GreaterOrEqual(t, peak, 1)
}

func TestWorkerPoolShutdownReturnsPendingAndCancelsRunning(t *testing.T) {
	t.Parallel()

	p := newWorkerPool("test", 1)
	started := make(chan struct{})
	interrupted := make(chan struct{})
	p.submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(interrupted)
	})
	<-started
	ran := false
	p.submit(func(context.Context) { ran = true })

	pending := p.shutdown()
	assert.Len(t, pending, 1)
	<-interrupted
	p.wait()

	assert.False(t, ran)
	assert.True(t, p.isShutdown())
	assert.False(t, p.submit(func(context.Context) {}))
	assert.Nil(t, p.shutdown(), "second shutdown is a no-op")
}

func TestDispatcherCloseWaitsAndRefuses(t *testing.T) {
	t.Parallel()

	d := newDispatcher()
	done := make(chan struct{})
	require.True(t, d.submit(func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	}))
	d.close()

	select {
	case <-done:
	default:
		t.Fatal("close returned before the running job")
	}
	assert.False(t, d.submit(func(context.Context) {}))
	d.close()
}
