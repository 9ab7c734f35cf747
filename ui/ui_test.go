package ui

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreadMarker(t *testing.T) {
	t.Parallel()

	assert.False(t, IsThread(context.Background()))
	assert.True(t, IsThread(WithThread(context.Background())))
	assert.False(t, IsThread(nil)) //nolint:staticcheck // nil ctx is tolerated
}

func TestLoopRunsInOrderOnThread(t *testing.T) {
	t.Parallel()

	l := NewLoop(0)
	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		l.Post(func(ctx context.Context) {
			defer wg.Done()
			if !IsThread(ctx) {
				t.Errorf("posted func ran off the UI thread")
			}
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	wg.Wait()
	l.Close()

	assert.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopCloseDrainsAndIgnoresLatePosts(t *testing.T) {
	t.Parallel()

	l := NewLoop(8)
	ran := 0
	block := make(chan struct{})
	l.Post(func(context.Context) { <-block; ran++ })
	l.Post(func(context.Context) { ran++ })

	go func() { close(block) }()
	l.Close()
	assert.Equal(t, 2, ran)

	l.Post(func(context.Context) { ran++ })
	l.Close()
	assert.Equal(t, 2, ran)
}
