// Package ui models the host's UI thread.
//
// Sinks only touch widgets from a context marked by WithThread. A host with
// its own event loop implements Queue and marks the context it hands to
// posted functions; hosts without one can use Loop.
package ui

import (
	"context"
	"sync"
)

// Queue posts fn to run on the UI thread. fn receives a context for which
// IsThread reports true.
type Queue interface {
	Post(fn func(ctx context.Context))
}

// QueueFunc adapts a function to Queue.
type QueueFunc func(fn func(ctx context.Context))

func (f QueueFunc) Post(fn func(ctx context.Context)) { f(fn) }

type threadKey struct{}

// WithThread marks ctx as running on the UI thread.
func WithThread(ctx context.Context) context.Context {
	return context.WithValue(ctx, threadKey{}, true)
}

// IsThread reports whether ctx was marked by WithThread.
func IsThread(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(threadKey{}).(bool)
	return v
}

// Loop runs posted functions one at a time on a single goroutine.
type Loop struct {
	ctx  context.Context
	q    chan func(context.Context)
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

var _ Queue = (*Loop)(nil)

// NewLoop starts a loop with a queue of qlen pending functions (0 => 256).
// Post blocks while the queue is full.
func NewLoop(qlen int) *Loop {
	if qlen <= 0 {
		qlen = 256
	}
	l := &Loop{
		ctx:  WithThread(context.Background()),
		q:    make(chan func(context.Context), qlen),
		done: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.q:
			fn(l.ctx)
		case <-l.done:
			// drain what was accepted before Close
			for {
				select {
				case fn := <-l.q:
					fn(l.ctx)
				default:
					return
				}
			}
		}
	}
}

// Post queues fn. After Close it is a no-op.
func (l *Loop) Post(fn func(ctx context.Context)) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.q <- fn:
	case <-l.done:
	}
}

// Close stops accepting work, runs what is already queued and waits for the
// loop goroutine to exit.
func (l *Loop) Close() {
	l.once.Do(func() {
		close(l.done)
		l.wg.Wait()
	})
}
