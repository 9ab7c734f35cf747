package zimage

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"
)

type job func(ctx context.Context)

// workerPool runs jobs on a fixed number of goroutines, first in first out,
// with an unbounded queue. shutdown cancels the context handed to jobs.
type workerPool struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	wg     conc.WaitGroup

	mu     sync.Mutex
	queue  []job
	closed bool
}

func newWorkerPool(name string, size int) *workerPool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &workerPool{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.wg.Go(p.worker)
	}
	return p
}

func (p *workerPool) worker() {
	for {
		j, ok := p.next()
		if !ok {
			return
		}
		j(p.ctx)
	}
}

func (p *workerPool) next() (job, bool) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, false
		}
		if len(p.queue) > 0 {
			j := p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
			p.mu.Unlock()
			return j, true
		}
		p.mu.Unlock()

		select {
		case <-p.wake:
		case <-p.ctx.Done():
			return nil, false
		}
	}
}

// submit queues j. It returns false once the pool is shut down.
func (p *workerPool) submit(j job) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.queue = append(p.queue, j)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default: // enough wakeups pending
	}
	return true
}

func (p *workerPool) isShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// shutdown stops the workers without waiting for them and cancels running
// jobs. Jobs that never started are returned to the caller.
func (p *workerPool) shutdown() []job {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()

	p.cancel()
	return pending
}

// wait blocks until every worker has returned. Call after shutdown.
func (p *workerPool) wait() { p.wg.Wait() }

// dispatcher runs each job on its own goroutine.
type dispatcher struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newDispatcher() *dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &dispatcher{ctx: ctx, cancel: cancel}
}

func (d *dispatcher) submit(j job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	d.wg.Go(func() { j(d.ctx) })
	return true
}

// close refuses new jobs, cancels running ones and waits for them.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()
}
