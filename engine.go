package zimage

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/zimage/decoder"
	"github.com/unkn0wn-root/zimage/diskcache"
	"github.com/unkn0wn-root/zimage/fetcher"
	"github.com/unkn0wn-root/zimage/memcache"
	"github.com/unkn0wn-root/zimage/ui"
)

// engine owns the pools, the binding registry, the URI locks and the
// network/pause flags. Tasks reach everything else through it.
type engine struct {
	poolSize int
	log      Logger
	hooks    Hooks

	mem     memcache.Cache
	disk    *diskcache.Cache
	decoder decoder.Decoder
	ui      ui.Queue

	fetchDefault fetcher.Fetcher
	fetchDenied  fetcher.Fetcher
	fetchSlow    fetcher.Fetcher

	registry *registry
	locks    *uriLocks

	paused        atomic.Bool
	networkDenied atomic.Bool
	slowNetwork   atomic.Bool
	pauseMu       sync.Mutex
	resumed       chan struct{} // closed on resume; replaced on pause

	dispatch *dispatcher

	poolMu    sync.Mutex
	download  *workerPool
	cached    *workerPool
	destroyed bool
}

type engineConfig struct {
	poolSize int
	log      Logger
	hooks    Hooks
	mem      memcache.Cache
	disk     *diskcache.Cache
	fetcher  fetcher.Fetcher
	decoder  decoder.Decoder
	ui       ui.Queue
}

func newEngine(cfg engineConfig) *engine {
	return &engine{
		poolSize:     cfg.poolSize,
		log:          cfg.log,
		hooks:        cfg.hooks,
		mem:          cfg.mem,
		disk:         cfg.disk,
		decoder:      cfg.decoder,
		ui:           cfg.ui,
		fetchDefault: cfg.fetcher,
		fetchDenied:  fetcher.NetworkDenied{Inner: cfg.fetcher},
		fetchSlow:    fetcher.SlowNetwork{Inner: cfg.fetcher},
		registry:     newRegistry(),
		locks:        newURILocks(),
		resumed:      closedChan(),
		dispatch:     newDispatcher(),
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// submit routes t through the dispatch pool: a disk hit goes to the cached
// pool, a miss to the download pool.
func (e *engine) submit(t *loadTask) {
	t.to(StateDispatch)
	ok := e.dispatch.submit(func(context.Context) {
		_, hit := e.disk.Get(t.uri)
		download, cached, ok := e.pools()
		if !ok {
			t.run(cancelledCtx)
			return
		}
		p := download
		if hit {
			p = cached
			t.to(StateCachedQueued)
		} else {
			t.to(StateDownloadQueued)
		}
		e.hooks.TaskRouted(t.uri, hit)
		if !p.submit(t.run) {
			// stopped between pools() and submit
			t.run(cancelledCtx)
		}
	})
	if !ok {
		t.run(cancelledCtx)
	}
}

var cancelledCtx = func() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}()

// pools returns the live download and cached pools, creating them after a
// stop. ok is false once the engine is destroyed.
func (e *engine) pools() (download, cached *workerPool, ok bool) {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	if e.destroyed {
		return nil, nil, false
	}
	if e.download == nil || e.download.isShutdown() {
		e.download = newWorkerPool("download", e.poolSize)
	}
	if e.cached == nil || e.cached.isShutdown() {
		e.cached = newWorkerPool("cached", e.poolSize)
	}
	return e.download, e.cached, true
}

// fetcher picks the variant for the current network flags.
func (e *engine) fetcher() fetcher.Fetcher {
	switch {
	case e.networkDenied.Load():
		return e.fetchDenied
	case e.slowNetwork.Load():
		return e.fetchSlow
	default:
		return e.fetchDefault
	}
}

func (e *engine) pause() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if !e.paused.Load() {
		e.resumed = make(chan struct{})
		e.paused.Store(true)
	}
}

func (e *engine) resume() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if e.paused.Load() {
		e.paused.Store(false)
		close(e.resumed)
	}
}

// waitIfPaused blocks while paused. It reports whether it waited, and
// ctx.Err() if ctx ended first.
func (e *engine) waitIfPaused(ctx context.Context) (bool, error) {
	waited := false
	for e.paused.Load() {
		e.pauseMu.Lock()
		ch := e.resumed
		e.pauseMu.Unlock()
		waited = true
		select {
		case <-ch:
		case <-ctx.Done():
			return waited, ctx.Err()
		}
	}
	return waited, nil
}

func (e *engine) denyNetwork(b bool)       { e.networkDenied.Store(b) }
func (e *engine) handleSlowNetwork(b bool) { e.slowNetwork.Store(b) }

// callbackChain posts one task's callbacks. With a UI queue they go
// straight to it. Without one they run on the dispatch pool, one at a time
// and in posting order, with a UI-marked context.
type callbackChain struct {
	mu      sync.Mutex
	queue   []func(ctx context.Context)
	running bool
}

func (c *callbackChain) post(e *engine, fn func(ctx context.Context)) {
	if e.ui != nil {
		e.ui.Post(fn)
		return
	}
	c.mu.Lock()
	c.queue = append(c.queue, fn)
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()
	e.fireCallback(c.drain)
}

func (c *callbackChain) drain(ctx context.Context) {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.running = false
			c.mu.Unlock()
			return
		}
		fn := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()
		fn(ctx)
	}
}

func (e *engine) fireCallback(fn func(ctx context.Context)) {
	if !e.dispatch.submit(func(ctx context.Context) { fn(ui.WithThread(ctx)) }) {
		fn(ui.WithThread(context.Background()))
	}
}

// stop shuts the download and cached pools down and forgets every binding
// and URI lock. Tasks still queued end as cancelled. The engine stays usable:
// the next submit recreates the pools.
func (e *engine) stop() {
	e.poolMu.Lock()
	var pending []job
	for _, p := range []*workerPool{e.download, e.cached} {
		if p != nil {
			pending = append(pending, p.shutdown()...)
		}
	}
	e.poolMu.Unlock()

	e.registry.clear()
	e.locks.clear()
	for _, j := range pending {
		e.fireCallback(func(context.Context) { j(cancelledCtx) })
	}
	e.log.Debug("zimage: engine stopped", Fields{"cancelled_queued": len(pending)})
}

// destroy stops the engine for good and waits for every worker to return.
func (e *engine) destroy() {
	e.poolMu.Lock()
	e.destroyed = true
	e.poolMu.Unlock()
	e.stop()
	e.poolMu.Lock()
	download, cached := e.download, e.cached
	e.poolMu.Unlock()
	for _, p := range []*workerPool{download, cached} {
		if p != nil {
			p.wait()
		}
	}
	e.dispatch.close()
}
