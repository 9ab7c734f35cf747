// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/zimage"
//	"github.com/unkn0wn-root/zimage/hooks/async"
//	"github.com/unkn0wn-root/zimage/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    CancelEvery: 10, // sample logs: ~every 10th cancellation
//	    RouteEvery:  0,  // log every routing decision
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	loader, _ := zimage.New(zimage.Options{
//	    DiskCacheDir: dir,
//	    Hooks:        hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/zimage"
)

type Hooks struct {
	inner zimage.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ zimage.Hooks = (*Hooks)(nil)

func New(inner zimage.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) TaskRouted(uri string, cached bool) {
	h.try(func() { h.inner.TaskRouted(uri, cached) })
}
func (h *Hooks) TaskCancelled(uri, key, reason string) {
	h.try(func() { h.inner.TaskCancelled(uri, key, reason) })
}
func (h *Hooks) TaskFailed(uri string, kind zimage.FailKind, err error) {
	h.try(func() { h.inner.TaskFailed(uri, kind, err) })
}
func (h *Hooks) URILockContended(uri string) { h.try(func() { h.inner.URILockContended(uri) }) }
func (h *Hooks) MemoryTrimmed(before, after int64) {
	h.try(func() { h.inner.MemoryTrimmed(before, after) })
}
func (h *Hooks) DiskEvicted(name string, size int64) {
	h.try(func() { h.inner.DiskEvicted(name, size) })
}
