package zimage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/sourcegraph/conc/panics"

	"github.com/unkn0wn-root/zimage/bitmap"
	"github.com/unkn0wn-root/zimage/decoder"
	"github.com/unkn0wn-root/zimage/diskcache"
	"github.com/unkn0wn-root/zimage/fetcher"
	"github.com/unkn0wn-root/zimage/memcache"
)

// State is a load task's position in its lifecycle.
type State int32

const (
	StateNew State = iota
	StateDispatch
	StateCachedQueued
	StateDownloadQueued
	StateRun
	StateWaitPause
	StateDecode
	StateDownload
	StateCacheMem
	StateDeliver
	StateFail
	StateCancelled
)

var stateNames = [...]string{
	StateNew:            "NEW",
	StateDispatch:       "DISPATCH",
	StateCachedQueued:   "CACHED_QUEUED",
	StateDownloadQueued: "DOWNLOAD_QUEUED",
	StateRun:            "RUN",
	StateWaitPause:      "WAIT_PAUSE",
	StateDecode:         "DECODE",
	StateDownload:       "DOWNLOAD",
	StateCacheMem:       "CACHE_MEM",
	StateDeliver:        "DELIVER",
	StateFail:           "FAIL",
	StateCancelled:      "CANCELLED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDeliver || s == StateFail || s == StateCancelled
}

// cancellation reasons reported to Hooks.TaskCancelled
const (
	reasonCollected   = "collected"
	reasonReused      = "reused"
	reasonInterrupted = "interrupted"
)

// errAborted ends a download that the progress listener stopped because the
// task went stale. fail turns it into a cancellation.
var errAborted = errors.New("zimage: download aborted")

// loadTask carries one Display request from the dispatch pool to delivery.
type loadTask struct {
	e        *engine
	uri      string
	key      string
	seq      uint64
	sink     *Sink
	listener Listener
	extra    any
	onFail   image.Image

	state     atomic.Int32
	callbacks callbackChain
}

func (t *loadTask) post(fn func(ctx context.Context)) { t.callbacks.post(t.e, fn) }

// to moves the task to s and logs the transition at debug level.
func (t *loadTask) to(s State) {
	prev := State(t.state.Swap(int32(s)))
	if prev == s {
		return
	}
	t.e.log.Debug("zimage: task state", Fields{
		"uri":      t.uri,
		"from":     prev.String(),
		"to":       s.String(),
		"terminal": s.Terminal(),
	})
}

func (t *loadTask) State() State { return State(t.state.Load()) }

// run is the worker entry point. A panic anywhere in the pipeline fails the
// task as UNKNOWN instead of taking the worker down.
func (t *loadTask) run(ctx context.Context) {
	var pc panics.Catcher
	pc.Try(func() { t.exec(ctx) })
	if r := pc.Recovered(); r != nil {
		t.e.log.Error("zimage: task panicked", Fields{"uri": t.uri, "state": t.State().String(), "panic": r.Value})
		err, ok := r.Value.(error)
		if !ok {
			err = r.AsError()
		}
		t.fail(ctx, &panicError{err: err})
	}
}

func (t *loadTask) exec(ctx context.Context) {
	t.to(StateRun)
	if t.e.paused.Load() {
		t.to(StateWaitPause)
	}
	waited, err := t.e.waitIfPaused(ctx)
	if err != nil {
		t.cancel(reasonInterrupted)
		return
	}
	if waited {
		t.to(StateRun)
		t.e.log.Debug("zimage: resumed", Fields{"uri": t.uri})
	}
	if t.cancelled(ctx) {
		return
	}

	release, contended, err := t.e.locks.acquire(ctx, t.uri)
	if contended {
		t.e.hooks.URILockContended(t.uri)
	}
	if err != nil {
		t.cancel(reasonInterrupted)
		return
	}
	defer release()
	if t.cancelled(ctx) {
		return
	}

	img, hit := t.e.mem.Get(t.key)
	if !hit {
		img, err = t.loadBitmap(ctx)
		if err != nil {
			release()
			t.fail(ctx, err)
			return
		}
		if t.cancelled(ctx) {
			return
		}
		t.to(StateCacheMem)
		if !t.e.mem.Put(t.key, img) {
			t.e.log.Debug("zimage: raster exceeds memory budget", Fields{
				"key":   t.key,
				"bytes": bitmap.ByteSize(img),
			})
		}
	}
	release()

	if t.cancelled(ctx) {
		return
	}
	t.to(StateDeliver)
	t.post(func(ctx context.Context) { t.display(ctx, img) })
}

// loadBitmap decodes from the disk cache, downloading into it first on a
// miss. A download that fails for any reason other than policy falls back to
// decoding straight from the original URI.
func (t *loadTask) loadBitmap(ctx context.Context) (image.Image, error) {
	f := t.e.fetcher()

	if path, ok := t.e.disk.Get(t.uri); ok {
		t.to(StateDecode)
		img, err := t.decode(ctx, fetcher.File.Wrap(path), f)
		if err == nil || !errors.Is(err, decoder.ErrDecode) {
			return img, err
		}
		t.e.log.Warn("zimage: cached file undecodable, downloading again", Fields{"uri": t.uri, "err": err})
		_ = t.e.disk.Remove(t.uri)
	}

	t.to(StateDownload)
	stored, err := t.download(ctx, f)
	switch {
	case errors.Is(err, fetcher.ErrNetworkDenied):
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err == nil && !stored && t.staleReason(ctx) != "":
		return nil, errAborted
	case err == nil && stored:
		if path, ok := t.e.disk.Get(t.uri); ok {
			t.to(StateDecode)
			return t.decode(ctx, fetcher.File.Wrap(path), f)
		}
	case err != nil:
		t.e.log.Debug("zimage: download failed, decoding from source", Fields{"uri": t.uri, "err": err})
	}

	t.to(StateDecode)
	return t.decode(ctx, t.uri, f)
}

func (t *loadTask) download(ctx context.Context, f fetcher.Fetcher) (bool, error) {
	rc, err := f.Stream(ctx, t.uri, t.extra)
	if err != nil {
		return false, err
	}
	defer rc.Close()
	return t.e.disk.Put(t.uri, rc, t.progress(ctx))
}

// progress forwards copy progress to the listener and stops the copy once
// the task is stale.
func (t *loadTask) progress(ctx context.Context) diskcache.ProgressListener {
	return diskcache.ProgressFunc(func(current, total int64) bool {
		if t.staleReason(ctx) != "" {
			return false
		}
		t.post(func(context.Context) {
			t.listener.OnProgressUpdate(t.uri, t.sink, current, total)
		})
		return true
	})
}

func (t *loadTask) decode(ctx context.Context, uri string, f fetcher.Fetcher) (image.Image, error) {
	img, err := t.e.decoder.Decode(ctx, uri, t.sink, f, t.extra)
	if err != nil {
		return nil, err
	}
	if bitmap.Empty(img) {
		return nil, fmt.Errorf("%w: %s: empty raster", decoder.ErrDecode, uri)
	}
	return img, nil
}

// staleReason names the first cancellation predicate that holds, or "".
func (t *loadTask) staleReason(ctx context.Context) string {
	switch {
	case ctx.Err() != nil:
		return reasonInterrupted
	case t.sink.Collected():
		return reasonCollected
	case t.reused():
		return reasonReused
	default:
		return ""
	}
}

func (t *loadTask) reused() bool {
	k, ok := t.e.registry.currentKey(t.sink)
	return !ok || k != t.key
}

// cancelled is the checkpoint run after every suspension point. It ends the
// task as cancelled when a predicate holds.
func (t *loadTask) cancelled(ctx context.Context) bool {
	reason := t.staleReason(ctx)
	if reason == "" {
		return false
	}
	t.cancel(reason)
	return true
}

func (t *loadTask) cancel(reason string) {
	if t.markCancelled(reason) {
		t.post(func(context.Context) {
			t.listener.OnLoadingCancelled(t.uri, t.sink)
		})
	}
}

// markCancelled records the cancellation and reports whether the listener
// should hear about it.
func (t *loadTask) markCancelled(reason string) bool {
	t.to(StateCancelled)
	t.e.registry.unbindIf(t.sink, t.seq)
	t.e.hooks.TaskCancelled(t.uri, t.key, reason)
	t.e.log.Debug("zimage: task cancelled", Fields{"uri": t.uri, "key": t.key, "reason": reason})
	return !t.sink.Collected()
}

func (t *loadTask) fail(ctx context.Context, err error) {
	// a stale task never reports failure
	if t.cancelled(ctx) {
		return
	}
	reason := failReason(err)
	t.to(StateFail)
	if reason.Kind == OutOfMemory {
		before, after := memcache.TrimToLowWatermark(t.e.mem)
		t.e.hooks.MemoryTrimmed(before, after)
	}
	t.e.hooks.TaskFailed(t.uri, reason.Kind, err)
	t.e.log.Warn("zimage: load failed", Fields{"uri": t.uri, "kind": reason.Kind.String(), "err": err})
	t.e.registry.unbindIf(t.sink, t.seq)

	t.post(func(ctx context.Context) {
		if t.onFail != nil {
			t.sink.SetPlaceholder(ctx, t.onFail)
		}
		t.listener.OnLoadingFailed(t.uri, t.sink, reason)
	})
}
