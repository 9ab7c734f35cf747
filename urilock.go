package zimage

import (
	"context"
	"sync"
)

// uriLocks hands out one mutex per URI. Entries are reference counted and
// dropped when the last holder or waiter leaves, so the table only holds
// URIs with work in flight.
type uriLocks struct {
	mu sync.Mutex
	m  map[string]*uriLock
}

// uriLock is a mutex whose Lock can be abandoned when ctx is done.
type uriLock struct {
	ch   chan struct{}
	refs int
}

func newURILocks() *uriLocks {
	return &uriLocks{m: make(map[string]*uriLock)}
}

// acquire blocks until the lock for uri is held or ctx is done.
// contended reports whether it had to wait.
func (t *uriLocks) acquire(ctx context.Context, uri string) (release func(), contended bool, err error) {
	t.mu.Lock()
	l, ok := t.m[uri]
	if !ok {
		l = &uriLock{ch: make(chan struct{}, 1)}
		t.m[uri] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	default:
		contended = true
		select {
		case l.ch <- struct{}{}:
		case <-ctx.Done():
			t.unref(uri, l)
			return nil, contended, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			t.unref(uri, l)
		})
	}, contended, nil
}

func (t *uriLocks) unref(uri string, l *uriLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 && t.m[uri] == l {
		delete(t.m, uri)
	}
}

func (t *uriLocks) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}

// clear forgets every lock. Current holders keep theirs; new acquirers of
// the same URI get a fresh lock.
func (t *uriLocks) clear() {
	t.mu.Lock()
	t.m = make(map[string]*uriLock)
	t.mu.Unlock()
}
