package zimage

import "sync"

// registry maps a widget identity to the memory key it currently wants.
// A task is stale once its sink's identity maps to another key (or none).
//
// Every bind gets a fresh sequence number. A finishing task clears only the
// binding it created, so a repeated Display of the same URI into the same
// widget keeps the newer request alive.
type registry struct {
	mu  sync.Mutex
	m   map[int]binding
	seq uint64
}

type binding struct {
	key string
	seq uint64
}

func newRegistry() *registry {
	return &registry{m: make(map[int]binding)}
}

// bind records s's memory key and returns the token for unbindIf.
func (r *registry) bind(s *Sink) uint64 {
	key := s.MemoryKey()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.m[s.ID()] = binding{key: key, seq: r.seq}
	return r.seq
}

func (r *registry) currentKey(s *Sink) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.m[s.ID()]
	return b.key, ok
}

func (r *registry) unbind(s *Sink) {
	r.mu.Lock()
	delete(r.m, s.ID())
	r.mu.Unlock()
}

// unbindIf erases the binding only while it is still the one bind returned
// seq for.
func (r *registry) unbindIf(s *Sink, seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.m[s.ID()]; ok && b.seq == seq {
		delete(r.m, s.ID())
		return true
	}
	return false
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

func (r *registry) clear() {
	r.mu.Lock()
	r.m = make(map[int]binding)
	r.mu.Unlock()
}
