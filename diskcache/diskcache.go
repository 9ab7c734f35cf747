// Package diskcache is a size-capped LRU of encoded image bytes on the local
// filesystem.
//
// Files live flat under one directory and are named by the hex sha256 of the
// URI they were fetched from. There is no sidecar metadata: recency survives
// restarts through file modification times.
package diskcache

import (
	"container/list"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/zimage/fetcher"
	"github.com/unkn0wn-root/zimage/internal/keys"
)

const (
	DefaultMaxBytes = 100 << 20
	defaultDirPerm  = 0o700
	chunkSize       = 32 << 10
	tempPrefix      = ".tmp-"
)

// ProgressListener observes Put. Returning false aborts the write.
// total is -1 when the stream length is unknown.
type ProgressListener interface {
	OnBytesCopied(current, total int64) bool
}

// ProgressFunc adapts a function to ProgressListener.
type ProgressFunc func(current, total int64) bool

func (f ProgressFunc) OnBytesCopied(current, total int64) bool { return f(current, total) }

// Cache is safe for concurrent use.
type Cache struct {
	dir      string
	dirPerm  os.FileMode
	maxBytes int64
	onEvict  func(name string, size int64)

	mu    sync.Mutex
	ll    *list.List // front = most recently used
	items map[string]*list.Element
	bytes int64
}

type entry struct {
	name string
	size int64
}

type Option func(*Cache)

// WithMaxBytes sets the byte budget. Values <= 0 keep DefaultMaxBytes.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithDirPerm sets the permissions used when creating the cache directory.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) { c.dirPerm = mode }
}

// WithOnEvict registers a callback for entries dropped to stay under budget.
// It runs outside the cache lock.
func WithOnEvict(fn func(name string, size int64)) Option {
	return func(c *Cache) { c.onEvict = fn }
}

// Open creates dir if needed and indexes the files already in it, oldest
// modification time first. Leftover temp files are removed.
func Open(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("diskcache: dir is empty")
	}
	c := &Cache{
		dir:      dir,
		dirPerm:  defaultDirPerm,
		maxBytes: DefaultMaxBytes,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	if err := c.load(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	evicted := c.evictLocked()
	c.mu.Unlock()
	c.notify(evicted)
	return c, nil
}

func (c *Cache) load() error {
	des, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}

	type found struct {
		entry
		mod time.Time
	}
	files := make([]found, 0, len(des))
	for _, de := range des {
		if !de.Type().IsRegular() {
			continue
		}
		if strings.HasPrefix(de.Name(), tempPrefix) {
			_ = os.Remove(filepath.Join(c.dir, de.Name()))
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, found{entry{de.Name(), info.Size()}, info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].mod.Equal(files[j].mod) {
			return files[i].name < files[j].name
		}
		return files[i].mod.Before(files[j].mod)
	})

	for _, f := range files {
		c.items[f.name] = c.ll.PushFront(&entry{f.name, f.size})
		c.bytes += f.size
	}
	return nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// MaxBytes returns the byte budget.
func (c *Cache) MaxBytes() int64 { return c.maxBytes }

// Size returns the bytes currently accounted to cached files.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Len returns the number of cached files.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Get returns the path of the cached file for uri and marks it recently used.
func (c *Cache) Get(uri string) (string, bool) {
	name := keys.Disk(uri)
	path := filepath.Join(c.dir, name)

	c.mu.Lock()
	el, ok := c.items[name]
	if !ok {
		c.mu.Unlock()
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		// removed behind our back
		c.removeLocked(el)
		c.mu.Unlock()
		return "", false
	}
	c.ll.MoveToFront(el)
	c.mu.Unlock()

	now := time.Now()
	_ = os.Chtimes(path, now, now)
	return path, true
}

// Put streams r into the cache under uri. It returns false without error when
// l aborts the copy or the content alone exceeds the budget; the temp file is
// removed in both cases.
func (c *Cache) Put(uri string, r io.Reader, l ProgressListener) (bool, error) {
	tmp, err := os.CreateTemp(c.dir, tempPrefix+"*")
	if err != nil {
		return false, err
	}
	tmpPath := tmp.Name()
	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	written, ok, err := copyChunks(tmp, r, fetcher.SizeOf(r), l)
	if err != nil || !ok {
		discard()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return false, err
	}
	if written > c.maxBytes {
		_ = os.Remove(tmpPath)
		return false, nil
	}

	name := keys.Disk(uri)
	c.mu.Lock()
	if err := os.Rename(tmpPath, filepath.Join(c.dir, name)); err != nil {
		c.mu.Unlock()
		_ = os.Remove(tmpPath)
		return false, err
	}
	if el, ok := c.items[name]; ok {
		c.bytes -= el.Value.(*entry).size
		c.ll.Remove(el)
	}
	c.items[name] = c.ll.PushFront(&entry{name, written})
	c.bytes += written
	evicted := c.evictLocked()
	c.mu.Unlock()

	c.notify(evicted)
	return true, nil
}

func copyChunks(w io.Writer, r io.Reader, total int64, l ProgressListener) (int64, bool, error) {
	var current int64
	if l != nil && !l.OnBytesCopied(current, total) {
		return current, false, nil
	}
	buf := make([]byte, chunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return current, false, err
			}
			current += int64(n)
			if l != nil && !l.OnBytesCopied(current, total) {
				return current, false, nil
			}
		}
		if errors.Is(rerr, io.EOF) {
			return current, true, nil
		}
		if rerr != nil {
			return current, false, rerr
		}
	}
}

// Remove drops the entry for uri, if any.
func (c *Cache) Remove(uri string) error {
	name := keys.Disk(uri)
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[name]
	if !ok {
		return nil
	}
	return c.removeLocked(el)
}

// Clear deletes every cached file and resets accounting. Temp files of
// copies still in flight are left to their Put.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	des, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, de := range des {
		if !de.Type().IsRegular() || strings.HasPrefix(de.Name(), tempPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, de.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.bytes = 0
	return errors.Join(errs...)
}

func (c *Cache) removeLocked(el *list.Element) error {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.name)
	c.bytes -= e.size
	if err := os.Remove(filepath.Join(c.dir, e.name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (c *Cache) evictLocked() []entry {
	var out []entry
	for c.bytes > c.maxBytes {
		el := c.ll.Back()
		if el == nil {
			break
		}
		e := *el.Value.(*entry)
		_ = c.removeLocked(el)
		out = append(out, e)
	}
	return out
}

func (c *Cache) notify(evicted []entry) {
	if c.onEvict == nil {
		return
	}
	for _, e := range evicted {
		c.onEvict(e.name, e.size)
	}
}
