// Package memcache keeps decoded rasters in memory under a byte budget.
//
// LRU is the default and the only backend that never exceeds its budget,
// even momentarily. Adapters over ristretto and bigcache live in the
// subpackages for hosts that prefer admission-controlled or off-heap storage.
package memcache

import (
	"container/list"
	"image"
	"sync"

	"github.com/unkn0wn-root/zimage/bitmap"
)

// Cache maps memory keys to rasters. Implementations are safe for concurrent use.
type Cache interface {
	Get(key string) (image.Image, bool)
	// Put stores img under key. It returns false if img was not admitted.
	Put(key string, img image.Image) bool
	Remove(key string)
	Clear()
	// Trim evicts entries until at most target bytes remain.
	Trim(target int64)
	Size() int64
	MaxBytes() int64
}

// TrimToLowWatermark frees memory after allocation pressure: it trims c to
// half its budget or half its current size, whichever is lower.
// It returns the size before and after.
func TrimToLowWatermark(c Cache) (before, after int64) {
	before = c.Size()
	target := c.MaxBytes() / 2
	if half := before / 2; half < target {
		target = half
	}
	c.Trim(target)
	return before, c.Size()
}

// LRU is a strict least-recently-used cache costed by bitmap.ByteSize.
type LRU struct {
	mu       sync.Mutex
	maxBytes int64
	bytes    int64
	ll       *list.List // front = most recently used
	items    map[string]*list.Element
	onEvict  func(key string, img image.Image)
}

type entry struct {
	key  string
	img  image.Image
	cost int64
}

var _ Cache = (*LRU)(nil)

// NewLRU returns an LRU holding at most maxBytes of raster data.
// onEvict, if not nil, is called for entries dropped to make room; it runs
// under the cache lock and must not call back into the cache.
func NewLRU(maxBytes int64, onEvict func(key string, img image.Image)) *LRU {
	return &LRU{
		maxBytes: maxBytes,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		onEvict:  onEvict,
	}
}

func (c *LRU) Get(key string) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).img, true
}

func (c *LRU) Put(key string, img image.Image) bool {
	if img == nil {
		return false
	}
	cost := bitmap.ByteSize(img)
	if cost > c.maxBytes {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		c.bytes += cost - e.cost
		e.img, e.cost = img, cost
		c.ll.MoveToFront(el)
	} else {
		c.items[key] = c.ll.PushFront(&entry{key: key, img: img, cost: cost})
		c.bytes += cost
	}
	c.trimLocked(c.maxBytes)
	return true
}

func (c *LRU) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.bytes = 0
}

func (c *LRU) Trim(target int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trimLocked(max(target, 0))
}

func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

func (c *LRU) MaxBytes() int64 { return c.maxBytes }

// Len returns the number of entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Keys returns the keys from most to least recently used.
func (c *LRU) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry).key)
	}
	return out
}

func (c *LRU) trimLocked(target int64) {
	for c.bytes > target {
		el := c.ll.Back()
		if el == nil {
			return
		}
		e := c.removeLocked(el)
		if c.onEvict != nil {
			c.onEvict(e.key, e.img)
		}
	}
}

func (c *LRU) removeLocked(el *list.Element) *entry {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.key)
	c.bytes -= e.cost
	return e
}
