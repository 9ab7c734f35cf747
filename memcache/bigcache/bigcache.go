// Package bigcache adapts allegro/bigcache to memcache.Cache.
//
// Rasters are flattened to bitmap.Frame and stored through a
// codec.Codec[bitmap.Frame] (codec.Wire by default), which keeps pixel data
// out of the GC-scanned heap. Get returns a fresh *image.NRGBA per call.
// bigcache evicts oldest-first when a shard is full, so recency is not
// refreshed by Get.
package bigcache

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/zimage/bitmap"
	"github.com/unkn0wn-root/zimage/codec"
	"github.com/unkn0wn-root/zimage/memcache"
)

type Cache struct {
	c        *bc.BigCache
	codec    codec.Codec[bitmap.Frame]
	maxBytes int64

	// mu serializes every call that can make bigcache fire onRemove (Set
	// and Delete), so onRemove runs with mu already held by its caller.
	mu    sync.Mutex
	sizes map[string]int64 // encoded length per key
	bytes atomic.Int64
}

var _ memcache.Cache = (*Cache)(nil)

type Config struct {
	MaxBytes int64 // rounded up to whole MiB for bigcache's hard limit
	// Shards is a power of two; 0 => 16. One raster must fit in
	// MaxBytes/Shards or Put refuses it.
	Shards int
	// LifeWindow bounds how long an entry may live; 0 => 24h.
	LifeWindow time.Duration
	Codec      codec.Codec[bitmap.Frame] // nil => codec.Wire{}
}

func New(cfg Config) (*Cache, error) {
	if cfg.MaxBytes <= 0 {
		return nil, errors.New("bigcache: invalid config")
	}
	p := &Cache{codec: cfg.Codec, maxBytes: cfg.MaxBytes, sizes: make(map[string]int64)}
	if p.codec == nil {
		p.codec = codec.Wire{}
	}

	life := cfg.LifeWindow
	if life <= 0 {
		life = 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	conf.CleanWindow = 0
	conf.Verbose = false
	conf.Shards = 16
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	conf.MaxEntriesInWindow = 1024
	conf.MaxEntrySize = 64 << 10
	conf.HardMaxCacheSize = int((cfg.MaxBytes + (1 << 20) - 1) >> 20)
	conf.OnRemoveWithReason = p.onRemove

	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	p.c = c
	return p, nil
}

// onRemove runs inside Set or Delete, under p.mu.
func (p *Cache) onRemove(key string, _ []byte, _ bc.RemoveReason) {
	if n, ok := p.sizes[key]; ok {
		delete(p.sizes, key)
		p.bytes.Add(-n)
	}
}

func (p *Cache) Get(key string) (image.Image, bool) {
	b, err := p.c.Get(key)
	if err != nil {
		return nil, false
	}
	f, err := p.codec.Decode(b)
	if err != nil || !f.Valid() {
		// self-heal: drop undecodable entry
		p.Remove(key)
		return nil, false
	}
	return f.Image(), true
}

func (p *Cache) Put(key string, img image.Image) bool {
	if bitmap.Empty(img) {
		return false
	}
	b, err := p.codec.Encode(bitmap.FromImage(img))
	if err != nil || int64(len(b)) > p.maxBytes {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.c.Set(key, b); err != nil {
		return false
	}
	// an overwritten entry is dropped without onRemove
	n := int64(len(b))
	p.bytes.Add(n - p.sizes[key])
	p.sizes[key] = n
	return true
}

func (p *Cache) Remove(key string) {
	p.mu.Lock()
	_ = p.c.Delete(key)
	p.mu.Unlock()
}

func (p *Cache) Clear() {
	p.mu.Lock()
	_ = p.c.Reset()
	clear(p.sizes)
	p.bytes.Store(0)
	p.mu.Unlock()
}

// Trim resets the cache when it holds more than target bytes; bigcache
// cannot drop individual entries by age on demand.
func (p *Cache) Trim(target int64) {
	if p.Size() > target {
		p.Clear()
	}
}

// Size returns the encoded bytes currently stored.
func (p *Cache) Size() int64 { return p.bytes.Load() }

func (p *Cache) MaxBytes() int64 { return p.maxBytes }

func (p *Cache) Close() error { return p.c.Close() }
