// Package ristretto adapts dgraph-io/ristretto to memcache.Cache.
//
// Rasters are costed by bitmap.ByteSize. Ristretto admits entries through
// TinyLFU and may refuse a Put; it cannot evict selectively, so Trim clears
// the cache when it is above the target.
package ristretto

import (
	"errors"
	"image"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/zimage/bitmap"
	"github.com/unkn0wn-root/zimage/memcache"
)

type Cache struct {
	c        *rc.Cache
	maxBytes int64
}

var _ memcache.Cache = (*Cache)(nil)

type Config struct {
	MaxBytes int64
	// NumCounters should be ~10x the expected number of entries; 0 => MaxBytes/1KiB*10, at least 1e4.
	NumCounters int64
	BufferItems int64 // 0 => 64
}

func New(cfg Config) (*Cache, error) {
	if cfg.MaxBytes <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	counters := cfg.NumCounters
	if counters <= 0 {
		counters = max(cfg.MaxBytes/1024*10, 1e4)
	}
	buf := cfg.BufferItems
	if buf <= 0 {
		buf = 64
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters:        counters,
		MaxCost:            cfg.MaxBytes,
		BufferItems:        buf,
		Metrics:            true, // Size is derived from cost metrics
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, maxBytes: cfg.MaxBytes}, nil
}

func (p *Cache) Get(key string) (image.Image, bool) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false
	}
	img, _ := v.(image.Image)
	if img == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false
	}
	return img, true
}

func (p *Cache) Put(key string, img image.Image) bool {
	if img == nil {
		return false
	}
	cost := bitmap.ByteSize(img)
	if cost > p.maxBytes {
		return false
	}
	if !p.c.Set(key, img, cost) {
		return false
	}
	p.c.Wait()
	_, ok := p.c.Get(key)
	return ok
}

func (p *Cache) Remove(key string) {
	p.c.Del(key)
	p.c.Wait()
}

func (p *Cache) Clear() { p.c.Clear() }

func (p *Cache) Trim(target int64) {
	if p.Size() > target {
		p.c.Clear()
	}
}

func (p *Cache) Size() int64 {
	m := p.c.Metrics
	if m == nil {
		return 0
	}
	return int64(m.CostAdded() - m.CostEvicted())
}

func (p *Cache) MaxBytes() int64 { return p.maxBytes }

func (p *Cache) Close() { p.c.Close() }

// Metrics exposes ristretto's counters (hit ratio and so on).
func (p *Cache) Metrics() *rc.Metrics { return p.c.Metrics }
