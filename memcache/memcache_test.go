package memcache

import (
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// raster returns an NRGBA of exactly n*4 bytes.
func raster(n int) image.Image {
	return image.NewNRGBA(image.Rect(0, 0, n, 1))
}

func TestLRUGetPut(t *testing.T) {
	t.Parallel()

	c := NewLRU(100, nil)
	_, ok := c.Get("a")
	assert.False(t, ok)

	img := raster(5)
	require.True(t, c.Put("a", img))
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Same(t, img, got)
	assert.Equal(t, int64(20), c.Size())

	// replace recosts
	require.True(t, c.Put("a", raster(2)))
	assert.Equal(t, int64(8), c.Size())
	assert.Equal(t, 1, c.Len())

	assert.False(t, c.Put("nil", nil))
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	var evicted []string
	c := NewLRU(40, func(k string, _ image.Image) { evicted = append(evicted, k) })

	c.Put("a", raster(4)) // 16
	c.Put("b", raster(4)) // 16
	_, _ = c.Get("a")
	c.Put("c", raster(4)) // 48 > 40 -> drop b

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"c", "a"}, c.Keys())
	assert.Equal(t, int64(32), c.Size())
}

func TestLRURejectsOversized(t *testing.T) {
	t.Parallel()

	c := NewLRU(10, nil)
	c.Put("small", raster(1))
	assert.False(t, c.Put("big", raster(3)))
	_, ok := c.Get("small")
	assert.True(t, ok, "rejected put must not evict")
}

func TestLRUTrimAndClear(t *testing.T) {
	t.Parallel()

	c := NewLRU(1000, nil)
	for _, k := range []string{"a", "b", "c", "d"} {
		c.Put(k, raster(10)) // 40 each
	}
	c.Trim(80)
	assert.Equal(t, []string{"d", "c"}, c.Keys())

	c.Remove("d")
	assert.Equal(t, int64(40), c.Size())

	c.Clear()
	assert.Equal(t, int64(0), c.Size())
	assert.Equal(t, 0, c.Len())
}

func TestTrimToLowWatermark(t *testing.T) {
	t.Parallel()

	c := NewLRU(160, nil)
	for _, k := range []string{"a", "b", "c", "d"} {
		c.Put(k, raster(10))
	}
	before, after := TrimToLowWatermark(c)
	assert.Equal(t, int64(160), before)
	assert.Equal(t, int64(80), after)

	// below half the budget it still halves usage
	before, after = TrimToLowWatermark(c)
	assert.Equal(t, int64(80), before)
	assert.Equal(t, int64(40), after)
}

func TestLRUNeverExceedsBudget(t *testing.T) {
	t.Parallel()

	c := NewLRU(1000, nil)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Put(string(rune('a'+g))+string(rune('0'+i%10)), raster(1+i%30))
				if s := c.Size(); s > c.MaxBytes() {
					t.Errorf("size %d over budget %d", s, c.MaxBytes())
					return
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), c.MaxBytes())
}
