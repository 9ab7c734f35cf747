package zimage

import (
	"context"
	"image"

	"github.com/unkn0wn-root/zimage/decoder"
	"github.com/unkn0wn-root/zimage/diskcache"
	"github.com/unkn0wn-root/zimage/fetcher"
	"github.com/unkn0wn-root/zimage/memcache"
	"github.com/unkn0wn-root/zimage/ui"
)

// Loader binds image URIs to sinks and fills them asynchronously through a
// memory cache, a disk cache and the network.
type Loader interface {
	// Display binds s to its URI and starts loading. Call it from the UI
	// thread (a ctx marked by ui.WithThread): placeholders and memory hits are
	// applied synchronously. listener may be nil.
	Display(ctx context.Context, s *Sink, listener Listener) error

	// CancelDisplayTask drops the binding of s's widget; its in-flight task
	// ends as cancelled at the next checkpoint.
	CancelDisplayTask(s *Sink)
	// LoadingURIForSink returns the memory key s's widget is waiting for.
	LoadingURIForSink(s *Sink) (string, bool)

	DenyNetworkDownloads(deny bool)
	HandleSlowNetwork(slow bool)
	Pause()
	Resume()

	// Stop interrupts running tasks and cancels queued ones. The loader stays
	// usable.
	Stop()
	// Destroy stops the loader for good and waits for its workers.
	Destroy()

	ClearMemoryCache()
	ClearDiskCache() error
	// TrimMemory is the host's memory-pressure hook.
	TrimMemory()

	MemoryCache() memcache.Cache
	DiskCache() *diskcache.Cache
}

// Resources resolves placeholder identifiers to images.
type Resources interface {
	Placeholder(id string) (image.Image, bool)
}

// Images is a Resources backed by a map.
type Images map[string]image.Image

func (m Images) Placeholder(id string) (image.Image, bool) {
	img, ok := m[id]
	return img, ok
}

// Options tune the loader. The zero value is usable.
type Options struct {
	DownloadPoolSize int    // size of the download and cached pools; 0 => 3
	DiskCacheDir     string // "" => <user cache dir>/zImage
	DiskCacheBytes   int64  // 0 => 100 MiB
	MemoryCacheBytes int64  // 0 => heap cap / 8
	MaxDecodeBytes   int64  // largest raster a decode may allocate; 0 => heap cap / 2

	// Injected components; nil => built from the fields above.
	MemoryCache memcache.Cache
	DiskCache   *diskcache.Cache
	Fetcher     fetcher.Fetcher
	Decoder     decoder.Decoder

	Sampling decoder.SampleOptions // default quality priority, power of two

	// UI runs callbacks and deliveries. nil => the dispatch pool, with a
	// context marked by ui.WithThread.
	UI ui.Queue

	Resources             Resources // nil => no placeholders
	PlaceholderOnLoading  string
	PlaceholderOnFail     string
	PlaceholderOnEmptyURI string

	// Default target size is half the screen; 0 => DefaultWidth/DefaultHeight.
	ScreenWidth  int
	ScreenHeight int

	DenyNetwork bool
	SlowNetwork bool

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

func New(opts Options) (Loader, error) {
	return newLoader(opts)
}
