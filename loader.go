package zimage

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/zimage/decoder"
	"github.com/unkn0wn-root/zimage/diskcache"
	"github.com/unkn0wn-root/zimage/fetcher"
	"github.com/unkn0wn-root/zimage/memcache"
)

type loader struct {
	e     *engine
	log   Logger
	hooks Hooks
	res   Resources

	onLoading  string
	onFail     string
	onEmptyURI string

	defW, defH int

	destroyed atomic.Bool
}

var _ Loader = (*loader)(nil)

func newLoader(opts Options) (*loader, error) {
	l := &loader{
		log:        coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:      coalesce[Hooks](opts.Hooks, NopHooks{}),
		res:        opts.Resources,
		onLoading:  opts.PlaceholderOnLoading,
		onFail:     opts.PlaceholderOnFail,
		onEmptyURI: opts.PlaceholderOnEmptyURI,
	}
	l.defW, l.defH = defaultSize(opts.ScreenWidth, opts.ScreenHeight)

	disk := opts.DiskCache
	if disk == nil {
		dir := coalesce(opts.DiskCacheDir, defaultDiskDir())
		var err error
		disk, err = diskcache.Open(dir,
			diskcache.WithMaxBytes(coalesce(opts.DiskCacheBytes, diskcache.DefaultMaxBytes)),
			diskcache.WithOnEvict(l.hooks.DiskEvicted),
		)
		if err != nil {
			return nil, fmt.Errorf("zimage: open disk cache: %w", err)
		}
	}

	mem := opts.MemoryCache
	if mem == nil {
		mem = memcache.NewLRU(coalesce(opts.MemoryCacheBytes, heapCap()/8), nil)
	}

	dec := opts.Decoder
	if dec == nil {
		dec = decoder.New(decoder.Options{
			Sampling: opts.Sampling,
			MaxBytes: coalesce(opts.MaxDecodeBytes, heapCap()/2),
		})
	}

	f := opts.Fetcher
	if f == nil {
		f = fetcher.New()
	}

	l.e = newEngine(engineConfig{
		poolSize: coalesce(opts.DownloadPoolSize, defaultPoolSize),
		log:      l.log,
		hooks:    l.hooks,
		mem:      mem,
		disk:     disk,
		fetcher:  f,
		decoder:  dec,
		ui:       opts.UI,
	})
	l.e.denyNetwork(opts.DenyNetwork)
	l.e.handleSlowNetwork(opts.SlowNetwork)

	l.log.Debug("zimage: loader ready", Fields{
		"disk_dir":        disk.Dir(),
		"disk_bytes":      disk.MaxBytes(),
		"memory_bytes":    mem.MaxBytes(),
		"pool_size":       l.e.poolSize,
		"default_width":   l.defW,
		"default_height":  l.defH,
		"network_denied":  opts.DenyNetwork,
		"slow_network":    opts.SlowNetwork,
		"ui_queue_absent": opts.UI == nil,
	})
	return l, nil
}

func (l *loader) Display(ctx context.Context, s *Sink, listener Listener) error {
	if s == nil {
		return ErrNilSink
	}
	if l.destroyed.Load() {
		return ErrDestroyed
	}
	if listener == nil {
		listener = NopListener{}
	}
	s.attach(l.log)
	s.resolve(l.defW, l.defH)

	uri := s.URI()
	if uri == "" {
		l.e.registry.unbind(s)
		listener.OnLoadingStarted(uri, s)
		img, _ := l.placeholder(l.onEmptyURI)
		s.SetPlaceholder(ctx, img)
		listener.OnLoadingComplete(uri, s, nil)
		return nil
	}

	key := s.MemoryKey()
	seq := l.e.registry.bind(s)
	listener.OnLoadingStarted(uri, s)

	if img, ok := l.e.mem.Get(key); ok {
		l.log.Debug("zimage: memory hit", Fields{"key": key})
		s.SetImage(ctx, img)
		l.e.registry.unbindIf(s, seq)
		listener.OnLoadingComplete(uri, s, img)
		return nil
	}

	if img, ok := l.placeholder(l.onLoading); ok {
		s.SetPlaceholder(ctx, img)
	}
	onFail, _ := l.placeholder(l.onFail)
	l.e.submit(&loadTask{
		e:        l.e,
		uri:      uri,
		key:      key,
		seq:      seq,
		sink:     s,
		listener: listener,
		extra:    s.extra,
		onFail:   onFail,
	})
	return nil
}

func (l *loader) placeholder(id string) (image.Image, bool) {
	if l.res == nil || id == "" {
		return nil, false
	}
	return l.res.Placeholder(id)
}

func (l *loader) CancelDisplayTask(s *Sink) {
	if s != nil {
		l.e.registry.unbind(s)
	}
}

func (l *loader) LoadingURIForSink(s *Sink) (string, bool) {
	if s == nil {
		return "", false
	}
	return l.e.registry.currentKey(s)
}

func (l *loader) DenyNetworkDownloads(deny bool) { l.e.denyNetwork(deny) }
func (l *loader) HandleSlowNetwork(slow bool)    { l.e.handleSlowNetwork(slow) }
func (l *loader) Pause()                         { l.e.pause() }
func (l *loader) Resume()                        { l.e.resume() }
func (l *loader) Stop()                          { l.e.stop() }

func (l *loader) Destroy() {
	if !l.destroyed.CompareAndSwap(false, true) {
		return
	}
	l.e.destroy()
	instance.CompareAndSwap(l, nil)
}

func (l *loader) ClearMemoryCache()     { l.e.mem.Clear() }
func (l *loader) ClearDiskCache() error { return l.e.disk.Clear() }

func (l *loader) TrimMemory() {
	before, after := memcache.TrimToLowWatermark(l.e.mem)
	l.hooks.MemoryTrimmed(before, after)
	l.log.Info("zimage: memory trimmed", Fields{"before": before, "after": after})
}

func (l *loader) MemoryCache() memcache.Cache  { return l.e.mem }
func (l *loader) DiskCache() *diskcache.Cache { return l.e.disk }

var (
	instanceMu sync.Mutex
	instance   atomic.Pointer[loader]
)

// Instance returns the process-wide loader, creating it with default
// Options on first use. Destroy on it resets the singleton.
func Instance() (Loader, error) {
	return Init(Options{})
}

// Init creates the process-wide loader with opts. When one already exists
// it is returned unchanged and opts are ignored.
func Init(opts Options) (Loader, error) {
	if l := instance.Load(); l != nil {
		return l, nil
	}
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if l := instance.Load(); l != nil {
		return l, nil
	}
	l, err := newLoader(opts)
	if err != nil {
		return nil, err
	}
	instance.Store(l)
	return l, nil
}
