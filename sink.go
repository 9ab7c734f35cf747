package zimage

import (
	"context"
	"image"
	"sync"
	"weak"

	"github.com/unkn0wn-root/zimage/internal/keys"
	"github.com/unkn0wn-root/zimage/ui"
)

// Fallback target size when neither the sink nor the loader knows better.
const (
	DefaultWidth  = 540
	DefaultHeight = 960
)

// Widget is the host view a Sink displays into. SetImage and SetPlaceholder
// are only called on the UI thread.
type Widget interface {
	// ID is stable for the widget's lifetime; sinks wrapping the same widget
	// share bindings through it.
	ID() int
	// Bounds is the rendered size, zero before layout.
	Bounds() (w, h int)
	// Layout is the requested layout size, zero or negative when it wraps content.
	Layout() (w, h int)
	SetImage(img image.Image)
	// SetPlaceholder shows img, or clears the widget when img is nil.
	SetPlaceholder(img image.Image)
}

// Sink is one request to show uri in a widget. Build a new Sink per Display
// call; the binding registry links sinks of the same widget by ID.
type Sink struct {
	id    int
	uri   string
	get   func() Widget
	extra any

	width, height int
	compress      bool
	checkActual   bool

	mu  sync.Mutex
	log Logger

	once   sync.Once
	key    string
	tw, th int
}

type SinkOption func(*Sink)

// WithSize sets the explicit target size, taking precedence over the widget.
func WithSize(w, h int) SinkOption {
	return func(s *Sink) { s.width, s.height = w, h }
}

// WithCompress asks for subsampled decoding toward the target size; the
// memory key then includes the size.
func WithCompress(b bool) SinkOption {
	return func(s *Sink) { s.compress = b }
}

// CheckActualViewSize makes the rendered bounds win over the layout size.
// Default true.
func CheckActualViewSize(b bool) SinkOption {
	return func(s *Sink) { s.checkActual = b }
}

// WithExtra passes v to the fetcher (the default fetcher accepts http.Header).
func WithExtra(v any) SinkOption {
	return func(s *Sink) { s.extra = v }
}

// WithSinkLogger sets the logger for off-thread warnings. Without it the
// sink logs through the loader it is displayed with.
func WithSinkLogger(l Logger) SinkOption {
	return func(s *Sink) { s.log = l }
}

// NewSink holds w strongly; Collected is always false.
func NewSink(w Widget, uri string, opts ...SinkOption) *Sink {
	return newSink(w.ID(), uri, func() Widget { return w }, opts)
}

// NewWeakSink holds w weakly. Once w is garbage collected the sink reports
// Collected and pending work for it is dropped silently.
func NewWeakSink[T any, P interface {
	*T
	Widget
}](w P, uri string, opts ...SinkOption) *Sink {
	ref := weak.Make((*T)(w))
	return newSink(w.ID(), uri, func() Widget {
		p := ref.Value()
		if p == nil {
			return nil
		}
		return P(p)
	}, opts)
}

func newSink(id int, uri string, get func() Widget, opts []SinkOption) *Sink {
	s := &Sink{id: id, uri: uri, get: get, checkActual: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) ID() int     { return s.id }
func (s *Sink) URI() string { return s.uri }

// Widget returns the wrapped widget, or nil once it was collected.
func (s *Sink) Widget() Widget { return s.get() }

func (s *Sink) Collected() bool { return s.get() == nil }

// ShouldCompress implements decoder.Target.
func (s *Sink) ShouldCompress() bool { return s.compress }

// TargetSize implements decoder.Target. The size is resolved once, on first
// use, in this order per dimension: WithSize, rendered bounds (when
// CheckActualViewSize), layout size, loader default.
func (s *Sink) TargetSize() (w, h int) {
	s.resolve(DefaultWidth, DefaultHeight)
	return s.tw, s.th
}

// MemoryKey is the URI, or uri_WxH for compressed sinks. Memoized.
func (s *Sink) MemoryKey() string {
	s.resolve(DefaultWidth, DefaultHeight)
	return s.key
}

func (s *Sink) resolve(defW, defH int) {
	s.once.Do(func() {
		s.tw, s.th = s.width, s.height
		if s.tw <= 0 || s.th <= 0 {
			s.tw, s.th = s.widgetSize()
			if s.tw <= 0 {
				s.tw = defW
			}
			if s.th <= 0 {
				s.th = defH
			}
		}
		s.key = s.uri
		if s.compress {
			s.key = keys.Memory(s.uri, s.tw, s.th)
		}
	})
}

func (s *Sink) widgetSize() (w, h int) {
	wd := s.get()
	if wd == nil {
		return 0, 0
	}
	lw, lh := wd.Layout()
	if s.checkActual {
		w, h = wd.Bounds()
	}
	if w <= 0 {
		w = lw
	}
	if h <= 0 {
		h = lh
	}
	return w, h
}

// SetImage shows img in the widget. It does nothing and returns false off
// the UI thread or after the widget was collected.
func (s *Sink) SetImage(ctx context.Context, img image.Image) bool {
	wd, ok := s.widgetOnThread(ctx, "set image")
	if ok {
		wd.SetImage(img)
	}
	return ok
}

// SetPlaceholder is SetImage for placeholders; nil clears the widget.
func (s *Sink) SetPlaceholder(ctx context.Context, img image.Image) bool {
	wd, ok := s.widgetOnThread(ctx, "set placeholder")
	if ok {
		wd.SetPlaceholder(img)
	}
	return ok
}

func (s *Sink) widgetOnThread(ctx context.Context, op string) (Widget, bool) {
	if !ui.IsThread(ctx) {
		s.logger().Warn("zimage: "+op+" off the UI thread; call Display from the UI thread", Fields{
			"uri": s.uri,
			"id":  s.id,
		})
		return nil, false
	}
	wd := s.get()
	return wd, wd != nil
}

func (s *Sink) logger() Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log == nil {
		return NopLogger{}
	}
	return s.log
}

// attach adopts the loader's logger if the sink has none.
func (s *Sink) attach(l Logger) {
	s.mu.Lock()
	if s.log == nil {
		s.log = l
	}
	s.mu.Unlock()
}
