package zimage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/zimage/fetcher"
	"github.com/unkn0wn-root/zimage/ui"
)

var widgetIDs atomic.Int64

type fakeWidget struct {
	id             int
	boundW, boundH int
	layoutW        int
	layoutH        int

	mu          sync.Mutex
	img         image.Image
	placeholder image.Image
	imageSets   int
}

func newWidget() *fakeWidget {
	return &fakeWidget{id: int(widgetIDs.Add(1))}
}

func (w *fakeWidget) ID() int            { return w.id }
func (w *fakeWidget) Bounds() (int, int) { return w.boundW, w.boundH }
func (w *fakeWidget) Layout() (int, int) { return w.layoutW, w.layoutH }

func (w *fakeWidget) SetImage(i image.Image) {
	w.mu.Lock()
	w.img = i
	w.imageSets++
	w.mu.Unlock()
}

func (w *fakeWidget) SetPlaceholder(i image.Image) {
	w.mu.Lock()
	w.placeholder = i
	w.mu.Unlock()
}

func (w *fakeWidget) shown() (image.Image, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.img, w.imageSets
}

func (w *fakeWidget) shownPlaceholder() image.Image {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.placeholder
}

// testFetcher serves network URIs from memory and everything else through
// the default fetcher. It counts opens and closes per URI and can hold a
// URI's stream until its gate is opened.
type testFetcher struct {
	files fetcher.Fetcher

	mu     sync.Mutex
	blobs  map[string][]byte
	gates  map[string]chan struct{}
	opens  map[string]int
	closes map[string]int
}

func newTestFetcher() *testFetcher {
	return &testFetcher{
		files:  fetcher.New(),
		blobs:  make(map[string][]byte),
		gates:  make(map[string]chan struct{}),
		opens:  make(map[string]int),
		closes: make(map[string]int),
	}
}

func (f *testFetcher) serve(uri string, b []byte) {
	f.mu.Lock()
	f.blobs[uri] = b
	f.mu.Unlock()
}

// hold makes Stream(uri) block until the returned func is called.
func (f *testFetcher) hold(uri string) (open func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[uri] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *testFetcher) Stream(ctx context.Context, uri string, extra any) (io.ReadCloser, error) {
	f.mu.Lock()
	f.opens[uri]++
	gate := f.gates[uri]
	blob, ok := f.blobs[uri]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			f.closed(uri)
			return nil, ctx.Err()
		}
	}

	if !fetcher.SchemeOf(uri).Network() {
		rc, err := f.files.Stream(ctx, uri, extra)
		if err != nil {
			f.closed(uri)
			return nil, err
		}
		return &countedStream{ReadCloser: rc, done: func() { f.closed(uri) }}, nil
	}
	if !ok {
		f.closed(uri)
		return nil, &fetcher.StatusError{URI: uri, Code: 404}
	}
	return &countedStream{ReadCloser: io.NopCloser(bytes.NewReader(blob)), done: func() { f.closed(uri) }}, nil
}

// closed counts a finished open; failed opens count as closed so that opens
// and closes balance.
func (f *testFetcher) closed(uri string) {
	f.mu.Lock()
	f.closes[uri]++
	f.mu.Unlock()
}

func (f *testFetcher) opened(uri string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[uri]
}

func (f *testFetcher) balanced() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for uri, n := range f.opens {
		if f.closes[uri] != n {
			return false
		}
	}
	return true
}

type countedStream struct {
	io.ReadCloser
	once sync.Once
	done func()
}

func (c *countedStream) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(c.done)
	return err
}

type event struct {
	kind   string
	uri    string
	img    image.Image
	reason *FailReason
	cur    int64
	total  int64
}

// recorder is a Listener that keeps every callback and signals the first
// terminal one.
type recorder struct {
	mu     sync.Mutex
	events []event
	once   sync.Once
	done   chan struct{}
}

func newRecorder() *recorder { return &recorder{done: make(chan struct{})} }

func (r *recorder) add(ev event, terminal bool) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if terminal {
		r.once.Do(func() { close(r.done) })
	}
}

func (r *recorder) OnLoadingStarted(uri string, _ *Sink) {
	r.add(event{kind: "started", uri: uri}, false)
}

func (r *recorder) OnProgressUpdate(uri string, _ *Sink, cur, total int64) {
	r.add(event{kind: "progress", uri: uri, cur: cur, total: total}, false)
}

func (r *recorder) OnLoadingComplete(uri string, _ *Sink, img image.Image) {
	r.add(event{kind: "complete", uri: uri, img: img}, true)
}

func (r *recorder) OnLoadingFailed(uri string, _ *Sink, reason *FailReason) {
	r.add(event{kind: "failed", uri: uri, reason: reason}, true)
}

func (r *recorder) OnLoadingCancelled(uri string, _ *Sink) {
	r.add(event{kind: "cancelled", uri: uri}, true)
}

func (r *recorder) wait(t *testing.T) event {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("listener saw no terminal callback; events: %v", r.kinds())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.kind)
	}
	return out
}

type cancelEvent struct{ uri, key, reason string }

type failEvent struct {
	uri  string
	kind FailKind
}

type recordingHooks struct {
	NopHooks

	mu        sync.Mutex
	routed    map[string]bool
	cancelled []cancelEvent
	failed    []failEvent
	contended int
	trims     [][2]int64
}

func newRecordingHooks() *recordingHooks {
	return &recordingHooks{routed: make(map[string]bool)}
}

func (h *recordingHooks) TaskRouted(uri string, cached bool) {
	h.mu.Lock()
	h.routed[uri] = cached
	h.mu.Unlock()
}

func (h *recordingHooks) TaskCancelled(uri, key, reason string) {
	h.mu.Lock()
	h.cancelled = append(h.cancelled, cancelEvent{uri, key, reason})
	h.mu.Unlock()
}

func (h *recordingHooks) TaskFailed(uri string, kind FailKind, _ error) {
	h.mu.Lock()
	h.failed = append(h.failed, failEvent{uri, kind})
	h.mu.Unlock()
}

func (h *recordingHooks) URILockContended(string) {
	h.mu.Lock()
	h.contended++
	h.mu.Unlock()
}

func (h *recordingHooks) MemoryTrimmed(before, after int64) {
	h.mu.Lock()
	h.trims = append(h.trims, [2]int64{before, after})
	h.mu.Unlock()
}

func (h *recordingHooks) wasRouted(uri string) (cached, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cached, ok = h.routed[uri]
	return cached, ok
}

func (h *recordingHooks) cancellations() []cancelEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]cancelEvent(nil), h.cancelled...)
}

type testEnv struct {
	l     *loader
	f     *testFetcher
	hooks *recordingHooks
	loop  *ui.Loop
}

func newTestEnv(t *testing.T, mut func(*Options)) *testEnv {
	t.Helper()
	env := &testEnv{
		f:     newTestFetcher(),
		hooks: newRecordingHooks(),
		loop:  ui.NewLoop(0),
	}
	opts := Options{
		DiskCacheDir:     t.TempDir(),
		MemoryCacheBytes: 32 << 20,
		MaxDecodeBytes:   64 << 20,
		Fetcher:          env.f,
		UI:               env.loop,
		Hooks:            env.hooks,
	}
	if mut != nil {
		mut(&opts)
	}
	l, err := newLoader(opts)
	require.NoError(t, err)
	env.l = l
	t.Cleanup(func() {
		l.Destroy()
		env.loop.Close()
	})
	return env
}

// uiCtx is the context a host passes to Display from its UI thread.
func uiCtx() context.Context { return ui.WithThread(context.Background()) }

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gradient(w, h)))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, gradient(w, h), nil))
	return buf.Bytes()
}

func sizeOf(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

var errBoom = errors.New("boom")

// stateLogger keeps the task state transitions logged per URI.
type stateLogger struct {
	NopLogger

	mu     sync.Mutex
	states map[string][]string
}

func newStateLogger() *stateLogger {
	return &stateLogger{states: make(map[string][]string)}
}

func (l *stateLogger) Debug(msg string, f Fields) {
	if msg != "zimage: task state" {
		return
	}
	uri, _ := f["uri"].(string)
	to, _ := f["to"].(string)
	l.mu.Lock()
	l.states[uri] = append(l.states[uri], to)
	l.mu.Unlock()
}

func (l *stateLogger) of(uri string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.states[uri]...)
}
