// Package zimage loads images asynchronously into display slots.
//
// A Sink wraps a widget (held weakly or strongly) together with the URI it
// should show. Loader.Display binds the sink to a memory key, serves it from
// the memory cache when possible and otherwise hands a load task to the
// engine, which routes it to one of two worker pools:
//
//   - cached: the encoded bytes are already in the disk cache;
//   - download: the bytes must be fetched first.
//
// Tasks for the same URI serialize on a per-URI lock, so concurrent requests
// fetch once and the later ones are served from memory. A task whose sink was
// rebound to another key, reclaimed by the GC or whose pool was stopped ends
// as cancelled and never touches the widget.
//
// Components:
//   - fetcher: byte streams per URI scheme, plus network-denied and
//     slow-network decorators.
//   - decoder: image decoding with subsampling toward the sink size.
//   - diskcache: LRU of encoded bytes under a byte budget.
//   - memcache: LRU of decoded rasters under a byte budget (ristretto and
//     bigcache adapters in subpackages).
//   - ui: the UI-thread queue; widget mutation is gated on it.
//
// Usage:
//
//	l, _ := zimage.New(zimage.Options{UI: loop})
//	l.Display(ctx, zimage.NewWeakSink(view, "https://example.com/a.png", zimage.WithCompress(true)), listener)
package zimage
