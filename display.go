package zimage

import (
	"context"
	"image"
)

// display is the delivery step, run on the UI queue. The sink may have been
// collected or rebound while the raster was in flight; then the listener
// hears a cancellation and the widget is left alone.
func (t *loadTask) display(ctx context.Context, img image.Image) {
	reason := ""
	switch {
	case t.sink.Collected():
		reason = reasonCollected
	case t.reused():
		reason = reasonReused
	}
	if reason != "" {
		if t.markCancelled(reason) {
			t.listener.OnLoadingCancelled(t.uri, t.sink)
		}
		return
	}

	t.sink.SetImage(ctx, img)
	t.e.registry.unbindIf(t.sink, t.seq)
	t.e.log.Debug("zimage: delivered", Fields{"uri": t.uri, "key": t.key, "id": t.sink.ID()})
	t.listener.OnLoadingComplete(t.uri, t.sink, img)
}
