package zimage

import "image"

// Listener observes one Display call. OnLoadingStarted runs on the caller's
// goroutine inside Display; the other callbacks run on the UI queue.
type Listener interface {
	OnLoadingStarted(uri string, s *Sink)
	// total is -1 when the length is unknown.
	OnProgressUpdate(uri string, s *Sink, current, total int64)
	// img is nil for an empty URI.
	OnLoadingComplete(uri string, s *Sink, img image.Image)
	OnLoadingFailed(uri string, s *Sink, reason *FailReason)
	OnLoadingCancelled(uri string, s *Sink)
}

type NopListener struct{}

func (NopListener) OnLoadingStarted(string, *Sink)               {}
func (NopListener) OnProgressUpdate(string, *Sink, int64, int64) {}
func (NopListener) OnLoadingComplete(string, *Sink, image.Image) {}
func (NopListener) OnLoadingFailed(string, *Sink, *FailReason)   {}
func (NopListener) OnLoadingCancelled(string, *Sink)             {}

// ListenerFuncs implements Listener with optional funcs; nil fields are skipped.
type ListenerFuncs struct {
	Started   func(uri string, s *Sink)
	Progress  func(uri string, s *Sink, current, total int64)
	Complete  func(uri string, s *Sink, img image.Image)
	Failed    func(uri string, s *Sink, reason *FailReason)
	Cancelled func(uri string, s *Sink)
}

var _ Listener = ListenerFuncs{}

func (f ListenerFuncs) OnLoadingStarted(uri string, s *Sink) {
	if f.Started != nil {
		f.Started(uri, s)
	}
}

func (f ListenerFuncs) OnProgressUpdate(uri string, s *Sink, current, total int64) {
	if f.Progress != nil {
		f.Progress(uri, s, current, total)
	}
}

func (f ListenerFuncs) OnLoadingComplete(uri string, s *Sink, img image.Image) {
	if f.Complete != nil {
		f.Complete(uri, s, img)
	}
}

func (f ListenerFuncs) OnLoadingFailed(uri string, s *Sink, reason *FailReason) {
	if f.Failed != nil {
		f.Failed(uri, s, reason)
	}
}

func (f ListenerFuncs) OnLoadingCancelled(uri string, s *Sink) {
	if f.Cancelled != nil {
		f.Cancelled(uri, s)
	}
}
