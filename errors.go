package zimage

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/zimage/decoder"
	"github.com/unkn0wn-root/zimage/fetcher"
)

var (
	ErrNilSink   = errors.New("zimage: nil sink")
	ErrDestroyed = errors.New("zimage: loader destroyed")
)

// FailKind classifies why a load failed.
type FailKind int

const (
	IOError FailKind = iota
	DecodingError
	NetworkDenied
	OutOfMemory
	Unknown
)

func (k FailKind) String() string {
	switch k {
	case IOError:
		return "IO_ERROR"
	case DecodingError:
		return "DECODING_ERROR"
	case NetworkDenied:
		return "NETWORK_DENIED"
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	default:
		return "UNKNOWN"
	}
}

// FailReason is passed to Listener.OnLoadingFailed. Cause may be nil, e.g.
// for a decode that produced an empty raster.
type FailReason struct {
	Kind  FailKind
	Cause error
}

func (r *FailReason) Error() string {
	if r.Cause == nil {
		return fmt.Sprintf("zimage: load failed: %s", r.Kind)
	}
	return fmt.Sprintf("zimage: load failed: %s: %v", r.Kind, r.Cause)
}

func (r *FailReason) Unwrap() error { return r.Cause }

// failReason maps a pipeline error to its kind.
func failReason(err error) *FailReason {
	var kind FailKind
	var pe *panicError
	switch {
	case errors.Is(err, fetcher.ErrNetworkDenied):
		kind = NetworkDenied
	case errors.Is(err, decoder.ErrTooLarge):
		kind = OutOfMemory
	case errors.Is(err, decoder.ErrDecode):
		kind = DecodingError
	case errors.As(err, &pe), errors.Is(err, fetcher.ErrUnsupportedScheme):
		kind = Unknown
	default:
		kind = IOError
	}
	return &FailReason{Kind: kind, Cause: err}
}

// panicError carries a panic recovered inside a task.
type panicError struct{ err error }

func (e *panicError) Error() string { return "zimage: task panicked: " + e.err.Error() }
func (e *panicError) Unwrap() error { return e.err }
