// Package fetcher opens byte streams for image URIs.
//
// A Fetcher dispatches on the URI scheme (http, https, file, content, asset,
// drawable). Two decorators change its policy without touching the openers:
// NetworkDenied refuses http(s) and SlowNetwork wraps http(s) streams in a
// reader that tolerates premature short reads.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
)

var (
	ErrUnsupportedScheme = errors.New("fetcher: unsupported scheme")
	ErrNetworkDenied     = errors.New("fetcher: network downloads denied")
)

// Fetcher opens a readable stream for uri. extra is an opaque value passed
// through from the caller (the default fetcher accepts http.Header).
// The caller owns and must close the returned stream.
type Fetcher interface {
	Stream(ctx context.Context, uri string, extra any) (io.ReadCloser, error)
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context, uri string, extra any) (io.ReadCloser, error)

func (f Func) Stream(ctx context.Context, uri string, extra any) (io.ReadCloser, error) {
	return f(ctx, uri, extra)
}

// Sized is implemented by streams that know their total length.
type Sized interface {
	Size() int64
}

// SizeOf returns the total length of r if known, else -1.
func SizeOf(r io.Reader) int64 {
	switch v := r.(type) {
	case Sized:
		return v.Size()
	case interface{ Stat() (fs.FileInfo, error) }:
		if fi, err := v.Stat(); err == nil && fi.Mode().IsRegular() {
			return fi.Size()
		}
	}
	return -1
}

// StatusError is returned for HTTP responses other than 200 OK.
type StatusError struct {
	URI  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: %s: unexpected status %d", e.URI, e.Code)
}

type sizedReadCloser struct {
	io.ReadCloser
	size int64
}

func (s sizedReadCloser) Size() int64 { return s.size }
