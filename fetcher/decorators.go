package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// NetworkDenied refuses http(s) URIs with ErrNetworkDenied and delegates the rest.
type NetworkDenied struct {
	Inner Fetcher
}

var _ Fetcher = NetworkDenied{}

func (n NetworkDenied) Stream(ctx context.Context, uri string, extra any) (io.ReadCloser, error) {
	if SchemeOf(uri).Network() {
		return nil, fmt.Errorf("%w: %s", ErrNetworkDenied, uri)
	}
	return n.Inner.Stream(ctx, uri, extra)
}

// SlowNetwork wraps http(s) streams of Inner in a flush-tolerant reader.
type SlowNetwork struct {
	Inner Fetcher
}

var _ Fetcher = SlowNetwork{}

func (s SlowNetwork) Stream(ctx context.Context, uri string, extra any) (io.ReadCloser, error) {
	rc, err := s.Inner.Stream(ctx, uri, extra)
	if err != nil {
		return nil, err
	}
	if !SchemeOf(uri).Network() {
		return rc, nil
	}
	return &flushedReader{rc: rc, size: SizeOf(rc)}, nil
}

// flushedReader keeps reading until p is full or the stream ends, so decoders
// never see a short read that is not followed by EOF.
type flushedReader struct {
	rc   io.ReadCloser
	size int64
	err  error
}

func (f *flushedReader) Read(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := io.ReadFull(f.rc, p)
	if errors.Is(err, io.ErrUnexpectedEOF) || (errors.Is(err, io.EOF) && n > 0) {
		f.err = io.EOF
		return n, nil
	}
	if err != nil {
		f.err = err
	}
	return n, err
}

func (f *flushedReader) Close() error { return f.rc.Close() }

func (f *flushedReader) Size() int64 { return f.size }
