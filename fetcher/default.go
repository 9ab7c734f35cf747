package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

const (
	DefaultTimeout      = 20 * time.Second
	DefaultMaxRedirects = 5
	DefaultUserAgent    = "zimage/1"
)

// ContentResolver opens content:// URIs. Hosts plug in whatever owns those.
type ContentResolver interface {
	OpenContent(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Default is the scheme-dispatched fetcher. The zero value is not usable; build it with New.
type Default struct {
	client    *http.Client
	userAgent string
	assets    fs.FS
	drawables fs.FS
	content   ContentResolver
}

var _ Fetcher = (*Default)(nil)

// Option configures a Default fetcher.
type Option func(*Default)

// WithHTTPClient replaces the HTTP client. The client is used as is; it is not
// wrapped for transparent decompression.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Default) {
		if c != nil {
			d.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header sent with http(s) requests.
func WithUserAgent(ua string) Option {
	return func(d *Default) { d.userAgent = ua }
}

// WithAssets serves asset://<path> from fsys.
func WithAssets(fsys fs.FS) Option {
	return func(d *Default) { d.assets = fsys }
}

// WithDrawables serves drawable://<name> from fsys.
func WithDrawables(fsys fs.FS) Option {
	return func(d *Default) { d.drawables = fsys }
}

// WithContentResolver serves content:// URIs.
func WithContentResolver(r ContentResolver) Option {
	return func(d *Default) { d.content = r }
}

// New returns the default fetcher. Without WithHTTPClient it uses a client with
// DefaultTimeout, at most DefaultMaxRedirects redirects and a transport that
// transparently decompresses gzip and zstd responses.
func New(opts ...Option) *Default {
	d := &Default{
		client: &http.Client{
			Transport: gzhttp.Transport(http.DefaultTransport),
			Timeout:   DefaultTimeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= DefaultMaxRedirects {
					return fmt.Errorf("fetcher: stopped after %d redirects", DefaultMaxRedirects)
				}
				return nil
			},
		},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Default) Stream(ctx context.Context, uri string, extra any) (io.ReadCloser, error) {
	switch s := SchemeOf(uri); s {
	case HTTP, HTTPS:
		return d.fromNetwork(ctx, uri, extra)
	case File:
		return d.fromFile(s.Crop(uri))
	case Content:
		if d.content == nil {
			return nil, fmt.Errorf("%w: no content resolver for %q", ErrUnsupportedScheme, uri)
		}
		return d.content.OpenContent(ctx, uri)
	case Asset:
		return openFS(d.assets, s.Crop(uri), uri)
	case Drawable:
		return openFS(d.drawables, s.Crop(uri), uri)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, uri)
	}
}

func (d *Default) fromNetwork(ctx context.Context, uri string, extra any) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: build request: %w", err)
	}
	if h, ok := extra.(http.Header); ok {
		for k, vs := range h {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	if d.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, &StatusError{URI: uri, Code: resp.StatusCode}
	}
	return sizedReadCloser{ReadCloser: resp.Body, size: resp.ContentLength}, nil
}

func (d *Default) fromFile(p string) (io.ReadCloser, error) {
	f, err := os.Open(p) //nolint:gosec // opening caller-named files is the point
	if err != nil {
		return nil, err
	}
	return f, nil
}

func openFS(fsys fs.FS, name, uri string) (io.ReadCloser, error) {
	if fsys == nil {
		return nil, fmt.Errorf("%w: no file system for %q", ErrUnsupportedScheme, uri)
	}
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	f, err := fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("fetcher: %s: %w", uri, err)
		}
		return nil, err
	}
	return f, nil
}
