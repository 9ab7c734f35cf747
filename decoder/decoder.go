// Package decoder turns fetched byte streams into rasters, optionally
// subsampled toward the size of the slot they are displayed in.
//
// Supported formats: png, jpeg, gif (stdlib) and webp, bmp, tiff
// (golang.org/x/image).
package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register gif
	_ "image/jpeg" // register jpeg
	_ "image/png"  // register png
	"io"

	_ "golang.org/x/image/bmp"  // register bmp
	"golang.org/x/image/draw"   // downsampling
	_ "golang.org/x/image/tiff" // register tiff
	_ "golang.org/x/image/webp" // register webp

	"github.com/unkn0wn-root/zimage/bitmap"
	"github.com/unkn0wn-root/zimage/fetcher"
)

var (
	// ErrDecode reports bytes that are not a supported image or that decode
	// to an empty raster.
	ErrDecode = errors.New("decoder: cannot decode image")
	// ErrTooLarge reports a raster whose estimated size exceeds Options.MaxBytes.
	ErrTooLarge = errors.New("decoder: raster too large")
)

// Target describes what the caller wants out of a decode.
type Target interface {
	// ShouldCompress asks for subsampling toward TargetSize.
	ShouldCompress() bool
	TargetSize() (w, h int)
}

// Decoder decodes the image behind uri. The stream is opened through f and
// closed before Decode returns, on every path.
type Decoder interface {
	Decode(ctx context.Context, uri string, t Target, f fetcher.Fetcher, extra any) (image.Image, error)
}

type Options struct {
	Sampling SampleOptions
	// MaxBytes caps the full-resolution raster (width*height*4); 0 = unlimited.
	MaxBytes int64
	// Scaler used to downsample; nil => draw.ApproxBiLinear.
	Scaler draw.Scaler
}

// Image is the default Decoder built on the image package registry.
type Image struct {
	opts   Options
	scaler draw.Scaler
}

var _ Decoder = (*Image)(nil)

func New(opts Options) *Image {
	sc := opts.Scaler
	if sc == nil {
		sc = draw.ApproxBiLinear
	}
	return &Image{opts: opts, scaler: sc}
}

func (d *Image) Decode(ctx context.Context, uri string, t Target, f fetcher.Fetcher, extra any) (image.Image, error) {
	rc, err := f.Stream(ctx, uri, extra)
	if err != nil {
		return nil, err
	}
	s := &stream{rc: rc}
	defer s.close()

	if t == nil || !t.ShouldCompress() {
		return d.decodeFull(ctx, uri, s)
	}

	cfg, err := d.probe(ctx, uri, s)
	if err != nil {
		return nil, err
	}
	if err := s.rewind(ctx, f, uri, extra); err != nil {
		return nil, err
	}

	tw, th := t.TargetSize()
	n := ComputeSampleSize(cfg.Width, cfg.Height, tw, th, d.opts.Sampling)

	src, err := d.decode(ctx, uri, s)
	if err != nil {
		return nil, err
	}
	if n == 1 {
		return src, nil
	}
	return d.downsample(src, n), nil
}

func (d *Image) probe(ctx context.Context, uri string, s *stream) (image.Config, error) {
	tr := &trackingReader{ctx: ctx, r: s.rc}
	cfg, _, err := image.DecodeConfig(tr)
	if err != nil {
		return image.Config{}, classify(uri, tr, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, fmt.Errorf("%w: %s: %dx%d", ErrDecode, uri, cfg.Width, cfg.Height)
	}
	if d.opts.MaxBytes > 0 && int64(cfg.Width)*int64(cfg.Height)*4 > d.opts.MaxBytes {
		return image.Config{}, fmt.Errorf("%w: %s: %dx%d", ErrTooLarge, uri, cfg.Width, cfg.Height)
	}
	return cfg, nil
}

// decodeFull decodes without subsampling. With a MaxBytes cap the header is
// probed first and replayed from memory, so no rewind is needed.
func (d *Image) decodeFull(ctx context.Context, uri string, s *stream) (image.Image, error) {
	if d.opts.MaxBytes > 0 {
		var head bytes.Buffer
		if _, err := d.probe(ctx, uri, &stream{rc: readCloser{Reader: io.TeeReader(s.rc, &head), Closer: s.rc}}); err != nil {
			return nil, err
		}
		s.rc = readCloser{Reader: io.MultiReader(&head, s.rc), Closer: s.rc}
	}
	return d.decode(ctx, uri, s)
}

func (d *Image) decode(ctx context.Context, uri string, s *stream) (image.Image, error) {
	tr := &trackingReader{ctx: ctx, r: s.rc}
	img, _, err := image.Decode(tr)
	if err != nil {
		return nil, classify(uri, tr, err)
	}
	if bitmap.Empty(img) {
		return nil, fmt.Errorf("%w: %s: empty raster", ErrDecode, uri)
	}
	return img, nil
}

func (d *Image) downsample(src image.Image, n int) image.Image {
	b := src.Bounds()
	w, h := max(1, b.Dx()/n), max(1, b.Dy()/n)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	d.scaler.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// classify keeps transport failures and cancellation as they are and turns
// everything else into ErrDecode.
func classify(uri string, tr *trackingReader, err error) error {
	if tr.err != nil {
		return tr.err
	}
	return fmt.Errorf("%w: %s: %w", ErrDecode, uri, err)
}

type stream struct {
	rc io.ReadCloser
}

func (s *stream) close() {
	if s.rc != nil {
		_ = s.rc.Close()
		s.rc = nil
	}
}

// rewind seeks back to the start, or closes and reopens the stream when it
// cannot seek.
func (s *stream) rewind(ctx context.Context, f fetcher.Fetcher, uri string, extra any) error {
	if sk, ok := s.rc.(io.Seeker); ok {
		if _, err := sk.Seek(0, io.SeekStart); err == nil {
			return nil
		}
	}
	s.close()
	rc, err := f.Stream(ctx, uri, extra)
	if err != nil {
		return err
	}
	s.rc = rc
	return nil
}

type trackingReader struct {
	ctx context.Context
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	if err := t.ctx.Err(); err != nil {
		t.err = err
		return 0, err
	}
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}

type readCloser struct {
	io.Reader
	io.Closer
}
