// Package bitmap holds helpers for decoded rasters: byte-size accounting used
// by the memory caches and a flat pixel Frame used when a raster has to leave
// the Go heap (e.g. serialized into bigcache).
package bitmap

import (
	"image"
	"image/draw"
)

// ByteSize returns the number of bytes img holds in its pixel buffers.
// Unknown image implementations are charged 4 bytes per pixel.
func ByteSize(img image.Image) int64 {
	if img == nil {
		return 0
	}
	switch m := img.(type) {
	case *image.NRGBA:
		return int64(len(m.Pix))
	case *image.RGBA:
		return int64(len(m.Pix))
	case *image.NRGBA64:
		return int64(len(m.Pix))
	case *image.RGBA64:
		return int64(len(m.Pix))
	case *image.Gray:
		return int64(len(m.Pix))
	case *image.Gray16:
		return int64(len(m.Pix))
	case *image.Paletted:
		return int64(len(m.Pix)) + int64(len(m.Palette))*4
	case *image.YCbCr:
		return int64(len(m.Y) + len(m.Cb) + len(m.Cr))
	case *image.NYCbCrA:
		return int64(len(m.Y) + len(m.Cb) + len(m.Cr) + len(m.A))
	case *image.CMYK:
		return int64(len(m.Pix))
	}
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}

// Empty reports whether img is nil or has a non-positive dimension.
func Empty(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	return b.Dx() <= 0 || b.Dy() <= 0
}

// Frame is an NRGBA pixel buffer with its geometry.
type Frame struct {
	Width  int    `msgpack:"w" cbor:"1,keyasint"`
	Height int    `msgpack:"h" cbor:"2,keyasint"`
	Stride int    `msgpack:"s" cbor:"3,keyasint"`
	Pix    []byte `msgpack:"p" cbor:"4,keyasint"`
}

// FromImage converts img into a Frame. NRGBA images are shared, not copied.
func FromImage(img image.Image) Frame {
	if m, ok := img.(*image.NRGBA); ok && m.Rect.Min == (image.Point{}) {
		return Frame{Width: m.Rect.Dx(), Height: m.Rect.Dy(), Stride: m.Stride, Pix: m.Pix}
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return Frame{Width: dst.Rect.Dx(), Height: dst.Rect.Dy(), Stride: dst.Stride, Pix: dst.Pix}
}

// Image returns the frame as an *image.NRGBA backed by f.Pix.
func (f Frame) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    f.Pix,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Valid reports whether the geometry agrees with the pixel buffer.
func (f Frame) Valid() bool {
	if f.Width <= 0 || f.Height <= 0 || f.Stride < f.Width*4 {
		return false
	}
	return len(f.Pix) >= (f.Height-1)*f.Stride+f.Width*4
}
