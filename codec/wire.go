package codec

import (
	"github.com/unkn0wn-root/zimage/bitmap"
	"github.com/unkn0wn-root/zimage/internal/wire"
)

// Wire is the compact binary codec for bitmap.Frame. The zero value is ready to use.
// Decode returns frames whose Pix aliases the input slice.
type Wire struct{}

var _ Codec[bitmap.Frame] = Wire{}

func (Wire) Encode(f bitmap.Frame) ([]byte, error) {
	return wire.EncodeFrame(f.Width, f.Height, f.Stride, f.Pix)
}

func (Wire) Decode(b []byte) (bitmap.Frame, error) {
	w, h, s, pix, err := wire.DecodeFrame(b)
	if err != nil {
		return bitmap.Frame{}, err
	}
	return bitmap.Frame{Width: w, Height: h, Stride: s, Pix: pix}, nil
}
