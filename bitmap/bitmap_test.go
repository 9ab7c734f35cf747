package bitmap

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(0), ByteSize(nil))
	assert.Equal(t, int64(10*20*4), ByteSize(image.NewNRGBA(image.Rect(0, 0, 10, 20))))
	assert.Equal(t, int64(10*20), ByteSize(image.NewGray(image.Rect(0, 0, 10, 20))))

	ycc := image.NewYCbCr(image.Rect(0, 0, 16, 16), image.YCbCrSubsampleRatio420)
	assert.Equal(t, int64(16*16+8*8*2), ByteSize(ycc))

	cmyk := image.NewCMYK(image.Rect(0, 0, 3, 3))
	assert.Equal(t, int64(3*3*4), ByteSize(cmyk))
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, Empty(nil))
	assert.True(t, Empty(image.NewNRGBA(image.Rect(0, 0, 0, 5))))
	assert.False(t, Empty(image.NewNRGBA(image.Rect(0, 0, 1, 1))))
}

func TestFrameFromImage(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(2, 3, 6, 8))
	src.Set(2, 3, color.RGBA{R: 255, A: 255})

	f := FromImage(src)
	require.True(t, f.Valid())
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 5, f.Height)

	img := f.Image()
	r, _, _, a := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), a)
}

func TestFrameSharesNRGBA(t *testing.T) {
	t.Parallel()

	src := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	f := FromImage(src)
	f.Pix[0] = 7
	assert.Equal(t, uint8(7), src.Pix[0])
}

func TestFrameValid(t *testing.T) {
	t.Parallel()

	assert.False(t, Frame{}.Valid())
	assert.False(t, Frame{Width: 2, Height: 2, Stride: 8, Pix: make([]byte, 10)}.Valid())
	assert.True(t, Frame{Width: 2, Height: 2, Stride: 8, Pix: make([]byte, 16)}.Valid())
}
