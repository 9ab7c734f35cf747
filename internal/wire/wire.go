package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindFrame byte = 1
)

var (
	ErrCorrupt = errors.New("zimage: corrupt frame")
	ErrInvalid = errors.New("zimage: invalid frame geometry")
	magic4     = [...]byte{'Z', 'I', 'M', 'G'}
)

const frameHeader = 4 + 1 + 1 + 4 + 4 + 4 + 4

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Frame: magic(4) | ver(1) | kind(1=frame) | w(u32 be) | h(u32 be) | stride(u32 be) | plen(u32 be) | pix(plen)
func EncodeFrame(w, h, stride int, pix []byte) ([]byte, error) {
	if w <= 0 || h <= 0 || stride < w*4 || uint64(len(pix)) > 0xFFFFFFFF {
		return nil, ErrInvalid
	}
	if len(pix) < (h-1)*stride+w*4 {
		return nil, ErrInvalid
	}

	var buf bytes.Buffer
	buf.Grow(frameHeader + len(pix))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindFrame)

	var u4 [4]byte
	for _, v := range [...]int{w, h, stride, len(pix)} {
		binary.BigEndian.PutUint32(u4[:], uint32(v))
		buf.Write(u4[:])
	}

	buf.Write(pix)
	return buf.Bytes(), nil
}

// DecodeFrame returns the geometry and a zero-copy slice of the pixels in b.
func DecodeFrame(b []byte) (w, h, stride int, pix []byte, err error) {
	if len(b) < frameHeader || !hasMagic(b) || b[4] != version || b[5] != kindFrame {
		return 0, 0, 0, nil, ErrCorrupt
	}

	off := 6
	var vals [4]int
	for i := range vals {
		vals[i] = int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
	}
	w, h, stride = vals[0], vals[1], vals[2]
	plen := vals[3]

	if plen < 0 || plen != len(b)-off { // trailing or missing bytes
		return 0, 0, 0, nil, ErrCorrupt
	}
	if w <= 0 || h <= 0 || stride < w*4 || plen < (h-1)*stride+w*4 {
		return 0, 0, 0, nil, ErrCorrupt
	}
	return w, h, stride, b[off : off+plen], nil
}
