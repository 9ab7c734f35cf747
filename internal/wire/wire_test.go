package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func mustDecodeFrame(t *testing.T, b []byte) (int, int, int, []byte) {
	t.Helper()
	w, h, s, p, err := DecodeFrame(b)
	if err != nil {
		t.Fatalf("DecodeFrame error: %v", err)
	}
	return w, h, s, p
}

func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		w, h, stride int
	}{
		{1, 1, 4},
		{3, 2, 12},
		{2, 3, 16}, // padded stride
	}
	for _, tc := range cases {
		pix := make([]byte, tc.h*tc.stride)
		for i := range pix {
			pix[i] = byte(i)
		}
		enc, err := EncodeFrame(tc.w, tc.h, tc.stride, pix)
		if err != nil {
			t.Fatalf("EncodeFrame(%dx%d): %v", tc.w, tc.h, err)
		}
		w, h, s, p := mustDecodeFrame(t, enc)
		if w != tc.w || h != tc.h || s != tc.stride {
			t.Fatalf("geometry mismatch: got %dx%d/%d want %dx%d/%d", w, h, s, tc.w, tc.h, tc.stride)
		}
		if !bytes.Equal(p, pix) {
			t.Fatalf("pixel mismatch")
		}
	}
}

func TestFrameRejectsBadGeometry(t *testing.T) {
	if _, err := EncodeFrame(0, 1, 4, make([]byte, 4)); err == nil {
		t.Fatalf("expected error on zero width")
	}
	if _, err := EncodeFrame(2, 2, 4, make([]byte, 16)); err == nil {
		t.Fatalf("expected error on stride < 4*w")
	}
	if _, err := EncodeFrame(2, 2, 8, make([]byte, 10)); err == nil {
		t.Fatalf("expected error on short pixel buffer")
	}
}

func TestFrameRejectsTrailingBytes(t *testing.T) {
	enc, err := EncodeFrame(1, 1, 4, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	enc = append(enc, 0xDE, 0xAD)
	if _, _, _, _, err := DecodeFrame(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestFrameCorruptHeaders(t *testing.T) {
	enc, err := EncodeFrame(1, 1, 4, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, _, _, err := DecodeFrame(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, _, _, err := DecodeFrame(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindFrame + 1
	if _, _, _, _, err := DecodeFrame(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// width lives at offset 6..9 (4 magic +1 ver +1 kind)
	badW := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(badW[6:10], 5)
	if _, _, _, _, err := DecodeFrame(badW); err == nil {
		t.Fatalf("expected error on width beyond pixels")
	}

	trunc := enc[:len(enc)-1]
	if _, _, _, _, err := DecodeFrame(trunc); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
}

func TestFrameZeroCopyPixels(t *testing.T) {
	enc, err := EncodeFrame(1, 1, 4, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	_, _, _, p := mustDecodeFrame(t, enc)
	p[0] = 9
	_, _, _, p2 := mustDecodeFrame(t, enc)
	if p2[0] != 9 {
		t.Fatalf("expected zero-copy slice into enc buffer")
	}
}
