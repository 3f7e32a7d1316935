package capture

import "testing"

func TestRoundUp8(t *testing.T) {
	cases := map[int]int{0: 0, 1: 8, 7: 8, 8: 8, 9: 16, 63: 64, 64: 64, 65: 72}
	for in, want := range cases {
		if got := roundUp8(in); got != want {
			t.Fatalf("roundUp8(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestCopyPlaneUnstridesSource(t *testing.T) {
	// src is a 4x3 plane padded to a stride of 6.
	stride, w, h := 6, 4, 3
	src := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src[y*stride+x] = byte(y*10 + x)
		}
	}
	dst := make([]byte, w*h)
	copyPlane(dst, src, stride, w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			want := byte(y*10 + x)
			if got := dst[y*w+x]; got != want {
				t.Fatalf("dst[%d,%d] = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestFrameWriterDropsOldestWhenConsumerBehind(t *testing.T) {
	ch := make(chan []byte, 1)
	fw := frameWriter{ch}

	if _, err := fw.Write([]byte("first")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fw.Write([]byte("second")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := <-ch
	if string(got) != "second" {
		t.Fatalf("expected the newest frame to survive a full channel, got %q", got)
	}
	select {
	case extra := <-ch:
		t.Fatalf("expected channel to be drained after one read, found extra frame %q", extra)
	default:
	}
}
