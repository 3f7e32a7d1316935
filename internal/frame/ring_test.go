package frame

import "testing"

func TestAdvanceInDropsOldestWhenFull(t *testing.T) {
	rb := NewRingBuffer(3, 8, 8, 0, 0)

	// Fill the ring: in starts at 0, so three advances occupy 1,2,0.
	rb.AdvanceIn()
	rb.AdvanceIn()
	_, dropped := rb.AdvanceIn()
	if !dropped {
		t.Fatalf("expected oldest slot to be dropped once ring wraps")
	}
	if rb.In() != 0 || rb.Out() != 1 {
		t.Fatalf("expected in=0 out=1 after drop, got in=%d out=%d", rb.In(), rb.Out())
	}
}

func TestNewImageIsMidGrey(t *testing.T) {
	img := NewImage(8, 8, 0, 0)
	for _, b := range img.ImageNorm {
		if b != 0x80 {
			t.Fatalf("expected fresh slot to be mid-grey, got %#x", b)
		}
	}
}

func TestResizeRejectsMidEvent(t *testing.T) {
	rb := NewRingBuffer(4, 8, 8, 0, 0)
	if err := rb.Resize(8, false); err == nil {
		t.Fatalf("expected resize to be rejected when not quiescent")
	}
}

func TestResizePreservesExistingSlots(t *testing.T) {
	rb := NewRingBuffer(2, 8, 8, 0, 0)
	rb.AdvanceIn() // in=1
	first := rb.At(0)
	if err := rb.Resize(2, true); err != nil {
		t.Fatalf("unexpected resize error: %v", err)
	}
	if rb.At(0) != first {
		t.Fatalf("expected slot 0 to be preserved across resize")
	}
}

func TestCheckInvariantsRejectsOddCoordinate(t *testing.T) {
	img := NewImage(64, 64, 0, 0)
	img.Diffs = 10
	img.Location = Box{MinX: 1, MaxX: 10, X: 5, MinY: 0, MaxY: 10, Y: 5}
	if err := img.CheckInvariants(); err == nil {
		t.Fatalf("expected odd MinX to be rejected")
	}
}

func TestCheckInvariantsAcceptsValidBox(t *testing.T) {
	img := NewImage(64, 64, 0, 0)
	img.Diffs = 10
	img.Location = Box{MinX: 2, MaxX: 10, X: 6, MinY: 2, MaxY: 10, Y: 6}
	if err := img.CheckInvariants(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
