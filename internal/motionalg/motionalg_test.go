package motionalg

import "testing"

func TestDiffFastFalseImpliesDiffStandardBelowHalfThreshold(t *testing.T) {
	w, h := 64, 64
	ref := make([]byte, w*h)
	cur := make([]byte, w*h)
	for i := range ref {
		ref[i] = 0x80
		cur[i] = 0x80
	}
	noise, threshold := 8, 40
	if DiffFast(ref, cur, w, h, noise, threshold) {
		t.Fatalf("expected identical frames to report no fast motion")
	}
	outY := make([]byte, w*h)
	diffs := DiffStandard(ref, cur, nil, nil, noise, outY, nil, false)
	if diffs > threshold/2 {
		t.Fatalf("diff_fast false but diff_standard = %d > threshold/2 = %d", diffs, threshold/2)
	}
}

func TestNoiseTuneBounded(t *testing.T) {
	w, h := 32, 32
	ref := make([]byte, w*h)
	virgin := make([]byte, w*h)
	for i := range ref {
		ref[i] = 0x80
		virgin[i] = 0x80
	}
	n := NoiseTune(ref, virgin, nil, nil, 4)
	if n < 0 || n > 255 {
		t.Fatalf("noise tune out of byte range: %d", n)
	}
}

func TestLightswitchSuppressesFullFrameChange(t *testing.T) {
	motionSize := 1000
	if !Lightswitch(950, motionSize, 90) {
		t.Fatalf("expected 95%% change to trip lightswitch at 90%% threshold")
	}
	if Lightswitch(100, motionSize, 90) {
		t.Fatalf("expected 10%% change not to trip lightswitch at 90%% threshold")
	}
}

func TestDespeckleEmptyFilterIsIdentity(t *testing.T) {
	w, h := 16, 16
	img := make([]byte, w*h)
	img[5] = 0xff
	diffs, labeling, _, _, err := Despeckle(img, w, h, 1, 0, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diffs != 1 || labeling {
		t.Fatalf("expected identity despeckle, got diffs=%d labeling=%v", diffs, labeling)
	}
}

func TestErodeMultiPixelBlockDoesNotCascade(t *testing.T) {
	w, h := 16, 16
	img := make([]byte, w*h)
	for y := 5; y <= 9; y++ {
		for x := 5; x <= 9; x++ {
			img[y*w+x] = 0xff
		}
	}
	// 8-connected erode on a solid 5x5 block strips every border pixel
	// (each has at least one background neighbour) and leaves exactly
	// the 3x3 interior standing. If erode reads the live,
	// already-mutating image instead of a frozen pre-pass snapshot, the
	// already-eroded row/column above and to the left reads back as
	// background too, and the interior cascades away to nothing.
	diffs, _, _, _, err := Despeckle(img, w, h, 25, 0, "E", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diffs != 9 {
		t.Fatalf("expected 3x3 interior (9 px) to survive erosion, got diffs=%d", diffs)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			want := x >= 6 && x <= 8 && y >= 6 && y <= 8
			got := img[y*w+x] != 0
			if got != want {
				t.Fatalf("pixel (%d,%d): got set=%v want set=%v", x, y, got, want)
			}
		}
	}
}

func TestDespeckleRejectsDuplicateLabel(t *testing.T) {
	w, h := 16, 16
	img := make([]byte, w*h)
	_, _, _, _, err := Despeckle(img, w, h, 0, 0, "ll", nil)
	if err == nil {
		t.Fatalf("expected error for duplicate 'l' in filter string")
	}
}

func TestLabelSeparatesDisjointComponents(t *testing.T) {
	w, h := 10, 10
	img := make([]byte, w*h)
	img[1*w+1] = 0xff
	img[8*w+8] = 0xff
	labelgroupMax, totalLabels, largest, err := label(img, w, h, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totalLabels != 2 {
		t.Fatalf("expected 2 disjoint components, got %d", totalLabels)
	}
	if largest == 0 {
		t.Fatalf("expected a largest label to be recorded")
	}
	if labelgroupMax != 2 {
		t.Fatalf("expected both single-pixel components to exceed threshold 0, got labelgroupMax=%d", labelgroupMax)
	}
}

func TestLabelPopulatesCallerOutLabels(t *testing.T) {
	w, h := 10, 10
	img := make([]byte, w*h)
	img[1*w+1] = 0xff
	img[8*w+8] = 0xff
	out := make([]int, w*h)
	_, totalLabels, largest, err := label(img, w, h, 0, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totalLabels != 2 {
		t.Fatalf("expected 2 disjoint components, got %d", totalLabels)
	}
	if out[1*w+1] == 0 || out[8*w+8] == 0 {
		t.Fatalf("expected both motion pixels to carry a non-zero label in the caller buffer")
	}
	if out[1*w+1] != largest && out[8*w+8] != largest {
		t.Fatalf("expected the largest label to appear in outLabels")
	}
}

func TestReferenceUpdateResetCopiesVirgin(t *testing.T) {
	w, h := 4, 4
	ref := make([]byte, w*h)
	refDyn := make([]int, w*h)
	virgin := make([]byte, w*h)
	for i := range virgin {
		virgin[i] = byte(i)
		refDyn[i] = 7
	}
	ReferenceUpdate(ref, refDyn, virgin, nil, 0, 0, ReferenceReset)
	for i := range ref {
		if ref[i] != virgin[i] {
			t.Fatalf("reset did not copy virgin at %d: got %d want %d", i, ref[i], virgin[i])
		}
		if refDyn[i] != 0 {
			t.Fatalf("reset did not clear refDyn at %d", i)
		}
	}
}

func TestReferenceUpdateLeavesMovingPixelsAlone(t *testing.T) {
	w, h := 4, 4
	n := w * h
	ref := make([]byte, n)
	refDyn := make([]int, n)
	virgin := make([]byte, n)
	motion := make([]byte, n)
	for i := range ref {
		ref[i] = 0x10
		virgin[i] = 0xf0
	}
	motion[0] = 0xff // Pixel 0 is actively moving.
	ReferenceUpdate(ref, refDyn, virgin, motion, 1, 10, ReferenceUpdateAdaptive)
	if ref[0] != 0x10 {
		t.Fatalf("expected moving pixel to be left alone, got %#x", ref[0])
	}
}

func TestCentroidBBoxEvenCoordinates(t *testing.T) {
	w, h := 64, 64
	sel := func(i int) bool {
		x, y := i%w, i/w
		return x >= 20 && x <= 30 && y >= 20 && y <= 30
	}
	box, ok := CentroidBBox(w, h, sel)
	if !ok {
		t.Fatalf("expected a box to be found")
	}
	if box.MinX%2 != 0 || box.MinY%2 != 0 || box.MaxX%2 != 0 || box.MaxY%2 != 0 {
		t.Fatalf("expected all box coordinates to be even: %+v", box)
	}
}

func TestCentroidBBoxNoSelection(t *testing.T) {
	_, ok := CentroidBBox(8, 8, func(i int) bool { return false })
	if ok {
		t.Fatalf("expected no box when nothing is selected")
	}
}
