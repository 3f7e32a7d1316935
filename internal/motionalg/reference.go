/*
DESCRIPTION
  reference.go implements reference-frame update (
  "Reference frame update") and smart mask tuning ("Smart mask tuning"),
  operating on the adaptive state held in frame.Reference.

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package motionalg

// ReferenceUpdateMode selects between the two reference-frame update
// strategies 
type ReferenceUpdateMode int

const (
	// ReferenceReset replaces the reference wholesale with the current
	// virgin frame (used after lightswitch detection, and at startup).
	ReferenceReset ReferenceUpdateMode = iota
	// ReferenceUpdateAdaptive accumulates per-pixel deviation duration
	// and slowly folds static (non-motion) change into the reference,
	// so that a genuinely static object eventually stops triggering
	// motion, while active motion pixels are left alone.
	ReferenceUpdateAdaptive
)

// ReferenceUpdate advances ref/refDyn by one frame given the current
// virgin (undecorated) frame and the motion image (non-zero where
// motion was detected this frame). acceptStaticObjectTime is in
// seconds; fps is the capture rate. Above 5 fps the source applies a 3x
// speedup to the acceptance counter so the wall-clock acceptance time
// stays roughly constant regardless of frame rate.
//
// mode == ReferenceReset copies virgin into ref and zeroes refDyn
// inline, ignoring motionY/acceptStaticObjectTime.
func ReferenceUpdate(ref []byte, refDyn []int, virgin, motionY []byte, acceptStaticObjectTime, fps int, mode ReferenceUpdateMode) {
	if mode == ReferenceReset {
		copy(ref, virgin[:len(ref)])
		for i := range refDyn {
			refDyn[i] = 0
		}
		return
	}

	speedup := 1
	if fps > 5 {
		speedup = 3
	}
	acceptFrames := acceptStaticObjectTime * fps
	if acceptFrames <= 0 {
		acceptFrames = 1
	}

	for i := range ref {
		if i < len(motionY) && motionY[i] != 0 {
			// Actively moving: don't fold into the reference, and decay
			// any accumulated deviation count back toward zero so a
			// pixel that stops moving starts its acceptance clock fresh.
			if refDyn[i] > 0 {
				refDyn[i]--
			}
			continue
		}
		if ref[i] == virgin[i] {
			refDyn[i] = 0
			continue
		}
		refDyn[i] += speedup
		if refDyn[i] >= acceptFrames {
			// Static long enough: ease the reference halfway toward the
			// virgin value ("ease" step), rather than
			// snapping instantly, to avoid a visible pop in the motion
			// image.
			ref[i] = byte((int(ref[i]) + int(virgin[i])) / 2)
			refDyn[i] = 0
		}
	}
}

// SmartMaskSpeed is the default decay/accumulate rate used by
// SmartMaskTune when the caller doesn't override it .
const SmartMaskSpeed = 10

// smartMaskCap bounds the decaying trigger-frequency score so a cell
// that fires constantly doesn't take arbitrarily long to recover once
// it goes quiet.
const smartMaskCap = 80

// SmartMaskTune runs one periodic smart-mask derivation step. mask is
// the persistent, slowly-decaying
// per-pixel trigger-frequency score (decayed by one every call); buffer
// is the raw per-frame accumulator the diff pipeline feeds while a
// motion event is open (DiffStandard's "+= 5"). Each call folds
// buffer[i]/sensitivity into mask[i] (a cell already above
// diff+smartMaskCap is reset to smartMaskCap instead, so a score can
// exceed smartMaskCap by up to twice the folded amount), keeping
// the remainder in buffer for the next period so a burst of motion
// within one interval isn't lost, then derives a fresh 0/255 mask by
// thresholding mask against threshold (typically 20): cells that
// trigger too often are suppressed (0), everything else stays allowed
// (255). Two erode passes then shrink the allowed region back from the
// suppressed boundary. Returns the derived mask as a freshly allocated
// slice.
func SmartMaskTune(mask, buffer []int, w, h, sensitivity, threshold int) (finalMask []byte) {
	if sensitivity <= 0 {
		sensitivity = 1
	}
	n := w * h
	for i := 0; i < n && i < len(mask) && i < len(buffer); i++ {
		if mask[i] > 0 {
			mask[i]--
		}
		diff := buffer[i] / sensitivity
		if diff > 0 {
			if mask[i] <= diff+smartMaskCap {
				mask[i] += diff
			} else {
				mask[i] = smartMaskCap
			}
			buffer[i] %= sensitivity
		}
	}

	finalMask = make([]byte, n)
	for i := 0; i < n && i < len(mask); i++ {
		if mask[i] > threshold {
			finalMask[i] = 0 // Triggers too often: suppress.
		} else {
			finalMask[i] = 0xff // Allow.
		}
	}

	scratch := make([]byte, 3*w)
	erode(finalMask, w, h, scratch, 4)
	erode(finalMask, w, h, scratch, 4)
	return finalMask
}
