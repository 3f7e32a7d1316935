/*
DESCRIPTION
  reference.go holds the per-camera adaptive state that persists across
  frames: the reference ("background") frame, smart mask, noise and
  threshold tuning history, and frame-pacing history.

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package frame

// ThresholdTuneLength is the length of the short history alg_threshold_tune
// keeps for its running mean .
const ThresholdTuneLength = 256

// Reference holds the adaptive motion-detection state for a single
// camera. It is allocated once in a pipeline's init phase and mutated
// in place on the hot path; no field is ever reallocated except by a
// full Resize/Reset tied to a capture dimension change.
type Reference struct {
	Width, Height int

	Ref    []byte // Current adaptive reference frame (Y plane sized w*h).
	RefDyn []int  // Per-pixel deviation-duration counters, same length as Ref.

	Noise            int // Adaptive noise threshold in [0, 255].
	Threshold        int // Dynamic motion sensitivity (pixels-changed count).
	ThresholdMaximum int

	SmartMask       []int  // w*h, decaying per-pixel trigger-frequency score, capped at 80.
	SmartMaskFinal  []byte // w*h, derived 0/255 mask applied to the diff.
	SmartMaskBuffer []int  // w*h, raw per-frame accumulator fed by the diff pipeline.

	DiffsLast         [ThresholdTuneLength]int
	RollingAverageData []int64 // Frame-interval history, length 10*fps.
}

// NewReference allocates a Reference for a w*h frame, with a pacing
// history sized for fps frames/sec over a 10 second window.
func NewReference(w, h, fps int) *Reference {
	if fps <= 0 {
		fps = 1
	}
	n := w * h
	smartMaskFinal := make([]byte, n)
	for i := range smartMaskFinal {
		// Starts fully permissive (matches original_source/src/motion.c's
		// memset(smartmask_final, 255, ...)): until the smart mask has
		// learned anything, it must not suppress diffs.
		smartMaskFinal[i] = 0xff
	}
	return &Reference{
		Width:  w,
		Height: h,
		Ref:    grey(w, h)[:n],
		RefDyn: make([]int, n),

		SmartMask:       make([]int, n),
		SmartMaskFinal:  smartMaskFinal,
		SmartMaskBuffer: make([]int, n),

		RollingAverageData: make([]int64, 10*fps),
	}
}

// Reset copies virgin into Ref and zeros RefDyn (the RESET mode of
// reference frame update). Reset is idempotent:
// Reset(); Reset() with the same virgin is equivalent to a single
// Reset().
func (r *Reference) Reset(virgin []byte) {
	copy(r.Ref, virgin[:len(r.Ref)])
	for i := range r.RefDyn {
		r.RefDyn[i] = 0
	}
}
