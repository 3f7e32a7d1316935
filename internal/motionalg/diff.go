/*
DESCRIPTION
  diff.go implements the fast and full pixel-difference motion detection
  primitives  ("Fast diff", "Full diff", "Composed diff").

  Grounded on filter/basic.go's manual per-pixel comparison loop and
  filter/diff.go's threshold-gated detection, generalized from RGB
  image.Image comparison to YUV 4:2:0 Y-plane byte comparison, and
  extended to match the exact fast/full diff semantics (the
  teacher's filters compare whole frames; the core compares
  against a slowly-adapting reference with a noise floor).

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package motionalg provides the stateless (or small-state) pixel-level
// motion detection primitives operating on YUV 4:2:0 Y planes: fast and
// full diff, despeckle/labeling, noise and threshold tuning,
// lightswitch/switchfilter heuristics, reference-frame update, smart
// mask tuning, and centroid/bounding-box computation.
package motionalg

import "math"

// motionSizeSampleBase is the number of sample positions the fast diff
// aims for: the stride is motionSize/motionSizeSampleBase (at least 1),
// so approximately 10000 positions are visited.
const motionSizeSampleBase = 10000

// DiffFast samples roughly motionSizeSampleBase strided Y-plane
// positions (stride (w*h)/motionSizeSampleBase) and reports whether enough of them exceed the noise floor
// to justify a full diff pass. It never mutates state. ref and cur must
// be the same length (the Y plane, w*h bytes).
func DiffFast(ref, cur []byte, w, h, noise, threshold int) bool {
	n := w * h
	if n == 0 {
		return false
	}
	step := n / motionSizeSampleBase
	if step < 1 {
		step = 1
	}
	limit := (threshold / 2) / step
	count := 0
	for i := 0; i < n; i += step {
		d := int(ref[i]) - int(cur[i])
		if d < 0 {
			d = -d
		}
		if d > noise {
			count++
			if count > limit {
				return true
			}
		}
	}
	return false
}

// DiffStandard computes the full per-pixel difference between ref and
// cur. Wherever the optional fixedMask or smartMaskFinal suppress a
// pixel, its contribution is dropped. Motion pixels (d > noise) are
// written into outY (the luma plane of the "motion image"); outY's
// chroma planes are the caller's responsibility to neutralise (set
// U,V=0x80), matching the source's convention that the motion image
// defaults to grey chroma. When eventActive is true, every above-noise
// pixel also feeds smartMaskBuffer[i] += 5 ("Smart mask
// tuning": the buffer only accumulates while a motion event is open, so
// a single noisy frame outside an event can't bias the mask).
// smartMaskBuffer may be nil to skip the feed entirely. Returns the
// pixel-change count.
func DiffStandard(ref, cur []byte, fixedMask, smartMaskFinal []byte, noise int, outY []byte, smartMaskBuffer []int, eventActive bool) int {
	const smartMaskIncrement = 5
	diffs := 0
	for i, c := range cur {
		d := int(ref[i]) - int(c)
		if d < 0 {
			d = -d
		}
		if fixedMask != nil {
			d = d * int(fixedMask[i]) / 255
		}
		if eventActive && smartMaskBuffer != nil && d > noise {
			smartMaskBuffer[i] += smartMaskIncrement
		}
		if smartMaskFinal != nil && smartMaskFinal[i] == 0 {
			d = 0
		}
		if d > noise {
			outY[i] = c
			diffs++
		} else {
			outY[i] = 0
		}
	}
	return diffs
}

// Diff is the composed diff : diff_fast is used as an
// early-out unless detecting is true or setup mode is active, in which
// case diff_standard always runs (latency over CPU).
func Diff(ref, cur []byte, w, h int, fixedMask, smartMaskFinal []byte, noise, threshold int, outY []byte, detectingOrSetup bool, smartMaskBuffer []int, eventActive bool) int {
	if !detectingOrSetup {
		if !DiffFast(ref, cur, w, h, noise, threshold) {
			return 0
		}
	}
	return DiffStandard(ref, cur, fixedMask, smartMaskFinal, noise, outY, smartMaskBuffer, eventActive)
}

// NoiseTune recomputes the adaptive noise floor from the difference
// between ref and virgin, gated by the fixed mask and smart mask the
// same way DiffStandard is. The result floats around the current scene
// noise plus a small safety margin ( "Noise tune").
func NoiseTune(ref, virgin []byte, fixedMask, smartMaskFinal []byte, noise int) int {
	sum, count := 0, 0
	for i, v := range virgin {
		d := int(ref[i]) - int(v)
		if d < 0 {
			d = -d
		}
		if fixedMask != nil {
			d = d * int(fixedMask[i]) / 255
		}
		if smartMaskFinal != nil && smartMaskFinal[i] == 0 {
			continue
		}
		sum += d + 1
		count++
	}
	if count > 3 {
		sum /= count / 3
	}
	return 4 + (noise+sum)/2
}

// DefaultThresholdTuneDivisor is the "magic tuning constant" asks
// reimplementers to expose as a tunable rather than hardcode; see
// DESIGN.md's Open Question decision 2.
const DefaultThresholdTuneDivisor = 4

// ThresholdTune shifts history (a ring of ThresholdTuneLength samples,
// next write position idx) forward by one slot, computes a running
// mean, clamps it below thresholdMax, and if lower than the current
// threshold, eases threshold toward the mean. When motionActive is
// true, the history is seeded with threshold/divisor instead of the
// current diffs so that tuning doesn't chase the motion itself.
func ThresholdTune(history []int, idx *int, diffs, threshold, thresholdMax, divisor int, motionActive bool) int {
	if divisor <= 0 {
		divisor = DefaultThresholdTuneDivisor
	}
	n := len(history)
	if n == 0 {
		return threshold
	}
	*idx = (*idx + 1) % n
	if motionActive {
		history[*idx] = threshold / divisor
	} else {
		history[*idx] = diffs
	}

	sum := 0
	for _, v := range history {
		sum += v
	}
	mean := sum / n
	if mean > thresholdMax {
		mean = thresholdMax
	}
	if mean < threshold {
		return (threshold + mean) / 2
	}
	return threshold
}

// Lightswitch reports whether diffs represents a scene-wide brightness
// change: diffs greater than motionSize*percent/100. Callers are
// responsible for zeroing diffs, freezing detection for
// lightswitchFrames subsequent frames, and resetting the reference,
// as describes.
func Lightswitch(diffs, motionSize, percent int) bool {
	return diffs > motionSize*percent/100
}

// Switchfilter detects the striping pattern characteristic of analogue
// camera-source switching by counting rows with significantly more
// changed pixels than the row average, and rows that are "very dense".
// If a stripe pattern dominates, it returns 0; otherwise it returns
// diffs unchanged.
func Switchfilter(motionY []byte, w, h, diffs int) int {
	if diffs == 0 || h == 0 {
		return diffs
	}
	rowCounts := make([]int, h)
	total := 0
	for y := 0; y < h; y++ {
		c := 0
		row := motionY[y*w : (y+1)*w]
		for _, p := range row {
			if p != 0 {
				c++
			}
		}
		rowCounts[y] = c
		total += c
	}
	avg := total / h
	const denseFactor = 3  // "significantly more changed pixels than the average row".
	const veryDenseFrac = 3 // a "very dense" row: more than w/veryDenseFrac changed.
	striped, veryDense := 0, 0
	for _, c := range rowCounts {
		if avg > 0 && c > avg*denseFactor {
			striped++
		}
		if c > w/veryDenseFrac {
			veryDense++
		}
	}
	// Stripe pattern dominates when a large majority of rows are both
	// denser than average and individually very dense.
	if h > 0 && striped > h/2 && veryDense > h/4 {
		return 0
	}
	return diffs
}

// sq is a small helper used by the centroid/bbox pass.
func sq(x int) int { return x * x }

// abs is a small int-abs helper.
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// clampEven clamps v to [0, max-1] and rounds it down to an even value,
// matching "snap all four sides to even coordinates"
// requirement (chroma-grid alignment).
func clampEven(v, max int) int {
	if v < 0 {
		v = 0
	}
	if v > max-1 {
		v = max - 1
	}
	return v &^ 1
}

// CentroidBBox computes the centroid and bounding box of the motion
// pixel set (pixels where sel returns true), using the two-pass
// algorithm : first pass sums x,y to get the centroid,
// second pass sums |x-cx|,|y-cy| to derive box half-widths, with the
// vertical box enlarged upward (to include a person's head) by using a
// 3x multiplier on the top edge instead of 2x.
func CentroidBBox(w, h int, sel func(i int) bool) (box struct {
	MinX, MinY, MaxX, MaxY, X, Y int
}, ok bool) {
	sumX, sumY, count := 0, 0, 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if sel(i) {
				sumX += x
				sumY += y
				count++
			}
		}
	}
	if count == 0 {
		return box, false
	}
	cx := sumX / count
	cy := sumY / count

	sumDX, sumDY := 0, 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if sel(i) {
				sumDX += abs(x - cx)
				sumDY += abs(y - cy)
			}
		}
	}
	xdist := sumDX / count
	ydist := sumDY / count

	minX := clampEven(cx-2*xdist, w)
	maxX := clampEven(cx+2*xdist, w)
	minY := clampEven(cy-3*ydist, h)
	maxY := clampEven(cy+2*ydist, h)
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	box.MinX, box.MaxX = minX, maxX
	box.MinY, box.MaxY = minY, maxY
	box.X = clampEven((minX+maxX)/2, w)
	box.Y = clampEven((minY+maxY)/2, h) // cy recomputed as box midpoint.
	if box.X < minX {
		box.X = minX
	}
	if box.X > maxX {
		box.X = maxX
	}
	if box.Y < minY {
		box.Y = minY
	}
	if box.Y > maxY {
		box.Y = maxY
	}
	return box, true
}

// squaredCentreDistance returns the squared distance from the frame
// centre to (x,y), used by Image.CentDist for "centre" best-image
// selection.
func squaredCentreDistance(w, h, x, y int) int {
	cx, cy := w/2, h/2
	return sq(x-cx) + sq(y-cy)
}

// CentreDistance is exported for use by the camera pipeline when
// filling in Image.CentDist after computing a bounding box.
func CentreDistance(w, h, x, y int) int { return squaredCentreDistance(w, h, x, y) }

// roundHalfAway is used by the micro-lightswitch heuristic in the
// camera pipeline to compare two centroids "within 1/150 of frame
// size".
func roundHalfAway(f float64) int { return int(math.Round(f)) }
