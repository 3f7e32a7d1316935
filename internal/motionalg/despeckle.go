/*
DESCRIPTION
  despeckle.go implements the despeckle filter chain and connected-
  component labeling.

  The flood-fill stack is modelled as an explicit bounded array of
  {y, xl, xr, dy} segments, replacing the original's recursive-macro
  push/pop with something a systems language can reason about;
  StackFull is returned rather than silently truncating.

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

import (
	"fmt"
	"strings"
)

// ErrStackFull is returned by label when the flood-fill segment stack's
// bound is reached; the source silently truncates, asks for
// an explicit signal instead.
var ErrStackFull = fmt.Errorf("motionalg: flood-fill stack full")

// maxStackSegments bounds the explicit flood-fill stack. Chosen
// generously relative to typical frame heights; a genuinely pathological
// frame (alternating rows of single-pixel motion) can still exhaust it,
// in which case ErrStackFull propagates to the caller.
const maxStackSegments = 1 << 16

// segment is one flood-fill stack entry: a scanline's [xl,xr] run at
// row y, with dy the direction to continue seeding (+1 or -1), as the
// two-pass scanline flood fill in describes.
type segment struct {
	y, xl, xr, dy int
}

// Despeckle applies a filter string over alphabet {E,e,D,d,l} left to
// right over the motion image's Y plane. Erode works through a single
// 3*w scratch buffer; dilate snapshots the whole plane and labeling
// allocates its own working state. 'E'/'e' are 3x3/4-neighbour erode,
// 'D'/'d' are the corresponding dilate, and 'l' is connected-component
// labeling; 'l' may appear at most once and terminates the pipeline.
// Erode returns early (cutting the filter short) if it reduces diffs to
// 0. outLabels, if non-nil and sized w*h, receives the per-pixel label
// id of the labeling pass (0 = background) for the largest-label
// overlay ; pass nil if the caller doesn't render it.
// Returns the (possibly relabeled) diff count, whether labeling ran,
// total label count, and the largest label's id (0 if labeling did not
// run).
func Despeckle(motionY []byte, w, h int, olddiffs, threshold int, filterStr string, outLabels []int) (diffs int, labelingEnabled bool, totalLabels int, largestLabel int, err error) {
	if filterStr == "" {
		return olddiffs, false, 0, 0, nil // Identity: empty filter.
	}
	if strings.Count(filterStr, "l") > 1 {
		return olddiffs, false, 0, 0, fmt.Errorf("motionalg: 'l' specified more than once in filter %q", filterStr)
	}

	scratch := make([]byte, 3*w)
	diffs = olddiffs
	for idx, op := range filterStr {
		switch op {
		case 'E':
			diffs = erode(motionY, w, h, scratch, 8)
		case 'e':
			diffs = erode(motionY, w, h, scratch, 4)
		case 'D':
			diffs = dilate(motionY, w, h, scratch, 8)
		case 'd':
			diffs = dilate(motionY, w, h, scratch, 4)
		case 'l':
			if labelingEnabled {
				return diffs, labelingEnabled, totalLabels, largestLabel, fmt.Errorf("motionalg: 'l' specified more than once in filter %q", filterStr)
			}
			var labelErr error
			diffs, totalLabels, largestLabel, labelErr = label(motionY, w, h, threshold, outLabels)
			if labelErr != nil {
				return diffs, labelingEnabled, totalLabels, largestLabel, labelErr
			}
			labelingEnabled = true
			return diffs, labelingEnabled, totalLabels, largestLabel, nil // l terminates the pipeline.
		default:
			return diffs, labelingEnabled, totalLabels, largestLabel, fmt.Errorf("motionalg: unknown despeckle operator %q at position %d", op, idx)
		}
		if diffs == 0 {
			break // Erode/dilate reduced diffs to 0: cut the filter short.
		}
	}
	return diffs, labelingEnabled, totalLabels, largestLabel, nil
}

// neighbourCount returns how many of a pixel's up/down/left/right (and,
// for 8-connectivity, diagonal) neighbours are non-zero.
func neighbourCount(img []byte, w, h, x, y, connectivity int) int {
	count := 0
	offsets4 := [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}
	offsets8 := [8][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}, {-1, -1}, {1, -1}, {-1, 1}, {1, 1}}
	check := func(dx, dy int) {
		nx, ny := x+dx, y+dy
		if nx < 0 || nx >= w || ny < 0 || ny >= h {
			return
		}
		if img[ny*w+nx] != 0 {
			count++
		}
	}
	if connectivity == 8 {
		for _, o := range offsets8 {
			check(o[0], o[1])
		}
	} else {
		for _, o := range offsets4 {
			check(o[0], o[1])
		}
	}
	return count
}

// neighbourCountRows is neighbourCount's row-snapshot counterpart: it
// reads the frozen {prev, cur, next} rows erode slides over instead of
// the live, already-mutating image, so an earlier pixel's erosion in
// this same pass can never corrupt a later pixel's neighbour count.
// Any of prev/next may be nil (off the top/bottom edge).
func neighbourCountRows(prev, cur, next []byte, w, x, connectivity int) int {
	count := 0
	at := func(row []byte, nx int) bool {
		if row == nil || nx < 0 || nx >= w {
			return false
		}
		return row[nx] != 0
	}
	rowFor := func(dy int) []byte {
		switch dy {
		case -1:
			return prev
		case 1:
			return next
		default:
			return cur
		}
	}
	offsets4 := [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}
	offsets8 := [8][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}, {-1, -1}, {1, -1}, {-1, 1}, {1, 1}}
	offsets := offsets4[:]
	if connectivity == 8 {
		offsets = offsets8[:]
	}
	for _, o := range offsets {
		if at(rowFor(o[1]), x+o[0]) {
			count++
		}
	}
	return count
}

// erode removes pixels whose neighbourhood is not fully set, scratch
// row-by-row using the shared 3*w buffer as a sliding window of
// {prev, cur, next} rows so the in-place image isn't read-after-write
// corrupted: neighbourCountRows consults these frozen rows, never the
// live img a prior pixel in this pass may already have zeroed.
func erode(img []byte, w, h int, scratch []byte, connectivity int) int {
	need := connectivity
	diffs := 0
	prev := scratch[0:w]
	cur := scratch[w : 2*w]
	spare := scratch[2*w : 3*w]
	for i := range prev {
		prev[i] = 0
	}
	copy(cur, img[0:w])
	for y := 0; y < h; y++ {
		var next []byte
		if y+1 < h {
			next = spare
			copy(next, img[(y+1)*w:(y+2)*w])
		}
		for x := 0; x < w; x++ {
			if cur[x] == 0 {
				continue
			}
			if neighbourCountRows(prev, cur, next, w, x, connectivity) < need {
				img[y*w+x] = 0
			} else {
				diffs++
			}
		}
		prev, cur, spare = cur, next, prev
	}
	return diffs
}

// dilate grows each non-zero pixel into its zero neighbours.
func dilate(img []byte, w, h int, scratch []byte, connectivity int) int {
	// Snapshot before mutating, since dilate must not cascade within a
	// single pass (use the pre-dilate image to decide growth).
	snap := make([]byte, len(img))
	copy(snap, img)
	diffs := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if snap[i] != 0 {
				diffs++
				continue
			}
			if neighbourCount(snap, w, h, x, y, connectivity) > 0 {
				img[i] = 0xff
				diffs++
			}
		}
	}
	return diffs
}

// label performs the two-pass connected-component flood fill.
// First pass: scanline-seed flood over non-zero,
// unvisited pixels, labels >= 2, accumulating each component's area.
// Second pass: components whose area exceeds threshold are counted
// into labelgroupMax (the source's label|0x8000 re-flood trick,
// modelled here as a side map per design note rather than
// a tagged bit); the largest component overall is remembered as
// largestLabel. labelgroupMax is what replaces the diff count once 'l'
// runs (Labeling). outLabels, if sized w*h, is used as
// the per-pixel label buffer directly (avoiding an allocation for
// callers that render it); otherwise one is allocated internally.
func label(img []byte, w, h, threshold int, outLabels []int) (labelgroupMax, totalLabels, largestLabel int, err error) {
	n := w * h
	labels := outLabels
	if len(labels) != n {
		labels = make([]int, n) // 0 = unlabeled/background.
	} else {
		for i := range labels {
			labels[i] = 0
		}
	}
	nextLabel := 2
	var stack [maxStackSegments]segment
	sp := 0
	stackFull := false

	push := func(s segment) bool {
		if sp >= len(stack) {
			return false
		}
		stack[sp] = s
		sp++
		return true
	}
	pop := func() segment {
		sp--
		return stack[sp]
	}

	areas := map[int]int{}
	largestArea := 0

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if img[i] == 0 || labels[i] != 0 {
				continue
			}
			cur := nextLabel
			nextLabel++
			area := 0
			sp = 0
			if !push(segment{y: y, xl: x, xr: x, dy: 1}) {
				stackFull = true
				continue // Stack exhausted before this component even started.
			}
			for sp > 0 {
				s := pop()
				// Scan the seed row outward from xl..xr to the full run.
				xl, xr := s.xl, s.xr
				for xl > 0 && img[s.y*w+xl-1] != 0 && labels[s.y*w+xl-1] == 0 {
					xl--
				}
				for xr < w-1 && img[s.y*w+xr+1] != 0 && labels[s.y*w+xr+1] == 0 {
					xr++
				}
				for x2 := xl; x2 <= xr; x2++ {
					idx := s.y*w + x2
					if labels[idx] == 0 && img[idx] != 0 {
						labels[idx] = cur
						area++
					}
				}
				// Seed rows above and below this run.
				for _, ny := range []int{s.y - 1, s.y + 1} {
					if ny < 0 || ny >= h {
						continue
					}
					inRun := false
					for x2 := xl; x2 <= xr; x2++ {
						idx := ny*w + x2
						if img[idx] != 0 && labels[idx] == 0 {
							if !inRun {
								if !push(segment{y: ny, xl: x2, xr: x2, dy: 1}) {
									stackFull = true
									inRun = true // Avoid repeated failed pushes; best effort continues.
								} else {
									inRun = true
								}
							}
						} else {
							inRun = false
						}
					}
				}
			}
			areas[cur] = area
			if area > largestArea {
				largestArea = area
				largestLabel = cur
			}
		}
	}
	totalLabels = len(areas)
	for _, area := range areas {
		if area > threshold {
			labelgroupMax += area
		}
	}
	if stackFull {
		err = ErrStackFull
	}
	return labelgroupMax, totalLabels, largestLabel, err
}
