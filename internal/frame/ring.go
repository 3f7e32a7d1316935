/*
DESCRIPTION
  ring.go provides RingBuffer, the fixed-capacity FIFO of Images owned
  exclusively by a single camera pipeline thread.

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

import "fmt"

// RingBuffer is a fixed-capacity FIFO of *Image slots. Slots are owned
// exclusively by the pipeline thread that created the RingBuffer; no
// other goroutine may read or write a slot directly.
type RingBuffer struct {
	slots []*Image
	in    int // Next write index.
	out   int // Next read index.

	w, h, hw, hh int // Dimensions used to allocate fresh slots on resize.
}

// NewRingBuffer allocates a RingBuffer of size slots, each a fresh
// mid-grey Image of the given dimensions. Allocation failure here is
// fatal at init ; callers should treat an out-of-memory
// panic from append/make as a fatal init error, not attempt recovery.
func NewRingBuffer(size, w, h, hw, hh int) *RingBuffer {
	rb := &RingBuffer{w: w, h: h, hw: hw, hh: hh}
	rb.slots = make([]*Image, size)
	for i := range rb.slots {
		rb.slots[i] = NewImage(w, h, hw, hh)
	}
	return rb
}

// Size returns the ring's current capacity.
func (rb *RingBuffer) Size() int { return len(rb.slots) }

// In returns the current write cursor.
func (rb *RingBuffer) In() int { return rb.in }

// Out returns the current read cursor.
func (rb *RingBuffer) Out() int { return rb.out }

// At returns the slot at logical position i (the pipeline's own
// bookkeeping, typically rb.In() or rb.Out()).
func (rb *RingBuffer) At(i int) *Image { return rb.slots[i%len(rb.slots)] }

func (rb *RingBuffer) next(i int) int { return (i + 1) % len(rb.slots) }

// AdvanceIn advances the write cursor to a new slot and returns it. If
// the new write position collides with the read cursor, the read
// cursor is advanced too: the oldest unsaved precapture frame is
// silently dropped. This is explicit policy  — unsaved
// precapture frames are discardable.
func (rb *RingBuffer) AdvanceIn() (slot *Image, dropped bool) {
	rb.in = rb.next(rb.in)
	if rb.in == rb.out {
		rb.out = rb.next(rb.out)
		dropped = true
	}
	return rb.slots[rb.in], dropped
}

// AdvanceOut advances and returns the read cursor, for ring-consumption
// (process_image_ring).
func (rb *RingBuffer) AdvanceOut() *Image {
	rb.out = rb.next(rb.out)
	return rb.slots[rb.out]
}

// Empty reports whether there is nothing left for the consumer to
// drain; as notes, this is a structural fact (in == out),
// not a distinct flag, because the consumer walks SAVE-flagged slots.
func (rb *RingBuffer) Empty() bool { return rb.in == rb.out }

// Resize is permitted only when not currently inside an event
// (eventNr == prevEvent, passed by the caller) and the write cursor is
// at the boundary the smaller of the two sizes allows — this restricts
// resize to a quiescent boundary so there are no half-captured events
// across buffers . On success, existing unread slots are
// preserved up to min(old,new) and any new slots are fresh mid-grey
// Images.
func (rb *RingBuffer) Resize(newSize int, quiescent bool) error {
	if !quiescent {
		return fmt.Errorf("frame: cannot resize ring mid-event")
	}
	old := rb.slots
	smaller := newSize
	if len(old) < smaller {
		smaller = len(old)
	}
	// The join condition from the source: the write cursor must sit at
	// the boundary of the smaller buffer (or the ring is still empty).
	// Per  Open Questions, treat any other position as "defer
	// until next IDLE" — callers are expected to only call Resize once
	// quiescent is true, so this is a defensive check, not a retry loop.
	if rb.in != smaller-1 && smaller != 0 {
		return fmt.Errorf("frame: resize requires write cursor at ring boundary")
	}

	next := make([]*Image, newSize)
	for i := 0; i < newSize; i++ {
		if i < len(old) {
			next[i] = old[i]
		} else {
			next[i] = NewImage(rb.w, rb.h, rb.hw, rb.hh)
		}
	}
	rb.slots = next
	if rb.in >= newSize {
		rb.in = newSize - 1
	}
	if rb.out >= newSize {
		rb.out = newSize - 1
	}
	return nil
}
