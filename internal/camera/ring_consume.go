/*
DESCRIPTION
  ring_consume.go implements "Ring consumption":
  draining SAVE-and-not-SAVED frames from the ring into the Recorder
  collaborator, at most two per iteration in steady state and the
  entire remaining ring on ENDING.

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package camera

import (
	"time"

	"github.com/ausocean/motiond/internal/frame"
	"github.com/ausocean/motiond/internal/record"
)

// processImageRingLimit is the per-iteration drain cap of
// process_image_ring(2).
const processImageRingLimit = 2

// markRingSaved marks every current ring slot SAVE, used when an event
// newly enters ACTIVE so the precapture frames already sitting in the
// ring are recruited into the event .
func (p *Pipeline) markRingSaved() {
	for i := 0; i < p.ring.Size(); i++ {
		p.ring.At(i).Flags |= frame.FlagSave
	}
}

// earliestSavedSlot walks the ring from the oldest unread position
// forward and returns the first SAVE-flagged, not-yet-SAVED slot, used
// by enterActive to anchor FIRSTMOTION at the right timestamp.
func (p *Pipeline) earliestSavedSlot() *frame.Image {
	n := p.ring.Size()
	for i := 0; i < n; i++ {
		img := p.ring.At((p.ring.Out() + i) % n)
		if img.Flags.Has(frame.FlagSave) && !img.Flags.Has(frame.FlagSaved) {
			return img
		}
	}
	return nil
}

// recentMotionFrames counts MOTION-flagged slots among the most recent
// cfg.MinimumMotionFrames ring positions up to and including the write
// cursor, used by stage 8 to decide whether motion has persisted long
// enough to trigger an event .
func (p *Pipeline) recentMotionFrames() int {
	n := p.ring.Size()
	window := int(p.cfg.MinimumMotionFrames)
	if window > n {
		window = n
	}
	count := 0
	for i := 0; i < window; i++ {
		idx := p.ring.In() - i
		img := p.ring.At(((idx % n) + n) % n)
		if img.Flags.Has(frame.FlagMotion) {
			count++
		}
	}
	return count
}

// drainRing consumes up to limit SAVE-and-not-SAVED slots (or all of
// them, when limit < 0, for the ENDING flush), emitting IMAGE_DETECTED
// for each and filling in skipped frames up to movie_fps-last_shot-1
// with the previous encoded frame so the recorded movie stays
// real-time, 
func (p *Pipeline) drainRing(now time.Time, limit int) {
	n := p.ring.Size()
	drained := 0
	for i := 0; i < n; i++ {
		if limit >= 0 && drained >= limit {
			return
		}
		img := p.ring.At((p.ring.Out() + i) % n)
		if !img.Flags.Has(frame.FlagSave) || img.Flags.Has(frame.FlagSaved) {
			continue
		}

		p.pushRecorderEvent(record.ImageDetected, img, now)
		if img.Shot == 0 && p.rec != nil {
			// Fill skipped frames so the encoded movie stays real-time;
			// revid's own sender/encoder chain interpolates from the
			// last pushed frame, so a repeat push is sufficient here.
			missed := int(p.cfg.FrameRate) - p.lastFPS - 1
			for j := 0; j < missed; j++ {
				p.pushRecorderEvent(record.FFmpegPut, img, now)
			}
		}
		img.Flags |= frame.FlagSaved

		if img.Flags.Has(frame.FlagMotion) && (p.cfg.PictureOutput == "best" || p.cfg.PictureOutput == "centre") {
			p.updatePreview(img)
		}
		drained++
	}
}

// flushRing drains the entire ring (IMAGE_BUFFER_FLUSH),
// used once when an event transitions to ENDING.
func (p *Pipeline) flushRing(now time.Time) { p.drainRing(now, -1) }

// updatePreview tracks the best-so-far preview image per
// cfg.PictureOutput: "best" keeps the highest-diffs frame, "centre"
// keeps the frame whose motion centroid is nearest the image centre.
func (p *Pipeline) updatePreview(img *frame.Image) {
	if !p.previewSet {
		p.previewImage, p.previewSet = img, true
		return
	}
	switch p.cfg.PictureOutput {
	case "best":
		if img.Diffs > p.previewImage.Diffs {
			p.previewImage = img
		}
	case "centre":
		if img.CentDist < p.previewImage.CentDist {
			p.previewImage = img
		}
	}
}

// pushRecorderEvent forwards one event to the Recorder collaborator,
// logging (but not propagating) any error per "Recorder /
// DB write failure" policy.
func (p *Pipeline) pushRecorderEvent(evt record.Event, img *frame.Image, now time.Time) {
	if p.rec == nil {
		return
	}
	ts := frame.Timestamp{Monotonic: now}
	if img != nil {
		ts = img.Timestamp
	}
	if err := p.rec.Push(evt, img, ts); err != nil {
		p.log.Error("recorder push failed", "id", p.id, "event", evt.String(), "error", err.Error())
	}
}
