/*
DESCRIPTION
  state.go implements the event state machine:
  IDLE -> TRIGGERING -> ACTIVE -> POSTCAP -> ENDING, driven once per
  processing frame from stage 8 of the pipeline loop.

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

// phase is the event state machine's current phase.
type phase int

const (
	idle phase = iota
	triggering
	active
	postcap
	ending
)

func (ph phase) String() string {
	switch ph {
	case idle:
		return "IDLE"
	case triggering:
		return "TRIGGERING"
	case active:
		return "ACTIVE"
	case postcap:
		return "POSTCAP"
	case ending:
		return "ENDING"
	default:
		return "UNKNOWN"
	}
}

// eventState is the EventState data model 
type eventState struct {
	phase phase

	eventNr      int
	prevEvent    int
	eventTime    time.Time
	lastSaveTime time.Time

	detecting bool

	postcapRemaining       int
	movedCooldown          int
	lightswitchFrameCounter int

	previousDiffs    int
	previousLocation frame.Box

	eventText string

	previewBuffered bool
}

func (es *eventState) reset() {
	*es = eventState{phase: idle, prevEvent: es.eventNr}
}

// quiescent reports whether the ring may be safely resized: the
// pipeline is not mid-event . Phase idle is the
// authoritative signal; original_source/src/motion.c's event_nr/
// prev_event pair serves the same purpose there but flips meaning
// mid-lifecycle (synced while an event is open, desynced once it
// ends), so it is not reused here as a second condition.
func (es *eventState) quiescent() bool { return es.phase == idle }

// stepResult communicates what the event step decided for this
// processing frame, so the loop's ring-consumption and recorder
// pushes can react without re-deriving the transition.
type stepResult struct {
	enteredActive bool
	endedEvent    bool
}

// step executes stage 8 (Actions) for one processing frame: current is
// the just-captured, just-detected ring slot; recentMotionFrames is
// the count of MOTION-flagged frames among the most recent
// minimumMotionFrames ring positions (computed by the caller, which
// owns ring walking).
func (p *Pipeline) step(current *frame.Image, now time.Time, recentMotionFrames int) stepResult {
	es := &p.state
	var res stepResult

	switch {
	case es.phase == idle && p.cfg.EmulateMotion && p.startupFrames <= 0:
		es.phase = triggering
		current.Flags |= frame.FlagMotion
		es.phase = active
		current.Flags |= frame.FlagTrigger | frame.FlagSave
		p.markRingSaved()
		es.postcapRemaining = int(p.cfg.PostCapture)
		res.enteredActive = p.enterActive(current, now)

	case es.phase == idle && current.Flags.Has(frame.FlagMotion):
		if recentMotionFrames >= int(p.cfg.MinimumMotionFrames) {
			es.phase = active
			current.Flags |= frame.FlagTrigger | frame.FlagSave
			p.markRingSaved()
			es.postcapRemaining = int(p.cfg.PostCapture)
			res.enteredActive = p.enterActive(current, now)
		} else if es.postcapRemaining > 0 {
			es.phase = postcap
			current.Flags |= frame.FlagPostcap | frame.FlagSave
			es.postcapRemaining--
		} else {
			current.Flags |= frame.FlagPrecap
		}

	case es.phase == active && current.Flags.Has(frame.FlagMotion):
		// Every frame captured during an active event is recorded, not
		// just the one that triggered it ( scenario 2: "IMAGE_
		// DETECTED emitted for all 10 motion frames").
		current.Flags |= frame.FlagSave
		p.pushRecorderEvent(record.Motion, current, now)
		if p.shots < int(p.cfg.FrameRate) {
			p.pushRecorderEvent(record.ImagemDetected, current, now)
		}

	case es.phase == active && !current.Flags.Has(frame.FlagMotion):
		if es.postcapRemaining > 0 {
			es.phase = postcap
			current.Flags |= frame.FlagPostcap | frame.FlagSave
			es.postcapRemaining--
		} else {
			// No postcap frames configured (or already spent): the
			// event ends here rather than silently falling back to
			// IDLE, so ENDMOTION/event_nr bookkeeping still runs
			// ("exactly one ENDMOTION follows the last
			// IMAGE_DETECTED" invariant).
			p.endEvent(now)
			res.endedEvent = true
		}
		if p.cfg.EventGap == 0 && es.detecting {
			es.detecting = false
			p.eventStop.Store(true)
		}

	case es.phase == postcap:
		if current.Flags.Has(frame.FlagMotion) {
			es.phase = active
		} else if es.postcapRemaining > 0 {
			current.Flags |= frame.FlagPostcap | frame.FlagSave
			es.postcapRemaining--
		} else {
			p.endEvent(now)
			res.endedEvent = true
		}
	}

	gapExpired := es.phase != idle && !es.eventTime.IsZero() &&
		now.Sub(es.lastSaveTime) > time.Duration(p.cfg.EventGap)*time.Second
	if es.phase != idle && (gapExpired || p.eventStop.Load()) {
		p.endEvent(now)
		res.endedEvent = true
	}

	if current.Flags.Has(frame.FlagSave) || current.Flags.Has(frame.FlagTrigger) {
		es.lastSaveTime = now
	}

	return res
}

// enterActive runs the "On entering ACTIVE for a new event" actions:
// sync prev_event to event_nr (endEvent advances event_nr when the
// event closes), record the start time, emit FIRSTMOTION
// against the earliest SAVE-flagged ring frame, and log the start.
func (p *Pipeline) enterActive(current *frame.Image, now time.Time) bool {
	es := &p.state
	es.prevEvent = es.eventNr
	es.eventTime = now
	es.detecting = true
	es.eventText = formatEventText(now, es.eventNr)

	first := p.earliestSavedSlot()
	if first != nil {
		p.pushRecorderEvent(record.FirstMotion, first, now)
	}
	p.log.Info("motion detected, starting event", "id", p.id, "event", es.eventNr)
	return true
}

// endEvent runs the ENDING transition: flush the ring, emit any
// buffered preview once, emit ENDMOTION, and return to IDLE.
func (p *Pipeline) endEvent(now time.Time) {
	es := &p.state
	es.phase = ending
	p.flushRing(now)
	if p.previewSet {
		p.pushRecorderEvent(record.ImagePreview, p.previewImage, now)
		p.previewSet = false
		p.previewImage = nil
	}
	p.pushRecorderEvent(record.EndMotion, nil, now)

	es.postcapRemaining = 0
	es.eventText = ""
	es.detecting = false
	es.eventNr++
	es.phase = idle
	p.eventStop.Store(false)
}

// formatEventText builds the %C event-text substitution string used
// by recorder filename expansion, matching %C specifier:
// a short human-readable tag for "this event", not a full sentence.
func formatEventText(t time.Time, eventNr int) string {
	return t.Format("2006-01-02_15-04-05")
}
