/*
DESCRIPTION
  loop.go implements the thirteen-stage per-iteration pipeline loop:
  prepare, reset images, retry, capture, detection,
  tuning, overlay, actions, setup log, snapshot/timelapse, loopback,
  parms update, and frame timing, executed in that fixed order every
  iteration.

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

	avcapture "github.com/ausocean/motiond/internal/capture"
	"github.com/ausocean/motiond/internal/frame"
	"github.com/ausocean/motiond/internal/motionalg"
	"github.com/ausocean/motiond/internal/overlay"
	"github.com/ausocean/motiond/internal/record"
	"github.com/ausocean/motiond/revid/config"
)

func (p *Pipeline) run() {
	defer p.wg.Done()
	prevNow := time.Now()

	for {
		select {
		case <-p.stopCh:
			if p.state.phase != idle {
				p.endEvent(time.Now())
			}
			return
		default:
		}
		if p.finish.Load() && p.state.phase == idle {
			return
		}

		now := time.Now()
		elapsed := now.Sub(prevNow)

		processing := p.prepare(now)
		current, dropped := p.resetImage(processing)
		if dropped {
			p.log.Debug("ring overrun, dropped oldest precapture frame", "id", p.id)
		}

		p.retryDevice(now)

		outcome := p.capture(current)

		if processing && int(p.cfg.Threshold) > 0 && !p.pause.Load() {
			p.detect(current, outcome)
		}

		if processing {
			p.tune(current, now)
		}

		if p.cfg.SetupMode || p.streamActive() {
			p.overlay(current)
		}

		recentMotion := 0
		if processing {
			// current.Flags's MOTION bit must be set before
			// recentMotionFrames walks the ring, and must be set
			// regardless of the event phase — stage 8's ACTIVE-phase
			// branches read it too ("ACTIVE with
			// motion"/"ACTIVE with no motion" transitions).
			if current.Diffs > int(p.cfg.Threshold) && (p.cfg.ThresholdMaximum == 0 || current.Diffs < int(p.cfg.ThresholdMaximum)) {
				current.Flags |= frame.FlagMotion
			}
			recentMotion = p.recentMotionFrames()
			p.step(current, now, recentMotion)
		}

		if p.cfg.SetupMode {
			p.log.Info("setup", "id", p.id, "diffs", current.Diffs, "labels", current.TotalLabels,
				"noise", p.ref.Noise, "threshold", p.ref.Threshold)
		}

		p.snapshotAndTimelapse(current, now)

		p.loopback(current)

		p.drainRing(now, processImageRingLimit)

		p.parmsUpdate(now)

		p.frameTiming(now, elapsed)

		prevNow = now
	}
}

// prepare is stage 1: pace detection to roughly 1/3 the capture rate
// once capture exceeds 5 fps (CPU-bound safeguard), track the
// wall-clock second rollover to derive last_fps, and pet the watchdog.
func (p *Pipeline) prepare(now time.Time) (processing bool) {
	fps := int(p.cfg.FrameRate)
	if fps > 5 {
		processing = p.shots%3 == 0
	} else {
		processing = true
	}

	sec := now.Unix()
	p.secondRolled = p.lastWallSecond != 0 && sec != p.lastWallSecond
	if p.secondRolled {
		p.lastFPS = p.shots + 1
		p.shots = -1
	}
	p.lastWallSecond = sec
	p.shots++
	p.startupFrames--

	p.PetWatchdog()
	return processing
}

// resetImage is stage 2: advance the ring write cursor (dropping the
// oldest unsaved precapture frame on collision) and either clear the
// new slot's metadata (processing frame) or carry the previous slot's
// metadata forward so the consumer sees continuity.
func (p *Pipeline) resetImage(processing bool) (current *frame.Image, dropped bool) {
	prevOut := p.ring.At(p.ring.In())
	slot, dropped := p.ring.AdvanceIn()
	if processing {
		slot.Reset()
	} else {
		slot.CarryForward(prevOut)
	}
	return slot, dropped
}

// retryDevice is stage 3: every retryDeviceEverySeconds on the second
// boundary, attempt to reopen a closed device.
func (p *Pipeline) retryDevice(now time.Time) {
	if !p.deviceClosed {
		return
	}
	if now.Sub(p.lastRetryTime) < retryDeviceEverySeconds*time.Second {
		return
	}
	p.lastRetryTime = now
	if _, _, _, _, err := p.cap.Open(p.cfg); err != nil {
		p.log.Warning("device reopen failed", "id", p.id, "error", err.Error())
		return
	}
	p.deviceClosed = false
	p.lostConnection.Store(false)
}

// capture is stage 4.
func (p *Pipeline) capture(slot *frame.Image) avcapture.Outcome {
	outcome, err := p.cap.Next(slot)
	switch outcome {
	case avcapture.OK:
		copy(p.virgin, slot.YPlane())
		p.applyPrivacyMask(slot)
		copy(p.vprvcy, slot.YPlane())
		p.missingFrames = 0
		if p.lostConnection.Load() {
			p.lostConnection.Store(false)
			p.pushRecorderEvent(record.CameraFound, slot, time.Now())
		}
	case avcapture.SizeChanged:
		p.restart.Store(true)
	case avcapture.NonFatal:
		p.missingFrames++
		held := int(p.cfg.MissingFramesTimeout)
		if p.missingFrames < held {
			copy(slot.YPlane(), p.vprvcy)
		} else {
			fillGrey(slot.YPlane())
			if !p.lostConnection.Load() {
				p.lostConnection.Store(true)
				p.pushRecorderEvent(record.CameraLost, slot, time.Now())
			}
			if p.missingFrames >= held*missingFramesReopenFactor {
				p.deviceClosed = true
				_ = p.cap.Close()
			}
		}
		if err != nil {
			p.log.Debug("capture non-fatal error", "id", p.id, "error", err.Error())
		}
	case avcapture.Fatal:
		_ = p.cap.Close()
		p.deviceClosed = true
		if !p.lostConnection.Load() {
			p.lostConnection.Store(true)
			p.pushRecorderEvent(record.CameraLost, slot, time.Now())
		}
		if err != nil {
			p.log.Error("capture fatal error", "id", p.id, "error", err.Error())
		}
	}
	return outcome
}

func fillGrey(plane []byte) {
	for i := range plane {
		plane[i] = 0x80
	}
}

// applyPrivacyMask zeroes out masked regions of the just-captured
// frame in place, per Masks data model.
func (p *Pipeline) applyPrivacyMask(slot *frame.Image) {
	if p.privacyMask == nil {
		return
	}
	y := slot.YPlane()
	for i, m := range p.privacyMask {
		if i >= len(y) {
			break
		}
		if m == 0 {
			y[i] = 0
		}
	}
}

// detect is stage 5.
func (p *Pipeline) detect(current *frame.Image, outcome avcapture.Outcome) {
	w, h := current.Width, current.Height
	motionSize := w * h
	detectingOrSetup := p.state.detecting || p.cfg.SetupMode

	diffs := motionalg.Diff(p.ref.Ref, p.vprvcy, w, h, p.fixedMask, p.ref.SmartMaskFinal, p.ref.Noise, p.ref.Threshold, current.YPlane(), detectingOrSetup, p.ref.SmartMaskBuffer, p.state.detecting)
	current.Diffs = diffs

	if p.cfg.LightswitchPercent > 1 && motionalg.Lightswitch(diffs, motionSize, int(p.cfg.LightswitchPercent)) {
		current.Diffs = 0
		p.ref.Reset(p.virgin)
		p.state.lightswitchFrameCounter = int(p.cfg.LightswitchFrames)
	}

	if p.cfg.RoundRobinSwitchfilter && current.Diffs > int(p.ref.Threshold) {
		current.Diffs = motionalg.Switchfilter(current.YPlane(), w, h, current.Diffs)
	}

	if p.cfg.DespeckleFilter != "" {
		newDiffs, labeling, totalLabels, largestLabel, err := motionalg.Despeckle(current.YPlane(), w, h, current.Diffs, int(p.ref.Threshold), p.cfg.DespeckleFilter, p.labelImg)
		if err != nil {
			p.log.Warning("despeckle failed", "id", p.id, "error", err.Error())
		} else {
			current.Diffs = newDiffs
			if labeling {
				current.TotalLabels = totalLabels
				current.LargestLabel = largestLabel
			}
		}
	}

	if p.state.movedCooldown > 0 {
		p.state.movedCooldown--
		current.Diffs = 0
	}
}

// tune is stage 6.
func (p *Pipeline) tune(current *frame.Image, now time.Time) {
	if p.secondRolled {
		p.ref.Noise = motionalg.NoiseTune(p.ref.Ref, p.virgin, p.fixedMask, p.ref.SmartMaskFinal, p.ref.Noise)
	}
	p.ref.Threshold = motionalg.ThresholdTune(p.ref.DiffsLast[:], &p.thresholdTuneIdx, current.Diffs, p.ref.Threshold, p.ref.ThresholdMaximum, int(p.cfg.ThresholdTuneDivisor), p.state.phase == active)

	p.tuneSmartMask(now)

	if current.Diffs > p.ref.Threshold && (p.ref.ThresholdMaximum == 0 || current.Diffs < p.ref.ThresholdMaximum) {
		box, ok := motionalg.CentroidBBox(current.Width, current.Height, func(i int) bool { return current.YPlane()[i] != 0 })
		if ok {
			current.Location = frame.Box{MinX: box.MinX, MinY: box.MinY, MaxX: box.MaxX, MaxY: box.MaxY, X: box.X, Y: box.Y,
				Width: box.MaxX - box.MinX, Height: box.MaxY - box.MinY}
			current.CentDist = motionalg.CentreDistance(current.Width, current.Height, box.X, box.Y)

			if p.microLightswitch(current) {
				current.Diffs = 0
				p.ref.Reset(p.virgin)
			}
		}
	}

	fps := int(p.cfg.FrameRate)
	motionalg.ReferenceUpdate(p.ref.Ref, p.ref.RefDyn, p.virgin, current.YPlane(), int(p.cfg.AcceptStaticObjectTime), fps, motionalg.ReferenceUpdateAdaptive)

	p.state.previousDiffs = current.Diffs
	p.state.previousLocation = current.Location
}

// smartMaskTuneIntervalSeconds derives "every
// 5*(11-smart_mask_speed) seconds" cadence from the configured speed.
func smartMaskTuneIntervalSeconds(speed uint) int {
	if speed == 0 || speed > 10 {
		speed = motionalg.SmartMaskSpeed
	}
	return 5 * (11 - int(speed))
}

// tuneSmartMask runs the periodic smart mask derivation: smartmask_buffer
// accumulates inside detect (DiffStandard's feed, only while an event
// is open), and on this interval the decaying smart mask score absorbs
// the buffer and a fresh 0/255 final mask is derived and eroded. Guards against an unconfigured (zero) speed, which config
// validation otherwise corrects to the default before the pipeline
// ever runs.
func (p *Pipeline) tuneSmartMask(now time.Time) {
	if p.cfg.SmartMaskSpeed == 0 {
		return
	}
	if now.Before(p.nextSmartMaskTune) {
		return
	}
	interval := smartMaskTuneIntervalSeconds(p.cfg.SmartMaskSpeed)
	p.nextSmartMaskTune = now.Add(time.Duration(interval) * time.Second)

	const smartMaskThreshold = 20 // fixed derivation threshold.
	fps := int(p.cfg.FrameRate)
	if fps <= 0 {
		fps = 1
	}
	sensitivity := fps * (11 - int(p.cfg.SmartMaskSpeed))
	p.ref.SmartMaskFinal = motionalg.SmartMaskTune(p.ref.SmartMask, p.ref.SmartMaskBuffer, p.ref.Width, p.ref.Height, sensitivity, smartMaskThreshold)
}

// microLightswitch implements  stage 6's heuristic: two
// consecutive frames with near-identical diffs and a centroid within
// 1/150 of frame size are treated as a lightswitch rather than motion.
func (p *Pipeline) microLightswitch(current *frame.Image) bool {
	if p.state.previousDiffs == 0 {
		return false
	}
	diffDelta := abs(current.Diffs - p.state.previousDiffs)
	if diffDelta > p.state.previousDiffs/20 {
		return false
	}
	tolerance := (current.Width + current.Height) / 150
	if tolerance < 1 {
		tolerance = 1
	}
	dx := abs(current.Location.X - p.state.previousLocation.X)
	dy := abs(current.Location.Y - p.state.previousLocation.Y)
	return dx <= tolerance && dy <= tolerance
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// overlay is stage 7.
func (p *Pipeline) overlay(current *frame.Image) {
	if current.Diffs > 0 || current.Location != (frame.Box{}) {
		style := overlay.Box
		overlay.DrawLocation(current, current.Location, style, overlay.ModeDebug)
	}
	overlay.DrawPrivacyMask(current, p.privacyMask)
	overlay.DrawSmartMask(current, p.ref.SmartMaskFinal)
	overlay.DrawLargestLabel(current, p.labelImg, current.LargestLabel)
	if p.state.eventText != "" {
		overlay.DrawText(current, 4, current.Height-4, p.state.eventText, 1)
	}
}

// streamActive reports whether any motion-stream consumer is currently
// attached; internal/control's stream endpoint flips this.
func (p *Pipeline) streamActive() bool { return p.streamConsumers.Load() > 0 }

// snapshotAndTimelapse is stage 10.
func (p *Pipeline) snapshotAndTimelapse(current *frame.Image, now time.Time) {
	if p.snapshot.CompareAndSwap(true, false) {
		p.pushRecorderEvent(record.ImageSnapshot, current, now)
	}
	if p.cfg.SnapshotInterval > 0 {
		if p.timelapseDue(now) {
			p.pushRecorderEvent(record.Timelapse, current, now)
		}
		if p.timelapseRolledOver(now) {
			p.pushRecorderEvent(record.TimelapseEnd, current, now)
		}
	}
}

func (p *Pipeline) timelapseDue(now time.Time) bool {
	if p.lastTimelapse.IsZero() {
		p.lastTimelapse = now
		return true
	}
	due := now.Sub(p.lastTimelapse) >= time.Duration(p.cfg.SnapshotInterval)*time.Second
	if due {
		p.lastTimelapse = now
	}
	return due
}

// timelapseRolledOver reports whether the configured timelapse
// boundary (hourly/daily/weekly/monthly) has just been crossed.
func (p *Pipeline) timelapseRolledOver(now time.Time) bool {
	switch p.cfg.TimelapseMode {
	case "hourly":
		return now.Minute() == 0 && now.Second() == 0
	case "daily":
		return now.Hour() == 0 && now.Minute() == 0 && now.Second() == 0
	case "weekly-sunday":
		return now.Weekday().String() == "Sunday" && now.Hour() == 0 && now.Minute() == 0 && now.Second() == 0
	case "weekly-monday":
		return now.Weekday().String() == "Monday" && now.Hour() == 0 && now.Minute() == 0 && now.Second() == 0
	case "monthly":
		return now.Day() == 1 && now.Hour() == 0 && now.Minute() == 0 && now.Second() == 0
	default:
		return false
	}
}

// loopback is stage 11: feed the current image to a video-loopback
// collaborator, if configured. No loopback device is wired into this
// tree (see DESIGN.md); this is the hook a v4l2loopback writer would
// attach to.
func (p *Pipeline) loopback(current *frame.Image) {
	if p.loopbackWriter == nil {
		return
	}
	if _, err := p.loopbackWriter.Write(current.ImageNorm); err != nil {
		p.log.Warning("loopback write failed", "id", p.id, "error", err.Error())
	}
}

// parmsUpdate is stage 12: once per wall-clock second, apply any
// configuration the control surface has queued since the last
// boundary, so changes are never observed mid-frame .
func (p *Pipeline) parmsUpdate(now time.Time) {
	if now.Unix() == p.lastParmsSecond {
		return
	}
	p.lastParmsSecond = now.Unix()

	pending := p.pendingCfg.Swap(nil)
	if pending == nil {
		return
	}
	p.cfg.PictureOutput = pending.PictureOutput
	p.cfg.Threshold = pending.Threshold
	p.cfg.ThresholdMaximum = pending.ThresholdMaximum
	p.cfg.NoiseLevel = pending.NoiseLevel
	p.cfg.SmartMaskSpeed = pending.SmartMaskSpeed
	p.cfg.SetupMode = pending.SetupMode

	if pending.RingSize != 0 && pending.RingSize != p.cfg.RingSize {
		if !p.resizeRing(pending.RingSize) {
			// Re-queue for the next boundary unless a newer update arrived.
			p.pendingCfg.CompareAndSwap(nil, pending)
		}
	}

	snap := p.cfg
	p.cfgSnapshot.Store(&snap)
}

// resizeRing applies a config-requested ring size change at a quiescent
// boundary and reports whether it took effect; when Resize refuses,
// parmsUpdate keeps the request queued and retries it at each later
// stage-12 boundary.
func (p *Pipeline) resizeRing(newSize uint) bool {
	if err := p.ring.Resize(int(newSize), p.state.quiescent()); err != nil {
		p.log.Debug("ring resize deferred", "id", p.id, "error", err.Error())
		return false
	}
	p.cfg.RingSize = newSize
	return true
}

// UpdateConfig queues a configuration change to be applied at the next
// stage-12 boundary.
func (p *Pipeline) UpdateConfig(cfg config.Config) { p.pendingCfg.Store(&cfg) }

// frameTiming is stage 13: push the observed interval onto the rolling
// average, then sleep to pace toward 1/framerate, correcting for the
// rolling average's drift from target.
func (p *Pipeline) frameTiming(now time.Time, elapsed time.Duration) {
	hist := p.ref.RollingAverageData
	if len(hist) > 0 {
		p.rollingAvgIdx = (p.rollingAvgIdx + 1) % len(hist)
		hist[p.rollingAvgIdx] = elapsed.Nanoseconds()
	}
	var sum int64
	for _, v := range hist {
		sum += v
	}
	avg := time.Duration(0)
	if len(hist) > 0 {
		avg = time.Duration(sum / int64(len(hist)))
	}

	fps := int(p.cfg.FrameRate)
	if fps <= 0 {
		fps = 1
	}
	target := time.Second / time.Duration(fps)

	sleep := target - elapsed - (avg - target)
	if sleep < 0 {
		sleep = 0
	}
	if sleep > time.Second {
		sleep = time.Second
	}
	time.Sleep(sleep)
}
