/*
DESCRIPTION
  camera.go provides Pipeline, the per-camera state machine: one
  goroutine executing capture, motion detection, overlay,
  event-state-machine, and ring-consumption in a fixed per-iteration
  order, paced to a target frame rate.

  Grounded on revid.Revid's Start/Stop/Running lifecycle (revid/revid.go)
  and its processFrom goroutine-per-instance model (revid/pipeline.go),
  generalized from revid's single lex->filter->encode chain into the
  thirteen-stage capture->detect->tune->overlay->event->ring-consume
  loop describes.

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package camera implements the per-camera motion detection pipeline:
// capture, diff/despeckle/label, noise and threshold tuning, overlay,
// an event state machine, and ring-buffer consumption into a Recorder.
package camera

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ausocean/motiond/internal/capture"
	"github.com/ausocean/motiond/internal/frame"
	"github.com/ausocean/motiond/internal/record"
	"github.com/ausocean/motiond/revid/config"
	"github.com/ausocean/utils/logging"
)

// missingFramesReopenFactor scales cfg.MissingFramesTimeout (in frames)
// into stage 4's reopen-device threshold; the held-frame threshold is
// cfg.MissingFramesTimeout itself. retryDeviceEverySeconds paces
// stage 3's reopen attempts.
const (
	missingFramesReopenFactor = 4
	retryDeviceEverySeconds   = 10
)

// Pipeline is one camera's capture/detect/record state machine. It
// owns its ring buffer, reference frame, and masks exclusively; no
// other goroutine touches them .
type Pipeline struct {
	id  string
	log logging.Logger
	cfg config.Config

	cap capture.Capture
	rec record.Recorder

	ring *frame.RingBuffer
	ref  *frame.Reference

	privacyMask []byte // Optional, w*h bytes, nil if unconfigured.
	fixedMask   []byte // Optional, w*h bytes, scales DiffStandard/NoiseTune; nil if unconfigured.

	virgin []byte // Raw captured Y plane, pre-mask, scratch-sized w*h.
	vprvcy []byte // Privacy-masked copy fed to detection.

	labelImg []int // Scratch buffer for the despeckle labeling pass, w*h.

	state   eventState
	watchdog int32 // Seconds remaining; reset every iteration, decremented by the supervisor.

	snapshot  atomic.Bool
	eventStop atomic.Bool
	eventUser atomic.Bool
	finish    atomic.Bool
	restart   atomic.Bool
	pause     atomic.Bool

	shots         int
	lastFPS       int
	startupFrames int

	lastWallSecond int64 // Unix seconds; detects wall-clock rollover for stage 1/12.
	secondRolled   bool  // Set by stage 1 when this iteration crossed a wall-clock second.

	deviceClosed   bool
	lastRetryTime  time.Time
	missingFrames  int
	lostConnection atomic.Bool

	cfgSnapshot atomic.Pointer[config.Config] // Read by Config(); refreshed whenever p.cfg changes.

	streamMu  sync.Mutex
	streamJPEG []byte

	previewImage *frame.Image
	previewSet   bool

	thresholdTuneIdx int
	rollingAvgIdx    int

	lastTimelapse   time.Time
	lastParmsSecond int64
	pendingCfg      atomic.Pointer[config.Config]

	nextSmartMaskTune time.Time

	streamConsumers atomic.Int32 // Bumped/dropped by the control surface's stream endpoint.

	loopbackWriter io.Writer // Optional video-loopback sink; nil if unconfigured.

	wg      sync.WaitGroup
	stopCh  chan struct{}
	running bool
	mu      sync.Mutex
}

// New constructs a Pipeline for one camera. The ring, reference, and
// scratch buffers are allocated here — the "init phase" 's
// Lifecycle note — never on the hot path.
func New(id string, cfg config.Config, log logging.Logger, cap capture.Capture, rec record.Recorder, w, h, hw, hh int) *Pipeline {
	fps := int(cfg.FrameRate)
	if fps <= 0 {
		fps = 1
	}
	p := &Pipeline{
		id:            id,
		log:           log,
		cfg:           cfg,
		cap:           cap,
		rec:           rec,
		ring:          frame.NewRingBuffer(int(cfg.RingSize), w, h, hw, hh),
		ref:           frame.NewReference(w, h, fps),
		virgin:        make([]byte, w*h),
		vprvcy:        make([]byte, w*h),
		labelImg:      make([]int, w*h),
		startupFrames: fps, // One second's worth of startup grace.
	}
	p.privacyMask = loadMask(log, "privacy", cfg.PrivacyMaskFile, w, h)
	p.fixedMask = loadMask(log, "fixed", cfg.MaskFile, w, h)
	p.state.reset()
	p.state.eventNr = 1 // Matches motion.c's init: event_nr=1, prev_event=0.
	snap := cfg
	p.cfgSnapshot.Store(&snap)
	return p
}

// Config returns a point-in-time copy of the pipeline's current
// configuration, safe to call from any goroutine (it reads a snapshot
// refreshed at each stage-12 boundary, not the hot-path p.cfg field
// directly).
func (p *Pipeline) Config() config.Config { return *p.cfgSnapshot.Load() }

// LostConnection reports whether the capture collaborator currently
// believes the device connection is down.
func (p *Pipeline) LostConnection() bool { return p.lostConnection.Load() }

// EventState is a point-in-time snapshot of the event state machine,
// returned by EventSnapshot for the control surface's track endpoint.
type EventState struct {
	Phase   string `json:"phase"`
	EventNr int    `json:"event_nr"`
}

// EventSnapshot returns the pipeline's current event phase and number.
// Like Config, this reads fields the loop goroutine mutates; phase and
// eventNr are read without a lock, which can observe a torn update
// mid-transition (at worst a stale phase for one tick) — acceptable for
// a best-effort polling status endpoint.
func (p *Pipeline) EventSnapshot() EventState {
	return EventState{Phase: p.state.phase.String(), EventNr: p.state.eventNr}
}

// Running reports whether the pipeline's loop goroutine is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start launches the pipeline's loop goroutine.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.log.Warning("pipeline start called but already running", "id", p.id)
		return nil
	}
	p.stopCh = make(chan struct{})
	p.running = true
	p.wg.Add(1)
	go p.run()
	return nil
}

// Stop requests a graceful shutdown (equivalent to the control
// surface's "end" action plus "quit"): it sets finish and event_stop,
// waits for the current iteration to drain its event, and returns once
// the loop goroutine has exited.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.finish.Store(true)
	p.eventStop.Store(true)
	close(p.stopCh)
	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

// PetWatchdog resets the pipeline's watchdog counter to the configured
// timeout; called once per loop iteration (stage 1).
func (p *Pipeline) PetWatchdog() {
	atomic.StoreInt32(&p.watchdog, int32(p.cfg.WatchdogTimeout))
}

// DecrementWatchdog is called by the supervisor once per second; it
// returns the post-decrement value so the supervisor can compare
// against 0 and WatchdogKillTimeout.
func (p *Pipeline) DecrementWatchdog() int32 {
	return atomic.AddInt32(&p.watchdog, -1)
}

// RequestSnapshot, RequestEventStop, RequestRestart, SetPause, and
// RequestFinish are volatile control-surface-settable booleans: set at
// any time, observed by the pipeline at well-defined points in its loop.
func (p *Pipeline) RequestSnapshot()  { p.snapshot.Store(true) }
func (p *Pipeline) RequestEventStop() { p.eventStop.Store(true) }
func (p *Pipeline) RequestRestart()   { p.restart.Store(true) }
func (p *Pipeline) SetPause(v bool)   { p.pause.Store(v) }
func (p *Pipeline) RequestFinish()    { p.finish.Store(true) }

// WantsRestart reports whether the capture collaborator (or the
// control surface) has asked for the pipeline's buffers to be rebuilt.
func (p *Pipeline) WantsRestart() bool { return p.restart.Load() }

// StreamJPEG returns the most recently published JPEG for the live
// stream endpoint, copied out from under the stream mutex so the
// caller's read is always of a complete, consistent frame.
func (p *Pipeline) StreamJPEG() []byte {
	p.streamMu.Lock()
	defer p.streamMu.Unlock()
	if p.streamJPEG == nil {
		return nil
	}
	cp := make([]byte, len(p.streamJPEG))
	copy(cp, p.streamJPEG)
	return cp
}

func (p *Pipeline) publishStream(img *frame.Image) {
	buf, err := img.EncodeJPEG(75)
	if err != nil {
		p.log.Error("could not encode stream frame", "id", p.id, "error", err.Error())
		return
	}
	p.streamMu.Lock()
	p.streamJPEG = buf
	p.streamMu.Unlock()
}

// AttachStreamConsumer and DetachStreamConsumer track how many live
// viewers are attached to the motion stream endpoint, so stage 7's
// overlay pass only runs when somebody is actually watching.
func (p *Pipeline) AttachStreamConsumer() { p.streamConsumers.Add(1) }
func (p *Pipeline) DetachStreamConsumer() {
	if p.streamConsumers.Add(-1) < 0 {
		p.streamConsumers.Store(0)
	}
}

// SetLoopbackWriter configures (or clears, with nil) the video-loopback
// sink stage 11 of the loop writes each frame to.
func (p *Pipeline) SetLoopbackWriter(w io.Writer) { p.loopbackWriter = w }

func (p *Pipeline) String() string { return fmt.Sprintf("camera[%s]", p.id) }
