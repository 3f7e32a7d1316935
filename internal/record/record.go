/*
DESCRIPTION
  record.go implements the Recorder collaborator contract by adapting
  revid.Revid's existing encoder/sender chain
  (container/mts or container/flv encoding, HTTP/File/RTMP/RTP
  senders): each recordable event JPEG-encodes its frame.Image and
  writes the bytes through Revid.Write, which only accepts writes when
  Revid's input is configured as InputManual (see revid.go's Write
  method) — so Recorder configures and starts its own *revid.Revid
  with InputManual/JPEG, and the rest of the output chain (container
  encoding, senders, bitrate accounting) is revid's existing code,
  unmodified.

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package record adapts revid.Revid's container-encoding and sender
// chain to the event-stream Recorder collaborator contract a camera
// pipeline drives.
package record

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ausocean/motiond/internal/frame"
	"github.com/ausocean/motiond/revid"
	"github.com/ausocean/motiond/revid/config"
	"github.com/ausocean/utils/logging"
)

// Event is the tag a frame is pushed to the recorder under.
type Event int

const (
	FirstMotion Event = iota
	Motion
	ImageDetected
	ImagemDetected
	ImageSnapshot
	ImagePreview
	Timelapse
	TimelapseEnd
	FFmpegPut
	Stream
	Image
	Imagem
	CameraLost
	CameraFound
	AreaDetected
	EndMotion
)

func (e Event) String() string {
	switch e {
	case FirstMotion:
		return "FIRSTMOTION"
	case Motion:
		return "MOTION"
	case ImageDetected:
		return "IMAGE_DETECTED"
	case ImagemDetected:
		return "IMAGEM_DETECTED"
	case ImageSnapshot:
		return "IMAGE_SNAPSHOT"
	case ImagePreview:
		return "IMAGE_PREVIEW"
	case Timelapse:
		return "TIMELAPSE"
	case TimelapseEnd:
		return "TIMELAPSEEND"
	case FFmpegPut:
		return "FFMPEG_PUT"
	case Stream:
		return "STREAM"
	case Image:
		return "IMAGE"
	case Imagem:
		return "IMAGEM"
	case CameraLost:
		return "CAMERA_LOST"
	case CameraFound:
		return "CAMERA_FOUND"
	case AreaDetected:
		return "AREA_DETECTED"
	case EndMotion:
		return "ENDMOTION"
	default:
		return "UNKNOWN"
	}
}

// eventsWithFrame is the set of events that carry an Image; the rest
// (CAMERA_LOST/FOUND, ENDMOTION, TIMELAPSEEND) are notifications only.
var eventsWithFrame = map[Event]bool{
	FirstMotion: true, Motion: true, ImageDetected: true, ImagemDetected: true,
	ImageSnapshot: true, ImagePreview: true, Timelapse: true, FFmpegPut: true,
	Stream: true, Image: true, Imagem: true, AreaDetected: true,
}

// Recorder is a no-backpressure event sink. Implementations must never
// block the camera pipeline calling Push; a slow or failed write is
// logged and dropped.
type Recorder interface {
	Push(evt Event, img *frame.Image, ts frame.Timestamp) error
	Close() error
}

// RevidRecorder adapts revid.Revid. JPEGQuality controls the encode
// quality used when turning an Image into the bytes Revid.Write
// expects.
type RevidRecorder struct {
	log  logging.Logger
	r    *revid.Revid
	mu   sync.Mutex
	name func(evt Event, img *frame.Image, ts frame.Timestamp) string
}

// NewRevidRecorder configures and starts a *revid.Revid with
// InputManual and JPEG as the input codec, so that Push's JPEG-encoded
// writes flow through revid's existing lexer/encoder/sender chain.
// namer expands the filename-specifier format; see ExpandFilename.
func NewRevidRecorder(cfg config.Config, log logging.Logger, namer func(Event, *frame.Image, frame.Timestamp) string) (*RevidRecorder, error) {
	cfg.Input = config.InputManual
	cfg.InputCodec = "jpeg"
	r, err := revid.New(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("record: could not construct revid: %w", err)
	}
	if err := r.Start(); err != nil {
		return nil, fmt.Errorf("record: could not start revid: %w", err)
	}
	return &RevidRecorder{log: log, r: r, name: namer}, nil
}

// Push encodes img (if the event carries one) and writes it through
// the underlying revid instance. No back-pressure: a write error is
// logged and swallowed rather than propagated to the caller.
func (rr *RevidRecorder) Push(evt Event, img *frame.Image, ts frame.Timestamp) error {
	if !eventsWithFrame[evt] || img == nil {
		rr.log.Debug("recorder event", "event", evt.String())
		return nil
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	if rr.name != nil {
		rr.log.Debug("recorder clip name", "event", evt.String(), "name", rr.name(evt, img, ts))
	}

	buf, err := img.EncodeJPEG(85)
	if err != nil {
		rr.log.Error("recorder could not encode frame", "event", evt.String(), "error", err.Error())
		return nil
	}
	if _, err := rr.r.Write(buf); err != nil {
		rr.log.Error("recorder write failed", "event", evt.String(), "error", err.Error())
		return nil
	}
	return nil
}

// Close stops the underlying revid instance, flushing encoders and
// closing senders.
func (rr *RevidRecorder) Close() error {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.r.Stop()
	return nil
}

// ExpandFilename expands the strftime-plus-motion-specifier filename
// format. Supported specifiers: %v event number,
// %q shot, %D diffs, %N noise, %i/%J/%K/%L motion box w/h/x/y,
// %o threshold, %Q labels, %t camera id, %C user event text, %w %h
// picture dimensions, %f filename placeholder, %n sql filetype,
// %$ camera name, %fps frame rate shortcut. Long-form %{host|fps|
// dbeventid|ver} specifiers are expanded from extra, keyed by the
// bare name inside the braces.
func ExpandFilename(format string, eventNr, shot, diffs, noise int, box frame.Box, threshold, labels int, cameraID, eventText string, w, h int, sqlFiletype int, cameraName string, ts time.Time, extra map[string]string) string {
	out := ts.Format(strftimeToGo(format))
	out = strings.ReplaceAll(out, "%j", fmt.Sprintf("%03d", ts.YearDay()))
	replacements := map[string]string{
		"%v": fmt.Sprint(eventNr),
		"%q": fmt.Sprint(shot),
		"%D": fmt.Sprint(diffs),
		"%N": fmt.Sprint(noise),
		"%i": fmt.Sprint(box.Width),
		"%J": fmt.Sprint(box.Height),
		"%K": fmt.Sprint(box.X),
		"%L": fmt.Sprint(box.Y),
		"%o": fmt.Sprint(threshold),
		"%Q": fmt.Sprint(labels),
		"%t": cameraID,
		"%C": eventText,
		"%w": fmt.Sprint(w),
		"%h": fmt.Sprint(h),
		"%n": fmt.Sprint(sqlFiletype),
		"%$": cameraName,
	}
	for k, v := range replacements {
		out = strings.ReplaceAll(out, k, v)
	}
	for k, v := range extra {
		out = strings.ReplaceAll(out, "%{"+k+"}", v)
	}
	if v, ok := extra["fps"]; ok {
		out = strings.ReplaceAll(out, "%fps", v)
	}
	return out
}

// strftimeTokens maps the strftime date/time directives to Go's
// reference-time layout. Deliberately limited to tokens that don't
// collide with ExpandFilename's own motion specifiers above (%D, %N,
// %t, %h, %n, %w, ... are left untouched here and substituted
// separately by ExpandFilename, since none of those letters appear in
// Go's reference layout either). %j (day of year) isn't expressible
// in time.Format's layout language, so it is substituted separately
// too, using ts.YearDay().
var strftimeTokens = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
	'p': "PM",
	'A': "Monday",
	'a': "Mon",
	'B': "January",
	'b': "Jan",
	'Z': "MST",
	'z': "-0700",
}

// strftimeToGo translates the strftime directives in format into Go's
// reference-time layout, leaving everything else -- including
// ExpandFilename's own %-prefixed motion specifiers -- untouched, so a
// single ts.Format call produces both.
func strftimeToGo(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			c := format[i+1]
			if c == '%' {
				b.WriteByte('%')
				i++
				continue
			}
			if layout, ok := strftimeTokens[c]; ok {
				b.WriteString(layout)
				i++
				continue
			}
		}
		b.WriteByte(format[i])
	}
	return b.String()
}
