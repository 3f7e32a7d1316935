/*
DESCRIPTION
  capture.go defines the Capture collaborator contract 
  and an adapter implementation built on device.AVDevice
  (webcam/file/raspistill/raspivid/geovision) plus codec/jpeg's stream
  lexer.

  device.AVDevice is a raw io.Reader over an MJPEG byte stream (ffmpeg
  piping a webcam, a still-image loop, a libcamera process, an RTSP
  camera); it has no notion of "the next decoded frame". codec/jpeg.Lex
  already knows how to split such a stream into discrete JPEG frame
  writes (see codec/jpeg/lex.go), so Adapter runs Lex in a background
  goroutine over the device and decodes each frame with the standard
  library's image/jpeg (there is no JPEG *decoder* anywhere else in the
  reference pack, only codec/jpeg's RTP payload encoder — see
  DESIGN.md).

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package capture adapts device.AVDevice backends to the frame-filling
// Capture collaborator contract a camera pipeline drives.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"sync"

	"github.com/ausocean/motiond/device"
	"github.com/ausocean/motiond/revid/config"
	avjpeg "github.com/ausocean/motiond/codec/jpeg"
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/motiond/internal/frame"
)

// Outcome is the three-and-a-bit-way result of a Next call.
type Outcome int

const (
	OK Outcome = iota
	NonFatal
	Fatal
	SizeChanged
)

// Capture is the collaborator contract describes: open a
// device, repeatedly fill the next ring slot, close.
type Capture interface {
	Open(cfg config.Config) (width, height, highWidth, highHeight int, err error)
	Next(slot *frame.Image) (Outcome, error)
	Close() error
}

// Adapter implements Capture over a device.AVDevice, decoding the
// MJPEG/H264-via-ffmpeg byte stream the device emits into YUV 4:2:0
// planar frames.
type Adapter struct {
	log logging.Logger
	dev device.AVDevice

	width, height int

	frameCh chan []byte
	errCh   chan error
	lexDone chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewAdapter wraps an already-constructed device.AVDevice (the caller
// picks webcam/file/raspistill/raspivid/geovision per configuration;
// internal/capture doesn't duplicate that selection logic — it already
// lives in cmd/motiond per the device-selection table).
func NewAdapter(dev device.AVDevice, log logging.Logger) *Adapter {
	return &Adapter{dev: dev, log: log}
}

// Open starts the underlying device and the background JPEG lexer.
// Width/height are taken from cfg, rounded up to a multiple of 8 and
// clamped to >= 64 as requires; the pipeline is expected to
// have already done this rounding, but Adapter enforces it defensively
// since it owns the actual device.Set call.
func (a *Adapter) Open(cfg config.Config) (width, height, highWidth, highHeight int, err error) {
	w, h := roundUp8(int(cfg.Width)), roundUp8(int(cfg.Height))
	if w < 64 {
		w = 64
	}
	if h < 64 {
		h = 64
	}
	cfg.Width, cfg.Height = uint(w), uint(h)

	if err := a.dev.Set(cfg); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("capture: could not configure device: %w", err)
	}
	if err := a.dev.Start(); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("capture: could not start device: %w", err)
	}

	a.width, a.height = w, h
	a.frameCh = make(chan []byte, 2)
	a.errCh = make(chan error, 1)
	a.lexDone = make(chan struct{})

	go a.lex()

	return w, h, 0, 0, nil
}

// frameWriter adapts the channel-of-complete-frames protocol Adapter
// wants to the io.Writer codec/jpeg.Lex expects: one Write call per
// complete JPEG frame.
type frameWriter struct{ ch chan<- []byte }

func (f frameWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case f.ch <- buf:
	default:
		// Consumer is behind; drop the oldest-pending frame rather than
		// block the lexer (precapture frames are discardable, ).
		select {
		case <-f.ch:
		default:
		}
		f.ch <- buf
	}
	return len(p), nil
}

func (a *Adapter) lex() {
	defer close(a.lexDone)
	ch := a.frameCh
	err := avjpeg.Lex(frameWriter{ch}, a.dev, 0)
	if err != nil && err != io.EOF {
		select {
		case a.errCh <- err:
		default:
		}
	}
	close(ch) // Lex has returned, so nothing writes to ch any more.
}

// Next blocks for the next decoded frame and fills slot's normal-
// resolution plane. It reports NonFatal if the lexer produced a
// malformed frame (decode error) and Fatal if the underlying device
// has terminated the lex goroutine.
func (a *Adapter) Next(slot *frame.Image) (Outcome, error) {
	select {
	case raw, ok := <-a.frameCh:
		if !ok {
			return Fatal, fmt.Errorf("capture: device stream closed")
		}
		img, err := jpeg.Decode(bytes.NewReader(raw))
		if err != nil {
			return NonFatal, fmt.Errorf("capture: malformed frame: %w", err)
		}
		yuv, ok := img.(*image.YCbCr)
		if !ok {
			return NonFatal, fmt.Errorf("capture: decoded frame is not 4:2:0 YCbCr")
		}
		if yuv.SubsampleRatio != image.YCbCrSubsampleRatio420 {
			return NonFatal, fmt.Errorf("capture: expected 4:2:0 subsampling, got %v", yuv.SubsampleRatio)
		}
		w, h := yuv.Rect.Dx(), yuv.Rect.Dy()
		if w != a.width || h != a.height {
			a.width, a.height = w, h
			return SizeChanged, nil
		}
		copyPlane(slot.YPlane(), yuv.Y, yuv.YStride, w, h)
		copyPlane(slot.UPlane(), yuv.Cb, yuv.CStride, w/2, h/2)
		copyPlane(slot.VPlane(), yuv.Cr, yuv.CStride, w/2, h/2)
		return OK, nil
	case err := <-a.errCh:
		return Fatal, err
	}
}

// copyPlane copies a possibly-strided source plane into a tightly
// packed destination plane of w*h bytes.
func copyPlane(dst, src []byte, stride, w, h int) {
	for y := 0; y < h; y++ {
		copy(dst[y*w:(y+1)*w], src[y*stride:y*stride+w])
	}
}

func roundUp8(v int) int { return (v + 7) &^ 7 }

// Close stops the device and background lexer. It is safe to call more
// than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.dev.Stop()
}
