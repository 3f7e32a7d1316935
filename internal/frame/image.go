/*
DESCRIPTION
  image.go provides Image, the unit of data passed between every stage
  of a camera pipeline: a YUV 4:2:0 planar frame plus the motion-related
  metadata accumulated about it.

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package frame provides Image, the per-frame data and metadata unit
// that flows through a camera pipeline, and RingBuffer, the
// precapture/postcapture FIFO of Images owned by a single pipeline.
package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"
)

// Flags is a bitmask of the per-frame motion states defined in 
type Flags uint8

const (
	FlagMotion Flags = 1 << iota
	FlagTrigger
	FlagSave
	FlagSaved
	FlagPrecap
	FlagPostcap
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// String renders the set flags for logging.
func (f Flags) String() string {
	var b bytes.Buffer
	for _, p := range []struct {
		bit  Flags
		name string
	}{
		{FlagMotion, "MOTION"},
		{FlagTrigger, "TRIGGER"},
		{FlagSave, "SAVE"},
		{FlagSaved, "SAVED"},
		{FlagPrecap, "PRECAP"},
		{FlagPostcap, "POSTCAP"},
	} {
		if f.Has(p.bit) {
			if b.Len() != 0 {
				b.WriteByte('|')
			}
			b.WriteString(p.name)
		}
	}
	if b.Len() == 0 {
		return "NONE"
	}
	return b.String()
}

// Box is a motion bounding box. Invariants (enforced by callers that
// compute it, see internal/motionalg): MinX <= X <= MaxX,
// MinY <= Y <= MaxY, all four in [0, w-1] and even.
type Box struct {
	MinX, MinY, MaxX, MaxY int
	X, Y                   int // Centroid.
	Width, Height           int
}

// Timestamp is the monotonic+wall-clock pair carried by every Image.
// Monotonic is used for all interval arithmetic (pacing, timeouts,
// event-gap); Wall is used only for filename/strftime expansion.
type Timestamp struct {
	Monotonic time.Time
	Wall      time.Time
}

// Image owns its pixel memory for the lifetime of its ring slot.
type Image struct {
	Width, Height           int // Normal resolution.
	HighWidth, HighHeight   int // High resolution, 0 if unused.

	// ImageNorm is YUV 4:2:0 planar bytes, length Width*Height*3/2.
	ImageNorm []byte

	// ImageHigh is an optional high-resolution counterpart of the same
	// layout, or nil.
	ImageHigh []byte

	Timestamp Timestamp
	Shot      int // Sub-second index within the current wall-clock second.
	Diffs     int // Pixel-change count from the diff stage.

	// CentDist is the squared distance from the image centre to the
	// motion centroid, used for "centre" best-image selection.
	CentDist int

	Flags       Flags
	Location    Box
	TotalLabels int // Connected components in the last label pass.
	LargestLabel int // Id of the largest label from the last labeling pass, 0 if none.
}

// NewImage allocates an Image of the given normal (and, if hh>0,
// high) resolution, with all planes set to mid-grey (0x80), matching
// the "neutral image rather than undefined data" requirement for
// freshly-allocated ring slots.
func NewImage(w, h, hw, hh int) *Image {
	img := &Image{Width: w, Height: h, HighWidth: hw, HighHeight: hh}
	img.ImageNorm = grey(w, h)
	if hw > 0 && hh > 0 {
		img.ImageHigh = grey(hw, hh)
	}
	return img
}

func grey(w, h int) []byte {
	b := make([]byte, w*h*3/2)
	for i := range b {
		b[i] = 0x80
	}
	return b
}

// Reset clears metadata carried by a frame without touching pixels,
// used when a ring slot is reused for a fresh "processing" frame.
func (img *Image) Reset() {
	img.Diffs = 0
	img.Flags = 0
	img.Location = Box{}
	img.TotalLabels = 0
	img.LargestLabel = 0
	img.CentDist = 0
}

// CarryForward copies metadata (but not pixels) from prev into img, used
// when a non-processing frame must show continuity to the ring consumer
// ( stage 2).
func (img *Image) CarryForward(prev *Image) {
	img.Diffs = prev.Diffs
	img.Flags = prev.Flags &^ (FlagSaved) // SAVED is reset per new capture.
	img.Location = prev.Location
	img.TotalLabels = prev.TotalLabels
	img.LargestLabel = prev.LargestLabel
}

// YPlane returns the luma plane of the normal-resolution image.
func (img *Image) YPlane() []byte { return img.ImageNorm[:img.Width*img.Height] }

// UPlane returns the Cb plane.
func (img *Image) UPlane() []byte {
	n := img.Width * img.Height
	return img.ImageNorm[n : n+n/4]
}

// VPlane returns the Cr plane.
func (img *Image) VPlane() []byte {
	n := img.Width * img.Height
	return img.ImageNorm[n+n/4 : n+n/2]
}

// CheckInvariants validates the location-box invariants 
// requires hold for every frame emitted to the recorder.
func (img *Image) CheckInvariants() error {
	b := img.Location
	if b.MinX > b.X || b.X > b.MaxX {
		return fmt.Errorf("frame: bad box x ordering: minx=%d x=%d maxx=%d", b.MinX, b.X, b.MaxX)
	}
	if b.MinY > b.Y || b.Y > b.MaxY {
		return fmt.Errorf("frame: bad box y ordering: miny=%d y=%d maxy=%d", b.MinY, b.Y, b.MaxY)
	}
	for _, v := range []int{b.MinX, b.MaxX, b.MinY, b.MaxY} {
		if v < 0 || v > img.Width-1 || v%2 != 0 {
			if img.Diffs == 0 && b == (Box{}) {
				continue // No motion has ever been computed; zero box is fine.
			}
			return fmt.Errorf("frame: box coordinate %d out of range or not even (w=%d)", v, img.Width)
		}
	}
	return nil
}

// EncodeJPEG renders the Y/Cb/Cr planes to a JPEG-encoded still. Used by
// the Recorder collaborator (internal/record) to turn a SAVE-flagged
// slot into bytes. There is no JPEG *encoder* anywhere in the reference
// pack (only an RTP/JPEG depacketizer, codec/jpeg), so this uses the
// standard library's image/jpeg, which already targets image.YCbCr
// directly (see DESIGN.md).
func (img *Image) EncodeJPEG(quality int) ([]byte, error) {
	yuv := &image.YCbCr{
		Y:              img.YPlane(),
		Cb:             img.UPlane(),
		Cr:             img.VPlane(),
		YStride:        img.Width,
		CStride:        img.Width / 2,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, img.Width, img.Height),
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, yuv, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("frame: could not encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
