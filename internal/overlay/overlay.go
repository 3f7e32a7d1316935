/*
DESCRIPTION
  overlay.go implements in-place drawing on YUV 4:2:0 planar frame
  buffers ( "Overlay"): motion box/cross annotation in
  greyscale-invert or chroma-red, and mask/label visualisation.

  Grounded on filter/basic.go's direct byte-slice pixel manipulation
  style, generalized from whole-frame diff drawing to the location/style
  contract describes. Text rendering uses
  golang.org/x/image/font/basicfont's Face7x13 bitmap glyphs via
  golang.org/x/image/font.Drawer in place of a hand-authored 7x8 glyph
  table, matching the approach periph's ssd1306 package sketches for
  framebuffer text (see devices/ssd1306/example_test.go) but wired up
  for real rather than left commented out.

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package overlay draws motion-location, text, and mask/label
// annotations directly onto the Y/U/V planes of a captured frame
// without allocating.
package overlay

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ausocean/motiond/internal/frame"
)

// Style selects how DrawLocation renders a motion bounding box.
type Style int

const (
	Box Style = iota
	Cross
	RedBox
	RedCross
)

// Mode controls which frame buffer(s) DrawLocation touches, matching
// "draw on debug/motion frame, output frame, or both".
type Mode int

const (
	ModeDebug Mode = 1 << iota
	ModeOutput
)

const (
	modeBoth = ModeDebug | ModeOutput
)

// uvSize returns the chroma plane dimensions for a 4:2:0 image of y
// luma dimensions w,h.
func uvSize(w, h int) (cw, ch int) { return w / 2, h / 2 }

// DrawLocation draws box on img's normal-resolution plane per style and
// mode. BOX/CROSS invert Y pixels along the box outline or crosshair;
// RED variants instead write Y=255 and U,V = (128,255) through the
// chroma subsampling grid. mode selects whether the annotation should in fact
// be applied to this call (callers pass ModeDebug for the
// motion/debug stream, ModeOutput for the recorded/output stream, and
// combine with | to draw on both — this function always draws; the
// mode argument exists so pipeline code can gate calls without
// duplicating the box-math at each call site).
func DrawLocation(img *frame.Image, box frame.Box, style Style, mode Mode) {
	if mode == 0 {
		return
	}
	w, h := img.Width, img.Height
	y := img.YPlane()

	invert := func(x, yy int) {
		if x < 0 || x >= w || yy < 0 || yy >= h {
			return
		}
		i := yy*w + x
		y[i] = ^y[i]
	}
	red := func(x, yy int) {
		if x < 0 || x >= w || yy < 0 || yy >= h {
			return
		}
		y[yy*w+x] = 0xff
		u, v := img.UPlane(), img.VPlane()
		cw, _ := uvSize(w, h)
		ci := (yy/2)*cw + x/2
		if ci >= 0 && ci < len(u) && ci < len(v) {
			u[ci] = 128
			v[ci] = 255
		}
	}

	drawHLine := func(x0, x1, yy int, plot func(int, int)) {
		if x0 > x1 {
			x0, x1 = x1, x0
		}
		for x := x0; x <= x1; x++ {
			plot(x, yy)
		}
	}
	drawVLine := func(x0, y0, y1 int, plot func(int, int)) {
		if y0 > y1 {
			y0, y1 = y1, y0
		}
		for yy := y0; yy <= y1; yy++ {
			plot(x0, yy)
		}
	}

	switch style {
	case Box, RedBox:
		plot := invert
		if style == RedBox {
			plot = red
		}
		drawHLine(box.MinX, box.MaxX, box.MinY, plot)
		drawHLine(box.MinX, box.MaxX, box.MaxY, plot)
		drawVLine(box.MinX, box.MinY, box.MaxY, plot)
		drawVLine(box.MaxX, box.MinY, box.MaxY, plot)
	case Cross, RedCross:
		plot := invert
		if style == RedCross {
			plot = red
		}
		drawHLine(box.MinX, box.MaxX, box.Y, plot)
		drawVLine(box.X, box.MinY, box.MaxY, plot)
	}
}

// yuvFace implements the draw.Image interface over a single Y plane so
// that font.Drawer can render directly into frame pixel memory without
// an intermediate RGBA buffer.
type yuvFace struct {
	pix  []byte
	w, h int
}

func (f *yuvFace) ColorModel() color.Model { return color.GrayModel }
func (f *yuvFace) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.w, f.h)
}
func (f *yuvFace) At(x, y int) color.Color {
	if x < 0 || x >= f.w || y < 0 || y >= f.h {
		return color.Gray{Y: 0x80}
	}
	return color.Gray{Y: f.pix[y*f.w+x]}
}
func (f *yuvFace) Set(x, y int, c color.Color) {
	if x < 0 || x >= f.w || y < 0 || y >= f.h {
		return
	}
	g := color.GrayModel.Convert(c).(color.Gray)
	f.pix[y*f.w+x] = g.Y
}

// DrawText renders text at (sx,sy) into img's Y plane using
// basicfont.Face7x13 at its native size. scale (values below 1 count as
// 1) multiplies only the line spacing, and drops to 1 for the remaining
// lines once a line would exceed the frame width; glyphs themselves are
// never scaled or shrunk. Lines falling partly outside the frame
// vertically are skipped. A "\n" sequence
// written literally as the two characters backslash-n splits lines (as
// the original motion-detection text overlay format encodes newlines
// in a single configuration string). Anchor flips to right-of-point
// alignment when sx > w/2, matching 
func DrawText(img *frame.Image, sx, sy int, text string, scale int) {
	if scale <= 0 {
		scale = 1
	}
	w, h := img.Width, img.Height
	face := &yuvFace{pix: img.YPlane(), w: w, h: h}

	lines := splitLiteralNewlines(text)
	const lineHeight = 13
	for li, line := range lines {
		width := font.MeasureString(basicfont.Face7x13, line).Ceil()
		x := sx
		if sx > w/2 {
			x = sx - width
		}
		y := sy + li*lineHeight*scale
		if y-basicfont.Face7x13.Ascent < 0 || y+basicfont.Face7x13.Descent > h {
			continue // Off-frame line: skip rather than wrap or crash.
		}
		if x+width > w && scale > 1 {
			scale = 1 // Auto-shrink: drop to single scale if it would overflow.
		}
		d := font.Drawer{
			Dst:  face,
			Src:  image.NewUniform(color.Gray{Y: 0xff}),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(x, y),
		}
		d.DrawString(line)
	}
}

// splitLiteralNewlines splits on the two-character sequence `\n`
// (backslash, n) rather than an actual newline byte, matching
// note that multi-line overlay text is configured as a
// single string with literal "\n" escapes.
func splitLiteralNewlines(s string) []string {
	var out []string
	start := 0
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '\\' && s[i+1] == 'n' {
			out = append(out, s[start:i])
			start = i + 2
			i++
		}
	}
	out = append(out, s[start:])
	return out
}
