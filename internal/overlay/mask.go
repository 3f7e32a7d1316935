/*
DESCRIPTION
  mask.go implements the mask/label visualisation half of the overlay
  contract: privacy mask painted green, smart mask
  painted red, and the largest connected motion label painted blue.
  These are setup-mode/motion-stream-only overlays, never written to
  the recorded output.

AUTHORS
  Ella Pietraroia <ella@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package overlay

import "github.com/ausocean/motiond/internal/frame"

// chromaGreen and chromaRed/chromaBlue are the U,V pairs the overlay
// uses to tint a masked region without touching luma:
// green = (U=0,V=0), red = (U=128,V=255), blue approximated in the
// YUV 4:2:0 colour space available here as (U=255,V=0).
const (
	greenU, greenV = 0, 0
	redU, redV     = 128, 255
	blueU, blueV   = 255, 0
)

func paintChroma(img *frame.Image, i int, u, v byte) {
	cw, ch := uvSize(img.Width, img.Height)
	cx, cy := i%img.Width/2, i/img.Width/2
	ci := cy*cw + cx
	if cy >= ch || ci < 0 {
		return
	}
	up, vp := img.UPlane(), img.VPlane()
	if ci < len(up) {
		up[ci] = u
	}
	if ci < len(vp) {
		vp[ci] = v
	}
}

// DrawPrivacyMask tints every pixel where mask[i] == 0 (the masked,
// hidden region) green, leaving luma untouched so the outline is
// visible without obscuring brightness information in setup view.
func DrawPrivacyMask(img *frame.Image, mask []byte) {
	if mask == nil {
		return
	}
	n := img.Width * img.Height
	for i := 0; i < n && i < len(mask); i++ {
		if mask[i] == 0 {
			paintChroma(img, i, greenU, greenV)
		}
	}
}

// DrawSmartMask tints every pixel where smartMaskFinal[i] == 0 (the
// region the smart-mask learner has decided to exclude from detection)
// red.
func DrawSmartMask(img *frame.Image, smartMaskFinal []byte) {
	if smartMaskFinal == nil {
		return
	}
	n := img.Width * img.Height
	for i := 0; i < n && i < len(smartMaskFinal); i++ {
		if smartMaskFinal[i] == 0 {
			paintChroma(img, i, redU, redV)
		}
	}
}

// DrawLargestLabel tints every pixel belonging to the largest connected
// motion component blue, given the label image produced by the
// labeling despeckle stage and the id of its largest label.
func DrawLargestLabel(img *frame.Image, labelImg []int, largestLabel int) {
	if labelImg == nil || largestLabel == 0 {
		return
	}
	n := img.Width * img.Height
	for i := 0; i < n && i < len(labelImg); i++ {
		if labelImg[i] == largestLabel {
			paintChroma(img, i, blueU, blueV)
		}
	}
}
