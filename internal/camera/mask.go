/*
DESCRIPTION
  mask.go loads the privacy and fixed motion masks from PGM files, per
  the Masks data model : "optional greyscale bitmap
  buffers loaded once from PGM files and applied per pixel." Supports
  plain-text P2 and raw P5 PGM. Missing or wrong-size files are logged
  and disable the mask rather than failing pipeline init ( the
  "Mask file missing / wrong size" error-handling row), after writing
  an empty template for the user to edit in place.

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
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ausocean/utils/logging"
)

// loadMask loads a w*h mask from the PGM file at path. An empty path
// means "unconfigured" and returns nil, nil (no mask, no error). Any
// other failure (missing file, parse error, dimension mismatch) is
// non-fatal: it is logged, an empty (fully permissive) template is
// written to path for the user to edit, and the mask feature is
// disabled by returning a nil mask.
func loadMask(log logging.Logger, kind, path string, w, h int) []byte {
	if path == "" {
		return nil
	}
	mask, err := readPGM(path, w, h)
	if err == nil {
		return mask
	}
	log.Error(kind+" mask load failed, feature disabled", "path", path, "error", err.Error())
	if werr := writeEmptyPGM(path, w, h); werr != nil {
		log.Warning(kind+" mask template write failed", "path", path, "error", werr.Error())
	} else {
		log.Info(kind+" mask template written for editing", "path", path)
	}
	return nil
}

// readPGM parses a binary (P5) or plain-text (P2) PGM file and returns
// its pixel data, verifying the declared dimensions match w,h exactly
// (the mask is expected pixel-for-pixel against the output frame, per
// 's NOTE on get_pgm's callers).
func readPGM(path string, w, h int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic, err := readPGMToken(r)
	if err != nil {
		return nil, err
	}
	if magic != "P5" && magic != "P2" {
		return nil, fmt.Errorf("camera: %s: unsupported PGM magic %q", path, magic)
	}
	width, err := readPGMInt(r)
	if err != nil {
		return nil, err
	}
	height, err := readPGMInt(r)
	if err != nil {
		return nil, err
	}
	maxval, err := readPGMInt(r)
	if err != nil {
		return nil, err
	}
	if width != w || height != h {
		return nil, fmt.Errorf("camera: %s: mask is %dx%d, expected %dx%d", path, width, height, w, h)
	}
	if maxval <= 0 || maxval > 255 {
		return nil, fmt.Errorf("camera: %s: unsupported PGM maxval %d", path, maxval)
	}

	n := w * h
	pixels := make([]byte, n)
	if magic == "P5" {
		if _, err := io.ReadFull(r, pixels); err != nil {
			return nil, fmt.Errorf("camera: %s: short PGM pixel data: %w", path, err)
		}
	} else {
		for i := 0; i < n; i++ {
			v, err := readPGMInt(r)
			if err != nil {
				return nil, fmt.Errorf("camera: %s: short PGM pixel data: %w", path, err)
			}
			pixels[i] = byte(v)
		}
	}
	if maxval != 255 {
		for i, v := range pixels {
			pixels[i] = byte(int(v) * 255 / maxval)
		}
	}
	return pixels, nil
}

// readPGMToken reads one whitespace-delimited token, skipping '#'
// comments (to end of line), as PGM's header grammar requires.
func readPGMToken(r *bufio.Reader) (string, error) {
	var tok []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			if len(tok) > 0 {
				return string(tok), nil
			}
			return "", err
		}
		switch {
		case b == '#':
			for {
				c, err := r.ReadByte()
				if err != nil || c == '\n' {
					break
				}
			}
		case b == ' ' || b == '\t' || b == '\n' || b == '\r':
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, b)
		}
	}
}

func readPGMInt(r *bufio.Reader) (int, error) {
	tok, err := readPGMToken(r)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(tok)
}

// writeEmptyPGM writes a fully-permissive (all-0xff) raw PGM template
// to path, sized w*h, mirroring motion.c's put_fixed_mask: "try to
// write an empty mask file to make it easier for the user to edit it."
func writeEmptyPGM(path string, w, h int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if _, err := fmt.Fprintf(bw, "P5\n%d %d\n255\n", w, h); err != nil {
		return err
	}
	pixels := make([]byte, w*h)
	for i := range pixels {
		pixels[i] = 0xff
	}
	if _, err := bw.Write(pixels); err != nil {
		return err
	}
	return bw.Flush()
}
