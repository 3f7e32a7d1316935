/*
NAME
  lex.go

DESCRIPTION
  lex.go scans a raw byte stream for JPEG frame boundaries (SOI 0xffd8
  / EOI 0xffd9 markers, nesting-aware) and forwards each complete frame
  as one dst.Write call. internal/capture wires this directly onto a
  webcam device node's read side (internal/capture/capture.go's
  frameWriter): the device has no notion of "next frame", only bytes,
  so Lex is what turns that byte stream back into discrete frame.Image
  inputs for the motion-detection pipeline.

AUTHOR
  Dan Kortschak <dan@ausocean.org>
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package jpeg

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/ausocean/utils/logging"
)

// Log receives per-frame debug output; while it is nil Lex skips that
// output. revid's pipeline sets it; internal/capture does not.
var Log logging.Logger

var soiMarker = []byte{0xff, 0xd8}

var noDelay = make(chan time.Time)

func init() {
	close(noDelay)
}

// Lex parses JPEG frames read from src into separate writes to dst,
// pacing successive writes no faster than delay (0 means unpaced).
// Nested SOI/EOI pairs (a JPEG frame embedded in its own APP/COM
// segment) are tracked via a depth counter rather than assumed away.
func Lex(dst io.Writer, src io.Reader, delay time.Duration) error {
	var tick <-chan time.Time
	if delay == 0 {
		tick = noDelay
	} else {
		ticker := time.NewTicker(delay)
		defer ticker.Stop()
		tick = ticker.C
	}

	r := bufio.NewReader(src)
	for {
		buf := make([]byte, 2, 4<<10)
		n, err := r.Read(buf)
		if n < 2 {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}

		if !bytes.Equal(buf, soiMarker) {
			return fmt.Errorf("jpeg: stream does not start with an SOI marker: %#v", buf)
		}

		depth := 1

		var prev byte
		for {
			b, err := r.ReadByte()
			if err != nil {
				if err == io.EOF {
					return io.ErrUnexpectedEOF
				}
				return err
			}

			buf = append(buf, b)

			switch {
			case prev == 0xff && b == 0xd8:
				depth++
			case prev == 0xff && b == 0xd9:
				depth--
			}

			if depth == 0 {
				<-tick
				if Log != nil {
					Log.Debug("jpeg frame lexed", "bytes", len(buf))
				}
				if _, err := dst.Write(buf); err != nil {
					return err
				}
				break
			}

			prev = b
		}
	}
}
