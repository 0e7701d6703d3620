// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package line implements LF/CRLF-delimited framing.
package line

import (
	"bytes"
	"errors"
)

// ErrFrameTooLong is returned when an unterminated prefix exceeds the
// configured ceiling before a line delimiter arrives, or when a terminated
// line's content (delimiter stripped) exceeds it. Fatal for the
// connection.
var ErrFrameTooLong = errors.New("line: line exceeds max frame length")

// Framer splits an append-only buffer on LF, treating a preceding CR as
// part of the delimiter.
type Framer struct {
	MaxFrameLength int
}

// NewFramer returns a Framer bounded by maxFrameLength.
func NewFramer(maxFrameLength int) *Framer {
	return &Framer{MaxFrameLength: maxFrameLength}
}

// Decode consumes as many complete lines as buf currently yields. Each
// returned line has its trailing CRLF or LF stripped. A non-nil error is
// fatal.
func (f *Framer) Decode(buf []byte) (lines [][]byte, consumed int, err error) {
	for {
		remaining := buf[consumed:]

		idx := bytes.IndexByte(remaining, '\n')
		if idx < 0 {
			if len(remaining) > f.MaxFrameLength {
				return lines, consumed, ErrFrameTooLong
			}
			return lines, consumed, nil
		}

		end := idx
		if end > 0 && remaining[end-1] == '\r' {
			end--
		}
		if end > f.MaxFrameLength {
			return lines, consumed, ErrFrameTooLong
		}

		line := make([]byte, end)
		copy(line, remaining[:end])
		lines = append(lines, line)
		consumed += idx + 1
	}
}

// Encode appends LF to payload if it does not already end in LF.
func Encode(payload []byte) []byte {
	if len(payload) > 0 && payload[len(payload)-1] == '\n' {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out
	}
	out := make([]byte, len(payload)+1)
	copy(out, payload)
	out[len(payload)] = '\n'
	return out
}
