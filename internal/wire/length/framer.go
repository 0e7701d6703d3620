// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package length implements 4-byte big-endian length-prefixed framing.
package length

import (
	"encoding/binary"
	"errors"
)

// HeaderLen is the width of the big-endian length field.
const HeaderLen = 4

// ErrFrameTooLong is returned when a declared payload length exceeds the
// configured ceiling. Fatal for the connection.
var ErrFrameTooLong = errors.New("length: declared payload exceeds max frame length")

// Framer extracts length-prefixed payloads from an append-only buffer.
type Framer struct {
	MaxFrameLength int
}

// NewFramer returns a Framer bounded by maxFrameLength.
func NewFramer(maxFrameLength int) *Framer {
	return &Framer{MaxFrameLength: maxFrameLength}
}

// Decode consumes as many complete length-prefixed payloads as buf
// currently yields. It returns the emitted payloads (the header is
// stripped; each is an independently owned copy) and the number of bytes
// consumed from the front of buf. A non-nil error is fatal.
func (f *Framer) Decode(buf []byte) (payloads [][]byte, consumed int, err error) {
	for {
		remaining := buf[consumed:]

		if len(remaining) < HeaderLen {
			return payloads, consumed, nil
		}

		declared := binary.BigEndian.Uint32(remaining[:HeaderLen])
		if declared > uint32(f.MaxFrameLength) {
			return payloads, consumed, ErrFrameTooLong
		}

		total := HeaderLen + int(declared)
		if len(remaining) < total {
			return payloads, consumed, nil
		}

		payload := make([]byte, declared)
		copy(payload, remaining[HeaderLen:total])
		payloads = append(payloads, payload)
		consumed += total
	}
}

// Encode prepends payload's length as a 4-byte big-endian header.
func Encode(payload []byte) []byte {
	out := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(out[:HeaderLen], uint32(len(payload)))
	copy(out[HeaderLen:], payload)
	return out
}
