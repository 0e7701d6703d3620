// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import "errors"

// ErrFrameTooLong is returned when a candidate frame length, computed from
// the header bytes already in hand, exceeds the configured ceiling. It is
// fatal for the connection: the caller must close rather than retry.
var ErrFrameTooLong = errors.New("rtu: candidate frame exceeds max frame length")

// Framer extracts complete Modbus RTU frames from an append-only buffer,
// resynchronising on CRC failure by advancing one byte at a time.
type Framer struct {
	MaxFrameLength int
}

// NewFramer returns a Framer bounded by maxFrameLength.
func NewFramer(maxFrameLength int) *Framer {
	return &Framer{MaxFrameLength: maxFrameLength}
}

// Decode consumes as many complete frames as buf currently yields. It
// returns the emitted frames (each independently owned, copy-sliced from
// buf) and the number of bytes consumed from the front of buf; the caller
// must drop buf[:consumed] before the next call and retry once more bytes
// have arrived. A non-nil error is fatal for the connection.
func (f *Framer) Decode(buf []byte) (frames [][]byte, consumed int, err error) {
	for {
		remaining := buf[consumed:]

		if len(remaining) < MinFrameLen {
			return frames, consumed, nil
		}

		if len(remaining) > f.MaxFrameLength {
			discard := len(remaining) - f.MaxFrameLength
			consumed += discard
			remaining = buf[consumed:]
		}

		length, found, needMore, err := f.nextFrame(remaining)
		if err != nil {
			return frames, consumed, err
		}
		if needMore {
			return frames, consumed, nil
		}
		if !found {
			// No candidate validated against the bytes we actually have;
			// resynchronise by exactly one byte and retry.
			consumed++
			continue
		}

		frame := make([]byte, length)
		copy(frame, remaining[:length])
		frames = append(frames, frame)
		consumed += length
	}
}

// candidateVerdict classifies a candidate length against buf: impossible
// under the configured ceiling (fatal), not yet backed by enough bytes
// (pending, yield control), or decidable now (valid/invalid per its
// trailing CRC).
type candidateVerdict int

const (
	verdictTooLong candidateVerdict = iota
	verdictPending
	verdictValid
	verdictInvalid
)

func (f *Framer) check(buf []byte, candidate int) candidateVerdict {
	if candidate > f.MaxFrameLength {
		return verdictTooLong
	}
	if candidate > len(buf) {
		return verdictPending
	}
	if validCRC(buf[:candidate]) {
		return verdictValid
	}
	return verdictInvalid
}

// nextFrame tries each candidate length, in priority order, against the
// head of buf: exception response, fixed 8-byte request/response, a
// read-response shape driven by the declared byte count, and a
// write-multiple request shape. A candidate that cannot yet be decided
// (not enough bytes buffered) halts the scan and reports needMore, so a
// higher-priority candidate is never skipped over in favour of a
// lower-priority one that merely happens to be decidable sooner. A
// candidate that could never fit within MaxFrameLength, regardless of how
// many more bytes arrive, is fatal immediately.
func (f *Framer) nextFrame(buf []byte) (length int, found, needMore bool, err error) {
	function := buf[1]

	// A function code with the top bit set only ever arises from an
	// exception response; 5 is not one candidate among several here but
	// the only one, so this branch always returns rather than falling
	// through to the request-shaped candidates below.
	if function&exceptionFlag != 0 {
		switch f.check(buf, MinFrameLen) {
		case verdictTooLong:
			return 0, false, false, ErrFrameTooLong
		case verdictPending:
			return 0, false, true, nil
		case verdictValid:
			return MinFrameLen, true, false, nil
		default:
			return 0, false, false, nil
		}
	}

	switch f.check(buf, defaultCandidateLen) {
	case verdictTooLong:
		return 0, false, false, ErrFrameTooLong
	case verdictPending:
		return 0, false, true, nil
	case verdictValid:
		return defaultCandidateLen, true, false, nil
	}

	readCandidate := 5 + int(buf[2])
	switch f.check(buf, readCandidate) {
	case verdictTooLong:
		return 0, false, false, ErrFrameTooLong
	case verdictPending:
		return 0, false, true, nil
	case verdictValid:
		return readCandidate, true, false, nil
	}

	if function == FuncCodeWriteMultipleCoils || function == FuncCodeWriteMultipleRegister {
		if len(buf) < 7 {
			return 0, false, true, nil
		}
		writeCandidate := 9 + int(buf[6])
		switch f.check(buf, writeCandidate) {
		case verdictTooLong:
			return 0, false, false, ErrFrameTooLong
		case verdictPending:
			return 0, false, true, nil
		case verdictValid:
			return writeCandidate, true, false, nil
		}
	}

	return 0, false, false, nil
}
