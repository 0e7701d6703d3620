// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package jsonstream extracts complete root-level JSON values from an
// arbitrary sequence of byte chunks, without blocking for a closing
// delimiter that a transport-level length field would otherwise provide.
package jsonstream

import "errors"

// ErrStreamTooLong is returned when a value being accumulated exceeds the
// configured ceiling before it completes. Fatal for the connection.
var ErrStreamTooLong = errors.New("jsonstream: value exceeds max frame length")

// ErrMalformedJSON is returned when a byte is encountered that cannot
// begin or continue any recognised JSON token. Fatal for the connection.
var ErrMalformedJSON = errors.New("jsonstream: malformed JSON token")

type mode int

const (
	modeIdle mode = iota
	modeStructural
	modeString
	modeLiteral
	modeNumber
)

// Extractor accumulates bytes across Feed calls and emits each complete
// root-level JSON value (object, array, string, number, true, false, or
// null) exactly once, in the order its closing byte was observed. It holds
// no knowledge of the envelope semantics layered on top; it only finds
// value boundaries.
type Extractor struct {
	MaxFrameLength int

	mode mode
	buf  []byte

	// structural mode: brace/bracket depth, plus string tracking so that
	// braces and brackets inside string literals don't affect depth.
	depth     int
	inString  bool
	escaped   bool

	// literal mode: remaining bytes expected to complete true/false/null.
	literalExpect []byte
}

// NewExtractor returns an Extractor bounded by maxFrameLength.
func NewExtractor(maxFrameLength int) *Extractor {
	return &Extractor{MaxFrameLength: maxFrameLength}
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func isNumberByte(b byte) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case b == '-' || b == '+' || b == '.' || b == 'e' || b == 'E':
		return true
	}
	return false
}

// Feed ingests chunk and returns every root value it completes, each an
// independently owned copy of the value's exact bytes. A value that is
// still in progress when chunk runs out is held internally and resumed on
// the next call; nothing is lost across chunk boundaries. A non-nil error
// is fatal for the connection.
func (e *Extractor) Feed(chunk []byte) (values [][]byte, err error) {
	i := 0
	for i < len(chunk) {
		b := chunk[i]

		switch e.mode {
		case modeIdle:
			if isWhitespace(b) {
				i++
				continue
			}
			if err := e.startValue(b); err != nil {
				return values, err
			}
			i++

		case modeStructural:
			e.buf = append(e.buf, b)
			if e.inString {
				switch {
				case e.escaped:
					e.escaped = false
				case b == '\\':
					e.escaped = true
				case b == '"':
					e.inString = false
				}
			} else {
				switch {
				case b == '"':
					e.inString = true
				case b == '{' || b == '[':
					e.depth++
				case b == '}' || b == ']':
					e.depth--
					if e.depth == 0 {
						values = append(values, e.emit())
					}
				}
			}
			if err := e.checkBound(); err != nil {
				return values, err
			}
			i++

		case modeString:
			e.buf = append(e.buf, b)
			switch {
			case e.escaped:
				e.escaped = false
			case b == '\\':
				e.escaped = true
			case b == '"':
				values = append(values, e.emit())
			}
			if err := e.checkBound(); err != nil {
				return values, err
			}
			i++

		case modeLiteral:
			if e.literalExpect[0] != b {
				return values, ErrMalformedJSON
			}
			e.buf = append(e.buf, b)
			e.literalExpect = e.literalExpect[1:]
			if len(e.literalExpect) == 0 {
				values = append(values, e.emit())
			}
			if err := e.checkBound(); err != nil {
				return values, err
			}
			i++

		case modeNumber:
			if isNumberByte(b) {
				e.buf = append(e.buf, b)
				if err := e.checkBound(); err != nil {
					return values, err
				}
				i++
				continue
			}
			// b does not extend the number: the number is complete. Emit it
			// without consuming b, then let the idle case reprocess b.
			values = append(values, e.emit())
			// do not advance i; reprocess b from modeIdle
		}
	}
	return values, nil
}

// Flush reports whether a value is mid-flight (the connection closed or
// went idle with an incomplete value buffered). A number left pending at
// end-of-stream is exactly this case, since numbers have no closing
// delimiter of their own.
func (e *Extractor) Flush() ([]byte, bool) {
	if e.mode != modeIdle && len(e.buf) > 0 {
		v := e.emit()
		return v, true
	}
	return nil, false
}

func (e *Extractor) startValue(b byte) error {
	e.buf = []byte{b}
	switch {
	case b == '{' || b == '[':
		e.mode = modeStructural
		e.depth = 1
		e.inString = false
		e.escaped = false
	case b == '"':
		e.mode = modeString
		e.escaped = false
	case b == 't':
		e.mode = modeLiteral
		e.literalExpect = []byte("rue")
	case b == 'f':
		e.mode = modeLiteral
		e.literalExpect = []byte("alse")
	case b == 'n':
		e.mode = modeLiteral
		e.literalExpect = []byte("ull")
	case b == '-' || (b >= '0' && b <= '9'):
		e.mode = modeNumber
	default:
		e.buf = nil
		return ErrMalformedJSON
	}
	return e.checkBound()
}

func (e *Extractor) checkBound() error {
	if e.MaxFrameLength > 0 && len(e.buf) > e.MaxFrameLength {
		return ErrStreamTooLong
	}
	return nil
}

// emit finalises the buffered value and resets state to idle.
func (e *Extractor) emit() []byte {
	v := make([]byte, len(e.buf))
	copy(v, e.buf)
	e.buf = nil
	e.mode = modeIdle
	e.depth = 0
	e.inString = false
	e.escaped = false
	e.literalExpect = nil
	return v
}
