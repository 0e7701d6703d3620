// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package auto implements the one-shot framing-mode detector used when a
// connection is configured for automatic protocol selection.
package auto

import "github.com/ffutop/tcpframe/internal/wire/rtu"

// Decision is the outcome of a detection attempt.
type Decision int

const (
	// DecisionPending means not enough has been seen yet to commit.
	DecisionPending Decision = iota
	// DecisionJSON commits the connection to JsonObject framing.
	DecisionJSON
	// DecisionModbusRTU commits the connection to ModbusRtu framing.
	DecisionModbusRTU
)

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// Detector retains every byte it has seen across Feed calls until it
// commits, so the winning downstream decoder can replay them in full.
type Detector struct {
	DetectWindow int
	buf          []byte
	committed    bool
}

// NewDetector returns a Detector bounded by detectWindow.
func NewDetector(detectWindow int) *Detector {
	return &Detector{DetectWindow: detectWindow}
}

// Feed appends chunk to the retained buffer and evaluates the decision
// rules in priority order. Once committed is true, the returned buffer is
// every byte seen so far and must be replayed into the chosen decoder;
// Feed must not be called again after a non-pending Decision.
func (d *Detector) Feed(chunk []byte) (decision Decision, retained []byte) {
	if d.committed {
		panic("auto: Feed called after commit")
	}
	d.buf = append(d.buf, chunk...)

	i := 0
	for i < len(d.buf) && isWhitespace(d.buf[i]) {
		i++
	}
	if i < len(d.buf) {
		switch d.buf[i] {
		case '{', '[':
			return d.commit(DecisionJSON)
		}
	}

	if rtu.Recognize(d.buf) {
		return d.commit(DecisionModbusRTU)
	}

	if len(d.buf) >= d.DetectWindow {
		return d.commit(DecisionModbusRTU)
	}

	return DecisionPending, nil
}

func (d *Detector) commit(decision Decision) (Decision, []byte) {
	d.committed = true
	return decision, d.buf
}
