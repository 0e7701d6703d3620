// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package pipeline implements the per-connection decoding and dispatch
// state machine: the active framing choice, the framer/extractor state it
// owns, and the auto-detection commit that replaces itself with a fixed
// downstream decoder exactly once.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/ffutop/tcpframe/internal/config"
	"github.com/ffutop/tcpframe/internal/envelope"
	"github.com/ffutop/tcpframe/internal/metrics"
	"github.com/ffutop/tcpframe/internal/wire/auto"
	"github.com/ffutop/tcpframe/internal/wire/jsonstream"
	"github.com/ffutop/tcpframe/internal/wire/length"
	"github.com/ffutop/tcpframe/internal/wire/line"
	"github.com/ffutop/tcpframe/internal/wire/rtu"
)

// Result is everything a single Feed call produced.
type Result struct {
	// Outbound holds response bytes to write to the connection, in order.
	Outbound [][]byte
	// Frames holds raw frames with no JSON envelope semantics (Raw and
	// ModbusRtu framing), for a downstream handler outside the core to
	// observe. The core makes no claim about their content.
	Frames [][]byte
	// Dispatched counts the request payloads this call decoded and
	// dispatched (LengthField, Line, and JsonObject framing), regardless
	// of whether respondEnabled suppressed the resulting Outbound bytes.
	// On LengthField and Line framing a payload that fails envelope
	// parsing is counted too (it is answered with a 400 instead of being
	// routed); on JsonObject framing such a value is fatal and is not
	// counted. It lets a caller count decoded messages even when nothing
	// was written back.
	Dispatched int
	// Fatal, if non-nil, means the connection must be closed after
	// Outbound has been flushed. It is nil on every recoverable error.
	Fatal error
}

// Router is the subset of router.Router's behaviour the pipeline depends
// on, satisfied by *router.Router.
type Router interface {
	Handle(req *envelope.Request) *envelope.Response
}

// Pipeline holds all per-connection decoder state. It is not safe for
// concurrent use: per spec, every operation on one connection's state is
// strictly serialised onto that connection's own goroutine.
type Pipeline struct {
	maxFrameLength int
	respondEnabled bool
	router         Router

	mode string // resolved config.Framing* value; never config.FramingAuto once committed

	detector      *auto.Detector
	rtuFramer     *rtu.Framer
	lengthFramer  *length.Framer
	lineFramer    *line.Framer
	jsonExtractor *jsonstream.Extractor

	// rtu.Framer, length.Framer, and line.Framer are pure functions over
	// a whole buffer, not stateful incremental parsers: the bytes a call
	// left unconsumed must be carried forward and prefixed onto the next
	// chunk. jsonstream.Extractor needs no equivalent field; it tracks
	// its own partial-value state internally.
	rtuPending    []byte
	lengthPending []byte
	linePending   []byte
}

// New constructs a Pipeline for one connection. framing is one of the
// config.Framing* constants; maxFrameLength and detectWindow bound the
// relevant framers; respondEnabled gates whether router responses are
// ever written back.
func New(framing string, maxFrameLength, detectWindow int, respondEnabled bool, rt Router) *Pipeline {
	p := &Pipeline{
		maxFrameLength: maxFrameLength,
		respondEnabled: respondEnabled,
		router:         rt,
		mode:           framing,
	}
	if framing == config.FramingAuto {
		p.detector = auto.NewDetector(detectWindow)
		return p
	}
	p.installDecoder(framing)
	return p
}

func (p *Pipeline) installDecoder(mode string) {
	switch mode {
	case config.FramingModbusRTU:
		p.rtuFramer = rtu.NewFramer(p.maxFrameLength)
	case config.FramingLengthField:
		p.lengthFramer = length.NewFramer(p.maxFrameLength)
	case config.FramingLine:
		p.lineFramer = line.NewFramer(p.maxFrameLength)
	case config.FramingJSONObject:
		p.jsonExtractor = jsonstream.NewExtractor(p.maxFrameLength)
	case config.FramingRaw:
		// No framer: Raw bytes pass straight through to the caller.
	}
}

// Mode reports the pipeline's current framing mode. While committing from
// Auto this is still config.FramingAuto until the first successful
// commit.
func (p *Pipeline) Mode() string {
	return p.mode
}

// Flush reports whether a JsonObject-mode connection is closing with a
// value still mid-flight (see jsonstream.Extractor.Flush). It is a no-op
// for every other framing mode, where a value left incomplete at
// connection close is simply discarded — there is no decoder state here
// that could otherwise be recovered.
func (p *Pipeline) Flush() ([]byte, bool) {
	if p.jsonExtractor == nil {
		return nil, false
	}
	return p.jsonExtractor.Flush()
}

// Feed ingests one inbound chunk and runs every installed decoder to
// quiescence, returning whatever responses, raw frames, and fatal error
// resulted.
func (p *Pipeline) Feed(chunk []byte) Result {
	if p.mode == config.FramingAuto {
		decision, retained := p.detector.Feed(chunk)
		switch decision {
		case auto.DecisionPending:
			return Result{}
		case auto.DecisionJSON:
			p.mode = config.FramingJSONObject
			p.installDecoder(p.mode)
			return p.feedJSON(retained)
		case auto.DecisionModbusRTU:
			p.mode = config.FramingModbusRTU
			p.installDecoder(p.mode)
			return p.feedModbus(retained)
		}
	}

	switch p.mode {
	case config.FramingRaw:
		return Result{Frames: [][]byte{chunk}}
	case config.FramingModbusRTU:
		return p.feedModbus(chunk)
	case config.FramingLengthField:
		return p.feedLengthField(chunk)
	case config.FramingLine:
		return p.feedLine(chunk)
	case config.FramingJSONObject:
		return p.feedJSON(chunk)
	}
	return Result{}
}

func (p *Pipeline) feedModbus(chunk []byte) Result {
	p.rtuPending = append(p.rtuPending, chunk...)
	frames, consumed, err := p.rtuFramer.Decode(p.rtuPending)
	p.rtuPending = p.rtuPending[consumed:]
	if err != nil {
		return Result{Frames: frames, Fatal: err}
	}
	return Result{Frames: frames}
}

func (p *Pipeline) feedLengthField(chunk []byte) Result {
	p.lengthPending = append(p.lengthPending, chunk...)
	payloads, consumed, err := p.lengthFramer.Decode(p.lengthPending)
	p.lengthPending = p.lengthPending[consumed:]
	if err != nil {
		return Result{Fatal: err}
	}

	var outbound [][]byte
	for _, payload := range payloads {
		resp := p.dispatchConfined(payload)
		if resp != nil {
			outbound = append(outbound, length.Encode(resp))
		}
	}
	return Result{Outbound: outbound, Dispatched: len(payloads)}
}

func (p *Pipeline) feedLine(chunk []byte) Result {
	p.linePending = append(p.linePending, chunk...)
	lines, consumed, err := p.lineFramer.Decode(p.linePending)
	p.linePending = p.linePending[consumed:]
	if err != nil {
		return Result{Fatal: err}
	}

	var outbound [][]byte
	for _, l := range lines {
		resp := p.dispatchConfined(l)
		if resp != nil {
			outbound = append(outbound, line.Encode(resp))
		}
	}
	return Result{Outbound: outbound, Dispatched: len(lines)}
}

// dispatchConfined handles one self-contained JSON payload (length-field
// or line framing): a parse failure here is a PayloadDecodeError,
// confined to this one message — it never threatens the framer's ability
// to find the next message boundary, so the connection stays open.
func (p *Pipeline) dispatchConfined(payload []byte) []byte {
	req, perr := envelope.ParseRequest(payload)
	if perr != nil {
		if !p.respondEnabled {
			return nil
		}
		return envelope.FormatResponse(badRequestResponse(perr.Message))
	}

	start := time.Now()
	resp := p.router.Handle(req)
	metrics.ObserveRequestDuration(req.Action, time.Since(start).Seconds())
	if !p.respondEnabled {
		return nil
	}
	return envelope.FormatResponse(resp)
}

func (p *Pipeline) feedJSON(chunk []byte) Result {
	values, err := p.jsonExtractor.Feed(chunk)
	if err != nil {
		// StreamCorruptionError: losing the tokenizer's place means the
		// next value boundary can no longer be trusted. Fatal, but per
		// the resolved open question, attempt a best-effort response
		// first rather than racing the write against the close.
		var outbound [][]byte
		if p.respondEnabled {
			outbound = append(outbound, envelope.FormatResponse(badRequestResponse("malformed JSON stream")))
		}
		return Result{Outbound: outbound, Fatal: err}
	}

	var outbound [][]byte
	dispatched := 0
	for _, value := range values {
		req, perr := envelope.ParseRequest(value)
		if perr != nil {
			// A root JSON value that parses but isn't a request object
			// (e.g. a bare array or scalar) is also stream corruption on
			// this path: the envelope contract requires an object.
			if p.respondEnabled {
				outbound = append(outbound, envelope.FormatResponse(badRequestResponse(perr.Message)))
			}
			return Result{Outbound: outbound, Dispatched: dispatched, Fatal: perr}
		}

		start := time.Now()
		resp := p.router.Handle(req)
		metrics.ObserveRequestDuration(req.Action, time.Since(start).Seconds())
		dispatched++
		if p.respondEnabled {
			outbound = append(outbound, envelope.FormatResponse(resp))
		}
	}
	return Result{Outbound: outbound, Dispatched: dispatched}
}

// badRequestResponse builds a 400 response for a request that failed to
// parse at all, so no original requestId is available to preserve.
func badRequestResponse(message string) *envelope.Response {
	return &envelope.Response{
		RequestID:  uuid.NewString(),
		Code:       400,
		Message:    message,
		ServerTime: time.Now(),
	}
}
