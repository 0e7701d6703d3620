// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package envelope implements the request/response JSON envelope shared by
// every framing mode: parsing inbound requests and formatting outbound
// responses to the same five-field shape regardless of which framer or
// extractor produced or will carry the bytes.
package envelope

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// serverTimeLayout renders an RFC-3339 UTC instant with millisecond
// precision and a literal Z suffix, per the response envelope contract.
const serverTimeLayout = "2006-01-02T15:04:05.000Z"

// fallbackResponse is returned by FormatResponse when a Response cannot be
// serialised; it is itself guaranteed to marshal, being a fixed literal.
var fallbackResponse = []byte(`{"code":500,"message":"internal server error"}`)

// Request is the normalised form of an inbound request envelope. RequestID
// is always non-blank by the time ParseRequest returns it successfully: a
// missing or blank requestId in the wire form is replaced with a freshly
// generated UUID v4.
type Request struct {
	RequestID string
	Action    string
	Data      json.RawMessage
}

// ParseError reports that the raw bytes or value handed to ParseRequest
// could not be interpreted as a request envelope at all (not valid JSON,
// or not a JSON object). It carries a response-ready code and message;
// action-level validation (blank/missing action) is the router's concern,
// not the codec's.
type ParseError struct {
	Code    int
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}

type wireRequest struct {
	RequestID string          `json:"requestId"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data"`
}

// ParseRequest decodes raw as a single JSON object request envelope. raw
// may come from the length-prefixed path (a whole frame's payload) or the
// streaming path (one root value handed back by the JSON stream
// extractor) — both arrive as exactly the UTF-8 bytes of one JSON value,
// so a single code path serves either. A returned ParseError leaves no
// partial state behind: raw is never consumed incrementally here.
func ParseRequest(raw []byte) (*Request, *ParseError) {
	var wire wireRequest
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &ParseError{Code: 400, Message: "malformed request: " + err.Error()}
	}
	// json.Unmarshal accepts a bare null into a struct without error.
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, &ParseError{Code: 400, Message: "malformed request: not a JSON object"}
	}

	requestID := strings.TrimSpace(wire.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return &Request{
		RequestID: requestID,
		Action:    wire.Action,
		Data:      wire.Data,
	}, nil
}

// Response is the normalised form of an outbound response envelope.
type Response struct {
	RequestID string
	Code      int
	Message   string
	Data      json.RawMessage
	ServerTime time.Time
}

type wireResponse struct {
	RequestID  string          `json:"requestId"`
	Code       int             `json:"code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data,omitempty"`
	ServerTime string          `json:"serverTime"`
}

// FormatResponse serialises r to its five-field wire form. It is total: a
// marshalling failure (which json.RawMessage and the fields above make
// effectively unreachable in practice) falls back to a fixed 500 payload
// rather than propagating an error the caller would have nowhere good to
// route.
func FormatResponse(r *Response) []byte {
	wire := wireResponse{
		RequestID:  r.RequestID,
		Code:       r.Code,
		Message:    r.Message,
		Data:       r.Data,
		ServerTime: r.ServerTime.UTC().Format(serverTimeLayout),
	}

	out, err := json.Marshal(wire)
	if err != nil {
		return fallbackResponse
	}
	return out
}
