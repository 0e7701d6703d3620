// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package router dispatches a parsed request envelope to a response,
// independent of which framing mode produced the request.
package router

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ffutop/tcpframe/internal/envelope"
)

// missingActionMessage is the fixed message for the blank/absent action
// error response.
const missingActionMessage = "missing field: action"

// Router maps a request's action to a response.
type Router struct{}

// New returns a Router. It holds no state: every Handle call is pure
// given its input and the wall clock.
func New() *Router {
	return &Router{}
}

type pongData struct {
	Action string `json:"action"`
}

type echoData struct {
	EchoAction string          `json:"echoAction"`
	EchoData   json.RawMessage `json:"echoData,omitempty"`
}

// Handle returns the response for req. It never returns nil.
func (r *Router) Handle(req *envelope.Request) *envelope.Response {
	now := time.Now()
	action := strings.TrimSpace(req.Action)

	if action == "" {
		return &envelope.Response{
			RequestID:  req.RequestID,
			Code:       400,
			Message:    missingActionMessage,
			ServerTime: now,
		}
	}

	if strings.EqualFold(action, "PING") {
		data, _ := json.Marshal(pongData{Action: "PONG"})
		return &envelope.Response{
			RequestID:  req.RequestID,
			Code:       0,
			ServerTime: now,
			Data:       data,
		}
	}

	data, _ := json.Marshal(echoData{EchoAction: req.Action, EchoData: req.Data})
	return &envelope.Response{
		RequestID:  req.RequestID,
		Code:       0,
		ServerTime: now,
		Data:       data,
	}
}
