// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package envelope

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseRequest_PreservesNonBlankRequestID(t *testing.T) {
	req, perr := ParseRequest([]byte(`{"requestId":"t1","action":"PING","data":{}}`))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if req.RequestID != "t1" {
		t.Errorf("RequestID = %q, want %q", req.RequestID, "t1")
	}
	if req.Action != "PING" {
		t.Errorf("Action = %q, want PING", req.Action)
	}
}

func TestParseRequest_GeneratesUUIDWhenMissing(t *testing.T) {
	req, perr := ParseRequest([]byte(`{"action":"PING"}`))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if req.RequestID == "" {
		t.Fatal("RequestID must be populated when absent from the wire form")
	}
	if len(strings.Split(req.RequestID, "-")) != 5 {
		t.Errorf("RequestID = %q, does not look like a UUID", req.RequestID)
	}
}

func TestParseRequest_GeneratesUUIDWhenBlank(t *testing.T) {
	req, perr := ParseRequest([]byte(`{"requestId":"   ","action":"PING"}`))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if strings.TrimSpace(req.RequestID) == "" {
		t.Fatal("blank requestId must be replaced, not preserved")
	}
}

func TestParseRequest_IgnoresUnknownTopLevelFields(t *testing.T) {
	req, perr := ParseRequest([]byte(`{"action":"PING","extra":"field","another":1}`))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if req.Action != "PING" {
		t.Errorf("Action = %q, want PING", req.Action)
	}
}

func TestParseRequest_MalformedJSONIsParseError(t *testing.T) {
	_, perr := ParseRequest([]byte(`{not json`))
	if perr == nil {
		t.Fatal("expected a ParseError")
	}
	if perr.Code != 400 {
		t.Errorf("Code = %d, want 400", perr.Code)
	}
}

func TestFormatResponse_FieldsAndServerTimeFormat(t *testing.T) {
	when := time.Date(2026, 8, 3, 12, 30, 45, 250_000_000, time.UTC)
	resp := &Response{
		RequestID:  "r1",
		Code:       0,
		Message:    "ok",
		Data:       json.RawMessage(`{"action":"PONG"}`),
		ServerTime: when,
	}

	out := FormatResponse(resp)

	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("output does not parse as JSON: %v", err)
	}
	if decoded["requestId"] != "r1" {
		t.Errorf("requestId = %v, want r1", decoded["requestId"])
	}
	if decoded["serverTime"] != "2026-08-03T12:30:45.250Z" {
		t.Errorf("serverTime = %v, want 2026-08-03T12:30:45.250Z", decoded["serverTime"])
	}
}

func TestFormatResponse_OmitsDataWhenAbsent(t *testing.T) {
	resp := &Response{RequestID: "r1", Code: 400, Message: "missing field: action", ServerTime: time.Now()}
	out := FormatResponse(resp)

	if strings.Contains(string(out), `"data"`) {
		t.Errorf("output should omit data when absent: %s", out)
	}
}
