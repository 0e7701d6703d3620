// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package pipeline

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/ffutop/tcpframe/internal/config"
	"github.com/ffutop/tcpframe/internal/router"
	"github.com/ffutop/tcpframe/internal/wire/length"
)

type parsedResponse struct {
	RequestID string          `json:"requestId"`
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	ServerTime string         `json:"serverTime"`
}

func decodeResponse(t *testing.T, raw []byte) parsedResponse {
	t.Helper()
	var r parsedResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		t.Fatalf("response does not parse as JSON: %v (%s)", err, raw)
	}
	return r
}

func buildRTUFrame(body []byte) []byte {
	var crc uint16 = 0xFFFF
	for _, b := range body {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return append(append([]byte{}, body...), byte(crc), byte(crc>>8))
}

func TestScenario1_PingViaLengthField(t *testing.T) {
	p := New(config.FramingLengthField, 1<<20, 64, true, router.New())

	payload := []byte(`{"requestId":"t1","action":"PING","data":{}}`)
	input := length.Encode(payload)

	result := p.Feed(input)
	if result.Fatal != nil {
		t.Fatalf("unexpected fatal: %v", result.Fatal)
	}
	if result.Dispatched != 1 {
		t.Fatalf("Dispatched = %d, want 1", result.Dispatched)
	}
	if len(result.Outbound) != 1 {
		t.Fatalf("got %d outbound messages, want 1", len(result.Outbound))
	}

	payloads, _, err := length.NewFramer(1 << 20).Decode(result.Outbound[0])
	if err != nil || len(payloads) != 1 {
		t.Fatalf("outbound is not a valid length-prefixed frame: err=%v payloads=%d", err, len(payloads))
	}

	resp := decodeResponse(t, payloads[0])
	if resp.RequestID != "t1" {
		t.Errorf("requestId = %q, want t1", resp.RequestID)
	}
	if resp.Code != 0 {
		t.Errorf("code = %d, want 0", resp.Code)
	}
	var data struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.Action != "PONG" {
		t.Errorf("data.action = %q (err=%v), want PONG", data.Action, err)
	}
}

func TestScenario2_MalformedJSONViaLengthField(t *testing.T) {
	p := New(config.FramingLengthField, 1<<20, 64, true, router.New())

	input := length.Encode([]byte("not-a-json"))
	result := p.Feed(input)
	if result.Fatal != nil {
		t.Fatalf("malformed payload must not be fatal on the length-prefixed path: %v", result.Fatal)
	}
	if len(result.Outbound) != 1 {
		t.Fatalf("got %d outbound messages, want 1", len(result.Outbound))
	}

	payloads, _, err := length.NewFramer(1 << 20).Decode(result.Outbound[0])
	if err != nil || len(payloads) != 1 {
		t.Fatalf("bad outbound frame: err=%v", err)
	}
	resp := decodeResponse(t, payloads[0])
	if resp.Code != 400 {
		t.Errorf("code = %d, want 400", resp.Code)
	}
}

func TestScenario3_FragmentedStreamingPing(t *testing.T) {
	p := New(config.FramingJSONObject, 1<<20, 64, true, router.New())

	payload := []byte(`{"requestId":"t2","action":"PING","data":{}}`)

	result := p.Feed(payload[:10])
	if result.Fatal != nil {
		t.Fatalf("unexpected fatal: %v", result.Fatal)
	}
	if len(result.Outbound) != 0 {
		t.Fatalf("expected zero outbound for a partial value, got %d", len(result.Outbound))
	}

	result = p.Feed(payload[10:])
	if result.Fatal != nil {
		t.Fatalf("unexpected fatal: %v", result.Fatal)
	}
	if len(result.Outbound) != 1 {
		t.Fatalf("expected exactly one response once the value completes, got %d", len(result.Outbound))
	}
	resp := decodeResponse(t, result.Outbound[0])
	if resp.RequestID != "t2" || resp.Code != 0 {
		t.Errorf("resp = %+v, want requestId=t2 code=0", resp)
	}
}

func TestScenario4_ConcatenatedModbusFrames(t *testing.T) {
	p := New(config.FramingModbusRTU, 1024, 64, true, router.New())

	raw, err := hex.DecodeString("01020100003079e2" + "010206000080008000a8b9")
	if err != nil {
		t.Fatalf("bad fixture: %v", err)
	}

	result := p.Feed(raw)
	if result.Fatal != nil {
		t.Fatalf("unexpected fatal: %v", result.Fatal)
	}
	if len(result.Frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(result.Frames))
	}
	if hex.EncodeToString(result.Frames[0]) != "01020100003079e2" {
		t.Errorf("frame[0] = %x", result.Frames[0])
	}
	if hex.EncodeToString(result.Frames[1]) != "010206000080008000a8b9" {
		t.Errorf("frame[1] = %x", result.Frames[1])
	}
}

func TestScenario5_AutoDetectJSON(t *testing.T) {
	p := New(config.FramingAuto, 1<<20, 64, true, router.New())

	payload := []byte(`{"requestId":"t3","action":"PING","data":{}}`)
	result := p.Feed(payload)
	if result.Fatal != nil {
		t.Fatalf("unexpected fatal: %v", result.Fatal)
	}
	if p.Mode() != config.FramingJSONObject {
		t.Fatalf("Mode() = %q, want %q", p.Mode(), config.FramingJSONObject)
	}
	if len(result.Outbound) != 1 {
		t.Fatalf("got %d outbound, want 1", len(result.Outbound))
	}
	resp := decodeResponse(t, result.Outbound[0])
	if resp.RequestID != "t3" || resp.Code != 0 {
		t.Errorf("resp = %+v, want requestId=t3 code=0", resp)
	}
}

func TestScenario6_AutoDetectModbus(t *testing.T) {
	p := New(config.FramingAuto, 1<<20, 64, true, router.New())

	raw, err := hex.DecodeString("01020100003079e2" + "010206000080008000a8b9")
	if err != nil {
		t.Fatalf("bad fixture: %v", err)
	}

	result := p.Feed(raw)
	if result.Fatal != nil {
		t.Fatalf("unexpected fatal: %v", result.Fatal)
	}
	if p.Mode() != config.FramingModbusRTU {
		t.Fatalf("Mode() = %q, want %q", p.Mode(), config.FramingModbusRTU)
	}
	if len(result.Frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(result.Frames))
	}
}

func TestPipeline_RawModePassesBytesThroughUnframed(t *testing.T) {
	p := New(config.FramingRaw, 1<<20, 64, true, router.New())
	result := p.Feed([]byte{0x01, 0x02, 0x03})
	if result.Fatal != nil {
		t.Fatalf("unexpected fatal: %v", result.Fatal)
	}
	if len(result.Frames) != 1 || len(result.Frames[0]) != 3 {
		t.Fatalf("Frames = %v, want one 3-byte chunk", result.Frames)
	}
}

func TestPipeline_RespondDisabledSuppressesOutbound(t *testing.T) {
	p := New(config.FramingLengthField, 1<<20, 64, false, router.New())
	input := length.Encode([]byte(`{"action":"PING"}`))

	result := p.Feed(input)
	if result.Fatal != nil {
		t.Fatalf("unexpected fatal: %v", result.Fatal)
	}
	if len(result.Outbound) != 0 {
		t.Fatalf("respondEnabled=false must suppress all outbound writes, got %d", len(result.Outbound))
	}
	if result.Dispatched != 1 {
		t.Fatalf("Dispatched = %d, want 1: respondEnabled=false must not stop the router from being driven", result.Dispatched)
	}
}

func TestPipeline_LineFramingRoundTrip(t *testing.T) {
	p := New(config.FramingLine, 1<<20, 64, true, router.New())
	result := p.Feed([]byte("{\"requestId\":\"l1\",\"action\":\"PING\"}\n"))
	if result.Fatal != nil {
		t.Fatalf("unexpected fatal: %v", result.Fatal)
	}
	if len(result.Outbound) != 1 {
		t.Fatalf("got %d outbound, want 1", len(result.Outbound))
	}
	if result.Outbound[0][len(result.Outbound[0])-1] != '\n' {
		t.Errorf("line-framed outbound must end in LF: %q", result.Outbound[0])
	}
	resp := decodeResponse(t, result.Outbound[0][:len(result.Outbound[0])-1])
	if resp.RequestID != "l1" || resp.Code != 0 {
		t.Errorf("resp = %+v, want requestId=l1 code=0", resp)
	}
}

func TestPipeline_JSONStreamCorruptionClosesConnection(t *testing.T) {
	p := New(config.FramingJSONObject, 1<<20, 64, true, router.New())
	result := p.Feed([]byte(`garbage`))
	if result.Fatal == nil {
		t.Fatal("malformed leading byte on the streaming path must be fatal")
	}
}

func TestPipeline_ModbusFrameTooLongIsFatal(t *testing.T) {
	p := New(config.FramingModbusRTU, 10, 64, true, router.New())
	body := []byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x20, 0x40}
	frame := buildRTUFrame(body)

	result := p.Feed(frame)
	if result.Fatal == nil {
		t.Fatal("a declared length beyond the ceiling must be fatal")
	}
}
