// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

// Recognize reports whether buf's head plausibly begins a Modbus RTU
// frame: the first byte must fall within the valid unit ID range, and at
// least one candidate length drawn from the same enumeration Decode uses
// (exception, default, read-response, write-multiple) must be fully
// present in buf and pass its CRC check. Unlike Decode, this never
// resynchronises or waits — it is a single point-in-time recognition test
// for the auto-detector's lookahead window, not a framing loop.
func Recognize(buf []byte) bool {
	if len(buf) < 2 || buf[0] > 247 {
		return false
	}
	function := buf[1]

	// An exception response's top bit rules out every other shape; 5 is
	// the only candidate ever considered, not the first of several.
	if function&exceptionFlag != 0 {
		return MinFrameLen <= len(buf) && validCRC(buf[:MinFrameLen])
	}

	var candidates []int
	candidates = append(candidates, defaultCandidateLen)
	if len(buf) > 2 {
		candidates = append(candidates, 5+int(buf[2]))
	}
	if (function == FuncCodeWriteMultipleCoils || function == FuncCodeWriteMultipleRegister) && len(buf) >= 7 {
		candidates = append(candidates, 9+int(buf[6]))
	}

	for _, c := range candidates {
		if c <= len(buf) && validCRC(buf[:c]) {
			return true
		}
	}
	return false
}
