// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	// MinFrameLen is the minimum RTU frame size: an exception response
	// (unit ID, function|0x80, exception code, CRC lo, CRC hi).
	MinFrameLen = 5

	// defaultCandidateLen is the fixed ADU length for function codes
	// 01/02/03/04 requests and 05/06 request-and-response.
	defaultCandidateLen = 8

	exceptionFlag = 0x80
)

// Function codes relevant to frame-length guessing. The core never
// interprets payload semantics beyond this.
const (
	FuncCodeReadCoils           = 0x01
	FuncCodeReadDiscreteInputs  = 0x02
	FuncCodeReadHoldingRegister = 0x03
	FuncCodeReadInputRegister   = 0x04

	FuncCodeWriteSingleCoil       = 0x05
	FuncCodeWriteSingleRegister   = 0x06
	FuncCodeWriteMultipleCoils    = 0x0F
	FuncCodeWriteMultipleRegister = 0x10
	FuncCodeMaskWriteRegister     = 0x16

	FuncCodeReadWriteMultipleRegister = 0x17
	FuncCodeReadFIFOQueue             = 0x18
)
