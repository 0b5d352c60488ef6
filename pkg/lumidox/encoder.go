// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lumidox

import (
	"fmt"
	"math"
)

const hexDigits = "0123456789abcdef"

// Encode encodes a Command to wire format
func Encode(c *Command) []byte {
	return encodeFrame(c.code, c.value)
}

// EncodeCommand creates a complete wire-formatted command frame.
// Returns an error if value does not fit the 16-bit payload field.
func EncodeCommand(code uint8, value int) ([]byte, error) {
	if value < 0 || value > MaxValue {
		return nil, fmt.Errorf("payload %d exceeds 16-bit register width", value)
	}
	return encodeFrame(code, uint16(value)), nil
}

// EncodeStageCommand encodes a command addressed as stage base + register offset
func EncodeStageCommand(base uint8, reg StageRegister, value int) ([]byte, error) {
	code := int(base) + int(reg)
	if code < 0 || code > 0xFF {
		return nil, fmt.Errorf("address 0x%02X%+d outside command space", base, int(reg))
	}
	return EncodeCommand(uint8(code), value)
}

// encodeFrame builds '*' + code(2) + value(4) + checksum(2) + '\r'
func encodeFrame(code uint8, value uint16) []byte {
	frame := make([]byte, 0, CommandSize)
	frame = append(frame, StartByte)
	frame = appendHex(frame, uint32(code), 2)
	frame = appendHex(frame, uint32(value), 4)
	sum := CalculateChecksum(frame[1:])
	frame = appendHex(frame, uint32(sum), 2)
	frame = append(frame, CommandTerminator)
	return frame
}

// EncodeResponse creates a response frame as the device would send it.
// Used by the simulator and by tests.
func EncodeResponse(value int16) []byte {
	frame := make([]byte, 0, ResponseSize)
	frame = append(frame, StartByte)
	frame = appendHex(frame, uint32(uint16(value)), 4)
	sum := CalculateChecksum(frame[1:])
	frame = appendHex(frame, uint32(sum), 2)
	frame = append(frame, ResponseEnd)
	return frame
}

// EncodeValue converts a logical value back to its register representation
// and encodes it as a response frame.
func EncodeValue(v Value) ([]byte, error) {
	raw, err := v.Raw()
	if err != nil {
		return nil, err
	}
	return EncodeResponse(raw), nil
}

// Raw returns the signed 16-bit register contents for a value
func (v Value) Raw() (int16, error) {
	var n float64
	switch v.Kind {
	case KindInteger:
		n = float64(v.Integer)
	case KindMeasurement:
		n = math.Round(v.Measurement * MeasurementScale)
	default:
		return 0, fmt.Errorf("unknown value kind %d", int(v.Kind))
	}
	if n < math.MinInt16 || n > math.MaxInt16 {
		return 0, fmt.Errorf("value %v does not fit a 16-bit register", n)
	}
	return int16(n), nil
}

func appendHex(dst []byte, v uint32, width int) []byte {
	for shift := (width - 1) * 4; shift >= 0; shift -= 4 {
		dst = append(dst, hexDigits[(v>>uint(shift))&0xF])
	}
	return dst
}
