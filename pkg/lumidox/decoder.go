// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lumidox

import (
	"time"
)

// Decoder states
const (
	stateIdle = iota
	stateValue
	stateChecksum
	stateEnd
)

// Decoder implements the response frame decoder state machine
type Decoder struct {
	state     int
	digits    uint32
	count     int
	value     uint16
	checksum  uint8
	rawBuffer []byte
}

// NewDecoder creates a new response decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		rawBuffer: make([]byte, 0, MaxResponseSize),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.digits = 0
	d.count = 0
	d.value = 0
	d.checksum = 0
	d.rawBuffer = d.rawBuffer[:0]
}

// GetRawBytes returns the bytes accumulated for the frame in progress
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed response, or nil if the frame is incomplete.
// Any byte that does not fit the frame layout resets the decoder and
// returns a *ProtocolError.
func (d *Decoder) DecodeByte(b byte) (*Response, error) {
	d.rawBuffer = append(d.rawBuffer, b)

	switch d.state {
	case stateIdle:
		if b != StartByte {
			return nil, d.fail("expected start byte, got 0x%02X", b)
		}
		d.state = stateValue
		return nil, nil

	case stateValue, stateChecksum:
		if b == ResponseEnd {
			return nil, d.fail("terminator after %d bytes", len(d.rawBuffer))
		}
		nibble, ok := hexNibble(b)
		if !ok {
			return nil, d.fail("non-hex byte 0x%02X", b)
		}
		d.digits = d.digits<<4 | uint32(nibble)
		d.count++
		if d.state == stateValue && d.count == 4 {
			d.value = uint16(d.digits)
			d.digits, d.count = 0, 0
			d.state = stateChecksum
		} else if d.state == stateChecksum && d.count == 2 {
			d.checksum = uint8(d.digits)
			d.state = stateEnd
		}
		return nil, nil

	case stateEnd:
		if b != ResponseEnd {
			return nil, d.fail("expected terminator, got 0x%02X", b)
		}
		raw := make([]byte, len(d.rawBuffer))
		copy(raw, d.rawBuffer)
		resp := &Response{
			raw:       raw,
			value:     int16(d.value),
			checksum:  d.checksum,
			timestamp: time.Now(),
		}
		d.Reset()
		return resp, nil

	default:
		return nil, d.fail("invalid state: %d", d.state)
	}
}

func (d *Decoder) fail(format string, args ...interface{}) error {
	err := malformed(d.rawBuffer, format, args...)
	d.Reset()
	return err
}

func hexNibble(b byte) (uint8, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	default:
		return 0, false
	}
}

// DecodeCommand parses a command frame as sent to the device. Used by the
// simulator and by capture tooling.
func DecodeCommand(frame []byte) (*Command, error) {
	if len(frame) != CommandSize {
		return nil, malformed(frame, "command length %d, want %d", len(frame), CommandSize)
	}
	if frame[0] != StartByte {
		return nil, malformed(frame, "command missing start byte")
	}
	if frame[CommandSize-1] != CommandTerminator {
		return nil, malformed(frame, "command missing terminator")
	}

	var fields [3]uint32
	widths := [3]int{2, 4, 2}
	pos := 1
	for i, w := range widths {
		for j := 0; j < w; j++ {
			nibble, ok := hexNibble(frame[pos])
			if !ok {
				return nil, malformed(frame, "non-hex byte 0x%02X at %d", frame[pos], pos)
			}
			fields[i] = fields[i]<<4 | uint32(nibble)
			pos++
		}
	}

	if sum := CalculateChecksum(frame[1:7]); uint32(sum) != fields[2] {
		return nil, malformed(frame, "checksum mismatch: expected 0x%02X, got 0x%02X", sum, fields[2])
	}

	code := uint8(fields[0])
	c := NewCommand(code, uint16(fields[1]), KindInteger)
	if stage, reg, ok := StageForAddress(code); ok {
		c.stage = stage
		c.register = reg
		c.kind = RegisterKind(reg)
	}
	return c, nil
}
