// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lumidox

import (
	"fmt"
	"time"
)

// Response represents a decoded device reply
type Response struct {
	raw       []byte
	value     int16
	checksum  uint8
	timestamp time.Time
}

// Raw returns the frame bytes as received
func (r *Response) Raw() []byte {
	return r.raw
}

// Value returns the register contents as a signed 16-bit number
func (r *Response) Value() int16 {
	return r.value
}

// Checksum returns the checksum field sent by the device
func (r *Response) Checksum() uint8 {
	return r.checksum
}

// ChecksumValid reports whether the checksum field matches the value digits
func (r *Response) ChecksumValid() bool {
	return CalculateChecksum(r.raw[1:5]) == r.checksum
}

// Timestamp returns the decode timestamp
func (r *Response) Timestamp() time.Time {
	return r.timestamp
}

// Interpret converts the raw register contents according to kind
func (r *Response) Interpret(kind ValueKind) Value {
	v := Value{Kind: kind, Integer: int(r.value)}
	if kind == KindMeasurement {
		v.Measurement = float64(r.value) / MeasurementScale
	}
	return v
}

// Value is a decoded register value
type Value struct {
	Kind        ValueKind
	Integer     int     // raw signed register contents
	Measurement float64 // Integer scaled by MeasurementScale (KindMeasurement only)
	Unit        string
}

// WithUnit returns a copy of v carrying unit
func (v Value) WithUnit(unit string) Value {
	v.Unit = unit
	return v
}

// String formats the value for display
func (v Value) String() string {
	if v.Kind == KindMeasurement {
		if v.Unit == "" {
			return fmt.Sprintf("%.1f", v.Measurement)
		}
		return fmt.Sprintf("%.1f %s", v.Measurement, v.Unit)
	}
	if v.Unit == "" {
		return fmt.Sprintf("%d", v.Integer)
	}
	return fmt.Sprintf("%d %s", v.Integer, v.Unit)
}

// ParseResponse decodes one complete response frame. The frame must be
// exactly ResponseSize bytes; anything else is a *ProtocolError.
func ParseResponse(raw []byte) (*Response, error) {
	if len(raw) != ResponseSize {
		return nil, malformed(raw, "length %d, want %d", len(raw), ResponseSize)
	}

	d := NewDecoder()
	for i, b := range raw {
		resp, err := d.DecodeByte(b)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			if i != len(raw)-1 {
				return nil, malformed(raw, "trailing bytes after terminator")
			}
			return resp, nil
		}
	}
	return nil, malformed(raw, "missing terminator")
}

// Decode decodes a response frame and interprets it as kind.
// Decoding is all or nothing: a malformed frame never yields a partial value.
func Decode(raw []byte, kind ValueKind) (Value, error) {
	resp, err := ParseResponse(raw)
	if err != nil {
		return Value{}, err
	}
	return resp.Interpret(kind), nil
}
