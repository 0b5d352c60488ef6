// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lumidox

import "fmt"

// AnomalyType represents different types of response anomalies
type AnomalyType int

const (
	AnomalyChecksumMismatch AnomalyType = iota
	AnomalyNegativeCurrent
	AnomalyModeOutOfRange
	AnomalyUnknownUnits
	AnomalyInvalidCharacter
	AnomalyDecodeError
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyChecksumMismatch:
		return "checksum mismatch"
	case AnomalyNegativeCurrent:
		return "negative current"
	case AnomalyModeOutOfRange:
		return "mode out of range"
	case AnomalyUnknownUnits:
		return "unknown units"
	case AnomalyInvalidCharacter:
		return "invalid character"
	case AnomalyDecodeError:
		return "decode error"
	default:
		return fmt.Sprintf("anomaly(%d)", int(a))
	}
}

// ValidationError represents a response that decoded but looks wrong
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateResponse checks a decoded response against the command that
// produced it. Returns a slice of validation errors (empty if the response
// looks sane). Anomalies are informational; the value is still usable.
func ValidateResponse(c *Command, r *Response) []ValidationError {
	errors := []ValidationError{}

	if !r.ChecksumValid() {
		errors = append(errors, ValidationError{
			Type:    AnomalyChecksumMismatch,
			Message: fmt.Sprintf("%s response checksum 0x%02X does not match value digits", FormatCode(c.code), r.checksum),
			Details: map[string]interface{}{"checksum": r.checksum, "expected": CalculateChecksum(r.raw[1:5])},
		})
	}

	value := int(r.value)

	switch {
	case c.code == CmdReadRemoteMode:
		if value < ModeValueLocal || value > ModeValueRemote {
			errors = append(errors, ValidationError{
				Type:    AnomalyModeOutOfRange,
				Message: fmt.Sprintf("mode value=%d (valid %d-%d)", value, ModeValueLocal, ModeValueRemote),
				Details: map[string]interface{}{"mode": value},
			})
		}

	case c.code == CmdReadArmCurrent, c.code == CmdReadFireCurrent:
		errors = append(errors, checkCurrent(c, value)...)

	case isIdentityCode(c.code):
		if value < 0 || value > 255 {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidCharacter,
				Message: fmt.Sprintf("%s character value=%d (valid 0-255)", FormatCode(c.code), value),
				Details: map[string]interface{}{"value": value},
			})
		}

	case c.IsStageRead():
		switch c.register {
		case RegArmCurrent, RegFireCurrent:
			errors = append(errors, checkCurrent(c, value)...)
		case RegTotalUnits:
			if TotalUnits(value) == UnknownUnits {
				errors = append(errors, unknownUnits(c, value))
			}
		case RegPerUnits:
			if PerUnits(value) == UnknownUnits {
				errors = append(errors, unknownUnits(c, value))
			}
		}
	}

	return errors
}

func checkCurrent(c *Command, value int) []ValidationError {
	if value >= 0 {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyNegativeCurrent,
		Message: fmt.Sprintf("%s current=%d mA", FormatCode(c.code), value),
		Details: map[string]interface{}{"current": value, "stage": c.stage},
	}}
}

func unknownUnits(c *Command, value int) ValidationError {
	return ValidationError{
		Type:    AnomalyUnknownUnits,
		Message: fmt.Sprintf("stage %d unit index=%d not in device table", c.stage, value),
		Details: map[string]interface{}{"index": value, "stage": c.stage},
	}
}

func isIdentityCode(code uint8) bool {
	if code >= CmdSerialFirst && code < CmdModelFirst+ModelLength {
		return true
	}
	return code == WavelengthCodes[0]
}
