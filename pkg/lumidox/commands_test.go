// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lumidox

import (
	"strings"
	"testing"
)

func TestCommandBuilders(t *testing.T) {
	tests := []struct {
		name      string
		cmd       *Command
		wantCode  uint8
		wantValue uint16
	}{
		{"firmware", NewFirmwareVersionRequest(), CmdFirmwareVersion, 0},
		{"read mode", NewReadRemoteMode(), CmdReadRemoteMode, 0},
		{"set mode armed", NewSetMode(ModeValueArmed), CmdSetMode, 2},
		{"read arm current", NewReadArmCurrent(), CmdReadArmCurrent, 0},
		{"read fire current", NewReadFireCurrent(), CmdReadFireCurrent, 0},
		{"set arm current", NewSetArmCurrent(150), CmdSetArmCurrent, 150},
		{"set current", NewSetCurrent(795), CmdSetCurrent, 795},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cmd.Code() != tt.wantCode {
				t.Errorf("Code() = 0x%02X, want 0x%02X", tt.cmd.Code(), tt.wantCode)
			}
			if tt.cmd.Value() != tt.wantValue {
				t.Errorf("Value() = %d, want %d", tt.cmd.Value(), tt.wantValue)
			}
			if tt.cmd.IsStageRead() {
				t.Error("IsStageRead() = true, want false")
			}
			if tt.cmd.Timestamp().IsZero() {
				t.Error("Timestamp() is zero")
			}
		})
	}
}

func TestNewStageRead(t *testing.T) {
	c, err := NewStageRead(5, RegFireCurrent)
	if err != nil {
		t.Fatalf("NewStageRead failed: %v", err)
	}
	if c.Code() != 0x98 {
		t.Errorf("Code() = 0x%02X, want 0x98", c.Code())
	}
	if c.Stage() != 5 || c.Register() != RegFireCurrent || !c.IsStageRead() {
		t.Errorf("stage/register = %d/%d", c.Stage(), c.Register())
	}
	if c.Kind() != KindInteger {
		t.Errorf("Kind() = %v, want integer", c.Kind())
	}

	v, err := NewStageRead(2, RegVoltLimit)
	if err != nil {
		t.Fatalf("NewStageRead failed: %v", err)
	}
	if v.Kind() != KindMeasurement {
		t.Errorf("volt limit Kind() = %v, want measurement", v.Kind())
	}

	for _, stage := range []int{0, 6} {
		if _, err := NewStageRead(stage, RegTotalPower); err == nil {
			t.Errorf("NewStageRead(%d) should fail", stage)
		}
	}
}

func TestIdentityCharRequests(t *testing.T) {
	m, err := NewModelCharRequest(7)
	if err != nil || m.Code() != 0x73 {
		t.Errorf("NewModelCharRequest(7) = %v, %v; want code 0x73", m, err)
	}
	s, err := NewSerialCharRequest(11)
	if err != nil || s.Code() != 0x6B {
		t.Errorf("NewSerialCharRequest(11) = %v, %v; want code 0x6B", s, err)
	}
	w, err := NewWavelengthCharRequest(4)
	if err != nil || w.Code() != 0x8A {
		t.Errorf("NewWavelengthCharRequest(4) = %v, %v; want code 0x8A", w, err)
	}

	if _, err := NewModelCharRequest(ModelLength); err == nil {
		t.Error("model index out of range should fail")
	}
	if _, err := NewSerialCharRequest(-1); err == nil {
		t.Error("serial index out of range should fail")
	}
	if _, err := NewWavelengthCharRequest(5); err == nil {
		t.Error("wavelength index out of range should fail")
	}
}

func TestFirmwareString(t *testing.T) {
	if got := FirmwareString(28); got != "1.28" {
		t.Errorf("FirmwareString(28) = %q, want 1.28", got)
	}
}

// ============================================================================
// Validator Tests
// ============================================================================

func mustParse(t *testing.T, raw []byte) *Response {
	t.Helper()
	r, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse(%q) failed: %v", raw, err)
	}
	return r
}

func TestValidateResponse_Valid(t *testing.T) {
	c, _ := NewStageRead(1, RegFireCurrent)
	errs := ValidateResponse(c, mustParse(t, EncodeResponse(60)))
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestValidateResponse_Anomalies(t *testing.T) {
	stageTotalUnits, _ := NewStageRead(2, RegTotalUnits)
	stagePerUnits, _ := NewStageRead(2, RegPerUnits)
	stageArm, _ := NewStageRead(4, RegArmCurrent)
	model, _ := NewModelCharRequest(0)

	tests := []struct {
		name string
		cmd  *Command
		raw  []byte
		want AnomalyType
	}{
		{"checksum", NewFirmwareVersionRequest(), []byte("*001c00^"), AnomalyChecksumMismatch},
		{"mode range", NewReadRemoteMode(), EncodeResponse(7), AnomalyModeOutOfRange},
		{"negative active current", NewReadFireCurrent(), EncodeResponse(-5), AnomalyNegativeCurrent},
		{"negative stage current", stageArm, EncodeResponse(-1), AnomalyNegativeCurrent},
		{"total units", stageTotalUnits, EncodeResponse(12), AnomalyUnknownUnits},
		{"per units", stagePerUnits, EncodeResponse(10), AnomalyUnknownUnits},
		{"identity char", model, EncodeResponse(300), AnomalyInvalidCharacter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateResponse(tt.cmd, mustParse(t, tt.raw))
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
			}
			if errs[0].Type != tt.want {
				t.Errorf("Type = %v, want %v", errs[0].Type, tt.want)
			}
			if errs[0].Error() == "" {
				t.Error("Error() is empty")
			}
		})
	}
}

// ============================================================================
// Formatter Tests
// ============================================================================

func TestFormatCode(t *testing.T) {
	tests := []struct {
		code uint8
		want string
	}{
		{CmdFirmwareVersion, "FIRMWARE_VERSION"},
		{CmdSetMode, "SET_MODE"},
		{CmdSetCurrent, "SET_CURRENT"},
		{0x60, "SERIAL[0]"},
		{0x73, "MODEL[7]"},
		{0x76, "WAVELENGTH[0]"},
		{0x8B, "STAGE3_TOTAL_POWER"},
		{0x98, "STAGE5_FIRE_CURRENT"},
		{0xF0, "UNKNOWN_0xF0"},
	}
	for _, tt := range tests {
		if got := FormatCode(tt.code); got != tt.want {
			t.Errorf("FormatCode(0x%02X) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestFormatModeValue(t *testing.T) {
	want := []string{"LOCAL", "STANDBY", "ARMED", "REMOTE"}
	for v, w := range want {
		if got := FormatModeValue(v); got != w {
			t.Errorf("FormatModeValue(%d) = %q, want %q", v, got, w)
		}
	}
	if got := FormatModeValue(9); got != "UNKNOWN(9)" {
		t.Errorf("FormatModeValue(9) = %q", got)
	}
}

func TestFormatCommandAndResponse(t *testing.T) {
	c := NewSetMode(ModeValueArmed)
	if s := FormatCommand(c); !strings.Contains(s, "SET_MODE") || !strings.Contains(s, "ARMED") {
		t.Errorf("FormatCommand = %q", s)
	}

	fw := NewFirmwareVersionRequest()
	s := FormatResponse(fw, mustParse(t, EncodeResponse(28)))
	if !strings.Contains(s, "firmware 1.28") {
		t.Errorf("FormatResponse = %q", s)
	}

	units, _ := NewStageRead(1, RegTotalUnits)
	s = FormatResponse(units, mustParse(t, EncodeResponse(1)))
	if !strings.Contains(s, "mW TOTAL RADIANT POWER") {
		t.Errorf("FormatResponse = %q", s)
	}
}

func TestFormatFrame(t *testing.T) {
	if got := FormatFrame([]byte("*15000329\r")); got != `*15000329\r` {
		t.Errorf("FormatFrame = %q", got)
	}
	if got := FormatFrame([]byte{0x00, 'A'}); got != `\x00A` {
		t.Errorf("FormatFrame = %q", got)
	}
}
