// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lumidox implements the Lumidox II serial command protocol.
//
// Commands are short ASCII frames carrying a one byte command code and a
// 16-bit value. The device answers every command with a fixed size frame
// holding a signed 16-bit value. This package provides command building,
// frame encoding/decoding, checksum validation, value conversion, and an
// in-memory device simulator used for testing.
package lumidox

import "time"

// Protocol framing bytes
const (
	StartByte         = '*'
	CommandTerminator = '\r'
	ResponseEnd       = '^'
)

// Frame sizes
const (
	CommandSize  = 10 // '*' + 2 code + 4 value + 2 checksum + '\r'
	ResponseSize = 8  // '*' + 4 value + 2 checksum + '^'

	// MaxResponseSize bounds how many bytes a reader accumulates while
	// waiting for ResponseEnd before giving up on a frame.
	MaxResponseSize = 32

	MaxValue = 0xFFFF
)

// Link defaults
const (
	DefaultBaudRate     = 19200
	DefaultTimeout      = 1000 * time.Millisecond
	DefaultProbeTimeout = 300 * time.Millisecond
)

// DefaultBaudCandidates lists baud rates in the order they are probed.
var DefaultBaudCandidates = []int{19200, 9600, 38400, 57600, 115200, 4800}

// Command codes - device information
const (
	CmdFirmwareVersion = 0x02
	CmdSerialFirst     = 0x60 // 12 consecutive codes, one character each
	CmdModelFirst      = 0x6C // 8 consecutive codes, one character each
)

// Command codes - mode and current control
const (
	CmdReadRemoteMode  = 0x13
	CmdSetMode         = 0x15
	CmdReadArmCurrent  = 0x20
	CmdReadFireCurrent = 0x21
	CmdSetArmCurrent   = 0x40
	CmdSetCurrent      = 0x41
)

// Identity string lengths
const (
	SerialLength = 12
	ModelLength  = 8
)

// WavelengthCodes are the (non-contiguous) codes holding the wavelength string.
var WavelengthCodes = []uint8{0x76, 0x81, 0x82, 0x89, 0x8A}

// Stage register map
const (
	StageCount      = 5
	FirstStageBase  = 0x7B
	StageBaseStride = 8
)

// StageRegister selects one register in a stage block, relative to the
// stage base address.
type StageRegister int

const (
	RegArmCurrent  StageRegister = -4
	RegFireCurrent StageRegister = -3
	RegVoltLimit   StageRegister = -2
	RegVoltStart   StageRegister = -1
	RegTotalPower  StageRegister = 0
	RegPerPower    StageRegister = 1
	RegTotalUnits  StageRegister = 2
	RegPerUnits    StageRegister = 3
)

// StageRegisters lists every register of a stage block in address order.
var StageRegisters = []StageRegister{
	RegArmCurrent,
	RegFireCurrent,
	RegVoltLimit,
	RegVoltStart,
	RegTotalPower,
	RegPerPower,
	RegTotalUnits,
	RegPerUnits,
}

// Device mode register values (CmdSetMode / CmdReadRemoteMode)
const (
	ModeValueLocal   = 0
	ModeValueStandby = 1
	ModeValueArmed   = 2
	ModeValueRemote  = 3
)

// Measurement registers carry tenths of their unit.
const MeasurementScale = 10.0

// UnknownUnits is reported for unit indices outside the device tables.
const UnknownUnits = "UNKNOWN UNITS"

var totalUnits = []string{
	"W TOTAL RADIANT POWER",
	"mW TOTAL RADIANT POWER",
	"W/cm² TOTAL IRRADIANCE",
	"mW/cm² TOTAL IRRADIANCE",
	"",
	"A TOTAL CURRENT",
	"mA TOTAL CURRENT",
}

var perUnits = []string{
	"W PER WELL",
	"mW PER WELL",
	"W TOTAL RADIANT POWER",
	"mW TOTAL RADIANT POWER",
	"mW/cm² PER WELL",
	"mW/cm²",
	"J/s",
	"",
	"A PER WELL",
	"mA PER WELL",
}

// TotalUnits returns the unit label for a total-power unit index
func TotalUnits(index int) string {
	if index < 0 || index >= len(totalUnits) {
		return UnknownUnits
	}
	return totalUnits[index]
}

// PerUnits returns the unit label for a per-unit-power unit index
func PerUnits(index int) string {
	if index < 0 || index >= len(perUnits) {
		return UnknownUnits
	}
	return perUnits[index]
}

// TotalUnitsIndex returns the index of a total-power unit label, or -1
func TotalUnitsIndex(label string) int {
	for i, u := range totalUnits {
		if u == label {
			return i
		}
	}
	return -1
}

// PerUnitsIndex returns the index of a per-unit-power unit label, or -1
func PerUnitsIndex(label string) int {
	for i, u := range perUnits {
		if u == label {
			return i
		}
	}
	return -1
}
