// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lumidox

import "fmt"

// Command builder functions create Command structs ready for encoding.
// Read commands carry a zero payload.

// NewFirmwareVersionRequest creates a firmware version read (0x02)
func NewFirmwareVersionRequest() *Command {
	return NewCommand(CmdFirmwareVersion, 0, KindInteger)
}

// NewReadRemoteMode creates a remote mode read (0x13)
func NewReadRemoteMode() *Command {
	return NewCommand(CmdReadRemoteMode, 0, KindInteger)
}

// NewSetMode creates a SET_MODE command (0x15).
// Mode values: ModeValueLocal (0), ModeValueStandby (1), ModeValueArmed (2),
// ModeValueRemote (3).
func NewSetMode(mode uint16) *Command {
	return NewCommand(CmdSetMode, mode, KindInteger)
}

// NewReadArmCurrent reads the ARM current currently applied (0x20)
func NewReadArmCurrent() *Command {
	return NewCommand(CmdReadArmCurrent, 0, KindInteger)
}

// NewReadFireCurrent reads the FIRE current currently applied (0x21)
func NewReadFireCurrent() *Command {
	return NewCommand(CmdReadFireCurrent, 0, KindInteger)
}

// NewSetArmCurrent writes the ARM current register in mA (0x40)
func NewSetArmCurrent(milliamps uint16) *Command {
	return NewCommand(CmdSetArmCurrent, milliamps, KindInteger)
}

// NewSetCurrent writes the output (FIRE) current in mA (0x41)
func NewSetCurrent(milliamps uint16) *Command {
	return NewCommand(CmdSetCurrent, milliamps, KindInteger)
}

// NewStageRead creates a read of one register in a stage block.
// Returns an error for stages outside 1-5.
func NewStageRead(stage int, reg StageRegister) (*Command, error) {
	code, err := StageAddress(stage, reg)
	if err != nil {
		return nil, err
	}
	c := NewCommand(code, 0, RegisterKind(reg))
	c.stage = stage
	c.register = reg
	return c, nil
}

// NewModelCharRequest reads character index (0-7) of the model number
func NewModelCharRequest(index int) (*Command, error) {
	if index < 0 || index >= ModelLength {
		return nil, fmt.Errorf("model character index %d out of range 0-%d", index, ModelLength-1)
	}
	return NewCommand(uint8(CmdModelFirst+index), 0, KindInteger), nil
}

// NewSerialCharRequest reads character index (0-11) of the serial number
func NewSerialCharRequest(index int) (*Command, error) {
	if index < 0 || index >= SerialLength {
		return nil, fmt.Errorf("serial character index %d out of range 0-%d", index, SerialLength-1)
	}
	return NewCommand(uint8(CmdSerialFirst+index), 0, KindInteger), nil
}

// NewWavelengthCharRequest reads character index (0-4) of the wavelength
func NewWavelengthCharRequest(index int) (*Command, error) {
	if index < 0 || index >= len(WavelengthCodes) {
		return nil, fmt.Errorf("wavelength character index %d out of range 0-%d", index, len(WavelengthCodes)-1)
	}
	return NewCommand(WavelengthCodes[index], 0, KindInteger), nil
}

// FirmwareString formats a firmware version register value
func FirmwareString(value int) string {
	return fmt.Sprintf("1.%d", value)
}
