// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lumidox

import (
	"fmt"
	"strings"
)

// FormatCommand formats a command into a human-readable string
func FormatCommand(c *Command) string {
	timestamp := c.timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] -> %s (0x%02X)", timestamp, FormatCode(c.code), c.code)
	if c.code == CmdSetMode {
		result += fmt.Sprintf(" mode=%s", FormatModeValue(int(c.value)))
	} else if c.value != 0 || c.code == CmdSetArmCurrent || c.code == CmdSetCurrent {
		result += fmt.Sprintf(" value=%d", c.value)
	}
	return result
}

// FormatResponse formats a response in the context of its command
func FormatResponse(c *Command, r *Response) string {
	timestamp := r.timestamp.Format("15:04:05.000")
	v := r.Interpret(c.kind)
	result := fmt.Sprintf("[%s] <- %s = %s", timestamp, FormatCode(c.code), v)

	switch {
	case c.code == CmdFirmwareVersion:
		result += fmt.Sprintf(" (firmware %s)", FirmwareString(v.Integer))
	case c.code == CmdReadRemoteMode:
		result += fmt.Sprintf(" (%s)", FormatModeValue(v.Integer))
	case isIdentityCode(c.code) && v.Integer > 0 && v.Integer < 128:
		result += fmt.Sprintf(" (%q)", rune(v.Integer))
	case c.IsStageRead() && c.register == RegTotalUnits:
		result += fmt.Sprintf(" (%s)", TotalUnits(v.Integer))
	case c.IsStageRead() && c.register == RegPerUnits:
		result += fmt.Sprintf(" (%s)", PerUnits(v.Integer))
	}
	return result
}

// FormatFrame renders raw frame bytes with control characters escaped
func FormatFrame(raw []byte) string {
	var sb strings.Builder
	for _, b := range raw {
		switch {
		case b == '\r':
			sb.WriteString(`\r`)
		case b == '\n':
			sb.WriteString(`\n`)
		case b < 0x20 || b > 0x7E:
			fmt.Fprintf(&sb, `\x%02x`, b)
		default:
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

// FormatModeValue returns the name for a mode register value
func FormatModeValue(v int) string {
	switch v {
	case ModeValueLocal:
		return "LOCAL"
	case ModeValueStandby:
		return "STANDBY"
	case ModeValueArmed:
		return "ARMED"
	case ModeValueRemote:
		return "REMOTE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", v)
	}
}

// FormatRegister returns the name for a stage register
func FormatRegister(reg StageRegister) string {
	switch reg {
	case RegArmCurrent:
		return "ARM_CURRENT"
	case RegFireCurrent:
		return "FIRE_CURRENT"
	case RegVoltLimit:
		return "VOLT_LIMIT"
	case RegVoltStart:
		return "VOLT_START"
	case RegTotalPower:
		return "TOTAL_POWER"
	case RegPerPower:
		return "PER_POWER"
	case RegTotalUnits:
		return "TOTAL_UNITS"
	case RegPerUnits:
		return "PER_UNITS"
	default:
		return fmt.Sprintf("REG(%+d)", int(reg))
	}
}

// FormatCode returns the human-readable name for a command code
func FormatCode(code uint8) string {
	switch code {
	case CmdFirmwareVersion:
		return "FIRMWARE_VERSION"
	case CmdReadRemoteMode:
		return "READ_REMOTE_MODE"
	case CmdSetMode:
		return "SET_MODE"
	case CmdReadArmCurrent:
		return "READ_ARM_CURRENT"
	case CmdReadFireCurrent:
		return "READ_FIRE_CURRENT"
	case CmdSetArmCurrent:
		return "SET_ARM_CURRENT"
	case CmdSetCurrent:
		return "SET_CURRENT"
	case WavelengthCodes[0]:
		return "WAVELENGTH[0]"
	}

	if code >= CmdSerialFirst && code < CmdSerialFirst+SerialLength {
		return fmt.Sprintf("SERIAL[%d]", code-CmdSerialFirst)
	}
	if code >= CmdModelFirst && code < CmdModelFirst+ModelLength {
		return fmt.Sprintf("MODEL[%d]", code-CmdModelFirst)
	}
	if stage, reg, ok := StageForAddress(code); ok {
		return fmt.Sprintf("STAGE%d_%s", stage, FormatRegister(reg))
	}
	return fmt.Sprintf("UNKNOWN_0x%02X", code)
}
