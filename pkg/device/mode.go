// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"fmt"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
)

// Mode is the device operating mode
type Mode int

const (
	ModeLocal   Mode = lumidox.ModeValueLocal
	ModeStandby Mode = lumidox.ModeValueStandby
	ModeArmed   Mode = lumidox.ModeValueArmed
	ModeRemote  Mode = lumidox.ModeValueRemote
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "Local"
	case ModeStandby:
		return "Standby"
	case ModeArmed:
		return "Armed"
	case ModeRemote:
		return "Remote"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Ready reports whether the device accepts remote operations in this mode.
// Local is never ready.
func (m Mode) Ready() bool {
	return m == ModeStandby || m == ModeArmed || m == ModeRemote
}

// CanFire reports whether firing is permitted in this mode
func (m Mode) CanFire() bool {
	return m == ModeArmed || m == ModeRemote
}

// ModeFromValue converts a mode register value. ok is false for values
// outside the four known modes.
func ModeFromValue(v int) (Mode, bool) {
	switch v {
	case lumidox.ModeValueLocal, lumidox.ModeValueStandby, lumidox.ModeValueArmed, lumidox.ModeValueRemote:
		return Mode(v), true
	default:
		return ModeLocal, false
	}
}
