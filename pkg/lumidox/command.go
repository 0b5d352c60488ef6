// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lumidox

import (
	"fmt"
	"time"
)

// ValueKind describes how a register's 16-bit value is interpreted
type ValueKind int

const (
	// KindInteger is a signed 16-bit count (mA, mode, unit index, character)
	KindInteger ValueKind = iota
	// KindMeasurement is tenths of a unit (V, W, mW)
	KindMeasurement
)

// String returns the kind name
func (k ValueKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindMeasurement:
		return "measurement"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Command represents a single request to the device. A command is
// immutable once built and models exactly one request/response exchange.
type Command struct {
	code      uint8
	value     uint16
	stage     int // 0 for commands outside the stage register blocks
	register  StageRegister
	kind      ValueKind
	timestamp time.Time
}

// NewCommand creates a command for an arbitrary code and value
func NewCommand(code uint8, value uint16, kind ValueKind) *Command {
	return &Command{
		code:      code,
		value:     value,
		kind:      kind,
		timestamp: time.Now(),
	}
}

// Code returns the command code sent on the wire
func (c *Command) Code() uint8 {
	return c.code
}

// Value returns the command payload
func (c *Command) Value() uint16 {
	return c.value
}

// Stage returns the stage number (1-5) for stage register reads, 0 otherwise
func (c *Command) Stage() int {
	return c.stage
}

// Register returns the stage register offset. Only meaningful when Stage() > 0.
func (c *Command) Register() StageRegister {
	return c.register
}

// Kind returns how the response to this command is interpreted
func (c *Command) Kind() ValueKind {
	return c.kind
}

// Timestamp returns when the command was built or decoded
func (c *Command) Timestamp() time.Time {
	return c.timestamp
}

// IsStageRead returns true if the command addresses a stage register block
func (c *Command) IsStageRead() bool {
	return c.stage > 0
}

// ValidStage reports whether stage is in 1..StageCount
func ValidStage(stage int) bool {
	return stage >= 1 && stage <= StageCount
}

// StageBase returns the base address of a stage register block.
// base(n) = FirstStageBase + StageBaseStride*(n-1)
func StageBase(stage int) (uint8, error) {
	if !ValidStage(stage) {
		return 0, fmt.Errorf("stage %d out of range 1-%d", stage, StageCount)
	}
	return uint8(FirstStageBase + StageBaseStride*(stage-1)), nil
}

// StageAddress returns the command code for a register within a stage block
func StageAddress(stage int, reg StageRegister) (uint8, error) {
	if reg < RegArmCurrent || reg > RegPerUnits {
		return 0, fmt.Errorf("register offset %d outside stage block", int(reg))
	}
	base, err := StageBase(stage)
	if err != nil {
		return 0, err
	}
	return uint8(int(base) + int(reg)), nil
}

// StageForAddress maps a command code back to its stage and register.
// Returns ok=false for codes outside every stage block.
func StageForAddress(code uint8) (stage int, reg StageRegister, ok bool) {
	for s := 1; s <= StageCount; s++ {
		base := FirstStageBase + StageBaseStride*(s-1)
		off := int(code) - base
		if off >= int(RegArmCurrent) && off <= int(RegPerUnits) {
			return s, StageRegister(off), true
		}
	}
	return 0, 0, false
}

// RegisterKind returns the value kind held by a stage register
func RegisterKind(reg StageRegister) ValueKind {
	switch reg {
	case RegVoltLimit, RegVoltStart, RegTotalPower, RegPerPower:
		return KindMeasurement
	default:
		return KindInteger
	}
}
