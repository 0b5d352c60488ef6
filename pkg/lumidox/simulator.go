// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lumidox

import (
	"fmt"
	"sync"
)

// Simulator is an in-memory Lumidox II device. It answers command frames
// the way the hardware does and records every command it receives.
type Simulator struct {
	mu        sync.Mutex
	registers map[uint8]int16
	received  []*Command
	silent    bool
	garble    []byte
	failCodes map[uint8]bool
}

// NewSimulator creates a simulator loaded with a factory-like register set:
// firmware 1.28, model "LDX-2-96", serial "LX2000123456", wavelength
// "365nm", and stage currents at their nominal values.
func NewSimulator() *Simulator {
	s := &Simulator{
		registers: make(map[uint8]int16),
		failCodes: make(map[uint8]bool),
	}
	s.registers[CmdFirmwareVersion] = 28
	s.registers[CmdReadRemoteMode] = ModeValueLocal
	s.SetString(CmdModelFirst, ModelLength, "LDX-2-96")
	s.SetString(CmdSerialFirst, SerialLength, "LX2000123456")

	type stage struct {
		arm, fire            int16
		voltLimit, voltStart int16 // tenths of a volt
		total, per           int16 // tenths of the unit
	}
	stages := []stage{
		{50, 60, 50, 48, 5, 50},
		{90, 110, 54, 53, 10, 100},
		{200, 230, 110, 109, 24, 250},
		{380, 420, 115, 112, 48, 500},
		{700, 795, 120, 118, 96, 1000},
	}
	for i, st := range stages {
		n := i + 1
		s.SetStageRegister(n, RegArmCurrent, st.arm)
		s.SetStageRegister(n, RegFireCurrent, st.fire)
		s.SetStageRegister(n, RegVoltLimit, st.voltLimit)
		s.SetStageRegister(n, RegVoltStart, st.voltStart)
		s.SetStageRegister(n, RegTotalPower, st.total)
		s.SetStageRegister(n, RegPerPower, st.per)
		if err := s.SetStageUnits(n, "W TOTAL RADIANT POWER", "mW PER WELL"); err != nil {
			panic(err)
		}
	}

	// The four upper wavelength codes share addresses with the stage 2 and
	// stage 3 voltage registers, so only the first character is separate.
	// The voltages above were chosen to read back as "65nm".
	s.registers[WavelengthCodes[0]] = '3'

	return s
}

// SetRegister sets the value returned for a command code
func (s *Simulator) SetRegister(code uint8, value int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registers[code] = value
}

// Register returns the current value of a command code's register
func (s *Simulator) Register(code uint8) int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registers[code]
}

// SetStageRegister sets one register in a stage block. Panics on an
// invalid stage; callers are tests and fixtures.
func (s *Simulator) SetStageRegister(stage int, reg StageRegister, value int16) {
	code, err := StageAddress(stage, reg)
	if err != nil {
		panic(err)
	}
	s.SetRegister(code, value)
}

// SetStageUnits stores the unit registers of a stage by label
func (s *Simulator) SetStageUnits(stage int, total, per string) error {
	ti, pi := TotalUnitsIndex(total), PerUnitsIndex(per)
	if ti < 0 {
		return fmt.Errorf("unknown total units %q", total)
	}
	if pi < 0 {
		return fmt.Errorf("unknown per units %q", per)
	}
	s.SetStageRegister(stage, RegTotalUnits, int16(ti))
	s.SetStageRegister(stage, RegPerUnits, int16(pi))
	return nil
}

// SetString stores a string one character per consecutive code, NUL padded
func (s *Simulator) SetString(first uint8, length int, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < length; i++ {
		var ch int16
		if i < len(value) {
			ch = int16(value[i])
		}
		s.registers[first+uint8(i)] = ch
	}
}

// Mode returns the mode register value
func (s *Simulator) Mode() int {
	return int(s.Register(CmdReadRemoteMode))
}

// SetSilent makes the simulator stop answering
func (s *Simulator) SetSilent(silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = silent
}

// SetGarbled makes the simulator answer every command with reply instead
// of a valid frame. A nil reply restores normal answers.
func (s *Simulator) SetGarbled(reply []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.garble = reply
}

// FailCode makes the simulator stay silent for one command code
func (s *Simulator) FailCode(code uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCodes[code] = true
}

// Received returns every command decoded so far, in order
func (s *Simulator) Received() []*Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Command, len(s.received))
	copy(out, s.received)
	return out
}

// ReceivedCodes returns the codes of every command decoded so far
func (s *Simulator) ReceivedCodes() []uint8 {
	cmds := s.Received()
	codes := make([]uint8, len(cmds))
	for i, c := range cmds {
		codes[i] = c.code
	}
	return codes
}

// ClearReceived forgets the command log
func (s *Simulator) ClearReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = nil
}

// Handle answers one command frame. A nil result means the device stays
// silent (unparseable frame, silent mode, or a failed code).
func (s *Simulator) Handle(frame []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.silent {
		return nil
	}
	if s.garble != nil {
		out := make([]byte, len(s.garble))
		copy(out, s.garble)
		return out
	}

	c, err := DecodeCommand(frame)
	if err != nil {
		return nil
	}
	s.received = append(s.received, c)
	if s.failCodes[c.code] {
		return nil
	}

	switch c.code {
	case CmdSetMode:
		if c.value > ModeValueRemote {
			return EncodeResponse(-1)
		}
		s.registers[CmdReadRemoteMode] = int16(c.value)
		return EncodeResponse(int16(c.value))

	case CmdSetArmCurrent:
		s.registers[CmdReadArmCurrent] = int16(c.value)
		return EncodeResponse(int16(c.value))

	case CmdSetCurrent:
		s.registers[CmdReadFireCurrent] = int16(c.value)
		return EncodeResponse(int16(c.value))
	}

	return EncodeResponse(s.registers[c.code])
}
