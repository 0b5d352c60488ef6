// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"strconv"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"go.uber.org/zap"
)

// FireResult describes a completed fire operation
type FireResult struct {
	Stage      int // 0 for a custom current
	CurrentMA  int
	TotalPower float64 // device-reported output at the stage, if read
	TotalUnits string
	Optimized  bool
}

// requireSession fails once Shutdown has ended the session
func (c *Controller) requireSession(op string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ended {
		return &Error{Op: op, Mode: c.mode, Err: ErrNotReady, Reason: "session ended, initialize first"}
	}
	return nil
}

func (c *Controller) requireFireMode(op string, stage, currentMA int) error {
	if err := c.requireSession(op); err != nil {
		return err
	}
	if m := c.Mode(); !m.CanFire() {
		return &Error{Op: op, Mode: m, Stage: stage, CurrentMA: currentMA, Err: ErrNotReady,
			Reason: "mode " + m.String() + ", arm first"}
	}
	return nil
}

// sendMode writes the mode register and records the mode once confirmed
func (c *Controller) sendMode(op string, m Mode) error {
	if _, err := c.exchange(lumidox.NewSetMode(uint16(m))); err != nil {
		return &Error{Op: op, Mode: c.Mode(), Err: err}
	}
	c.setMode(m, op)
	return nil
}

// Arm switches the device to Armed. It is accepted from every mode while
// the session is live.
func (c *Controller) Arm() error {
	c.op.Lock()
	defer c.op.Unlock()

	if err := c.requireSession("arm"); err != nil {
		return err
	}
	if err := c.sendMode("arm", ModeArmed); err != nil {
		return err
	}
	c.cfg.Sleep(c.cfg.SettleDelay)
	return nil
}

// FireStage fires stage at its configured FIRE current. The stage current
// and total power are read first; the result carries both.
func (c *Controller) FireStage(stage int) (FireResult, error) {
	c.op.Lock()
	defer c.op.Unlock()

	const op = "fire"
	if !lumidox.ValidStage(stage) {
		return FireResult{}, &Error{Op: op, Mode: c.Mode(), Stage: stage, Err: ErrInvalidInput,
			Reason: "stage must be 1-5"}
	}
	if err := c.requireFireMode(op, stage, 0); err != nil {
		return FireResult{}, err
	}

	current, err := c.readStage(stage, lumidox.RegFireCurrent)
	if err != nil {
		return FireResult{}, &Error{Op: op, Mode: c.Mode(), Stage: stage, Err: err}
	}
	if current.Integer <= 0 {
		return FireResult{}, &Error{Op: op, Mode: c.Mode(), Stage: stage, CurrentMA: current.Integer,
			Err: ErrInvalidInput, Reason: "device reports no FIRE current for stage"}
	}
	total, err := c.readStage(stage, lumidox.RegTotalPower)
	if err != nil {
		return FireResult{}, &Error{Op: op, Mode: c.Mode(), Stage: stage, Err: err}
	}
	units, err := c.readStage(stage, lumidox.RegTotalUnits)
	if err != nil {
		return FireResult{}, &Error{Op: op, Mode: c.Mode(), Stage: stage, Err: err}
	}

	res := FireResult{
		Stage:      stage,
		CurrentMA:  current.Integer,
		TotalPower: total.Measurement,
		TotalUnits: lumidox.TotalUnits(units.Integer),
	}
	res.Optimized, err = c.fire(op, stage, current.Integer)
	return res, err
}

// FireWithCurrent fires at a custom current in 1..MaxCurrent mA
func (c *Controller) FireWithCurrent(currentMA int) (FireResult, error) {
	c.op.Lock()
	defer c.op.Unlock()

	const op = "fire current"
	if currentMA <= 0 {
		return FireResult{}, &Error{Op: op, Mode: c.Mode(), CurrentMA: currentMA, Err: ErrInvalidInput,
			Reason: "current must be positive"}
	}
	if err := c.requireFireMode(op, 0, currentMA); err != nil {
		return FireResult{}, err
	}
	if err := c.checkLimit(op, currentMA); err != nil {
		return FireResult{}, err
	}

	res := FireResult{CurrentMA: currentMA}
	var err error
	res.Optimized, err = c.fire(op, 0, currentMA)
	return res, err
}

// SetArmCurrent writes the ARM current register. No mode change.
func (c *Controller) SetArmCurrent(currentMA int) error {
	c.op.Lock()
	defer c.op.Unlock()

	const op = "set arm current"
	if currentMA <= 0 {
		return &Error{Op: op, Mode: c.Mode(), CurrentMA: currentMA, Err: ErrInvalidInput,
			Reason: "current must be positive"}
	}
	if err := c.requireSession(op); err != nil {
		return err
	}
	if err := c.checkLimit(op, currentMA); err != nil {
		return err
	}

	if _, err := c.exchange(lumidox.NewSetArmCurrent(uint16(currentMA))); err != nil {
		return &Error{Op: op, Mode: c.Mode(), CurrentMA: currentMA, Err: err}
	}
	c.logger.Info("ARM current set", zap.Int("current_ma", currentMA))
	return nil
}

// TurnOff returns the device to Standby from any mode while the session
// is live
func (c *Controller) TurnOff() error {
	c.op.Lock()
	defer c.op.Unlock()

	const op = "turn off"
	if err := c.requireSession(op); err != nil {
		return err
	}
	return c.turnOff(op)
}

func (c *Controller) turnOff(op string) error {
	if err := c.sendMode(op, ModeStandby); err != nil {
		return err
	}
	c.cfg.Sleep(c.cfg.OffDelay)
	return nil
}

// Shutdown turns the device off, hands it back to Local control and ends
// the session. Only Initialize and Shutdown are accepted afterwards.
func (c *Controller) Shutdown() error {
	c.op.Lock()
	defer c.op.Unlock()

	const op = "shutdown"
	if err := c.turnOff(op); err != nil {
		return err
	}
	if err := c.sendMode(op, ModeLocal); err != nil {
		return err
	}
	c.cfg.Sleep(c.cfg.OffDelay)

	c.mu.Lock()
	c.ended = true
	c.mu.Unlock()
	c.logger.Info("Session ended")
	return nil
}

// checkLimit rejects currents above the configured or device maximum
func (c *Controller) checkLimit(op string, currentMA int) error {
	limit, err := c.maxCurrent()
	if err != nil {
		return &Error{Op: op, Mode: c.Mode(), CurrentMA: currentMA, Err: err, Reason: "reading maximum current"}
	}
	if currentMA > limit {
		return &Error{Op: op, Mode: c.Mode(), CurrentMA: currentMA, Err: ErrInvalidInput,
			Reason: "above maximum " + strconv.Itoa(limit) + "mA"}
	}
	return nil
}

// fire drives the device to Remote at currentMA. The optimized path sets
// the current and enters Remote directly. The full path cycles Standby and
// Armed first so the device re-checks its interlocks.
func (c *Controller) fire(op string, stage, currentMA int) (optimized bool, err error) {
	optimized = c.cfg.OptimizeTransitions && c.Mode().CanFire()

	if !optimized {
		if err := c.sendMode(op, ModeStandby); err != nil {
			return false, err
		}
		c.cfg.Sleep(c.cfg.SettleDelay)
		if err := c.sendMode(op, ModeArmed); err != nil {
			return false, err
		}
		c.cfg.Sleep(c.cfg.SettleDelay)
	}

	if _, err := c.exchange(lumidox.NewSetCurrent(uint16(currentMA))); err != nil {
		return optimized, &Error{Op: op, Mode: c.Mode(), Stage: stage, CurrentMA: currentMA, Err: err}
	}
	if err := c.sendMode(op, ModeRemote); err != nil {
		return optimized, err
	}

	c.logger.Info("Firing",
		zap.Int("stage", stage),
		zap.Int("current_ma", currentMA),
		zap.Bool("optimized", optimized))
	return optimized, nil
}
