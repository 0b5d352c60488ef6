// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/Thermoquad/lumidox/pkg/power"
	"go.uber.org/zap"
)

// StageParameters is a snapshot of one stage's register block
type StageParameters struct {
	Stage         int
	ArmCurrentMA  int
	FireCurrentMA int
	VoltLimit     float64 // V
	VoltStart     float64 // V
	TotalPower    float64
	TotalUnits    string
	PerPower      float64
	PerUnits      string
}

// Reading returns the power data of the snapshot
func (p StageParameters) Reading() power.StageReading {
	return power.StageReading{
		Stage:         p.Stage,
		FireCurrentMA: p.FireCurrentMA,
		TotalPower:    p.TotalPower,
		TotalUnits:    p.TotalUnits,
		PerPower:      p.PerPower,
		PerUnits:      p.PerUnits,
	}
}

// PowerInfo is the device-reported output of one stage
type PowerInfo struct {
	TotalPower float64
	TotalUnits string
	PerPower   float64
	PerUnits   string
}

// readStage reads one register of a stage block. Callers hold c.op.
func (c *Controller) readStage(stage int, reg lumidox.StageRegister) (lumidox.Value, error) {
	cmd, err := lumidox.NewStageRead(stage, reg)
	if err != nil {
		return lumidox.Value{}, err
	}
	r, err := c.exchange(cmd)
	if err != nil {
		return lumidox.Value{}, err
	}
	return r.Interpret(cmd.Kind()), nil
}

// stageQuery rejects an invalid stage before running a read
func (c *Controller) stageQuery(op string, stage int, fn func() error) error {
	if !lumidox.ValidStage(stage) {
		return &Error{Op: op, Mode: c.Mode(), Stage: stage, Err: ErrInvalidInput, Reason: "stage must be 1-5"}
	}
	return c.query(op, stage, fn)
}

func (c *Controller) query(op string, stage int, fn func() error) error {
	if err := fn(); err != nil {
		return &Error{Op: op, Mode: c.Mode(), Stage: stage, Err: err}
	}
	return nil
}

// StageParameters reads every register of a stage block
func (c *Controller) StageParameters(stage int) (StageParameters, error) {
	c.op.Lock()
	defer c.op.Unlock()

	p := StageParameters{Stage: stage}
	err := c.stageQuery("read stage parameters", stage, func() error {
		vals := make(map[lumidox.StageRegister]lumidox.Value, len(lumidox.StageRegisters))
		for _, reg := range lumidox.StageRegisters {
			v, err := c.readStage(stage, reg)
			if err != nil {
				return err
			}
			vals[reg] = v
		}
		p.ArmCurrentMA = vals[lumidox.RegArmCurrent].Integer
		p.FireCurrentMA = vals[lumidox.RegFireCurrent].Integer
		p.VoltLimit = vals[lumidox.RegVoltLimit].Measurement
		p.VoltStart = vals[lumidox.RegVoltStart].Measurement
		p.TotalPower = vals[lumidox.RegTotalPower].Measurement
		p.TotalUnits = lumidox.TotalUnits(vals[lumidox.RegTotalUnits].Integer)
		p.PerPower = vals[lumidox.RegPerPower].Measurement
		p.PerUnits = lumidox.PerUnits(vals[lumidox.RegPerUnits].Integer)
		return nil
	})
	return p, err
}

func (c *Controller) stageInteger(op string, stage int, reg lumidox.StageRegister) (int, error) {
	c.op.Lock()
	defer c.op.Unlock()

	var out int
	err := c.stageQuery(op, stage, func() error {
		v, err := c.readStage(stage, reg)
		out = v.Integer
		return err
	})
	return out, err
}

// StageArmCurrent reads a stage's ARM current in mA
func (c *Controller) StageArmCurrent(stage int) (int, error) {
	return c.stageInteger("read stage arm current", stage, lumidox.RegArmCurrent)
}

// StageFireCurrent reads a stage's FIRE current in mA
func (c *Controller) StageFireCurrent(stage int) (int, error) {
	return c.stageInteger("read stage fire current", stage, lumidox.RegFireCurrent)
}

// PowerInfo reads a stage's total and per-unit power with unit labels
func (c *Controller) PowerInfo(stage int) (PowerInfo, error) {
	c.op.Lock()
	defer c.op.Unlock()

	var info PowerInfo
	err := c.stageQuery("read power info", stage, func() error {
		var err error
		info, err = c.powerInfo(stage)
		return err
	})
	return info, err
}

func (c *Controller) powerInfo(stage int) (PowerInfo, error) {
	var info PowerInfo
	total, err := c.readStage(stage, lumidox.RegTotalPower)
	if err != nil {
		return info, err
	}
	per, err := c.readStage(stage, lumidox.RegPerPower)
	if err != nil {
		return info, err
	}
	totalUnits, err := c.readStage(stage, lumidox.RegTotalUnits)
	if err != nil {
		return info, err
	}
	perUnits, err := c.readStage(stage, lumidox.RegPerUnits)
	if err != nil {
		return info, err
	}
	return PowerInfo{
		TotalPower: total.Measurement,
		TotalUnits: lumidox.TotalUnits(totalUnits.Integer),
		PerPower:   per.Measurement,
		PerUnits:   lumidox.PerUnits(perUnits.Integer),
	}, nil
}

// MaxCurrent returns the configured current limit, or the stage 5 FIRE
// current when none is configured
func (c *Controller) MaxCurrent() (int, error) {
	c.op.Lock()
	defer c.op.Unlock()

	var limit int
	err := c.query("read max current", 0, func() error {
		var err error
		limit, err = c.maxCurrent()
		return err
	})
	return limit, err
}

func (c *Controller) maxCurrent() (int, error) {
	if c.cfg.MaxCurrentMA > 0 {
		return c.cfg.MaxCurrentMA, nil
	}
	v, err := c.readStage(lumidox.StageCount, lumidox.RegFireCurrent)
	if err != nil {
		return 0, err
	}
	return v.Integer, nil
}

func (c *Controller) readInteger(op string, cmd *lumidox.Command) (int, error) {
	c.op.Lock()
	defer c.op.Unlock()

	var out int
	err := c.query(op, 0, func() error {
		r, err := c.exchange(cmd)
		if err != nil {
			return err
		}
		out = int(r.Value())
		return nil
	})
	return out, err
}

// ReadArmCurrent reads the active ARM current in mA
func (c *Controller) ReadArmCurrent() (int, error) {
	return c.readInteger("read arm current", lumidox.NewReadArmCurrent())
}

// ReadFireCurrent reads the active FIRE current in mA
func (c *Controller) ReadFireCurrent() (int, error) {
	return c.readInteger("read fire current", lumidox.NewReadFireCurrent())
}

// Readings reads the power data of every stage. Stages that fail to read
// are skipped; the first failure is returned alongside what was read.
func (c *Controller) Readings() ([]power.StageReading, error) {
	c.op.Lock()
	defer c.op.Unlock()

	var readings []power.StageReading
	var firstErr error
	for stage := 1; stage <= lumidox.StageCount; stage++ {
		fire, err := c.readStage(stage, lumidox.RegFireCurrent)
		if err == nil {
			var info PowerInfo
			info, err = c.powerInfo(stage)
			if err == nil {
				readings = append(readings, power.StageReading{
					Stage:         stage,
					FireCurrentMA: fire.Integer,
					TotalPower:    info.TotalPower,
					TotalUnits:    info.TotalUnits,
					PerPower:      info.PerPower,
					PerUnits:      info.PerUnits,
				})
				continue
			}
		}
		if firstErr == nil {
			firstErr = &Error{Op: "read power readings", Mode: c.Mode(), Stage: stage, Err: err}
		}
	}
	return readings, firstErr
}

// EstimatePower estimates output at currentMA from the device's stage data,
// falling back to the factory table when the data is unavailable or
// suspect. Read failures only narrow the data used.
func (c *Controller) EstimatePower(currentMA float64, stage int) (power.Info, power.Consistency, error) {
	readings, _ := c.Readings()
	consistency := power.CheckConsistency(readings)
	if consistency.Suspect {
		c.log().Warn("Stage power readings look hardcoded", zap.String("reason", consistency.Reason))
	}
	info, err := power.Estimate(currentMA, stage, readings)
	if err != nil {
		return power.Info{}, consistency, &Error{Op: "estimate power", Mode: c.Mode(), Stage: stage, Err: ErrInvalidInput, Reason: err.Error()}
	}
	return info, consistency, nil
}
