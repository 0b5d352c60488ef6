// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package power maps drive current to expected optical output.
//
// Estimates come either from device-reported stage readings or, when those
// are missing or look hardcoded, from a fixed factory calibration table.
// Everything here is pure computation and safe for concurrent use.
package power

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/interp"
)

// Source records where an estimate came from
type Source int

const (
	// SourceCalibration is the static factory table
	SourceCalibration Source = iota
	// SourceDeviceStage is linear scaling from one device-reported stage
	SourceDeviceStage
	// SourceDeviceModel is interpolation across device-reported stages
	SourceDeviceModel
)

func (s Source) String() string {
	switch s {
	case SourceCalibration:
		return "calibration table"
	case SourceDeviceStage:
		return "device stage"
	case SourceDeviceModel:
		return "device stages"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Info is an estimated optical output in milliwatts
type Info struct {
	CurrentMA float64
	TotalMW   float64
	PerUnitMW float64
	Source    Source
	// Suspect is set when device readings were available but failed the
	// consistency check and were ignored.
	Suspect bool
}

// CalibrationEntry is one interpolation anchor: output at a drive current
type CalibrationEntry struct {
	Stage     int
	CurrentMA float64
	TotalMW   float64
	PerUnitMW float64
}

// calibration is the factory table at each stage's nominal current.
var calibration = [...]CalibrationEntry{
	{Stage: 1, CurrentMA: 60, TotalMW: 500, PerUnitMW: 5},
	{Stage: 2, CurrentMA: 110, TotalMW: 1000, PerUnitMW: 10},
	{Stage: 3, CurrentMA: 230, TotalMW: 2400, PerUnitMW: 25},
	{Stage: 4, CurrentMA: 420, TotalMW: 4800, PerUnitMW: 50},
	{Stage: 5, CurrentMA: 795, TotalMW: 9600, PerUnitMW: 100},
}

// Calibration returns a copy of the factory calibration table
func Calibration() []CalibrationEntry {
	out := make([]CalibrationEntry, len(calibration))
	copy(out, calibration[:])
	return out
}

// Model interpolates output linearly in current between anchors. Outside
// the anchor range output scales proportionally from the nearest anchor.
type Model struct {
	anchors []CalibrationEntry
	total   interp.PiecewiseLinear
	per     interp.PiecewiseLinear
}

// NewModel builds a model from anchors. Anchors are sorted by current;
// of several anchors at one current the first is kept. Anchors with a
// non-positive current are dropped.
func NewModel(anchors []CalibrationEntry) (*Model, error) {
	sorted := make([]CalibrationEntry, 0, len(anchors))
	for _, a := range anchors {
		if a.CurrentMA > 0 && !math.IsNaN(a.TotalMW) && !math.IsNaN(a.PerUnitMW) {
			sorted = append(sorted, a)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CurrentMA < sorted[j].CurrentMA
	})

	m := &Model{}
	for _, a := range sorted {
		if n := len(m.anchors); n > 0 && m.anchors[n-1].CurrentMA == a.CurrentMA {
			continue
		}
		m.anchors = append(m.anchors, a)
	}
	if len(m.anchors) == 0 {
		return nil, fmt.Errorf("no usable calibration anchors")
	}

	if len(m.anchors) >= 2 {
		xs := make([]float64, len(m.anchors))
		totals := make([]float64, len(m.anchors))
		pers := make([]float64, len(m.anchors))
		for i, a := range m.anchors {
			xs[i], totals[i], pers[i] = a.CurrentMA, a.TotalMW, a.PerUnitMW
		}
		if err := m.total.Fit(xs, totals); err != nil {
			return nil, fmt.Errorf("failed to fit total power: %w", err)
		}
		if err := m.per.Fit(xs, pers); err != nil {
			return nil, fmt.Errorf("failed to fit per-unit power: %w", err)
		}
	}
	return m, nil
}

var defaultModel = mustModel(calibration[:])

func mustModel(anchors []CalibrationEntry) *Model {
	m, err := NewModel(anchors)
	if err != nil {
		panic(err)
	}
	return m
}

// DefaultModel returns the model over the factory calibration table
func DefaultModel() *Model {
	return defaultModel
}

// Anchors returns the model's anchors in current order
func (m *Model) Anchors() []CalibrationEntry {
	out := make([]CalibrationEntry, len(m.anchors))
	copy(out, m.anchors)
	return out
}

// Estimate returns total and per-unit output at currentMA
func (m *Model) Estimate(currentMA float64) (totalMW, perUnitMW float64) {
	first, last := m.anchors[0], m.anchors[len(m.anchors)-1]
	switch {
	case currentMA <= first.CurrentMA:
		return scale(first, currentMA)
	case currentMA >= last.CurrentMA:
		return scale(last, currentMA)
	default:
		return m.total.Predict(currentMA), m.per.Predict(currentMA)
	}
}

func scale(a CalibrationEntry, currentMA float64) (float64, float64) {
	if currentMA == a.CurrentMA {
		return a.TotalMW, a.PerUnitMW
	}
	ratio := currentMA / a.CurrentMA
	return a.TotalMW * ratio, a.PerUnitMW * ratio
}

// StageReading is the power data one stage reports, in device units
type StageReading struct {
	Stage         int
	FireCurrentMA int
	TotalPower    float64
	TotalUnits    string
	PerPower      float64
	PerUnits      string
}

// Anchor converts the reading to an interpolation anchor in milliwatts.
// Readings without a positive current or in non-power units are rejected.
func (r StageReading) Anchor() (CalibrationEntry, bool) {
	if r.FireCurrentMA <= 0 {
		return CalibrationEntry{}, false
	}
	total, ok := ToMilliwatts(r.TotalPower, r.TotalUnits)
	if !ok {
		return CalibrationEntry{}, false
	}
	per, ok := ToMilliwatts(r.PerPower, r.PerUnits)
	if !ok {
		return CalibrationEntry{}, false
	}
	return CalibrationEntry{
		Stage:     r.Stage,
		CurrentMA: float64(r.FireCurrentMA),
		TotalMW:   total,
		PerUnitMW: per,
	}, true
}

// ToMilliwatts normalizes a power value by its device unit label.
// Irradiance and current units are not power and report ok=false.
func ToMilliwatts(value float64, units string) (mw float64, ok bool) {
	fields := strings.Fields(units)
	if len(fields) == 0 {
		return 0, false
	}
	switch fields[0] {
	case "W", "J/s":
		return value * 1000, true
	case "mW":
		return value, true
	default:
		return 0, false
	}
}

// EstimateFromCurrent estimates output from the factory table alone
func EstimateFromCurrent(currentMA float64) Info {
	total, per := defaultModel.Estimate(currentMA)
	return Info{
		CurrentMA: currentMA,
		TotalMW:   total,
		PerUnitMW: per,
		Source:    SourceCalibration,
	}
}

// Estimate estimates output at currentMA using device readings when they
// are usable. With stage > 0 and a usable reading for that stage, output
// scales linearly from that stage's reported point. Otherwise usable
// readings become interpolation anchors. Suspect or unusable readings fall
// back to the factory table.
func Estimate(currentMA float64, stage int, readings []StageReading) (Info, error) {
	if currentMA < 0 || math.IsNaN(currentMA) || math.IsInf(currentMA, 0) {
		return Info{}, fmt.Errorf("invalid current %v mA", currentMA)
	}

	c := CheckConsistency(readings)
	if c.Suspect {
		info := EstimateFromCurrent(currentMA)
		info.Suspect = true
		return info, nil
	}

	var anchors []CalibrationEntry
	for _, r := range readings {
		a, ok := r.Anchor()
		if !ok {
			continue
		}
		if stage > 0 && r.Stage == stage {
			total, per := scale(a, currentMA)
			return Info{
				CurrentMA: currentMA,
				TotalMW:   total,
				PerUnitMW: per,
				Source:    SourceDeviceStage,
			}, nil
		}
		anchors = append(anchors, a)
	}

	if len(anchors) > 0 {
		m, err := NewModel(anchors)
		if err == nil {
			total, per := m.Estimate(currentMA)
			return Info{
				CurrentMA: currentMA,
				TotalMW:   total,
				PerUnitMW: per,
				Source:    SourceDeviceModel,
			}, nil
		}
	}

	return EstimateFromCurrent(currentMA), nil
}
