// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package power

import (
	"fmt"

	"gonum.org/v1/gonum/floats/scalar"
)

// IdenticalTolerance is the relative difference under which two stage
// readings count as identical.
const IdenticalTolerance = 1e-3

// MinStagesForCheck is how many distinct stages the check needs.
const MinStagesForCheck = 2

// Consistency is the result of the hardcoded-value check
type Consistency struct {
	// Stages is the number of distinct stages examined
	Stages         int
	TotalIdentical bool
	PerIdentical   bool
	Suspect        bool
	Reason         string
}

// CheckConsistency flags readings as suspect when every distinct stage
// reports the same total power, or the same per-unit power. Identical
// values across stages point at a communication fault or firmware that
// returns fixed numbers. Fewer than MinStagesForCheck stages are never
// suspect. Values are compared in milliwatts when the units allow it.
func CheckConsistency(readings []StageReading) Consistency {
	seen := make(map[int]bool)
	var totals, pers []float64
	for _, r := range readings {
		if seen[r.Stage] {
			continue
		}
		seen[r.Stage] = true
		totals = append(totals, normalized(r.TotalPower, r.TotalUnits))
		pers = append(pers, normalized(r.PerPower, r.PerUnits))
	}

	c := Consistency{Stages: len(seen)}
	if c.Stages < MinStagesForCheck {
		return c
	}

	c.TotalIdentical = allEqual(totals)
	c.PerIdentical = allEqual(pers)
	c.Suspect = c.TotalIdentical || c.PerIdentical

	switch {
	case c.TotalIdentical && c.PerIdentical:
		c.Reason = fmt.Sprintf("all %d stages report identical total and per-unit power", c.Stages)
	case c.TotalIdentical:
		c.Reason = fmt.Sprintf("all %d stages report identical total power (%.1f)", c.Stages, totals[0])
	case c.PerIdentical:
		c.Reason = fmt.Sprintf("all %d stages report identical per-unit power (%.1f)", c.Stages, pers[0])
	}
	return c
}

func normalized(value float64, units string) float64 {
	if mw, ok := ToMilliwatts(value, units); ok {
		return mw
	}
	return value
}

func allEqual(values []float64) bool {
	for _, v := range values[1:] {
		if !scalar.EqualWithinRel(values[0], v, IdenticalTolerance) {
			return false
		}
	}
	return true
}
