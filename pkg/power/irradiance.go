// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package power

import "math"

// Well-bottom transmission factors, calibrated against a 5.5 mW/cm²
// reading at 405 mA through the plate lid.
const (
	WellTransmission = 0.20
	LidTransmission  = 0.75
)

// Plate describes the illuminated well plate
type Plate struct {
	LengthMM       float64
	WidthMM        float64
	Wells          int
	WellDiameterMM float64
}

// StandardPlate is the 96-well plate the device illuminates
var StandardPlate = Plate{
	LengthMM:       127.75,
	WidthMM:        105.5,
	Wells:          96,
	WellDiameterMM: 5.0,
}

// AreaCM2 returns the plate area in cm²
func (p Plate) AreaCM2() float64 {
	return (p.LengthMM / 10) * (p.WidthMM / 10)
}

// WellAreaCM2 returns the area of one well in cm²
func (p Plate) WellAreaCM2() float64 {
	r := p.WellDiameterMM / 20
	return math.Pi * r * r
}

// Irradiance is an output estimate spread over the plate
type Irradiance struct {
	TotalMW            float64
	SurfaceMWPerCM2    float64
	WellBottomMWPerCM2 float64
	PerWellMW          float64
	PerWellMWPerCM2    float64
	WithLid            bool
}

// Irradiance spreads an estimate over the plate. Per-well values are zero
// when the estimate has no per-unit power.
func (p Plate) Irradiance(info Info, withLid bool) Irradiance {
	ir := Irradiance{TotalMW: info.TotalMW, WithLid: withLid}
	if info.TotalMW > 0 {
		ir.SurfaceMWPerCM2 = info.TotalMW / p.AreaCM2()
	}
	if info.PerUnitMW > 0 {
		ir.PerWellMW = info.PerUnitMW
		ir.PerWellMWPerCM2 = info.PerUnitMW / p.WellAreaCM2()
	}

	transmission := WellTransmission
	if withLid {
		transmission *= LidTransmission
	}
	ir.WellBottomMWPerCM2 = ir.SurfaceMWPerCM2 * transmission
	return ir
}
