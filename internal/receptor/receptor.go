// Package receptor computes photoreceptor spectral sensitivities for a
// parameterized observer. Pigment absorbance follows the Govardovskii A1
// visual-pigment template; prereceptoral filtering applies an age-scaled
// lens density and, for central (foveal) classes, a field-size-scaled
// macular pigment density. Each returned row is normalized to unit peak.
package receptor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/lumenlab/silentsub/internal/spd"
)

// Class identifies one photoreceptor class.
type Class string

const (
	LConePeripheral Class = "LConePeripheral"
	MConePeripheral Class = "MConePeripheral"
	SConePeripheral Class = "SConePeripheral"
	LConeCentral    Class = "LConeCentral"
	MConeCentral    Class = "MConeCentral"
	SConeCentral    Class = "SConeCentral"
	Rod             Class = "Rod"
	Melanopsin      Class = "Melanopsin"
)

// DefaultClasses is the class ordering used by the search pipeline:
// peripheral L, M, S cones, central L, M, S cones, then melanopsin.
var DefaultClasses = []Class{
	LConePeripheral, MConePeripheral, SConePeripheral,
	LConeCentral, MConeCentral, SConeCentral,
	Melanopsin,
}

// Observer holds the parameters that shape prereceptoral filtering.
type Observer struct {
	// FieldSizeDeg is the stimulus field size; it scales macular pigment
	// density for the central cone classes.
	FieldSizeDeg float64

	// AgeYears scales lens density.
	AgeYears float64

	// PupilMM is the pupil diameter. It enters only the absolute quantal
	// scaling, which cancels under unit-peak normalization, and is kept for
	// interface completeness.
	PupilMM float64

	// BleachFraction optionally attenuates cone classes for a partially
	// bleached photopigment state (0 = dark adapted).
	BleachFraction float64
}

// peakNM maps each class to its pigment peak wavelength.
var peakNM = map[Class]float64{
	LConePeripheral: 558.9,
	MConePeripheral: 530.3,
	SConePeripheral: 420.7,
	LConeCentral:    558.9,
	MConeCentral:    530.3,
	SConeCentral:    420.7,
	Rod:             496.3,
	Melanopsin:      480.0,
}

// isCentral marks classes subject to macular pigment filtering.
var isCentral = map[Class]bool{
	LConeCentral: true,
	MConeCentral: true,
	SConeCentral: true,
}

// isCone marks classes subject to the bleaching adjustment.
var isCone = map[Class]bool{
	LConePeripheral: true, MConePeripheral: true, SConePeripheral: true,
	LConeCentral: true, MConeCentral: true, SConeCentral: true,
}

// Sensitivities returns a classes x wavelength-sample matrix of relative
// spectral sensitivities on the given support. It is a pure function of its
// arguments.
func Sensitivities(support spd.Support, classes []Class, obs Observer) (*mat.Dense, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("receptor: no classes requested")
	}
	T := mat.NewDense(len(classes), support.N, nil)
	for r, class := range classes {
		peak, ok := peakNM[class]
		if !ok {
			return nil, fmt.Errorf("receptor: unknown class %q", class)
		}

		macular := 0.0
		if isCentral[class] {
			// CIE 170-1 peak macular density as a function of field size.
			macular = 0.485 * math.Exp(-obs.FieldSizeDeg/6.132)
		}

		row := make([]float64, support.N)
		best := 0.0
		for i := 0; i < support.N; i++ {
			nm := support.Wavelength(i)
			density := lensDensity(nm, obs.AgeYears) + macular*macularTemplate(nm)
			s := govardovskii(nm, peak) * math.Pow(10, -density)
			row[i] = s
			if s > best {
				best = s
			}
		}
		if best <= 0 {
			return nil, fmt.Errorf("receptor: class %q has no sensitivity on support", class)
		}

		scale := 1.0 / best
		if isCone[class] && obs.BleachFraction > 0 {
			scale *= 1 - obs.BleachFraction
		}
		for i := range row {
			row[i] *= scale
		}
		T.SetRow(r, row)
	}
	return T, nil
}

// govardovskii evaluates the Govardovskii et al. (2000) A1 pigment template
// (alpha plus beta band) at wavelength nm for a pigment peaking at peak nm.
func govardovskii(nm, peak float64) float64 {
	x := peak / nm
	a := 0.8795 + 0.0459*math.Exp(-(peak-300)*(peak-300)/11940)
	alpha := 1 / (math.Exp(69.7*(a-x)) + math.Exp(28*(0.922-x)) + math.Exp(-14.9*(1.104-x)) + 0.674)

	peakBeta := 189 + 0.315*peak
	widthBeta := -40.5 + 0.195*peak
	d := (nm - peakBeta) / widthBeta
	beta := 0.26 * math.Exp(-d*d)

	return alpha + beta
}

// lensDensity32 tabulates lens optical density for a 32-year-old observer at
// 10 nm spacing from 390 nm; wavelengths beyond the table carry zero density.
var lensDensity32 = []float64{
	2.51, 1.76, 1.19, 0.89, 0.67, 0.53, 0.44, 0.37, 0.31, 0.27, // 390-480
	0.23, 0.20, 0.17, 0.14, 0.12, 0.10, 0.09, 0.07, 0.06, 0.05, // 490-580
	0.04, 0.03, 0.03, 0.02, 0.02, 0.01, 0.01, // 590-650
}

// lensDensity returns the age-scaled lens density at nm. Scaling follows the
// two-regime form of Pokorny, Smith & Lutze (1987), applied here to the full
// template.
func lensDensity(nm, age float64) float64 {
	base := interpTemplate(lensDensity32, 390, 10, nm)
	switch {
	case age <= 32:
		return base
	case age <= 60:
		return base * (1 + 0.02*(age-32))
	default:
		return base * (1.56 + 0.0667*(age-60))
	}
}

// macularRelative tabulates relative macular pigment density (unit peak at
// 460 nm) at 10 nm spacing from 400 nm.
var macularRelative = []float64{
	0.33, 0.39, 0.44, 0.51, 0.67, 0.86, 1.00, 0.89, 0.80, 0.61, // 400-490
	0.40, 0.24, 0.12, 0.04, 0.00, // 500-540
}

func macularTemplate(nm float64) float64 {
	return interpTemplate(macularRelative, 400, 10, nm)
}

// interpTemplate linearly interpolates a uniformly spaced template,
// returning zero outside its range.
func interpTemplate(table []float64, startNM, stepNM, nm float64) float64 {
	pos := (nm - startNM) / stepNM
	if pos <= 0 {
		if pos < 0 {
			return 0
		}
		return table[0]
	}
	i := int(pos)
	if i >= len(table)-1 {
		if pos > float64(len(table)-1) {
			return 0
		}
		return table[len(table)-1]
	}
	frac := pos - float64(i)
	return table[i]*(1-frac) + table[i+1]*frac
}
