// Package dichroic models the optical cross-filtering introduced when
// spectrally adjacent primaries are combined through dichroic mirrors. Each
// adjacent pair shares a logistic transmittance split: the longer-wavelength
// primary is multiplied by the transmittance curve and the shorter one by
// its complement, so the two always sum to the unfiltered total.
package dichroic

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/lumenlab/silentsub/internal/spd"
)

// Config holds the filter model parameters.
type Config struct {
	// Enabled toggles filtering; when false, Apply returns the input
	// matrix unchanged.
	Enabled bool

	// MaxSlope is the steepest transmittance gradient of the logistic edge,
	// in transmittance fraction per nanometer. Typical dichroics sit near
	// 0.02-0.05.
	MaxSlope float64

	// CrossoverNM optionally pins the crossover wavelength for each adjacent
	// pair (length = primaries-1), bypassing automatic detection. Empty
	// means detect every crossover from the curves.
	CrossoverNM []float64
}

// DefaultConfig returns the filter configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		MaxSlope: 0.03,
	}
}

// Apply filters the primary matrix B (wavelength samples x primaries, columns
// ordered by peak wavelength) and returns the filtered copy along with the
// crossover wavelength recorded for each adjacent pair.
//
// Filtering is pairwise and cascades left to right exactly once: column k+1
// enters its pair with column k+2 already attenuated by the k/k+1 edge.
func Apply(B *mat.Dense, support spd.Support, cfg Config) (*mat.Dense, []float64, error) {
	rows, cols := B.Dims()
	if rows != support.N {
		return nil, nil, fmt.Errorf("dichroic: matrix has %d samples, support has %d", rows, support.N)
	}

	out := mat.DenseCopyOf(B)
	if !cfg.Enabled || cols < 2 {
		return out, nil, nil
	}
	if len(cfg.CrossoverNM) > 0 && len(cfg.CrossoverNM) != cols-1 {
		return nil, nil, fmt.Errorf("dichroic: %d explicit crossovers for %d pairs", len(cfg.CrossoverNM), cols-1)
	}
	if cfg.MaxSlope <= 0 {
		return nil, nil, fmt.Errorf("dichroic: max slope must be positive, got %v", cfg.MaxSlope)
	}

	crossovers := make([]float64, cols-1)
	for k := 0; k < cols-1; k++ {
		lower := mat.Col(nil, k, out)
		upper := mat.Col(nil, k+1, out)

		var cross int
		if len(cfg.CrossoverNM) > 0 {
			cross = support.Index(cfg.CrossoverNM[k])
		} else {
			cross = findCrossover(lower, upper)
		}
		crossovers[k] = support.Wavelength(cross)

		for i := 0; i < rows; i++ {
			t := Transmittance(i, cross, cfg.MaxSlope, support.StepNM)
			out.Set(i, k, lower[i]*(1-t))
			out.Set(i, k+1, upper[i]*t)
		}
	}
	return out, crossovers, nil
}

// Transmittance evaluates the logistic edge for the longer-wavelength member
// of a pair at sample index i, with the edge centered at sample cross. The
// shorter member receives 1-Transmittance, so the pair is complementary at
// every sample.
func Transmittance(i, cross int, maxSlope, stepNM float64) float64 {
	// A logistic 1/(1+exp(-k x)) has maximum slope k/4 at its center, so
	// k = 4*maxSlope per nm, converted to index units by the sample step.
	k := 4 * maxSlope * stepNM
	return 1 / (1 + math.Exp(-k*float64(i-cross)))
}

// findCrossover locates the near-zero crossing of the difference between the
// two curves: take the difference lower-upper, bracket between its extreme
// indices, and return the index of smallest absolute difference inside the
// bracket.
func findCrossover(lower, upper []float64) int {
	n := len(lower)
	iMax, iMin := 0, 0
	for i := 1; i < n; i++ {
		d := lower[i] - upper[i]
		if d > lower[iMax]-upper[iMax] {
			iMax = i
		}
		if d < lower[iMin]-upper[iMin] {
			iMin = i
		}
	}

	lo, hi := iMax, iMin
	if lo > hi {
		lo, hi = hi, lo
	}
	best := lo
	for i := lo; i <= hi; i++ {
		if math.Abs(lower[i]-upper[i]) < math.Abs(lower[best]-upper[best]) {
			best = i
		}
	}
	return best
}
