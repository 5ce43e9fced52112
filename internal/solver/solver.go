// Package solver computes modulation primary vectors under receptor
// contrast constraints. Given a primary matrix, a background, and a
// stimulus direction's target/ignore/minimize receptor sets, it minimizes a
// penalized least-squares objective with Nelder-Mead over a sigmoid-boxed
// parameterization that keeps every primary inside the device headroom.
//
// When a direction bounds the spread of achieved contrast across grouped
// target receptors, an outer loop shrinks the requested contrast until the
// spread constraint holds or the shrink-abort threshold is reached; the
// best vector found so far is returned either way, never a hard failure.
package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Problem describes one modulation design task.
type Problem struct {
	// B is the (possibly dichroic-filtered) primary matrix, wavelength
	// samples x primaries.
	B *mat.Dense

	// T is the receptor sensitivity matrix, receptor classes x samples.
	T *mat.Dense

	// Background is the background primary vector around which the
	// modulation is designed.
	Background []float64

	// Start seeds the inner optimizer.
	Start []float64

	// Ambient is an ambient spectrum added to the background light,
	// one value per wavelength sample. Nil means zero ambient.
	Ambient []float64

	// Targets, Ignore and Minimize partition the receptor rows. Receptors
	// in none of the three sets are treated as minimized.
	Targets  []int
	Ignore   []int
	Minimize []int

	// Pinned fixes selected primaries at a value, excluding them from the
	// optimization.
	Pinned map[int]float64

	// Headroom keeps every primary inside [Headroom, 1-Headroom].
	Headroom float64

	// Desired is the requested contrast per target receptor. A single
	// element broadcasts across all targets.
	Desired []float64

	// ContrastGroups lists groups of target receptor indices whose achieved
	// contrasts may differ by at most MaxGroupSpread. Empty means no
	// differential constraint.
	ContrastGroups [][]int
	MaxGroupSpread float64

	// ShrinkStep is the fraction of the desired contrast removed per outer
	// iteration while the spread constraint is violated.
	ShrinkStep float64

	// ShrinkAbort stops the outer loop once the requested contrast has
	// fallen below ShrinkAbort times the original desire.
	ShrinkAbort float64
}

// Options tunes the inner optimizer.
type Options struct {
	// SilenceWeight penalizes contrast on ignored receptors.
	SilenceWeight float64

	// MinimizeWeight penalizes contrast on minimized receptors.
	MinimizeWeight float64

	// MaxIterations bounds each Nelder-Mead run.
	MaxIterations int
}

// DefaultOptions returns the solver tuning used when none is supplied.
func DefaultOptions() Options {
	return Options{
		SilenceWeight:  25,
		MinimizeWeight: 1,
		MaxIterations:  2000,
	}
}

// Result is the outcome of one Solve call.
type Result struct {
	// Modulation is the primary vector found, inside the headroom box.
	Modulation []float64

	// Requested is the contrast actually asked of the final inner solve,
	// after any shrinking.
	Requested []float64

	// Achieved is the contrast per receptor class at Modulation.
	Achieved []float64

	// Converged is false when the outer loop aborted at the shrink
	// threshold with the spread constraint still violated.
	Converged bool
}

// Solve runs the constrained modulation design. See the package comment for
// the outer-loop contract.
func Solve(p Problem, opts Options) (Result, error) {
	if err := validate(p); err != nil {
		return Result{}, err
	}

	desired := broadcast(p.Desired, len(p.Targets))
	minimized := impliedMinimize(p)

	factor := 1.0
	var best Result
	haveBest := false
	for {
		requested := make([]float64, len(desired))
		for i, d := range desired {
			requested[i] = d * factor
		}

		w := innerSolve(p, requested, minimized, opts)
		achieved := Contrasts(p.T, p.B, p.Background, w, p.Ambient)
		res := Result{
			Modulation: w,
			Requested:  requested,
			Achieved:   achieved,
			Converged:  true,
		}

		if p.MaxGroupSpread <= 0 || len(p.ContrastGroups) == 0 ||
			groupSpread(achieved, p.ContrastGroups) <= p.MaxGroupSpread {
			return res, nil
		}

		// Constraint violated at this contrast; keep the least-violating
		// attempt as the fallback and shrink.
		if !haveBest || groupSpread(achieved, p.ContrastGroups) < groupSpread(best.Achieved, p.ContrastGroups) {
			best = res
			haveBest = true
		}

		factor -= p.ShrinkStep
		if factor < p.ShrinkAbort {
			best.Converged = false
			return best, nil
		}
	}
}

func validate(p Problem) error {
	samples, primaries := p.B.Dims()
	rows, cols := p.T.Dims()
	if cols != samples {
		return fmt.Errorf("solver: T has %d samples, B has %d", cols, samples)
	}
	if len(p.Background) != primaries {
		return fmt.Errorf("solver: background length %d, want %d", len(p.Background), primaries)
	}
	if len(p.Start) != 0 && len(p.Start) != primaries {
		return fmt.Errorf("solver: start length %d, want %d", len(p.Start), primaries)
	}
	if p.Ambient != nil && len(p.Ambient) != samples {
		return fmt.Errorf("solver: ambient length %d, want %d", len(p.Ambient), samples)
	}
	if len(p.Targets) == 0 {
		return fmt.Errorf("solver: no target receptors")
	}
	for _, idx := range p.Targets {
		if idx < 0 || idx >= rows {
			return fmt.Errorf("solver: target receptor %d out of range [0,%d)", idx, rows)
		}
	}
	if len(p.Desired) != 1 && len(p.Desired) != len(p.Targets) {
		return fmt.Errorf("solver: %d desired contrasts for %d targets", len(p.Desired), len(p.Targets))
	}
	if p.Headroom < 0 || p.Headroom >= 0.5 {
		return fmt.Errorf("solver: headroom %v outside [0,0.5)", p.Headroom)
	}
	if p.MaxGroupSpread > 0 && len(p.ContrastGroups) > 0 {
		if p.ShrinkStep <= 0 || p.ShrinkStep >= 1 {
			return fmt.Errorf("solver: shrink step %v outside (0,1)", p.ShrinkStep)
		}
		if p.ShrinkAbort <= 0 || p.ShrinkAbort >= 1 {
			return fmt.Errorf("solver: shrink abort %v outside (0,1)", p.ShrinkAbort)
		}
	}
	return nil
}

// impliedMinimize returns the minimize set extended with every receptor that
// is neither targeted nor ignored.
func impliedMinimize(p Problem) []int {
	rows, _ := p.T.Dims()
	mentioned := make(map[int]bool, rows)
	for _, idx := range p.Targets {
		mentioned[idx] = true
	}
	for _, idx := range p.Ignore {
		mentioned[idx] = true
	}
	out := append([]int(nil), p.Minimize...)
	for _, idx := range p.Minimize {
		mentioned[idx] = true
	}
	for r := 0; r < rows; r++ {
		if !mentioned[r] {
			out = append(out, r)
		}
	}
	return out
}

// innerSolve runs one boxed Nelder-Mead minimization for a fixed requested
// contrast and returns the primary vector.
func innerSolve(p Problem, requested []float64, minimized []int, opts Options) []float64 {
	_, primaries := p.B.Dims()

	free := make([]int, 0, primaries)
	for j := 0; j < primaries; j++ {
		if _, ok := p.Pinned[j]; !ok {
			free = append(free, j)
		}
	}

	start := p.Start
	if len(start) == 0 {
		start = p.Background
	}

	assemble := func(z []float64) []float64 {
		w := make([]float64, primaries)
		for j, v := range p.Pinned {
			w[j] = v
		}
		for i, j := range free {
			w[j] = boxed(z[i], p.Headroom)
		}
		return w
	}

	objective := func(z []float64) float64 {
		w := assemble(z)
		c := Contrasts(p.T, p.B, p.Background, w, p.Ambient)

		var cost float64
		for i, idx := range p.Targets {
			d := c[idx] - requested[i]
			cost += d * d
		}
		for _, idx := range p.Ignore {
			cost += opts.SilenceWeight * c[idx] * c[idx]
		}
		for _, idx := range minimized {
			cost += opts.MinimizeWeight * c[idx] * c[idx]
		}
		return cost
	}

	z0 := make([]float64, len(free))
	for i, j := range free {
		z0[i] = unboxed(start[j], p.Headroom)
	}

	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 100,
		},
	}
	result, err := optimize.Minimize(problem, z0, settings, &optimize.NelderMead{})
	if err != nil && (result == nil || len(result.X) != len(z0)) {
		// Nelder-Mead stalled before producing a point; fall back to the
		// start. The outer loop treats any returned vector as an attempt.
		return assemble(z0)
	}
	return assemble(result.X)
}

// Contrasts returns, for every receptor class, the fractional change in
// excitation produced by modulation w relative to the background:
// T·B·(w-bg) divided elementwise by the background excitation T·(B·bg + ambient).
func Contrasts(T, B *mat.Dense, background, w, ambient []float64) []float64 {
	rows, _ := T.Dims()
	bgExc := Excitations(T, B, background, ambient)

	delta := make([]float64, len(w))
	for j := range w {
		delta[j] = w[j] - background[j]
	}
	dExc := Excitations(T, B, delta, nil)

	out := make([]float64, rows)
	for r := 0; r < rows; r++ {
		if bgExc[r] == 0 {
			continue
		}
		out[r] = dExc[r] / bgExc[r]
	}
	return out
}

// Excitations computes T·(B·w + ambient) for a primary vector w.
func Excitations(T, B *mat.Dense, w, ambient []float64) []float64 {
	samples, _ := B.Dims()
	rows, _ := T.Dims()

	spectrum := mat.NewVecDense(samples, nil)
	spectrum.MulVec(B, mat.NewVecDense(len(w), w))
	if ambient != nil {
		spectrum.AddVec(spectrum, mat.NewVecDense(samples, ambient))
	}

	exc := mat.NewVecDense(rows, nil)
	exc.MulVec(T, spectrum)

	out := make([]float64, rows)
	copy(out, exc.RawVector().Data)
	return out
}

// groupSpread returns the largest max-min spread of achieved contrast inside
// any contrast group.
func groupSpread(achieved []float64, groups [][]int) float64 {
	worst := 0.0
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		lo, hi := achieved[group[0]], achieved[group[0]]
		for _, idx := range group[1:] {
			if achieved[idx] < lo {
				lo = achieved[idx]
			}
			if achieved[idx] > hi {
				hi = achieved[idx]
			}
		}
		if hi-lo > worst {
			worst = hi - lo
		}
	}
	return worst
}

// boxed maps an unconstrained parameter into [h, 1-h].
func boxed(z, h float64) float64 {
	return h + (1-2*h)/(1+math.Exp(-z))
}

// unboxed inverts boxed, clamping away from the open interval's edges.
func unboxed(w, h float64) float64 {
	frac := (w - h) / (1 - 2*h)
	const eps = 1e-9
	if frac < eps {
		frac = eps
	}
	if frac > 1-eps {
		frac = 1 - eps
	}
	return math.Log(frac / (1 - frac))
}

// broadcast expands a scalar desired contrast across all targets.
func broadcast(desired []float64, targets int) []float64 {
	if len(desired) == targets {
		return append([]float64(nil), desired...)
	}
	out := make([]float64, targets)
	for i := range out {
		out[i] = desired[0]
	}
	return out
}
