// Package modulation orchestrates per-direction modulation design for one
// candidate primary subset: it constructs the background primary vector,
// delegates the constrained search to the solver, and derives receptor
// contrasts and modulation spectra from the returned vector.
package modulation

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/lumenlab/silentsub/internal/solver"
)

// BackgroundMode selects how background primary settings are constructed.
type BackgroundMode string

const (
	// BackgroundUniform sets every primary to 0.5.
	BackgroundUniform BackgroundMode = "uniform"

	// BackgroundPowerWeighted offsets each primary from 0.5 by its
	// min-max-normalized, mean-centered measured power, inverted so
	// higher-power primaries sit further from the top of their range.
	BackgroundPowerWeighted BackgroundMode = "power-weighted"
)

// StartPolicy selects the solver's starting vector.
type StartPolicy string

const (
	StartBackground StartPolicy = "background"
	StartOnes       StartPolicy = "ones"
	StartRandom     StartPolicy = "random"
)

// Direction is one named stimulus direction: which receptors to drive,
// which to silence, and which to keep low, plus its contrast demands.
type Direction struct {
	// Name identifies the direction, e.g. "MelanopsinIsolating".
	Name string `yaml:"name"`

	// Targets, Ignore and Minimize index receptor rows. Receptors in none
	// of the sets are implicitly minimized.
	Targets  []int `yaml:"targets"`
	Ignore   []int `yaml:"ignore,omitempty"`
	Minimize []int `yaml:"minimize,omitempty"`

	// Desired is the requested contrast, one scalar or one value per target.
	Desired []float64 `yaml:"desired"`

	// ContrastGroups bounds the spread of achieved contrast across grouped
	// target receptors by MaxGroupSpread.
	ContrastGroups [][]int `yaml:"contrast_groups,omitempty"`
	MaxGroupSpread float64 `yaml:"max_group_spread,omitempty"`

	// Scored marks directions that contribute to final subset selection.
	Scored bool `yaml:"scored"`
}

// Config carries the per-run orchestration parameters.
type Config struct {
	// Headroom keeps primaries inside [Headroom, 1-Headroom].
	Headroom float64

	// BackgroundMode and StartPolicy select background construction and
	// solver seeding.
	BackgroundMode BackgroundMode
	StartPolicy    StartPolicy

	// ShrinkStep and ShrinkAbort tune the solver's contrast-shrinking loop.
	ShrinkStep  float64
	ShrinkAbort float64

	// Seed fixes random starting vectors.
	Seed int64

	// Solver tunes the inner optimizer.
	Solver solver.Options
}

// DefaultConfig returns the orchestration defaults.
func DefaultConfig() Config {
	return Config{
		Headroom:       0.02,
		BackgroundMode: BackgroundUniform,
		StartPolicy:    StartBackground,
		ShrinkStep:     0.05,
		ShrinkAbort:    0.2,
		Solver:         solver.DefaultOptions(),
	}
}

// Trial is the result of designing one direction against one subset.
type Trial struct {
	Direction          string    `json:"direction"`
	Background         []float64 `json:"background"`
	BackgroundSpectrum []float64 `json:"background_spectrum"`
	Modulation         []float64 `json:"modulation"`
	PositiveContrast   []float64 `json:"positive_contrast"`
	NegativeContrast   []float64 `json:"negative_contrast"`
	PositiveSpectrum   []float64 `json:"positive_spectrum"`
	NegativeSpectrum   []float64 `json:"negative_spectrum"`
	RequestedContrast  []float64 `json:"requested_contrast"`
	Converged          bool      `json:"converged"`
}

// Engine designs modulations against a fixed receptor sensitivity matrix.
// It is stateless apart from the seeded generator for random starts.
type Engine struct {
	T   *mat.Dense
	cfg Config
	rng *rand.Rand
}

// NewEngine creates an engine over the receptor matrix T.
func NewEngine(T *mat.Dense, cfg Config) *Engine {
	return &Engine{
		T:   T,
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Design runs one direction against the filtered primary matrix B. powers
// holds the measured total power of each of B's columns and feeds the
// power-weighted background mode.
func (e *Engine) Design(B *mat.Dense, powers []float64, dir Direction) (Trial, error) {
	_, primaries := B.Dims()
	if len(powers) != primaries {
		return Trial{}, fmt.Errorf("modulation: %d powers for %d primaries", len(powers), primaries)
	}

	background, err := Background(e.cfg.BackgroundMode, powers, e.cfg.Headroom)
	if err != nil {
		return Trial{}, err
	}
	start := e.start(background)

	res, err := solver.Solve(solver.Problem{
		B:              B,
		T:              e.T,
		Background:     background,
		Start:          start,
		Targets:        dir.Targets,
		Ignore:         dir.Ignore,
		Minimize:       dir.Minimize,
		Headroom:       e.cfg.Headroom,
		Desired:        dir.Desired,
		ContrastGroups: dir.ContrastGroups,
		MaxGroupSpread: dir.MaxGroupSpread,
		ShrinkStep:     e.cfg.ShrinkStep,
		ShrinkAbort:    e.cfg.ShrinkAbort,
	}, e.cfg.Solver)
	if err != nil {
		return Trial{}, fmt.Errorf("modulation: direction %q: %w", dir.Name, err)
	}

	return e.derive(B, background, dir, res), nil
}

// derive computes the contrast vectors and spectra for a solved modulation.
func (e *Engine) derive(B *mat.Dense, background []float64, dir Direction, res solver.Result) Trial {
	w := res.Modulation

	// Mirror of the modulation on the other side of the background:
	// bg - (w - bg).
	mirror := make([]float64, len(w))
	for j := range w {
		mirror[j] = 2*background[j] - w[j]
	}

	return Trial{
		Direction:          dir.Name,
		Background:         background,
		BackgroundSpectrum: spectrum(B, background),
		Modulation:         w,
		PositiveContrast:   solver.Contrasts(e.T, B, background, w, nil),
		NegativeContrast:   solver.Contrasts(e.T, B, background, mirror, nil),
		PositiveSpectrum:   spectrum(B, w),
		NegativeSpectrum:   spectrum(B, mirror),
		RequestedContrast:  res.Requested,
		Converged:          res.Converged,
	}
}

// start returns the solver starting vector for the configured policy.
func (e *Engine) start(background []float64) []float64 {
	switch e.cfg.StartPolicy {
	case StartOnes:
		out := make([]float64, len(background))
		for i := range out {
			out[i] = 1 - e.cfg.Headroom
		}
		return out
	case StartRandom:
		out := make([]float64, len(background))
		span := 1 - 2*e.cfg.Headroom
		for i := range out {
			out[i] = e.cfg.Headroom + span*e.rng.Float64()
		}
		return out
	default:
		return append([]float64(nil), background...)
	}
}

// Background constructs the background primary vector for the given mode.
func Background(mode BackgroundMode, powers []float64, headroom float64) ([]float64, error) {
	n := len(powers)
	out := make([]float64, n)
	switch mode {
	case BackgroundUniform, "":
		for i := range out {
			out[i] = 0.5
		}
		return out, nil
	case BackgroundPowerWeighted:
		lo, hi := powers[0], powers[0]
		for _, p := range powers {
			if p < lo {
				lo = p
			}
			if p > hi {
				hi = p
			}
		}

		// Equal powers carry no information; degenerate to uniform.
		norm := make([]float64, n)
		if hi > lo {
			var mean float64
			for i, p := range powers {
				norm[i] = (p - lo) / (hi - lo)
				mean += norm[i]
			}
			mean /= float64(n)
			for i := range norm {
				norm[i] -= mean
			}
		}

		for i := range out {
			v := 0.5 - 0.5*norm[i]
			if v < headroom {
				v = headroom
			}
			if v > 1-headroom {
				v = 1 - headroom
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("modulation: unknown background mode %q", mode)
	}
}

// spectrum computes B·w as a plain slice.
func spectrum(B *mat.Dense, w []float64) []float64 {
	samples, _ := B.Dims()
	v := mat.NewVecDense(samples, nil)
	v.MulVec(B, mat.NewVecDense(len(w), w))
	out := make([]float64, samples)
	copy(out, v.RawVector().Data)
	return out
}
