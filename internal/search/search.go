// Package search runs the subset trial loop: for every candidate primary
// combination it builds the filtered primary matrix once, designs every
// stimulus direction against it, and scores the per-subset outcomes to pick
// the winning combination. Trials are independent and run on a bounded
// worker group; results land in slots indexed by candidate position, so
// completion order never affects the outcome.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/lumenlab/silentsub/internal/dichroic"
	"github.com/lumenlab/silentsub/internal/modulation"
	"github.com/lumenlab/silentsub/internal/primary"
)

// Outcome bundles one subset's trials.
type Outcome struct {
	// Subset holds primary-table indices ordered by peak wavelength.
	Subset []int `json:"subset"`

	// Names are the primary names in Subset order.
	Names []string `json:"names"`

	// Crossovers records the dichroic crossover wavelength per adjacent
	// pair, for diagnostics.
	Crossovers []float64 `json:"crossovers,omitempty"`

	// Trials holds one entry per stimulus direction, in direction order.
	Trials []modulation.Trial `json:"trials"`
}

// Driver coordinates the parallel subset search.
type Driver struct {
	// Table is the normalized primary pool.
	Table *primary.Table

	// T is the receptor sensitivity matrix shared read-only by all trials.
	T *mat.Dense

	// Directions lists the stimulus directions designed for every subset.
	Directions []modulation.Direction

	// Filter configures the adjacent-channel model applied to each
	// subset's matrix before any direction runs.
	Filter dichroic.Config

	// Mod carries the per-direction orchestration parameters.
	Mod modulation.Config

	// Workers bounds the parallel trial count; values below 1 mean serial.
	Workers int

	// Logger receives advisory progress output. Nil disables it.
	Logger *slog.Logger
}

// Run executes every candidate subset and returns the outcomes indexed by
// candidate position.
func (d *Driver) Run(ctx context.Context, candidates [][]int) ([]Outcome, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("search: no candidates to run")
	}
	if len(d.Directions) == 0 {
		return nil, fmt.Errorf("search: no stimulus directions configured")
	}

	workers := d.Workers
	if workers < 1 {
		workers = 1
	}

	outcomes := make([]Outcome, len(candidates))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, candidate := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := d.runTrial(i, candidate)
			if err != nil {
				return fmt.Errorf("search: subset %v: %w", candidate, err)
			}
			outcomes[i] = outcome

			n := done.Add(1)
			if d.Logger != nil {
				d.Logger.Debug("subset tested",
					"done", n, "total", len(candidates), "subset", outcome.Names)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if d.Logger != nil {
		d.Logger.Info("search complete", "subsets", len(candidates), "directions", len(d.Directions))
	}
	return outcomes, nil
}

// runTrial builds one subset's filtered matrix and designs every direction
// against it.
func (d *Driver) runTrial(position int, candidate []int) (Outcome, error) {
	ordered := orderByPeak(candidate, d.Table)

	B := subsetMatrix(d.Table, ordered)
	B, crossovers, err := dichroic.Apply(B, d.Table.Support, d.Filter)
	if err != nil {
		return Outcome{}, err
	}

	powers := make([]float64, len(ordered))
	names := make([]string, len(ordered))
	for i, idx := range ordered {
		powers[i] = d.Table.Primaries[idx].PowerMilliwatts
		names[i] = d.Table.Primaries[idx].Name
	}

	// Each trial owns a private engine; random starts stay reproducible by
	// deriving the seed from the candidate position.
	cfg := d.Mod
	cfg.Seed = d.Mod.Seed + int64(position)
	engine := modulation.NewEngine(d.T, cfg)

	trials := make([]modulation.Trial, len(d.Directions))
	for i, dir := range d.Directions {
		trial, err := engine.Design(B, powers, dir)
		if err != nil {
			return Outcome{}, err
		}
		trials[i] = trial
	}

	return Outcome{
		Subset:     ordered,
		Names:      names,
		Crossovers: crossovers,
		Trials:     trials,
	}, nil
}

// orderByPeak sorts a candidate's table indices by peak wavelength, the
// column order the dichroic cascade expects.
func orderByPeak(candidate []int, table *primary.Table) []int {
	ordered := append([]int(nil), candidate...)
	sort.Slice(ordered, func(a, b int) bool {
		return table.Primaries[ordered[a]].PeakNM < table.Primaries[ordered[b]].PeakNM
	})
	return ordered
}

// subsetMatrix assembles the samples x subset-size primary matrix from the
// normalized table.
func subsetMatrix(table *primary.Table, ordered []int) *mat.Dense {
	B := mat.NewDense(table.Support.N, len(ordered), nil)
	for c, idx := range ordered {
		B.SetCol(c, table.Primaries[idx].Curve)
	}
	return B
}
