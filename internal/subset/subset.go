// Package subset enumerates candidate primary combinations and filters them
// by peak-wavelength spacing before the search loop runs.
package subset

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// ErrEmptySearchSpace indicates no combination survived the spacing filter;
// the caller must relax the minimum spacing or the subset size.
var ErrEmptySearchSpace = errors.New("subset: no combinations survive the spacing filter")

// Config controls candidate planning.
type Config struct {
	// Size is the number of primaries to keep per subset.
	Size int

	// MinSpacingNM rejects combinations whose peak-sorted adjacent gap is
	// less than or equal to this value.
	MinSpacingNM float64

	// Explicit, when non-empty, bypasses enumeration and tests exactly this
	// subset (indices into the primary table).
	Explicit []int

	// MaxToTest caps the number of shuffled candidates; 0 tests all
	// survivors. A cap beyond the population silently truncates.
	MaxToTest int

	// Seed fixes the shuffle order for reproducible runs.
	Seed int64
}

// Enumerate returns all size-k index combinations of {0..n-1} in
// lexicographic order.
func Enumerate(n, k int) [][]int {
	if k <= 0 || k > n {
		return nil
	}
	var combos [][]int
	combo := make([]int, k)
	for i := range combo {
		combo[i] = i
	}
	for {
		combos = append(combos, append([]int(nil), combo...))

		// Advance to the next combination.
		i := k - 1
		for i >= 0 && combo[i] == n-k+i {
			i--
		}
		if i < 0 {
			return combos
		}
		combo[i]++
		for j := i + 1; j < k; j++ {
			combo[j] = combo[j-1] + 1
		}
	}
}

// FilterBySpacing keeps combinations whose primaries, sorted by peak
// wavelength, all sit strictly more than minNM apart.
func FilterBySpacing(combos [][]int, peaks []float64, minNM float64) [][]int {
	kept := combos[:0:0]
	for _, combo := range combos {
		if minAdjacentGap(combo, peaks) > minNM {
			kept = append(kept, combo)
		}
	}
	return kept
}

// minAdjacentGap returns the smallest gap between peak-sorted neighbors.
func minAdjacentGap(combo []int, peaks []float64) float64 {
	sorted := make([]float64, len(combo))
	for i, idx := range combo {
		sorted[i] = peaks[idx]
	}
	sort.Float64s(sorted)

	gap := sorted[len(sorted)-1] - sorted[0]
	for i := 1; i < len(sorted); i++ {
		if d := sorted[i] - sorted[i-1]; d < gap {
			gap = d
		}
	}
	return gap
}

// Plan produces the ordered candidate list for one run: either the explicit
// subset alone, or all spacing-surviving combinations shuffled with the
// configured seed and capped at MaxToTest.
func Plan(peaks []float64, cfg Config) ([][]int, error) {
	if len(cfg.Explicit) > 0 {
		for _, idx := range cfg.Explicit {
			if idx < 0 || idx >= len(peaks) {
				return nil, fmt.Errorf("subset: explicit index %d out of range [0,%d)", idx, len(peaks))
			}
		}
		return [][]int{append([]int(nil), cfg.Explicit...)}, nil
	}

	combos := Enumerate(len(peaks), cfg.Size)
	combos = FilterBySpacing(combos, peaks, cfg.MinSpacingNM)
	if len(combos) == 0 {
		return nil, fmt.Errorf("%w (size %d, spacing %.1fnm over %d primaries)",
			ErrEmptySearchSpace, cfg.Size, cfg.MinSpacingNM, len(peaks))
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	rng.Shuffle(len(combos), func(i, j int) {
		combos[i], combos[j] = combos[j], combos[i]
	})

	if cfg.MaxToTest > 0 && cfg.MaxToTest < len(combos) {
		combos = combos[:cfg.MaxToTest]
	}
	return combos, nil
}
