package search

import (
	"fmt"

	"github.com/lumenlab/silentsub/internal/modulation"
)

// Score is a subset's worst contrast shortfall across the scored
// directions: max over those directions of 1 - achieved/desired, where
// achieved is the positive contrast at the direction's first target
// receptor. A subset meeting every desire exactly scores 0.
func Score(outcome Outcome, directions []modulation.Direction) (float64, error) {
	if len(outcome.Trials) != len(directions) {
		return 0, fmt.Errorf("search: outcome has %d trials for %d directions", len(outcome.Trials), len(directions))
	}

	worst := 0.0
	scored := false
	for i, dir := range directions {
		if !dir.Scored {
			continue
		}
		desired := dir.Desired[0]
		if desired == 0 {
			return 0, fmt.Errorf("search: direction %q is scored with zero desired contrast", dir.Name)
		}
		achieved := outcome.Trials[i].PositiveContrast[dir.Targets[0]]
		shortfall := 1 - achieved/desired
		if !scored || shortfall > worst {
			worst = shortfall
			scored = true
		}
	}
	if !scored {
		return 0, fmt.Errorf("search: no direction is flagged for scoring")
	}
	return worst, nil
}

// SelectBest returns the index of the outcome with the smallest worst
// shortfall, and that score. Ties resolve to the first minimal index over
// the candidate order, which is deterministic for a fixed subset seed.
func SelectBest(outcomes []Outcome, directions []modulation.Direction) (int, float64, error) {
	if len(outcomes) == 0 {
		return 0, 0, fmt.Errorf("search: no outcomes to select from")
	}

	bestIdx := -1
	bestScore := 0.0
	for i, outcome := range outcomes {
		score, err := Score(outcome, directions)
		if err != nil {
			return 0, 0, err
		}
		if bestIdx < 0 || score < bestScore {
			bestIdx = i
			bestScore = score
		}
	}
	return bestIdx, bestScore, nil
}
