// Package store persists winning device designs. Each saved bundle carries
// the run's configuration snapshot, the winning subset's identity, and
// every per-direction trial, so a stored design is a complete, selectable
// device description.
package store

import (
	"time"

	"github.com/lumenlab/silentsub/internal/modulation"
	"github.com/lumenlab/silentsub/internal/search"
)

// Bundle is one persisted design: the winning subset's full result set.
type Bundle struct {
	// ID identifies the stored design (assigned on save).
	ID int64 `json:"id"`

	// CreatedAt is the save timestamp.
	CreatedAt time.Time `json:"created_at"`

	// ConfigYAML snapshots the run configuration that produced the design.
	ConfigYAML string `json:"config_yaml"`

	// Score is the winning subset's worst contrast shortfall.
	Score float64 `json:"score"`

	// SubsetsTested records how large the search was.
	SubsetsTested int `json:"subsets_tested"`

	// Sensitivities holds the receptor sensitivity matrix row-major, with
	// its class labels, so a stored design replays without the model.
	ReceptorClasses []string    `json:"receptor_classes"`
	Sensitivities   [][]float64 `json:"sensitivities"`

	// Directions are the stimulus direction specs of the run.
	Directions []modulation.Direction `json:"directions"`

	// Outcome is the winning subset's trial bundle.
	Outcome search.Outcome `json:"outcome"`
}
