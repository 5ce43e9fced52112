// Package config provides run configuration loading for silentsub.
// A run is fully described by one YAML file; flags on the CLI override a
// small number of fields (seed, workers, output directory, verbosity).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lumenlab/silentsub/internal/dichroic"
	"github.com/lumenlab/silentsub/internal/modulation"
	"github.com/lumenlab/silentsub/internal/receptor"
)

// RunConfig contains everything needed to reproduce one search run.
type RunConfig struct {
	// OutputDir receives the result database, trace log and plots.
	OutputDir string `yaml:"output_dir"`

	// SPDFile and PowerFile name the two tabular inputs: a
	// wavelength-indexed SPD table and a per-primary total-power table.
	SPDFile   string `yaml:"spd_file"`
	PowerFile string `yaml:"power_file"`

	// SurfaceAreasMM2 maps primary-name suffixes to emitting surface areas.
	// Every primary must match at least one suffix.
	SurfaceAreasMM2 map[string]float64 `yaml:"surface_areas_mm2"`

	// Headroom is the margin kept between primary settings and the device's
	// hard [0,1] limits.
	Headroom float64 `yaml:"headroom"`

	// Observer parameterizes the receptor sensitivity model.
	Observer ObserverConfig `yaml:"observer"`

	// Classes lists the photoreceptor classes, in row order. Empty selects
	// the default peripheral/central cone plus melanopsin set.
	Classes []receptor.Class `yaml:"classes,omitempty"`

	// SubsetSize is the number of primaries kept per candidate subset.
	SubsetSize int `yaml:"subset_size"`

	// MinSpacingNM rejects subsets whose peak-sorted adjacent gap is less
	// than or equal to this value.
	MinSpacingNM float64 `yaml:"min_spacing_nm"`

	// ExplicitSubset, when set, bypasses enumeration and tests exactly
	// these primary-table indices.
	ExplicitSubset []int `yaml:"explicit_subset,omitempty"`

	// MaxSubsets caps how many shuffled candidates are tested; 0 tests all.
	MaxSubsets int `yaml:"max_subsets"`

	// Seed fixes the candidate shuffle and any random starting vectors.
	Seed int64 `yaml:"seed"`

	// Workers bounds parallel subset trials; 0 or 1 runs serially.
	Workers int `yaml:"workers"`

	// BackgroundMode selects uniform or power-weighted backgrounds.
	BackgroundMode modulation.BackgroundMode `yaml:"background_mode"`

	// StartPolicy seeds the solver: background, ones, or random.
	StartPolicy modulation.StartPolicy `yaml:"start_policy"`

	// ShrinkStep and ShrinkAbort tune the contrast-shrinking loop run when
	// a direction bounds its differential contrast.
	ShrinkStep  float64 `yaml:"shrink_step"`
	ShrinkAbort float64 `yaml:"shrink_abort"`

	// Filter configures the adjacent-channel dichroic model.
	Filter FilterConfig `yaml:"filter"`

	// Directions lists the stimulus directions designed for every subset.
	Directions []modulation.Direction `yaml:"directions"`

	// LogLevel is "info", "debug" or "trace".
	LogLevel string `yaml:"log_level"`

	// Plots toggles per-direction diagnostic plot files.
	Plots bool `yaml:"plots"`
}

// ObserverConfig mirrors receptor.Observer with YAML tags.
type ObserverConfig struct {
	FieldSizeDeg   float64 `yaml:"field_size_deg"`
	AgeYears       float64 `yaml:"age_years"`
	PupilMM        float64 `yaml:"pupil_mm"`
	BleachFraction float64 `yaml:"bleach_fraction,omitempty"`
}

// FilterConfig mirrors dichroic.Config with YAML tags.
type FilterConfig struct {
	Enabled     bool      `yaml:"enabled"`
	MaxSlope    float64   `yaml:"max_slope"`
	CrossoverNM []float64 `yaml:"crossover_nm,omitempty"`
}

// Default returns a RunConfig with the defaults used by a typical run.
func Default() *RunConfig {
	return &RunConfig{
		OutputDir:      "out",
		Headroom:       0.02,
		Observer:       ObserverConfig{FieldSizeDeg: 10, AgeYears: 32, PupilMM: 4},
		SubsetSize:     5,
		MinSpacingNM:   20,
		BackgroundMode: modulation.BackgroundUniform,
		StartPolicy:    modulation.StartBackground,
		ShrinkStep:     0.05,
		ShrinkAbort:    0.2,
		Filter:         FilterConfig{Enabled: true, MaxSlope: 0.03},
		LogLevel:       "info",
		Plots:          true,
	}
}

// Load reads a YAML run configuration, applying defaults for absent fields.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration before any trial executes. All
// violations here are fatal configuration errors.
func (c *RunConfig) Validate() error {
	if c.SPDFile == "" || c.PowerFile == "" {
		return fmt.Errorf("spd_file and power_file are required")
	}
	if len(c.SurfaceAreasMM2) == 0 {
		return fmt.Errorf("surface_areas_mm2 must map at least one name suffix")
	}
	if c.Headroom < 0 || c.Headroom >= 0.5 {
		return fmt.Errorf("headroom must be in [0, 0.5), got %v", c.Headroom)
	}
	if len(c.ExplicitSubset) == 0 && c.SubsetSize < 2 {
		return fmt.Errorf("subset_size must be at least 2, got %d", c.SubsetSize)
	}
	if c.MinSpacingNM < 0 {
		return fmt.Errorf("min_spacing_nm must be non-negative, got %v", c.MinSpacingNM)
	}
	if c.ShrinkStep <= 0 || c.ShrinkStep >= 1 {
		return fmt.Errorf("shrink_step must be in (0,1), got %v", c.ShrinkStep)
	}
	if c.ShrinkAbort <= 0 || c.ShrinkAbort >= 1 {
		return fmt.Errorf("shrink_abort must be in (0,1), got %v", c.ShrinkAbort)
	}

	switch c.BackgroundMode {
	case modulation.BackgroundUniform, modulation.BackgroundPowerWeighted, "":
	default:
		return fmt.Errorf("invalid background_mode: %s (valid: uniform, power-weighted)", c.BackgroundMode)
	}
	switch c.StartPolicy {
	case modulation.StartBackground, modulation.StartOnes, modulation.StartRandom, "":
	default:
		return fmt.Errorf("invalid start_policy: %s (valid: background, ones, random)", c.StartPolicy)
	}

	validLevels := map[string]bool{"": true, "info": true, "debug": true, "trace": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (valid: info, debug, trace)", c.LogLevel)
	}

	if len(c.Directions) == 0 {
		return fmt.Errorf("at least one direction is required")
	}
	anyScored := false
	for i, dir := range c.Directions {
		if dir.Name == "" {
			return fmt.Errorf("direction %d has no name", i)
		}
		if len(dir.Targets) == 0 {
			return fmt.Errorf("direction %q has no target receptors", dir.Name)
		}
		if len(dir.Desired) != 1 && len(dir.Desired) != len(dir.Targets) {
			return fmt.Errorf("direction %q: %d desired contrasts for %d targets", dir.Name, len(dir.Desired), len(dir.Targets))
		}
		if dir.Scored {
			anyScored = true
		}
	}
	if !anyScored {
		return fmt.Errorf("no direction is flagged for scoring")
	}
	return nil
}

// ReceptorObserver converts the YAML observer block to the receptor type.
func (c *RunConfig) ReceptorObserver() receptor.Observer {
	return receptor.Observer{
		FieldSizeDeg:   c.Observer.FieldSizeDeg,
		AgeYears:       c.Observer.AgeYears,
		PupilMM:        c.Observer.PupilMM,
		BleachFraction: c.Observer.BleachFraction,
	}
}

// DichroicConfig converts the YAML filter block to the dichroic type.
func (c *RunConfig) DichroicConfig() dichroic.Config {
	return dichroic.Config{
		Enabled:     c.Filter.Enabled,
		MaxSlope:    c.Filter.MaxSlope,
		CrossoverNM: c.Filter.CrossoverNM,
	}
}

// ReceptorClasses returns the configured class list or the default set.
func (c *RunConfig) ReceptorClasses() []receptor.Class {
	if len(c.Classes) > 0 {
		return c.Classes
	}
	return receptor.DefaultClasses
}
