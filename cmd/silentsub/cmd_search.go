package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lumenlab/silentsub/internal/config"
	"github.com/lumenlab/silentsub/internal/logging"
	"github.com/lumenlab/silentsub/internal/modulation"
	"github.com/lumenlab/silentsub/internal/primary"
	"github.com/lumenlab/silentsub/internal/receptor"
	"github.com/lumenlab/silentsub/internal/search"
	"github.com/lumenlab/silentsub/internal/spd"
	"github.com/lumenlab/silentsub/internal/store"
	"github.com/lumenlab/silentsub/internal/subset"
	"github.com/lumenlab/silentsub/internal/visualization"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run the primary-set search for a run configuration",
		Long: `Run the full search pipeline: load and normalize the primary tables,
compute receptor sensitivities, enumerate and filter candidate subsets,
design every stimulus direction against each candidate, and persist the
winning design bundle.

Example:
  silentsub search --config run.yaml --workers 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger := logging.NewLogger(cfg.LogLevel, os.Stderr)
			trace := logging.NewTraceLogger(cfg.OutputDir, cfg.LogLevel)
			defer trace.Close()

			bundle, err := runSearch(cmd.Context(), cfg, logger, trace)
			if err != nil {
				return err
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				out, err := json.MarshalIndent(map[string]any{
					"id":      bundle.ID,
					"names":   bundle.Outcome.Names,
					"subset":  bundle.Outcome.Subset,
					"score":   bundle.Score,
					"tested":  bundle.SubsetsTested,
					"db_path": cfg.OutputDir,
				}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Winning subset: %v (score %.4f over %d tested)\n",
				bundle.Outcome.Names, bundle.Score, bundle.SubsetsTested)
			fmt.Fprintf(cmd.OutOrStdout(), "Design saved as id %d in %s\n", bundle.ID, cfg.OutputDir)
			return nil
		},
	}

	cmd.Flags().String("config", "run.yaml", "Run configuration file")
	cmd.Flags().Int64("seed", 0, "Override the configured random seed")
	cmd.Flags().Int("workers", 0, "Override the configured worker count")
	cmd.Flags().String("out", "", "Override the configured output directory")
	cmd.Flags().String("log-level", "", "Override the configured log level")
	return cmd
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.RunConfig) {
	if cmd.Flags().Changed("seed") {
		cfg.Seed, _ = cmd.Flags().GetInt64("seed")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("out") {
		cfg.OutputDir, _ = cmd.Flags().GetString("out")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
}

// runSearch executes the pipeline described by cfg and returns the saved
// winning bundle.
func runSearch(ctx context.Context, cfg *config.RunConfig, logger *slog.Logger, trace *logging.TraceLogger) (store.Bundle, error) {
	curves, support, err := spd.LoadSPDTable(cfg.SPDFile)
	if err != nil {
		return store.Bundle{}, err
	}
	powers, err := spd.LoadPowerTable(cfg.PowerFile)
	if err != nil {
		return store.Bundle{}, err
	}
	table, err := primary.Normalize(curves, powers, cfg.SurfaceAreasMM2, support)
	if err != nil {
		return store.Bundle{}, err
	}
	logger.Info("primaries normalized", "count", len(table.Primaries),
		"support", fmt.Sprintf("%.0f-%.0fnm", support.StartNM, support.Wavelength(support.N-1)))

	classes := cfg.ReceptorClasses()
	T, err := receptor.Sensitivities(support, classes, cfg.ReceptorObserver())
	if err != nil {
		return store.Bundle{}, err
	}

	candidates, err := subset.Plan(table.Peaks(), subset.Config{
		Size:         cfg.SubsetSize,
		MinSpacingNM: cfg.MinSpacingNM,
		Explicit:     cfg.ExplicitSubset,
		MaxToTest:    cfg.MaxSubsets,
		Seed:         cfg.Seed,
	})
	if err != nil {
		return store.Bundle{}, err
	}
	logger.Info("search planned", "candidates", len(candidates), "directions", len(cfg.Directions))

	driver := &search.Driver{
		Table:      table,
		T:          T,
		Directions: cfg.Directions,
		Filter:     cfg.DichroicConfig(),
		Mod: modulation.Config{
			Headroom:       cfg.Headroom,
			BackgroundMode: cfg.BackgroundMode,
			StartPolicy:    cfg.StartPolicy,
			ShrinkStep:     cfg.ShrinkStep,
			ShrinkAbort:    cfg.ShrinkAbort,
			Seed:           cfg.Seed,
			Solver:         modulation.DefaultConfig().Solver,
		},
		Workers: cfg.Workers,
		Logger:  logger,
	}
	outcomes, err := driver.Run(ctx, candidates)
	if err != nil {
		return store.Bundle{}, err
	}

	for _, outcome := range outcomes {
		score, err := search.Score(outcome, cfg.Directions)
		if err != nil {
			return store.Bundle{}, err
		}
		trace.Log(map[string]any{
			"subset": outcome.Subset,
			"names":  outcome.Names,
			"score":  score,
		})
	}

	winner, score, err := search.SelectBest(outcomes, cfg.Directions)
	if err != nil {
		return store.Bundle{}, err
	}
	logger.Info("subset selected", "names", outcomes[winner].Names, "score", score)

	snapshot, err := yaml.Marshal(cfg)
	if err != nil {
		return store.Bundle{}, fmt.Errorf("snapshotting configuration: %w", err)
	}

	classNames := make([]string, len(classes))
	for i, c := range classes {
		classNames[i] = string(c)
	}
	rows, cols := T.Dims()
	sens := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		sens[r] = make([]float64, cols)
		for c := 0; c < cols; c++ {
			sens[r][c] = T.At(r, c)
		}
	}

	db, err := store.Open(cfg.OutputDir)
	if err != nil {
		return store.Bundle{}, err
	}
	defer db.Close()

	bundle, err := db.Save(ctx, store.Bundle{
		ConfigYAML:      string(snapshot),
		Score:           score,
		SubsetsTested:   len(outcomes),
		ReceptorClasses: classNames,
		Sensitivities:   sens,
		Directions:      cfg.Directions,
		Outcome:         outcomes[winner],
	})
	if err != nil {
		return store.Bundle{}, err
	}

	if cfg.Plots {
		paths, err := visualization.PlotOutcome(outcomes[winner], support, cfg.OutputDir)
		if err != nil {
			return store.Bundle{}, err
		}
		logger.Debug("plots written", "count", len(paths))
	}
	return bundle, nil
}
