package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumenlab/silentsub/internal/store"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print stored design bundles",
		Long: `Print a stored design bundle, or list all stored designs.

Examples:
  silentsub show --out out --list
  silentsub show --out out --id 3
  silentsub show --out out            (latest design)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("out")
			asJSON, _ := cmd.Flags().GetBool("json")

			db, err := store.Open(dir)
			if err != nil {
				return err
			}
			defer db.Close()

			if list, _ := cmd.Flags().GetBool("list"); list {
				entries, err := db.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					out, err := json.MarshalIndent(entries, "", "  ")
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(out))
					return nil
				}
				for _, e := range entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%4d  %s  score %.4f  %v (%d tested)\n",
						e.ID, e.CreatedAt.Format("2006-01-02 15:04"), e.Score, e.Names, e.SubsetsTested)
				}
				return nil
			}

			var bundle store.Bundle
			if id, _ := cmd.Flags().GetInt64("id"); id > 0 {
				bundle, err = db.Load(cmd.Context(), id)
			} else {
				bundle, err = db.Latest(cmd.Context())
			}
			if err != nil {
				return err
			}

			if asJSON {
				out, err := json.MarshalIndent(bundle, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Design %d (%s)\n", bundle.ID, bundle.CreatedAt.Format("2006-01-02 15:04"))
			fmt.Fprintf(cmd.OutOrStdout(), "Primaries: %v\n", bundle.Outcome.Names)
			fmt.Fprintf(cmd.OutOrStdout(), "Score: %.4f over %d subsets\n", bundle.Score, bundle.SubsetsTested)
			for _, trial := range bundle.Outcome.Trials {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-24s converged=%v requested=%v\n",
					trial.Direction, trial.Converged, trial.RequestedContrast)
				fmt.Fprintf(cmd.OutOrStdout(), "    contrast: %s\n", formatContrasts(bundle.ReceptorClasses, trial.PositiveContrast))
			}
			return nil
		},
	}

	cmd.Flags().String("out", "out", "Output directory holding the design database")
	cmd.Flags().Int64("id", 0, "Design id to show (0 = latest)")
	cmd.Flags().Bool("list", false, "List all stored designs")
	return cmd
}

func formatContrasts(classes []string, contrasts []float64) string {
	out := ""
	for i, c := range contrasts {
		name := fmt.Sprintf("r%d", i)
		if i < len(classes) {
			name = classes[i]
		}
		if i > 0 {
			out += "  "
		}
		out += fmt.Sprintf("%s=%+.3f", name, c)
	}
	return out
}
