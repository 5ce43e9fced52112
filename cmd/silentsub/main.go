package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "silentsub",
		Short: "Silent-substitution primary-set search",
		Long: `silentsub selects a subset of LED primaries and computes modulation
settings that stimulate chosen photoreceptor classes while silencing others.

It searches candidate primary combinations under spectral-spacing and
dichroic-filtering constraints, designs every configured stimulus direction
for each candidate, and keeps the combination with the smallest worst-case
contrast shortfall.`,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newSearchCmd(),
		newShowCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
