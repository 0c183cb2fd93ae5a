package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "contactfit",
		Short: "Test per-subject contact durations against a geometric distribution",
		Long: `Reads pairwise contact logs ("subject peer duration" per line), builds a
duration distribution per subject and runs Pearson's chi-squared goodness-of-fit
test against a geometric model fitted by maximum likelihood.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (defaults and CONTACTFIT_* env when empty)")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(tableCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(showCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
