package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/contactfit/internal/critical"
)

// tableCmd prints the generated critical-value table
func tableCmd() *cobra.Command {
	var (
		maxDOF int
		out    string
	)

	cmd := &cobra.Command{
		Use:   "table",
		Short: "Write the chi-squared critical-value table",
		Long: `Computes critical values at 0.05, 0.01 and 0.001 for df 1..--max-dof.
The output can be edited and passed back via analysis.critical_table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := critical.Generate(maxDOF)
			if err != nil {
				return fmt.Errorf("failed to generate table: %w", err)
			}
			if out == "" {
				return table.Write(cmd.OutOrStdout())
			}
			return writeFile(out, func(w io.Writer) error { return table.Write(w) })
		},
	}

	cmd.Flags().IntVar(&maxDOF, "max-dof", critical.DefaultMaxDF, "Largest degrees of freedom in the table")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (stdout when empty)")

	return cmd
}
