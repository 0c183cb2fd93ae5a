package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/contactfit/internal/contacts"
	"github.com/rewired-gh/contactfit/internal/logger"
)

// generateCmd writes a synthetic contact log
func generateCmd() *cobra.Command {
	var (
		gen contacts.Generator
		out string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic contact log",
		Long: `Draws contact durations per subject, either geometric with success
probability --p or from a folded normal, and writes them in the input format.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(cfg.Logging.Level, cfg.Logging.Format)

			if !cmd.Flags().Changed("seed") {
				gen.Seed = uint64(time.Now().UnixNano())
			}

			var n int
			if out == "" {
				n, err = gen.Write(cmd.OutOrStdout())
			} else {
				err = writeFile(out, func(w io.Writer) error {
					var werr error
					n, werr = gen.Write(w)
					return werr
				})
			}
			if err != nil {
				return fmt.Errorf("failed to generate contacts: %w", err)
			}
			logger.Info("Generated %d contacts for %d subjects (mode %s, seed %d)", n, gen.Subjects, gen.Mode, gen.Seed)
			return nil
		},
	}

	cmd.Flags().IntVar(&gen.Subjects, "subjects", 100, "Number of subjects")
	cmd.Flags().IntVar(&gen.ContactsPerSubject, "contacts", 300, "Contacts per subject")
	cmd.Flags().IntVar(&gen.Peers, "peers", 0, "Size of the peer ID space (0 = number of subjects)")
	cmd.Flags().StringVar(&gen.Mode, "mode", contacts.ModeGeometric, "Duration distribution: geometric or gaussian")
	cmd.Flags().Float64Var(&gen.P, "p", 0.2, "Success probability for geometric mode")
	cmd.Flags().Uint64Var(&gen.Seed, "seed", 0, "Random seed (random when unset)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (stdout when empty)")

	return cmd
}
