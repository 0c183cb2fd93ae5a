package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/contactfit/internal/analysis"
	"github.com/rewired-gh/contactfit/internal/config"
	"github.com/rewired-gh/contactfit/internal/contacts"
	"github.com/rewired-gh/contactfit/internal/critical"
	"github.com/rewired-gh/contactfit/internal/fit"
	"github.com/rewired-gh/contactfit/internal/logger"
	"github.com/rewired-gh/contactfit/internal/metrics"
	"github.com/rewired-gh/contactfit/internal/report"
	"github.com/rewired-gh/contactfit/internal/storage"
	"github.com/rewired-gh/contactfit/internal/telegram"
)

// analyzeCmd runs the fit over a contact log
func analyzeCmd() *cobra.Command {
	var (
		input       string
		profilesCSV string
		resultsCSV  string
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Fit every subject in a contact log and classify the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("input") {
				cfg.Input.Path = input
			}
			if flags.Changed("profiles-csv") {
				cfg.Output.ProfilesCSV = profilesCSV
			}
			if flags.Changed("results-csv") {
				cfg.Output.ResultsCSV = resultsCSV
			}
			if flags.Changed("workers") {
				cfg.Analysis.Workers = workers
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger.Init(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runAnalysis(ctx, cmd.OutOrStdout(), cfg)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Contact log to analyze")
	cmd.Flags().StringVar(&profilesCSV, "profiles-csv", "", "Write per-subject duration probabilities to this CSV (empty disables)")
	cmd.Flags().StringVar(&resultsCSV, "results-csv", "", "Write per-subject fit results to this CSV (empty disables)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Subjects tested in parallel")

	return cmd
}

func runAnalysis(ctx context.Context, out io.Writer, cfg *config.Config) error {
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		var err error
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	notifyFailure := func(err error) error {
		if telegramClient != nil {
			if sendErr := telegramClient.SendError(err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		return err
	}

	table, err := loadTable(cfg.Analysis)
	if err != nil {
		return notifyFailure(err)
	}
	logger.Debug("Critical-value table covers df 1..%d", table.MaxDF())

	ds, err := readContacts(cfg.Input.Path)
	if err != nil {
		return notifyFailure(err)
	}

	runner := &analysis.Runner{
		Engine:  fit.New(table, cfg.Analysis.MinObservations, cfg.Analysis.MinSampleSize),
		Workers: cfg.Analysis.Workers,
	}

	if cfg.Storage.Enabled {
		store, err := storage.New(cfg.Storage.DBPath)
		if err != nil {
			return notifyFailure(fmt.Errorf("failed to initialize storage: %w", err))
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		runner.Store = store
	}

	registry := prometheus.NewRegistry()
	if cfg.Metrics.TextfilePath != "" {
		runner.Metrics = metrics.New(registry)
	}

	run, runErr := runner.Run(ctx, ds, cfg.Input.Path)
	if run == nil {
		return notifyFailure(runErr)
	}
	if runErr != nil {
		// results are complete, only persistence failed
		logger.Error("%v", runErr)
	}

	if err := writeFile(cfg.Output.ProfilesCSV, func(w io.Writer) error {
		return report.WriteProfiles(w, ds.Profiles())
	}); err != nil {
		return notifyFailure(err)
	}
	if err := writeFile(cfg.Output.ResultsCSV, func(w io.Writer) error {
		return report.WriteResults(w, run.Results)
	}); err != nil {
		return notifyFailure(err)
	}

	if cfg.Metrics.TextfilePath != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.TextfilePath, registry); err != nil {
			logger.Warn("%v", err)
		}
	}

	fmt.Fprint(out, report.FormatSummary(run))

	if telegramClient != nil {
		if err := telegramClient.SendSummary(run); err != nil {
			logger.Warn("Failed to send summary to Telegram: %v", err)
		}
	}
	return runErr
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func loadTable(cfg config.AnalysisConfig) (*critical.Table, error) {
	if cfg.CriticalTable != "" {
		table, err := critical.Load(cfg.CriticalTable)
		if err != nil {
			return nil, fmt.Errorf("failed to load critical-value table: %w", err)
		}
		logger.Info("Loaded critical-value table from %s", cfg.CriticalTable)
		return table, nil
	}
	table, err := critical.Generate(cfg.MaxDOF)
	if err != nil {
		return nil, fmt.Errorf("failed to generate critical-value table: %w", err)
	}
	return table, nil
}

func readContacts(path string) (*contacts.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open contact log: %w", err)
	}
	defer f.Close()

	ds, rejected, err := contacts.Read(f)
	if err != nil {
		return nil, err
	}
	for _, re := range rejected {
		logger.Warn("Skipping record: %v", re)
	}
	logger.Info("Read %d contacts for %d subjects from %s (%d rejected)",
		ds.Records(), len(ds.Profiles()), path, len(rejected))
	return ds, nil
}

// writeFile creates path and its directory and hands it to write. An empty path is a no-op.
func writeFile(path string, write func(io.Writer) error) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	logger.Info("Wrote %s", path)
	return nil
}
