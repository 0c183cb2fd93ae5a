// Package analysis runs the goodness-of-fit test over every subject of a dataset and
// assembles the run record.
//
// Subjects are tested on a bounded worker pool sharing one set of aggregate counters.
// Results keep subject order regardless of the order workers finish in.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/contactfit/internal/contacts"
	"github.com/rewired-gh/contactfit/internal/fit"
	"github.com/rewired-gh/contactfit/internal/logger"
	"github.com/rewired-gh/contactfit/internal/models"
)

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *models.Run) error
}

// Observer receives per-subject outcomes, typically a metrics sink.
type Observer interface {
	ObserveResult(result models.FitResult)
	ObserveInvalidRecords(n int)
}

// Runner drives one analysis. Store and Metrics are optional.
type Runner struct {
	Engine  *fit.Engine
	Workers int
	Store   RunStore
	Metrics Observer
}

// Run tests every subject in ds. A non-nil run is returned together with the error
// when only persisting it failed.
func (r *Runner) Run(ctx context.Context, ds *contacts.Dataset, inputPath string) (*models.Run, error) {
	if r.Engine == nil {
		return nil, errors.New("runner has no engine")
	}

	run := &models.Run{
		ID:        uuid.New().String(),
		InputPath: inputPath,
		StartedAt: time.Now(),
	}

	profiles := ds.Profiles()
	results := make([]models.FitResult, len(profiles))
	var counters fit.AggregateCounters

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}

	logger.Info("Testing %d subjects with %d workers (run %s)", len(profiles), workers, run.ID)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, profile := range profiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !profile.Sealed() {
				profile.NormalizeProbabilities()
			}

			result, err := r.Engine.Test(profile, &counters)
			if err != nil {
				logger.Debug("%v", err)
			}
			result.Buckets = snapshotBuckets(profile)
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis interrupted: %w", err)
	}

	run.Results = results
	run.Summary = counters.Summary()
	run.Summary.Subjects = len(profiles)
	run.Summary.InvalidRecords = ds.Rejected()

	skipReasons := make(map[string]int)
	for _, result := range results {
		if !result.Outcome.Classified() {
			run.Summary.Skipped++
			skipReasons[result.SkipReason]++
		}
	}
	run.CompletedAt = time.Now()

	logger.Info("Run %s: %d subjects, %d testable, %d skipped in %v",
		run.ID, run.Summary.Subjects, run.Summary.Testable, run.Summary.Skipped, run.CompletedAt.Sub(run.StartedAt))
	if len(skipReasons) > 0 {
		logger.Info("Skip reasons: %s", formatReasons(skipReasons))
	}

	if err := run.Validate(); err != nil {
		return nil, fmt.Errorf("inconsistent run: %w", err)
	}

	if r.Metrics != nil {
		for _, result := range results {
			r.Metrics.ObserveResult(result)
		}
		r.Metrics.ObserveInvalidRecords(run.Summary.InvalidRecords)
	}

	if r.Store != nil {
		if err := r.Store.SaveRun(ctx, run); err != nil {
			return run, fmt.Errorf("failed to save run %s: %w", run.ID, err)
		}
		logger.Debug("Run %s saved", run.ID)
	}

	return run, nil
}

// snapshotBuckets copies the profile's buckets so the result does not alias live state.
func snapshotBuckets(profile *models.ContactProfile) []models.DurationBucket {
	buckets := profile.Buckets()
	out := make([]models.DurationBucket, len(buckets))
	for i, b := range buckets {
		out[i] = *b
	}
	return out
}

func formatReasons(reasons map[string]int) string {
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := ""
	for i, k := range keys {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%d", k, reasons[k])
	}
	return s
}
