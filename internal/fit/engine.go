// Package fit tests whether a subject's contact durations follow a geometric distribution.
//
// A contact of duration d is modelled as d failed Bernoulli trials followed by one success
// (the contact ending), so every duration is shifted to a trial count of d+1. For each
// subject the engine:
//
//	observed  = buckets seen more than MinObservations times, keyed by trial count
//	p̂         = Σ n_k / Σ (n_k × k)
//	expected  = N × (1-p̂)^(k-1) × p̂
//	χ²        = Σ (observed - expected)² / expected,  df = cells - 2
//
// and classifies χ² against a critical-value table. Subjects that cannot be tested
// (too small a sample, too few cells, degenerate model) are skipped without touching
// the aggregate counters.
package fit

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/contactfit/internal/critical"
	"github.com/rewired-gh/contactfit/internal/models"
)

const (
	// DefaultMinObservations is the count a bucket must exceed to enter the observed set.
	DefaultMinObservations = 3
	// DefaultMinSampleSize is the smallest observed sample the chi-squared approximation is trusted on.
	DefaultMinSampleSize = 250
)

var (
	// ErrEmptyProfile is returned for a subject without any buckets.
	ErrEmptyProfile = errors.New("profile has no observations")
	// ErrInsufficientSample is returned when the sample is too small for a valid test.
	ErrInsufficientSample = errors.New("insufficient sample")
	// ErrInsufficientDegrees is an ErrInsufficientSample caused by df < 1.
	ErrInsufficientDegrees = fmt.Errorf("%w: too few degrees of freedom", ErrInsufficientSample)
	// ErrDegenerateModel is returned when the fitted model yields an unusable expected frequency.
	ErrDegenerateModel = errors.New("degenerate model")
)

// SubjectError represents a per-subject reason for skipping the test
type SubjectError struct {
	SubjectID int
	Err       error
}

func (e SubjectError) Error() string {
	return fmt.Sprintf("subject %d skipped: %v", e.SubjectID, e.Err)
}

func (e SubjectError) Unwrap() error {
	return e.Err
}

// SkipReason maps a skip error to a short stable label for reports and metrics.
func SkipReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyProfile):
		return "empty_profile"
	case errors.Is(err, ErrInsufficientDegrees):
		return "insufficient_degrees"
	case errors.Is(err, ErrInsufficientSample):
		return "insufficient_sample"
	case errors.Is(err, critical.ErrDegreesOutOfRange):
		return "degrees_out_of_range"
	case errors.Is(err, ErrDegenerateModel):
		return "degenerate_model"
	default:
		return "error"
	}
}

// Engine runs the goodness-of-fit test against a fixed critical-value table
type Engine struct {
	table           *critical.Table
	minObservations int
	minSampleSize   int
}

// New creates an Engine. Negative thresholds fall back to the defaults.
func New(table *critical.Table, minObservations, minSampleSize int) *Engine {
	if minObservations < 0 {
		minObservations = DefaultMinObservations
	}
	if minSampleSize < 0 {
		minSampleSize = DefaultMinSampleSize
	}
	return &Engine{
		table:           table,
		minObservations: minObservations,
		minSampleSize:   minSampleSize,
	}
}

// Test runs the full pipeline for one profile and records the outcome in counters.
// On a skip the partially filled result is returned together with a SubjectError;
// counters are only touched when the subject is classified.
func (e *Engine) Test(profile *models.ContactProfile, counters *AggregateCounters) (models.FitResult, error) {
	result := models.FitResult{
		SubjectID: profile.SubjectID,
		Outcome:   models.OutcomeSkipped,
	}
	skip := func(err error) (models.FitResult, error) {
		result.SkipReason = SkipReason(err)
		return result, SubjectError{SubjectID: profile.SubjectID, Err: err}
	}

	if profile.Len() == 0 {
		return skip(ErrEmptyProfile)
	}

	observed, err := e.filterObserved(profile.Buckets())
	if err != nil {
		return skip(err)
	}
	result.ObservedBuckets = len(observed)

	var sampleSize float64
	for _, b := range observed {
		sampleSize += b.Occurrences
	}
	result.SampleSize = sampleSize
	if sampleSize < float64(e.minSampleSize) {
		return skip(fmt.Errorf("%w: sample size %g below %d", ErrInsufficientSample, sampleSize, e.minSampleSize))
	}

	df := DegreesOfFreedom(len(observed))
	result.DegreesOfFreedom = df
	if df < 1 {
		return skip(fmt.Errorf("%w: %d cells give df %d", ErrInsufficientDegrees, len(observed), df))
	}
	row, err := e.table.Lookup(df)
	if err != nil {
		return skip(err)
	}

	p, err := EstimateP(observed)
	if err != nil {
		return skip(err)
	}
	result.P = p

	ideal := ExpectedFrequencies(observed, sampleSize, p)
	obsFreq := make([]float64, len(observed))
	expFreq := make([]float64, len(ideal))
	result.Cells = make([]models.FrequencyCell, len(observed))
	for i := range observed {
		obsFreq[i] = observed[i].Occurrences
		expFreq[i] = ideal[i].Occurrences
		result.Cells[i] = models.FrequencyCell{
			Trials:   observed[i].Duration,
			Observed: obsFreq[i],
			Expected: expFreq[i],
		}
	}

	chi, err := ChiSquared(obsFreq, expFreq)
	if err != nil {
		return skip(err)
	}
	result.ChiSquared = chi
	result.PValue = PValue(chi, df)

	result.Outcome = Classify(chi, row)
	if counters != nil {
		counters.Record(result.Outcome)
	}
	return result, nil
}

// filterObserved keeps buckets seen more than minObservations times and shifts each
// duration to its trial count.
func (e *Engine) filterObserved(buckets []*models.DurationBucket) ([]*models.DurationBucket, error) {
	var observed []*models.DurationBucket
	for _, b := range buckets {
		if b.Occurrences <= float64(e.minObservations) {
			continue
		}
		shifted, err := models.NewDurationBucket(b.Duration + 1)
		if err != nil {
			return nil, err
		}
		shifted.SetOccurrences(b.Occurrences)
		observed = append(observed, shifted)
	}
	return observed, nil
}
