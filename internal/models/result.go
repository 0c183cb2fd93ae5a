package models

import (
	"errors"
	"math"
	"time"
)

// Outcome is the terminal classification of one subject's goodness-of-fit test.
type Outcome string

const (
	// OutcomeNotRejected001 means the statistic is below the 0.001 critical value.
	OutcomeNotRejected001 Outcome = "not_rejected_0.001"
	// OutcomeNotRejected01 means the statistic is below the 0.01 critical value.
	OutcomeNotRejected01 Outcome = "not_rejected_0.01"
	// OutcomeNotRejected05 means the statistic is below the 0.05 critical value.
	OutcomeNotRejected05 Outcome = "not_rejected_0.05"
	// OutcomeRejected means the geometric hypothesis is rejected at every level.
	OutcomeRejected Outcome = "rejected"
	// OutcomeSkipped means the subject never reached classification.
	OutcomeSkipped Outcome = "skipped"
)

// Classified reports whether the outcome came from a completed test.
func (o Outcome) Classified() bool {
	switch o {
	case OutcomeNotRejected001, OutcomeNotRejected01, OutcomeNotRejected05, OutcomeRejected:
		return true
	}
	return false
}

// FrequencyCell pairs the observed and expected count for one trial count.
type FrequencyCell struct {
	Trials   int     `json:"trials"`
	Observed float64 `json:"observed"`
	Expected float64 `json:"expected"`
}

// FitResult is everything the engine learned about one subject.
// Fields after Outcome are only populated as far as the test progressed.
type FitResult struct {
	SubjectID        int              `json:"subject_id"`
	Outcome          Outcome          `json:"outcome"`
	SkipReason       string           `json:"skip_reason,omitempty"`
	SampleSize       float64          `json:"sample_size"`
	ObservedBuckets  int              `json:"observed_buckets"`
	P                float64          `json:"p"`
	ChiSquared       float64          `json:"chi_squared"`
	DegreesOfFreedom int              `json:"degrees_of_freedom"`
	PValue           float64          `json:"p_value"`
	Cells            []FrequencyCell  `json:"cells,omitempty"`
	Buckets          []DurationBucket `json:"buckets,omitempty"`
}

// Validate checks that a classified result is internally consistent
func (r *FitResult) Validate() error {
	if r.Outcome == "" {
		return errors.New("outcome must not be empty")
	}
	if !r.Outcome.Classified() {
		return nil
	}
	if r.P <= 0.0 || r.P >= 1.0 {
		return errors.New("p must be strictly between 0.0 and 1.0")
	}
	if r.DegreesOfFreedom < 1 {
		return errors.New("degrees of freedom must be at least 1")
	}
	if math.IsNaN(r.ChiSquared) || math.IsInf(r.ChiSquared, 0) || r.ChiSquared < 0 {
		return errors.New("chi-squared must be a finite non-negative number")
	}
	if r.ObservedBuckets != len(r.Cells) {
		return errors.New("observed buckets must match the number of cells")
	}
	return nil
}

// Summary is the process-wide tally reported at the end of a run.
type Summary struct {
	Subjects       int `json:"subjects"`
	Skipped        int `json:"skipped"`
	InvalidRecords int `json:"invalid_records"`
	Testable       int `json:"testable"`
	NotRejected001 int `json:"not_rejected_0_001"`
	NotRejected01  int `json:"not_rejected_0_01"`
	NotRejected05  int `json:"not_rejected_0_05"`
	Rejected       int `json:"rejected"`
}

// Run is one analysis of one contact log.
type Run struct {
	ID          string      `json:"id"`
	InputPath   string      `json:"input_path"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
	Summary     Summary     `json:"summary"`
	Results     []FitResult `json:"results"`
}

// Validate checks that all run fields are valid
func (r *Run) Validate() error {
	if r.ID == "" {
		return errors.New("run ID must not be empty")
	}
	if r.StartedAt.IsZero() {
		return errors.New("started at must be set")
	}
	if r.CompletedAt.Before(r.StartedAt) {
		return errors.New("completed at must be >= started at")
	}
	s := r.Summary
	if s.Testable != s.NotRejected001+s.NotRejected01+s.NotRejected05+s.Rejected {
		return errors.New("testable must equal the sum of outcome counts")
	}
	if s.Subjects != s.Testable+s.Skipped {
		return errors.New("subjects must equal testable + skipped")
	}
	return nil
}
