// Package models defines the core domain entities for contactfit.
// These models represent per-subject contact-duration distributions, goodness-of-fit
// results and analysis runs. Models include built-in validation where the data comes
// from outside the process.
//
// Terminology:
//   - Subject: an individual appearing as the first column of a contact record.
//   - Duration bucket: every contact of one duration for one subject, with its count.
//   - Profile: the ordered set of duration buckets for one subject.
package models

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/contactfit/internal/logger"
)

// ErrInvalidInput marks data rejected at the ingestion boundary (non-positive durations,
// malformed records). Callers skip the offending record and continue.
var ErrInvalidInput = errors.New("invalid input")

// DurationBucket counts how many times a subject had a contact of one duration.
// Probability is only meaningful once Normalized is true.
type DurationBucket struct {
	Duration    int     `json:"duration"`
	Occurrences float64 `json:"occurrences"`
	Probability float64 `json:"probability"`
	Normalized  bool    `json:"normalized"`
}

// NewDurationBucket creates a bucket for a first observation of duration.
func NewDurationBucket(duration int) (*DurationBucket, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidInput, duration)
	}
	return &DurationBucket{Duration: duration, Occurrences: 1}, nil
}

// Increment records one more occurrence of this duration.
func (b *DurationBucket) Increment() {
	b.Occurrences++
}

// SetOccurrences overrides the count, used when deriving shifted or expected buckets.
func (b *DurationBucket) SetOccurrences(n float64) {
	b.Occurrences = n
}

// Compare orders buckets by duration only. Counts and probabilities are not part of identity.
func (b *DurationBucket) Compare(other *DurationBucket) int {
	switch {
	case b.Duration < other.Duration:
		return -1
	case b.Duration > other.Duration:
		return 1
	default:
		return 0
	}
}

// Validate checks that all bucket fields are valid
func (b *DurationBucket) Validate() error {
	if b.Duration <= 0 {
		return errors.New("duration must be positive")
	}
	if b.Occurrences < 0 {
		return errors.New("occurrences must not be negative")
	}
	if b.Normalized && (b.Probability < 0.0 || b.Probability > 1.0) {
		return errors.New("probability must be between 0.0 and 1.0")
	}
	return nil
}

// String formats the bucket as "duration, occurrences, probability".
func (b *DurationBucket) String() string {
	return fmt.Sprintf("%d, %g, %g", b.Duration, b.Occurrences, b.Probability)
}

// ComputeProbabilities sets probability = occurrences / total occurrences on every bucket.
// An empty set is logged and returned unchanged.
func ComputeProbabilities(buckets []*DurationBucket) []*DurationBucket {
	if len(buckets) == 0 {
		logger.Warn("Cannot compute probabilities for an empty bucket set")
		return buckets
	}

	var total float64
	for _, b := range buckets {
		total += b.Occurrences
	}
	if total <= 0 {
		logger.Warn("Cannot compute probabilities: total occurrences is %g", total)
		return buckets
	}

	for _, b := range buckets {
		b.Probability = b.Occurrences / total
		b.Normalized = true
	}
	return buckets
}
