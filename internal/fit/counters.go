package fit

import (
	"sync/atomic"

	"github.com/rewired-gh/contactfit/internal/models"
)

// AggregateCounters tallies classified subjects across a run.
// The zero value is ready to use and safe for concurrent Record calls.
type AggregateCounters struct {
	testable       atomic.Int64
	notRejected001 atomic.Int64
	notRejected01  atomic.Int64
	notRejected05  atomic.Int64
	rejected       atomic.Int64
}

// Record counts one classified subject. Non-classified outcomes are ignored.
func (c *AggregateCounters) Record(outcome models.Outcome) {
	var bucket *atomic.Int64
	switch outcome {
	case models.OutcomeNotRejected001:
		bucket = &c.notRejected001
	case models.OutcomeNotRejected01:
		bucket = &c.notRejected01
	case models.OutcomeNotRejected05:
		bucket = &c.notRejected05
	case models.OutcomeRejected:
		bucket = &c.rejected
	default:
		return
	}
	c.testable.Add(1)
	bucket.Add(1)
}

// Testable returns the number of subjects that reached classification.
func (c *AggregateCounters) Testable() int {
	return int(c.testable.Load())
}

// Summary snapshots the counters. Subject, skip and record totals are left to the caller.
func (c *AggregateCounters) Summary() models.Summary {
	return models.Summary{
		Testable:       int(c.testable.Load()),
		NotRejected001: int(c.notRejected001.Load()),
		NotRejected01:  int(c.notRejected01.Load()),
		NotRejected05:  int(c.notRejected05.Load()),
		Rejected:       int(c.rejected.Load()),
	}
}
