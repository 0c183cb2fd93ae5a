package models

import (
	"errors"
	"fmt"
	"slices"
)

// ErrProfileSealed is returned when an observation arrives after probabilities were computed.
var ErrProfileSealed = errors.New("profile already normalized")

// ContactProfile holds one subject's duration buckets, keyed and ordered by duration.
type ContactProfile struct {
	SubjectID int

	buckets   map[int]*DurationBucket
	durations []int // sorted ascending, one entry per bucket
	sealed    bool
}

// NewContactProfile creates an empty profile for a subject.
func NewContactProfile(subjectID int) *ContactProfile {
	return &ContactProfile{
		SubjectID: subjectID,
		buckets:   make(map[int]*DurationBucket),
	}
}

// RecordObservation counts one contact of the given duration.
func (p *ContactProfile) RecordObservation(duration int) error {
	if p.sealed {
		return fmt.Errorf("subject %d: %w", p.SubjectID, ErrProfileSealed)
	}

	if b, ok := p.buckets[duration]; ok {
		b.Increment()
		return nil
	}

	b, err := NewDurationBucket(duration)
	if err != nil {
		return fmt.Errorf("subject %d: %w", p.SubjectID, err)
	}
	p.buckets[duration] = b

	i, _ := slices.BinarySearch(p.durations, duration)
	p.durations = slices.Insert(p.durations, i, duration)
	return nil
}

// NormalizeProbabilities computes bucket probabilities once all observations are in.
// The profile rejects further observations afterwards.
func (p *ContactProfile) NormalizeProbabilities() {
	ComputeProbabilities(p.Buckets())
	p.sealed = true
}

// Buckets returns the buckets in ascending duration order.
func (p *ContactProfile) Buckets() []*DurationBucket {
	out := make([]*DurationBucket, 0, len(p.durations))
	for _, d := range p.durations {
		out = append(out, p.buckets[d])
	}
	return out
}

// Bucket looks up the bucket for a duration.
func (p *ContactProfile) Bucket(duration int) (*DurationBucket, bool) {
	b, ok := p.buckets[duration]
	return b, ok
}

// Len returns the number of distinct durations.
func (p *ContactProfile) Len() int {
	return len(p.durations)
}

// Observations returns the total number of recorded contacts.
func (p *ContactProfile) Observations() float64 {
	var total float64
	for _, b := range p.buckets {
		total += b.Occurrences
	}
	return total
}

// Sealed reports whether probabilities have been computed.
func (p *ContactProfile) Sealed() bool {
	return p.sealed
}
