// Package contacts reads pairwise contact logs into per-subject profiles and
// generates synthetic logs in the same format.
//
// Each line of a log is one contact: "subject peer duration", whitespace separated.
// The peer is carried through parsing but plays no part in the fit.
package contacts

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/rewired-gh/contactfit/internal/models"
)

// ErrMalformedRecord is returned for a line that is not "subject peer duration".
var ErrMalformedRecord = fmt.Errorf("%w: malformed contact record", models.ErrInvalidInput)

// Record is one parsed contact.
type Record struct {
	Subject  int
	Peer     int
	Duration int
}

// RecordError describes a rejected line. Ingestion continues past it.
type RecordError struct {
	Line int
	Err  error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}

// ParseRecord parses one log line. Fields beyond the third are ignored.
func ParseRecord(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Record{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedRecord, len(fields))
	}

	var values [3]int
	for i := range values {
		v, err := strconv.Atoi(fields[i])
		if err != nil {
			return Record{}, fmt.Errorf("%w: field %d %q is not an integer", ErrMalformedRecord, i+1, fields[i])
		}
		values[i] = v
	}
	return Record{Subject: values[0], Peer: values[1], Duration: values[2]}, nil
}

// Dataset is the set of profiles built from one contact log.
type Dataset struct {
	profiles map[int]*models.ContactProfile
	subjects []int
	records  int
	rejected int
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{profiles: make(map[int]*models.ContactProfile)}
}

// Add records one contact against its subject's profile.
func (d *Dataset) Add(rec Record) error {
	profile, ok := d.profiles[rec.Subject]
	if !ok {
		profile = models.NewContactProfile(rec.Subject)
	}
	if err := profile.RecordObservation(rec.Duration); err != nil {
		return err
	}
	if !ok {
		d.profiles[rec.Subject] = profile
		i, _ := slices.BinarySearch(d.subjects, rec.Subject)
		d.subjects = slices.Insert(d.subjects, i, rec.Subject)
	}
	d.records++
	return nil
}

// Profiles returns every profile in ascending subject order.
func (d *Dataset) Profiles() []*models.ContactProfile {
	out := make([]*models.ContactProfile, 0, len(d.subjects))
	for _, id := range d.subjects {
		out = append(out, d.profiles[id])
	}
	return out
}

// Profile looks up one subject.
func (d *Dataset) Profile(subject int) (*models.ContactProfile, bool) {
	p, ok := d.profiles[subject]
	return p, ok
}

// Records returns the number of accepted contacts.
func (d *Dataset) Records() int {
	return d.records
}

// Rejected returns the number of lines Read turned away.
func (d *Dataset) Rejected() int {
	return d.rejected
}

// Read builds a dataset from a contact log. Blank lines and lines starting with '#'
// are skipped; bad lines are collected as RecordErrors. Only a read failure is fatal.
func Read(r io.Reader) (*Dataset, []RecordError, error) {
	ds := NewDataset()
	var rejected []RecordError

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rec, err := ParseRecord(line)
		if err == nil {
			err = ds.Add(rec)
		}
		if err != nil {
			rejected = append(rejected, RecordError{Line: lineNo, Err: err})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, rejected, fmt.Errorf("failed to read contact log: %w", err)
	}
	ds.rejected = len(rejected)
	return ds, rejected, nil
}

