package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/contactfit/internal/models"
)

func TestWriteProfiles(t *testing.T) {
	p := models.NewContactProfile(5)
	for _, d := range []int{3, 1, 3, 3} {
		require.NoError(t, p.RecordObservation(d))
	}
	p.NormalizeProbabilities()

	var buf bytes.Buffer
	require.NoError(t, WriteProfiles(&buf, []*models.ContactProfile{p}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"subject_id", "duration", "occurrences", "probability"},
		{"5", "1", "1", "0.25"},
		{"5", "3", "3", "0.75"},
	}, rows)
}

func TestWriteProfilesUnnormalized(t *testing.T) {
	p := models.NewContactProfile(1)
	require.NoError(t, p.RecordObservation(2))

	var buf bytes.Buffer
	require.NoError(t, WriteProfiles(&buf, []*models.ContactProfile{p}))
	assert.Contains(t, buf.String(), "1,2,1,\n")
}

func TestWriteResults(t *testing.T) {
	results := []models.FitResult{
		{SubjectID: 1, Outcome: models.OutcomeRejected, SampleSize: 295, ObservedBuckets: 5,
			P: 0.5, ChiSquared: 130.25, DegreesOfFreedom: 3, PValue: 0.001},
		{SubjectID: 2, Outcome: models.OutcomeSkipped, SkipReason: "insufficient_sample", SampleSize: 9, ObservedBuckets: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, results))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, resultHeader, rows[0])
	assert.Equal(t, []string{"1", "rejected", "", "295", "5", "0.5", "130.25", "3", "0.001"}, rows[1])
	assert.Equal(t, []string{"2", "skipped", "insufficient_sample", "9", "2", "", "", "", ""}, rows[2])
}

func TestFormatSummary(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	run := &models.Run{
		ID:          "run-1",
		InputPath:   "contacts.txt",
		StartedAt:   start,
		CompletedAt: start.Add(1500 * time.Millisecond),
		Summary: models.Summary{
			Subjects: 1203, Skipped: 3, InvalidRecords: 1,
			Testable: 1200, NotRejected001: 900, Rejected: 300,
		},
		Results: []models.FitResult{
			{Outcome: models.OutcomeNotRejected001, P: 0.2, ChiSquared: 10},
			{Outcome: models.OutcomeRejected, P: 0.4, ChiSquared: 30},
			{Outcome: models.OutcomeSkipped},
		},
	}

	out := FormatSummary(run)
	assert.Contains(t, out, "Run run-1")
	assert.Contains(t, out, "Input: contacts.txt")
	assert.Contains(t, out, "Subjects: 1,203 (3 skipped, 1 invalid records)")
	assert.Contains(t, out, "Testable: 1,200")
	assert.Contains(t, out, "900 (75.0%)")
	assert.Contains(t, out, "300 (25.0%)")
	assert.Contains(t, out, "Mean p: 0.3, median 0.3")
	assert.Contains(t, out, "Mean chi-squared: 20, median 20")
	assert.Contains(t, out, "Elapsed: 1.5s")
}

func TestFormatSummaryNoTestable(t *testing.T) {
	out := FormatSummary(&models.Run{ID: "empty"})
	assert.Contains(t, out, "Testable: 0")
	assert.NotContains(t, out, "Mean")
	assert.Equal(t, 4, strings.Count(out, "(-)"))
}
