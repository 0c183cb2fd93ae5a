// Package report renders profiles, fit results and run summaries for people and spreadsheets.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"

	"github.com/rewired-gh/contactfit/internal/models"
)

var profileHeader = []string{"subject_id", "duration", "occurrences", "probability"}

var resultHeader = []string{
	"subject_id", "outcome", "skip_reason", "sample_size", "observed_buckets",
	"p", "chi_squared", "degrees_of_freedom", "p_value",
}

// WriteProfiles writes one CSV row per (subject, duration) bucket, in subject then duration order.
func WriteProfiles(w io.Writer, profiles []*models.ContactProfile) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(profileHeader); err != nil {
		return fmt.Errorf("failed to write profile header: %w", err)
	}
	for _, p := range profiles {
		id := strconv.Itoa(p.SubjectID)
		for _, b := range p.Buckets() {
			row := []string{id, strconv.Itoa(b.Duration), formatFloat(b.Occurrences), ""}
			if b.Normalized {
				row[3] = formatFloat(b.Probability)
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write profile of subject %d: %w", p.SubjectID, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResults writes one CSV row per subject. Statistics a skipped subject never reached are blank.
func WriteResults(w io.Writer, results []models.FitResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultHeader); err != nil {
		return fmt.Errorf("failed to write result header: %w", err)
	}
	for _, r := range results {
		row := []string{
			strconv.Itoa(r.SubjectID),
			string(r.Outcome),
			r.SkipReason,
			formatFloat(r.SampleSize),
			strconv.Itoa(r.ObservedBuckets),
			"", "", "", "",
		}
		if r.Outcome.Classified() {
			row[5] = formatFloat(r.P)
			row[6] = formatFloat(r.ChiSquared)
			row[7] = strconv.Itoa(r.DegreesOfFreedom)
			row[8] = formatFloat(r.PValue)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write result of subject %d: %w", r.SubjectID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatSummary renders the run tally as plain text.
func FormatSummary(run *models.Run) string {
	s := run.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s\n", run.ID)
	if run.InputPath != "" {
		fmt.Fprintf(&b, "Input: %s\n", run.InputPath)
	}
	fmt.Fprintf(&b, "Subjects: %s (%s skipped, %s invalid records)\n",
		humanize.Comma(int64(s.Subjects)), humanize.Comma(int64(s.Skipped)), humanize.Comma(int64(s.InvalidRecords)))
	fmt.Fprintf(&b, "Testable: %s\n", humanize.Comma(int64(s.Testable)))

	lines := []struct {
		label string
		n     int
	}{
		{"not rejected at 0.001", s.NotRejected001},
		{"not rejected at 0.01", s.NotRejected01},
		{"not rejected at 0.05", s.NotRejected05},
		{"rejected", s.Rejected},
	}
	for _, l := range lines {
		fmt.Fprintf(&b, "  %-22s %s (%s)\n", l.label+":", humanize.Comma(int64(l.n)), percent(l.n, s.Testable))
	}

	var ps, chis stats.Float64Data
	for _, r := range run.Results {
		if r.Outcome.Classified() {
			ps = append(ps, r.P)
			chis = append(chis, r.ChiSquared)
		}
	}
	if line, ok := describe("p", ps); ok {
		b.WriteString(line)
	}
	if line, ok := describe("chi-squared", chis); ok {
		b.WriteString(line)
	}

	if !run.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "Elapsed: %v\n", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	return b.String()
}

func describe(name string, data stats.Float64Data) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	mean, err := data.Mean()
	if err != nil {
		return "", false
	}
	median, err := data.Median()
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("Mean %s: %s, median %s\n", name,
		humanize.FtoaWithDigits(mean, 4), humanize.FtoaWithDigits(median, 4)), true
}

func percent(n, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
