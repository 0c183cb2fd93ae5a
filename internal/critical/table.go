// Package critical holds chi-squared critical values indexed by degrees of freedom
// for the three significance levels used by the goodness-of-fit test.
//
// A table is either parsed from a text file with one row per degree of freedom:
//
//	# df  0.05    0.01    0.001
//	1     3.841   6.635   10.828
//	2     5.991   9.210   13.816
//
// or generated from the chi-squared quantile function.
package critical

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// Significance levels covered by every row, in column order.
const (
	Alpha05  = 0.05
	Alpha01  = 0.01
	Alpha001 = 0.001
)

// Levels lists the significance levels in column order.
var Levels = []float64{Alpha05, Alpha01, Alpha001}

// DefaultMaxDF is the number of rows in a generated table.
const DefaultMaxDF = 100

var (
	// ErrDegreesOutOfRange is returned when no row exists for the requested degrees of freedom.
	ErrDegreesOutOfRange = errors.New("degrees of freedom outside critical-value table")
	// ErrMalformedTable is returned for any structural problem in a table file.
	ErrMalformedTable = errors.New("malformed critical-value table")
	// ErrUnknownLevel is returned for a significance level the table does not carry.
	ErrUnknownLevel = errors.New("unknown significance level")
)

// Row holds the critical values for one degree of freedom.
type Row struct {
	DF       int
	Alpha05  float64
	Alpha01  float64
	Alpha001 float64
}

// Threshold returns the critical value for a significance level.
func (r Row) Threshold(level float64) (float64, error) {
	switch level {
	case Alpha05:
		return r.Alpha05, nil
	case Alpha01:
		return r.Alpha01, nil
	case Alpha001:
		return r.Alpha001, nil
	}
	return 0, fmt.Errorf("%w: %g", ErrUnknownLevel, level)
}

// Table is an immutable lookup of rows for df = 1..MaxDF.
type Table struct {
	rows []Row
}

// NewTable builds a table from rows that must start at df=1 and be contiguous.
func NewTable(rows []Row) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrMalformedTable)
	}
	for i, r := range rows {
		if r.DF != i+1 {
			return nil, fmt.Errorf("%w: row %d has df %d, want %d", ErrMalformedTable, i+1, r.DF, i+1)
		}
		for _, v := range []float64{r.Alpha05, r.Alpha01, r.Alpha001} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return nil, fmt.Errorf("%w: df %d has invalid critical value %g", ErrMalformedTable, r.DF, v)
			}
		}
	}
	out := make([]Row, len(rows))
	copy(out, rows)
	return &Table{rows: out}, nil
}

// Lookup returns the row for df.
func (t *Table) Lookup(df int) (Row, error) {
	if df < 1 || df > len(t.rows) {
		return Row{}, fmt.Errorf("%w: df %d, table covers 1..%d", ErrDegreesOutOfRange, df, len(t.rows))
	}
	return t.rows[df-1], nil
}

// MaxDF returns the largest degree of freedom in the table.
func (t *Table) MaxDF() int {
	return len(t.rows)
}

// Generate computes a table for df = 1..maxDF from the chi-squared quantile function.
func Generate(maxDF int) (*Table, error) {
	if maxDF < 1 {
		return nil, fmt.Errorf("%w: max df must be at least 1, got %d", ErrMalformedTable, maxDF)
	}
	rows := make([]Row, maxDF)
	for df := 1; df <= maxDF; df++ {
		dist := distuv.ChiSquared{K: float64(df)}
		rows[df-1] = Row{
			DF:       df,
			Alpha05:  dist.Quantile(1 - Alpha05),
			Alpha01:  dist.Quantile(1 - Alpha01),
			Alpha001: dist.Quantile(1 - Alpha001),
		}
	}
	return NewTable(rows)
}

// Load reads a table file from disk.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open critical-value table: %w", err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse reads rows of "df v05 v01 v001", separated by whitespace or commas.
// Blank lines, '#' comments and a leading non-numeric header line are ignored.
func Parse(r io.Reader) (*Table, error) {
	var rows []Row
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.FieldsFunc(line, func(c rune) bool {
			return c == ',' || c == ' ' || c == '\t'
		})
		if len(rows) == 0 && len(fields) > 0 {
			if _, err := strconv.ParseFloat(fields[0], 64); err != nil {
				continue // header
			}
		}
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: line %d: expected 4 fields, got %d", ErrMalformedTable, lineNo, len(fields))
		}

		df, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad df %q", ErrMalformedTable, lineNo, fields[0])
		}
		var vals [3]float64
		for i := range vals {
			vals[i], err = strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad value %q", ErrMalformedTable, lineNo, fields[i+1])
			}
		}
		rows = append(rows, Row{DF: df, Alpha05: vals[0], Alpha01: vals[1], Alpha001: vals[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read critical-value table: %w", err)
	}
	return NewTable(rows)
}

// Write emits the table in the format accepted by Parse.
func (t *Table) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# df\t%g\t%g\t%g\n", Alpha05, Alpha01, Alpha001)
	for _, r := range t.rows {
		fmt.Fprintf(bw, "%d\t%.3f\t%.3f\t%.3f\n", r.DF, r.Alpha05, r.Alpha01, r.Alpha001)
	}
	return bw.Flush()
}
