package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rewired-gh/contactfit/internal/critical"
	"github.com/rewired-gh/contactfit/internal/models"
)

// EstimateP returns the maximum-likelihood estimate of the geometric success probability:
// total successes over total trials, where each bucket's Duration is its trial count.
func EstimateP(observed []*models.DurationBucket) (float64, error) {
	var successes, trials float64
	for _, b := range observed {
		successes += b.Occurrences
		trials += b.Occurrences * float64(b.Duration)
	}
	if successes <= 0 || trials <= 0 {
		return 0, fmt.Errorf("%w: no trials to estimate p from", ErrDegenerateModel)
	}
	return successes / trials, nil
}

// GeometricPMF is P(X = k) for the number of trials up to and including the first success.
func GeometricPMF(k int, p float64) float64 {
	return math.Pow(1-p, float64(k-1)) * p
}

// ExpectedFrequencies builds the ideal buckets: sampleSize × Geom(k; p) at every observed trial count.
func ExpectedFrequencies(observed []*models.DurationBucket, sampleSize, p float64) []*models.DurationBucket {
	ideal := make([]*models.DurationBucket, len(observed))
	for i, b := range observed {
		ideal[i] = &models.DurationBucket{Duration: b.Duration}
		ideal[i].SetOccurrences(GeometricPMF(b.Duration, p) * sampleSize)
	}
	return ideal
}

// ChiSquared computes Pearson's statistic Σ (o-e)²/e.
// A zero, negative or non-finite expected frequency makes the statistic meaningless
// and is reported as ErrDegenerateModel.
func ChiSquared(observed, expected []float64) (float64, error) {
	if len(observed) != len(expected) {
		return 0, fmt.Errorf("observed has %d cells, expected has %d", len(observed), len(expected))
	}
	for i, e := range expected {
		if e <= 0 || math.IsNaN(e) || math.IsInf(e, 0) {
			return 0, fmt.Errorf("%w: expected frequency %g in cell %d", ErrDegenerateModel, e, i)
		}
	}
	chi := stat.ChiSquare(observed, expected)
	if math.IsNaN(chi) || math.IsInf(chi, 0) {
		return 0, fmt.Errorf("%w: statistic is %g", ErrDegenerateModel, chi)
	}
	return chi, nil
}

// DegreesOfFreedom is cells - 1 for the fixed total - 1 for the estimated p.
func DegreesOfFreedom(cells int) int {
	return cells - 2
}

// PValue is the upper-tail probability of chi under a chi-squared distribution with df degrees.
func PValue(chi float64, df int) float64 {
	return distuv.ChiSquared{K: float64(df)}.Survival(chi)
}

// Classify compares chi against the row's critical values, 0.001 column first.
// A statistic below several thresholds is credited to the first one matched.
func Classify(chi float64, row critical.Row) models.Outcome {
	switch {
	case chi < row.Alpha001:
		return models.OutcomeNotRejected001
	case chi < row.Alpha01:
		return models.OutcomeNotRejected01
	case chi < row.Alpha05:
		return models.OutcomeNotRejected05
	default:
		return models.OutcomeRejected
	}
}
