package fit

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/contactfit/internal/critical"
	"github.com/rewired-gh/contactfit/internal/models"
)

func mustTable(t *testing.T, maxDF int) *critical.Table {
	t.Helper()
	table, err := critical.Generate(maxDF)
	require.NoError(t, err)
	return table
}

// profileFromCounts records count observations of each duration.
func profileFromCounts(t *testing.T, id int, counts map[int]int) *models.ContactProfile {
	t.Helper()
	p := models.NewContactProfile(id)
	for d, n := range counts {
		for i := 0; i < n; i++ {
			require.NoError(t, p.RecordObservation(d))
		}
	}
	p.NormalizeProbabilities()
	return p
}

// geometricLikeCounts decays by 0.9 per duration step over durations 1..30.
var geometricLikeCounts = []int{40, 36, 32, 29, 26, 24, 21, 19, 17, 15, 14, 13, 11, 10, 9, 8, 7, 7, 6, 5, 5, 4, 4, 4, 3, 3, 3, 2, 2, 2}

func geometricLikeProfile(t *testing.T, id int) *models.ContactProfile {
	counts := make(map[int]int, len(geometricLikeCounts))
	for i, n := range geometricLikeCounts {
		counts[i+1] = n
	}
	return profileFromCounts(t, id, counts)
}

func TestChiSquaredKnownArrays(t *testing.T) {
	chi, err := ChiSquared([]float64{100, 80, 70}, []float64{90, 85, 75})
	require.NoError(t, err)

	want := 100.0/90 + 25.0/85 + 25.0/75
	assert.InDelta(t, want, chi, 1e-12)
	assert.InDelta(t, 1.738562, chi, 1e-6)
}

func TestChiSquaredDegenerate(t *testing.T) {
	tests := map[string][]float64{
		"zero expected":     {10, 0, 5},
		"negative expected": {10, -1, 5},
		"nan expected":      {10, math.NaN(), 5},
		"inf expected":      {10, math.Inf(1), 5},
	}
	for name, expected := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ChiSquared([]float64{10, 10, 10}, expected)
			assert.ErrorIs(t, err, ErrDegenerateModel)
		})
	}

	_, err := ChiSquared([]float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func TestEstimateP(t *testing.T) {
	observed := []*models.DurationBucket{
		{Duration: 2, Occurrences: 10},
		{Duration: 3, Occurrences: 5},
		{Duration: 5, Occurrences: 5},
	}
	p, err := EstimateP(observed)
	require.NoError(t, err)

	// 20 successes over 10*2 + 5*3 + 5*5 = 60 trials
	assert.InDelta(t, 20.0/60.0, p, 1e-12)
	assert.Greater(t, p, 0.0)
	assert.Less(t, p, 1.0)

	_, err = EstimateP(nil)
	assert.ErrorIs(t, err, ErrDegenerateModel)
}

func TestGeometricPMF(t *testing.T) {
	assert.InDelta(t, 0.25, GeometricPMF(1, 0.25), 1e-12)
	assert.InDelta(t, 0.75*0.25, GeometricPMF(2, 0.25), 1e-12)

	var total float64
	for k := 1; k < 500; k++ {
		total += GeometricPMF(k, 0.1)
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestDegreesOfFreedom(t *testing.T) {
	assert.Equal(t, 22, DegreesOfFreedom(24))
	assert.Equal(t, -1, DegreesOfFreedom(1))
}

func TestClassifyOrder(t *testing.T) {
	row := critical.Row{DF: 1, Alpha05: 3.841, Alpha01: 6.635, Alpha001: 10.828}

	assert.Equal(t, models.OutcomeNotRejected001, Classify(1.0, row))
	assert.Equal(t, models.OutcomeNotRejected001, Classify(8.0, row))
	assert.Equal(t, models.OutcomeRejected, Classify(10.828, row))
	assert.Equal(t, models.OutcomeRejected, Classify(50, row))

	// Rows whose columns are not ascending reach the later branches.
	odd := critical.Row{DF: 1, Alpha05: 9, Alpha01: 6, Alpha001: 3}
	assert.Equal(t, models.OutcomeNotRejected01, Classify(4, odd))
	assert.Equal(t, models.OutcomeNotRejected05, Classify(7, odd))
}

func TestClassifyIncrementsOneCounter(t *testing.T) {
	var counters AggregateCounters
	row := critical.Row{DF: 1, Alpha05: 3.841, Alpha01: 6.635, Alpha001: 10.828}
	counters.Record(Classify(0.5, row))

	s := counters.Summary()
	assert.Equal(t, 1, s.Testable)
	assert.Equal(t, 1, s.NotRejected001)
	assert.Zero(t, s.NotRejected01)
	assert.Zero(t, s.NotRejected05)
	assert.Zero(t, s.Rejected)
}

func TestEngine_SampleSizeGate(t *testing.T) {
	engine := New(mustTable(t, 100), DefaultMinObservations, DefaultMinSampleSize)
	var counters AggregateCounters

	profile := models.NewContactProfile(7)
	for _, d := range []int{2, 2, 2, 2, 5, 5, 5, 5, 5} {
		require.NoError(t, profile.RecordObservation(d))
	}
	profile.NormalizeProbabilities()

	result, err := engine.Test(profile, &counters)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientSample)
	assert.Equal(t, models.OutcomeSkipped, result.Outcome)
	assert.Equal(t, "insufficient_sample", result.SkipReason)
	assert.Equal(t, 9.0, result.SampleSize)
	assert.Equal(t, 2, result.ObservedBuckets)
	assert.Equal(t, models.Summary{}, counters.Summary())
}

func TestEngine_TooFewDegrees(t *testing.T) {
	engine := New(mustTable(t, 100), DefaultMinObservations, DefaultMinSampleSize)
	var counters AggregateCounters

	profile := profileFromCounts(t, 8, map[int]int{1: 300})
	result, err := engine.Test(profile, &counters)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientDegrees)
	assert.ErrorIs(t, err, ErrInsufficientSample)
	assert.Equal(t, -1, result.DegreesOfFreedom)
	assert.Equal(t, 300.0, result.SampleSize)
	assert.Equal(t, "insufficient_degrees", result.SkipReason)
	assert.Equal(t, models.Summary{}, counters.Summary())

	var subjectErr SubjectError
	require.ErrorAs(t, err, &subjectErr)
	assert.Equal(t, 8, subjectErr.SubjectID)
}

func TestEngine_EmptyProfile(t *testing.T) {
	engine := New(mustTable(t, 10), DefaultMinObservations, DefaultMinSampleSize)
	var counters AggregateCounters

	_, err := engine.Test(models.NewContactProfile(1), &counters)
	assert.ErrorIs(t, err, ErrEmptyProfile)
	assert.Zero(t, counters.Testable())
}

func TestEngine_FilterIsStrict(t *testing.T) {
	// Durations seen exactly three times never enter the observed set.
	engine := New(mustTable(t, 10), DefaultMinObservations, 0)
	profile := profileFromCounts(t, 1, map[int]int{1: 3, 2: 3, 3: 3})

	result, err := engine.Test(profile, nil)
	assert.ErrorIs(t, err, ErrInsufficientDegrees)
	assert.Zero(t, result.ObservedBuckets)
}

func TestEngine_NotRejected(t *testing.T) {
	engine := New(mustTable(t, 100), DefaultMinObservations, DefaultMinSampleSize)
	var counters AggregateCounters

	result, err := engine.Test(geometricLikeProfile(t, 11), &counters)
	require.NoError(t, err)
	require.NoError(t, result.Validate())

	assert.Equal(t, 366.0, result.SampleSize)
	assert.Equal(t, 24, result.ObservedBuckets)
	assert.Equal(t, 22, result.DegreesOfFreedom)
	assert.InDelta(t, 366.0/3262.0, result.P, 1e-12)
	assert.InDelta(t, 14.819290, result.ChiSquared, 1e-5)
	assert.Greater(t, result.PValue, 0.05)
	assert.Equal(t, models.OutcomeNotRejected001, result.Outcome)

	// Cells are keyed by trial count = duration + 1.
	assert.Equal(t, 2, result.Cells[0].Trials)
	assert.Equal(t, 40.0, result.Cells[0].Observed)
	assert.InDelta(t, 366*GeometricPMF(2, result.P), result.Cells[0].Expected, 1e-9)

	s := counters.Summary()
	assert.Equal(t, 1, s.Testable)
	assert.Equal(t, 1, s.NotRejected001)
	assert.Zero(t, s.Rejected)
}

func TestEngine_Rejected(t *testing.T) {
	engine := New(mustTable(t, 100), DefaultMinObservations, DefaultMinSampleSize)
	var counters AggregateCounters

	profile := profileFromCounts(t, 12, map[int]int{1: 150, 2: 75, 3: 40, 4: 20, 5: 10})
	result, err := engine.Test(profile, &counters)
	require.NoError(t, err)

	assert.Equal(t, 3, result.DegreesOfFreedom)
	assert.InDelta(t, 295.0/845.0, result.P, 1e-12)
	assert.InDelta(t, 130.444076, result.ChiSquared, 1e-5)
	assert.Equal(t, models.OutcomeRejected, result.Outcome)
	assert.Less(t, result.PValue, 0.001)

	s := counters.Summary()
	assert.Equal(t, 1, s.Testable)
	assert.Equal(t, 1, s.Rejected)
}

func TestEngine_DegreesBeyondTable(t *testing.T) {
	engine := New(mustTable(t, 5), DefaultMinObservations, DefaultMinSampleSize)
	var counters AggregateCounters

	result, err := engine.Test(geometricLikeProfile(t, 13), &counters)
	assert.ErrorIs(t, err, critical.ErrDegreesOutOfRange)
	assert.Equal(t, "degrees_out_of_range", result.SkipReason)
	assert.Zero(t, counters.Testable())
}

func TestAggregateCountersConcurrent(t *testing.T) {
	var counters AggregateCounters
	outcomes := []models.Outcome{
		models.OutcomeNotRejected001,
		models.OutcomeNotRejected01,
		models.OutcomeNotRejected05,
		models.OutcomeRejected,
		models.OutcomeSkipped,
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(o models.Outcome) {
			defer wg.Done()
			counters.Record(o)
		}(outcomes[i%len(outcomes)])
	}
	wg.Wait()

	s := counters.Summary()
	assert.Equal(t, 80, s.Testable)
	assert.Equal(t, 20, s.NotRejected001)
	assert.Equal(t, 20, s.NotRejected01)
	assert.Equal(t, 20, s.NotRejected05)
	assert.Equal(t, 20, s.Rejected)
}

func TestSkipReason(t *testing.T) {
	assert.Equal(t, "", SkipReason(nil))
	assert.Equal(t, "degenerate_model", SkipReason(SubjectError{Err: ErrDegenerateModel}))
	assert.Equal(t, "error", SkipReason(assert.AnError))
}
