package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/contactfit/internal/contacts"
	"github.com/rewired-gh/contactfit/internal/critical"
	"github.com/rewired-gh/contactfit/internal/fit"
	"github.com/rewired-gh/contactfit/internal/models"
)

type memoryStore struct {
	runs []*models.Run
	err  error
}

func (s *memoryStore) SaveRun(_ context.Context, run *models.Run) error {
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, run)
	return nil
}

type recordingObserver struct {
	mu      sync.Mutex
	results []models.FitResult
	invalid int
}

func (o *recordingObserver) ObserveResult(result models.FitResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func (o *recordingObserver) ObserveInvalidRecords(n int) {
	o.invalid += n
}

// contactLog renders counts per duration as one contact line each.
func contactLog(subject int, counts map[int]int) string {
	var b strings.Builder
	for d, n := range counts {
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "%d %d %d\n", subject, subject+1000, d)
		}
	}
	return b.String()
}

func fixtureDataset(t *testing.T) *contacts.Dataset {
	t.Helper()

	decay := []int{40, 36, 32, 29, 26, 24, 21, 19, 17, 15, 14, 13, 11, 10, 9, 8, 7, 7, 6, 5, 5, 4, 4, 4, 3, 3, 3, 2, 2, 2}
	notRejected := make(map[int]int)
	for i, n := range decay {
		notRejected[i+1] = n
	}

	var log strings.Builder
	log.WriteString(contactLog(3, notRejected))
	log.WriteString(contactLog(1, map[int]int{1: 150, 2: 75, 3: 40, 4: 20, 5: 10}))
	log.WriteString(contactLog(2, map[int]int{2: 4, 5: 5}))
	log.WriteString(contactLog(4, map[int]int{1: 300}))
	log.WriteString("garbage line\n4 9 0\n")

	ds, rejected, err := contacts.Read(strings.NewReader(log.String()))
	require.NoError(t, err)
	require.Len(t, rejected, 2)
	return ds
}

func newEngine(t *testing.T) *fit.Engine {
	t.Helper()
	table, err := critical.Generate(critical.DefaultMaxDF)
	require.NoError(t, err)
	return fit.New(table, fit.DefaultMinObservations, fit.DefaultMinSampleSize)
}

func TestRun(t *testing.T) {
	store := &memoryStore{}
	observer := &recordingObserver{}
	runner := &Runner{Engine: newEngine(t), Workers: 3, Store: store, Metrics: observer}

	run, err := runner.Run(context.Background(), fixtureDataset(t), "contacts.txt")
	require.NoError(t, err)
	require.NoError(t, run.Validate())

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "contacts.txt", run.InputPath)
	assert.Equal(t, models.Summary{
		Subjects:       4,
		Skipped:        2,
		InvalidRecords: 2,
		Testable:       2,
		NotRejected001: 1,
		Rejected:       1,
	}, run.Summary)

	require.Len(t, run.Results, 4)
	for i, result := range run.Results {
		assert.Equal(t, i+1, result.SubjectID)
		assert.NotEmpty(t, result.Buckets)
	}
	assert.Equal(t, models.OutcomeRejected, run.Results[0].Outcome)
	assert.Equal(t, "insufficient_sample", run.Results[1].SkipReason)
	assert.Equal(t, models.OutcomeNotRejected001, run.Results[2].Outcome)
	assert.Equal(t, "insufficient_degrees", run.Results[3].SkipReason)

	// probabilities were computed before the test ran
	var total float64
	for _, b := range run.Results[2].Buckets {
		assert.True(t, b.Normalized)
		total += b.Probability
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	require.Len(t, store.runs, 1)
	assert.Equal(t, run.ID, store.runs[0].ID)
	assert.Len(t, observer.results, 4)
	assert.Equal(t, 2, observer.invalid)
}

func TestRunWorkerCountsAgree(t *testing.T) {
	engine := newEngine(t)

	single, err := (&Runner{Engine: engine, Workers: 1}).Run(context.Background(), fixtureDataset(t), "")
	require.NoError(t, err)
	parallel, err := (&Runner{Engine: engine, Workers: 8}).Run(context.Background(), fixtureDataset(t), "")
	require.NoError(t, err)

	assert.Equal(t, single.Summary, parallel.Summary)
	for i := range single.Results {
		assert.Equal(t, single.Results[i].Outcome, parallel.Results[i].Outcome)
		assert.Equal(t, single.Results[i].ChiSquared, parallel.Results[i].ChiSquared)
	}
}

func TestRunStoreFailure(t *testing.T) {
	storeErr := errors.New("disk full")
	runner := &Runner{Engine: newEngine(t), Store: &memoryStore{err: storeErr}}

	run, err := runner.Run(context.Background(), fixtureDataset(t), "")
	assert.ErrorIs(t, err, storeErr)
	require.NotNil(t, run)
	assert.Equal(t, 4, run.Summary.Subjects)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &Runner{Engine: newEngine(t), Workers: 2}
	run, err := runner.Run(ctx, fixtureDataset(t), "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, run)
}

func TestRunEmptyDataset(t *testing.T) {
	runner := &Runner{Engine: newEngine(t)}
	run, err := runner.Run(context.Background(), contacts.NewDataset(), "")
	require.NoError(t, err)
	assert.Equal(t, models.Summary{}, run.Summary)
	assert.Empty(t, run.Results)
}

func TestRunWithoutEngine(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background(), contacts.NewDataset(), "")
	assert.Error(t, err)
}
