package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurosig/adapters/rng"
	"neurosig/domain/session"
	"neurosig/internal/engine"
	"neurosig/internal/errors"
)

func seedCfg(nPerm int) engine.Config {
	cfg := engine.DefaultConfig()
	seed := int64(42)
	cfg.Seed = &seed
	cfg.NPerm = nPerm
	return cfg
}

func recordTaskSession(rec *session.Recorder) {
	record := func(kind session.PhaseKind, task string, blockVals []float64) {
		rec.StartPhase(kind, task)
		for b, v := range blockVals {
			for w := 0; w < 4; w++ {
				rec.AddFeatureWindow(kind, float64(b*4+w)*2.0, map[string]float64{"beta_power": v})
			}
		}
		rec.StopPhase()
	}
	record(session.PhaseEyesClosed, "", []float64{1.0, 1.1, 1.0, 1.1, 1.0, 1.1})
	record(session.PhaseTask, "mental_arithmetic", []float64{5.0, 5.1, 5.0, 5.1, 5.0, 5.1})
}

func newService(rec *session.Recorder, nPerm int) *AnalysisService {
	eng := engine.New(seedCfg(nPerm), rec, rng.New(), nil, nil)
	return NewAnalysisService(eng, nil, nil)
}

func TestAnalyzeTask_Synchronous(t *testing.T) {
	rec := session.NewRecorder()
	recordTaskSession(rec)
	s := newService(rec, 200)

	analysis, err := s.AnalyzeTask(context.Background(), "mental_arithmetic")
	require.NoError(t, err)
	require.NotNil(t, analysis)
	assert.Equal(t, 1, analysis.Summary.NSignificant)
	assert.False(t, analysis.Summary.Partial)
}

func TestStartTaskAnalysis_FailsWithoutBaseline(t *testing.T) {
	s := newService(session.NewRecorder(), 200)

	job := s.StartTaskAnalysis("mental_arithmetic")
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Job did not finish")
	}

	snap := job.Snapshot()
	assert.Equal(t, JobFailed, snap.Status)
	assert.Equal(t, errors.CodeNoBaseline, snap.ErrorCode)
	assert.Nil(t, snap.Result)

	// The job stays queryable by ID.
	require.NotNil(t, s.Job(job.ID))
	assert.Nil(t, s.Job("no-such-job"))
}

func TestStartTaskAnalysis_Succeeds(t *testing.T) {
	rec := session.NewRecorder()
	recordTaskSession(rec)
	s := newService(rec, 200)

	job := s.StartTaskAnalysis("mental_arithmetic")
	select {
	case <-job.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("Job did not finish")
	}

	snap := job.Snapshot()
	assert.Equal(t, JobDone, snap.Status)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "mental_arithmetic", snap.Result.Summary.Task)
}

func TestJob_CancelMarksCancelled(t *testing.T) {
	rec := session.NewRecorder()
	recordTaskSession(rec)
	s := newService(rec, 200000)

	job := s.StartTaskAnalysis("mental_arithmetic")
	job.Cancel()
	select {
	case <-job.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("Cancelled job did not finish")
	}

	// Cancellation is cooperative and never an error; whatever partial
	// results exist are kept.
	snap := job.Snapshot()
	assert.Equal(t, JobCancelled, snap.Status)
	assert.Empty(t, snap.Error)
	assert.NotNil(t, snap.Result)
}

func TestAnalyzeAllTasks_Synchronous(t *testing.T) {
	rec := session.NewRecorder()
	recordTaskSession(rec)
	s := newService(rec, 200)

	result, err := s.AnalyzeAllTasks(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.PerTask, 1)
	assert.Equal(t, s.SessionID(), result.SessionID)
}
