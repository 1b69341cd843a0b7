package app

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"neurosig/domain/core"
	"neurosig/domain/stats"
	"neurosig/internal"
	"neurosig/internal/engine"
	"neurosig/internal/errors"
	"neurosig/internal/run"
	"neurosig/ports"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

// Job tracks one background analysis run. Progress updates arrive over a
// bounded channel; stale updates are dropped rather than blocking the engine.
type Job struct {
	ID   core.RunID `json:"id"`
	Task string     `json:"task,omitempty"` // empty for all-tasks runs

	mu       sync.Mutex
	status   JobStatus
	progress run.Progress
	result   *stats.TaskAnalysis
	allTasks *stats.AllTasksResult
	err      error

	token *run.CancelToken
	done  chan struct{}
}

// Cancel requests cooperative cancellation. The job finishes with whatever
// partial results the engine produced.
func (j *Job) Cancel() {
	j.token.Cancel()
}

// Done returns a channel closed when the job finishes.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Snapshot returns the job's current state for status reporting.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	snap := JobSnapshot{
		ID:       j.ID,
		Task:     j.Task,
		Status:   j.status,
		Progress: j.progress,
		Result:   j.result,
		AllTasks: j.allTasks,
	}
	if j.err != nil {
		snap.Error = j.err.Error()
		snap.ErrorCode = errors.GetCode(j.err)
	}
	return snap
}

// JobSnapshot is the serializable view of a job.
type JobSnapshot struct {
	ID        core.RunID            `json:"id"`
	Task      string                `json:"task,omitempty"`
	Status    JobStatus             `json:"status"`
	Progress  run.Progress          `json:"progress"`
	Result    *stats.TaskAnalysis   `json:"result,omitempty"`
	AllTasks  *stats.AllTasksResult `json:"all_tasks,omitempty"`
	Error     string                `json:"error,omitempty"`
	ErrorCode string                `json:"error_code,omitempty"`
}

// AnalysisService orchestrates analysis runs over the engine and persists
// results when a repository is configured.
type AnalysisService struct {
	engine    *engine.Engine
	repo      ports.ResultRepository // optional
	log       *internal.Logger
	sessionID core.SessionID

	mu   sync.Mutex
	jobs map[core.RunID]*Job
}

// NewAnalysisService creates an analysis service. repo may be nil when no
// database is configured; logger may be nil (default logger).
func NewAnalysisService(eng *engine.Engine, repo ports.ResultRepository, logger *internal.Logger) *AnalysisService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &AnalysisService{
		engine:    eng,
		repo:      repo,
		log:       logger,
		sessionID: core.SessionID(core.NewID()),
		jobs:      make(map[core.RunID]*Job),
	}
}

// SessionID returns the identifier of the recording session this service owns.
func (s *AnalysisService) SessionID() core.SessionID {
	return s.sessionID
}

// Engine exposes the underlying engine for baseline and export operations.
func (s *AnalysisService) Engine() *engine.Engine {
	return s.engine
}

// LatestStoredAnalysis loads the most recently persisted analysis for a task
// in this session. It returns nil without error when nothing has been stored.
func (s *AnalysisService) LatestStoredAnalysis(ctx context.Context, task string) (*stats.TaskAnalysis, error) {
	if s.repo == nil {
		return nil, errors.InvalidInput("no result store configured")
	}
	return s.repo.LatestTaskAnalysis(ctx, s.sessionID, task)
}

// Job returns a job by ID, or nil when unknown.
func (s *AnalysisService) Job(id core.RunID) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// AnalyzeTask runs a single-task analysis synchronously. Cancelling ctx maps
// to cooperative cancellation, so a cancelled call still returns the partial
// analysis the engine produced.
func (s *AnalysisService) AnalyzeTask(ctx context.Context, task string) (*stats.TaskAnalysis, error) {
	token := run.NewCancelToken()
	stop := bridgeContext(ctx, token)
	defer stop()

	analysis, err := s.engine.AnalyzeTaskData(task, token, nil)
	if err != nil {
		return nil, err
	}
	s.persistTask(ctx, analysis)
	return analysis, nil
}

// AnalyzeAllTasks runs the full multi-task analysis synchronously.
func (s *AnalysisService) AnalyzeAllTasks(ctx context.Context) (*stats.AllTasksResult, error) {
	token := run.NewCancelToken()
	stop := bridgeContext(ctx, token)
	defer stop()

	result, err := s.engine.AnalyzeAllTasksData(token, nil)
	if err != nil {
		return nil, err
	}
	result.SessionID = s.sessionID
	s.persistAll(ctx, result)
	return result, nil
}

// StartTaskAnalysis launches a background single-task analysis and returns
// its job handle immediately.
func (s *AnalysisService) StartTaskAnalysis(task string) *Job {
	job := s.newJob(task)
	go s.runJob(job, func(progress run.ProgressFunc) error {
		analysis, err := s.engine.AnalyzeTaskData(task, job.token, progress)
		if err != nil {
			return err
		}
		job.mu.Lock()
		job.result = analysis
		job.mu.Unlock()
		s.persistTask(context.Background(), analysis)
		return nil
	})
	return job
}

// StartAllTasksAnalysis launches a background multi-task analysis.
func (s *AnalysisService) StartAllTasksAnalysis() *Job {
	job := s.newJob("")
	go s.runJob(job, func(progress run.ProgressFunc) error {
		result, err := s.engine.AnalyzeAllTasksData(job.token, progress)
		if err != nil {
			return err
		}
		result.SessionID = s.sessionID
		job.mu.Lock()
		job.allTasks = result
		job.mu.Unlock()
		s.persistAll(context.Background(), result)
		return nil
	})
	return job
}

func (s *AnalysisService) newJob(task string) *Job {
	job := &Job{
		ID:     core.RunID(core.NewID()),
		Task:   task,
		status: JobRunning,
		token:  run.NewCancelToken(),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job
}

// runJob executes fn with a progress drain goroutine. The progress channel
// is bounded and lossy so the engine never blocks on a slow consumer.
func (s *AnalysisService) runJob(job *Job, fn func(run.ProgressFunc) error) {
	defer close(job.done)

	updates := make(chan run.Progress, 64)
	progress := func(p run.Progress) {
		select {
		case updates <- p:
		default:
		}
	}

	g := new(errgroup.Group)
	g.Go(func() error {
		defer close(updates)
		return fn(progress)
	})
	g.Go(func() error {
		for p := range updates {
			job.mu.Lock()
			job.progress = p
			job.mu.Unlock()
		}
		return nil
	})

	err := g.Wait()
	job.mu.Lock()
	defer job.mu.Unlock()
	switch {
	case err != nil:
		job.status = JobFailed
		job.err = err
		s.log.Error("analysis job %s failed: %v", job.ID, err)
	case job.token.Cancelled():
		job.status = JobCancelled
		s.log.Info("analysis job %s cancelled, partial results kept", job.ID)
	default:
		job.status = JobDone
	}
}

func (s *AnalysisService) persistTask(ctx context.Context, analysis *stats.TaskAnalysis) {
	if s.repo == nil || analysis == nil {
		return
	}
	if err := s.repo.SaveTaskAnalysis(ctx, s.sessionID, analysis); err != nil {
		s.log.Warn("failed to persist task analysis: %v", err)
	}
}

func (s *AnalysisService) persistAll(ctx context.Context, result *stats.AllTasksResult) {
	if s.repo == nil || result == nil {
		return
	}
	if err := s.repo.SaveAllTasks(ctx, result); err != nil {
		s.log.Warn("failed to persist all-tasks result: %v", err)
	}
}

// bridgeContext propagates context cancellation onto a cancel token. The
// returned stop function releases the watcher goroutine.
func bridgeContext(ctx context.Context, token *run.CancelToken) func() {
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			token.Cancel()
		case <-stopped:
		}
	}()
	return func() { close(stopped) }
}
