package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"neurosig/domain/core"
	"neurosig/domain/stats"
	"neurosig/internal/errors"
	"neurosig/ports"
)

// ResultRepositoryImpl implements ports.ResultRepository for PostgreSQL.
// Summaries are stored as columns for querying; per-feature results travel
// as a JSONB document because the feature set varies per headset montage.
type ResultRepositoryImpl struct {
	db *sqlx.DB
}

// NewResultRepository creates a new PostgreSQL result repository.
func NewResultRepository(db *sqlx.DB) ports.ResultRepository {
	return &ResultRepositoryImpl{db: db}
}

// Schema is the DDL the repository expects. Applied by EnsureSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS task_analyses (
	id            BIGSERIAL PRIMARY KEY,
	session_id    TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	task          TEXT NOT NULL,
	seed          BIGINT NOT NULL,
	fisher_stat   DOUBLE PRECISION NOT NULL,
	fisher_p      DOUBLE PRECISION NOT NULL,
	km_p          DOUBLE PRECISION NOT NULL,
	perm_p        DOUBLE PRECISION NOT NULL,
	partial       BOOLEAN NOT NULL DEFAULT FALSE,
	n_tested      INTEGER NOT NULL,
	n_significant INTEGER NOT NULL,
	rank_score    DOUBLE PRECISION NOT NULL,
	features      JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_task_analyses_session_task
	ON task_analyses (session_id, task, created_at DESC);
`

// EnsureSchema creates the repository tables when missing.
func (r *ResultRepositoryImpl) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return errors.Wrap(err, "failed to apply result schema")
	}
	return nil
}

// SaveTaskAnalysis stores one task's summary and feature results.
func (r *ResultRepositoryImpl) SaveTaskAnalysis(ctx context.Context, sessionID core.SessionID, analysis *stats.TaskAnalysis) error {
	if analysis == nil {
		return errors.InvalidInput("nil task analysis")
	}

	features, err := json.Marshal(analysis.Features)
	if err != nil {
		return errors.Wrap(err, "failed to encode feature results")
	}

	s := analysis.Summary
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO task_analyses
			(session_id, run_id, task, seed, fisher_stat, fisher_p, km_p, perm_p,
			 partial, n_tested, n_significant, rank_score, features, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, sessionID.String(), s.RunID.String(), s.Task, s.Seed, s.FisherStat, s.FisherNaiveP,
		s.KMCorrectedP, s.PermP, s.Partial, s.NTested, s.NSignificant, s.RankScore,
		features, time.Now())
	if err != nil {
		return errors.Wrap(err, "failed to insert task analysis")
	}
	return nil
}

// SaveAllTasks stores every per-task analysis of a multi-task run.
func (r *ResultRepositoryImpl) SaveAllTasks(ctx context.Context, result *stats.AllTasksResult) error {
	if result == nil {
		return errors.InvalidInput("nil all-tasks result")
	}
	for _, analysis := range result.PerTask {
		if err := r.SaveTaskAnalysis(ctx, result.SessionID, analysis); err != nil {
			return err
		}
	}
	return nil
}

type taskAnalysisRow struct {
	RunID        string          `db:"run_id"`
	Task         string          `db:"task"`
	Seed         int64           `db:"seed"`
	FisherStat   float64         `db:"fisher_stat"`
	FisherP      float64         `db:"fisher_p"`
	KMP          float64         `db:"km_p"`
	PermP        float64         `db:"perm_p"`
	Partial      bool            `db:"partial"`
	NTested      int             `db:"n_tested"`
	NSignificant int             `db:"n_significant"`
	RankScore    float64         `db:"rank_score"`
	Features     json.RawMessage `db:"features"`
}

// LatestTaskAnalysis returns the most recent stored analysis for a task, or
// nil when none exists.
func (r *ResultRepositoryImpl) LatestTaskAnalysis(ctx context.Context, sessionID core.SessionID, task string) (*stats.TaskAnalysis, error) {
	var row taskAnalysisRow
	err := r.db.GetContext(ctx, &row, `
		SELECT run_id, task, seed, fisher_stat, fisher_p, km_p, perm_p,
		       partial, n_tested, n_significant, rank_score, features
		FROM task_analyses
		WHERE session_id = $1 AND task = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, sessionID.String(), task)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load task analysis")
	}

	analysis := &stats.TaskAnalysis{
		Summary: stats.TaskSummary{
			Task:         row.Task,
			RunID:        core.RunID(row.RunID),
			Seed:         row.Seed,
			FisherStat:   row.FisherStat,
			FisherNaiveP: row.FisherP,
			KMCorrectedP: row.KMP,
			PermP:        row.PermP,
			Partial:      row.Partial,
			NTested:      row.NTested,
			NSignificant: row.NSignificant,
			RankScore:    row.RankScore,
		},
		Features: make(map[string]stats.FeatureResult),
	}
	if err := json.Unmarshal(row.Features, &analysis.Features); err != nil {
		return nil, errors.Wrap(err, "failed to decode feature results")
	}
	return analysis, nil
}
