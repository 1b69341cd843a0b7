package stats

import (
	"neurosig/domain/core"
	"neurosig/domain/session"
)

// BaselineFeature holds the per-feature baseline summary. Std carries a small
// floor so downstream z-scores and effect sizes never divide by zero.
type BaselineFeature struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	Q25    float64 `json:"q25"`
	Q75    float64 `json:"q75"`
	N      int     `json:"n"`
}

// BaselineStats is the immutable output of one baseline computation. A
// recomputation fully replaces the previous value; callers must not mutate.
type BaselineStats struct {
	Features map[string]BaselineFeature `json:"features"`
	// BinEdges holds baseline-derived quantile edges per feature so
	// discretization stays stable across repeated task analyses.
	BinEdges   map[string][]float64 `json:"bin_edges"`
	Source     session.PhaseKind    `json:"source"`
	PhaseID    core.PhaseID         `json:"phase_id"`
	ComputedAt core.Timestamp       `json:"computed_at"`
}

// Has reports whether a feature survived baseline estimation.
func (b *BaselineStats) Has(feature string) bool {
	if b == nil {
		return false
	}
	_, ok := b.Features[feature]
	return ok
}

// PassRule names which branch of the accept rule fired.
type PassRule string

const (
	PassRuleP       PassRule = "p"
	PassRuleEffect  PassRule = "d"
	PassRulePercent PassRule = "pct"
	PassRuleNone    PassRule = ""
)

// FeatureResult is the per-feature outcome of one task-vs-baseline test.
// Insufficient-data cases carry a Reason and Tested=false rather than NaN
// statistics; degenerate-variance cases stay Tested=true with neutral
// p-values so they still enter the combined statistics.
type FeatureResult struct {
	Feature  string `json:"feature"`
	TaskName string `json:"task_name"`

	TaskMean float64 `json:"task_mean"`
	TaskStd  float64 `json:"task_std"`
	BaseMean float64 `json:"base_mean"`
	BaseStd  float64 `json:"base_std"`

	Delta         float64 `json:"delta"`
	ZScore        float64 `json:"z_score"`
	EffectSize    float64 `json:"effect_size"` // Cohen's d on block-level variances
	PercentChange float64 `json:"percent_change"`

	PTwoSided float64 `json:"p_two_sided"`
	POneSided float64 `json:"p_one_sided"`
	QValue    float64 `json:"q_value,omitempty"`

	// ExpectedDirection is the directional prior: -1 expected decrease,
	// +1 expected increase, 0 no prior.
	ExpectedDirection int `json:"expected_direction"`

	Bin int `json:"bin"`

	Significant bool     `json:"significant_change"`
	Rule        PassRule `json:"pass_rule,omitempty"`

	Tested bool   `json:"tested"`
	Approx bool   `json:"approx,omitempty"` // p from a documented approximation
	Reason string `json:"reason,omitempty"`

	NTaskBlocks int `json:"n_task_blocks"`
	NBaseBlocks int `json:"n_base_blocks"`
}

// TaskSummary aggregates one task's combined decision.
type TaskSummary struct {
	Task  string      `json:"task"`
	RunID core.RunID  `json:"run_id"`
	Seed  int64       `json:"seed"`

	// Fisher combination over all tested features.
	FisherStat   float64 `json:"fisher_stat"`
	FisherNaiveP float64 `json:"fisher_naive_p"`

	// Kost-McDermott dependence correction.
	Correction      string  `json:"dependence_correction"`
	KMCorrectedP    float64 `json:"km_corrected_p"`
	KMScale         float64 `json:"km_scale_c"`
	KMDf            float64 `json:"km_df"`
	MeanOffDiagCorr float64 `json:"mean_offdiag_corr"`

	// SumP permutation test.
	SumPObserved    float64 `json:"sump_observed"`
	PermP           float64 `json:"perm_p"`
	PermutationUsed bool    `json:"permutation_used"`
	PermApprox      bool    `json:"perm_approx"` // Irwin-Hall normal fallback
	PermCompleted   int     `json:"perm_completed"`
	Partial         bool    `json:"partial"`

	// Effective sample size: blocks per arm after equalization.
	ESSTask int `json:"ess_task"`
	ESSBase int `json:"ess_base"`

	NTested      int `json:"n_tested"`
	NSignificant int `json:"n_significant"`

	RankScore        float64 `json:"rank_score"`
	CosineToBaseline float64 `json:"cosine_to_baseline"`

	// Alignment grades how observed deltas agree with directional priors:
	// aligned | mixed | contrary | no_priors.
	Alignment      string  `json:"alignment"`
	AlignmentScore float64 `json:"alignment_score"`
}

// TaskAnalysis bundles a task's summary with its per-feature results.
type TaskAnalysis struct {
	Summary  TaskSummary              `json:"summary"`
	Features map[string]FeatureResult `json:"features"`
}

// TaskRank is one entry of a descriptive task ordering.
type TaskRank struct {
	Task  string  `json:"task"`
	Score float64 `json:"score"`
}

// OmnibusFeature is the cross-task outcome for a single feature.
type OmnibusFeature struct {
	Feature string `json:"feature"`

	Stat        float64 `json:"omnibus_stat,omitempty"`
	P           float64 `json:"omnibus_p,omitempty"`
	Q           float64 `json:"omnibus_q,omitempty"`
	Significant bool    `json:"significant"`

	Tasks       []string    `json:"tasks"`
	PairwiseQ   [][]float64 `json:"pairwise_q,omitempty"`
	PairwiseSig [][]bool    `json:"pairwise_sig,omitempty"`

	// RankingByMedian orders tasks by median block-level effect. Always
	// present; it is the only output in ranking-only mode.
	RankingByMedian []TaskRank `json:"ranking_by_median"`

	Reason string `json:"reason,omitempty"`
}

// CrossTaskResult is the across-task omnibus outcome. When fewer than
// MinSessions matched rows exist, RankingOnly is set and no significance is
// claimed for any feature.
type CrossTaskResult struct {
	RankingOnly bool                       `json:"ranking_only"`
	MinSessions int                        `json:"min_sessions"`
	MatchedRows int                        `json:"matched_rows"`
	Method      string                     `json:"method"` // friedman | rm_anova
	Features    map[string]*OmnibusFeature `json:"features"`
}

// CombinedSummary aggregates the combined p-values of all analyzed tasks.
type CombinedSummary struct {
	FisherStat float64    `json:"fisher_stat"`
	FisherP    float64    `json:"fisher_p"`
	NTasks     int        `json:"n_tasks"`
	Ranking    []TaskRank `json:"ranking"`
}

// AllTasksResult is the full multi-task analysis output.
type AllTasksResult struct {
	SessionID  core.SessionID           `json:"session_id"`
	PerTask    map[string]*TaskAnalysis `json:"per_task"`
	Combined   *CombinedSummary         `json:"combined,omitempty"`
	AcrossTask *CrossTaskResult         `json:"across_task,omitempty"`
	Partial    bool                     `json:"partial"`
}

// CompactFeature is the integer-only export cell for storage-constrained
// consumers: discretization bin plus a 0/1 significance flag.
type CompactFeature struct {
	Bin int `json:"bin"`
	Sig int `json:"sig"`
}

// ExportPayload is the serializable export view of one task analysis.
// Exactly one of Full or Compact is populated.
type ExportPayload struct {
	Task    string                    `json:"task"`
	RunID   core.RunID                `json:"run_id"`
	Seed    int64                     `json:"seed"`
	Full    *TaskAnalysis             `json:"full,omitempty"`
	Compact map[string]CompactFeature `json:"compact,omitempty"`
}
