// Package engine implements the statistical significance core: baseline
// estimation, block-level per-feature testing, dependence-aware p-value
// combination, SumP permutation, FDR control and the cross-task omnibus.
package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"neurosig/domain/core"
	"neurosig/domain/session"
	dstats "neurosig/domain/stats"
	"neurosig/internal"
	"neurosig/internal/baseline"
	"neurosig/internal/blocks"
	"neurosig/internal/dist"
	apperrors "neurosig/internal/errors"
	"neurosig/internal/fdr"
	"neurosig/internal/omnibus"
	"neurosig/internal/run"
	"neurosig/ports"
)

// Engine is the significance engine. Each analysis call owns its inputs;
// the only shared state is the baseline snapshot and the memoization caches,
// which are invalidated together on baseline recomputation.
type Engine struct {
	cfg  Config
	log  *internal.Logger
	dist dist.Provider
	agg  *blocks.Aggregator
	rec  *session.Recorder
	keep ports.ArtifactPredicate
	rng  ports.RNGPort

	provider ports.BaselineProvider // optional override

	baseline  *dstats.BaselineStats
	corrCache map[string][][]float64
	seed      int64
}

// New creates an engine over a session recorder. keep may be nil (every
// baseline window counts); logger may be nil (default logger).
func New(cfg Config, rec *session.Recorder, rngPort ports.RNGPort, keep ports.ArtifactPredicate, logger *internal.Logger) *Engine {
	cfg = cfg.Normalized()
	if logger == nil {
		logger = internal.DefaultLogger
	}

	seed := time.Now().UnixNano()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	return &Engine{
		cfg:       cfg,
		log:       logger,
		dist:      dist.Select(cfg.ExactDistributions),
		agg:       blocks.NewAggregator(cfg.WindowSeconds),
		rec:       rec,
		keep:      keep,
		rng:       rngPort,
		corrCache: make(map[string][][]float64),
		seed:      seed,
	}
}

// SetBaselineProvider substitutes an external baseline source for the
// default recorder-fed estimation.
func (e *Engine) SetBaselineProvider(p ports.BaselineProvider) {
	e.provider = p
	e.baseline = nil
	e.invalidate()
}

// Seed returns the effective RNG seed, recorded in every output for
// reproduction.
func (e *Engine) Seed() int64 { return e.seed }

// Config returns the normalized configuration in use.
func (e *Engine) Config() Config { return e.cfg }

// ComputeBaseline (re)estimates baseline statistics from the recorder's
// baseline phase (eyes_closed, failing over to eyes_open) and invalidates
// the block and correlation caches.
func (e *Engine) ComputeBaseline() (*dstats.BaselineStats, error) {
	phase := e.rec.BaselinePhase()
	if phase == nil {
		return nil, apperrors.NoBaseline("no baseline phase recorded")
	}

	bs := baseline.Compute(phase, baseline.Predicate(e.keep), e.cfg.DiscretizationBins)
	if len(bs.Features) == 0 {
		return nil, apperrors.NoBaseline("no baseline windows survived artifact rejection")
	}

	e.invalidate()
	e.baseline = bs
	e.log.Debug("baseline computed from %s: %d features", bs.Source, len(bs.Features))
	return bs, nil
}

// Baseline returns the current baseline statistics, estimating them on
// first use. Implements ports.BaselineProvider.
func (e *Engine) Baseline() (*dstats.BaselineStats, error) {
	if e.provider != nil {
		return e.provider.Baseline()
	}
	if e.baseline != nil {
		return e.baseline, nil
	}
	return e.ComputeBaseline()
}

func (e *Engine) invalidate() {
	e.agg.Invalidate()
	e.corrCache = make(map[string][][]float64)
}

// AnalyzeTaskData analyzes one task phase against baseline. Cancellation
// during the per-feature loop yields whatever results were computed, with
// the summary's partial flag set. A nil result is returned only for missing
// inputs; internal per-feature failures degrade that feature to NA.
func (e *Engine) AnalyzeTaskData(task string, token *run.CancelToken, progress run.ProgressFunc) (analysis *dstats.TaskAnalysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			analysis = nil
			err = apperrors.New(apperrors.CodeInternalError, fmt.Sprintf("analysis of task %q failed: %v", task, r))
		}
	}()

	base, err := e.Baseline()
	if err != nil {
		return nil, err
	}

	taskPhase := e.rec.TaskPhase(task)
	if taskPhase == nil {
		return nil, apperrors.NoSuchTask(task)
	}
	basePhase := e.rec.BaselinePhase()
	if basePhase == nil {
		return nil, apperrors.NoBaseline("no baseline phase recorded")
	}

	taskBlocks := e.agg.Build(taskPhase, e.cfg.BlockSeconds)
	baseBlocks := e.agg.Build(basePhase, e.cfg.BlockSeconds)

	eqRng := e.rng.SeededStream("equalize:"+task, e.seed)
	taskEq, baseEq := blocks.Equalize(taskBlocks, baseBlocks, eqRng)

	analysis = &dstats.TaskAnalysis{
		Summary: dstats.TaskSummary{
			Task:       task,
			RunID:      core.RunID(core.NewID()),
			Seed:       e.seed,
			Correction: string(e.cfg.Dependence),
			ESSTask:    len(taskEq),
			ESSBase:    len(baseEq),
		},
		Features: make(map[string]dstats.FeatureResult),
	}

	partial := e.testFeatures(task, analysis, taskEq, baseEq, base, token)
	analysis.Summary.Partial = partial

	if e.cfg.Mode == ModeFeatureSelection {
		e.applyFDR(analysis)
	}

	e.combineTask(task, analysis, taskEq, baseEq, token, progress)
	e.summarize(analysis, base)
	return analysis, nil
}

// testFeatures runs the per-feature loop; returns true when cancelled.
func (e *Engine) testFeatures(task string, analysis *dstats.TaskAnalysis, taskEq, baseEq []blocks.Block, base *dstats.BaselineStats, token *run.CancelToken) bool {
	feats := blocks.Features(taskEq)
	for _, f := range feats {
		if token.Cancelled() {
			return true
		}
		analysis.Features[f] = e.testFeatureSafe(task, f, taskEq, baseEq, base)
	}
	return false
}

// testFeatureSafe degrades a panicking feature computation to NA instead of
// failing the whole analysis.
func (e *Engine) testFeatureSafe(task, f string, taskEq, baseEq []blocks.Block, base *dstats.BaselineStats) (res dstats.FeatureResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("feature %s degraded to NA: %v", f, r)
			res = dstats.FeatureResult{
				Feature:   f,
				TaskName:  task,
				PTwoSided: 1,
				POneSided: 1,
				Reason:    fmt.Sprintf("NA (internal: %v)", r),
			}
		}
	}()

	bf, ok := base.Features[f]
	if !ok {
		return dstats.FeatureResult{
			Feature:   f,
			TaskName:  task,
			PTwoSided: 1,
			POneSided: 1,
			Reason:    "NA (no baseline)",
		}
	}

	taskVals := blocks.Column(taskEq, f)
	baseVals := blocks.Column(baseEq, f)
	return e.testFeature(task, f, taskVals, baseVals, bf, base.BinEdges[f])
}

// applyFDR BH-corrects the decision p-values across the task's tested
// features (feature-selection mode only).
func (e *Engine) applyFDR(analysis *dstats.TaskAnalysis) {
	var names []string
	var ps []float64
	for name, res := range analysis.Features {
		if res.Tested {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		ps = append(ps, analysis.Features[name].POneSided)
	}

	qs := fdr.QValues(ps)
	for i, name := range names {
		res := analysis.Features[name]
		res.QValue = qs[i]
		analysis.Features[name] = res
	}
}

// combineTask runs Fisher, the Kost-McDermott correction and the SumP
// permutation over the task's tested features.
func (e *Engine) combineTask(task string, analysis *dstats.TaskAnalysis, taskEq, baseEq []blocks.Block, token *run.CancelToken, progress run.ProgressFunc) {
	tested := testedFeatureNames(analysis)
	if len(tested) == 0 {
		analysis.Summary.FisherNaiveP = 1
		analysis.Summary.KMCorrectedP = 1
		analysis.Summary.PermP = 1
		return
	}

	ps := make([]float64, 0, len(tested))
	for _, name := range tested {
		ps = append(ps, analysis.Features[name].POneSided)
	}
	stat, naiveP := e.fisher(ps)
	analysis.Summary.FisherStat = stat
	analysis.Summary.FisherNaiveP = naiveP
	analysis.Summary.KMCorrectedP = naiveP

	// Rectangular columns over both arms for the correlation matrix and the
	// shared permutation draws; ragged features stay individually tested
	// but sit out the joint machinery.
	rectNames, cols := e.rectangularColumns(tested, taskEq, baseEq)

	if e.cfg.Dependence == CorrectionKostMcDermott && len(rectNames) > 0 {
		guardOK := !e.cfg.CorrelationGuard || len(taskEq)+len(baseEq) >= 2*minBlocksPerArm
		if guardOK {
			corr := e.spearmanCached(task, rectNames, cols)
			km := e.kostMcDermott(stat, corr)
			if km.applied {
				analysis.Summary.KMCorrectedP = km.p
				analysis.Summary.KMScale = km.scale
				analysis.Summary.KMDf = km.df
				analysis.Summary.MeanOffDiagCorr = km.meanCorr
			}
		}
	}

	permRng := e.rng.SeededStream("permutation:"+task, e.seed)
	outcome := e.sumPPermutation(cols, len(taskEq), permRng, token, progress)
	analysis.Summary.SumPObserved = outcome.observed
	analysis.Summary.PermP = outcome.p
	analysis.Summary.PermutationUsed = outcome.used && !outcome.approx
	analysis.Summary.PermApprox = outcome.approx
	analysis.Summary.PermCompleted = outcome.completed
	if outcome.partial {
		analysis.Summary.Partial = true
	}
	if !outcome.used {
		analysis.Summary.PermP = 1
	}
}

// rectangularColumns extracts, for every tested feature present in every
// equalized block of both arms, one column of task blocks followed by
// baseline blocks.
func (e *Engine) rectangularColumns(tested []string, taskEq, baseEq []blocks.Block) ([]string, [][]float64) {
	var names []string
	var cols [][]float64
	for _, f := range tested {
		tv, ok1 := blocks.FullColumn(taskEq, f)
		bv, ok2 := blocks.FullColumn(baseEq, f)
		if !ok1 || !ok2 {
			continue
		}
		col := make([]float64, 0, len(tv)+len(bv))
		col = append(col, tv...)
		col = append(col, bv...)
		names = append(names, f)
		cols = append(cols, col)
	}
	return names, cols
}

// spearmanCached memoizes the block-level Spearman matrix per feature set
// and block count; the cache dies with the baseline.
func (e *Engine) spearmanCached(task string, names []string, cols [][]float64) [][]float64 {
	rows := 0
	if len(cols) > 0 {
		rows = len(cols[0])
	}
	key := fmt.Sprintf("%s|%d|%s", task, rows, strings.Join(names, ","))
	if m, ok := e.corrCache[key]; ok {
		return m
	}
	m := spearmanMatrix(cols)
	e.corrCache[key] = m
	return m
}

func testedFeatureNames(analysis *dstats.TaskAnalysis) []string {
	var names []string
	for name, res := range analysis.Features {
		if res.Tested {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AnalyzeAllTasksData analyzes every recorded task, combines their
// task-level p-values, and runs the cross-task omnibus when at least two
// tasks are present. Cancellation yields the tasks finished so far.
func (e *Engine) AnalyzeAllTasksData(token *run.CancelToken, progress run.ProgressFunc) (result *dstats.AllTasksResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = apperrors.New(apperrors.CodeInternalError, fmt.Sprintf("multi-task analysis failed: %v", r))
		}
	}()

	tasks := e.rec.TaskNames()
	result = &dstats.AllTasksResult{
		SessionID: core.SessionID(core.NewID()),
		PerTask:   make(map[string]*dstats.TaskAnalysis),
	}
	if len(tasks) == 0 {
		return result, nil
	}

	for _, task := range tasks {
		if token.Cancelled() {
			result.Partial = true
			break
		}
		analysis, aerr := e.AnalyzeTaskData(task, token, progress)
		if aerr != nil {
			e.log.Warn("task %s skipped: %v", task, aerr)
			continue
		}
		result.PerTask[task] = analysis
		if analysis.Summary.Partial {
			result.Partial = true
		}
	}

	result.Combined = e.combineAcrossTasks(result.PerTask)

	if len(result.PerTask) >= 2 && !token.Cancelled() {
		result.AcrossTask = e.crossTaskOmnibus(result.PerTask)
	}
	return result, nil
}

// combineAcrossTasks Fisher-combines each task's headline p (the corrected
// combined p) and ranks tasks by composite score.
func (e *Engine) combineAcrossTasks(perTask map[string]*dstats.TaskAnalysis) *dstats.CombinedSummary {
	if len(perTask) == 0 {
		return nil
	}

	var tasks []string
	for t := range perTask {
		tasks = append(tasks, t)
	}
	sort.Strings(tasks)

	var ps []float64
	ranking := make([]dstats.TaskRank, 0, len(tasks))
	for _, t := range tasks {
		s := perTask[t].Summary
		ps = append(ps, s.KMCorrectedP)
		ranking = append(ranking, dstats.TaskRank{Task: t, Score: s.RankScore})
	}
	sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].Score > ranking[j].Score })

	stat, p := e.fisher(ps)
	return &dstats.CombinedSummary{
		FisherStat: stat,
		FisherP:    p,
		NTasks:     len(tasks),
		Ranking:    ranking,
	}
}

// crossTaskOmnibus builds the per-feature blocks-per-task effect matrices
// (rows = matched block index, columns = task) and hands them to the
// omnibus tester.
func (e *Engine) crossTaskOmnibus(perTask map[string]*dstats.TaskAnalysis) *dstats.CrossTaskResult {
	base, err := e.Baseline()
	if err != nil {
		return nil
	}

	var tasks []string
	for t := range perTask {
		tasks = append(tasks, t)
	}
	sort.Strings(tasks)

	// Equalize all task block lists to the common minimum row count.
	blockLists := make([][]blocks.Block, 0, len(tasks))
	minRows := -1
	for _, t := range tasks {
		bl := e.agg.Build(e.rec.TaskPhase(t), e.cfg.BlockSeconds)
		blockLists = append(blockLists, bl)
		if minRows < 0 || len(bl) < minRows {
			minRows = len(bl)
		}
	}
	if minRows < 0 {
		minRows = 0
	}
	eqRng := e.rng.SeededStream("equalize:omnibus", e.seed)
	for i := range blockLists {
		blockLists[i] = blocks.Downsample(blockLists[i], minRows, eqRng)
	}

	// Common features: present in every equalized block of every task and
	// in the baseline.
	matrices := make(map[string][][]float64)
	for f := range base.Features {
		cols := make([][]float64, 0, len(tasks))
		ok := true
		for _, bl := range blockLists {
			col, full := blocks.FullColumn(bl, f)
			if !full || len(col) != minRows {
				ok = false
				break
			}
			cols = append(cols, col)
		}
		if !ok || len(cols) != len(tasks) {
			continue
		}

		bf := base.Features[f]
		m := make([][]float64, minRows)
		for r := 0; r < minRows; r++ {
			row := make([]float64, len(tasks))
			for c := range tasks {
				row[c] = e.blockEffect(cols[c][r], bf)
			}
			m[r] = row
		}
		matrices[f] = m
	}

	return omnibus.Analyze(omnibus.Input{
		Tasks:      tasks,
		Matrices:   matrices,
		MinRows:    e.cfg.NminSessions,
		UseRMAnova: e.cfg.OmnibusMethod == OmnibusRMAnova,
		Alpha:      e.cfg.Alpha,
		FDRAlpha:   e.cfg.FDRAlpha,
	}, e.dist)
}

// blockEffect converts a block value into the configured effect measure
// relative to baseline.
func (e *Engine) blockEffect(v float64, bf dstats.BaselineFeature) float64 {
	switch e.cfg.EffectMeasure {
	case EffectZ:
		return (v - bf.Mean) / bf.Std
	default:
		return v - bf.Mean
	}
}
