package engine

import (
	"fmt"
	"math"

	mstats "github.com/montanaflynn/stats"

	dstats "neurosig/domain/stats"
	"neurosig/internal/baseline"
	"neurosig/internal/dist"
)

// pooledEps is the pooled-std threshold below which a comparison is treated
// as degenerate (d=0, p=1) instead of producing NaN/Inf.
const pooledEps = 1e-9

// welchResult carries the pieces of one Welch unequal-variance comparison.
type welchResult struct {
	t, df, pTwo float64
	ok          bool
}

// welch computes Welch's t-test (two-sided) between two block-level samples.
// The p-value comes from the configured distribution provider; with the
// approximate provider it is a normal approximation at Welch-Satterthwaite
// degrees of freedom, flagged upstream.
func welch(a, b []float64, provider dist.Provider) welchResult {
	n1 := float64(len(a))
	n2 := float64(len(b))
	if n1 < 2 || n2 < 2 {
		return welchResult{pTwo: 1}
	}

	mean1, _ := mstats.Mean(a)
	mean2, _ := mstats.Mean(b)
	var1, _ := mstats.SampleVariance(a)
	var2, _ := mstats.SampleVariance(b)

	se2 := var1/n1 + var2/n2
	if se2 <= 0 {
		return welchResult{pTwo: 1}
	}
	t := (mean1 - mean2) / math.Sqrt(se2)

	// Welch-Satterthwaite degrees of freedom.
	df := se2 * se2 / (math.Pow(var1/n1, 2)/(n1-1) + math.Pow(var2/n2, 2)/(n2-1))
	if df <= 0 || math.IsNaN(df) {
		return welchResult{pTwo: 1}
	}

	p := 2 * provider.StudentTSurvival(math.Abs(t), df)
	if p > 1 {
		p = 1
	}
	return welchResult{t: t, df: df, pTwo: p, ok: true}
}

// testFeature runs the full per-feature pipeline for one task-vs-baseline
// comparison at block level: sample-size gate, degeneracy gate, Cohen's d,
// Welch p, directional one-sided p, band thresholds, the p/d/pct decision
// rule, and baseline-quantile discretization.
func (e *Engine) testFeature(task, feature string, taskVals, baseVals []float64, bf dstats.BaselineFeature, edges []float64) dstats.FeatureResult {
	res := dstats.FeatureResult{
		Feature:           feature,
		TaskName:          task,
		ExpectedDirection: ExpectedDirection(task, feature),
		NTaskBlocks:       len(taskVals),
		NBaseBlocks:       len(baseVals),
		PTwoSided:         1,
		POneSided:         1,
		Approx:            !e.dist.Exact(),
	}

	if len(taskVals) < minBlocksPerArm || len(baseVals) < minBlocksPerArm {
		res.Reason = fmt.Sprintf("NA (need >=%d blocks per arm, have %d task / %d baseline)",
			minBlocksPerArm, len(taskVals), len(baseVals))
		return res
	}

	taskMean, _ := mstats.Mean(taskVals)
	taskStd, _ := mstats.StandardDeviationSample(taskVals)
	baseMean, _ := mstats.Mean(baseVals)
	baseStd, _ := mstats.StandardDeviationSample(baseVals)

	res.TaskMean = taskMean
	res.TaskStd = taskStd
	res.BaseMean = baseMean
	res.BaseStd = baseStd
	res.Delta = taskMean - baseMean
	res.ZScore = res.Delta / bf.Std // bf.Std carries the baseline floor
	res.PercentChange = res.Delta / (math.Abs(baseMean) + percentEps) * 100
	res.Bin = baseline.BinFor(taskMean, edges)

	// Pooled std from block-level variances.
	n1 := float64(len(taskVals))
	n2 := float64(len(baseVals))
	v1, _ := mstats.SampleVariance(taskVals)
	v2, _ := mstats.SampleVariance(baseVals)
	pooled := math.Sqrt(((n1-1)*v1 + (n2-1)*v2) / (n1 + n2 - 2))

	if pooled <= pooledEps {
		res.Tested = true
		res.EffectSize = 0
		res.PTwoSided = 1
		res.POneSided = 1
		res.Reason = "Degenerate variance (pooled block std ~ 0)"
		return res
	}

	res.EffectSize = res.Delta / pooled

	w := welch(taskVals, baseVals, e.dist)
	res.PTwoSided = w.pTwo
	res.Tested = true

	// Directional prior: matching direction halves the two-sided p; a
	// contradiction turns into evidence against the hypothesis.
	res.POneSided = oneSidedP(w.pTwo, res.Delta, res.ExpectedDirection)

	e.decide(&res)
	return res
}

const (
	minBlocksPerArm = 3
	percentEps      = 1e-12
)

func oneSidedP(pTwo, delta float64, expected int) float64 {
	if expected == 0 {
		return pTwo
	}
	observed := 0
	if delta > 0 {
		observed = 1
	} else if delta < 0 {
		observed = -1
	}
	if observed == expected {
		return pTwo / 2
	}
	return 1 - pTwo/2
}

// decide applies the accept rule, first match wins: one-sided p, then effect
// size, then percent change. The d and pct branches are direction-gated when
// a prior exists (the p branch is gated through the one-sided construction).
func (e *Engine) decide(res *dstats.FeatureResult) {
	directionOK := true
	if res.ExpectedDirection != 0 {
		directionOK = (res.Delta > 0) == (res.ExpectedDirection > 0) && res.Delta != 0
	}

	if res.POneSided <= e.cfg.Alpha {
		res.Significant = true
		res.Rule = dstats.PassRuleP
		return
	}

	dThresh := math.Max(effectThreshold(res.Feature), e.cfg.MinEffectSize)
	if directionOK && math.Abs(res.EffectSize) >= dThresh {
		res.Significant = true
		res.Rule = dstats.PassRuleEffect
		return
	}

	pctThresh := math.Max(percentThreshold(res.Feature), e.cfg.MinPercentChange)
	if directionOK && math.Abs(res.PercentChange) >= pctThresh {
		res.Significant = true
		res.Rule = dstats.PassRulePercent
		return
	}

	res.Significant = false
	res.Rule = dstats.PassRuleNone
}
