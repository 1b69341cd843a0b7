// Package baseline computes per-feature baseline statistics from the
// windows that survive the caller's artifact predicate.
package baseline

import (
	mstats "github.com/montanaflynn/stats"

	"neurosig/domain/core"
	"neurosig/domain/session"
	dstats "neurosig/domain/stats"
)

// StdFloor is added to a zero standard deviation so downstream z-scores and
// pooled variances never divide by zero.
const StdFloor = 1e-6

// Predicate decides whether a window counts for baseline estimation. The
// core never inspects raw signal; artifact rejection lives with the caller.
type Predicate func(session.FeatureWindow) bool

// Compute builds BaselineStats from a baseline phase. Each feature is
// summarized independently over whatever subset of windows carries it;
// features with no surviving window are simply absent from the result.
// bins controls the number of quantile-derived discretization edges.
func Compute(p *session.Phase, keep Predicate, bins int) *dstats.BaselineStats {
	out := &dstats.BaselineStats{
		Features:   make(map[string]dstats.BaselineFeature),
		BinEdges:   make(map[string][]float64),
		ComputedAt: core.Now(),
	}
	if p == nil {
		return out
	}
	out.Source = p.Kind
	out.PhaseID = p.ID

	values := make(map[string][]float64)
	for _, w := range p.Windows {
		if keep != nil && !keep(w) {
			continue
		}
		for k, v := range w.Features {
			values[k] = append(values[k], v)
		}
	}

	for feature, vs := range values {
		if len(vs) < 1 {
			continue
		}
		out.Features[feature] = summarize(vs)
		out.BinEdges[feature] = QuantileEdges(vs, bins)
	}
	return out
}

func summarize(vs []float64) dstats.BaselineFeature {
	mean, _ := mstats.Mean(vs)
	std, _ := mstats.StandardDeviationSample(vs)
	min, _ := mstats.Min(vs)
	max, _ := mstats.Max(vs)
	median, _ := mstats.Median(vs)
	q25, _ := mstats.Percentile(vs, 25)
	q75, _ := mstats.Percentile(vs, 75)

	if len(vs) < 2 {
		std = 0
	}
	if std < StdFloor {
		std += StdFloor
	}

	return dstats.BaselineFeature{
		Mean:   mean,
		Std:    std,
		Min:    min,
		Max:    max,
		Median: median,
		Q25:    q25,
		Q75:    q75,
		N:      len(vs),
	}
}

// QuantileEdges returns the bins-1 interior quantile edges of vs. Edges are
// derived from the baseline distribution only, so repeated task analyses
// against the same baseline bin identically.
func QuantileEdges(vs []float64, bins int) []float64 {
	if bins < 2 || len(vs) == 0 {
		return nil
	}
	edges := make([]float64, 0, bins-1)
	for i := 1; i < bins; i++ {
		q := float64(i) * 100.0 / float64(bins)
		e, err := mstats.Percentile(vs, q)
		if err != nil {
			return nil
		}
		edges = append(edges, e)
	}
	return edges
}

// BinFor discretizes a value against precomputed edges, returning a bin in
// [0, len(edges)].
func BinFor(value float64, edges []float64) int {
	bin := 0
	for _, e := range edges {
		if value > e {
			bin++
		}
	}
	return bin
}
