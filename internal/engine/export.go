package engine

import (
	"math"
	"sort"

	dstats "neurosig/domain/stats"
)

// summarize fills the task summary's derived aggregates: decision counts,
// composite ranking score, cosine similarity to the baseline feature vector,
// and the directional expectation-alignment grade.
func (e *Engine) summarize(analysis *dstats.TaskAnalysis, base *dstats.BaselineStats) {
	s := &analysis.Summary

	var nTested, nSig, priorTotal, priorMatched int
	var sumAbsD float64
	var taskVec, baseVec []float64

	for _, name := range sortedFeatureNames(analysis) {
		res := analysis.Features[name]
		if !res.Tested {
			continue
		}
		nTested++
		if res.Significant {
			nSig++
		}
		sumAbsD += math.Abs(res.EffectSize)

		if res.ExpectedDirection != 0 {
			priorTotal++
			if res.Delta != 0 && (res.Delta > 0) == (res.ExpectedDirection > 0) {
				priorMatched++
			}
		}

		if bf, ok := base.Features[name]; ok {
			taskVec = append(taskVec, res.TaskMean)
			baseVec = append(baseVec, bf.Mean)
		}
	}

	s.NTested = nTested
	s.NSignificant = nSig
	s.CosineToBaseline = cosine(taskVec, baseVec)

	if priorTotal == 0 {
		s.Alignment = "no_priors"
	} else {
		s.AlignmentScore = float64(priorMatched) / float64(priorTotal)
		switch {
		case s.AlignmentScore >= 0.75:
			s.Alignment = "aligned"
		case s.AlignmentScore >= 0.4:
			s.Alignment = "mixed"
		default:
			s.Alignment = "contrary"
		}
	}

	if nTested > 0 {
		sigFrac := float64(nSig) / float64(nTested)
		meanAbsD := sumAbsD / float64(nTested)
		s.RankScore = 0.5*sigFrac + 0.3*math.Min(meanAbsD, 1) + 0.2*(1-s.KMCorrectedP)
	}
}

func sortedFeatureNames(analysis *dstats.TaskAnalysis) []string {
	names := make([]string, 0, len(analysis.Features))
	for name := range analysis.Features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Export produces the serializable view of a task analysis: the full
// numeric payload, or the integer-only (bin + significance flag) payload
// for storage-size-constrained consumers.
func (e *Engine) Export(analysis *dstats.TaskAnalysis, compact bool) dstats.ExportPayload {
	payload := dstats.ExportPayload{
		Task:  analysis.Summary.Task,
		RunID: analysis.Summary.RunID,
		Seed:  analysis.Summary.Seed,
	}
	if !compact {
		payload.Full = analysis
		return payload
	}

	payload.Compact = make(map[string]dstats.CompactFeature, len(analysis.Features))
	for name, res := range analysis.Features {
		sig := 0
		if res.Significant {
			sig = 1
		}
		payload.Compact[name] = dstats.CompactFeature{Bin: res.Bin, Sig: sig}
	}
	return payload
}
