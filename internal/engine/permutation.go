package engine

import (
	"math"
	"math/rand"

	"neurosig/internal/run"
)

// permOutcome is what one SumP permutation test produced.
type permOutcome struct {
	observed  float64
	p         float64
	completed int
	partial   bool
	approx    bool // Irwin-Hall normal fallback instead of permutation
	used      bool // any SumP result at all
}

// sumPPermutation tests the extremity of the summed per-feature Welch p.
//
// cols holds one rectangular column per feature: the first nTask entries are
// task blocks, the rest baseline blocks. Each iteration draws ONE index
// permutation and reuses it for every feature, preserving the features'
// joint structure; the per-feature Welch p-values are recomputed on the
// shuffled split and summed. The reported p is (count(null <= observed)+1) /
// (completed+1), so it can never be exactly zero.
//
// Cancellation is checked once per iteration; a cancelled run reports a
// best-effort p from the completed draws with partial set.
func (e *Engine) sumPPermutation(cols [][]float64, nTask int, rng *rand.Rand, token *run.CancelToken, progress run.ProgressFunc) permOutcome {
	k := len(cols)
	if k == 0 || nTask < minBlocksPerArm {
		return permOutcome{}
	}
	n := len(cols[0])
	if n-nTask < minBlocksPerArm {
		return permOutcome{}
	}

	observed := 0.0
	for _, col := range cols {
		w := welch(col[:nTask], col[nTask:], e.dist)
		observed += w.pTwo
	}

	if !e.cfg.UsePermutation {
		return e.irwinHallFallback(observed, k)
	}

	nPerm := e.cfg.NPerm
	throttle := run.NewThrottle(nPerm, progress)

	taskBuf := make([]float64, nTask)
	baseBuf := make([]float64, n-nTask)

	count := 0
	completed := 0
	partial := false
	for iter := 0; iter < nPerm; iter++ {
		if token.Cancelled() {
			partial = true
			break
		}

		perm := rng.Perm(n)
		sum := 0.0
		for _, col := range cols {
			for i := 0; i < nTask; i++ {
				taskBuf[i] = col[perm[i]]
			}
			for i := nTask; i < n; i++ {
				baseBuf[i-nTask] = col[perm[i]]
			}
			w := welch(taskBuf, baseBuf, e.dist)
			sum += w.pTwo
		}
		if sum <= observed {
			count++
		}
		completed++
		throttle.Tick("permutation", completed)
	}

	return permOutcome{
		observed:  observed,
		p:         float64(count+1) / float64(completed+1),
		completed: completed,
		partial:   partial,
		used:      true,
	}
}

// irwinHallFallback approximates the SumP null as a sum of k independent
// uniforms (mean k/2, variance k/12) when permutation is disabled or
// infeasible. Flagged as approximate; never a silent substitution.
func (e *Engine) irwinHallFallback(observed float64, k int) permOutcome {
	mean := float64(k) / 2
	sd := math.Sqrt(float64(k) / 12)
	p := e.dist.NormalCDF((observed - mean) / sd)
	if p < minLogP {
		p = minLogP
	}
	if p > 1 {
		p = 1
	}
	return permOutcome{observed: observed, p: p, approx: true, used: true}
}
