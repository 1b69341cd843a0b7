// Package omnibus tests whether a feature's effect varies across tasks:
// Friedman's test (or an RM-ANOVA style F approximation), BH correction
// across features, pairwise Wilcoxon signed-rank post-hoc with a sign-test
// fallback, and a ranking-only mode when the matched row count is below the
// configured minimum.
package omnibus

import (
	"math"
	"sort"

	mstats "github.com/montanaflynn/stats"

	dstats "neurosig/domain/stats"
	"neurosig/internal/dist"
	"neurosig/internal/fdr"
)

// Input is one omnibus request: per-feature matrices with rows = matched
// block index and columns = task (aligned with Tasks order).
type Input struct {
	Tasks      []string
	Matrices   map[string][][]float64
	MinRows    int
	UseRMAnova bool
	Alpha      float64
	FDRAlpha   float64
}

// Analyze runs the cross-task omnibus. Below MinRows matched rows it skips
// significance entirely and reports descriptive per-feature task rankings
// only.
func Analyze(in Input, provider dist.Provider) *dstats.CrossTaskResult {
	method := "friedman"
	if in.UseRMAnova {
		method = "rm_anova"
	}

	out := &dstats.CrossTaskResult{
		MinSessions: in.MinRows,
		Method:      method,
		Features:    make(map[string]*dstats.OmnibusFeature),
	}

	rows := 0
	for _, m := range in.Matrices {
		rows = len(m)
		break
	}
	out.MatchedRows = rows

	names := make([]string, 0, len(in.Matrices))
	for f := range in.Matrices {
		names = append(names, f)
	}
	sort.Strings(names)

	if len(in.Tasks) < 2 || rows < in.MinRows {
		out.RankingOnly = true
		for _, f := range names {
			out.Features[f] = &dstats.OmnibusFeature{
				Feature:         f,
				Tasks:           in.Tasks,
				RankingByMedian: rankByMedian(in.Tasks, in.Matrices[f]),
				Reason:          "ranking only: below minimum matched sessions, no significance claims",
			}
		}
		return out
	}

	// Omnibus statistic per feature, then BH across features.
	ps := make([]float64, 0, len(names))
	for _, f := range names {
		m := in.Matrices[f]
		var stat, p float64
		if in.UseRMAnova {
			stat, p = rmAnova(m, provider)
		} else {
			stat, p = friedman(m, provider)
		}
		out.Features[f] = &dstats.OmnibusFeature{
			Feature:         f,
			Stat:            stat,
			P:               p,
			Tasks:           in.Tasks,
			RankingByMedian: rankByMedian(in.Tasks, m),
		}
		ps = append(ps, p)
	}

	qs := fdr.QValues(ps)
	for i, f := range names {
		out.Features[f].Q = qs[i]
		out.Features[f].Significant = qs[i] <= in.FDRAlpha
	}

	for _, f := range names {
		out.Features[f].PairwiseQ, out.Features[f].PairwiseSig = pairwise(in.Matrices[f], len(in.Tasks), in.Alpha, provider)
	}
	return out
}

// rankByMedian orders tasks by the median of their effect column,
// descending.
func rankByMedian(tasks []string, m [][]float64) []dstats.TaskRank {
	ranks := make([]dstats.TaskRank, 0, len(tasks))
	for c, task := range tasks {
		col := column(m, c)
		med, _ := mstats.Median(col)
		ranks = append(ranks, dstats.TaskRank{Task: task, Score: med})
	}
	sort.SliceStable(ranks, func(i, j int) bool { return ranks[i].Score > ranks[j].Score })
	return ranks
}

func column(m [][]float64, c int) []float64 {
	out := make([]float64, 0, len(m))
	for _, row := range m {
		if c < len(row) {
			out = append(out, row[c])
		}
	}
	return out
}

// friedman computes Friedman's chi-square over a rows x tasks matrix:
// chi2 = 12/(n k (k+1)) * sum(R_j^2) - 3 n (k+1), df = k-1.
func friedman(m [][]float64, provider dist.Provider) (stat, p float64) {
	n := len(m)
	if n == 0 {
		return 0, 1
	}
	k := len(m[0])
	if k < 2 {
		return 0, 1
	}

	colRankSums := make([]float64, k)
	for _, row := range m {
		for c, r := range rowRanks(row) {
			colRankSums[c] += r
		}
	}

	var sumSq float64
	for _, r := range colRankSums {
		sumSq += r * r
	}

	nf := float64(n)
	kf := float64(k)
	stat = 12/(nf*kf*(kf+1))*sumSq - 3*nf*(kf+1)
	if stat < 0 {
		stat = 0
	}
	return stat, provider.ChiSquaredSurvival(stat, kf-1)
}

// rmAnova is the Iman-Davenport F transform of the Friedman statistic, the
// repeated-measures ANOVA style alternative.
func rmAnova(m [][]float64, provider dist.Provider) (stat, p float64) {
	n := float64(len(m))
	if len(m) == 0 {
		return 0, 1
	}
	k := float64(len(m[0]))
	chi2, _ := friedman(m, provider)

	den := n*(k-1) - chi2
	if den <= 0 {
		// Perfectly consistent rankings saturate the transform. The F
		// statistic is unbounded there, so report the underlying Friedman
		// chi-square instead; the result must stay JSON-encodable.
		return chi2, 0
	}
	f := (n - 1) * chi2 / den
	return f, provider.FSurvival(f, k-1, (n-1)*(k-1))
}

// rowRanks ranks one row's values ascending, averaging ties.
func rowRanks(row []float64) []float64 {
	n := len(row)
	ranks := make([]float64, n)

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return row[idx[a]] < row[idx[b]] })

	i := 0
	for i < n {
		j := i + 1
		for j < n && row[idx[j]] == row[idx[i]] {
			j++
		}
		avg := float64(i+1) + float64(j-i-1)/2.0
		for t := i; t < j; t++ {
			ranks[idx[t]] = avg
		}
		i = j
	}
	return ranks
}

// pairwise runs a post-hoc test for every task pair, BH-corrects the
// resulting p-values within the feature, and marks significance at alpha.
func pairwise(m [][]float64, k int, alpha float64, provider dist.Provider) ([][]float64, [][]bool) {
	type cell struct{ i, j int }
	var cells []cell
	var ps []float64
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			p := pairedTest(column(m, i), column(m, j), provider)
			cells = append(cells, cell{i, j})
			ps = append(ps, p)
		}
	}

	qs := fdr.QValues(ps)

	qm := make([][]float64, k)
	sm := make([][]bool, k)
	for i := range qm {
		qm[i] = make([]float64, k)
		sm[i] = make([]bool, k)
		for j := range qm[i] {
			if i != j {
				qm[i][j] = 1
			}
		}
	}
	for idx, c := range cells {
		qm[c.i][c.j] = qs[idx]
		qm[c.j][c.i] = qs[idx]
		sig := qs[idx] <= alpha
		sm[c.i][c.j] = sig
		sm[c.j][c.i] = sig
	}
	return qm, sm
}

// minWilcoxonPairs is the smallest number of nonzero differences for which
// the normal-approximated signed-rank statistic is usable; below it the
// exact sign test takes over.
const minWilcoxonPairs = 6

// pairedTest compares two matched columns: Wilcoxon signed-rank with a
// normal approximation, or an exact sign test when too few nonzero
// differences exist.
func pairedTest(a, b []float64, provider dist.Provider) float64 {
	var diffs []float64
	for i := range a {
		if i < len(b) && a[i] != b[i] {
			diffs = append(diffs, a[i]-b[i])
		}
	}
	if len(diffs) == 0 {
		return 1
	}
	if len(diffs) < minWilcoxonPairs {
		return signTest(diffs)
	}
	return wilcoxonSignedRank(diffs, provider)
}

// wilcoxonSignedRank computes the two-sided signed-rank p using the normal
// approximation of W with tie-free variance.
func wilcoxonSignedRank(diffs []float64, provider dist.Provider) float64 {
	n := len(diffs)
	abs := make([]float64, n)
	for i, d := range diffs {
		abs[i] = math.Abs(d)
	}
	ranks := rowRanks(abs)

	var wPlus, wMinus float64
	for i, d := range diffs {
		if d > 0 {
			wPlus += ranks[i]
		} else {
			wMinus += ranks[i]
		}
	}
	w := math.Min(wPlus, wMinus)

	nf := float64(n)
	mean := nf * (nf + 1) / 4
	sd := math.Sqrt(nf * (nf + 1) * (2*nf + 1) / 24)
	if sd == 0 {
		return 1
	}
	z := (w - mean) / sd
	p := 2 * provider.NormalCDF(z) // z <= 0 by construction of min(W+, W-)
	if p > 1 {
		p = 1
	}
	return p
}

// signTest computes the exact two-sided binomial sign test over nonzero
// differences.
func signTest(diffs []float64) float64 {
	n := len(diffs)
	pos := 0
	for _, d := range diffs {
		if d > 0 {
			pos++
		}
	}

	// Two-sided: double the smaller binomial tail at p=1/2.
	k := pos
	if n-pos < k {
		k = n - pos
	}
	var tail float64
	for i := 0; i <= k; i++ {
		tail += binomCoeff(n, i)
	}
	p := 2 * tail / math.Pow(2, float64(n))
	if p > 1 {
		p = 1
	}
	return p
}

func binomCoeff(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	c := 1.0
	for i := 0; i < k; i++ {
		c = c * float64(n-i) / float64(i+1)
	}
	return c
}
