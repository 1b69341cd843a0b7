package engine

import (
	"math"
	"sort"
)

// fisher combines p-values with Fisher's method: statistic -2*sum(ln p),
// naive p from the chi-square upper tail at 2k degrees of freedom.
func (e *Engine) fisher(ps []float64) (stat, naiveP float64) {
	if len(ps) == 0 {
		return 0, 1
	}
	for _, p := range ps {
		if p < minLogP {
			p = minLogP
		}
		stat += -2 * math.Log(p)
	}
	naiveP = e.dist.ChiSquaredSurvival(stat, float64(2*len(ps)))
	return stat, naiveP
}

// minLogP floors p-values before the log so a permutation p of zero (which
// the +1 correction already prevents) can never produce an infinite stat.
const minLogP = 1e-15

// kmResult carries the Kost-McDermott corrected combination.
type kmResult struct {
	p        float64
	scale    float64 // c = sigma^2 / (2 mu)
	df       float64 // 2 mu^2 / sigma^2
	meanCorr float64 // mean off-diagonal Spearman correlation, provenance
	applied  bool
}

// kostMcDermott adjusts the Fisher chi-square for inter-feature dependence
// using the Spearman correlation matrix of block-level feature values:
// cov(i,j) = 3.263r + 0.710r^2 + 0.027r^3, mu = 2k,
// sigma^2 = 4k + 2*sum(cov), c = sigma^2/(2 mu), df = 2 mu^2/sigma^2.
func (e *Engine) kostMcDermott(fisherStat float64, corr [][]float64) kmResult {
	k := len(corr)
	if k == 0 {
		return kmResult{p: 1}
	}
	if k == 1 {
		// One feature: nothing to correct.
		return kmResult{p: e.dist.ChiSquaredSurvival(fisherStat, 2), scale: 1, df: 2, applied: true}
	}

	var covSum, corrSum float64
	pairs := 0
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			r := corr[i][j]
			covSum += 3.263*r + 0.710*r*r + 0.027*r*r*r
			corrSum += r
			pairs++
		}
	}

	mu := float64(2 * k)
	sigma2 := 4*float64(k) + 2*covSum
	if sigma2 <= 0 {
		// Pathological negative-correlation mass; fall back to naive.
		return kmResult{p: e.dist.ChiSquaredSurvival(fisherStat, mu), scale: 1, df: mu, meanCorr: corrSum / float64(pairs)}
	}

	c := sigma2 / (2 * mu)
	df := 2 * mu * mu / sigma2

	return kmResult{
		p:        e.dist.ChiSquaredSurvival(fisherStat/c, df),
		scale:    c,
		df:       df,
		meanCorr: corrSum / float64(pairs),
		applied:  true,
	}
}

// spearmanMatrix computes the Spearman correlation matrix of the given
// rectangular feature columns (each column one feature over matched blocks).
func spearmanMatrix(cols [][]float64) [][]float64 {
	k := len(cols)
	ranked := make([][]float64, k)
	for i, c := range cols {
		ranked[i] = rankValues(c)
	}

	m := make([][]float64, k)
	for i := range m {
		m[i] = make([]float64, k)
		m[i][i] = 1
	}
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			r := pearson(ranked[i], ranked[j])
			m[i][j] = r
			m[j][i] = r
		}
	}
	return m
}

// rankValues assigns ranks, averaging ties.
func rankValues(data []float64) []float64 {
	n := len(data)
	ranks := make([]float64, n)

	type pair struct {
		value float64
		index int
	}
	pairs := make([]pair, n)
	for i, v := range data {
		pairs[i] = pair{value: v, index: i}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].value < pairs[j].value })

	i := 0
	for i < n {
		j := i + 1
		for j < n && pairs[j].value == pairs[i].value {
			j++
		}
		avgRank := float64(i+1) + float64(j-i-1)/2.0
		for k := i; k < j; k++ {
			ranks[pairs[k].index] = avgRank
		}
		i = j
	}
	return ranks
}

func pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}
	n := float64(len(x))
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
		sumY2 += y[i] * y[i]
	}
	den := math.Sqrt((n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY))
	if den == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}
