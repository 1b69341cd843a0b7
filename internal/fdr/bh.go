// Package fdr implements Benjamini-Hochberg false-discovery-rate control.
package fdr

import (
	"sort"
)

// QValues computes BH step-up q-values for the given p-values, mapped back
// to input order: q_k = min over j >= k of (m/j) * p_(j), clipped to 1.
// No library in the stack ships a multiple-comparison routine, so this is
// the standard 30-line step-up over a sort.
func QValues(ps []float64) []float64 {
	m := len(ps)
	if m == 0 {
		return nil
	}

	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return ps[order[a]] < ps[order[b]] })

	qs := make([]float64, m)
	running := 1.0
	for k := m - 1; k >= 0; k-- {
		idx := order[k]
		q := ps[idx] * float64(m) / float64(k+1)
		if q < running {
			running = q
		}
		if running > 1 {
			running = 1
		}
		qs[idx] = running
	}
	return qs
}

// Significant applies BH at level alpha, returning a parallel slice marking
// which hypotheses are rejected (q <= alpha).
func Significant(ps []float64, alpha float64) ([]float64, []bool) {
	qs := QValues(ps)
	sig := make([]bool, len(qs))
	for i, q := range qs {
		sig[i] = q <= alpha
	}
	return qs, sig
}
