// Package blocks turns a phase's feature windows into fixed-duration blocks,
// the exchangeable unit for resampling and effective-sample-size reporting.
package blocks

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/montanaflynn/stats"

	"neurosig/domain/core"
	"neurosig/domain/session"
)

// Block is the time-aggregated feature map of consecutive windows. A feature
// appears in a block only when every window of the block carries it; windows
// with the key absent would otherwise skew the mean toward zero.
type Block map[string]float64

// Key identifies a cached block list.
type Key struct {
	Phase   core.PhaseID
	Seconds float64
}

// Aggregator builds and memoizes block lists per (phase identity, block
// length). Blocks are never mutated after creation, so repeated calls with
// unchanged input return the same list.
type Aggregator struct {
	mu sync.Mutex
	// WindowSeconds is the assumed window cadence, used only by the
	// count-based fallback when a phase carries no usable timestamps.
	WindowSeconds float64
	cache         map[Key][]Block
}

// NewAggregator creates an aggregator assuming the given window cadence for
// the timestamp-free fallback path.
func NewAggregator(windowSeconds float64) *Aggregator {
	if windowSeconds <= 0 {
		windowSeconds = 2.0
	}
	return &Aggregator{
		WindowSeconds: windowSeconds,
		cache:         make(map[Key][]Block),
	}
}

// Invalidate drops all memoized block lists. Call after baseline
// recomputation or any change to phase contents.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = make(map[Key][]Block)
}

// Build partitions a phase's windows into blocks of the given duration.
//
// Timestamps are the authoritative blocking strategy: block index is
// floor((timestamp - t0) / seconds). The count-based path (seconds /
// WindowSeconds windows per block) runs only when every timestamp in the
// phase is zero, which is the tie-break for record streams produced without
// a clock.
func (a *Aggregator) Build(p *session.Phase, seconds float64) []Block {
	if p == nil || len(p.Windows) == 0 || seconds <= 0 {
		return nil
	}

	key := Key{Phase: p.ID, Seconds: seconds}
	a.mu.Lock()
	if cached, ok := a.cache[key]; ok {
		a.mu.Unlock()
		return cached
	}
	a.mu.Unlock()

	var groups [][]session.FeatureWindow
	if hasTimestamps(p.Windows) {
		groups = groupByTime(p.Windows, seconds)
	} else {
		perBlock := int(seconds/a.WindowSeconds + 0.5)
		if perBlock < 1 {
			perBlock = 1
		}
		groups = groupByCount(p.Windows, perBlock)
	}

	out := make([]Block, 0, len(groups))
	for _, g := range groups {
		if b := summarize(g); len(b) > 0 {
			out = append(out, b)
		}
	}

	a.mu.Lock()
	a.cache[key] = out
	a.mu.Unlock()
	return out
}

func hasTimestamps(ws []session.FeatureWindow) bool {
	for _, w := range ws {
		if w.Timestamp != 0 {
			return true
		}
	}
	return false
}

func groupByTime(ws []session.FeatureWindow, seconds float64) [][]session.FeatureWindow {
	t0 := ws[0].Timestamp
	byIdx := make(map[int][]session.FeatureWindow)
	var order []int
	for _, w := range ws {
		idx := int((w.Timestamp - t0) / seconds)
		if idx < 0 {
			idx = 0
		}
		if _, seen := byIdx[idx]; !seen {
			order = append(order, idx)
		}
		byIdx[idx] = append(byIdx[idx], w)
	}
	sort.Ints(order)
	groups := make([][]session.FeatureWindow, 0, len(order))
	for _, idx := range order {
		groups = append(groups, byIdx[idx])
	}
	return groups
}

func groupByCount(ws []session.FeatureWindow, perBlock int) [][]session.FeatureWindow {
	var groups [][]session.FeatureWindow
	for start := 0; start < len(ws); start += perBlock {
		end := start + perBlock
		if end > len(ws) {
			end = len(ws)
		}
		groups = append(groups, ws[start:end])
	}
	return groups
}

// summarize averages the windows of one block. Only features present in
// every window contribute; a missing key excludes the feature from this
// block rather than counting as zero.
func summarize(ws []session.FeatureWindow) Block {
	if len(ws) == 0 {
		return nil
	}

	counts := make(map[string]int)
	values := make(map[string][]float64)
	for _, w := range ws {
		for k, v := range w.Features {
			counts[k]++
			values[k] = append(values[k], v)
		}
	}

	b := make(Block)
	for k, n := range counts {
		if n != len(ws) {
			continue
		}
		m, err := stats.Mean(values[k])
		if err != nil {
			continue
		}
		b[k] = m
	}
	return b
}

// Equalize downsamples the longer of two block lists by uniform random
// sampling (order-preserving, seeded via rng) so both arms carry the same
// number of blocks. This matched count is the effective sample size reported
// per arm and the basis for permutation draws.
func Equalize(a, b []Block, rng *rand.Rand) ([]Block, []Block) {
	switch {
	case len(a) == len(b):
		return a, b
	case len(a) > len(b):
		return sample(a, len(b), rng), b
	default:
		return a, sample(b, len(a), rng)
	}
}

// Downsample reduces a block list to n blocks by uniform random sampling,
// preserving order. Used to align several task arms on a common row count.
func Downsample(blocks []Block, n int, rng *rand.Rand) []Block {
	return sample(blocks, n, rng)
}

func sample(blocks []Block, n int, rng *rand.Rand) []Block {
	if n >= len(blocks) {
		return blocks
	}
	idx := rng.Perm(len(blocks))[:n]
	sort.Ints(idx)
	out := make([]Block, n)
	for i, j := range idx {
		out[i] = blocks[j]
	}
	return out
}

// Column extracts a feature's values from the blocks that carry it.
func Column(blocks []Block, feature string) []float64 {
	out := make([]float64, 0, len(blocks))
	for _, b := range blocks {
		if v, ok := b[feature]; ok {
			out = append(out, v)
		}
	}
	return out
}

// FullColumn extracts a feature's values only when every block carries it;
// the second return is false otherwise. Shared permutation draws and the
// Spearman correlation matrix require rectangular columns.
func FullColumn(blocks []Block, feature string) ([]float64, bool) {
	out := make([]float64, 0, len(blocks))
	for _, b := range blocks {
		v, ok := b[feature]
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// Features lists every feature present in at least one block, sorted for
// deterministic iteration.
func Features(blocks []Block) []string {
	seen := make(map[string]bool)
	for _, b := range blocks {
		for k := range b {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
