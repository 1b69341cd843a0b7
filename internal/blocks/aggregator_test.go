package blocks

import (
	"math"
	"math/rand"
	"testing"

	"neurosig/domain/core"
	"neurosig/domain/session"
)

func makePhase(id string, windows []session.FeatureWindow) *session.Phase {
	return &session.Phase{
		ID:      core.PhaseID(id),
		Kind:    session.PhaseTask,
		Windows: windows,
	}
}

// cadence 2s, 24 windows, timestamps 0..46
func timestampedWindows(value float64) []session.FeatureWindow {
	ws := make([]session.FeatureWindow, 24)
	for i := range ws {
		ws[i] = session.FeatureWindow{
			Timestamp: float64(i) * 2.0,
			Features:  map[string]float64{"alpha_power": value + float64(i%2)},
		}
	}
	return ws
}

func TestBuild_TimestampPartitioning(t *testing.T) {
	agg := NewAggregator(2.0)
	p := makePhase("p1", timestampedWindows(1.0))

	got := agg.Build(p, 8.0)
	if len(got) != 6 {
		t.Fatalf("Expected 6 blocks from 48s of 2s windows at 8s blocks, got %d", len(got))
	}

	// Each block averages 4 windows alternating value and value+1.
	for i, b := range got {
		v, ok := b["alpha_power"]
		if !ok {
			t.Fatalf("Block %d missing alpha_power", i)
		}
		if math.Abs(v-1.5) > 1e-12 {
			t.Errorf("Block %d mean = %f, want 1.5", i, v)
		}
	}
}

func TestBuild_CountFallbackWhenNoTimestamps(t *testing.T) {
	agg := NewAggregator(2.0)
	ws := make([]session.FeatureWindow, 10)
	for i := range ws {
		ws[i] = session.FeatureWindow{Features: map[string]float64{"theta_power": float64(i)}}
	}
	p := makePhase("p2", ws)

	// 8s blocks / 2s cadence = 4 windows per block; 10 windows = 3 blocks.
	got := agg.Build(p, 8.0)
	if len(got) != 3 {
		t.Fatalf("Expected 3 count-based blocks, got %d", len(got))
	}
	if math.Abs(got[0]["theta_power"]-1.5) > 1e-12 {
		t.Errorf("First block mean = %f, want 1.5", got[0]["theta_power"])
	}
	if math.Abs(got[2]["theta_power"]-8.5) > 1e-12 {
		t.Errorf("Tail block mean = %f, want 8.5", got[2]["theta_power"])
	}
}

func TestBuild_SingleNonzeroTimestampUsesTimeline(t *testing.T) {
	agg := NewAggregator(2.0)
	ws := []session.FeatureWindow{
		{Timestamp: 0, Features: map[string]float64{"f": 1}},
		{Timestamp: 0, Features: map[string]float64{"f": 2}},
		{Timestamp: 10, Features: map[string]float64{"f": 3}},
	}
	got := agg.Build(makePhase("p3", ws), 8.0)
	if len(got) != 2 {
		t.Fatalf("Expected 2 time-based blocks, got %d", len(got))
	}
}

func TestSummarize_FeatureRequiresEveryWindow(t *testing.T) {
	agg := NewAggregator(2.0)
	ws := []session.FeatureWindow{
		{Timestamp: 0, Features: map[string]float64{"alpha_power": 1, "beta_power": 2}},
		{Timestamp: 2, Features: map[string]float64{"alpha_power": 3}},
	}
	got := agg.Build(makePhase("p4", ws), 8.0)
	if len(got) != 1 {
		t.Fatalf("Expected 1 block, got %d", len(got))
	}
	if _, ok := got[0]["beta_power"]; ok {
		t.Error("beta_power missing from one window must not appear in the block")
	}
	if math.Abs(got[0]["alpha_power"]-2.0) > 1e-12 {
		t.Errorf("alpha_power = %f, want 2.0", got[0]["alpha_power"])
	}
}

func TestBuild_CacheReturnsSameList(t *testing.T) {
	agg := NewAggregator(2.0)
	p := makePhase("p5", timestampedWindows(1.0))

	first := agg.Build(p, 8.0)
	second := agg.Build(p, 8.0)
	if &first[0] != &second[0] {
		t.Error("Expected memoized block list on repeated Build")
	}

	agg.Invalidate()
	third := agg.Build(p, 8.0)
	if len(third) != len(first) {
		t.Errorf("Rebuild after Invalidate changed block count: %d vs %d", len(third), len(first))
	}
}

func TestEqualize_MatchesCountsAndPreservesOrder(t *testing.T) {
	long := make([]Block, 10)
	for i := range long {
		long[i] = Block{"f": float64(i)}
	}
	short := make([]Block, 4)
	for i := range short {
		short[i] = Block{"f": float64(i)}
	}

	a, b := Equalize(long, short, rand.New(rand.NewSource(42)))
	if len(a) != 4 || len(b) != 4 {
		t.Fatalf("Expected both arms at 4 blocks, got %d and %d", len(a), len(b))
	}
	for i := 1; i < len(a); i++ {
		if a[i]["f"] <= a[i-1]["f"] {
			t.Fatal("Downsampling must preserve block order")
		}
	}

	// Same seed, same subset.
	a2, _ := Equalize(long, short, rand.New(rand.NewSource(42)))
	for i := range a {
		if a[i]["f"] != a2[i]["f"] {
			t.Fatal("Equalize is not deterministic for a fixed seed")
		}
	}
}

func TestFullColumn(t *testing.T) {
	bs := []Block{{"f": 1, "g": 2}, {"f": 3}}
	if _, ok := FullColumn(bs, "g"); ok {
		t.Error("Expected FullColumn to fail for a ragged feature")
	}
	col, ok := FullColumn(bs, "f")
	if !ok || len(col) != 2 || col[0] != 1 || col[1] != 3 {
		t.Errorf("FullColumn(f) = %v, %v", col, ok)
	}
	if got := Column(bs, "g"); len(got) != 1 || got[0] != 2 {
		t.Errorf("Column(g) = %v, want [2]", got)
	}
}

func TestFeatures_SortedUnion(t *testing.T) {
	bs := []Block{{"beta_power": 1}, {"alpha_power": 2}}
	got := Features(bs)
	if len(got) != 2 || got[0] != "alpha_power" || got[1] != "beta_power" {
		t.Errorf("Features = %v", got)
	}
}
