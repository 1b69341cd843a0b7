package dist

import (
	"math"
	"testing"
)

func TestSelect(t *testing.T) {
	if p := Select(true); !p.Exact() || p.Name() != "gonum" {
		t.Errorf("Select(true) = %s exact=%v", p.Name(), p.Exact())
	}
	if p := Select(false); p.Exact() || p.Name() != "normal-approx" {
		t.Errorf("Select(false) = %s exact=%v", p.Name(), p.Exact())
	}
}

func TestExact_ChiSquaredDf2IsExponential(t *testing.T) {
	// At df=2 the chi-square survival is exp(-x/2) in closed form.
	p := Exact{}
	for _, x := range []float64{0.5, 2, 8} {
		got := p.ChiSquaredSurvival(x, 2)
		want := math.Exp(-x / 2)
		if math.Abs(got-want) > 1e-10 {
			t.Errorf("ChiSquaredSurvival(%f, 2) = %g, want %g", x, got, want)
		}
	}
}

func TestExact_NormalCDF(t *testing.T) {
	p := Exact{}
	if got := p.NormalCDF(0); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("NormalCDF(0) = %f", got)
	}
	if got := p.NormalCDF(1.959963985); math.Abs(got-0.975) > 1e-6 {
		t.Errorf("NormalCDF(1.96) = %f", got)
	}
}

func TestExact_StudentTSymmetry(t *testing.T) {
	p := Exact{}
	sum := p.StudentTSurvival(1.5, 10) + p.StudentTSurvival(-1.5, 10)
	if math.Abs(sum-1) > 1e-10 {
		t.Errorf("Survival(t) + Survival(-t) = %f, want 1", sum)
	}
}

func TestExact_DegenerateInputs(t *testing.T) {
	p := Exact{}
	if got := p.StudentTSurvival(1, 0); got != 1 {
		t.Errorf("t survival at df=0 = %f, want 1", got)
	}
	if got := p.ChiSquaredSurvival(-1, 4); got != 1 {
		t.Errorf("chi2 survival at x<0 = %f, want 1", got)
	}
	if got := p.FSurvival(2, 0, 5); got != 1 {
		t.Errorf("F survival at d1=0 = %f, want 1", got)
	}
}

// The approximations must track the exact provider within coarse tolerance
// over the ranges the engine actually uses.
func TestApprox_TracksExact(t *testing.T) {
	exact := Exact{}
	approx := Approx{}

	for _, tc := range []struct{ x, df float64 }{{5, 4}, {10, 8}, {20, 10}} {
		e := exact.ChiSquaredSurvival(tc.x, tc.df)
		a := approx.ChiSquaredSurvival(tc.x, tc.df)
		if math.Abs(e-a) > 0.02 {
			t.Errorf("chi2(%f, %f): exact %f vs approx %f", tc.x, tc.df, e, a)
		}
	}

	for _, tc := range []struct{ t, df float64 }{{1, 20}, {2, 30}, {2.5, 50}} {
		e := exact.StudentTSurvival(tc.t, tc.df)
		a := approx.StudentTSurvival(tc.t, tc.df)
		if math.Abs(e-a) > 0.01 {
			t.Errorf("t(%f, %f): exact %f vs approx %f", tc.t, tc.df, e, a)
		}
	}

	for _, tc := range []struct{ x, d1, d2 float64 }{{2, 3, 20}, {4, 2, 12}} {
		e := exact.FSurvival(tc.x, tc.d1, tc.d2)
		a := approx.FSurvival(tc.x, tc.d1, tc.d2)
		if math.Abs(e-a) > 0.02 {
			t.Errorf("F(%f; %f, %f): exact %f vs approx %f", tc.x, tc.d1, tc.d2, e, a)
		}
	}
}

func TestClampP(t *testing.T) {
	if got := clampP(math.NaN()); got != 1 {
		t.Errorf("clampP(NaN) = %f", got)
	}
	if got := clampP(-0.1); got != 0 {
		t.Errorf("clampP(-0.1) = %f", got)
	}
	if got := clampP(1.5); got != 1 {
		t.Errorf("clampP(1.5) = %f", got)
	}
}
