package session

import (
	"testing"
)

func TestRecorder_DropsWindowWithoutMatchingPhase(t *testing.T) {
	r := NewRecorder()

	// No phase open at all.
	if got := r.AddFeatureWindow(PhaseTask, 0, map[string]float64{"alpha_power": 1}); got != nil {
		t.Errorf("Expected nil for window with no open phase, got %v", got)
	}

	// Open phase of a different kind.
	r.StartPhase(PhaseEyesClosed, "")
	if got := r.AddFeatureWindow(PhaseTask, 0, map[string]float64{"alpha_power": 1}); got != nil {
		t.Errorf("Expected nil for mismatched phase kind, got %v", got)
	}

	// Empty feature map is never recorded.
	if got := r.AddFeatureWindow(PhaseEyesClosed, 0, nil); got != nil {
		t.Errorf("Expected nil for empty feature map, got %v", got)
	}

	if got := r.AddFeatureWindow(PhaseEyesClosed, 0, map[string]float64{"alpha_power": 1}); got == nil {
		t.Error("Expected matching window to be recorded")
	}
	if n := r.BaselinePhase().WindowCount(); n != 1 {
		t.Errorf("Expected 1 recorded window, got %d", n)
	}
}

func TestRecorder_StopPhaseClosesRouting(t *testing.T) {
	r := NewRecorder()
	r.StartPhase(PhaseTask, "mental_arithmetic")
	r.AddFeatureWindow(PhaseTask, 0, map[string]float64{"beta_power": 2})
	r.StopPhase()

	if got := r.AddFeatureWindow(PhaseTask, 2, map[string]float64{"beta_power": 3}); got != nil {
		t.Error("Expected window after StopPhase to be dropped")
	}
	if n := r.TaskPhase("mental_arithmetic").WindowCount(); n != 1 {
		t.Errorf("Expected 1 window in task phase, got %d", n)
	}
}

func TestRecorder_BaselinePreference(t *testing.T) {
	r := NewRecorder()

	if r.BaselinePhase() != nil {
		t.Fatal("Expected nil baseline phase on empty recorder")
	}

	r.StartPhase(PhaseEyesOpen, "")
	r.AddFeatureWindow(PhaseEyesOpen, 0, map[string]float64{"alpha_power": 1})
	r.StopPhase()

	if p := r.BaselinePhase(); p == nil || p.Kind != PhaseEyesOpen {
		t.Fatal("Expected eyes_open baseline when eyes_closed is absent")
	}

	// eyes_closed with windows takes precedence once recorded.
	r.StartPhase(PhaseEyesClosed, "")
	r.AddFeatureWindow(PhaseEyesClosed, 0, map[string]float64{"alpha_power": 2})
	r.StopPhase()

	if p := r.BaselinePhase(); p == nil || p.Kind != PhaseEyesClosed {
		t.Fatal("Expected eyes_closed baseline to take precedence")
	}
}

func TestRecorder_EmptyEyesClosedDoesNotShadowEyesOpen(t *testing.T) {
	r := NewRecorder()
	r.StartPhase(PhaseEyesClosed, "")
	r.StopPhase()
	r.StartPhase(PhaseEyesOpen, "")
	r.AddFeatureWindow(PhaseEyesOpen, 0, map[string]float64{"alpha_power": 1})
	r.StopPhase()

	if p := r.BaselinePhase(); p == nil || p.Kind != PhaseEyesOpen {
		t.Fatal("Expected windowless eyes_closed phase to be skipped")
	}
}

func TestRecorder_TaskNamesFirstSeenOrder(t *testing.T) {
	r := NewRecorder()
	for _, name := range []string{"meditation", "mental_arithmetic", "meditation"} {
		r.StartPhase(PhaseTask, name)
		r.StopPhase()
	}

	names := r.TaskNames()
	if len(names) != 2 || names[0] != "meditation" || names[1] != "mental_arithmetic" {
		t.Errorf("Expected [meditation mental_arithmetic], got %v", names)
	}
}

func TestRecorder_TaskNameIgnoredForNonTaskPhases(t *testing.T) {
	r := NewRecorder()
	p := r.StartPhase(PhaseEyesClosed, "should_be_dropped")
	if p.Task != "" {
		t.Errorf("Expected empty task name on baseline phase, got %q", p.Task)
	}
}
