package session

import (
	"sync"

	"neurosig/domain/core"
)

// PhaseKind identifies which recording phase a window belongs to.
type PhaseKind string

const (
	PhaseEyesClosed PhaseKind = "eyes_closed"
	PhaseEyesOpen   PhaseKind = "eyes_open"
	PhaseTask       PhaseKind = "task"
)

// IsValid reports whether the kind is one of the known phases.
func (k PhaseKind) IsValid() bool {
	switch k {
	case PhaseEyesClosed, PhaseEyesOpen, PhaseTask:
		return true
	}
	return false
}

// FeatureWindow is one windowed spectral-feature record as delivered by the
// acquisition layer. Feature maps across windows of the same phase need not
// share identical key sets (guarded-out bands are simply absent).
type FeatureWindow struct {
	Timestamp float64            `json:"timestamp"`
	Features  map[string]float64 `json:"features"`
}

// Phase owns the ordered window sequence of one recording phase.
type Phase struct {
	ID      core.PhaseID    `json:"id"`
	Kind    PhaseKind       `json:"kind"`
	Task    string          `json:"task,omitempty"` // set only for PhaseTask
	Windows []FeatureWindow `json:"windows"`
}

// Append adds a window to the phase, preserving arrival order.
func (p *Phase) Append(w FeatureWindow) {
	p.Windows = append(p.Windows, w)
}

// WindowCount returns the number of windows recorded so far.
func (p *Phase) WindowCount() int {
	return len(p.Windows)
}

// Recorder tracks the current phase and routes incoming feature windows into
// the right bucket. It is the only stateful entry point the orchestration
// layer talks to; the analysis engine reads finished phases from it.
type Recorder struct {
	mu      sync.Mutex
	current *Phase
	phases  []*Phase
}

// NewRecorder creates an empty session recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// StartPhase opens a new phase, closing any phase still open. taskName is
// ignored for non-task phases.
func (r *Recorder) StartPhase(kind PhaseKind, taskName string) *Phase {
	r.mu.Lock()
	defer r.mu.Unlock()

	if kind != PhaseTask {
		taskName = ""
	}
	p := &Phase{
		ID:   core.PhaseID(core.NewID()),
		Kind: kind,
		Task: taskName,
	}
	r.current = p
	r.phases = append(r.phases, p)
	return p
}

// StopPhase closes the currently open phase, if any.
func (r *Recorder) StopPhase() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
}

// AddFeatureWindow appends a computed feature window to the current phase.
// Returns the feature map that was recorded, or nil when no phase of the
// given kind is active (the window is dropped, matching the acquisition
// contract of "null if not enough data yet / nowhere to route").
func (r *Recorder) AddFeatureWindow(kind PhaseKind, timestamp float64, features map[string]float64) map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil || r.current.Kind != kind || len(features) == 0 {
		return nil
	}
	r.current.Append(FeatureWindow{Timestamp: timestamp, Features: features})
	return features
}

// PhasesOf returns all phases of a kind, in recording order.
func (r *Recorder) PhasesOf(kind PhaseKind) []*Phase {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Phase
	for _, p := range r.phases {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// BaselinePhase returns the phase baseline statistics should come from:
// eyes_closed when it holds any windows, otherwise eyes_open. Returns nil
// when neither phase was recorded.
func (r *Recorder) BaselinePhase() *Phase {
	r.mu.Lock()
	defer r.mu.Unlock()

	var open *Phase
	for _, p := range r.phases {
		switch p.Kind {
		case PhaseEyesClosed:
			if len(p.Windows) > 0 {
				return p
			}
		case PhaseEyesOpen:
			if open == nil && len(p.Windows) > 0 {
				open = p
			}
		}
	}
	return open
}

// TaskPhase returns the task phase with the given name, or nil.
func (r *Recorder) TaskPhase(name string) *Phase {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.phases {
		if p.Kind == PhaseTask && p.Task == name {
			return p
		}
	}
	return nil
}

// TaskNames lists the distinct task names recorded, in first-seen order.
func (r *Recorder) TaskNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var names []string
	for _, p := range r.phases {
		if p.Kind != PhaseTask || p.Task == "" || seen[p.Task] {
			continue
		}
		seen[p.Task] = true
		names = append(names, p.Task)
	}
	return names
}
