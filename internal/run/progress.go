package run

// Progress is one progress update from a long-running operation.
type Progress struct {
	Stage string `json:"stage"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// ProgressFunc consumes progress updates. Implementations must be cheap; the
// engine calls them from its worker goroutine.
type ProgressFunc func(Progress)

// Throttle bounds progress reporting to roughly targetUpdates calls over a
// loop of total iterations, so a 10^6-iteration permutation run doesn't
// flood whatever channel the caller bridges updates onto.
type Throttle struct {
	fn    ProgressFunc
	total int
	every int
}

const targetUpdates = 100

// NewThrottle creates a throttle for a loop of total iterations. fn may be
// nil, in which case Tick is a no-op.
func NewThrottle(total int, fn ProgressFunc) *Throttle {
	every := total / targetUpdates
	if every < 1 {
		every = 1
	}
	return &Throttle{fn: fn, total: total, every: every}
}

// Tick reports progress for the done-th completed iteration when it falls on
// a reporting boundary (or is the final iteration).
func (t *Throttle) Tick(stage string, done int) {
	if t == nil || t.fn == nil {
		return
	}
	if done%t.every == 0 || done == t.total {
		t.fn(Progress{Stage: stage, Done: done, Total: t.total})
	}
}
