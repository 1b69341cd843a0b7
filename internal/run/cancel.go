package run

import (
	"sync/atomic"
)

// CancelToken is a cooperative cancellation flag. Long loops check it once
// per iteration and return whatever partial result they have accumulated;
// cancellation is never surfaced as an error.
type CancelToken struct {
	flag atomic.Bool
}

// NewCancelToken creates an uncancelled token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel requests cooperative cancellation. Safe to call from any goroutine
// and more than once.
func (t *CancelToken) Cancel() {
	if t == nil {
		return
	}
	t.flag.Store(true)
}

// Cancelled reports whether cancellation was requested. A nil token never
// cancels, so callers can pass nil when they don't need the facility.
func (t *CancelToken) Cancelled() bool {
	return t != nil && t.flag.Load()
}
