package jobs

import "sync"

// Cancellation checkpoints. Cancellation is cooperative, not preemptive:
// setting the token does not stop in-flight remote calls, so every resumption
// point re-checks it before acting.
const (
	CheckpointPreDispatch = "pre-dispatch"
	CheckpointPreMerge    = "pre-merge"
)

// CancelToken is the cooperative cancellation signal threaded through a job's
// async path.
type CancelToken struct {
	mu        sync.Mutex
	cancelled bool
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel sets the token. Safe to call more than once.
func (t *CancelToken) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

// Cancelled reports whether cancellation was requested.
func (t *CancelToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}
