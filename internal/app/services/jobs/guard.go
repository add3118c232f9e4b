package jobs

import "sync"

// guard enforces the single-writer discipline: at most one generation job and
// one edit job in flight per user.
type guard struct {
	mu     sync.Mutex
	active map[string]string // user+kind -> job id
}

func newGuard() *guard {
	return &guard{active: make(map[string]string)}
}

func (g *guard) tryAcquire(key, jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[key]; busy {
		return false
	}
	g.active[key] = jobID
	return true
}

func (g *guard) release(key, jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[key] == jobID {
		delete(g.active, key)
	}
}
