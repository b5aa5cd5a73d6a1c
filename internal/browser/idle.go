package browser

import (
	"sync"
	"time"
)

// idleTracker counts in-flight requests of a page and remembers when the
// last one started or ended.
type idleTracker struct {
	mu           sync.Mutex
	inflight     map[string]struct{}
	lastActivity time.Time
	now          func() time.Time
}

func newIdleTracker(now func() time.Time) *idleTracker {
	return &idleTracker{
		inflight:     make(map[string]struct{}),
		lastActivity: now(),
		now:          now,
	}
}

func (t *idleTracker) started(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	t.lastActivity = t.now()
}

func (t *idleTracker) finished(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inflight[id]; !ok {
		return
	}
	delete(t.inflight, id)
	t.lastActivity = t.now()
}

// idleFor returns how long the network has been quiet, or zero while
// any request is in flight.
func (t *idleTracker) idleFor() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inflight) > 0 {
		return 0
	}
	return t.now().Sub(t.lastActivity)
}
