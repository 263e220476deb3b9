package verify

import (
	"sync"
	"time"
)

// Tracker is a best-effort, process-local record of personal numbers
// with an initiation currently in flight. It is advisory only: the
// vendor remains the single source of truth for transaction conflicts,
// so Tracker is never used to block an initiation. It can desync from
// vendor state across restarts or multiple instances.
type Tracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	inflight map[string]time.Time
}

func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{
		ttl:      ttl,
		now:      time.Now,
		inflight: make(map[string]time.Time),
	}
}

// Begin marks an initiation in flight and returns the release func,
// which the caller must invoke on every exit path.
func (t *Tracker) Begin(personalNumber string) func() {
	t.mu.Lock()
	t.inflight[personalNumber] = t.now()
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.inflight, personalNumber)
		t.mu.Unlock()
	}
}

// Active reports whether an initiation looks in flight for this
// personal number. Stale entries past the TTL are ignored and pruned.
func (t *Tracker) Active(personalNumber string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	started, ok := t.inflight[personalNumber]
	if !ok {
		return false
	}
	if t.now().Sub(started) > t.ttl {
		delete(t.inflight, personalNumber)
		return false
	}
	return true
}
