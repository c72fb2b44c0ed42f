package trigger

import (
	"sync"
	"time"

	"marginrisk/pkg/identity"
)

// ErrorTracker is the per-account sliding-window preparation-failure
// counter (§4.9, §5): accounts with too many recent errors are skipped for
// preparation until their window ages out. It is guarded by a mutex rather
// than sharded per-account, matching the teacher's identity-gateway store's
// "single lock, short critical sections" style for small in-memory maps.
type ErrorTracker struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	clock  func() time.Time

	errors map[string][]time.Time
}

// NewErrorTracker builds a tracker that throttles an account once it has
// accrued limit failures within window.
func NewErrorTracker(window time.Duration, limit int) *ErrorTracker {
	return &ErrorTracker{
		window: window,
		limit:  limit,
		clock:  time.Now,
		errors: make(map[string][]time.Time),
	}
}

// RecordFailure appends a failure timestamp for address.
func (t *ErrorTracker) RecordFailure(address identity.Address) {
	key := address.String()
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors[key] = append(prune(t.errors[key], now, t.window), now)
}

// Throttled reports whether address has tripped the back-off window.
func (t *ErrorTracker) Throttled(address identity.Address) bool {
	key := address.String()
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()
	recent := prune(t.errors[key], now, t.window)
	t.errors[key] = recent
	return len(recent) >= t.limit
}

// Snapshot returns the recent failure timestamps for address, for the
// control API's GET /v1/accounts/{address}/errors endpoint.
func (t *ErrorTracker) Snapshot(address identity.Address) []time.Time {
	key := address.String()
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()
	recent := prune(t.errors[key], now, t.window)
	out := make([]time.Time, len(recent))
	copy(out, recent)
	return out
}

// Restore seeds the tracker with failure timestamps for address, dropping
// any that fall outside the window. The tracker itself is in-memory only:
// nothing in this module persists its timestamps or calls Restore.
func (t *ErrorTracker) Restore(address identity.Address, timestamps []time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors[address.String()] = prune(append([]time.Time{}, timestamps...), t.clock(), t.window)
}

func prune(timestamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := timestamps[:0:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
