// Package guard provides the per-account mutual-exclusion primitive that
// serializes balance mutations. It is a keyed, non-blocking lock table:
// at most one mutation per account is in flight at a time, contenders are
// turned away immediately (callers surface operation_locked and retry),
// and a lock abandoned by a crashed or stuck holder is force-released
// after a bounded timeout so no account stays permanently wedged.
//
// Notes:
//   - The table is process-local, like the rate limiter buckets. The
//     ledger's optimistic version check remains the secondary defense
//     against lost updates if the deployment ever scales past one
//     instance and the lock is bypassed.
//   - Locks are scoped by account key, never global, so contention is
//     limited to operations on the same account.
package guard

import (
	"sync"
	"time"
)

// lease records one held lock: who holds it (token) and since when.
type lease struct {
	token      uint64
	acquiredAt time.Time
}

// Handle proves ownership of an acquired lock. Release with a stale handle
// (one whose lock has been force-released and re-acquired) is a no-op, so
// a revived holder cannot unlock somebody else's critical section.
type Handle struct {
	key   string
	token uint64
}

// Guard is a keyed non-blocking lock table. Safe for concurrent use.
type Guard struct {
	mu      sync.Mutex
	held    map[string]lease
	timeout time.Duration
	nextTok uint64
}

// New constructs a Guard whose locks are force-released after timeout.
// Values <= 0 are coerced to 10 seconds.
func New(timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Guard{
		held:    make(map[string]lease),
		timeout: timeout,
	}
}

// TryAcquire attempts to take the exclusive lock for key without blocking.
// It returns (handle, true) on success. If the lock is held and fresh it
// returns (Handle{}, false); if held but older than the timeout, it is
// treated as abandoned and stolen by the caller.
func (g *Guard) TryAcquire(key string) (Handle, bool) {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.held[key]; ok {
		if now.Sub(l.acquiredAt) < g.timeout {
			return Handle{}, false
		}
		// Stale holder: fall through and take over.
	}

	g.nextTok++
	g.held[key] = lease{token: g.nextTok, acquiredAt: now}
	return Handle{key: key, token: g.nextTok}, true
}

// Release frees the lock identified by h. Stale handles are ignored.
func (g *Guard) Release(h Handle) {
	if h.key == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.held[h.key]; ok && l.token == h.token {
		delete(g.held, h.key)
	}
}

// Held reports whether key is currently locked (fresh or stale).
// Intended for tests and introspection.
func (g *Guard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok
}
