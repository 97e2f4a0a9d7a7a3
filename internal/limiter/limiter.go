// Package limiter implements the per-account, per-action-class rate gate
// in front of the engine's read and write paths.
//
// The model is a sliding window of length W with a maximum request count N
// per class, plus two refinements:
//
//   - Debounce: a second request arriving within D of the previous one in
//     the same class is rejected outright (dampens accidental double
//     submits) without consuming a window slot.
//   - Hard block: once the count exceeds N within a window, blocked_until
//     is set and every request in that class is rejected until it passes,
//     regardless of subsequent window resets.
//
// State is per (account, class) and process-local, mirroring the HTTP
// edge limiter's in-memory bucket map; idle windows are evicted
// opportunistically to bound memory. The limiter never touches the ledger.
package limiter

import (
	"sync"
	"time"
)

// Class identifies a group of operations sharing one rate budget.
type Class string

// Action classes. Privileged calls get a stricter budget and a longer
// block than ordinary play actions.
const (
	ClassRead  Class = "read"
	ClassPlay  Class = "play"
	ClassAdmin Class = "admin"
)

// Policy is the budget for one class.
type Policy struct {
	Window   time.Duration // sliding window length W
	Max      int           // max requests N per window
	Block    time.Duration // block duration once N is exceeded
	Debounce time.Duration // minimum spacing between two requests
}

// Decision is the outcome of a limiter check. RetryAfter is only
// meaningful when Allowed is false.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// window holds the counting state for one (account, class) pair.
type window struct {
	windowStart  time.Time
	count        int
	blockedUntil time.Time
	lastRequest  time.Time
}

// Limiter is a sliding-window rate limiter keyed by (account, class).
// Safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	policies map[Class]Policy
	windows  map[string]*window
	cleanupN uint64

	// now is a seam for tests.
	now func() time.Time
}

// New constructs a Limiter with the given per-class policies. Classes
// without a policy are not limited.
func New(policies map[Class]Policy) *Limiter {
	return &Limiter{
		policies: policies,
		windows:  make(map[string]*window),
		now:      time.Now,
	}
}

// Check records one request for (accountID, class) and decides whether it
// may proceed. Denials carry the duration after which a retry can succeed.
func (l *Limiter) Check(accountID string, class Class) Decision {
	pol, ok := l.policies[class]
	if !ok || pol.Max <= 0 || pol.Window <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()
	key := accountID + "|" + string(class)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Opportunistic cleanup after a threshold of lookups, then reset the
	// counter. Run it BEFORE touching the requested window so an idle
	// entry can be evicted even when it is the one being fetched.
	l.cleanupN++
	if l.cleanupN >= 5000 {
		for k, w := range l.windows {
			if now.Sub(w.lastRequest) >= 10*time.Minute && now.After(w.blockedUntil) {
				delete(l.windows, k)
			}
		}
		l.cleanupN = 0
	}

	w, ok := l.windows[key]
	if !ok {
		w = &window{windowStart: now}
		l.windows[key] = w
	}

	// A block in force rejects everything in the class, count reset or not.
	if w.blockedUntil.After(now) {
		w.lastRequest = now
		return Decision{RetryAfter: w.blockedUntil.Sub(now)}
	}

	// Debounce: immediate double-submit, no window slot consumed.
	if pol.Debounce > 0 && !w.lastRequest.IsZero() {
		if since := now.Sub(w.lastRequest); since < pol.Debounce {
			w.lastRequest = now
			return Decision{RetryAfter: pol.Debounce - since}
		}
	}
	w.lastRequest = now

	// Roll the window forward when its length has elapsed.
	if now.Sub(w.windowStart) >= pol.Window {
		w.windowStart = now
		w.count = 0
	}

	w.count++
	if w.count > pol.Max {
		w.blockedUntil = now.Add(pol.Block)
		return Decision{RetryAfter: pol.Block}
	}
	return Decision{Allowed: true}
}
