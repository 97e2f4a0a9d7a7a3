// Package cache provides the read-side balance cache with in-flight
// request coalescing. It is a read-only optimization layered in front of
// the ledger: staleness is bounded by a short TTL, every write invalidates
// the account's entry, and a miss never produces an incorrect balance,
// only a ledger read.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/retroplay/arcade-backend/internal/domain"
)

// entry is one cached balance snapshot.
type entry struct {
	acc      domain.Account
	storedAt time.Time
}

// BalanceCache caches balance reads per account for a short TTL and
// coalesces concurrent misses for the same account into a single ledger
// read. Safe for concurrent use.
type BalanceCache struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]entry
	group   singleflight.Group

	// now is a seam for tests.
	now func() time.Time
}

// New constructs a BalanceCache. TTL values <= 0 disable caching (every
// Get goes to the loader, still coalesced).
func New(ttl time.Duration) *BalanceCache {
	return &BalanceCache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached balance for accountID when younger than the TTL;
// otherwise it invokes load exactly once per in-flight account (concurrent
// callers await the same result) and caches what it returns. The returned
// snapshot is a copy; callers may not observe later mutations through it.
func (c *BalanceCache) Get(ctx context.Context, accountID string, load func(ctx context.Context) (*domain.Account, error)) (*domain.Account, error) {
	if c.ttl > 0 {
		c.mu.Lock()
		if e, ok := c.entries[accountID]; ok && c.now().Sub(e.storedAt) < c.ttl {
			acc := e.acc
			c.mu.Unlock()
			return &acc, nil
		}
		c.mu.Unlock()
	}

	v, err, _ := c.group.Do(accountID, func() (any, error) {
		acc, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			c.mu.Lock()
			c.entries[accountID] = entry{acc: *acc, storedAt: c.now()}
			c.mu.Unlock()
		}
		return acc, nil
	})
	if err != nil {
		return nil, err
	}
	acc := *(v.(*domain.Account))
	return &acc, nil
}

// Invalidate drops the cached entry for accountID. Called by the executor
// after every committed mutation so post-write reads observe fresh values.
func (c *BalanceCache) Invalidate(accountID string) {
	c.mu.Lock()
	delete(c.entries, accountID)
	c.mu.Unlock()
	// Forget any in-flight read so late joiners get a post-write value.
	c.group.Forget(accountID)
}
