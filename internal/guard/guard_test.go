package guard

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_TimeoutCoercion(t *testing.T) {
	g := New(0)
	if g.timeout != 10*time.Second {
		t.Fatalf("expected coerced timeout of 10s, got %v", g.timeout)
	}
	g2 := New(-time.Second)
	if g2.timeout != 10*time.Second {
		t.Fatalf("expected coerced timeout for negative input, got %v", g2.timeout)
	}
	g3 := New(3 * time.Second)
	if g3.timeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %v", g3.timeout)
	}
}

func TestGuard_AcquireReleaseCycle(t *testing.T) {
	g := New(time.Second)

	h, ok := g.TryAcquire("acct-1")
	if !ok {
		t.Fatalf("first acquire should succeed")
	}
	if !g.Held("acct-1") {
		t.Fatalf("lock should be held after acquire")
	}

	// Contender is turned away, not blocked.
	if _, ok := g.TryAcquire("acct-1"); ok {
		t.Fatalf("second acquire on held lock should fail")
	}

	// A different key is independent.
	h2, ok := g.TryAcquire("acct-2")
	if !ok {
		t.Fatalf("acquire on a different key should succeed")
	}
	g.Release(h2)

	g.Release(h)
	if g.Held("acct-1") {
		t.Fatalf("lock should be free after release")
	}

	// Re-acquire after release works.
	if _, ok := g.TryAcquire("acct-1"); !ok {
		t.Fatalf("re-acquire after release should succeed")
	}
}

func TestGuard_StaleLockIsStolen(t *testing.T) {
	g := New(50 * time.Millisecond)

	h1, ok := g.TryAcquire("acct-1")
	if !ok {
		t.Fatalf("initial acquire should succeed")
	}

	// Fresh lock resists takeover.
	if _, ok := g.TryAcquire("acct-1"); ok {
		t.Fatalf("fresh lock must not be stolen")
	}

	time.Sleep(60 * time.Millisecond)

	// Past the timeout, the lock counts as abandoned and is taken over.
	h2, ok := g.TryAcquire("acct-1")
	if !ok {
		t.Fatalf("stale lock should be stolen")
	}

	// The original handle is now stale: releasing it must not free h2's lock.
	g.Release(h1)
	if !g.Held("acct-1") {
		t.Fatalf("stale release must be a no-op")
	}

	g.Release(h2)
	if g.Held("acct-1") {
		t.Fatalf("current handle should release the lock")
	}
}

func TestGuard_ReleaseZeroHandle_NoPanic(t *testing.T) {
	g := New(time.Second)
	g.Release(Handle{}) // must be a harmless no-op
	if g.Held("") {
		t.Fatalf("zero handle must not create state")
	}
}

func TestGuard_ConcurrentAcquire_OneWinner(t *testing.T) {
	g := New(time.Second)

	const n = 32
	var (
		wg   sync.WaitGroup
		wins int64
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := g.TryAcquire("hot"); ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
