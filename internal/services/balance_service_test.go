package services

import (
	"context"
	"testing"
	"time"

	"github.com/retroplay/arcade-backend/internal/cache"
	"github.com/retroplay/arcade-backend/internal/domain"
)

func TestGetBalance_LazyCreate(t *testing.T) {
	db := newTestDB(t, "bal_lazy")
	s := &BalanceService{DB: db, DefaultChips: 5}

	acc, err := s.GetBalance(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if acc.ID != "p1" || acc.Chips != 5 {
		t.Fatalf("unexpected account: %+v", acc)
	}
	if !acc.TokenBalance.IsZero() {
		t.Fatalf("token balance should start at zero")
	}

	// The row persisted; a second read sees it.
	var count int64
	db.Model(&domain.Account{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestGetBalance_ServesFromCacheUntilInvalidated(t *testing.T) {
	db := newTestDB(t, "bal_cache")
	c := cache.New(time.Minute)
	s := &BalanceService{DB: db, Cache: c, DefaultChips: 5}
	ctx := context.Background()

	first, err := s.GetBalance(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.Chips != 5 {
		t.Fatalf("chips = %d", first.Chips)
	}

	// Mutate the row behind the cache's back: the stale value is served
	// until the entry is invalidated (the executor does this on commit).
	db.Model(&domain.Account{}).Where("id = ?", "p1").Update("chips", 1)

	cached, err := s.GetBalance(ctx, "p1")
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if cached.Chips != 5 {
		t.Fatalf("expected cached chips=5, got %d", cached.Chips)
	}

	c.Invalidate("p1")
	fresh, err := s.GetBalance(ctx, "p1")
	if err != nil {
		t.Fatalf("fresh get: %v", err)
	}
	if fresh.Chips != 1 {
		t.Fatalf("expected fresh chips=1, got %d", fresh.Chips)
	}
}

func TestGetBalance_ExecutorInvalidatesCache(t *testing.T) {
	e := newExecutor(t, "bal_invalidate")
	e.Cache = cache.New(time.Minute)
	s := &BalanceService{DB: e.DB, Cache: e.Cache, DefaultChips: e.DefaultChips}
	ctx := context.Background()

	if acc, err := s.GetBalance(ctx, "p1"); err != nil || acc.Chips != 5 {
		t.Fatalf("warm read: %+v %v", acc, err)
	}

	if _, err := e.Execute(ctx, OperationRequest{
		AccountID:  "p1",
		Type:       domain.OpSpendChip,
		Amount:     2,
		RequestRef: "spend-1",
	}); err != nil {
		t.Fatalf("spend: %v", err)
	}

	// Post-write read observes the committed value, not the cached one.
	acc, err := s.GetBalance(ctx, "p1")
	if err != nil {
		t.Fatalf("post-write read: %v", err)
	}
	if acc.Chips != 3 {
		t.Fatalf("chips = %d, want 3", acc.Chips)
	}
}
