// Package services – BalanceService
//
// This file implements the read path for account balances: a short-TTL
// cache with in-flight request coalescing in front of the ledger store.
// Reads never block on writers; a read during an in-flight mutation may be
// up to the TTL old but never reflects a partially applied delta, because
// the ledger commits atomically and the executor invalidates the cache
// after every commit.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/retroplay/arcade-backend/internal/cache"
	"github.com/retroplay/arcade-backend/internal/domain"
	"github.com/retroplay/arcade-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BalanceService serves balance reads through the cache/coalescer.
type BalanceService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cache is the TTL cache + coalescer; nil disables caching.
	Cache *cache.BalanceCache
	// DefaultChips is the starting allotment for lazily created accounts.
	DefaultChips int64
}

// GetBalance returns the current balance for accountID, creating the
// default row on first read. Cached values younger than the TTL are
// served directly; concurrent misses for one account share a single
// ledger read.
func (s *BalanceService) GetBalance(ctx context.Context, accountID string) (*domain.Account, error) {
	tr := otel.Tracer("services/BalanceService")
	ctx, span := tr.Start(ctx, "GetBalance",
		trace.WithAttributes(attribute.String("account.id", accountID)),
	)
	defer span.End()

	load := func(ctx context.Context) (*domain.Account, error) {
		return repo.GetOrCreateAccount(ctx, s.DB, accountID, s.DefaultChips)
	}
	if s.Cache == nil {
		return load(ctx)
	}
	return s.Cache.Get(ctx, accountID, load)
}
