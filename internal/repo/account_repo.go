// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file is the ledger store: the only place balance
// values are persisted.
//
// Error semantics:
//   - When a row is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - ApplyDelta returns ErrStaleVersion when the optimistic version check
//     fails and ErrNegativeBalance when the delta would drive chips or the
//     token balance below zero. Neither case writes anything.
//
// The ledger does not enforce idempotency or rate limits; those concerns
// are layered above it by the executor.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/retroplay/arcade-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStaleVersion indicates the account row changed since it was read;
// the caller must re-read and retry the commit.
var ErrStaleVersion = errors.New("stale account version")

// ErrNegativeBalance indicates the requested delta would commit a negative
// chip count or token balance, which the ledger never allows.
var ErrNegativeBalance = errors.New("balance would go negative")

// GetOrCreateAccount returns the balance row for accountID, creating it
// with the default starting chip allotment if absent. Creation races are
// resolved by re-reading after a unique-key failure, so concurrent first
// reads all observe the same row.
func GetOrCreateAccount(ctx context.Context, db *gorm.DB, accountID string, defaultChips int64) (*domain.Account, error) {
	var acc domain.Account
	err := db.WithContext(ctx).First(&acc, "id = ?", accountID).Error
	if err == nil {
		return &acc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	acc = domain.Account{
		ID:             accountID,
		Chips:          defaultChips,
		TokenBalance:   decimal.Zero,
		LifetimeEarned: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if cerr := db.WithContext(ctx).Create(&acc).Error; cerr != nil {
		// Lost a creation race; the row exists now.
		if rerr := db.WithContext(ctx).First(&acc, "id = ?", accountID).Error; rerr == nil {
			return &acc, nil
		}
		return nil, cerr
	}
	return &acc, nil
}

// AccountDelta describes one signed ledger commit against an account row
// previously read by the caller. CycleStart, when non-nil, stamps the 24h
// chip-cycle anchor in the same commit; ClearCycle resets it (used by the
// daily re-grant).
type AccountDelta struct {
	Chips      int64
	Tokens     decimal.Decimal
	Earned     decimal.Decimal // added to lifetime_earned; never negative
	CycleStart *time.Time
	ClearCycle bool
}

// ApplyDelta atomically applies d to the account snapshot acc. The UPDATE
// is guarded by the version the caller read; zero rows affected means a
// concurrent writer got there first and ErrStaleVersion is returned.
// On success the updated snapshot is returned; acc itself is not mutated.
func ApplyDelta(ctx context.Context, db *gorm.DB, acc *domain.Account, d AccountDelta) (*domain.Account, error) {
	newChips := acc.Chips + d.Chips
	newTokens := acc.TokenBalance.Add(d.Tokens)
	if newChips < 0 || newTokens.IsNegative() {
		return nil, ErrNegativeBalance
	}
	newEarned := acc.LifetimeEarned.Add(d.Earned)

	now := time.Now().UTC()
	updates := map[string]any{
		"chips":           newChips,
		"token_balance":   newTokens,
		"lifetime_earned": newEarned,
		"version":         acc.Version + 1,
		"updated_at":      now,
	}
	if d.CycleStart != nil {
		updates["cycle_started_at"] = *d.CycleStart
	}
	if d.ClearCycle {
		updates["cycle_started_at"] = nil
	}

	res := db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ? AND version = ?", acc.ID, acc.Version).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrStaleVersion
	}

	out := *acc
	out.Chips = newChips
	out.TokenBalance = newTokens
	out.LifetimeEarned = newEarned
	out.Version = acc.Version + 1
	out.UpdatedAt = now
	if d.CycleStart != nil {
		t := *d.CycleStart
		out.CycleStartedAt = &t
	}
	if d.ClearCycle {
		out.CycleStartedAt = nil
	}
	return &out, nil
}

// ListDueCycleAccounts returns accounts whose chip cycle opened at or
// before cutoff, i.e. accounts due for the daily chip re-grant.
func ListDueCycleAccounts(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Account, error) {
	var out []domain.Account
	q := db.WithContext(ctx).
		Where("cycle_started_at IS NOT NULL AND cycle_started_at <= ?", cutoff).
		Order("cycle_started_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
