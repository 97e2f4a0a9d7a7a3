// Package services – ResetService
//
// This file implements the 24-hour chip reset. The window is rolling: it
// opens when the account spends its first chip of a cycle (the executor
// stamps cycle_started_at in that commit) and, once 24 hours elapse, the
// account's chips are topped back up to the daily default.
//
// The top-up is an ordinary grant_chip through the executor — subject to
// the same idempotency and locking guarantees as any mutation, never a
// silent overwrite. Its request_ref is derived from the account and the
// cycle anchor, so a re-run of the job after a crash replays instead of
// double-granting.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/retroplay/arcade-backend/internal/domain"
	"github.com/retroplay/arcade-backend/internal/guard"
	"github.com/retroplay/arcade-backend/internal/repo"
)

// CycleLength is the rolling chip-reset window, anchored on the first
// chip spent in the cycle rather than a wall-clock schedule.
const CycleLength = 24 * time.Hour

// ResetService re-grants chips for accounts whose cycle has elapsed.
type ResetService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Exec applies the re-grant like any other balance mutation.
	Exec *Executor
	// Guard is used for the anchor-clear path that grants nothing.
	Guard *guard.Guard

	// DailyChips is the allotment accounts are restored to.
	DailyChips int64
	// BatchLimit bounds accounts processed per run; <= 0 means no bound.
	BatchLimit int
}

// RunDue processes all accounts whose chip cycle opened CycleLength ago
// or earlier. Accounts already at or above the daily default get no grant,
// only a cleared anchor. Per-account failures are logged and skipped so
// one wedged account cannot stall the rest; the next run retries them.
// Returns the number of accounts brought up to the daily default.
func (s *ResetService) RunDue(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-CycleLength)
	due, err := repo.ListDueCycleAccounts(ctx, s.DB, cutoff, s.BatchLimit)
	if err != nil {
		return 0, err
	}

	granted := 0
	for i := range due {
		acc := &due[i]
		if err := s.resetAccount(ctx, acc); err != nil {
			log.Warn().
				Err(err).
				Str("account_id", acc.ID).
				Msg("chip reset skipped")
			continue
		}
		granted++
	}
	return granted, nil
}

// resetAccount tops one account up to the daily default and closes its
// cycle.
func (s *ResetService) resetAccount(ctx context.Context, acc *domain.Account) error {
	topup := s.DailyChips - acc.Chips
	if topup > 0 {
		ref := fmt.Sprintf("chip-reset:%s:%d", acc.ID, acc.CycleStartedAt.Unix())
		_, err := s.Exec.Execute(ctx, OperationRequest{
			AccountID:  acc.ID,
			Type:       domain.OpGrantChip,
			Amount:     topup,
			RequestRef: ref,
			ResetCycle: true,
		})
		return err
	}

	// Nothing to grant; just close the cycle, under the account lock.
	h, acquired := s.Guard.TryAcquire(acc.ID)
	if !acquired {
		return ErrOperationLocked
	}
	defer s.Guard.Release(h)

	_, err := repo.ApplyDelta(ctx, s.DB, acc, repo.AccountDelta{ClearCycle: true})
	if err == repo.ErrStaleVersion {
		// A concurrent mutation moved the row; the next run re-evaluates.
		return ErrVersionConflict
	}
	return err
}
