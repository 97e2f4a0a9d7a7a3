// Package services – SessionService
//
// This file implements the game-session state machine: Idle (no open
// row), Active, Paused, Ended. Starting a session is itself a balance
// mutation — one chip spent through the executor — so it inherits the
// executor's idempotency, locking, and rate-limit guarantees; if the
// spend fails, no session is created and the executor's error propagates.
//
// Session transitions for one (account, game) pair are serialized under a
// session-scoped guard key, separate from the executor's account key so
// the nested spend does not self-deadlock. lose_life mutates shared state
// and therefore runs under that lock like any balance mutation.
package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/retroplay/arcade-backend/internal/domain"
	"github.com/retroplay/arcade-backend/internal/guard"
	"github.com/retroplay/arcade-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SessionService owns the lifecycle of game sessions.
type SessionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Exec performs the chip spend that opens a session.
	Exec *Executor
	// Guard serializes transitions per (account, game) pair.
	Guard *guard.Guard

	// LivesPerChip is the number of lives a session starts with.
	LivesPerChip int
}

// sessionKey scopes the guard to one (account, game) pair without
// colliding with the executor's account-level key.
func sessionKey(accountID, gameType string) string {
	return "session:" + accountID + ":" + gameType
}

// StartSession opens a session for (accountID, gameType), spending one
// chip through the executor. When an open session already exists it is
// returned with resumed=true and no chip is spent. Executor failures
// (insufficient funds, lock contention) propagate unchanged and leave no
// session behind.
func (s *SessionService) StartSession(ctx context.Context, accountID, gameType, requestRef string) (*domain.GameSession, bool, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "StartSession",
		trace.WithAttributes(
			attribute.String("account.id", accountID),
			attribute.String("game.type", gameType),
		),
	)
	defer span.End()

	gameType = strings.TrimSpace(gameType)
	if accountID == "" || gameType == "" || requestRef == "" {
		return nil, false, ErrInvalidRequest
	}

	h, acquired := s.Guard.TryAcquire(sessionKey(accountID, gameType))
	if !acquired {
		return nil, false, ErrOperationLocked
	}
	defer s.Guard.Release(h)

	// At most one open session per (account, game_type).
	if existing, err := repo.GetOpenSession(ctx, s.DB, accountID, gameType); err == nil {
		return existing, true, nil
	}

	if _, err := s.Exec.Execute(ctx, OperationRequest{
		AccountID:  accountID,
		Type:       domain.OpSpendChip,
		Amount:     1,
		RequestRef: requestRef,
		GameType:   gameType,
	}); err != nil {
		return nil, false, err
	}

	sess, err := repo.CreateSession(ctx, s.DB, accountID, gameType, s.livesPerChip())
	if err != nil {
		return nil, false, err
	}
	return sess, false, nil
}

// LoseLife decrements the session's lives. Valid only from Active; when
// the last life goes, the session transitions to Ended in the same write.
// Returns the remaining lives and whether the session just ended.
func (s *SessionService) LoseLife(ctx context.Context, sessionID string) (int, bool, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "LoseLife",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	sess, release, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return 0, false, err
	}
	defer release()

	if sess.Ended() || sess.IsPaused {
		return 0, false, ErrInvalidState
	}

	now := time.Now().UTC()
	sess.LivesRemaining--
	sess.LastActivity = now
	ended := sess.LivesRemaining <= 0
	if ended {
		sess.EndedAt = &now
	}
	if err := repo.SaveSession(ctx, s.DB, sess); err != nil {
		return 0, false, err
	}
	return sess.LivesRemaining, ended, nil
}

// Pause transitions Active -> Paused. No balance effect.
func (s *SessionService) Pause(ctx context.Context, sessionID string) error {
	return s.setPaused(ctx, sessionID, true)
}

// Resume transitions Paused -> Active. No balance effect.
func (s *SessionService) Resume(ctx context.Context, sessionID string) error {
	return s.setPaused(ctx, sessionID, false)
}

// EndSession records the final score and closes the session. Valid from
// Active or Paused.
func (s *SessionService) EndSession(ctx context.Context, sessionID string, finalScore int64) error {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "EndSession",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	sess, release, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if sess.Ended() {
		return ErrInvalidState
	}

	now := time.Now().UTC()
	sess.Score = finalScore
	sess.IsPaused = false
	sess.LastActivity = now
	sess.EndedAt = &now
	return repo.SaveSession(ctx, s.DB, sess)
}

// GetSession fetches a session by ID.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*domain.GameSession, error) {
	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		if err == repo.ErrNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// setPaused flips the pause flag, enforcing Active<->Paused only.
func (s *SessionService) setPaused(ctx context.Context, sessionID string, paused bool) error {
	sess, release, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if sess.Ended() || sess.IsPaused == paused {
		return ErrInvalidState
	}

	sess.IsPaused = paused
	sess.LastActivity = time.Now().UTC()
	return repo.SaveSession(ctx, s.DB, sess)
}

// lockSession loads the session and takes its (account, game) guard.
// The returned release function must be called once.
func (s *SessionService) lockSession(ctx context.Context, sessionID string) (*domain.GameSession, func(), error) {
	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		if err == repo.ErrNotFound {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}

	h, acquired := s.Guard.TryAcquire(sessionKey(sess.AccountID, sess.GameType))
	if !acquired {
		return nil, nil, ErrOperationLocked
	}

	// Re-read under the lock so the transition starts from committed state.
	sess, err = repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		s.Guard.Release(h)
		if err == repo.ErrNotFound {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}
	return sess, func() { s.Guard.Release(h) }, nil
}

func (s *SessionService) livesPerChip() int {
	if s.LivesPerChip > 0 {
		return s.LivesPerChip
	}
	return 3
}
