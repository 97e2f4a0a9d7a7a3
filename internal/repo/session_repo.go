// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// GameSession model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retroplay/arcade-backend/internal/domain"
)

// CreateSession inserts a new Active session row for (accountID, gameType)
// with the given starting lives. The session ID and client-held session
// token are randomly generated UUIDs.
func CreateSession(ctx context.Context, db *gorm.DB, accountID, gameType string, lives int) (*domain.GameSession, error) {
	now := time.Now().UTC()
	s := &domain.GameSession{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		GameType:       gameType,
		SessionToken:   uuid.NewString(),
		LivesRemaining: lives,
		ChipConsumed:   true,
		StartedAt:      now,
		LastActivity:   now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a session by ID, or ErrNotFound if missing.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.GameSession, error) {
	var s domain.GameSession
	err := db.WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOpenSession returns the single open (ended_at IS NULL) session for
// (accountID, gameType), or ErrNotFound when the account is idle for that
// game.
func GetOpenSession(ctx context.Context, db *gorm.DB, accountID, gameType string) (*domain.GameSession, error) {
	var s domain.GameSession
	err := db.WithContext(ctx).
		Where("account_id = ? AND game_type = ? AND ended_at IS NULL", accountID, gameType).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSession persists the mutable session fields (lives, pause flag,
// score, activity and end timestamps) for an existing row.
func SaveSession(ctx context.Context, db *gorm.DB, s *domain.GameSession) error {
	return db.WithContext(ctx).Model(&domain.GameSession{}).
		Where("id = ?", s.ID).
		Updates(map[string]any{
			"lives_remaining": s.LivesRemaining,
			"is_paused":       s.IsPaused,
			"score":           s.Score,
			"last_activity":   s.LastActivity,
			"ended_at":        s.EndedAt,
		}).Error
}
