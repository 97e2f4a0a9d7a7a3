// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// OperationRecord model used to implement idempotent replay of balance
// mutations.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/retroplay/arcade-backend/internal/domain"
)

// ErrDuplicate indicates that an operation record already exists for the
// given request_ref.
var ErrDuplicate = errors.New("duplicate")

// GetOperation returns a non-expired record for requestRef or ErrNotFound.
func GetOperation(ctx context.Context, db *gorm.DB, requestRef string, now time.Time) (*domain.OperationRecord, error) {
	if strings.TrimSpace(requestRef) == "" {
		return nil, ErrNotFound
	}
	var rec domain.OperationRecord
	err := db.WithContext(ctx).
		Where("request_ref = ? AND expires_at > ?", requestRef, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &rec, err
}

// CreateOperation inserts a record and returns ErrDuplicate on unique violation.
func CreateOperation(ctx context.Context, db *gorm.DB, rec *domain.OperationRecord) error {
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// DeleteExpiredOperations removes dedupe records whose retention window has
// passed. Returns the number of rows deleted.
func DeleteExpiredOperations(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.OperationRecord{})
	return res.RowsAffected, res.Error
}
