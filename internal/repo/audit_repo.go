// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the append-only audit trail for the
// privileged operation path, plus the aggregate query used for conditional
// responses (ETag generation) on the audit list endpoint.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/retroplay/arcade-backend/internal/domain"
)

// AppendAudit inserts one audit entry. Entries are written for rejected
// attempts as well; callers must not skip the append on failure paths.
func AppendAudit(ctx context.Context, db *gorm.DB, e *domain.AuditEntry) (*domain.AuditEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// CountAudit returns the total number of audit entries.
func CountAudit(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.AuditEntry{}).Count(&total).Error
	return total, err
}

// ListAuditPage returns a paginated slice of audit entries, newest first.
// Use CountAudit to obtain the total for pagination metadata.
func ListAuditPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// AuditStats returns aggregate metadata for the audit trail: the total
// number of rows and the greatest CreatedAt among them. When the trail is
// empty, count is 0 and maxCreatedAt is nil.
func AuditStats(ctx context.Context, db *gorm.DB) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.AuditEntry{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
