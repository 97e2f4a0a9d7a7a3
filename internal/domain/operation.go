// Package domain defines the persistence models for the balance engine.
// This file holds the operation (mutation) vocabulary and the recorded
// outcome model used to implement safe-retry semantics for every balance
// mutation: player spends, grants, and admin grants all share the same
// OperationType set so the executor has a single code path.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationType enumerates the balance mutations accepted by the executor.
type OperationType string

// Operation types. Spend variants consume balance, grant variants add to it;
// the request amount is always positive and the type carries the direction.
const (
	OpSpendChip  OperationType = "spend_chip"
	OpGrantChip  OperationType = "grant_chip"
	OpSpendToken OperationType = "spend_token"
	OpGrantToken OperationType = "grant_token"
)

// Valid reports whether t is a known operation type.
func (t OperationType) Valid() bool {
	switch t {
	case OpSpendChip, OpGrantChip, OpSpendToken, OpGrantToken:
		return true
	}
	return false
}

// Chip reports whether the operation moves chips (as opposed to tokens).
func (t OperationType) Chip() bool { return t == OpSpendChip || t == OpGrantChip }

// Spend reports whether the operation consumes balance.
func (t OperationType) Spend() bool { return t == OpSpendChip || t == OpSpendToken }

// OperationRecord is the recorded outcome of a previously applied balance
// mutation, keyed by the caller-supplied request_ref. It enables idempotent
// replay: a retried request with the same ref is answered from this row
// verbatim instead of re-applying the delta.
//
// Records are retained for a bounded window (ExpiresAt) and then
// garbage-collected by the background scheduler.
type OperationRecord struct {
	ID             string          `gorm:"type:char(36);primaryKey"`
	RequestRef     string          `gorm:"type:varchar(200);not null;uniqueIndex:ux_operation_ref"`
	AccountID      string          `gorm:"type:varchar(64);not null;index"`
	Type           OperationType   `gorm:"type:varchar(16);not null;check:type IN ('spend_chip','grant_chip','spend_token','grant_token')"`
	GameType       string          `gorm:"type:varchar(32);not null;default:''"`
	Amount         int64           `gorm:"not null;default:0"`
	TokenAmount    decimal.Decimal `gorm:"type:NUMERIC;not null;default:0"`
	PreviousChips  int64           `gorm:"not null"`
	NewChips       int64           `gorm:"not null"`
	PreviousTokens decimal.Decimal `gorm:"type:NUMERIC;not null;default:0"`
	NewTokens      decimal.Decimal `gorm:"type:NUMERIC;not null;default:0"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
	ExpiresAt      time.Time       `gorm:"not null;index"`
}

// TableName returns the database table name for OperationRecord.
func (OperationRecord) TableName() string { return "operations" }
