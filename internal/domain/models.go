// Package domain defines the persistence models for account balances,
// game sessions, and the admin audit trail. These types are mapped with
// GORM and form the core data layer of the balance engine.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents the balance row for one player account. Rows are
// created lazily on first read or mutation with the configured starting
// chip allotment and are never deleted.
//
// Fields:
//   - ID: stable account identifier resolved by the external identity layer.
//   - Chips: consumable play credits; never negative at a committed state.
//   - TokenBalance: transferable reward balance (decimal); never negative.
//   - LifetimeEarned: monotonically non-decreasing sum of all grants,
//     kept for audit/statistics only.
//   - Version: optimistic-concurrency witness; every committed mutation
//     increments it, and commits carry the version they read.
//   - CycleStartedAt: timestamp of the first chip spent in the current
//     24h cycle; nil when no cycle is open. Anchors the daily chip reset.
type Account struct {
	ID             string          `json:"account_id" gorm:"type:varchar(64);primaryKey"`
	Chips          int64           `json:"chips"            gorm:"not null;default:0;check:chips >= 0"`
	TokenBalance   decimal.Decimal `json:"token_balance"    gorm:"type:NUMERIC;not null;default:0"`
	LifetimeEarned decimal.Decimal `json:"lifetime_earned"  gorm:"type:NUMERIC;not null;default:0"`
	Version        int64           `json:"-"                gorm:"not null;default:0"`
	CycleStartedAt *time.Time      `json:"-"                gorm:"index"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Account.
func (Account) TableName() string { return "accounts" }

// GameSession tracks live-play state for one (account, game) pair: lives,
// pause state, and score. At most one session per (account, game_type) may
// be open (ended_at IS NULL); the service layer enforces this under the
// per-account lock since SQLite cannot express the partial unique index.
//
// Lifecycle: created Active by start (which spends one chip through the
// executor), toggled Active<->Paused, and closed either explicitly or by
// lives exhaustion in the same transition that drops lives to zero.
type GameSession struct {
	ID             string     `json:"session_id"      gorm:"type:char(36);primaryKey"`
	AccountID      string     `json:"account_id"      gorm:"type:varchar(64);not null;index:idx_account_game,priority:1"`
	GameType       string     `json:"game_type"       gorm:"type:varchar(32);not null;index:idx_account_game,priority:2"`
	SessionToken   string     `json:"session_token"   gorm:"type:char(36);not null;uniqueIndex"`
	LivesRemaining int        `json:"lives_remaining" gorm:"not null;check:lives_remaining >= 0"`
	IsPaused       bool       `json:"is_paused"       gorm:"not null;default:false"`
	ChipConsumed   bool       `json:"chip_consumed"   gorm:"not null;default:false"`
	Score          int64      `json:"score"           gorm:"not null;default:0"`
	StartedAt      time.Time  `json:"session_start"`
	LastActivity   time.Time  `json:"last_activity"`
	EndedAt        *time.Time `json:"session_end,omitempty" gorm:"index"`
}

// TableName returns the database table name for GameSession.
func (GameSession) TableName() string { return "game_sessions" }

// Ended reports whether the session has been closed.
func (s *GameSession) Ended() bool { return s.EndedAt != nil }

// AuditEntry is one append-only record of a privileged operation attempt.
// Entries are written for failed attempts as well, so rejected admin calls
// remain visible for security review. Rows are never updated or deleted.
type AuditEntry struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	ActorID       string    `json:"actor_id"       gorm:"type:varchar(64);not null;index"`
	TargetID      string    `json:"target_id"      gorm:"type:varchar(64);not null;index"`
	Action        string    `json:"action"         gorm:"type:varchar(32);not null"`
	RequestRef    string    `json:"request_ref"    gorm:"type:varchar(200);not null;index"`
	Amount        int64     `json:"amount"         gorm:"not null;default:0"`
	PreviousChips int64     `json:"previous_chips" gorm:"not null;default:0"`
	NewChips      int64     `json:"new_chips"      gorm:"not null;default:0"`
	Outcome       string    `json:"outcome"        gorm:"type:varchar(16);not null;check:outcome IN ('applied','replayed','rejected')"`
	Detail        string    `json:"detail"         gorm:"type:varchar(255);not null;default:''"`
	CreatedAt     time.Time `json:"created_at"     gorm:"index"`
	UpdatedAt     time.Time `json:"-"`
}

// TableName returns the database table name for AuditEntry.
func (AuditEntry) TableName() string { return "audit_entries" }

// Audit outcome values.
const (
	AuditApplied  = "applied"
	AuditReplayed = "replayed"
	AuditRejected = "rejected"
)
