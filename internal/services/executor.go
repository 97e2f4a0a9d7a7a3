// Package services – Executor
//
// This file implements the atomic operation executor, the single entry
// point through which every balance mutation passes: player chip spends,
// session-driven spends, token movements, daily re-grants, and admin
// grants are all variants of the same OperationType set, so there is one
// code path and one idempotency/locking mechanism.
//
// Execution order for a new request_ref:
//  1. shape validation
//  2. replay fast-path (recorded outcome returned verbatim)
//  3. per-account lock acquisition (non-blocking; contenders fail fast)
//  4. authoritative replay re-check under the lock
//  5. ledger read, delta computation, version-checked commit + outcome
//     record in one transaction (all-or-nothing)
//  6. cache invalidation, lock release
//
// Observability: Execute is OpenTelemetry-instrumented and feeds the
// operations_total Prometheus counter by type and outcome.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/retroplay/arcade-backend/internal/cache"
	"github.com/retroplay/arcade-backend/internal/domain"
	"github.com/retroplay/arcade-backend/internal/guard"
	"github.com/retroplay/arcade-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// opsTotal counts executed operations by type and outcome. Outcomes:
// applied, replayed, rejected, locked, error.
var opsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "operations_total",
		Help: "Total number of balance operations by type and outcome.",
	},
	[]string{"type", "outcome"},
)

func init() {
	prometheus.MustRegister(opsTotal)
}

// OperationRequest describes one balance mutation attempt. Amount carries
// chip deltas, TokenAmount token deltas; exactly one is meaningful per
// operation type and both are always positive (the type carries the
// direction).
type OperationRequest struct {
	AccountID   string
	Type        domain.OperationType
	Amount      int64
	TokenAmount decimal.Decimal
	RequestRef  string
	GameType    string

	// ResetCycle clears the 24h chip-cycle anchor in the same commit.
	// Set only by the daily chip re-grant.
	ResetCycle bool
}

// OperationResult is the outcome of an executed (or replayed) operation.
type OperationResult struct {
	RequestRef     string               `json:"request_ref"`
	Type           domain.OperationType `json:"operation_type"`
	Amount         int64                `json:"amount,omitempty"`
	TokenAmount    decimal.Decimal      `json:"token_amount,omitempty"`
	PreviousChips  int64                `json:"previous_chips"`
	NewChips       int64                `json:"new_chips"`
	PreviousTokens decimal.Decimal      `json:"previous_tokens"`
	NewTokens      decimal.Decimal      `json:"new_tokens"`
	Replayed       bool                 `json:"replayed"`
}

// Executor is the single choke-point for balance mutations. It composes
// the per-account lock guard, the dedupe table, and the ledger store.
type Executor struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Guard serializes mutations per account.
	Guard *guard.Guard
	// Cache, when set, is invalidated for the account after every commit.
	Cache *cache.BalanceCache

	// DefaultChips is the starting allotment for lazily created accounts.
	DefaultChips int64
	// RecordTTL bounds retention of dedupe records.
	RecordTTL time.Duration
}

// Execute validates, deduplicates, serializes, and commits one balance
// mutation.
//
// Guarantees:
//   - For a fixed request_ref, repeated calls yield the same
//     OperationResult and exactly one balance delta is ever applied.
//   - Concurrent distinct requests against one account are serialized by
//     the lock; contenders receive ErrOperationLocked rather than queueing.
//   - chips >= 0 and token_balance >= 0 hold at every committed state;
//     violations fail with ErrInsufficientFunds and commit nothing.
func (e *Executor) Execute(ctx context.Context, req OperationRequest) (*OperationResult, error) {
	tr := otel.Tracer("services/Executor")
	ctx, span := tr.Start(ctx, "Execute",
		trace.WithAttributes(
			attribute.String("account.id", req.AccountID),
			attribute.String("operation.type", string(req.Type)),
			attribute.String("operation.ref", req.RequestRef),
		),
	)
	defer span.End()

	if err := validate(req); err != nil {
		opsTotal.WithLabelValues(string(req.Type), "rejected").Inc()
		return nil, err
	}

	now := time.Now().UTC()

	// Replay fast-path: answer retried requests without taking the lock.
	if rec, err := repo.GetOperation(ctx, e.DB, req.RequestRef, now); err == nil {
		opsTotal.WithLabelValues(string(rec.Type), "replayed").Inc()
		return resultFromRecord(rec), nil
	}

	h, acquired := e.Guard.TryAcquire(req.AccountID)
	if !acquired {
		opsTotal.WithLabelValues(string(req.Type), "locked").Inc()
		return nil, ErrOperationLocked
	}
	defer e.Guard.Release(h)

	// Authoritative re-check under the lock: a retry that lost the replay
	// race above must not re-apply the delta once the original holder has
	// committed and released.
	if rec, err := repo.GetOperation(ctx, e.DB, req.RequestRef, now); err == nil {
		opsTotal.WithLabelValues(string(rec.Type), "replayed").Inc()
		return resultFromRecord(rec), nil
	}

	acc, err := repo.GetOrCreateAccount(ctx, e.DB, req.AccountID, e.DefaultChips)
	if err != nil {
		opsTotal.WithLabelValues(string(req.Type), "error").Inc()
		return nil, err
	}

	delta := e.buildDelta(req, acc, now)

	// Pre-check before opening the transaction so precondition failures
	// stay cheap; ApplyDelta re-checks inside the transaction.
	if acc.Chips+delta.Chips < 0 || acc.TokenBalance.Add(delta.Tokens).IsNegative() {
		opsTotal.WithLabelValues(string(req.Type), "rejected").Inc()
		return nil, ErrInsufficientFunds
	}

	var updated *domain.Account
	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		updated, txErr = repo.ApplyDelta(ctx, tx, acc, delta)
		if txErr != nil {
			return txErr
		}
		rec := &domain.OperationRecord{
			ID:             uuid.NewString(),
			RequestRef:     req.RequestRef,
			AccountID:      req.AccountID,
			Type:           req.Type,
			GameType:       req.GameType,
			Amount:         req.Amount,
			TokenAmount:    req.TokenAmount,
			PreviousChips:  acc.Chips,
			NewChips:       updated.Chips,
			PreviousTokens: acc.TokenBalance,
			NewTokens:      updated.TokenBalance,
			CreatedAt:      now,
			ExpiresAt:      now.Add(e.recordTTL()),
		}
		return repo.CreateOperation(ctx, tx, rec)
	})
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrNegativeBalance):
			opsTotal.WithLabelValues(string(req.Type), "rejected").Inc()
			return nil, ErrInsufficientFunds
		case errors.Is(err, repo.ErrStaleVersion):
			opsTotal.WithLabelValues(string(req.Type), "error").Inc()
			return nil, ErrVersionConflict
		case errors.Is(err, repo.ErrDuplicate):
			// The ref landed between re-check and commit; the transaction
			// rolled back, so serve the recorded outcome.
			if rec, gerr := repo.GetOperation(ctx, e.DB, req.RequestRef, now); gerr == nil {
				opsTotal.WithLabelValues(string(req.Type), "replayed").Inc()
				return resultFromRecord(rec), nil
			}
			opsTotal.WithLabelValues(string(req.Type), "error").Inc()
			return nil, err
		default:
			opsTotal.WithLabelValues(string(req.Type), "error").Inc()
			return nil, err
		}
	}

	if e.Cache != nil {
		e.Cache.Invalidate(req.AccountID)
	}

	opsTotal.WithLabelValues(string(req.Type), "applied").Inc()
	return &OperationResult{
		RequestRef:     req.RequestRef,
		Type:           req.Type,
		Amount:         req.Amount,
		TokenAmount:    req.TokenAmount,
		PreviousChips:  acc.Chips,
		NewChips:       updated.Chips,
		PreviousTokens: acc.TokenBalance,
		NewTokens:      updated.TokenBalance,
	}, nil
}

// buildDelta translates a validated request into a signed ledger delta.
// The first chip spend of a cycle stamps the 24h reset anchor in the same
// commit; token grants feed lifetime_earned.
func (e *Executor) buildDelta(req OperationRequest, acc *domain.Account, now time.Time) repo.AccountDelta {
	d := repo.AccountDelta{
		Tokens: decimal.Zero,
		Earned: decimal.Zero,
	}
	switch req.Type {
	case domain.OpSpendChip:
		d.Chips = -req.Amount
		if acc.CycleStartedAt == nil {
			t := now
			d.CycleStart = &t
		}
	case domain.OpGrantChip:
		d.Chips = req.Amount
	case domain.OpSpendToken:
		d.Tokens = req.TokenAmount.Neg()
	case domain.OpGrantToken:
		d.Tokens = req.TokenAmount
		d.Earned = req.TokenAmount
	}
	if req.ResetCycle {
		d.ClearCycle = true
	}
	return d
}

func (e *Executor) recordTTL() time.Duration {
	if e.RecordTTL > 0 {
		return e.RecordTTL
	}
	return 24 * time.Hour
}

// validate checks the request shape: known type, present ref, and an
// amount of the right kind and sign for the operation type.
func validate(req OperationRequest) error {
	if req.AccountID == "" || req.RequestRef == "" || !req.Type.Valid() {
		return ErrInvalidRequest
	}
	if req.Type.Chip() {
		if req.Amount <= 0 || !req.TokenAmount.IsZero() {
			return ErrInvalidRequest
		}
		return nil
	}
	if req.Amount != 0 || !req.TokenAmount.IsPositive() {
		return ErrInvalidRequest
	}
	return nil
}

// resultFromRecord rebuilds the original response from a dedupe record so
// replays are answered verbatim.
func resultFromRecord(rec *domain.OperationRecord) *OperationResult {
	return &OperationResult{
		RequestRef:     rec.RequestRef,
		Type:           rec.Type,
		Amount:         rec.Amount,
		TokenAmount:    rec.TokenAmount,
		PreviousChips:  rec.PreviousChips,
		NewChips:       rec.NewChips,
		PreviousTokens: rec.PreviousTokens,
		NewTokens:      rec.NewTokens,
		Replayed:       true,
	}
}
