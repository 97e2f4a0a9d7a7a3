// Package services – AdminService
//
// This file implements the privileged operation path: administrator
// grants routed through the same executor as player mutations, plus the
// append-only audit trail. Every attempt is audited — including ones that
// fail validation or are rejected by the executor — so failed admin calls
// stay visible for security review.
package services

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/retroplay/arcade-backend/internal/domain"
	"github.com/retroplay/arcade-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit action names.
const (
	actionGrantChips  = "grant_chips"
	actionGrantTokens = "grant_tokens"
)

// AdminService executes privileged grants and records the audit trail.
type AdminService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Exec applies the grant like any other balance mutation.
	Exec *Executor
}

// GrantChips additively grants amount chips to targetID on behalf of
// actorID. Additive only: non-positive amounts are rejected (and audited).
// Replays of the same request_ref return the recorded outcome and are
// audited as replayed.
func (s *AdminService) GrantChips(ctx context.Context, actorID, targetID string, amount int64, requestRef string) (*OperationResult, error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "GrantChips",
		trace.WithAttributes(
			attribute.String("actor.id", actorID),
			attribute.String("target.id", targetID),
			attribute.Int64("amount", amount),
		),
	)
	defer span.End()

	entry := &domain.AuditEntry{
		ActorID:    actorID,
		TargetID:   targetID,
		Action:     actionGrantChips,
		RequestRef: requestRef,
		Amount:     amount,
	}

	if amount <= 0 {
		entry.Outcome = domain.AuditRejected
		entry.Detail = ErrInvalidRequest.Error()
		_, _ = repo.AppendAudit(ctx, s.DB, entry)
		return nil, ErrInvalidRequest
	}

	res, err := s.Exec.Execute(ctx, OperationRequest{
		AccountID:  targetID,
		Type:       domain.OpGrantChip,
		Amount:     amount,
		RequestRef: requestRef,
	})
	if err != nil {
		entry.Outcome = domain.AuditRejected
		entry.Detail = err.Error()
		_, _ = repo.AppendAudit(ctx, s.DB, entry)
		return nil, err
	}

	entry.PreviousChips = res.PreviousChips
	entry.NewChips = res.NewChips
	entry.Outcome = domain.AuditApplied
	if res.Replayed {
		entry.Outcome = domain.AuditReplayed
	}
	_, _ = repo.AppendAudit(ctx, s.DB, entry)
	return res, nil
}

// GrantTokens additively grants a token amount to targetID on behalf of
// actorID, with the same audit semantics as GrantChips.
func (s *AdminService) GrantTokens(ctx context.Context, actorID, targetID string, amount decimal.Decimal, requestRef string) (*OperationResult, error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "GrantTokens",
		trace.WithAttributes(
			attribute.String("actor.id", actorID),
			attribute.String("target.id", targetID),
		),
	)
	defer span.End()

	entry := &domain.AuditEntry{
		ActorID:    actorID,
		TargetID:   targetID,
		Action:     actionGrantTokens,
		RequestRef: requestRef,
	}

	if !amount.IsPositive() {
		entry.Outcome = domain.AuditRejected
		entry.Detail = ErrInvalidRequest.Error()
		_, _ = repo.AppendAudit(ctx, s.DB, entry)
		return nil, ErrInvalidRequest
	}

	res, err := s.Exec.Execute(ctx, OperationRequest{
		AccountID:   targetID,
		Type:        domain.OpGrantToken,
		TokenAmount: amount,
		RequestRef:  requestRef,
	})
	if err != nil {
		entry.Outcome = domain.AuditRejected
		entry.Detail = err.Error()
		_, _ = repo.AppendAudit(ctx, s.DB, entry)
		return nil, err
	}

	entry.Outcome = domain.AuditApplied
	if res.Replayed {
		entry.Outcome = domain.AuditReplayed
	}
	_, _ = repo.AppendAudit(ctx, s.DB, entry)
	return res, nil
}

// ListAuditPage returns a page of audit entries (newest first) and the
// total count.
func (s *AdminService) ListAuditPage(ctx context.Context, page, pageSize int) ([]domain.AuditEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountAudit(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.AuditEntry{}, 0, nil
	}

	items, err := repo.ListAuditPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}
