package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/retroplay/arcade-backend/internal/domain"
)

func newAdminService(t *testing.T, dbName string) *AdminService {
	t.Helper()
	e := newExecutor(t, dbName)
	return &AdminService{DB: e.DB, Exec: e}
}

func latestAudit(t *testing.T, s *AdminService) domain.AuditEntry {
	t.Helper()
	var e domain.AuditEntry
	if err := s.DB.Order("created_at desc").First(&e).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	return e
}

func TestGrantChips_AppliedAndAudited(t *testing.T) {
	s := newAdminService(t, "admin_grant")
	ctx := context.Background()

	res, err := s.GrantChips(ctx, "admin-1", "p1", 10, "grant-1")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	// Target is created lazily with the default allotment, then credited.
	if res.PreviousChips != 5 || res.NewChips != 15 {
		t.Fatalf("unexpected result: %+v", res)
	}

	e := latestAudit(t, s)
	if e.ActorID != "admin-1" || e.TargetID != "p1" || e.Action != "grant_chips" {
		t.Fatalf("unexpected audit entry: %+v", e)
	}
	if e.Outcome != domain.AuditApplied || e.Amount != 10 {
		t.Fatalf("unexpected audit outcome: %+v", e)
	}
	if e.PreviousChips != 5 || e.NewChips != 15 {
		t.Fatalf("audit balances mismatch: %+v", e)
	}
}

func TestGrantChips_ReplayAudited(t *testing.T) {
	s := newAdminService(t, "admin_replay")
	ctx := context.Background()

	if _, err := s.GrantChips(ctx, "admin-1", "p1", 10, "grant-1"); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	res, err := s.GrantChips(ctx, "admin-1", "p1", 10, "grant-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.Replayed {
		t.Fatalf("expected replayed result")
	}

	// The chips landed once, the audit trail shows both attempts.
	var acc domain.Account
	s.DB.First(&acc, "id = ?", "p1")
	if acc.Chips != 15 {
		t.Fatalf("chips = %d, want 15", acc.Chips)
	}
	var count int64
	s.DB.Model(&domain.AuditEntry{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 audit entries, got %d", count)
	}
	if e := latestAudit(t, s); e.Outcome != domain.AuditReplayed {
		t.Fatalf("expected replayed outcome, got %q", e.Outcome)
	}
}

func TestGrantChips_NonPositive_RejectedAndAudited(t *testing.T) {
	s := newAdminService(t, "admin_reject")
	ctx := context.Background()

	for _, amount := range []int64{0, -5} {
		if _, err := s.GrantChips(ctx, "admin-1", "p1", amount, "bad-grant"); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("amount %d: expected ErrInvalidRequest, got %v", amount, err)
		}
	}

	var count int64
	s.DB.Model(&domain.AuditEntry{}).Where("outcome = ?", domain.AuditRejected).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 rejected audit entries, got %d", count)
	}

	// The rejection never touched the ledger.
	var accCount int64
	s.DB.Model(&domain.Account{}).Count(&accCount)
	if accCount != 0 {
		t.Fatalf("rejected grant must not create the account")
	}
}

func TestGrantChips_ExecutorFailure_Audited(t *testing.T) {
	s := newAdminService(t, "admin_exec_fail")
	ctx := context.Background()

	// Hold the target's lock so the executor rejects with operation_locked.
	h, _ := s.Exec.Guard.TryAcquire("p1")
	defer s.Exec.Guard.Release(h)

	if _, err := s.GrantChips(ctx, "admin-1", "p1", 5, "grant-locked"); !errors.Is(err, ErrOperationLocked) {
		t.Fatalf("expected ErrOperationLocked, got %v", err)
	}
	e := latestAudit(t, s)
	if e.Outcome != domain.AuditRejected || e.Detail == "" {
		t.Fatalf("executor failure should be audited with detail: %+v", e)
	}
}

func TestGrantTokens_AppliedAndAudited(t *testing.T) {
	s := newAdminService(t, "admin_tokens")
	ctx := context.Background()

	res, err := s.GrantTokens(ctx, "admin-1", "p1", decimal.RequireFromString("25.5"), "tok-grant-1")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !res.NewTokens.Equal(decimal.RequireFromString("25.5")) {
		t.Fatalf("new tokens = %s", res.NewTokens)
	}
	if e := latestAudit(t, s); e.Action != "grant_tokens" || e.Outcome != domain.AuditApplied {
		t.Fatalf("unexpected audit entry: %+v", e)
	}

	// Non-positive token grants are rejected and audited.
	if _, err := s.GrantTokens(ctx, "admin-1", "p1", decimal.Zero, "tok-grant-2"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if e := latestAudit(t, s); e.Outcome != domain.AuditRejected {
		t.Fatalf("expected rejected outcome, got %q", e.Outcome)
	}
}

func TestListAuditPage(t *testing.T) {
	s := newAdminService(t, "admin_audit_page")
	ctx := context.Background()

	// Empty trail short-circuits.
	items, total, err := s.ListAuditPage(ctx, 1, 20)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("empty page mismatch: %d %d %v", len(items), total, err)
	}

	for i := 0; i < 5; i++ {
		if _, err := s.GrantChips(ctx, "admin-1", "p1", int64(i+1), ""); err == nil {
			t.Fatalf("blank ref should be rejected by the executor")
		}
	}

	items, total, err = s.ListAuditPage(ctx, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(items) != 2 {
		t.Fatalf("page mismatch: total=%d len=%d", total, len(items))
	}

	// Defaults kick in for out-of-range arguments.
	items, total, err = s.ListAuditPage(ctx, 0, 0)
	if err != nil {
		t.Fatalf("list defaults: %v", err)
	}
	if total != 5 || len(items) != 5 {
		t.Fatalf("default page mismatch: total=%d len=%d", total, len(items))
	}
}
