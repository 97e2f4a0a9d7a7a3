// Balance-engine HTTP handlers.
//
// This file declares the service contracts consumed by the HTTP layer and
// the Handlers aggregate that binds them. Handlers are transport-thin: they
// validate input, call application services, and translate results (and
// sentinel errors) into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/retroplay/arcade-backend/internal/domain"
	"github.com/retroplay/arcade-backend/internal/services"
	"github.com/retroplay/arcade-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// BalanceService defines the cached balance read path.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type BalanceService interface {
	// GetBalance returns the account's balance, creating the default row on
	// first read.
	GetBalance(ctx context.Context, accountID string) (*domain.Account, error)
}

// OperationService defines the single entry point for balance mutations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type OperationService interface {
	// Execute applies one operation atomically, or replays its recorded
	// outcome when the request_ref was seen before.
	Execute(ctx context.Context, req services.OperationRequest) (*services.OperationResult, error)
}

// SessionService defines game-session lifecycle operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SessionService interface {
	// StartSession opens (or resumes) the session for (account, game_type),
	// spending one chip when a new session is created.
	StartSession(ctx context.Context, accountID, gameType, requestRef string) (*domain.GameSession, bool, error)
	// LoseLife decrements lives; the last life ends the session.
	LoseLife(ctx context.Context, sessionID string) (int, bool, error)
	// Pause transitions Active -> Paused.
	Pause(ctx context.Context, sessionID string) error
	// Resume transitions Paused -> Active.
	Resume(ctx context.Context, sessionID string) error
	// EndSession records the final score and closes the session.
	EndSession(ctx context.Context, sessionID string, finalScore int64) error
	// GetSession fetches a session by ID.
	GetSession(ctx context.Context, sessionID string) (*domain.GameSession, error)
}

// AdminService defines the privileged grant path and audit access.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AdminService interface {
	// GrantChips additively grants chips to a target account (audited).
	GrantChips(ctx context.Context, actorID, targetID string, amount int64, requestRef string) (*services.OperationResult, error)
	// GrantTokens additively grants a token amount to a target account (audited).
	GrantTokens(ctx context.Context, actorID, targetID string, amount decimal.Decimal, requestRef string) (*services.OperationResult, error)
	// ListAuditPage returns a page of audit entries and the total count.
	ListAuditPage(ctx context.Context, page, pageSize int) ([]domain.AuditEntry, int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for balances, operations, sessions, and the
// admin surface. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	balSvc   BalanceService
	opSvc    OperationService
	sessSvc  SessionService
	adminSvc AdminService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(balSvc BalanceService, opSvc OperationService, sessSvc SessionService, adminSvc AdminService) *Handlers {
	return &Handlers{balSvc: balSvc, opSvc: opSvc, sessSvc: sessSvc, adminSvc: adminSvc}
}

// accountID extracts the caller's account id from Gin context (set by the
// identity middleware). If absent, it falls back to the "X-Account-ID" header
// (tests use it), and finally to "demo-account". It never touches c.Request
// if it's nil.
func accountID(c *gin.Context) string {
	if v, ok := c.Get("accountID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Account-ID")); h != "" {
			return h
		}
	}
	return "demo-account"
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// failForServiceErr maps service sentinel errors onto the standard envelope.
// Unknown errors become 500 internal_error.
func failForServiceErr(c *gin.Context, err error) {
	switch err {
	case services.ErrInvalidRequest:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request")
	case services.ErrInsufficientFunds:
		fail(c, http.StatusConflict, ErrCodeInsufficientFunds, "insufficient funds")
	case services.ErrOperationLocked:
		c.Header("Retry-After", "1")
		fail(c, http.StatusConflict, ErrCodeOperationLocked, "another operation is in progress for this account")
	case services.ErrVersionConflict:
		fail(c, http.StatusConflict, ErrCodeConflict, "concurrent update detected, retry")
	case services.ErrSessionNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
	case services.ErrInvalidState:
		fail(c, http.StatusConflict, ErrCodeInvalidState, "transition not allowed from the session's current state")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
