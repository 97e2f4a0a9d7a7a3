// Admin HTTP handlers.
//
// This file exposes the privileged surface:
//   - POST /admin/grants   (additive chip or token grant to a target account)
//   - GET  /admin/audit    (paged audit trail, ETag support)
//
// The router gates this group behind the X-Admin-Token check; the handlers
// themselves only shape transport. Every grant attempt is audited by the
// service, including rejected ones.
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/retroplay/arcade-backend/internal/domain"
	"github.com/retroplay/arcade-backend/internal/repo"
	"github.com/retroplay/arcade-backend/internal/services"
)

//
// DTOs
//

// GrantRequest is the JSON payload for an admin grant. Exactly one of
// Amount (chips) or TokenAmount must be positive.
type GrantRequest struct {
	// TargetAccountID receives the grant.
	TargetAccountID string `json:"target_account_id" binding:"required,min=1" example:"player-42"`
	// Amount is the chip count to grant (> 0 for a chip grant).
	Amount int64 `json:"amount" example:"10"`
	// TokenAmount is the decimal token value to grant.
	TokenAmount decimal.Decimal `json:"token_amount" swaggertype:"string" example:"25.5"`
	// RequestRef deduplicates retries; falls back to the Idempotency-Key header.
	RequestRef string `json:"request_ref" example:"support-ticket-8812"`
}

// ListAuditResponse wraps a page of audit entries and pagination information.
type ListAuditResponse struct {
	Entries    []domain.AuditEntry `json:"entries"`
	Pagination Pagination          `json:"pagination"`
}

//
// Handlers
//

// PostGrant godoc
// @ID          postGrant
// @Summary     Grant chips or tokens to an account
// @Description Additively credits the target account through the same executor as player
// @Description operations. Non-positive amounts are rejected; every attempt (applied,
// @Description replayed, or rejected) lands in the audit trail.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       X-Admin-Token    header  string  true  "Admin capability token"
// @Param       X-Account-ID     header  string  false "Acting admin account"  example(admin-1)
// @Param       Idempotency-Key  header  string  false "Fallback request_ref for safe retries"
// @Param       body             body    handlers.GrantRequest  true  "Grant payload"
//
// @Success     200  {object}  services.OperationResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or wrong admin token"
// @Failure     409  {object}  handlers.ErrorResponse  "Account locked"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/grants [post]
func (h *Handlers) PostGrant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.TargetAccountID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "target_account_id required")
		return
	}

	ref := resolveRequestRef(c, req.RequestRef)
	if ref == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request_ref required (body or Idempotency-Key header)")
		return
	}

	actor := accountID(c)
	target := strings.TrimSpace(req.TargetAccountID)

	var (
		res *services.OperationResult
		err error
	)
	// Non-positive values still go through the service so the attempt is
	// audited as rejected.
	switch {
	case req.Amount != 0 && !req.TokenAmount.IsZero():
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "grant either amount or token_amount, not both")
		return
	case req.Amount != 0:
		res, err = h.adminSvc.GrantChips(c.Request.Context(), actor, target, req.Amount, ref)
	case !req.TokenAmount.IsZero():
		res, err = h.adminSvc.GrantTokens(c.Request.Context(), actor, target, req.TokenAmount, ref)
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount or token_amount required")
		return
	}
	if err != nil {
		failForServiceErr(c, err)
		return
	}

	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusOK, res)
}

// ListAudit godoc
// @ID          listAudit
// @Summary     List audit entries (paginated)
// @Description Returns a page of the append-only audit trail, newest first. Supports weak
// @Description ETag via If-None-Match and may return 304.
// @Tags        Admin
// @Produce     json
//
// @Param       X-Admin-Token  header  string  true  "Admin capability token"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListAuditResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or wrong admin token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/audit [get]
func (h *Handlers) ListAudit(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.adminSvc.(*services.AdminService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.AuditStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"audit:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.adminSvc.ListAuditPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListAuditResponse{
		Entries: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
