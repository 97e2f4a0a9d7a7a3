// Operation HTTP handlers.
//
// This file exposes the write path for balances:
//   - POST /operations/spend-chip
//   - POST /operations/add-chips
//   - POST /operations/spend-token
//   - POST /operations/add-token
//
// All four routes funnel into the atomic executor, which owns idempotency,
// per-account locking, and the version-checked commit. Handlers only shape
// the transport: resolve the request_ref (body value wins over the
// Idempotency-Key header), validate the payload, and map sentinel errors.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/retroplay/arcade-backend/internal/domain"
	"github.com/retroplay/arcade-backend/internal/http/middleware"
	"github.com/retroplay/arcade-backend/internal/services"
)

//
// DTOs
//

// OperationRequestBody is the JSON payload for balance operations.
//
// Amount applies to chip operations; TokenAmount to token operations. The
// request_ref deduplicates retries: the same ref always returns the first
// recorded outcome.
type OperationRequestBody struct {
	// Amount is the chip count for spend-chip/add-chips (must be > 0 there).
	Amount int64 `json:"amount" example:"1"`
	// TokenAmount is the decimal token value for spend-token/add-token.
	TokenAmount decimal.Decimal `json:"token_amount" swaggertype:"string" example:"2.5"`
	// RequestRef deduplicates retries; falls back to the Idempotency-Key header.
	RequestRef string `json:"request_ref" example:"turn-18:death"`
	// GameType optionally attributes the operation to a game.
	GameType string `json:"game_type" example:"snake"`
}

//
// Helpers
//

// resolveRequestRef returns the effective request_ref for this call: the
// body value when present, otherwise the validated Idempotency-Key header.
func resolveRequestRef(c *gin.Context, body string) string {
	if ref := strings.TrimSpace(body); ref != "" {
		return ref
	}
	if key, ok := middleware.GetIdempotencyKey(c); ok {
		return key
	}
	return ""
}

// postOperation is the shared body of the four operation endpoints.
func (h *Handlers) postOperation(c *gin.Context, opType domain.OperationType) {
	var req OperationRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	ref := resolveRequestRef(c, req.RequestRef)
	if ref == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request_ref required (body or Idempotency-Key header)")
		return
	}

	res, err := h.opSvc.Execute(c.Request.Context(), services.OperationRequest{
		AccountID:   accountID(c),
		Type:        opType,
		Amount:      req.Amount,
		TokenAmount: req.TokenAmount,
		RequestRef:  ref,
		GameType:    strings.TrimSpace(req.GameType),
	})
	if err != nil {
		failForServiceErr(c, err)
		return
	}

	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusOK, res)
}

//
// Handlers
//

// SpendChip godoc
// @ID          spendChip
// @Summary     Spend chips
// @Description Deducts chips from the caller's balance. Rejected with insufficient_funds
// @Description when the balance would go negative. Retries with the same request_ref
// @Description replay the recorded outcome without a second deduction.
// @Tags        Operations
// @Accept      json
// @Produce     json
//
// @Param       X-Account-ID     header  string  false "Account ID (demo header)"  example(player-42)
// @Param       Idempotency-Key  header  string  false "Fallback request_ref for safe retries"
// @Param       body             body    handlers.OperationRequestBody  true  "Operation payload"
//
// @Success     200  {object}  services.OperationResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Insufficient funds or account locked"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /operations/spend-chip [post]
func (h *Handlers) SpendChip(c *gin.Context) {
	h.postOperation(c, domain.OpSpendChip)
}

// AddChips godoc
// @ID          addChips
// @Summary     Add chips
// @Description Credits chips to the caller's balance with the same idempotency
// @Description and locking guarantees as spending.
// @Tags        Operations
// @Accept      json
// @Produce     json
//
// @Param       X-Account-ID     header  string  false "Account ID (demo header)"  example(player-42)
// @Param       Idempotency-Key  header  string  false "Fallback request_ref for safe retries"
// @Param       body             body    handlers.OperationRequestBody  true  "Operation payload"
//
// @Success     200  {object}  services.OperationResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Account locked"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /operations/add-chips [post]
func (h *Handlers) AddChips(c *gin.Context) {
	h.postOperation(c, domain.OpGrantChip)
}

// SpendToken godoc
// @ID          spendToken
// @Summary     Spend tokens
// @Description Deducts a decimal token amount from the caller's balance.
// @Tags        Operations
// @Accept      json
// @Produce     json
//
// @Param       X-Account-ID     header  string  false "Account ID (demo header)"  example(player-42)
// @Param       Idempotency-Key  header  string  false "Fallback request_ref for safe retries"
// @Param       body             body    handlers.OperationRequestBody  true  "Operation payload"
//
// @Success     200  {object}  services.OperationResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Insufficient funds or account locked"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /operations/spend-token [post]
func (h *Handlers) SpendToken(c *gin.Context) {
	h.postOperation(c, domain.OpSpendToken)
}

// AddToken godoc
// @ID          addToken
// @Summary     Add tokens
// @Description Credits a decimal token amount to the caller's balance and
// @Description increases lifetime_earned by the same amount.
// @Tags        Operations
// @Accept      json
// @Produce     json
//
// @Param       X-Account-ID     header  string  false "Account ID (demo header)"  example(player-42)
// @Param       Idempotency-Key  header  string  false "Fallback request_ref for safe retries"
// @Param       body             body    handlers.OperationRequestBody  true  "Operation payload"
//
// @Success     200  {object}  services.OperationResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Account locked"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /operations/add-token [post]
func (h *Handlers) AddToken(c *gin.Context) {
	h.postOperation(c, domain.OpGrantToken)
}
