// Balance HTTP handlers.
//
// This file exposes the read path for account balances:
//   - GET /balance   (current chips, token balance, lifetime earned)
//
// Reads go through the TTL cache + request coalescer, so a value may be up
// to CACHE_TTL old but never reflects a partially applied operation.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// BalanceResponse is the JSON envelope for a balance read.
type BalanceResponse struct {
	AccountID      string          `json:"account_id" example:"player-42"`
	Chips          int64           `json:"chips" example:"5"`
	TokenBalance   decimal.Decimal `json:"token_balance" swaggertype:"string" example:"12.5"`
	LifetimeEarned decimal.Decimal `json:"lifetime_earned" swaggertype:"string" example:"240.75"`
}

// GetBalance godoc
// @ID          getBalance
// @Summary     Get account balance
// @Description Returns the caller's chip count, token balance, and lifetime earned tokens.
// @Description Values are served from a short-TTL cache; concurrent reads are coalesced.
// @Tags        Balance
// @Produce     json
//
// @Param       X-Account-ID  header  string  false "Account ID (demo header)"  example(player-42)
//
// @Success     200  {object}  handlers.BalanceResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /balance [get]
func (h *Handlers) GetBalance(c *gin.Context) {
	acc, err := h.balSvc.GetBalance(c.Request.Context(), accountID(c))
	if err != nil {
		failForServiceErr(c, err)
		return
	}
	ok(c, http.StatusOK, BalanceResponse{
		AccountID:      acc.ID,
		Chips:          acc.Chips,
		TokenBalance:   acc.TokenBalance,
		LifetimeEarned: acc.LifetimeEarned,
	})
}
