package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketengine/internal/repository"
	"marketengine/internal/service"
)

type TradeHandler struct {
	Trades *service.TradeService
	Logger *zap.Logger
}

func (h *TradeHandler) Register(r *gin.Engine) {
	markets := r.Group("/api/v1/markets")
	markets.POST("/:id/bets", h.placeBet)
	markets.GET("/:id/quote", h.quote)

	users := r.Group("/api/v1/users")
	users.GET("/:id/positions", h.userPositions)
}

type placeBetRequest struct {
	Outcome string `json:"outcome" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	UserID  string `json:"user_id" binding:"required"`
}

func (h *TradeHandler) placeBet(c *gin.Context) {
	var req placeBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid amount", nil)
		return
	}
	position, err := h.Trades.PlaceBet(c.Request.Context(), c.Param("id"), req.Outcome, amount, req.UserID)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, position, nil)
}

func (h *TradeHandler) quote(c *gin.Context) {
	outcome := strings.TrimSpace(c.Query("outcome"))
	if outcome == "" {
		Error(c, http.StatusBadRequest, "outcome is required", nil)
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(c.Query("amount")))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid amount", nil)
		return
	}
	quote, err := h.Trades.Quote(c.Request.Context(), c.Param("id"), outcome, amount)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, quote, nil)
}

func (h *TradeHandler) userPositions(c *gin.Context) {
	userID := c.Param("id")
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	var marketID *string
	if v := strings.TrimSpace(c.Query("market_id")); v != "" {
		marketID = &v
	}
	var status *string
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		status = &v
	}
	items, err := h.Trades.ListPositions(c.Request.Context(), repository.ListPositionsParams{
		Limit:    limit,
		Offset:   offset,
		UserID:   &userID,
		MarketID: marketID,
		Status:   status,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, nil)
}
