package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketengine/internal/repository"
	"marketengine/internal/service"
)

type MarketHandler struct {
	Markets    *service.MarketService
	Settlement *service.SettlementService
	Logger     *zap.Logger
}

func (h *MarketHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/markets")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/pause", h.pause)
	g.POST("/:id/resume", h.resume)
	g.POST("/:id/end", h.end)
	g.POST("/:id/cancel", h.cancel)
}

type createMarketRequest struct {
	Question           string     `json:"question" binding:"required"`
	Outcomes           []string   `json:"outcomes" binding:"required"`
	Category           string     `json:"category"`
	EndTime            time.Time  `json:"end_time" binding:"required"`
	ResolutionDeadline *time.Time `json:"resolution_deadline"`
	InitialLiquidity   string     `json:"initial_liquidity"`
	CreatedBy          string     `json:"created_by"`
}

func (h *MarketHandler) create(c *gin.Context) {
	var req createMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	liquidity := decimal.Zero
	if strings.TrimSpace(req.InitialLiquidity) != "" {
		var err error
		liquidity, err = decimal.NewFromString(req.InitialLiquidity)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid initial_liquidity", nil)
			return
		}
	}
	market, err := h.Markets.Create(c.Request.Context(), service.CreateMarketParams{
		Question:           req.Question,
		Outcomes:           req.Outcomes,
		Category:           req.Category,
		EndTime:            req.EndTime,
		ResolutionDeadline: req.ResolutionDeadline,
		InitialLiquidity:   liquidity,
		CreatedBy:          req.CreatedBy,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, market, nil)
}

func (h *MarketHandler) list(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var status *string
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		status = &v
	}
	var category *string
	if v := strings.TrimSpace(c.Query("category")); v != "" {
		category = &v
	}
	asc := strings.EqualFold(strings.TrimSpace(c.Query("order")), "asc")

	items, total, err := h.Markets.List(c.Request.Context(), repository.ListMarketsParams{
		Limit:    limit,
		Offset:   offset,
		Status:   status,
		Category: category,
		OrderBy:  "created_at",
		Asc:      boolPtr(asc),
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func (h *MarketHandler) get(c *gin.Context) {
	state, err := h.Markets.GetState(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, state, nil)
}

func (h *MarketHandler) pause(c *gin.Context) {
	if err := h.Markets.Pause(c.Request.Context(), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, nil, nil)
}

func (h *MarketHandler) resume(c *gin.Context) {
	if err := h.Markets.Resume(c.Request.Context(), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, nil, nil)
}

func (h *MarketHandler) end(c *gin.Context) {
	if err := h.Markets.End(c.Request.Context(), c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, nil, nil)
}

type actorRequest struct {
	Actor string `json:"actor"`
}

func (h *MarketHandler) cancel(c *gin.Context) {
	var req actorRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.Settlement.Cancel(c.Request.Context(), c.Param("id"), req.Actor); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, nil, nil)
}
