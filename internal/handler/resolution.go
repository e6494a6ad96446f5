package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketengine/internal/service"
)

type ResolutionHandler struct {
	Resolutions *service.ResolutionService
	Settlement  *service.SettlementService
	Logger      *zap.Logger
}

func (h *ResolutionHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/markets")
	g.POST("/:id/votes", h.castVote)
	g.GET("/:id/votes", h.listVotes)
	g.POST("/:id/resolve", h.resolve)
	g.POST("/:id/refund", h.refund)
	g.GET("/:id/payouts", h.listPayouts)
}

type castVoteRequest struct {
	VoterID    string `json:"voter_id" binding:"required"`
	Outcome    string `json:"outcome" binding:"required"`
	Confidence string `json:"confidence"`
	Weight     string `json:"weight"`
}

func (h *ResolutionHandler) castVote(c *gin.Context) {
	var req castVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	confidence := decimal.Zero
	if strings.TrimSpace(req.Confidence) != "" {
		v, err := decimal.NewFromString(req.Confidence)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid confidence", nil)
			return
		}
		confidence = v
	}
	weight := decimal.Zero
	if strings.TrimSpace(req.Weight) != "" {
		v, err := decimal.NewFromString(req.Weight)
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid weight", nil)
			return
		}
		weight = v
	}
	err := h.Resolutions.CastVote(c.Request.Context(), c.Param("id"), req.VoterID, req.Outcome, confidence, weight)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, nil, nil)
}

func (h *ResolutionHandler) listVotes(c *gin.Context) {
	votes, err := h.Resolutions.ListVotes(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, votes, nil)
}

type resolveRequest struct {
	// Outcome set means a privileged admin decision; empty means tally the
	// consensus votes.
	Outcome    string `json:"outcome"`
	ResolvedBy string `json:"resolved_by"`
}

func (h *ResolutionHandler) resolve(c *gin.Context) {
	var req resolveRequest
	_ = c.ShouldBindJSON(&req)

	marketID := c.Param("id")
	var err error
	var resolution any
	if strings.TrimSpace(req.Outcome) != "" {
		resolution, err = h.Resolutions.ResolveAdmin(c.Request.Context(), marketID, strings.TrimSpace(req.Outcome), req.ResolvedBy)
	} else {
		resolution, err = h.Resolutions.AttemptResolve(c.Request.Context(), marketID, req.ResolvedBy)
	}
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, resolution, nil)
}

func (h *ResolutionHandler) refund(c *gin.Context) {
	var req actorRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.Settlement.Refund(c.Request.Context(), c.Param("id"), req.Actor); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, nil, nil)
}

func (h *ResolutionHandler) listPayouts(c *gin.Context) {
	payouts, err := h.Settlement.ListPayouts(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, payouts, nil)
}
