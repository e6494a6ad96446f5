package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketengine/internal/amm"
	"marketengine/internal/service"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// Fail maps engine errors to HTTP statuses: validation → 400, missing → 404,
// state conflicts → 409, lock timeouts → 429 (retryable), invariant
// violations → 500.
func Fail(c *gin.Context, err error) {
	var inv *amm.InvariantViolationError
	switch {
	case errors.Is(err, service.ErrMarketNotFound):
		Error(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidOutcome),
		errors.Is(err, service.ErrAmountOutOfBounds),
		errors.Is(err, service.ErrInvalidMarket),
		errors.Is(err, amm.ErrInvalidAmount):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, service.ErrMarketNotActive),
		errors.Is(err, service.ErrMarketEnded),
		errors.Is(err, service.ErrMarketHalted),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrVotingClosed),
		errors.Is(err, service.ErrNotEnoughVotes),
		errors.Is(err, service.ErrResolutionTied):
		Error(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, service.ErrMarketBusy):
		Error(c, http.StatusTooManyRequests, err.Error(), map[string]any{"retryable": true})
	case errors.As(err, &inv):
		// surfaced so operators can tell a halted market from a plain 500
		Error(c, http.StatusInternalServerError, err.Error(), map[string]any{
			"halted":  true,
			"outcome": inv.Outcome,
		})
	default:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
	}
}
