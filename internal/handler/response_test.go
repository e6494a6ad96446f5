package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"marketengine/internal/amm"
	"marketengine/internal/service"
)

func failWith(t *testing.T, err error) (int, apiResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	Fail(c, err)

	var body apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec.Code, body
}

func TestFailStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{service.ErrMarketNotFound, http.StatusNotFound},
		{service.ErrInvalidOutcome, http.StatusBadRequest},
		{service.ErrAmountOutOfBounds, http.StatusBadRequest},
		{fmt.Errorf("%w: bad params", service.ErrInvalidMarket), http.StatusBadRequest},
		{amm.ErrInvalidAmount, http.StatusBadRequest},
		{service.ErrMarketNotActive, http.StatusConflict},
		{service.ErrMarketEnded, http.StatusConflict},
		{service.ErrMarketHalted, http.StatusConflict},
		{service.ErrInvalidTransition, http.StatusConflict},
		{service.ErrVotingClosed, http.StatusConflict},
		{service.ErrNotEnoughVotes, http.StatusConflict},
		{service.ErrResolutionTied, http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, body := failWith(t, tc.err)
		if status != tc.status {
			t.Fatalf("%v: status = %d, want %d", tc.err, status, tc.status)
		}
		if body.Code != tc.status {
			t.Fatalf("%v: code = %d, want %d", tc.err, body.Code, tc.status)
		}
	}
}

func TestFailMarksBusyRetryable(t *testing.T) {
	status, body := failWith(t, service.ErrMarketBusy)
	if status != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", status)
	}
	if body.Meta["retryable"] != true {
		t.Fatalf("meta = %v, want retryable", body.Meta)
	}
}

func TestFailFlagsInvariantViolation(t *testing.T) {
	err := fmt.Errorf("trade failed: %w", &amm.InvariantViolationError{
		Outcome:      "Yes",
		ShareReserve: decimal.NewFromInt(5000),
		CashReserve:  decimal.NewFromInt(1000),
		K:            decimal.NewFromInt(1000000),
		Drift:        decimal.NewFromInt(4000000),
	})
	status, body := failWith(t, err)
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if body.Meta["halted"] != true {
		t.Fatalf("meta = %v, want halted flag", body.Meta)
	}
	if body.Meta["outcome"] != "Yes" {
		t.Fatalf("meta outcome = %v, want Yes", body.Meta["outcome"])
	}
}
