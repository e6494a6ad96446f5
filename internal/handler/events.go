package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"marketengine/internal/events"
)

// EventsHandler streams engine events (trade-executed, market-resolved,
// payout-ready) over a websocket. Each frame is one JSON event carrying its
// sequence number; a client that sees a gap should resync from the API.
type EventsHandler struct {
	Hub    *events.Hub
	Logger *zap.Logger
}

func (h *EventsHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/events/ws", h.stream)
}

func (h *EventsHandler) stream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin checks belong to the fronting proxy
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket accept failed", zap.Error(err))
		}
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	sub := h.Hub.Subscribe()
	defer sub.Close()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
