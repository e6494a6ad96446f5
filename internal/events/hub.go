// Package events fans engine events out to subscribers. Every published
// event carries a monotonically increasing sequence number so downstream
// consumers can deduplicate under at-least-once delivery. Publishing is
// best-effort and never blocks the trade or settlement path: a subscriber
// whose buffer is full loses the event and is expected to resync.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types exposed to the notification collaborator.
const (
	TypeTradeExecuted  = "trade_executed"
	TypeMarketCreated  = "market_created"
	TypeMarketEnded    = "market_ended"
	TypeMarketResolved = "market_resolved"
	TypeMarketRefunded = "market_refunded"
	TypePayoutReady    = "payout_ready"
)

type Event struct {
	Seq      uint64         `json:"seq"`
	Type     string         `json:"type"`
	MarketID string         `json:"market_id"`
	UserIDs  []string       `json:"user_ids,omitempty"`
	At       time.Time      `json:"at"`
	Data     map[string]any `json:"data,omitempty"`
}

type Subscriber struct {
	C   chan Event
	hub *Hub
}

// Close detaches the subscriber from the hub and closes its channel.
func (s *Subscriber) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.unsubscribe(s)
}

type Hub struct {
	Logger *zap.Logger

	mu     sync.Mutex
	seq    uint64
	buffer int
	subs   map[*Subscriber]struct{}
	closed bool
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		Logger: logger,
		buffer: buffer,
		subs:   make(map[*Subscriber]struct{}),
	}
}

// Publish assigns the next sequence number and delivers the event to every
// subscriber without blocking.
func (h *Hub) Publish(ev Event) uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return h.seq
	}
	h.seq++
	ev.Seq = h.seq
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	for sub := range h.subs {
		select {
		case sub.C <- ev:
		default:
			if h.Logger != nil {
				h.Logger.Warn("event dropped for slow subscriber",
					zap.Uint64("seq", ev.Seq),
					zap.String("type", ev.Type),
					zap.String("market_id", ev.MarketID),
				)
			}
		}
	}
	return ev.Seq
}

// Seq returns the sequence number of the most recently published event.
func (h *Hub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &Subscriber{C: make(chan Event, h.buffer), hub: h}
	if !h.closed {
		h.subs[sub] = struct{}{}
	}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.C)
	}
}

// Close detaches all subscribers. Further publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.C)
	}
}
