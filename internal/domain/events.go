package domain

import "time"

// EventType enumerates the auction events broadcast to websocket clients.
type EventType string

const (
	EventAuctionCreated EventType = "auction_created"
	EventOrderPlaced    EventType = "order_placed"
	EventOrderCancelled EventType = "order_cancelled"
	EventAuctionSettled EventType = "auction_settled"
	EventOrderClaimed   EventType = "order_claimed"
)

// Event is one broadcastable auction event.
type Event struct {
	Type      EventType      `json:"type"`
	AuctionID uint64         `json:"auction_id"`
	Detail    map[string]any `json:"detail,omitempty"`
	At        time.Time      `json:"at"`
}

// EventSink receives events for fan-out. Implementations must not block.
type EventSink interface {
	Publish(ev Event)
}
