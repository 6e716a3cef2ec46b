package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// EventSink bridges auction events into operator notifications. Publish is
// non-blocking: events are queued onto a buffered channel and delivered by
// Run; when the queue is full the event is dropped.
type EventSink struct {
	notifier *Notifier
	events   chan domain.Event
	logger   *slog.Logger
}

// NewEventSink creates an EventSink delivering through the given Notifier.
func NewEventSink(n *Notifier, logger *slog.Logger) *EventSink {
	return &EventSink{
		notifier: n,
		events:   make(chan domain.Event, 64),
		logger:   logger.With(slog.String("component", "notify_sink")),
	}
}

var _ domain.EventSink = (*EventSink)(nil)

// Publish queues an event for delivery.
func (s *EventSink) Publish(ev domain.Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("notification queue full, dropping event",
			slog.String("type", string(ev.Type)),
			slog.Uint64("auction_id", ev.AuctionID),
		)
	}
}

// Run consumes queued events and dispatches them until the context is
// cancelled.
func (s *EventSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			title, message := formatEvent(ev)
			if err := s.notifier.Notify(ctx, string(ev.Type), title, message); err != nil {
				s.logger.ErrorContext(ctx, "notification delivery failed",
					slog.String("type", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// formatEvent renders an auction event as a notification title and body.
func formatEvent(ev domain.Event) (title, message string) {
	switch ev.Type {
	case domain.EventAuctionCreated:
		title = fmt.Sprintf("Auction %d created", ev.AuctionID)
	case domain.EventOrderPlaced:
		title = fmt.Sprintf("Orders placed in auction %d", ev.AuctionID)
	case domain.EventOrderCancelled:
		title = fmt.Sprintf("Orders cancelled in auction %d", ev.AuctionID)
	case domain.EventAuctionSettled:
		title = fmt.Sprintf("Auction %d settled", ev.AuctionID)
	case domain.EventOrderClaimed:
		title = fmt.Sprintf("Orders claimed in auction %d", ev.AuctionID)
	default:
		title = fmt.Sprintf("Auction %d: %s", ev.AuctionID, ev.Type)
	}

	if len(ev.Detail) == 0 {
		return title, "no details"
	}

	keys := make([]string, 0, len(ev.Detail))
	for k := range ev.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, ev.Detail[k])
	}
	return title, strings.TrimRight(b.String(), "\n")
}
