// Package webhook receives channel callbacks, normalizes them into inbound
// events and feeds them through the dedup and per-identity ordering gates.
package webhook

import (
	"context"

	"atende_backend/internal/dedup"
	"atende_backend/internal/router"
	"atende_backend/internal/sequencer"
	"atende_backend/platform/logger"
)

// MessageRouter drives one inbound event end to end.
type MessageRouter interface {
	Route(ctx context.Context, ev router.InboundEvent)
}

// Dispatcher sits between the webhook handlers and the router: duplicate
// deliveries are dropped first, then the event joins its identity's ordered
// task chain.
type Dispatcher struct {
	dedup  *dedup.Deduplicator
	seq    *sequencer.Sequencer
	router MessageRouter
	log    *logger.Logger
}

func NewDispatcher(d *dedup.Deduplicator, seq *sequencer.Sequencer, r MessageRouter, log *logger.Logger) *Dispatcher {
	return &Dispatcher{dedup: d, seq: seq, router: r, log: log}
}

// Dispatch admits one inbound message. Reports whether the message was
// accepted; duplicates and shed messages are dropped silently, as webhook
// providers retry on anything but a 2xx.
func (d *Dispatcher) Dispatch(messageID string, ev router.InboundEvent) bool {
	if d.dedup.IsDuplicate(messageID) {
		d.log.Debug("duplicate webhook delivery dropped",
			"channel", ev.Channel,
			"message_id", messageID,
		)
		return false
	}

	identity := ev.Channel + ":" + ev.ChannelID
	return d.seq.Enqueue(identity, func(ctx context.Context) error {
		d.router.Route(ctx, ev)
		return nil
	})
}
