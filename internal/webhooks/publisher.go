package webhooks

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"ottoroute/internal/store"
)

// Event is the JSON envelope posted to subscribers.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	TS   string `json:"ts"`
	Data any    `json:"data"`
}

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit queues an event for every subscription to eventType and returns how
// many deliveries were queued. Failures are logged, never returned: a solve
// must not fail because a subscriber is unreachable.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) int {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		log.Printf("webhooks: subscribers for %s: %v", eventType, err)
		return 0
	}
	if len(subs) == 0 {
		return 0
	}
	body, err := json.Marshal(Event{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		TS:   time.Now().UTC().Format(time.RFC3339),
		Data: data,
	})
	if err != nil {
		log.Printf("webhooks: encode %s: %v", eventType, err)
		return 0
	}
	queued := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			log.Printf("webhooks: enqueue %s for %s: %v", eventType, s.ID, err)
			continue
		}
		queued++
	}
	return queued
}
