// Package events is the realtime change feed. Services publish after their
// database transaction commits; dashboards subscribe through the websocket
// endpoint. Delivery is best effort and never gates a money operation.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type Topic string

const (
	TopicWallet       Topic = "wallet"
	TopicTransaction  Topic = "transaction"
	TopicOrder        Topic = "order"
	TopicRegistration Topic = "registration"
)

type Event struct {
	Topic    Topic          `json:"topic"`
	Type     string         `json:"type"`
	OwnerID  uint64         `json:"ownerId,omitempty"`
	EntityID string         `json:"entityId"`
	Status   string         `json:"status,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nop struct{}

func (nop) Publish(context.Context, Event) error { return nil }

// Nop discards every event.
func Nop() Publisher { return nop{} }

// Multi fans every event out to all publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error

	for _, p := range m {
		err := p.Publish(ctx, ev)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Emit publishes ev and only logs failures.
func Emit(ctx context.Context, pub Publisher, log *slog.Logger, ev Event) {
	if pub == nil {
		return
	}

	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	err := pub.Publish(ctx, ev)
	if err != nil {
		log.WarnContext(ctx, "publish event", "topic", ev.Topic, "type", ev.Type, "entity_id", ev.EntityID, "error", err)
	}
}
