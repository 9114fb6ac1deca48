package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event is the envelope carried on every album channel.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Album   string          `json:"album"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewEvent wraps payload in an envelope stamped with a fresh ID and the
// current UTC time.
func NewEvent(eventType, album string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return &Event{
		ID:      newEventID(),
		Type:    eventType,
		Album:   album,
		Payload: data,
		SentAt:  time.Now().UTC(),
	}, nil
}

// UnmarshalPayload decodes the payload into v.
func (e *Event) UnmarshalPayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Publisher sends events. The gateway only ever publishes.
type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

// Subscriber receives events. Returned channels close when ctx ends or the
// subscription is dropped.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan *Event, error)
	SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error)
	Unsubscribe(ctx context.Context, channel string) error
}

// PubSub is a bus driver.
type PubSub interface {
	Publisher
	Subscriber
	Close() error
}
