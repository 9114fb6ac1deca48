package pubsub

import (
	"context"
	"errors"
)

// ErrNoBus is returned by NopPubSub subscriptions.
var ErrNoBus = errors.New("no event bus configured")

// NopPubSub drops published events. It lets the gateway run without a broker.
type NopPubSub struct{}

func (NopPubSub) Publish(context.Context, string, *Event) error { return nil }

func (NopPubSub) Subscribe(context.Context, string) (<-chan *Event, error) { return nil, ErrNoBus }

func (NopPubSub) SubscribePattern(context.Context, string) (<-chan *Event, error) {
	return nil, ErrNoBus
}

func (NopPubSub) Unsubscribe(context.Context, string) error { return nil }

func (NopPubSub) Close() error { return nil }

// IsNop reports whether p discards events.
func IsNop(p Publisher) bool {
	_, ok := p.(NopPubSub)
	return ok
}
