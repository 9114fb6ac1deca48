package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
)

const redisBuffer = 64

// RedisPubSub carries album events over Redis PUBLISH/PSUBSCRIBE.
type RedisPubSub struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*redis.PubSub
}

// NewRedisPubSub dials Redis and checks the connection.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Address, err)
	}

	return &RedisPubSub{client: client, subs: make(map[string]*redis.PubSub)}, nil
}

// Publish sends the JSON-encoded event to channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe delivers events published to one album channel.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return r.attach(ctx, channel, r.client.Subscribe(ctx, channel))
}

// SubscribePattern delivers events from every channel matching pattern.
func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.attach(ctx, pattern, r.client.PSubscribe(ctx, pattern))
}

func (r *RedisPubSub) attach(ctx context.Context, name string, sub *redis.PubSub) (<-chan *Event, error) {
	// Receive blocks until the server confirms, so a publish right after
	// this call is never missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", name, err)
	}

	r.mu.Lock()
	if old, ok := r.subs[name]; ok {
		_ = old.Close()
	}
	r.subs[name] = sub
	r.mu.Unlock()

	out := make(chan *Event, redisBuffer)
	go r.pump(ctx, sub, out)
	return out, nil
}

// Unsubscribe closes the subscription registered under channel or pattern.
func (r *RedisPubSub) Unsubscribe(_ context.Context, channel string) error {
	r.mu.Lock()
	sub, ok := r.subs[channel]
	delete(r.subs, channel)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return sub.Close()
}

// Close drops every subscription and the client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	for name, sub := range r.subs {
		_ = sub.Close()
		delete(r.subs, name)
	}
	r.mu.Unlock()
	return r.client.Close()
}

// pump decodes messages until ctx ends or the subscription closes.
// Slow consumers apply backpressure instead of losing events.
func (r *RedisPubSub) pump(ctx context.Context, sub *redis.PubSub, out chan<- *Event) {
	defer close(out)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				l := log.L()
				l.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed event")
				continue
			}
			select {
			case out <- &event:
			case <-ctx.Done():
				return
			}
		}
	}
}
