package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RelayChannel is the redis channel dispatch events travel on
const RelayChannel = "dispatch:events"

type envelope struct {
	Origin string          `json:"origin"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// RedisRelay publishes events to redis so every API instance, this one
// included, delivers them to its own local clients
type RedisRelay struct {
	client   *redis.Client
	channel  string
	origin   string
	delivery Emitter
}

// NewRedisRelay connects to redisURL. origin tags outgoing messages for logs.
func NewRedisRelay(redisURL, origin string, delivery Emitter) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisRelay{
		client:   redis.NewClient(opts),
		channel:  RelayChannel,
		origin:   origin,
		delivery: delivery,
	}, nil
}

// Emit publishes the event. When redis is unreachable the event still
// reaches this instance's own clients.
func (r *RedisRelay) Emit(ctx context.Context, event string, payload interface{}) error {
	b, err := encode(r.origin, event, payload)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, b).Err(); err != nil {
		zap.S().Warnw("failed to publish dispatch event, delivering locally", "event", event, "error", err)
		return r.delivery.Emit(ctx, event, payload)
	}
	return nil
}

// Run delivers relayed events to the local emitter until ctx is done
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	zap.S().Infow("dispatch relay subscribed", "channel", r.channel, "origin", r.origin)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.deliver(ctx, msg.Payload); err != nil {
				zap.S().Warnw("failed to deliver relayed event", "error", err)
			}
		}
	}
}

// Close closes the redis client
func (r *RedisRelay) Close() error {
	return r.client.Close()
}

func (r *RedisRelay) deliver(ctx context.Context, payload string) error {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return fmt.Errorf("failed to decode relayed event: %w", err)
	}
	if env.Event == "" {
		return fmt.Errorf("relayed event from %s has no name", env.Origin)
	}
	return r.delivery.Emit(ctx, env.Event, env.Data)
}

func encode(origin, event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return json.Marshal(envelope{Origin: origin, Event: event, Data: data})
}
