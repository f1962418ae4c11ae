package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisHub publishes events over a Redis pub/sub channel so every API replica sees them.
type RedisHub struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisHub constructs a hub on the provided channel.
func NewRedisHub(client *redis.Client, channel string, logger *zap.Logger) *RedisHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == "" {
		channel = "campus-portal:changes"
	}
	return &RedisHub{client: client, channel: channel, logger: logger}
}

// Publish encodes evt as JSON and publishes it.
func (h *RedisHub) Publish(ctx context.Context, evt Event) error {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := h.client.Publish(ctx, h.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", h.channel, err)
	}
	return nil
}

// Subscribe relays decoded events from the channel until ctx is done.
func (h *RedisHub) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := h.client.Subscribe(ctx, h.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", h.channel, err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close() //nolint:errcheck
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				evt, err := decodeEvent(msg.Payload)
				if err != nil {
					h.logger.Warn("dropping malformed realtime event", zap.String("channel", h.channel), zap.Error(err))
					continue
				}
				select {
				case out <- evt:
				default:
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (h *RedisHub) Close() error {
	return nil
}

func decodeEvent(payload string) (Event, error) {
	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if evt.Topic == "" {
		return Event{}, fmt.Errorf("event without topic")
	}
	return evt, nil
}
