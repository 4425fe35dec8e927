package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aryan0dhankhar/queueline/internal/domain"
	"github.com/aryan0dhankhar/queueline/internal/infrastructure/redis"
)

const channelPattern = "queue:*:events"

// Channel returns the Redis pub/sub channel carrying a queue's events
func Channel(queueID string) string {
	return "queue:" + queueID + ":events"
}

// RedisSink publishes every event to the queue's Redis channel so all server instances see it.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := s.client.Publish(ctx, Channel(ev.QueueID), payload); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// RedisRelay subscribes to every queue channel and hands decoded events to a local sink,
// normally the websocket hub.
type RedisRelay struct {
	client *redis.Client
	target Sink
	logger *slog.Logger
}

func NewRedisRelay(client *redis.Client, target Sink, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{client: client, target: target, logger: logger.With(slog.String("component", "redis_relay"))}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.client.PSubscribe(ctx, channelPattern)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channelPattern, err)
	}
	r.logger.Info("relay subscribed", slog.String("pattern", channelPattern))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, msg *goredis.Message) {
	var ev domain.Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		r.logger.Warn("dropping malformed event", slog.String("channel", msg.Channel), slog.String("error", err.Error()))
		return
	}
	if Channel(ev.QueueID) != msg.Channel {
		r.logger.Warn("event queue does not match channel", slog.String("channel", msg.Channel), slog.String("queue_id", ev.QueueID))
		return
	}
	if err := r.target.Deliver(ctx, ev); err != nil {
		r.logger.Warn("relay delivery failed", slog.String("queue_id", ev.QueueID), slog.String("error", err.Error()))
	}
}
