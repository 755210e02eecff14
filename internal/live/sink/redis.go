package sink

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisSink publishes payloads on Redis pub/sub channels.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink constructs a sink over an existing client.
func NewRedisSink(client *redis.Client) (*RedisSink, error) {
	if client == nil {
		return nil, errors.New("redis sink: nil client")
	}
	return &RedisSink{client: client}, nil
}

// Publish issues PUBLISH topic payload.
func (s *RedisSink) Publish(ctx context.Context, topic string, payload []byte) error {
	if s == nil || s.client == nil {
		return errors.New("redis sink: not initialized")
	}
	if err := s.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis sink: publish %s: %w", topic, err)
	}
	return nil
}
