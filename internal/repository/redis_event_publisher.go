package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/course-admission-api/internal/models"
)

// RedisEventPublisher fans admission events out over Redis pub/sub.
type RedisEventPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisEventPublisher constructs a publisher for channel.
func NewRedisEventPublisher(client redis.UniversalClient, channel string) *RedisEventPublisher {
	if channel == "" {
		channel = "admission.events"
	}
	return &RedisEventPublisher{client: client, channel: channel}
}

// Name identifies the sink in logs and metrics.
func (p *RedisEventPublisher) Name() string { return "redis" }

// Deliver publishes event as JSON on the configured channel.
func (p *RedisEventPublisher) Deliver(ctx context.Context, event models.AdmissionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal admission event %s: %w", event.ID, err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}
