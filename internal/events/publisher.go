// Package events delivers attendance domain events to subscribers.
package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/HarshaVardhanRao/StudentActivityCentre/internal/attendance"
)

const DefaultChannel = "sac.attendance.events"

// RedisPublisher publishes each event as JSON on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, events ...attendance.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		pipe.Publish(ctx, p.channel, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// LogPublisher writes events to a logger. It is used when Redis is not configured.
type LogPublisher struct {
	logger *log.Logger
}

func NewLogPublisher(logger *log.Logger) *LogPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, events ...attendance.DomainEvent) error {
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		p.logger.Printf("event %s %s", event.Type, data)
	}
	return nil
}
