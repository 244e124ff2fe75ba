// Package mirror publishes newly captured attack records to a Redis channel
// so external dashboards can follow captures live without polling the
// operator API.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"trapgate/internal/schema"
)

// Publisher mirrors records to a Redis pub/sub channel named
// <profile-slug>:attacks. Subscribers that miss messages recover nothing;
// the store's daily logs remain the durable record.
type Publisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewPublisher connects to Redis and verifies the connection.
func NewPublisher(ctx context.Context, addr, password string, db int, slug string, logger *slog.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	channel := slug + ":attacks"
	logger.Info("redis mirror connected", "addr", addr, "channel", channel)

	return &Publisher{
		client:  client,
		channel: channel,
		logger:  logger,
	}, nil
}

// Publish sends one record to the channel.
func (p *Publisher) Publish(ctx context.Context, rec *schema.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
