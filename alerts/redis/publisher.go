// Package redis publishes security alerts to a Redis pub/sub channel for
// live dashboards and external consumers.
package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"go.pilab.hu/sentinel/domain"
)

const DefaultChannel = "sentinel:security_alerts"

// Publisher implements domain.AlertSink over Redis pub/sub. Operators are
// not addressed individually; subscribers receive every event.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

// Send implements domain.AlertSink.
func (p *Publisher) Send(ctx context.Context, event domain.SecurityAlertEvent, _ []domain.Operator) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}
