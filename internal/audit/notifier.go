package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes audit events to a Redis channel so external consumers
// (dashboards, alerting) can react without polling the audit table.
type Notifier struct {
	client  *redis.Client
	channel string
}

func NewNotifier(client *redis.Client, channel string) *Notifier {
	return &Notifier{client: client, channel: channel}
}

func (n *Notifier) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}
