package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Outbound carries events across the process boundary to the external
// classification workflow.
type Outbound interface {
	Enqueue(ctx context.Context, event Event) error
}

// RedisQueue pushes events onto a Redis list, at-least-once. Consumers
// dedupe on Event.ID, which for ticket-created events is the ticket id
// so that a retried enqueue cannot double-trigger classification.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue over the given client and list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

// Enqueue appends the JSON-encoded event to the list.
func (q *RedisQueue) Enqueue(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, body).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", event.Type, err)
	}
	return nil
}
