// Package logs publishes crawl lifecycle events to a Redis stream so
// operators can tail what each crawler is doing. When Redis is not
// configured the nop publisher swallows everything.
package logs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is one crawl lifecycle event.
type Event struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       string         `json:"level"`
	CrawlerName string         `json:"crawler_name"`
	Message     string         `json:"message"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// Publisher emits crawl events. Publish must never block a crawl on a slow
// or absent sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// NewNop creates a publisher that drops everything.
func NewNop() *NopPublisher {
	return &NopPublisher{}
}

// Publish drops the event.
func (*NopPublisher) Publish(_ context.Context, _ Event) error {
	return nil
}

// RedisPublisher writes events to one Redis stream per crawler.
type RedisPublisher struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisPublisher creates a stream publisher. Streams are keyed
// <prefix>:<crawler_name> and expire after ttl.
func NewRedisPublisher(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisPublisher {
	return &RedisPublisher{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// StreamKey returns the Redis key for a crawler's event stream.
func (p *RedisPublisher) StreamKey(crawlerName string) string {
	return fmt.Sprintf("%s:%s", p.keyPrefix, crawlerName)
}

// Publish appends the event to the crawler's stream and refreshes its TTL.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	key := p.StreamKey(event.CrawlerName)

	var fieldsJSON string
	if len(event.Fields) > 0 {
		b, err := json.Marshal(event.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal event fields: %w", err)
		}
		fieldsJSON = string(b)
	}

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]any{
			"timestamp":    event.Timestamp.Format(time.RFC3339Nano),
			"level":        event.Level,
			"crawler_name": event.CrawlerName,
			"message":      event.Message,
			"fields":       fieldsJSON,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.client.Expire(ctx, key, p.ttl)
	return nil
}

// ReadLast reads the last n events for a crawler in chronological order.
func (p *RedisPublisher) ReadLast(ctx context.Context, crawlerName string, n int) ([]Event, error) {
	key := p.StreamKey(crawlerName)

	messages, err := p.client.XRevRangeN(ctx, key, "+", "-", int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read event stream: %w", err)
	}

	events := make([]Event, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		events = append(events, parseMessage(messages[i]))
	}
	return events, nil
}

func parseMessage(msg redis.XMessage) Event {
	event := Event{}

	if ts, ok := msg.Values["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			event.Timestamp = t
		}
	}
	if v, ok := msg.Values["level"].(string); ok {
		event.Level = v
	}
	if v, ok := msg.Values["crawler_name"].(string); ok {
		event.CrawlerName = v
	}
	if v, ok := msg.Values["message"].(string); ok {
		event.Message = v
	}
	if v, ok := msg.Values["fields"].(string); ok && v != "" {
		var fields map[string]any
		if err := json.Unmarshal([]byte(v), &fields); err == nil {
			event.Fields = fields
		}
	}
	return event
}
