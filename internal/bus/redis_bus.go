package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ChangesStream is the Redis stream shared by every Harvey process.
const ChangesStream = "harvey:changes"

const streamMaxLen = 1000

// RedisBus delivers changes locally and mirrors them on a Redis stream so
// other processes (the TUI next to a running server) can re-render.
type RedisBus struct {
	*LocalBus
	client *redis.Client
	origin string
	logger *log.Logger
}

// NewRedisBus creates a new Redis bus instance
func NewRedisBus(redisURL string, logger *log.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Writer(), "[RedisBus] ", log.LstdFlags)
	}

	return &RedisBus{
		LocalBus: NewLocalBus(logger),
		client:   client,
		origin:   uuid.New().String(),
		logger:   logger,
	}, nil
}

// Close closes the Redis connection
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// Publish delivers locally, then appends the change to the stream. A stream
// failure is returned but local subscribers have already seen the change.
func (rb *RedisBus) Publish(ctx context.Context, change Change) error {
	change.Origin = rb.origin
	rb.deliver(change)

	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: ChangesStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: encodeChange(change),
	})
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

// Run tails the stream from now on and delivers changes published by other
// processes.
func (rb *RedisBus) Run(ctx context.Context) error {
	lastID := "$"
	rb.logger.Printf("Starting change reader for %s", ChangesStream)

	for {
		select {
		case <-ctx.Done():
			rb.logger.Printf("Change reader stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		result := rb.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{ChangesStream, lastID},
			Count:   50,
			Block:   1 * time.Second,
		})
		if err := result.Err(); err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rb.logger.Printf("Error reading from stream %s: %v", ChangesStream, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, stream := range result.Val() {
			for _, message := range stream.Messages {
				lastID = message.ID
				change, err := decodeChange(message.Values)
				if err != nil {
					rb.logger.Printf("Skipping malformed change %s: %v", message.ID, err)
					continue
				}
				if change.Origin == rb.origin {
					continue
				}
				change.Remote = true
				rb.deliver(change)
			}
		}
	}
}

// DeleteStream drops the change stream.
func (rb *RedisBus) DeleteStream(ctx context.Context) error {
	if err := rb.client.Del(ctx, ChangesStream).Err(); err != nil {
		return fmt.Errorf("failed to delete stream %s: %w", ChangesStream, err)
	}
	return nil
}

// HealthCheck performs a health check on the Redis connection
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}

// GetStats returns basic statistics about the change stream
func (rb *RedisBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats, _ := rb.LocalBus.GetStats(ctx)
	stats["type"] = "redis"

	info, err := rb.client.XInfoStream(ctx, ChangesStream).Result()
	if err != nil {
		// The stream does not exist until the first publish
		return stats, nil
	}
	stats["changes_stream"] = map[string]interface{}{
		"length":         info.Length,
		"first_entry_id": info.FirstEntry.ID,
		"last_entry_id":  info.LastEntry.ID,
	}
	return stats, nil
}

func encodeChange(c Change) map[string]interface{} {
	payload, _ := json.Marshal(c.Payload)
	return map[string]interface{}{
		"topic":     c.Topic,
		"origin":    c.Origin,
		"payload":   string(payload),
		"timestamp": c.Timestamp,
	}
}

func decodeChange(values map[string]interface{}) (Change, error) {
	str := func(k string) string {
		s, _ := values[k].(string)
		return s
	}
	c := Change{Topic: str("topic"), Origin: str("origin")}
	if c.Topic == "" {
		return Change{}, fmt.Errorf("missing topic")
	}
	if raw := str("payload"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &c.Payload); err != nil {
			return Change{}, fmt.Errorf("payload: %w", err)
		}
	}
	if ts := str("timestamp"); ts != "" {
		n, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return Change{}, fmt.Errorf("timestamp: %w", err)
		}
		c.Timestamp = n
	}
	return c, nil
}
