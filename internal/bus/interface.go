package bus

import (
	"context"
	"io"
	"log"
	"time"
)

// Change topics.
const (
	TopicCases        = "cases"
	TopicShared       = "shared"
	TopicSection      = "section"
	TopicSession      = "session"
	TopicConfig       = "config"
	TopicNotification = "notification"
	TopicAnalysis     = "analysis"
	TopicChat         = "chat"
	TopicViews        = "views"
)

// Change announces that a piece of application state moved. Subscribers
// re-read what they need; the payload only carries hints.
type Change struct {
	Topic     string            `json:"topic"`
	Payload   map[string]string `json:"payload,omitempty"`
	Origin    string            `json:"origin,omitempty"`
	Timestamp int64             `json:"timestamp"`
	// Remote is set on changes read back from another process.
	Remote bool `json:"-"`
}

// NewChange stamps a change for topic.
func NewChange(topic string, payload map[string]string) Change {
	return Change{Topic: topic, Payload: payload, Timestamp: time.Now().UnixMilli()}
}

// Bus defines the interface for change bus implementations
type Bus interface {
	// Publish delivers a change to every subscriber
	Publish(ctx context.Context, change Change) error

	// Subscribe registers fn and returns a function that removes it
	Subscribe(fn func(Change)) (cancel func())

	// Run delivers changes from other processes until ctx is done
	Run(ctx context.Context) error

	// GetStats returns basic statistics about the bus
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// HealthCheck performs a health check on the bus connection
	HealthCheck(ctx context.Context) error

	// Close closes the bus connection
	Close() error
}

// NewBus creates a new bus instance based on the Redis URL
// If redisURL is empty or unreachable, returns a LocalBus
func NewBus(redisURL string, logger *log.Logger) Bus {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if redisURL == "" {
		return NewLocalBus(logger)
	}

	redisBus, err := NewRedisBus(redisURL, logger)
	if err == nil {
		return redisBus
	}

	// Fall back to the local bus if Redis fails
	logger.Printf("redis unavailable, using local bus: %v", err)
	return NewLocalBus(logger)
}
