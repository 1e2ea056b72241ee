package bus

import (
	"context"
	"log"
	"sync"
)

// LocalBus fans changes out synchronously inside the process, in
// subscription order.
type LocalBus struct {
	mu     sync.RWMutex
	subs   []subscriber
	next   int
	logger *log.Logger
}

type subscriber struct {
	id int
	fn func(Change)
}

// NewLocalBus creates a new in-process bus
func NewLocalBus(logger *log.Logger) *LocalBus {
	if logger == nil {
		logger = log.New(log.Writer(), "[bus] ", log.LstdFlags)
	}
	return &LocalBus{logger: logger}
}

// Publish calls every subscriber in the caller's goroutine.
func (lb *LocalBus) Publish(ctx context.Context, change Change) error {
	lb.deliver(change)
	return nil
}

func (lb *LocalBus) deliver(change Change) {
	lb.mu.RLock()
	subs := make([]subscriber, len(lb.subs))
	copy(subs, lb.subs)
	lb.mu.RUnlock()
	for _, s := range subs {
		s.fn(change)
	}
}

// Subscribe registers fn.
func (lb *LocalBus) Subscribe(fn func(Change)) func() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	id := lb.next
	lb.next++
	lb.subs = append(lb.subs, subscriber{id: id, fn: fn})
	return func() {
		lb.mu.Lock()
		defer lb.mu.Unlock()
		for i, s := range lb.subs {
			if s.id == id {
				lb.subs = append(lb.subs[:i:i], lb.subs[i+1:]...)
				return
			}
		}
	}
}

// Run has nothing remote to read; it blocks until ctx is done.
func (lb *LocalBus) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// GetStats reports the subscriber count.
func (lb *LocalBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return map[string]interface{}{
		"type":        "local",
		"subscribers": len(lb.subs),
	}, nil
}

// HealthCheck always returns nil for the local bus
func (lb *LocalBus) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op for the local bus
func (lb *LocalBus) Close() error {
	return nil
}
