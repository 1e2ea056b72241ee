package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harvey-licitacoes/harvey/internal/store"
)

// DefaultTTL is how long a toast stays visible.
const DefaultTTL = 3 * time.Second

// Level of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a transient toast.
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Recorder stores notifications in the activity log.
type Recorder interface {
	RecordActivity(ctx context.Context, entry store.ActivityEntry) error
}

// Notifier keeps the live toasts and fans them out to subscribers.
type Notifier struct {
	mu       sync.Mutex
	items    []Notification
	subs     map[int]func(Notification)
	nextSub  int
	ttl      time.Duration
	now      func() time.Time
	recorder Recorder
	logger   *log.Logger
}

// New builds a notifier. recorder may be nil.
func New(recorder Recorder, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.New(log.Writer(), "[notify] ", log.LstdFlags)
	}
	return &Notifier{
		subs:     make(map[int]func(Notification)),
		ttl:      DefaultTTL,
		now:      time.Now,
		recorder: recorder,
		logger:   logger,
	}
}

// Success shows a success toast.
func (n *Notifier) Success(ctx context.Context, msg string) Notification {
	return n.Push(ctx, LevelSuccess, msg)
}

// Error shows an error toast.
func (n *Notifier) Error(ctx context.Context, msg string) Notification {
	return n.Push(ctx, LevelError, msg)
}

// Info shows an informational toast.
func (n *Notifier) Info(ctx context.Context, msg string) Notification {
	return n.Push(ctx, LevelInfo, msg)
}

// Push adds a toast, records it and notifies subscribers.
func (n *Notifier) Push(ctx context.Context, level Level, msg string) Notification {
	now := n.now()
	item := Notification{
		ID:        uuid.New().String(),
		Level:     level,
		Message:   msg,
		CreatedAt: now,
		ExpiresAt: now.Add(n.ttl),
	}

	n.mu.Lock()
	n.items = append(n.prune(now), item)
	subs := make([]func(Notification), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()

	if n.recorder != nil {
		err := n.recorder.RecordActivity(ctx, store.ActivityEntry{
			Action:    "notification",
			Actor:     "Sistema",
			Details:   map[string]interface{}{"level": string(level), "message": msg},
			Timestamp: now,
		})
		if err != nil {
			n.logger.Printf("record notification: %v", err)
		}
	}
	for _, fn := range subs {
		fn(item)
	}
	return item
}

// prune drops expired toasts. Callers hold n.mu.
func (n *Notifier) prune(now time.Time) []Notification {
	kept := n.items[:0]
	for _, it := range n.items {
		if now.Before(it.ExpiresAt) {
			kept = append(kept, it)
		}
	}
	return kept
}

// Active returns the toasts that have not expired, oldest first.
func (n *Notifier) Active() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = n.prune(n.now())
	return append([]Notification(nil), n.items...)
}

// Latest returns the newest live toast.
func (n *Notifier) Latest() (Notification, bool) {
	active := n.Active()
	if len(active) == 0 {
		return Notification{}, false
	}
	return active[len(active)-1], true
}

// Subscribe registers fn for every new toast and returns a cancel func.
func (n *Notifier) Subscribe(fn func(Notification)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextSub
	n.nextSub++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}
