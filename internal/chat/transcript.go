package chat

import (
	"sync"
	"time"
)

// Role of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript line.
type Message struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Transcript is the in-memory conversation shown in the chat section.
type Transcript struct {
	mu       sync.Mutex
	messages []Message
	busy     bool
	now      func() time.Time
}

// NewTranscript returns a transcript holding only the welcome message.
func NewTranscript() *Transcript {
	t := &Transcript{now: time.Now}
	t.Clear()
	return t
}

// Append adds a message stamped with the current time.
func (t *Transcript) Append(role Role, text string) Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := Message{Role: role, Text: text, Time: t.now()}
	t.messages = append(t.messages, m)
	return m
}

// Messages returns a copy of the conversation.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.messages...)
}

// Clear resets the conversation to the welcome message.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = []Message{{Role: RoleAssistant, Text: WelcomeMessage, Time: t.now()}}
}

// Begin marks a send in flight. It returns false when one already is; the
// flag only drives the send control and callers may ignore it.
func (t *Transcript) Begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.busy {
		return false
	}
	t.busy = true
	return true
}

// End clears the in-flight flag.
func (t *Transcript) End() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy = false
}

// Busy reports whether a send is in flight.
func (t *Transcript) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}
