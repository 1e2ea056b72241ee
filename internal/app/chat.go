package app

import (
	"context"
	"errors"
	"strings"

	"github.com/harvey-licitacoes/harvey/internal/bus"
	"github.com/harvey-licitacoes/harvey/internal/chat"
)

// ErrChatBusy is returned while a previous message is still being answered.
var ErrChatBusy = errors.New("a message is already being answered")

// SendMessage appends the user message, asks the responder and appends its
// reply. The reply is returned.
func (a *App) SendMessage(ctx context.Context, message string) (chat.Message, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return chat.Message{}, ErrEmptyMessage
	}
	if !a.transcript.Begin() {
		return chat.Message{}, ErrChatBusy
	}
	defer a.transcript.End()

	a.transcript.Append(chat.RoleUser, message)
	a.publish(ctx, bus.TopicChat, nil)

	text := chat.ErrorMessage
	reply, err := a.responder.Respond(ctx, a.chatRemote(), message)
	if err != nil {
		a.logger.Printf("chat: %v", err)
	} else {
		text = reply.Text
	}
	m := a.transcript.Append(chat.RoleAssistant, text)
	a.publish(ctx, bus.TopicChat, map[string]string{"source": string(reply.Source)})
	return m, nil
}

// Messages returns the chat transcript.
func (a *App) Messages() []chat.Message {
	return a.transcript.Messages()
}

// ChatBusy reports whether a message is in flight.
func (a *App) ChatBusy() bool {
	return a.transcript.Busy()
}

// ClearChat resets the transcript to the greeting.
func (a *App) ClearChat(ctx context.Context) {
	a.transcript.Clear()
	a.publish(ctx, bus.TopicChat, nil)
}

func (a *App) chatRemote() chat.Remote {
	cfg := a.APIConfig()
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = a.chatURL
	}
	return chat.Remote{
		Endpoint: endpoint,
		APIKey:   cfg.OpenAIAPIKey,
		Model:    cfg.Model,
		Prompt:   a.Prompt(),
	}
}
