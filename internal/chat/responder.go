package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds the remote chat call.
const DefaultTimeout = 30 * time.Second

// Remote carries what the remote chat endpoint needs. Endpoint and APIKey
// must both be set for a remote attempt.
type Remote struct {
	Endpoint string
	APIKey   string
	Model    string
	Prompt   string
}

// Enabled reports whether a remote call will be attempted.
func (r Remote) Enabled() bool {
	return strings.TrimSpace(r.Endpoint) != "" && strings.TrimSpace(r.APIKey) != ""
}

// Source tells where a reply came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Reply is a produced answer.
type Reply struct {
	Text   string
	Source Source
}

// Request is the body posted to the remote endpoint.
type Request struct {
	Message string `json:"message"`
	Prompt  string `json:"prompt"`
	APIKey  string `json:"apiKey"`
	Model   string `json:"model"`
}

type remoteResponse struct {
	Response string `json:"response"`
}

// Responder turns a message into a reply, trying the remote endpoint once
// and falling back to LocalResponse.
type Responder struct {
	client *http.Client
	logger *log.Logger
}

// NewResponder builds a responder. A non-positive timeout uses DefaultTimeout.
func NewResponder(timeout time.Duration, logger *log.Logger) *Responder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[chat] ", log.LstdFlags)
	}
	return &Responder{client: &http.Client{Timeout: timeout}, logger: logger}
}

// Respond never fails because of the remote side. It only returns an error
// when ctx is already done, in which case no reply is produced.
func (r *Responder) Respond(ctx context.Context, remote Remote, message string) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	if remote.Enabled() {
		text, err := r.callRemote(ctx, remote, message)
		if err == nil {
			return Reply{Text: text, Source: SourceRemote}, nil
		}
		r.logger.Printf("remote chat failed, using local reply: %v", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Reply{}, ctxErr
		}
	}
	return Reply{Text: LocalResponse(message), Source: SourceLocal}, nil
}

func (r *Responder) callRemote(ctx context.Context, remote Remote, message string) (string, error) {
	model := strings.TrimSpace(remote.Model)
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	body, err := json.Marshal(Request{Message: message, Prompt: remote.Prompt, APIKey: remote.APIKey, Model: model})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, remote.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("chat endpoint status %d", resp.StatusCode)
	}
	var parsed remoteResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if strings.TrimSpace(parsed.Response) == "" {
		return "", fmt.Errorf("chat endpoint returned an empty response")
	}
	return parsed.Response, nil
}
