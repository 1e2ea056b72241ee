package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty response from provider")

// Request is a single-turn generation request.
type Request struct {
	System      string
	Prompt      string
	Model       string // overrides the provider's configured model when set
	MaxTokens   int
	Temperature *float64
}

// Response is the generated text plus accounting.
type Response struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(v float64) *float64 { return &v }

// EstimateTokens provides a rough token estimation for text
func EstimateTokens(text string) int {
	// ~4 characters per token on average
	return len(text) / 4
}

func truncateBody(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
