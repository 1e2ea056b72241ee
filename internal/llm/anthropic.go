package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 1024

// Anthropic generates text through the Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
	logger *log.Logger
}

// NewAnthropic builds an Anthropic generator with retries disabled.
func NewAnthropic(cfg ProviderConfig, logger *log.Logger) *Anthropic {
	cfg = cfg.withDefaults()
	opts := []aoption.RequestOption{
		aoption.WithAPIKey(cfg.APIKey),
		aoption.WithMaxRetries(0),
		aoption.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, aoption.WithBaseURL(cfg.Endpoint))
	}
	return &Anthropic{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}
}

// Generate sends a single user turn and concatenates the text blocks of the reply.
func (a *Anthropic) Generate(ctx context.Context, req Request) (*Response, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = a.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if sys := strings.TrimSpace(req.System); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}

	tokens := int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	if tokens <= 0 {
		tokens = EstimateTokens(req.System + req.Prompt + text)
	}
	used := string(msg.Model)
	if used == "" {
		used = model
	}
	return &Response{Text: text, Model: used, TokensUsed: tokens}, nil
}
