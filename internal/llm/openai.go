package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
)

// OpenAI generates text through the chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
	logger *log.Logger
}

// NewOpenAI builds an OpenAI generator. Retries are disabled; callers own the
// fallback path.
func NewOpenAI(cfg ProviderConfig, logger *log.Logger) *OpenAI {
	cfg = cfg.withDefaults()
	opts := []ooption.RequestOption{
		ooption.WithAPIKey(cfg.APIKey),
		ooption.WithMaxRetries(0),
		ooption.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, ooption.WithBaseURL(cfg.Endpoint))
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}
}

// Generate sends the system and user messages and returns the first choice.
func (o *OpenAI) Generate(ctx context.Context, req Request) (*Response, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = o.model
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	text := resp.Choices[0].Message.Content

	tokens := int(resp.Usage.TotalTokens)
	if tokens <= 0 {
		tokens = EstimateTokens(req.System + req.Prompt + text)
	}
	used := resp.Model
	if used == "" {
		used = model
	}
	return &Response{Text: text, Model: used, TokensUsed: tokens}, nil
}
