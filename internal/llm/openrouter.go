package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
)

// OpenRouter implements a generator backed by OpenRouter (OpenAI-compatible API).
// Docs: https://openrouter.ai/docs
type OpenRouter struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *log.Logger
}

// NewOpenRouter constructs a new OpenRouter generator.
// When the config carries no key this constructor will try OPENROUTER_API_KEY.
func NewOpenRouter(cfg ProviderConfig, logger *log.Logger) (*OpenRouter, error) {
	cfg.Provider = "openrouter"
	cfg = cfg.withDefaults()
	key := cfg.APIKey
	if key == "" {
		key = strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	}
	if key == "" {
		return nil, fmt.Errorf("openrouter: apiKey required (set genai.api_key or OPENROUTER_API_KEY)")
	}
	return &OpenRouter{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     key,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

type orMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type orReq struct {
	Model       string   `json:"model"`
	Messages    []orMsg  `json:"messages"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type orResp struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate calls /chat/completions.
func (o *OpenRouter) Generate(ctx context.Context, req Request) (*Response, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = o.model
	}
	if model == "" {
		return nil, fmt.Errorf("openrouter: model not configured")
	}

	msgs := make([]orMsg, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, orMsg{Role: "system", Content: req.System})
	}
	msgs = append(msgs, orMsg{Role: "user", Content: req.Prompt})

	data, err := json.Marshal(orReq{Model: model, Messages: msgs, MaxTokens: req.MaxTokens, Temperature: req.Temperature})
	if err != nil {
		return nil, fmt.Errorf("openrouter: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("openrouter: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("X-Title", "Harvey")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openrouter: request error: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("openrouter: status %d: %s", resp.StatusCode, truncateBody(string(body), 400))
	}

	var parsed orResp
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("openrouter: decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openrouter: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("openrouter: %w", ErrEmptyResponse)
	}
	content := parsed.Choices[0].Message.Content

	// Prefer usage tokens if provided
	tokens := parsed.Usage.TotalTokens
	if tokens <= 0 {
		tokens = EstimateTokens(req.System + req.Prompt + content)
	}
	used := parsed.Model
	if used == "" {
		used = model
	}
	return &Response{Text: content, Model: used, TokensUsed: tokens}, nil
}

// ListModels queries OpenRouter /models and returns model IDs.
func (o *OpenRouter) ListModels(ctx context.Context) ([]string, error) {
	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("openrouter list models: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter list models: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("openrouter list models: status %d: %s", resp.StatusCode, truncateBody(string(body), 400))
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("openrouter list models: decode: %w", err)
	}
	out := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		if strings.TrimSpace(m.ID) != "" {
			out = append(out, m.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// HealthCheck performs a lightweight GET /models using the API key.
func (o *OpenRouter) HealthCheck(ctx context.Context) error {
	_, err := o.ListModels(ctx)
	return err
}
