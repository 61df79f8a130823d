package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIConfig configures the OpenAI-backed provider.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	MaxTokens      int
	Temperature    float64
	RequestTimeout time.Duration
	MaxRetries     int
}

// DefaultOpenAIConfig returns sensible defaults for extraction workloads.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:          "gpt-4o-mini",
		MaxTokens:      2048,
		Temperature:    0.1,
		RequestTimeout: 60 * time.Second,
		MaxRetries:     2,
	}
}

// OpenAIProvider implements Provider using the OpenAI chat completions API.
type OpenAIProvider struct {
	client openai.Client
	config OpenAIConfig
	name   string
}

// NewOpenAIProvider creates a provider backed by the OpenAI API.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIConfig().Model
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		config: cfg,
		name:   fmt.Sprintf("openai-%s", cfg.Model),
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Complete sends a completion request and returns the raw response.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if p.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.RequestTimeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.config.Model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	} else if p.config.Temperature > 0 {
		params.Temperature = openai.Float(p.config.Temperature)
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	latency := time.Since(start)

	if len(resp.Choices) == 0 {
		return nil, &LLMError{Code: ErrParseFailure, Message: "completion returned no choices"}
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		LatencyMs:    int(latency.Milliseconds()),
		Model:        resp.Model,
		TokensUsed: TokenUsage{
			Prompt:     int(resp.Usage.PromptTokens),
			Completion: int(resp.Usage.CompletionTokens),
			Total:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// CompleteStructured sends a request expecting JSON output and parses it.
// Parse failures are retried with a stronger format hint, up to MaxRetries.
func (p *OpenAIProvider) CompleteStructured(ctx context.Context, req CompletionRequest, target interface{}) error {
	if !strings.Contains(req.Prompt, "JSON") && !strings.Contains(req.Prompt, "json") {
		req.Prompt += "\n\nRespond with valid JSON only."
	}
	req.JSONMode = true

	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return err
			}
			continue
		}

		if err := ParseStructured(resp.Content, target); err != nil {
			lastErr = err
			if attempt < p.config.MaxRetries {
				req.Prompt += "\n\nIMPORTANT: Respond with valid JSON only. No markdown, no explanations."
			}
			continue
		}
		return nil
	}
	return lastErr
}

// classifyError maps transport and API errors onto LLMError codes.
func classifyError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &LLMError{Code: ErrTimeout, Message: "request timeout"}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return &LLMError{Code: ErrUnavailable, Message: "request canceled"}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return &LLMError{Code: ErrRateLimit, Message: "rate limited", Details: apiErr.Error()}
		case apiErr.StatusCode >= 500:
			return &LLMError{Code: ErrUnavailable, Message: fmt.Sprintf("provider error: %d", apiErr.StatusCode)}
		}
	}
	return &LLMError{Code: ErrUnavailable, Message: fmt.Sprintf("completion failed: %v", err)}
}

// Verify interface compliance.
var _ Provider = (*OpenAIProvider)(nil)
