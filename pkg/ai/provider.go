// Package ai provides the language model provider used by the insight
// pipeline. Callers depend on the Provider interface; the production
// implementation talks to the OpenAI chat completions API.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// CompletionRequest describes a single completion call.
type CompletionRequest struct {
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
	JSONMode     bool
}

// TokenUsage reports token consumption for a completion.
type TokenUsage struct {
	Prompt     int
	Completion int
	Total      int
}

// CompletionResponse is the raw result of a completion call.
type CompletionResponse struct {
	Content      string
	FinishReason string
	LatencyMs    int
	Model        string
	TokensUsed   TokenUsage
}

// Provider is the interface for LLM completion backends.
type Provider interface {
	// Name returns the provider identifier for logging and metrics.
	Name() string

	// Complete sends a completion request and returns the raw response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CompleteStructured sends a request expecting JSON output and parses it
	// into target. Implementations must tolerate markdown-fenced output.
	CompleteStructured(ctx context.Context, req CompletionRequest, target interface{}) error
}

// LLMErrorCode identifies the type of LLM error.
type LLMErrorCode string

const (
	ErrTimeout      LLMErrorCode = "timeout"
	ErrUnavailable  LLMErrorCode = "unavailable"
	ErrRateLimit    LLMErrorCode = "rate_limit"
	ErrParseFailure LLMErrorCode = "parse_failure"
)

// LLMError represents an error from the LLM provider.
type LLMError struct {
	Code    LLMErrorCode
	Message string
	Details interface{}
}

func (e *LLMError) Error() string {
	return e.Message
}

// Transient reports whether retrying the call may succeed.
func (e *LLMError) Transient() bool {
	switch e.Code {
	case ErrTimeout, ErrUnavailable, ErrRateLimit:
		return true
	}
	return false
}

// ParseStructured parses model output into target, tolerating markdown code
// fences and leading prose. LLMs frequently wrap JSON in ```json fences; a
// formatting slip must surface as ErrParseFailure, never a panic.
func ParseStructured(content string, target interface{}) error {
	cleaned := StripFences(content)

	if !gjson.Valid(cleaned) {
		// Last resort: pull the first JSON object or array out of the text.
		if extracted := extractJSON(cleaned); extracted != "" {
			cleaned = extracted
		}
	}

	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return &LLMError{
			Code:    ErrParseFailure,
			Message: fmt.Sprintf("parse JSON: %v", err),
			Details: content,
		}
	}
	return nil
}

// StripFences removes a surrounding markdown code fence, if present.
func StripFences(content string) string {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// extractJSON returns the first balanced JSON object or array in s, or "".
func extractJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if gjson.Valid(candidate) {
					return candidate
				}
				return ""
			}
		}
	}
	return ""
}
