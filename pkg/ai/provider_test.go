package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructured_PlainJSON(t *testing.T) {
	var out struct {
		Answer     string  `json:"answer"`
		Confidence float64 `json:"confidence"`
	}
	err := ParseStructured(`{"answer": "yes", "confidence": 0.9}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "yes", out.Answer)
	assert.Equal(t, 0.9, out.Confidence)
}

func TestParseStructured_MarkdownFenced(t *testing.T) {
	var out struct {
		Answer string `json:"answer"`
	}
	content := "```json\n{\"answer\": \"fenced\"}\n```"
	require.NoError(t, ParseStructured(content, &out))
	assert.Equal(t, "fenced", out.Answer)
}

func TestParseStructured_LeadingProse(t *testing.T) {
	var out struct {
		Answer string `json:"answer"`
	}
	content := "Here is the result you asked for:\n{\"answer\": \"buried\"}\nHope that helps!"
	require.NoError(t, ParseStructured(content, &out))
	assert.Equal(t, "buried", out.Answer)
}

func TestParseStructured_Malformed(t *testing.T) {
	var out struct{}
	err := ParseStructured("not json at all", &out)
	require.Error(t, err)

	var llmErr *LLMError
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrParseFailure, llmErr.Code)
}

func TestLLMError_Transient(t *testing.T) {
	tests := []struct {
		code      LLMErrorCode
		transient bool
	}{
		{ErrTimeout, true},
		{ErrUnavailable, true},
		{ErrRateLimit, true},
		{ErrParseFailure, false},
	}
	for _, tt := range tests {
		err := &LLMError{Code: tt.code, Message: string(tt.code)}
		assert.Equal(t, tt.transient, err.Transient(), string(tt.code))
	}
}

func TestRetryPolicy_CalculateBackoff(t *testing.T) {
	p := RetryPolicy{
		MaxRetries:     5,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}

	assert.Equal(t, time.Second, p.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, p.CalculateBackoff(1))
	assert.Equal(t, 4*time.Second, p.CalculateBackoff(2))
	// Capped.
	assert.Equal(t, 5*time.Second, p.CalculateBackoff(3))
	assert.Equal(t, 5*time.Second, p.CalculateBackoff(10))
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := DefaultRetryPolicy()

	transient := &LLMError{Code: ErrRateLimit, Message: "rate limited"}
	permanent := &LLMError{Code: ErrParseFailure, Message: "bad json"}

	assert.True(t, p.ShouldRetry(transient, 0))
	assert.False(t, p.ShouldRetry(transient, p.MaxRetries))
	assert.False(t, p.ShouldRetry(permanent, 0))
	assert.False(t, p.ShouldRetry(errors.New("plain error"), 0))
}

func TestRetryPolicy_Do(t *testing.T) {
	p := RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2.0,
	}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &LLMError{Code: ErrUnavailable, Message: "down"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_Do_PermanentErrorStopsImmediately(t *testing.T) {
	p := DefaultRetryPolicy()

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return &LLMError{Code: ErrParseFailure, Message: "bad"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
