// Package embedding provides the text embedding client and the cosine
// similarity primitive used throughout the duplicate, repetition, and
// relevance checks.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"gonum.org/v1/gonum/floats"
)

// Client is the interface for embedding backends.
type Client interface {
	// Embed returns a fixed-length vector representation of text.
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Cosine returns the cosine similarity of two vectors. It returns 0 when the
// vectors differ in length or either has zero magnitude.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := floats.Dot(a, b) / (na * nb)
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

// OpenAIConfig configures the OpenAI embedding client.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	RequestTimeout time.Duration
}

// OpenAIClient implements Client using the OpenAI embeddings API.
type OpenAIClient struct {
	client openai.Client
	model  string
	tmout  time.Duration
}

// NewOpenAIClient creates an embedding client backed by the OpenAI API.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
		tmout:  cfg.RequestTimeout,
	}
}

// Embed returns the embedding vector for text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, errors.New("embed: empty text")
	}
	if c.tmout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.tmout)
		defer cancel()
	}

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embed: empty response")
	}
	return resp.Data[0].Embedding, nil
}

// Verify interface compliance.
var _ Client = (*OpenAIClient)(nil)
