package pipeline

import (
	"context"
	"time"

	"github.com/otherjamesbrown/penf-live/pkg/ai"
	"github.com/otherjamesbrown/penf-live/pkg/embedding"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
)

// instrumentedProvider wraps a model provider with call metrics and spans so
// every detection component reports cost and latency through one path.
type instrumentedProvider struct {
	inner   ai.Provider
	metrics *observability.PipelineMetrics
	tracer  *observability.Tracer
}

func newInstrumentedProvider(inner ai.Provider, metrics *observability.PipelineMetrics, tracer *observability.Tracer) ai.Provider {
	return &instrumentedProvider{inner: inner, metrics: metrics, tracer: tracer}
}

func (p *instrumentedProvider) Name() string { return p.inner.Name() }

func (p *instrumentedProvider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	ctx, span := p.tracer.StartLLMSpan(ctx, p.inner.Name())
	started := time.Now()
	resp, err := p.inner.Complete(ctx, req)
	p.record("complete", started, err)
	if resp != nil {
		p.recordTokens("complete", resp.TokensUsed)
	}
	observability.EndSpan(span, err)
	return resp, err
}

func (p *instrumentedProvider) CompleteStructured(ctx context.Context, req ai.CompletionRequest, target interface{}) error {
	ctx, span := p.tracer.StartLLMSpan(ctx, p.inner.Name())
	started := time.Now()
	err := p.inner.CompleteStructured(ctx, req, target)
	p.record("complete_structured", started, err)
	observability.EndSpan(span, err)
	return err
}

func (p *instrumentedProvider) record(op string, started time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.AIOperationsTotal.WithLabelValues(op, status).Inc()
	p.metrics.AILatencySeconds.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (p *instrumentedProvider) recordTokens(op string, usage ai.TokenUsage) {
	if usage.Prompt > 0 {
		p.metrics.AITokensTotal.WithLabelValues(op, "prompt").Add(float64(usage.Prompt))
	}
	if usage.Completion > 0 {
		p.metrics.AITokensTotal.WithLabelValues(op, "completion").Add(float64(usage.Completion))
	}
}

// instrumentedEmbedder does the same for embedding calls.
type instrumentedEmbedder struct {
	inner   embedding.Client
	metrics *observability.PipelineMetrics
	tracer  *observability.Tracer
}

func newInstrumentedEmbedder(inner embedding.Client, metrics *observability.PipelineMetrics, tracer *observability.Tracer) embedding.Client {
	return &instrumentedEmbedder{inner: inner, metrics: metrics, tracer: tracer}
}

func (e *instrumentedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, span := e.tracer.StartEmbeddingSpan(ctx)
	started := time.Now()
	vec, err := e.inner.Embed(ctx, text)

	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.AIOperationsTotal.WithLabelValues("embed", status).Inc()
	e.metrics.AILatencySeconds.WithLabelValues("embed").Observe(time.Since(started).Seconds())
	observability.EndSpan(span, err)
	return vec, err
}
