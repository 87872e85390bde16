package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/guardrail/internal/domain"
	"github.com/kailas-cloud/guardrail/internal/metrics"
)

// Generator produces the downstream response via chat completions.
// Only invoked by the pipeline after the guardrail checks pass.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// GeneratorConfig holds the generation provider settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible chat generator.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      cfg.Logger,
	}
}

// Generate implements domain.Generator. The pipeline never inspects
// the error subtype; everything wraps domain.ErrGenerationFailed.
func (g *Generator) Generate(ctx context.Context, text string) (domain.GenerationResult, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	}
	if g.maxTokens > 0 {
		req.MaxCompletionTokens = g.maxTokens
	}

	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestDuration.WithLabelValues(g.model, "error").Observe(duration.Seconds())
		return domain.GenerationResult{}, fmt.Errorf("chat completion: %w: %w", domain.ErrGenerationFailed, err)
	}

	if len(resp.Choices) == 0 {
		metrics.GenerationRequestDuration.WithLabelValues(g.model, "error").Observe(duration.Seconds())
		return domain.GenerationResult{}, fmt.Errorf("empty completion response: %w", domain.ErrGenerationFailed)
	}

	metrics.GenerationRequestDuration.WithLabelValues(g.model, "success").Observe(duration.Seconds())

	return domain.GenerationResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Model:            resp.Model,
	}, nil
}
