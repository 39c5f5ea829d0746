// Package langchain adapts langchaingo embedding providers to the passage embedder port.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/resilience"
)

// Embedder wraps a langchaingo embedder with dimension validation and the resilience executor.
type Embedder struct {
	model     embeddings.Embedder
	modelName string
	dimension int
	executor  *resilience.Executor
}

type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int
}

func NewOpenAIEmbedder(cfg OpenAIConfig, executor *resilience.Executor) (*Embedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	model, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create openai embedder: %w", err)
	}
	return NewEmbedder(model, "openai/"+cfg.Model, cfg.Dimension, executor), nil
}

// NewEmbedder accepts any langchaingo embedder; dimension 0 skips the dimension check.
func NewEmbedder(model embeddings.Embedder, modelName string, dimension int, executor *resilience.Executor) *Embedder {
	return &Embedder{
		model:     model,
		modelName: modelName,
		dimension: dimension,
		executor:  executor,
	}
}

func (e *Embedder) Model() string {
	return e.modelName
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := resilience.Call(ctx, e.executor, "langchain.embed", func(callCtx context.Context) ([][]float32, error) {
		return e.model.EmbedDocuments(callCtx, texts)
	}, classifyEmbedError)
	if err != nil {
		slog.Warn("embedding_failed",
			"model", e.modelName,
			"texts", len(texts),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err.Error(),
		)
		return nil, domain.WrapError(domain.ErrTemporary, "langchain embed", err)
	}

	if len(vectors) != len(texts) {
		return nil, domain.WrapError(domain.ErrTemporary, "langchain embed", fmt.Errorf("count mismatch: got %d, want %d", len(vectors), len(texts)))
	}
	for i, v := range vectors {
		if e.dimension > 0 && len(v) != e.dimension {
			return nil, fmt.Errorf("embedding %d dimension mismatch: got %d, want %d", i, len(v), e.dimension)
		}
		if isZeroVector(v) {
			return nil, domain.WrapError(domain.ErrTemporary, "langchain embed", fmt.Errorf("empty vector at index %d", i))
		}
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "langchain embed query", errors.New("empty text"))
	}
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// classifyEmbedError retries everything except cancellation; the provider SDK hides status codes.
func classifyEmbedError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{
		Retryable:     true,
		RecordFailure: true,
	}
}

func isZeroVector(vector []float32) bool {
	for _, v := range vector {
		if v != 0 {
			return false
		}
	}
	return true
}
