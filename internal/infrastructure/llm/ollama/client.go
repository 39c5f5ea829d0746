package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

// New builds an Ollama client; a nil executor disables retries and circuit breaking.
func New(baseURL, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// Model identifies the embedding space, used to scope cached query vectors.
func (e *Embedder) Model() string {
	return "ollama/" + e.client.embedModel
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "embed", "/api/embed", request, &response); err != nil {
		return nil, err
	}
	vectors := response.Embeddings

	if len(vectors) != len(texts) {
		return nil, domain.WrapError(
			domain.ErrTemporary,
			"ollama embed",
			fmt.Errorf("vectors/texts mismatch: %d/%d", len(vectors), len(texts)),
		)
	}
	for i, vector := range vectors {
		if isZeroVector(vector) {
			return nil, domain.WrapError(domain.ErrTemporary, "ollama embed", fmt.Errorf("empty vector at index %d", i))
		}
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ollama embed query", errors.New("empty text"))
	}
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func isZeroVector(vector []float32) bool {
	for _, v := range vector {
		if v != 0 {
			return false
		}
	}
	return true
}
