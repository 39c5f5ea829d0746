package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/resilience"
)

var _ ports.PassageStore = (*Client)(nil)

const upsertBatchSize = 128

// Client stores passage vectors in a single Qdrant collection, filtered by creator_id and video_id payload keys.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) UpsertChunks(ctx context.Context, videoID string, chunks []domain.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx, len(chunks[0].Vector)); err != nil {
		return err
	}

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		points := make([]point, 0, end-start)
		for _, item := range chunks[start:end] {
			if len(item.Vector) == 0 {
				return fmt.Errorf("chunk %s has no vector", item.Chunk.ChunkID)
			}
			points = append(points, point{
				ID:      item.Chunk.ChunkID,
				Vector:  item.Vector,
				Payload: chunkPayload(videoID, item),
			})
		}

		path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
		if err := c.do(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) DeleteChunks(ctx context.Context, videoID string) error {
	reqBody := map[string]any{
		"filter": matchFilter("video_id", videoID),
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	err := c.do(ctx, "delete", http.MethodPost, path, reqBody, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) NearestNeighbors(ctx context.Context, creatorID string, vector []float32, k int) ([]domain.RetrievalCandidate, error) {
	if k <= 0 || len(vector) == 0 {
		return []domain.RetrievalCandidate{}, nil
	}
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"filter":       matchFilter("creator_id", creatorID),
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.do(ctx, "search", http.MethodPost, path, reqBody, &searchResp); err != nil {
		if isNotFound(err) {
			return []domain.RetrievalCandidate{}, nil
		}
		return nil, err
	}

	out := make([]domain.RetrievalCandidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		chunk := payloadChunk(r.Payload)
		if chunk.ChunkID == "" {
			chunk.ChunkID = fmt.Sprintf("%v", r.ID)
		}
		out = append(out, domain.RetrievalCandidate{
			Chunk:           chunk,
			CreatorID:       getStringPayload(r.Payload, "creator_id"),
			SimilarityScore: r.Score,
			Source:          domain.SourceVector,
		})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.do(ctx, "ensure collection", http.MethodPut, "/collections/"+c.collection, reqBody, nil)
	if err != nil && !isAlreadyExists(err) {
		return err
	}

	for _, field := range []string{"creator_id", "video_id"} {
		indexBody := map[string]any{
			"field_name":   field,
			"field_schema": "keyword",
		}
		path := fmt.Sprintf("/collections/%s/index?wait=true", c.collection)
		if err := c.do(ctx, "ensure payload index", http.MethodPut, path, indexBody, nil); err != nil {
			return err
		}
	}

	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func matchFilter(key, value string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key": key,
				"match": map[string]any{
					"value": value,
				},
			},
		},
	}
}

func chunkPayload(videoID string, item domain.IndexedChunk) map[string]any {
	chunk := item.Chunk
	return map[string]any{
		"creator_id":       item.CreatorID,
		"video_id":         videoID,
		"chunk_id":         chunk.ChunkID,
		"start_time":       chunk.StartTime,
		"end_time":         chunk.EndTime,
		"content":          chunk.Content,
		"sentence_count":   chunk.SentenceCount,
		"word_count":       chunk.WordCount,
		"confidence_score": chunk.ConfidenceScore,
		"first_segment":    chunk.FirstSegment,
		"last_segment":     chunk.LastSegment,
	}
}

func payloadChunk(payload map[string]any) domain.SemanticChunk {
	return domain.SemanticChunk{
		ChunkID:         getStringPayload(payload, "chunk_id"),
		VideoID:         getStringPayload(payload, "video_id"),
		StartTime:       getFloatPayload(payload, "start_time"),
		EndTime:         getFloatPayload(payload, "end_time"),
		Content:         getStringPayload(payload, "content"),
		SentenceCount:   int(getFloatPayload(payload, "sentence_count")),
		WordCount:       int(getFloatPayload(payload, "word_count")),
		ConfidenceScore: getFloatPayload(payload, "confidence_score"),
		FirstSegment:    int(getFloatPayload(payload, "first_segment")),
		LastSegment:     int(getFloatPayload(payload, "last_segment")),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getFloatPayload(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
