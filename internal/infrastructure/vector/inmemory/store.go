// Package inmemory keeps passage vectors in process memory. It backs the CLI and tests
// when no Qdrant endpoint is configured.
package inmemory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
)

var _ ports.PassageStore = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	byVideo map[string][]domain.IndexedChunk
}

func New() *Store {
	return &Store{byVideo: make(map[string][]domain.IndexedChunk)}
}

func (s *Store) UpsertChunks(_ context.Context, videoID string, chunks []domain.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.byVideo[videoID]
	index := make(map[string]int, len(existing))
	for i, item := range existing {
		index[item.Chunk.ChunkID] = i
	}
	for _, item := range chunks {
		item.Vector = append([]float32(nil), item.Vector...)
		if i, ok := index[item.Chunk.ChunkID]; ok {
			existing[i] = item
			continue
		}
		index[item.Chunk.ChunkID] = len(existing)
		existing = append(existing, item)
	}
	s.byVideo[videoID] = existing
	return nil
}

func (s *Store) DeleteChunks(_ context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byVideo, videoID)
	return nil
}

func (s *Store) NearestNeighbors(_ context.Context, creatorID string, vector []float32, k int) ([]domain.RetrievalCandidate, error) {
	if k <= 0 || len(vector) == 0 || strings.TrimSpace(creatorID) == "" {
		return []domain.RetrievalCandidate{}, nil
	}

	s.mu.RLock()
	out := make([]domain.RetrievalCandidate, 0)
	for _, items := range s.byVideo {
		for _, item := range items {
			if item.CreatorID != creatorID {
				continue
			}
			out = append(out, domain.RetrievalCandidate{
				Chunk:           item.Chunk,
				CreatorID:       item.CreatorID,
				SimilarityScore: cosine(vector, item.Vector),
				Source:          domain.SourceVector,
			})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SimilarityScore != out[j].SimilarityScore {
			return out[i].SimilarityScore > out[j].SimilarityScore
		}
		return out[i].Chunk.ChunkID < out[j].Chunk.ChunkID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Len reports how many passages are stored for a video.
func (s *Store) Len(videoID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byVideo[videoID])
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
