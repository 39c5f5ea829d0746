package usecase

import (
	"fmt"
	"math"
	"sort"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
)

// applyBaselineScores clamps provider similarity into [0,1], so zero and negative
// cosines stay at the bottom. Only candidates flagged Unscored (or carrying NaN) are
// ranked by their position in the backend's answer.
func applyBaselineScores(candidates []domain.RetrievalCandidate, step float64) []domain.RetrievalCandidate {
	out := make([]domain.RetrievalCandidate, len(candidates))
	for i, candidate := range candidates {
		score := candidate.SimilarityScore
		if candidate.Unscored || math.IsNaN(score) {
			score = 1 - float64(i)*step
		}
		candidate.SimilarityScore = clampUnit(score)
		candidate.Unscored = false
		out[i] = candidate
	}
	return out
}

// mergeCandidates collapses candidates sharing a chunk identity into the highest-scoring instance.
func mergeCandidates(lists ...[]domain.RetrievalCandidate) []domain.RetrievalCandidate {
	total := 0
	for _, list := range lists {
		total += len(list)
	}

	acc := make(map[string]domain.RetrievalCandidate, total)
	order := make([]string, 0, total)
	for _, list := range lists {
		for _, candidate := range list {
			key := candidateKey(candidate)
			current, ok := acc[key]
			if !ok {
				acc[key] = candidate
				order = append(order, key)
				continue
			}
			acc[key] = preferStrongerCandidate(current, candidate)
		}
	}

	out := make([]domain.RetrievalCandidate, 0, len(acc))
	for _, key := range order {
		out = append(out, acc[key])
	}
	sortCandidates(out)
	return out
}

func sortCandidates(candidates []domain.RetrievalCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.SimilarityScore != b.SimilarityScore {
			return a.SimilarityScore > b.SimilarityScore
		}
		if a.Chunk.VideoID != b.Chunk.VideoID {
			return a.Chunk.VideoID < b.Chunk.VideoID
		}
		if a.Chunk.StartTime != b.Chunk.StartTime {
			return a.Chunk.StartTime < b.Chunk.StartTime
		}
		return a.Chunk.ChunkID < b.Chunk.ChunkID
	})
}

func trimCandidates(candidates []domain.RetrievalCandidate, limit int) []domain.RetrievalCandidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

func candidateKey(candidate domain.RetrievalCandidate) string {
	if candidate.Chunk.ChunkID != "" {
		return candidate.Chunk.ChunkID
	}
	return fmt.Sprintf("%s|%.3f|%.3f", candidate.Chunk.VideoID, candidate.Chunk.StartTime, candidate.Chunk.EndTime)
}

func preferStrongerCandidate(current, candidate domain.RetrievalCandidate) domain.RetrievalCandidate {
	winner, other := current, candidate
	if candidate.SimilarityScore > current.SimilarityScore {
		winner, other = candidate, current
	}
	if winner.Chunk.Content == "" && other.Chunk.Content != "" {
		winner.Chunk.Content = other.Chunk.Content
	}
	if winner.CreatorID == "" && other.CreatorID != "" {
		winner.CreatorID = other.CreatorID
	}
	if winner.Chunk.VideoID == "" && other.Chunk.VideoID != "" {
		winner.Chunk.VideoID = other.Chunk.VideoID
	}
	if winner.Chunk.EndTime <= winner.Chunk.StartTime && other.Chunk.EndTime > other.Chunk.StartTime {
		winner.Chunk.StartTime = other.Chunk.StartTime
		winner.Chunk.EndTime = other.Chunk.EndTime
	}
	return winner
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
