package usecase

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
)

const (
	baselineWeight = 0.60
	overlapWeight  = 0.30
	phraseWeight   = 0.10
)

// LexicalReranker blends the backend baseline with query/passage token overlap
// and exact phrase hits. Only the best topN by baseline get lexical rescoring; the
// rest keep the baseline share of the blend and always rank below the head.
type LexicalReranker struct {
	topN int
}

func NewLexicalReranker(topN int) *LexicalReranker {
	return &LexicalReranker{topN: topN}
}

func (r *LexicalReranker) Rerank(_ context.Context, query string, candidates []domain.RetrievalCandidate) []domain.RetrievalCandidate {
	if len(candidates) == 0 {
		return candidates
	}
	topN := r.topN
	if topN <= 0 || topN > len(candidates) {
		topN = len(candidates)
	}

	out := make([]domain.RetrievalCandidate, len(candidates))
	copy(out, candidates)
	sortCandidates(out)

	queryTokens := splitAlphaNumLower(query)
	querySet := toTokenSet(queryTokens)
	headFloor := 1.0
	for i := range out[:topN] {
		passageTokens := splitAlphaNumLower(out[i].Chunk.Content)
		overlap := tokenOverlap(querySet, toTokenSet(passageTokens))
		phrase := phraseHit(queryTokens, passageTokens)
		out[i].SimilarityScore = clampUnit(baselineWeight*out[i].SimilarityScore + overlapWeight*overlap + phraseWeight*phrase)
		headFloor = min(headFloor, out[i].SimilarityScore)
	}
	for i := range out[topN:] {
		tail := &out[topN+i]
		tail.SimilarityScore = clampUnit(baselineWeight * tail.SimilarityScore)
		if tail.SimilarityScore >= headFloor {
			tail.SimilarityScore = math.Max(0, math.Nextafter(headFloor, 0))
		}
	}

	sortCandidates(out)
	return out
}

func tokenOverlap(query, passage map[string]struct{}) float64 {
	if len(query) == 0 || len(passage) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := passage[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

// phraseHit reports whether any adjacent query token pair occurs verbatim in the passage.
func phraseHit(query, passage []string) float64 {
	if len(query) < 2 || len(passage) < 2 {
		return 0
	}
	joined := " " + strings.Join(passage, " ") + " "
	for i := 0; i+1 < len(query); i++ {
		if strings.Contains(joined, " "+query[i]+" "+query[i+1]+" ") {
			return 1
		}
	}
	return 0
}

func toTokenSet(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
