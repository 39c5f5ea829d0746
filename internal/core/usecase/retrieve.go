package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
)

type RetrieveOptions struct {
	DefaultK     int
	MaxK         int
	OverFetch    int
	EmbedTimeout time.Duration
	GraphTimeout time.Duration
	FallbackStep float64
}

func DefaultRetrieveOptions() RetrieveOptions {
	return RetrieveOptions{
		DefaultK:     5,
		MaxK:         50,
		OverFetch:    3,
		EmbedTimeout: 5 * time.Second,
		GraphTimeout: 3 * time.Second,
		FallbackStep: 0.05,
	}
}

func (o RetrieveOptions) normalize() RetrieveOptions {
	def := DefaultRetrieveOptions()
	if o.DefaultK <= 0 {
		o.DefaultK = def.DefaultK
	}
	if o.MaxK <= 0 {
		o.MaxK = def.MaxK
	}
	if o.OverFetch <= 0 {
		o.OverFetch = def.OverFetch
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = def.EmbedTimeout
	}
	if o.GraphTimeout <= 0 {
		o.GraphTimeout = def.GraphTimeout
	}
	if o.FallbackStep <= 0 {
		o.FallbackStep = def.FallbackStep
	}
	return o
}

// RetrieveUseCase turns a fan question into ranked, time-stamped citations.
type RetrieveUseCase struct {
	embedder ports.Embedder
	store    ports.PassageStore
	graph    ports.GraphBackend
	catalog  ports.VideoCatalog
	router   *QueryRouter
	reranker ports.Reranker
	opts     RetrieveOptions
}

// NewRetrieveUseCase accepts a nil graph backend or reranker.
func NewRetrieveUseCase(
	embedder ports.Embedder,
	store ports.PassageStore,
	graph ports.GraphBackend,
	catalog ports.VideoCatalog,
	router *QueryRouter,
	reranker ports.Reranker,
	opts RetrieveOptions,
) *RetrieveUseCase {
	if router == nil {
		router = NewQueryRouter(graph, domain.DefaultRoutingHeuristics(), 0)
	}
	return &RetrieveUseCase{
		embedder: embedder,
		store:    store,
		graph:    graph,
		catalog:  catalog,
		router:   router,
		reranker: reranker,
		opts:     opts.normalize(),
	}
}

func (uc *RetrieveUseCase) Retrieve(ctx context.Context, creatorID, query string, k int) (*domain.RetrievalResult, error) {
	creatorID = strings.TrimSpace(creatorID)
	query = strings.TrimSpace(query)
	result := domain.EmptyRetrieval(query)
	if creatorID == "" || query == "" {
		return result, nil
	}
	k = uc.normalizeK(k)
	fetch := k * uc.opts.OverFetch

	decision := uc.router.ChooseStrategy(ctx, query)
	result.Strategy = decision.Strategy()

	var (
		vectorCandidates []domain.RetrievalCandidate
		graphCandidates  []domain.RetrievalCandidate
		graphFailed      atomic.Bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		candidates, err := uc.vectorSearch(gctx, creatorID, query, fetch)
		if err != nil {
			return err
		}
		vectorCandidates = candidates
		return nil
	})
	if decision.Graph {
		g.Go(func() error {
			candidates, err := uc.graphSearch(gctx, creatorID, query, fetch)
			if err != nil {
				graphFailed.Store(true)
				slog.Warn("retrieval_graph_fallback",
					"creator_id", creatorID,
					"error", err.Error(),
				)
				return nil
			}
			graphCandidates = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if graphFailed.Load() {
		result.Strategy = domain.StrategyVector
		result.GraphFallback = true
	}

	combined := make([]domain.RetrievalCandidate, 0, len(vectorCandidates)+len(graphCandidates))
	combined = append(combined, applyBaselineScores(vectorCandidates, uc.opts.FallbackStep)...)
	combined = append(combined, applyBaselineScores(graphCandidates, uc.opts.FallbackStep)...)
	if len(combined) == 0 {
		return result, nil
	}
	if uc.reranker != nil {
		combined = uc.reranker.Rerank(ctx, query, combined)
	}
	ranked := trimCandidates(mergeCandidates(combined), k)

	citations, err := uc.buildCitations(ctx, ranked)
	if err != nil {
		return nil, err
	}
	result.Citations = citations
	result.Confidence = meanRelevance(citations)

	slog.Debug("retrieval_completed",
		"creator_id", creatorID,
		"strategy", string(result.Strategy),
		"route_reason", decision.Reason,
		"vector_candidates", len(vectorCandidates),
		"graph_candidates", len(graphCandidates),
		"citations", len(citations),
	)
	return result, nil
}

// vectorSearch treats embedding failures as an empty candidate list; store failures propagate.
func (uc *RetrieveUseCase) vectorSearch(ctx context.Context, creatorID, query string, limit int) ([]domain.RetrievalCandidate, error) {
	embedCtx, cancel := context.WithTimeout(ctx, uc.opts.EmbedTimeout)
	vector, err := uc.embedder.EmbedQuery(embedCtx, query)
	cancel()
	if err != nil {
		slog.Warn("retrieval_embed_failed",
			"creator_id", creatorID,
			"error", err.Error(),
		)
		return nil, nil
	}
	if !usableVector(vector) {
		slog.Warn("retrieval_embed_failed",
			"creator_id", creatorID,
			"error", "empty query vector",
		)
		return nil, nil
	}

	candidates, err := uc.store.NearestNeighbors(ctx, creatorID, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("search passage store: %w", err)
	}
	for i := range candidates {
		candidates[i].Source = domain.SourceVector
	}
	return candidates, nil
}

func (uc *RetrieveUseCase) graphSearch(ctx context.Context, creatorID, query string, limit int) ([]domain.RetrievalCandidate, error) {
	if uc.graph == nil {
		return nil, fmt.Errorf("graph backend not configured")
	}
	graphCtx, cancel := context.WithTimeout(ctx, uc.opts.GraphTimeout)
	defer cancel()

	candidates, err := uc.graph.Query(graphCtx, creatorID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query graph backend: %w", err)
	}
	for i := range candidates {
		candidates[i].Source = domain.SourceGraph
	}
	return candidates, nil
}

func (uc *RetrieveUseCase) buildCitations(ctx context.Context, ranked []domain.RetrievalCandidate) ([]domain.Citation, error) {
	ids := make([]string, 0, len(ranked))
	seen := make(map[string]struct{}, len(ranked))
	for _, candidate := range ranked {
		if _, ok := seen[candidate.Chunk.VideoID]; ok {
			continue
		}
		seen[candidate.Chunk.VideoID] = struct{}{}
		ids = append(ids, candidate.Chunk.VideoID)
	}

	videos := map[string]domain.Video{}
	if uc.catalog != nil && len(ids) > 0 {
		loaded, err := uc.catalog.GetVideos(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load video metadata: %w", err)
		}
		videos = loaded
	}

	citations := make([]domain.Citation, 0, len(ranked))
	for _, candidate := range ranked {
		video := videos[candidate.Chunk.VideoID]
		videoURL := video.CanonicalURL
		if videoURL == "" {
			videoURL = youtubeWatchURL(candidate.Chunk.VideoID)
		}
		citations = append(citations, domain.Citation{
			ChunkID:        candidate.Chunk.ChunkID,
			VideoID:        candidate.Chunk.VideoID,
			VideoTitle:     video.Title,
			VideoURL:       videoURL,
			TimestampURL:   timestampURL(videoURL, candidate.Chunk.StartTime),
			Content:        candidate.Chunk.Content,
			StartTime:      candidate.Chunk.StartTime,
			EndTime:        candidate.Chunk.EndTime,
			RelevanceScore: candidate.SimilarityScore,
			Source:         candidate.Source,
		})
	}
	return citations, nil
}

func (uc *RetrieveUseCase) normalizeK(k int) int {
	if k <= 0 {
		return uc.opts.DefaultK
	}
	if k > uc.opts.MaxK {
		return uc.opts.MaxK
	}
	return k
}

func meanRelevance(citations []domain.Citation) float64 {
	if len(citations) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range citations {
		sum += c.RelevanceScore
	}
	return sum / float64(len(citations))
}

func youtubeWatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
}

func timestampURL(videoURL string, start float64) string {
	seconds := int(math.Floor(math.Max(0, start)))
	sep := "?"
	if strings.Contains(videoURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%st=%ds", videoURL, sep, seconds)
}

func usableVector(vector []float32) bool {
	for _, v := range vector {
		if v != 0 {
			return true
		}
	}
	return false
}
