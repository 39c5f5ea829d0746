package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
)

const complexQuery = "how is the pasta recipe related to the sauce"

func candidate(id, videoID string, start, score float64) domain.RetrievalCandidate {
	return domain.RetrievalCandidate{
		Chunk: domain.SemanticChunk{
			ChunkID:   id,
			VideoID:   videoID,
			StartTime: start,
			EndTime:   start + 60,
			Content:   "passage " + id,
		},
		CreatorID:       "creator-1",
		SimilarityScore: score,
	}
}

func unscored(c domain.RetrievalCandidate) domain.RetrievalCandidate {
	c.SimilarityScore = 0
	c.Unscored = true
	return c
}

func newRetrieveFixture(graph *graphFake) (*RetrieveUseCase, *passageStoreFake, *embedderFake, *catalogFake) {
	store := newPassageStoreFake()
	embedder := &embedderFake{}
	catalog := newCatalogFake(domain.Video{
		ID:           "vid-1",
		CreatorID:    "creator-1",
		Title:        "Crispy Chicken",
		CanonicalURL: "https://youtu.be/vid-1",
	})
	backend := graphBackendOrNil(graph)
	uc := NewRetrieveUseCase(
		embedder,
		store,
		backend,
		catalog,
		NewQueryRouter(backend, domain.DefaultRoutingHeuristics(), 0),
		nil,
		DefaultRetrieveOptions(),
	)
	return uc, store, embedder, catalog
}

func TestRetrieveEmptyCreatorReturnsEmptyResult(t *testing.T) {
	uc, _, _, _ := newRetrieveFixture(nil)

	result, err := uc.Retrieve(context.Background(), "creator-without-videos", "best pasta recipe", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Citations == nil || len(result.Citations) != 0 {
		t.Fatalf("expected empty non-nil citations, got %#v", result.Citations)
	}
	if result.Confidence != 0 {
		t.Fatalf("expected confidence 0, got %f", result.Confidence)
	}
}

func TestRetrieveBlankInputsReturnEmptyResult(t *testing.T) {
	uc, store, _, _ := newRetrieveFixture(nil)
	store.searchErr = errors.New("must not be called")

	for _, tc := range []struct{ creator, query string }{{"", "pasta"}, {"creator-1", "   "}} {
		result, err := uc.Retrieve(context.Background(), tc.creator, tc.query, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Citations) != 0 {
			t.Fatalf("expected empty citations, got %d", len(result.Citations))
		}
	}
}

func TestRetrieveShortQuerySkipsGraph(t *testing.T) {
	graph := &graphFake{available: true}
	uc, store, _, _ := newRetrieveFixture(graph)
	store.neighbors = []domain.RetrievalCandidate{candidate("c1", "vid-1", 10, 0.8)}

	result, err := uc.Retrieve(context.Background(), "creator-1", "best pasta recipe", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if graph.queried {
		t.Fatalf("expected graph backend not to be queried")
	}
	if result.Strategy != domain.StrategyVector {
		t.Fatalf("expected vector strategy, got %s", result.Strategy)
	}
}

func TestRetrieveCollapsesDuplicateChunksAcrossPaths(t *testing.T) {
	graph := &graphFake{
		available: true,
		candidates: []domain.RetrievalCandidate{
			candidate("c1", "vid-1", 10, 0.7),
			unscored(candidate("c3", "vid-1", 200, 0)),
		},
	}
	uc, store, _, _ := newRetrieveFixture(graph)
	store.neighbors = []domain.RetrievalCandidate{
		candidate("c1", "vid-1", 10, 0.8),
		candidate("c2", "vid-1", 100, 0.6),
	}

	result, err := uc.Retrieve(context.Background(), "creator-1", complexQuery, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Strategy != domain.StrategyGraph || result.GraphFallback {
		t.Fatalf("expected graph strategy without fallback, got %s/%v", result.Strategy, result.GraphFallback)
	}
	if len(result.Citations) != 3 {
		t.Fatalf("expected 3 citations, got %d", len(result.Citations))
	}

	seen := map[string]int{}
	for _, citation := range result.Citations {
		seen[citation.ChunkID]++
	}
	if seen["c1"] != 1 {
		t.Fatalf("expected c1 exactly once, got %d", seen["c1"])
	}

	order := []string{result.Citations[0].ChunkID, result.Citations[1].ChunkID, result.Citations[2].ChunkID}
	if !reflect.DeepEqual(order, []string{"c3", "c1", "c2"}) {
		t.Fatalf("unexpected order: %v", order)
	}
	if result.Citations[1].RelevanceScore != 0.8 || result.Citations[1].Source != domain.SourceVector {
		t.Fatalf("expected highest-scoring c1 instance to survive, got %+v", result.Citations[1])
	}
}

func TestRetrieveGraphFailureFallsBackToVector(t *testing.T) {
	graph := &graphFake{available: true, err: errors.New("neo4j: connection reset")}
	uc, store, _, _ := newRetrieveFixture(graph)
	store.neighbors = []domain.RetrievalCandidate{candidate("c1", "vid-1", 10, 0.8)}

	result, err := uc.Retrieve(context.Background(), "creator-1", complexQuery, 5)
	if err != nil {
		t.Fatalf("expected silent fallback, got %v", err)
	}
	if !result.GraphFallback || result.Strategy != domain.StrategyVector {
		t.Fatalf("expected vector fallback, got %s/%v", result.Strategy, result.GraphFallback)
	}
	if len(result.Citations) != 1 {
		t.Fatalf("expected vector citations, got %d", len(result.Citations))
	}
}

func TestRetrieveEmbedFailureWithoutGraphReturnsEmpty(t *testing.T) {
	uc, store, embedder, _ := newRetrieveFixture(nil)
	embedder.queryErr = errors.New("ollama unavailable")
	store.neighbors = []domain.RetrievalCandidate{candidate("c1", "vid-1", 10, 0.8)}

	result, err := uc.Retrieve(context.Background(), "creator-1", "best pasta recipe", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Citations) != 0 || result.Confidence != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestRetrieveEmbedFailureUsesGraphOnly(t *testing.T) {
	graph := &graphFake{available: true, candidates: []domain.RetrievalCandidate{candidate("g1", "vid-1", 30, 0.9)}}
	uc, store, embedder, _ := newRetrieveFixture(graph)
	embedder.queryErr = errors.New("ollama unavailable")
	store.neighbors = []domain.RetrievalCandidate{candidate("c1", "vid-1", 10, 0.8)}

	result, err := uc.Retrieve(context.Background(), "creator-1", complexQuery, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Citations) != 1 || result.Citations[0].ChunkID != "g1" {
		t.Fatalf("expected graph-only citations, got %+v", result.Citations)
	}
}

func TestRetrieveStoreErrorPropagates(t *testing.T) {
	uc, store, _, _ := newRetrieveFixture(nil)
	store.searchErr = errors.New("qdrant down")

	if _, err := uc.Retrieve(context.Background(), "creator-1", "best pasta recipe", 5); err == nil {
		t.Fatalf("expected store error to propagate")
	}
}

func TestRetrieveBuildsCitationMetadata(t *testing.T) {
	uc, store, _, _ := newRetrieveFixture(nil)
	store.neighbors = []domain.RetrievalCandidate{
		candidate("c1", "vid-1", 65.4, 0.8),
		candidate("c2", "vid-unknown", 12, 0.4),
	}

	result, err := uc.Retrieve(context.Background(), "creator-1", "best pasta recipe", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := result.Citations[0]
	if first.VideoTitle != "Crispy Chicken" || first.VideoURL != "https://youtu.be/vid-1" {
		t.Fatalf("unexpected metadata: %+v", first)
	}
	if first.TimestampURL != "https://youtu.be/vid-1?t=65s" {
		t.Fatalf("unexpected timestamp url: %s", first.TimestampURL)
	}
	second := result.Citations[1]
	if second.TimestampURL != "https://www.youtube.com/watch?v=vid-unknown&t=12s" {
		t.Fatalf("unexpected fallback timestamp url: %s", second.TimestampURL)
	}
	if result.Confidence < 0.599 || result.Confidence > 0.601 {
		t.Fatalf("expected mean confidence 0.6, got %f", result.Confidence)
	}
}

func TestRetrieveTruncatesToK(t *testing.T) {
	uc, store, _, _ := newRetrieveFixture(nil)
	for i, id := range []string{"a", "b", "c", "d"} {
		store.neighbors = append(store.neighbors, candidate(id, "vid-1", float64(i*60), 0.9-float64(i)*0.1))
	}

	result, err := uc.Retrieve(context.Background(), "creator-1", "best pasta recipe", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Citations) != 2 || result.Citations[0].ChunkID != "a" {
		t.Fatalf("expected top 2 citations, got %+v", result.Citations)
	}
}

func TestRetrieveIsDeterministic(t *testing.T) {
	graph := &graphFake{
		available:  true,
		candidates: []domain.RetrievalCandidate{candidate("g1", "vid-1", 30, 0.5), candidate("c2", "vid-1", 100, 0.5)},
	}
	uc, store, _, _ := newRetrieveFixture(graph)
	store.neighbors = []domain.RetrievalCandidate{candidate("c1", "vid-1", 10, 0.5), candidate("c2", "vid-1", 100, 0.5)}

	first, err := uc.Retrieve(context.Background(), "creator-1", complexQuery, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := uc.Retrieve(context.Background(), "creator-1", complexQuery, 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("expected identical results across runs")
		}
	}
}

func TestTimestampURL(t *testing.T) {
	if got := timestampURL("https://www.youtube.com/watch?v=abc", 61.9); got != "https://www.youtube.com/watch?v=abc&t=61s" {
		t.Fatalf("unexpected url: %s", got)
	}
	if got := timestampURL("https://youtu.be/abc", -3); got != "https://youtu.be/abc?t=0s" {
		t.Fatalf("unexpected url: %s", got)
	}
}

func graphBackendOrNil(graph *graphFake) ports.GraphBackend {
	if graph == nil {
		return nil
	}
	return graph
}

func TestRetrieveRanksNonPositiveSimilarityLast(t *testing.T) {
	uc, store, _, _ := newRetrieveFixture(nil)
	store.neighbors = []domain.RetrievalCandidate{
		candidate("orthogonal", "vid-1", 10, 0),
		candidate("opposite", "vid-1", 100, -1),
		candidate("good", "vid-1", 200, 0.29),
	}

	result, err := uc.Retrieve(context.Background(), "creator-1", "pasta", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Citations) != 3 || result.Citations[0].ChunkID != "good" {
		t.Fatalf("expected the only real match first, got %+v", result.Citations)
	}
	if result.Citations[0].RelevanceScore != 0.29 {
		t.Fatalf("expected real similarity kept, got %f", result.Citations[0].RelevanceScore)
	}
	for _, citation := range result.Citations[1:] {
		if citation.RelevanceScore != 0 {
			t.Fatalf("expected %s clamped to 0, got %f", citation.ChunkID, citation.RelevanceScore)
		}
	}
	want := (0.29 + 0 + 0) / 3
	if diff := result.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected confidence %f, got %f", want, result.Confidence)
	}
}
