package neo4j

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
)

type runCall struct {
	cypher string
	params map[string]any
	write  bool
}

type fakeRunner struct {
	calls   []runCall
	results [][]*neo4j.Record
	err     error
}

func (f *fakeRunner) run(_ context.Context, cypher string, params map[string]any, write bool) ([]*neo4j.Record, error) {
	f.calls = append(f.calls, runCall{cypher: cypher, params: params, write: write})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	out := f.results[0]
	f.results = f.results[1:]
	return out, nil
}

func chunkRecord(chunkID, videoID string, score float64, seedID string) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"chunk_id", "video_id", "start_time", "end_time", "content", "word_count", "confidence", "score", "seed_id"},
		Values: []any{chunkID, videoID, 10.0, 70.0, "content of " + chunkID, int64(42), 0.9, score, seedID},
	}
}

func TestQueryNormalizesSeedsAndDecaysRelated(t *testing.T) {
	runner := &fakeRunner{results: [][]*neo4j.Record{
		{chunkRecord("s1", "v1", 4.0, ""), chunkRecord("s2", "v1", 2.0, "")},
		{chunkRecord("r1", "v2", 2.0, "s1"), chunkRecord("r2", "v2", 1.0, "s2")},
	}}
	backend := newBackend(runner.run, nil, nil, 0)

	got, err := backend.Query(context.Background(), "creator-1", "how do topics relate?", 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected seed and related queries, got %d calls", len(runner.calls))
	}
	if runner.calls[0].write || runner.calls[1].write {
		t.Fatalf("expected read routing for queries")
	}
	if runner.calls[0].params["creatorId"] != "creator-1" {
		t.Fatalf("expected creator scoped seed query, got %v", runner.calls[0].params)
	}
	if !reflect.DeepEqual(runner.calls[1].params["seedIds"], []string{"s1", "s2"}) {
		t.Fatalf("unexpected seed ids: %v", runner.calls[1].params["seedIds"])
	}

	want := []struct {
		id    string
		score float64
	}{
		{"s1", 1.0},
		{"r1", 0.8},
		{"s2", 0.5},
		{"r2", 0.2},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Chunk.ChunkID != w.id {
			t.Fatalf("candidate %d: expected %s, got %s", i, w.id, got[i].Chunk.ChunkID)
		}
		if diff := got[i].SimilarityScore - w.score; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("candidate %s: expected score %f, got %f", w.id, w.score, got[i].SimilarityScore)
		}
		if got[i].Source != domain.SourceGraph || got[i].CreatorID != "creator-1" {
			t.Fatalf("unexpected candidate metadata: %+v", got[i])
		}
	}
	if got[0].Chunk.WordCount != 42 || got[0].Chunk.StartTime != 10 {
		t.Fatalf("expected chunk fields decoded, got %+v", got[0].Chunk)
	}
}

func TestQueryMarksZeroScoreSeedsUnscored(t *testing.T) {
	runner := &fakeRunner{results: [][]*neo4j.Record{
		{chunkRecord("s1", "v1", 0, ""), chunkRecord("s2", "v1", 0, "")},
		{},
	}}
	backend := newBackend(runner.run, nil, nil, 0)

	got, err := backend.Query(context.Background(), "creator-1", "topic links", 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both seeds, got %d", len(got))
	}
	for _, candidate := range got {
		if !candidate.Unscored || candidate.SimilarityScore != 0 {
			t.Fatalf("expected unscored seed without a similarity, got %+v", candidate)
		}
	}
}

func TestQueryKeepsScoredFlagForPositiveSeeds(t *testing.T) {
	runner := &fakeRunner{results: [][]*neo4j.Record{
		{chunkRecord("s1", "v1", 3.0, "")},
		{chunkRecord("r1", "v2", 1.0, "missing-seed")},
	}}
	backend := newBackend(runner.run, nil, nil, 0)

	got, err := backend.Query(context.Background(), "creator-1", "topic links", 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	for _, candidate := range got {
		if candidate.Unscored {
			t.Fatalf("expected scored candidates, got %+v", candidate)
		}
	}
	if got[len(got)-1].Chunk.ChunkID != "r1" || got[len(got)-1].SimilarityScore != 0 {
		t.Fatalf("expected orphan neighbour to keep its real zero score last, got %+v", got[len(got)-1])
	}
}

func TestQuerySkipsBackendForBlankInput(t *testing.T) {
	runner := &fakeRunner{}
	backend := newBackend(runner.run, nil, nil, 0)

	got, err := backend.Query(context.Background(), "creator-1", "  ?! ", 5)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v / %v", got, err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("expected no backend calls, got %d", len(runner.calls))
	}
}

func TestQueryWithoutSeedsSkipsExpansion(t *testing.T) {
	runner := &fakeRunner{results: [][]*neo4j.Record{{}}}
	backend := newBackend(runner.run, nil, nil, 0)

	got, err := backend.Query(context.Background(), "creator-1", "chicken", 5)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v / %v", got, err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected only the seed query, got %d calls", len(runner.calls))
	}
}

func TestQueryPropagatesBackendError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("syntax error")}
	backend := newBackend(runner.run, nil, nil, 0)

	if _, err := backend.Query(context.Background(), "creator-1", "chicken", 5); err == nil {
		t.Fatalf("expected error")
	}
}

func TestIndexVideoReplacesGraphProjection(t *testing.T) {
	runner := &fakeRunner{}
	backend := newBackend(runner.run, nil, nil, 0)

	video := domain.Video{ID: "v1", CreatorID: "creator-1", Title: "Fried chicken", CanonicalURL: "https://youtu.be/v1"}
	chunks := []domain.SemanticChunk{
		{ChunkID: "c1", Content: "Brine the chicken overnight, chicken stays juicy."},
		{ChunkID: "c2", Content: "Fry at medium heat."},
	}
	if err := backend.IndexVideo(context.Background(), video, chunks); err != nil {
		t.Fatalf("IndexVideo() error = %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected delete then index, got %d calls", len(runner.calls))
	}
	if !strings.Contains(runner.calls[0].cypher, "DETACH DELETE") || !runner.calls[0].write {
		t.Fatalf("expected write delete first, got %q", runner.calls[0].cypher)
	}
	rows := runner.calls[1].params["chunks"].([]map[string]any)
	if len(rows) != 2 || rows[1]["ordinal"] != 1 {
		t.Fatalf("unexpected chunk rows: %v", rows)
	}
	topics := rows[0]["topics"].([]string)
	if len(topics) == 0 || topics[0] != "chicken" {
		t.Fatalf("expected chicken as leading topic, got %v", topics)
	}
}

func TestIndexVideoWithoutChunksOnlyDeletes(t *testing.T) {
	runner := &fakeRunner{}
	backend := newBackend(runner.run, nil, nil, 0)

	if err := backend.IndexVideo(context.Background(), domain.Video{ID: "v1"}, nil); err != nil {
		t.Fatalf("IndexVideo() error = %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected only delete, got %d calls", len(runner.calls))
	}
}

func TestIsAvailableCachesProbe(t *testing.T) {
	probes := 0
	probeErr := error(nil)
	backend := newBackend(nil, func(context.Context) error {
		probes++
		return probeErr
	}, nil, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }

	if !backend.IsAvailable(context.Background()) {
		t.Fatalf("expected available")
	}
	probeErr = errors.New("down")
	if !backend.IsAvailable(context.Background()) {
		t.Fatalf("expected cached availability")
	}
	if probes != 1 {
		t.Fatalf("expected single probe, got %d", probes)
	}

	now = now.Add(2 * time.Minute)
	if backend.IsAvailable(context.Background()) {
		t.Fatalf("expected unavailable after ttl expiry")
	}
	if probes != 2 {
		t.Fatalf("expected second probe, got %d", probes)
	}
}

func TestIsAvailableNilBackend(t *testing.T) {
	var backend *Backend
	if backend.IsAvailable(context.Background()) {
		t.Fatalf("expected nil backend to be unavailable")
	}
}

func TestLuceneQueryEscapesAndDeduplicates(t *testing.T) {
	got := luceneQuery("Chicken vs. chicken: C++ (tips)")
	want := "chicken OR vs OR c OR tips"
	if got != want {
		t.Fatalf("luceneQuery() = %q, want %q", got, want)
	}
	if escaped := escapeLucene("a+b"); escaped != `a\+b` {
		t.Fatalf("escapeLucene() = %q", escaped)
	}
}

func TestExtractTopicsSkipsStopwordsAndShortWords(t *testing.T) {
	got := extractTopics("You really want to brine the brine and then fry, fry, fry the wings", 3)
	want := []string{"brine", "wings"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("extractTopics() = %v, want %v", got, want)
	}
}
